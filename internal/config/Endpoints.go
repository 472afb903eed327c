package config

import (
	"strconv"

	"github.com/rs/zerolog/log"
)

// Listener and database configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadEndpointConfig loads listener and database configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func LoadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCPort = getEnvOrDefault("GRPC_PORT", "9090")

	port, err := getEnvAsUint64OrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBPort = int(port)
	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	DBUser = getEnvOrDefault("DB_USER", "postgres")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "dexvault")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("WebPort", WebPort).
		Str("GRPCPort", GRPCPort).
		Str("DBHost", DBHost).
		Str("DBPort", strconv.Itoa(DBPort)).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
