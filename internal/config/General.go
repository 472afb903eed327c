package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/dexter-zone/dexvault/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultOwner is the address allowed to administer the ledger.
	VaultOwner string
	// VaultAddress is the account that custodies all pool balances.
	VaultAddress string
	// FeeCollector receives protocol fees and pool creation fees. Empty disables protocol fees.
	FeeCollector string
	// MultistakingAddress receives auto-staked LP tokens. Empty disables auto-stake.
	MultistakingAddress string

	// PoolCreationFee is charged on CreatePoolInstance when non-nil.
	PoolCreationFee *sdk.Coin
	// NativePrecisions are the decimals of native denoms offered to pool creation.
	NativePrecisions map[string]uint8

	// SnapshotInterval is how often the ledger is persisted. Zero disables periodic snapshots.
	SnapshotInterval time.Duration

	// LogLevel and LogFormat configure internal/logger.
	LogLevel  string
	LogFormat string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// VAULT_OWNER and VAULT_ADDRESS are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultOwner, err = getEnv("VAULT_OWNER")
	if err != nil {
		return err
	}

	VaultAddress, err = getEnv("VAULT_ADDRESS")
	if err != nil {
		return err
	}

	FeeCollector = getEnvOrDefault("FEE_COLLECTOR", "")
	MultistakingAddress = getEnvOrDefault("MULTISTAKING_ADDRESS", "")

	PoolCreationFee, err = ParsePoolCreationFee(getEnvOrDefault("POOL_CREATION_FEE", ""))
	if err != nil {
		return err
	}
	if PoolCreationFee != nil && FeeCollector == "" {
		return fmt.Errorf("environment variable POOL_CREATION_FEE requires FEE_COLLECTOR")
	}

	NativePrecisions = make(map[string]uint8, len(DefaultNativePrecisions))
	for denom, prec := range DefaultNativePrecisions {
		NativePrecisions[denom] = prec
	}
	overrides, err := ParseNativePrecisions(getEnvOrDefault("NATIVE_PRECISIONS", ""))
	if err != nil {
		return err
	}
	for denom, prec := range overrides {
		NativePrecisions[denom] = prec
	}

	seconds, err := getEnvAsUint64OrDefault("SNAPSHOT_INTERVAL_SECONDS", 300)
	if err != nil {
		return err
	}
	SnapshotInterval = time.Duration(seconds) * time.Second

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	// Load endpoint configuration
	if err := LoadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultOwner", VaultOwner).
		Str("VaultAddress", VaultAddress).
		Str("FeeCollector", FeeCollector).
		Bool("AutoStake", MultistakingAddress != "").
		Dur("SnapshotInterval", SnapshotInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// InstantiateParams converts the loaded configuration into ledger settings.
func InstantiateParams() (types.PoolCreationFee, types.AutoStakeImpl) {
	fee := types.PoolCreationFee{}
	if PoolCreationFee != nil {
		fee = types.PoolCreationFee{
			Enabled: true,
			Fee:     types.NewAsset(types.NativeAsset(PoolCreationFee.Denom), PoolCreationFee.Amount),
		}
	}
	return fee, types.AutoStakeImpl{Multistaking: MultistakingAddress}
}

// ParsePoolCreationFee parses a coin such as "1000000uatom". An empty string disables the fee.
func ParsePoolCreationFee(raw string) (*sdk.Coin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	coin, err := sdk.ParseCoinNormalized(raw)
	if err != nil {
		return nil, fmt.Errorf("environment variable POOL_CREATION_FEE must be a coin like 1000uatom, got %q: %w", raw, err)
	}
	if !coin.Amount.IsPositive() {
		return nil, fmt.Errorf("environment variable POOL_CREATION_FEE must be positive, got %q", raw)
	}
	return &coin, nil
}

// ParseNativePrecisions parses "denom:precision,denom:precision".
func ParseNativePrecisions(raw string) (map[string]uint8, error) {
	out := map[string]uint8{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		denom, precStr, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || denom == "" {
			return nil, fmt.Errorf("environment variable NATIVE_PRECISIONS has malformed entry %q", entry)
		}
		if err := sdk.ValidateDenom(denom); err != nil {
			return nil, fmt.Errorf("environment variable NATIVE_PRECISIONS: %w", err)
		}
		prec, err := strconv.ParseUint(precStr, 10, 8)
		if err != nil || prec > 18 {
			return nil, fmt.Errorf("environment variable NATIVE_PRECISIONS: precision for %s must be 0-18, got %q", denom, precStr)
		}
		out[denom] = uint8(prec)
	}
	return out, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64OrDefault is getEnvAsUint64 for optional keys.
func getEnvAsUint64OrDefault(key string, def uint64) (uint64, error) {
	if value, exists := os.LookupEnv(key); !exists || value == "" {
		return def, nil
	}
	return getEnvAsUint64(key)
}
