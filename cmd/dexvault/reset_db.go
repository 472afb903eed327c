package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexter-zone/dexvault/internal/config"
	"github.com/dexter-zone/dexvault/internal/state"
)

func resetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Drop and recreate the snapshot and receipt tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Msg("Starting database reset...")
			if err := config.LoadEndpointConfig(); err != nil {
				return err
			}
			if err := state.InitDB(dbConfig()); err != nil {
				return err
			}
			defer state.CloseDB()

			if err := state.ResetSchema(); err != nil {
				return err
			}
			log.Info().Msg("Database reset complete.")
			return nil
		},
	}
}

func dbConfig() state.DBConfig {
	return state.DBConfig{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}
}
