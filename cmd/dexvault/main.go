package main

import (
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexter-zone/dexvault/internal/logger"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dexvault",
		Short:         "Run the DEX vault ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			var out io.Writer = os.Stdout
			if path := os.Getenv("LOG_FILE"); path != "" {
				fw, err := logger.FileWriter(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("Cannot open log file, logging to stdout only")
				} else {
					out = io.MultiWriter(os.Stdout, fw)
				}
			}
			logger.InitializeWithFormat(os.Getenv("LOG_LEVEL"), logger.Format(os.Getenv("LOG_FORMAT")), out)
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(resetDBCmd())
	return root
}

// main is the entry point for the vault ledger host.
func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("dexvault exited with error")
	}
}
