package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexter-zone/dexvault/internal/config"
	"github.com/dexter-zone/dexvault/internal/state"
	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/vault"
	"github.com/dexter-zone/dexvault/internal/wallet"
	"github.com/dexter-zone/dexvault/internal/web"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var noDB, faucet bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP with a gRPC health endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), !noDB, faucet || os.Getenv("FAUCET") == "true")
		},
	}
	cmd.Flags().BoolVar(&noDB, "no-db", false, "run without PostgreSQL; snapshots and receipts are disabled")
	cmd.Flags().BoolVar(&faucet, "faucet", false, "expose the bank faucet and reward schedule endpoints")
	return cmd
}

func serve(ctx context.Context, useDB, faucet bool) error {
	// --- 1. Initialization Phase ---
	if err := config.LoadConfig(); err != nil {
		return err
	}
	log.Info().Msg("Vault ledger starting...")

	if useDB {
		if err := state.InitDB(dbConfig()); err != nil {
			return err
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			return err
		}
	}

	// --- 2. Ledger construction ---
	bank := wallet.NewBank()
	staking := wallet.NewStaking()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []vault.Option{
		vault.WithStaking(staking),
		vault.WithMetrics(vault.NewMetrics(reg)),
		vault.WithNativePrecisions(config.NativePrecisions),
	}
	if useDB {
		opts = append(opts, vault.WithReceiptSink(state.NewReceiptStore()))
	}
	creationFee, autoStake := config.InstantiateParams()
	v, err := vault.New(vault.InstantiateMsg{
		Owner:           config.VaultOwner,
		VaultAddress:    config.VaultAddress,
		PoolConfigs:     config.DefaultPoolConfigs(),
		FeeCollector:    config.FeeCollector,
		PoolCreationFee: creationFee,
		AutoStakeImpl:   autoStake,
	}, bank, opts...)
	if err != nil {
		return err
	}

	if useDB {
		if err := restoreLatest(v, bank, staking); err != nil {
			return err
		}
	}

	// --- 3. Servers ---
	webOpts := []web.Option{web.WithBank(bank, faucet), web.WithStaking(staking), web.WithGatherer(reg)}
	if useDB {
		webOpts = append(webOpts, web.WithPersistence())
	}
	webServer := web.NewWebServer(config.WebPort, v, webOpts...)
	grpcServer := web.NewGRPCServer(config.GRPCPort)

	errCh := make(chan error, 2)
	go func() {
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()
	grpcServer.SetServing(true)

	// --- 4. Snapshot loop and shutdown ---
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tick <-chan time.Time
	if useDB && config.SnapshotInterval > 0 {
		ticker := time.NewTicker(config.SnapshotInterval)
		defer ticker.Stop()
		tick = ticker.C
		log.Info().Str("interval", config.SnapshotInterval.String()).Msg("Snapshot loop started")
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received")
			break loop
		case runErr = <-errCh:
			log.Error().Err(runErr).Msg("Server failed")
			break loop
		case <-tick:
			saveSnapshot(v, bank, staking)
		}
	}

	grpcServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	grpcServer.Stop()

	if useDB {
		saveSnapshot(v, bank, staking)
	}
	log.Info().Msg("Vault ledger stopped")
	return runErr
}

// restoreLatest loads the newest snapshot, if any, into the ledger and custody.
func restoreLatest(v *vault.Vault, bank *wallet.Bank, staking *wallet.Staking) error {
	snap, err := state.LoadLatestSnapshot()
	if errors.Is(err, state.ErrNoSnapshot) {
		log.Info().Msg("No snapshot found, starting with an empty ledger")
		return nil
	}
	if err != nil {
		return err
	}
	v.Restore(*snap)
	if snap.Custody != nil {
		if err := wallet.RestoreCustody(bank, staking, *snap.Custody); err != nil {
			return err
		}
	}
	return nil
}

func saveSnapshot(v *vault.Vault, bank *wallet.Bank, staking *wallet.Staking) {
	snap := v.SnapshotWith(func(s *types.LedgerSnapshot) {
		s.Custody = wallet.ExportCustody(bank, staking)
	})
	id, err := state.SaveLedgerSnapshot(snap)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save ledger snapshot")
		return
	}
	log.Info().Int64("snapshot_id", id).Int("pools", len(snap.Pools)).Msg("Ledger snapshot saved")
}
