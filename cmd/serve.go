package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/tinoosan/bookkeeping/internal/httpapi/v1"
	"github.com/tinoosan/bookkeeping/internal/lock"
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
	"github.com/tinoosan/bookkeeping/internal/storage/memory"
	pgstore "github.com/tinoosan/bookkeeping/internal/storage/postgres"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

const postingLockKey = "bookkeeping:posting-lock"

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *envFile)
		},
	}
}

func runServe(ctx context.Context, envFile string) error {
	cfg, logger, err := setup(envFile)
	if err != nil {
		return err
	}
	chart, err := loadChart(cfg)
	if err != nil {
		return err
	}

	store := memory.New()
	opts := []writethrough.Option{
		writethrough.WithLogger(logger),
		writethrough.WithTimeout(cfg.ExternalWriteTimeout),
	}
	var ready httpapi.ReadyChecker
	if cfg.UsesExternalStore() {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.BookCurrency)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			return err
		}
		defer pg.Close()
		opts = append(opts, writethrough.WithExternal(pg))
		ready = pg
		logger.Info("storage backend: postgres + memory")
	} else {
		logger.Info("storage backend: memory")
	}
	facade := writethrough.New(store, chart, opts...)
	defer facade.Close()
	if _, err := facade.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrating from external store: %w", err)
	}

	var locker lock.Locker = lock.NewLocal()
	jopts := []journal.Option{journal.WithLogger(logger), journal.WithCurrency(cfg.BookCurrency)}
	if cfg.RedisURL != "" {
		client, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			return err
		}
		defer client.Close()
		locker = lock.Chain(lock.NewLocal(), lock.BestEffort(lock.NewRedis(client, postingLockKey, cfg.LockTTL), logger))
		// other replicas write to the same store: catch up before every post
		jopts = append(jopts, journal.WithCatchUp(facade))
		logger.Info("posting lock: local + redis", "key", postingLockKey, "ttl", cfg.LockTTL.String())
	}

	j := journal.New(chart, store, facade, append(jopts, journal.WithLocker(locker))...)
	srvMux := httpapi.New(httpapi.Deps{
		Chart:    chart,
		Journal:  j,
		Cashbook: cashbook.New(j, store, facade, cfg.BookCurrency, logger),
		Ledger:   aggregator.NewService(chart, store, cfg.BookCurrency),
		Sync:     facade,
		Ready:    ready,
		Currency: cfg.BookCurrency,
		Logger:   logger,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srvMux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bookkeeping service listening", "addr", srv.Addr, "currency", cfg.BookCurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		if p := facade.Pending(); !p.Empty() {
			logger.Warn("shutting down with unsynced writes", "entries", len(p.Entries), "receipts", len(p.Receipts), "disbursements", len(p.Disbursements))
		}
		return nil
	case err := <-errCh:
		logger.Error("server error", "err", err)
		return err
	}
}
