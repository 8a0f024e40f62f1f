// Command reconcile recomputes the cached highest bid of every opportunity once
// and exits. It is meant for cron jobs and for repairing a ledger by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "bidding-marketplace/internal/biddingService"
	"bidding-marketplace/internal/config"
	"bidding-marketplace/internal/ledger"
	"bidding-marketplace/internal/reconciler"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/utils"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the pass after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.Driver != config.StoreMongo {
		fmt.Fprintln(os.Stderr, "reconcile needs a persistent ledger, set STORE_DRIVER=mongo")
		os.Exit(1)
	}
	if err := utils.SetLogLevel(cfg.Log.Level); err != nil {
		utils.Warn("unknown log level, keeping default", map[string]any{"level": cfg.Log.Level})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client, store, err := ledger.ConnectMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
	if err != nil {
		utils.Fatal("failed to open ledger", map[string]any{"error": err.Error()})
	}
	defer client.Disconnect(context.Background())

	repo := repository.NewLedgerRepo(store, cfg.Store.AppID)
	svc := bidding.NewBiddingService(repo, bidding.WithMaxCASAttempts(cfg.Bidding.MaxCASAttempts))

	report, err := reconciler.New(repo, svc, cfg.Reconcile.Interval.Duration, cfg.Reconcile.Concurrency, nil).RunOnce(ctx)
	fields := map[string]any{
		"app_id":      cfg.Store.AppID,
		"checked":     report.Checked,
		"corrected":   report.Corrected,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		utils.Error("reconciliation pass failed", fields)
		os.Exit(1)
	}
	utils.Info("reconciliation pass finished", fields)
	if report.Failed > 0 {
		os.Exit(2)
	}
}
