package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caseplanner/internal/config"
	"caseplanner/internal/logging"
	"caseplanner/internal/market"
	"caseplanner/internal/metadata"
	"caseplanner/internal/metrics"
	"caseplanner/internal/pipeline"
	"caseplanner/internal/storage"
	"caseplanner/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	records, err := db.LoadSnapshot()
	must(err)

	reg := metrics.NewRegistry()
	src, err := market.NewSource(cfg, log)
	must(err)
	refresher := pipeline.NewRefreshService(metadata.NewClient(cfg, log), src, reg, log)
	refresher.Seed(pipeline.NewSnapshot(records))

	exportPath := ""
	if cfg.WatchExport {
		exportPath = filepath.Join(cfg.OutputDir, "cases_latest.xlsx")
	}
	svc := watcher.NewService(refresher, db, cfg.WatchInterval(), exportPath, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	runErr := svc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	must(runErr)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
