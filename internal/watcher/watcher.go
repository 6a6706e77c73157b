// Package watcher refreshes prices on an interval and persists every result.
package watcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/pipeline"
	"caseplanner/internal/storage"
)

type Refresher interface {
	Refresh(ctx context.Context) (pipeline.RefreshResult, error)
	Snapshot() pipeline.Snapshot
}

type Store interface {
	SaveSnapshot(records []internal.CaseRecord) error
	InsertRun(traceID, status string, timings map[string]float64, counts map[string]int) error
	SetMetadata(key, value string) error
}

type Service struct {
	refresher  Refresher
	store      Store
	interval   time.Duration
	exportPath string
	log        *zap.Logger
	now        func() time.Time
}

// NewService builds a watcher. An empty exportPath disables the xlsx export
// after each successful cycle.
func NewService(refresher Refresher, store Store, interval time.Duration, exportPath string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		refresher:  refresher,
		store:      store,
		interval:   interval,
		exportPath: exportPath,
		log:        log.Named("watcher"),
		now:        time.Now,
	}
}

// Run cycles until ctx is done. Cycle errors are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("watcher started", zap.Duration("interval", s.interval))
	for {
		if _, err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("watcher cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.log.Info("watcher stopped")
			return nil
		case <-time.After(s.interval):
		}
	}
}

// Cycle runs one refresh and persists the snapshot and the run record.
func (s *Service) Cycle(ctx context.Context) (pipeline.RefreshResult, error) {
	res, err := s.refresher.Refresh(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRefreshInProgress):
		s.log.Debug("refresh already running, skipping cycle")
		return res, err
	case ctx.Err() != nil:
		return res, ctx.Err()
	}

	if res.TraceID != "" {
		if runErr := s.store.InsertRun(res.TraceID, res.Status(), res.Timings(), res.Counts()); runErr != nil {
			s.log.Warn("failed to record refresh run", zap.Error(runErr))
		}
	}
	if err != nil {
		return res, err
	}

	snap := s.refresher.Snapshot()
	if err := s.store.SaveSnapshot(snap.All()); err != nil {
		return res, err
	}
	if err := s.store.SetMetadata(storage.KeyLastRefresh, s.now().UTC().Format(time.RFC3339)); err != nil {
		return res, err
	}

	if s.exportPath != "" {
		if err := pipeline.ExportXLSX(snap.Complete(), nil, s.exportPath); err != nil {
			return res, err
		}
	}

	s.log.Info("watcher cycle done",
		zap.String("trace_id", res.TraceID),
		zap.String("status", res.Status()),
		zap.Int("records", res.Records),
		zap.Int("complete", res.Complete))
	return res, nil
}
