package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/market"
	"caseplanner/internal/metadata"
	"caseplanner/internal/metrics"
)

var (
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrNoUsableRecords   = errors.New("no usable case records")
)

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

type MetadataFetcher interface {
	Fetch(ctx context.Context) (map[string]internal.MetadataEntry, metadata.Stats, error)
}

type RefreshResult struct {
	TraceID     string
	Metadata    metadata.Stats
	Market      market.Stats
	MetadataErr error
	MarketErr   error
	NewKeys     int
	UpdatedKeys int
	Records     int
	Complete    int
	Duration    time.Duration
}

func (r RefreshResult) Status() string {
	switch {
	case r.MetadataErr != nil && r.MarketErr != nil && r.Complete == 0:
		return StatusFailed
	case r.MetadataErr != nil || r.MarketErr != nil:
		return StatusPartial
	default:
		return StatusOK
	}
}

func (r RefreshResult) Timings() map[string]float64 {
	return map[string]float64{"totalMs": float64(r.Duration.Milliseconds())}
}

func (r RefreshResult) Counts() map[string]int {
	return map[string]int{
		"metadataAccepted": r.Metadata.Accepted,
		"metadataSkipped":  r.Metadata.Skipped,
		"marketPages":      r.Market.Pages,
		"marketFetched":    r.Market.Fetched,
		"marketSkipped":    r.Market.SkippedTotal(),
		"newKeys":          r.NewKeys,
		"updatedKeys":      r.UpdatedKeys,
		"records":          r.Records,
		"complete":         r.Complete,
	}
}

// RefreshService owns the published snapshot. Only Refresh and Seed replace it.
type RefreshService struct {
	meta    MetadataFetcher
	market  market.Source
	metrics *metrics.Registry
	log     *zap.Logger
	now     func() time.Time

	running  atomic.Bool
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRefreshService wires both sources. reg may be nil.
func NewRefreshService(meta MetadataFetcher, src market.Source, reg *metrics.Registry, log *zap.Logger) *RefreshService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RefreshService{
		meta:     meta,
		market:   src,
		metrics:  reg,
		log:      log.Named("refresh"),
		now:      time.Now,
		snapshot: NewSnapshot(nil),
	}
}

func (s *RefreshService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Seed installs a previously persisted snapshot as the merge base.
func (s *RefreshService) Seed(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// FetchAllCasePrices runs a full refresh and returns the complete records.
func (s *RefreshService) FetchAllCasePrices(ctx context.Context) ([]internal.CaseRecord, error) {
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.Snapshot().Complete(), nil
}

// Refresh fetches both sources concurrently and merges them into the current
// snapshot. Source failures are reported in the result; the call only fails
// when it is already running, when ctx is cancelled, or when neither source
// produced anything and no complete record exists.
func (s *RefreshService) Refresh(ctx context.Context) (RefreshResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RefreshResult{}, ErrRefreshInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	res := RefreshResult{TraceID: traceID()}
	log := s.log.With(zap.String("trace_id", res.TraceID), zap.String("market_mode", s.market.Mode()))
	log.Info("refresh started")

	var (
		wg       sync.WaitGroup
		meta     map[string]internal.MetadataEntry
		listings []internal.Listing
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		meta, res.Metadata, res.MetadataErr = s.meta.Fetch(ctx)
	}()
	go func() {
		defer wg.Done()
		listings, res.Market, res.MarketErr = s.market.FetchListings(ctx)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Info("refresh abandoned, snapshot unchanged", zap.Error(err))
		return res, err
	}

	prior := s.Snapshot()
	next, ms := merge(prior, meta, listings, start)
	res.NewKeys = ms.NewKeys
	res.UpdatedKeys = ms.UpdatedKeys
	res.Records = next.Len()
	res.Complete = len(next.Complete())

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()

	res.Duration = s.now().Sub(start)
	s.observe(res)

	fields := []zap.Field{
		zap.Int("metadata_accepted", res.Metadata.Accepted),
		zap.Int("metadata_skipped", res.Metadata.Skipped),
		zap.Int("market_pages", res.Market.Pages),
		zap.Int("market_listings", res.Market.Fetched),
		zap.Int("market_skipped", res.Market.SkippedTotal()),
		zap.Int("new_keys", res.NewKeys),
		zap.Int("updated_keys", res.UpdatedKeys),
		zap.Int("records", res.Records),
		zap.Int("complete", res.Complete),
		zap.Duration("took", res.Duration),
	}
	if res.MetadataErr != nil {
		fields = append(fields, zap.NamedError("metadata_error", res.MetadataErr))
	}
	if res.MarketErr != nil {
		fields = append(fields, zap.NamedError("market_error", res.MarketErr))
	}

	if res.Status() == StatusFailed {
		log.Error("refresh failed: no source produced usable records", fields...)
		return res, fmt.Errorf("%w: metadata: %v; market: %v", ErrNoUsableRecords, res.MetadataErr, res.MarketErr)
	}
	if res.Status() == StatusPartial {
		log.Warn("refresh finished with source errors", fields...)
	} else {
		log.Info("refresh finished", fields...)
	}
	return res, nil
}

func (s *RefreshService) observe(res RefreshResult) {
	if s.metrics == nil {
		return
	}
	m := s.metrics
	m.Refreshes.WithLabelValues(res.Status()).Inc()
	m.RefreshSeconds.Observe(res.Duration.Seconds())
	m.PagesFetched.WithLabelValues(s.market.Mode()).Add(float64(res.Market.Pages))
	if res.Metadata.Skipped > 0 {
		m.RecordsSkipped.WithLabelValues("metadata", "malformed").Add(float64(res.Metadata.Skipped))
	}
	for reason, n := range res.Market.Skipped {
		m.RecordsSkipped.WithLabelValues("market", reason).Add(float64(n))
	}
	if res.MetadataErr != nil {
		m.SourceFailures.WithLabelValues("metadata").Inc()
	}
	if res.MarketErr != nil {
		m.SourceFailures.WithLabelValues("market").Inc()
	}
	m.SnapshotRecords.Set(float64(res.Records))
	m.CompleteRecords.Set(float64(res.Complete))
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
