package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"caseplanner/internal"
)

type page struct {
	Listings []internal.Listing
	// Raw counts results or rows on the page before filtering. Zero ends
	// pagination.
	Raw int
	// Total is the source-reported result count, -1 when unknown.
	Total   int
	Skipped map[string]int
}

type pageFunc func(ctx context.Context, start int) (page, error)

// Pager walks offset-based pages one at a time. It never issues more than
// maxPages requests and waits on the throttle before every request after the
// first.
type Pager struct {
	mode     string
	maxPages int
	throttle *Throttle
	log      *zap.Logger
}

func NewPager(mode string, maxPages int, throttle *Throttle, log *zap.Logger) *Pager {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Pager{mode: mode, maxPages: maxPages, throttle: throttle, log: log}
}

// Collect returns every listing gathered before pagination stopped. A failed
// page ends the walk; listings from earlier pages are still returned alongside
// the error.
func (p *Pager) Collect(ctx context.Context, fetch pageFunc) ([]internal.Listing, Stats, error) {
	out := make([]internal.Listing, 0)
	stats := Stats{Mode: p.mode, TotalReported: -1, Skipped: map[string]int{}}
	start := 0
	done := func(err error) ([]internal.Listing, Stats, error) {
		stats.Fetched = len(out)
		return out, stats, err
	}

	for n := 0; n < p.maxPages; n++ {
		if n > 0 {
			if err := p.throttle.Wait(ctx); err != nil {
				p.log.Info("pagination cancelled", zap.Int("pages", stats.Pages), zap.Error(err))
				return done(err)
			}
		} else if err := ctx.Err(); err != nil {
			return done(err)
		}

		pg, err := fetch(ctx, start)
		p.throttle.Mark()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return done(ctxErr)
			}
			p.log.Warn("page request failed, stopping pagination",
				zap.Int("page", n+1),
				zap.Int("start", start),
				zap.Int("collected", len(out)),
				zap.Error(err))
			if n == 0 {
				return done(fmt.Errorf("%w: market %s: %w", internal.ErrSourceUnavailable, p.mode, err))
			}
			return done(fmt.Errorf("%w: market %s page %d: %w", internal.ErrTransport, p.mode, n+1, err))
		}

		stats.Pages++
		for reason, count := range pg.Skipped {
			stats.Skipped[reason] += count
		}
		if stats.TotalReported < 0 && pg.Total >= 0 {
			stats.TotalReported = pg.Total
			p.log.Info("market reports total listings", zap.Int("total", pg.Total))
		}
		if pg.Raw == 0 {
			p.log.Debug("empty page, stopping pagination", zap.Int("page", n+1))
			break
		}

		out = append(out, pg.Listings...)
		start += pg.Raw
		p.log.Debug("page collected",
			zap.Int("page", n+1),
			zap.Int("listings", len(pg.Listings)),
			zap.Int("collected", len(out)))

		if stats.TotalReported >= 0 && start >= stats.TotalReported {
			break
		}
		if n == p.maxPages-1 {
			stats.HitPageCeiling = true
			p.log.Warn("page ceiling reached", zap.Int("max_pages", p.maxPages), zap.Int("collected", len(out)))
		}
	}

	return done(nil)
}
