package market

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caseplanner/internal"
)

func listingsPage(start, n, total int) page {
	pg := page{Raw: n, Total: total, Skipped: map[string]int{}}
	for i := 0; i < n; i++ {
		pg.Listings = append(pg.Listings, internal.Listing{Name: fmt.Sprintf("Case %d", start+i), Price: 1, ImageURL: "img"})
	}
	return pg
}

func countingThrottle() (*Throttle, *int) {
	waits := 0
	th := NewThrottle(time.Second)
	th.sleep = func(context.Context, time.Duration) error {
		waits++
		return nil
	}
	return th, &waits
}

func TestPagerStopsAtReportedTotal(t *testing.T) {
	th, waits := countingThrottle()
	p := NewPager("json", 20, th, zap.NewNop())

	var starts []int
	listings, stats, err := p.Collect(context.Background(), func(_ context.Context, start int) (page, error) {
		starts = append(starts, start)
		return listingsPage(start, 10, 25), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 10, 20}, starts)
	assert.Len(t, listings, 30)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 25, stats.TotalReported)
	assert.Equal(t, 30, stats.Fetched)
	assert.False(t, stats.HitPageCeiling)
	assert.Equal(t, 2, *waits, "delay applies between pages only")
}

func TestPagerRespectsPageCeiling(t *testing.T) {
	th, _ := countingThrottle()
	p := NewPager("html", 3, th, zap.NewNop())

	calls := 0
	listings, stats, err := p.Collect(context.Background(), func(_ context.Context, start int) (page, error) {
		calls++
		return listingsPage(start, 10, -1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, listings, 30)
	assert.True(t, stats.HitPageCeiling)
	assert.Equal(t, -1, stats.TotalReported)
}

func TestPagerStopsOnEmptyPage(t *testing.T) {
	th, _ := countingThrottle()
	p := NewPager("html", 10, th, zap.NewNop())

	calls := 0
	listings, stats, err := p.Collect(context.Background(), func(_ context.Context, start int) (page, error) {
		calls++
		if start >= 20 {
			return page{Total: -1}, nil
		}
		return listingsPage(start, 10, -1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, listings, 20)
	assert.Equal(t, 3, stats.Pages)
}

func TestPagerKeepsPartialResultsOnFailure(t *testing.T) {
	th, _ := countingThrottle()
	p := NewPager("json", 10, th, zap.NewNop())

	listings, stats, err := p.Collect(context.Background(), func(_ context.Context, start int) (page, error) {
		if start == 20 {
			return page{}, &internal.StatusError{Source: "market", Status: 429}
		}
		return listingsPage(start, 10, 100), nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrTransport))
	assert.Len(t, listings, 20)
	assert.Equal(t, 20, stats.Fetched)
	assert.Equal(t, 2, stats.Pages)
}

func TestPagerFirstPageFailureIsSourceUnavailable(t *testing.T) {
	th, _ := countingThrottle()
	p := NewPager("json", 10, th, zap.NewNop())

	listings, _, err := p.Collect(context.Background(), func(context.Context, int) (page, error) {
		return page{}, errors.New("connection refused")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrSourceUnavailable))
	assert.False(t, errors.Is(err, internal.ErrTransport))
	assert.Empty(t, listings)
}

func TestPagerCancellationBetweenPages(t *testing.T) {
	th := NewThrottle(time.Second)
	p := NewPager("json", 10, th, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	th.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	calls := 0
	listings, stats, err := p.Collect(ctx, func(_ context.Context, start int) (page, error) {
		calls++
		return listingsPage(start, 10, 100), nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Len(t, listings, 10)
	assert.Equal(t, 10, stats.Fetched)
}

func TestPagerAggregatesSkipReasons(t *testing.T) {
	th, _ := countingThrottle()
	p := NewPager("json", 2, th, zap.NewNop())

	_, stats, err := p.Collect(context.Background(), func(_ context.Context, start int) (page, error) {
		pg := listingsPage(start, 5, -1)
		pg.Skipped[SkipNotContainer] = 2
		pg.Skipped[SkipMissingImage] = 1
		return pg, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Skipped[SkipNotContainer])
	assert.Equal(t, 2, stats.Skipped[SkipMissingImage])
	assert.Equal(t, 6, stats.SkippedTotal())
}
