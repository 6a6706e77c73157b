package market

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces consecutive page requests: Wait blocks until interval has
// passed since the last Mark. The first Wait never blocks.
type Throttle struct {
	mu       sync.Mutex
	readyAt  time.Time
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval < 0 {
		interval = 0
	}
	return &Throttle{interval: interval, now: time.Now, sleep: sleepContext}
}

func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	d := t.readyAt.Sub(t.now())
	t.mu.Unlock()

	if d <= 0 {
		return ctx.Err()
	}
	return t.sleep(ctx, d)
}

// Mark records that a request just completed.
func (t *Throttle) Mark() {
	t.mu.Lock()
	t.readyAt = t.now().Add(t.interval)
	t.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
