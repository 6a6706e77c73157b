package market

import (
	"context"
	"testing"
	"time"
)

func TestThrottleWaitsFromLastMark(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration

	th := NewThrottle(2 * time.Second)
	th.now = func() time.Time { return now }
	th.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 0 {
		t.Fatalf("first wait slept %v", slept)
	}

	th.Mark()
	now = now.Add(500 * time.Millisecond)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 1500*time.Millisecond {
		t.Fatalf("slept=%v", slept)
	}

	now = now.Add(5 * time.Second)
	if err := th.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 {
		t.Fatalf("expected no extra sleep, got %v", slept)
	}
}

func TestThrottleWaitHonorsCancellation(t *testing.T) {
	th := NewThrottle(time.Hour)
	th.Mark()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := th.Wait(ctx); err != context.Canceled {
		t.Fatalf("err=%v", err)
	}
}
