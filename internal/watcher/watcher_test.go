package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/pipeline"
	"caseplanner/internal/storage"
)

type fakeRefresher struct {
	res   pipeline.RefreshResult
	err   error
	snap  pipeline.Snapshot
	calls int
}

func (f *fakeRefresher) Refresh(context.Context) (pipeline.RefreshResult, error) {
	f.calls++
	return f.res, f.err
}

func (f *fakeRefresher) Snapshot() pipeline.Snapshot { return f.snap }

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCyclePersistsSnapshotAndRun(t *testing.T) {
	db := openDB(t)
	snap := pipeline.NewSnapshot([]internal.CaseRecord{
		{Name: "Chroma Case", NormalizedKey: "chromacase", Price: fp(2.9), MarketImageURL: sp("c")},
		{Name: "Gamma Case", NormalizedKey: "gammacase", ROI: fp(0.2)},
	})
	ref := &fakeRefresher{res: pipeline.RefreshResult{TraceID: "t1", Records: 2, Complete: 1}, snap: snap}
	out := filepath.Join(t.TempDir(), "out", "cases.xlsx")

	svc := NewService(ref, db, time.Minute, out, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	_, err := svc.Cycle(context.Background())
	require.NoError(t, err)

	records, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	runs, err := db.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "t1", runs[0].TraceID)
	assert.Equal(t, pipeline.StatusOK, runs[0].Status)

	last, err := db.GetMetadata(storage.KeyLastRefresh)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "2024-05-01T10:00:00Z", *last)

	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestCycleRecordsFailedRunWithoutSaving(t *testing.T) {
	db := openDB(t)
	ref := &fakeRefresher{
		res: pipeline.RefreshResult{TraceID: "t2", MetadataErr: errors.New("down"), MarketErr: errors.New("down")},
		err: pipeline.ErrNoUsableRecords,
	}
	svc := NewService(ref, db, time.Minute, "", nil)

	_, err := svc.Cycle(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoUsableRecords)

	runs, _ := db.ListRuns(5)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.StatusFailed, runs[0].Status)

	last, _ := db.GetMetadata(storage.KeyLastRefresh)
	assert.Nil(t, last)
}

func TestRunStopsOnCancel(t *testing.T) {
	db := openDB(t)
	ref := &fakeRefresher{res: pipeline.RefreshResult{TraceID: "t3"}, snap: pipeline.NewSnapshot(nil)}
	svc := NewService(ref, db, time.Hour, "", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		runs, _ := db.ListRuns(1)
		return len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
