package storage

import (
	"path/filepath"
	"testing"
	"time"

	"caseplanner/internal"
	"caseplanner/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSnapshotRoundTripKeepsStoredValues(t *testing.T) {
	db := openTestDB(t)
	seen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := []internal.CaseRecord{
		{
			Name: "Chroma Case", NameSource: internal.NameFromMarket, NormalizedKey: "chromacase",
			Price: util.FloatPtr(2.9), ROI: util.FloatPtr(0.32), KeyCost: util.FloatPtr(2.49),
			MetadataImageURL: util.StringPtr("https://csroi.com/img/chroma.png"),
			MarketImageURL:   util.StringPtr("https://cdn/chroma"),
			PriceSeenAt:      &seen,
		},
		{Name: "Gamma Case", NameSource: internal.NameFromMetadata, NormalizedKey: "gammacase", ROI: util.FloatPtr(0.1)},
	}
	if err := db.SaveSnapshot(first); err != nil {
		t.Fatal(err)
	}

	// A later save with missing fields and fewer rows must not erase anything.
	second := []internal.CaseRecord{
		{Name: "Chroma Case", NameSource: internal.NameFromMarket, NormalizedKey: "chromacase", Price: util.FloatPtr(3.1)},
	}
	if err := db.SaveSnapshot(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := db.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("rows=%d", len(loaded))
	}
	chroma := loaded[0]
	if chroma.NormalizedKey != "chromacase" || *chroma.Price != 3.1 {
		t.Fatalf("chroma=%+v", chroma)
	}
	if chroma.ROI == nil || *chroma.ROI != 0.32 || chroma.KeyCost == nil || util.DerefString(chroma.MetadataImageURL) == "" {
		t.Fatalf("stored fields lost: %+v", chroma)
	}
	if chroma.PriceSeenAt == nil || !chroma.PriceSeenAt.Equal(seen) {
		t.Fatalf("seen=%v", chroma.PriceSeenAt)
	}
	if chroma.NameSource != internal.NameFromMarket {
		t.Fatalf("source=%s", chroma.NameSource)
	}
	if loaded[1].Price != nil {
		t.Fatalf("gamma price=%v", *loaded[1].Price)
	}
}

func TestSaveSnapshotRequiresKey(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveSnapshot([]internal.CaseRecord{{Name: "???"}}); err == nil {
		t.Fatal("expected error for record without key")
	}
}

func TestPlannerLines(t *testing.T) {
	db := openTestDB(t)

	if err := db.AddPlannerLine("chromacase", "Chroma Case", 2); err != nil {
		t.Fatal(err)
	}
	if err := db.AddPlannerLine("chromacase", "Chroma Case", 3); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPlannerLine("gammacase", "Gamma Case", 1); err != nil {
		t.Fatal(err)
	}
	if err := db.AddPlannerLine("gammacase", "Gamma Case", -1); err == nil {
		t.Fatal("expected error for negative quantity")
	}

	lines, err := db.ListPlannerLines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines=%+v", lines)
	}
	byKey := map[string]int{}
	for _, l := range lines {
		byKey[l.NormalizedKey] = l.Quantity
	}
	if byKey["chromacase"] != 5 || byKey["gammacase"] != 1 {
		t.Fatalf("quantities=%v", byKey)
	}

	removed, err := db.RemovePlannerLine("gammacase")
	if err != nil || !removed {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	removed, err = db.RemovePlannerLine("gammacase")
	if err != nil || removed {
		t.Fatalf("second remove=%v err=%v", removed, err)
	}

	if err := db.ClearPlanner(); err != nil {
		t.Fatal(err)
	}
	lines, _ = db.ListPlannerLines()
	if len(lines) != 0 {
		t.Fatalf("lines after clear=%d", len(lines))
	}
}

func TestMetadataSettings(t *testing.T) {
	db := openTestDB(t)

	budget, err := db.MetadataFloat(KeyBudget, 50)
	if err != nil || budget != 50 {
		t.Fatalf("budget=%v err=%v", budget, err)
	}
	if err := db.SetMetadata(KeyBudget, "12.5"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata(KeyKeysOwned, "7"); err != nil {
		t.Fatal(err)
	}
	budget, _ = db.MetadataFloat(KeyBudget, 50)
	keys, _ := db.MetadataInt(KeyKeysOwned, 0)
	if budget != 12.5 || keys != 7 {
		t.Fatalf("budget=%v keys=%d", budget, keys)
	}

	if err := db.SetMetadata(KeyTaxRate, "lots"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MetadataFloat(KeyTaxRate, 0); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRefreshRuns(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRun("abc", "ok", map[string]float64{"totalMs": 1200}, map[string]int{"complete": 40}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertRun("def", "partial", map[string]float64{"totalMs": 900}, map[string]int{"complete": 38}); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].TraceID != "def" || runs[0].Status != "partial" {
		t.Fatalf("runs=%+v", runs)
	}
	if runs[1].Counts["complete"] != 40 || runs[1].Timings["totalMs"] != 1200 {
		t.Fatalf("run=%+v", runs[1])
	}
}
