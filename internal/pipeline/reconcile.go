package pipeline

import (
	"sort"
	"strings"
	"time"

	"caseplanner/internal"
	"caseplanner/internal/util"
)

// Snapshot is an immutable view of every known case keyed by normalized name.
// Values handed out are copies; pointer fields are never mutated in place.
type Snapshot struct {
	records map[string]internal.CaseRecord
}

// NewSnapshot builds a snapshot from stored records. Records without a key get
// one derived from their name; records whose name yields no key are dropped.
func NewSnapshot(records []internal.CaseRecord) Snapshot {
	m := make(map[string]internal.CaseRecord, len(records))
	for _, rec := range records {
		if rec.NormalizedKey == "" {
			rec.NormalizedKey = util.NormalizeCaseName(rec.Name)
		}
		if rec.NormalizedKey == "" {
			continue
		}
		m[rec.NormalizedKey] = rec
	}
	return Snapshot{records: m}
}

func (s Snapshot) Len() int { return len(s.records) }

func (s Snapshot) Get(key string) (internal.CaseRecord, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// Lookup resolves a user-entered name against the snapshot.
func (s Snapshot) Lookup(name string) (internal.CaseRecord, bool) {
	return s.Get(util.NormalizeCaseName(name))
}

// All returns every record, incomplete ones included, ordered by key.
func (s Snapshot) All() []internal.CaseRecord {
	out := make([]internal.CaseRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedKey < out[j].NormalizedKey })
	return out
}

// Complete returns the records eligible for planning, ordered by name.
func (s Snapshot) Complete() []internal.CaseRecord {
	out := make([]internal.CaseRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Complete() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessByName(out[i], out[j]) })
	return out
}

type mergeStats struct {
	NewKeys     int
	UpdatedKeys int
}

// Merge folds one refresh pass into prior. Keys are never removed. A field
// the pass did not observe keeps its prior value, and a market name is never
// replaced by a metadata name.
func Merge(prior Snapshot, meta map[string]internal.MetadataEntry, listings []internal.Listing) Snapshot {
	next, _ := merge(prior, meta, listings, time.Time{})
	return next
}

func merge(prior Snapshot, meta map[string]internal.MetadataEntry, listings []internal.Listing, seenAt time.Time) (Snapshot, mergeStats) {
	working := buildWorkingSet(meta, listings, seenAt)

	out := make(map[string]internal.CaseRecord, len(prior.records)+len(working))
	for key, rec := range prior.records {
		out[key] = rec
	}

	var stats mergeStats
	for key, rec := range working {
		old, ok := out[key]
		if !ok {
			out[key] = rec
			stats.NewKeys++
			continue
		}
		out[key] = overlay(old, rec)
		stats.UpdatedKeys++
	}
	return Snapshot{records: out}, stats
}

func buildWorkingSet(meta map[string]internal.MetadataEntry, listings []internal.Listing, seenAt time.Time) map[string]internal.CaseRecord {
	working := make(map[string]internal.CaseRecord, len(meta)+len(listings))

	for key, entry := range meta {
		if key == "" {
			key = util.NormalizeCaseName(entry.OriginalName)
		}
		if key == "" {
			continue
		}
		rec := internal.CaseRecord{
			Name:          entry.OriginalName,
			NameSource:    internal.NameFromMetadata,
			NormalizedKey: key,
			ROI:           util.FloatPtr(entry.ROI),
			KeyCost:       entry.KeyCost,
		}
		if entry.ImageURL != "" {
			rec.MetadataImageURL = util.StringPtr(entry.ImageURL)
		}
		working[key] = rec
	}

	for _, l := range listings {
		key := util.NormalizeCaseName(l.Name)
		if key == "" {
			continue
		}
		rec, ok := working[key]
		if !ok {
			rec = internal.CaseRecord{NormalizedKey: key}
		}
		rec.Name = l.Name
		rec.NameSource = internal.NameFromMarket
		rec.Price = util.FloatPtr(l.Price)
		if l.ImageURL != "" {
			rec.MarketImageURL = util.StringPtr(l.ImageURL)
		}
		if !seenAt.IsZero() {
			ts := seenAt
			rec.PriceSeenAt = &ts
		}
		working[key] = rec
	}
	return working
}

func overlay(old, next internal.CaseRecord) internal.CaseRecord {
	out := old
	if next.Name != "" && (next.NameSource == internal.NameFromMarket || old.NameSource != internal.NameFromMarket) {
		out.Name = next.Name
		out.NameSource = next.NameSource
	}
	if next.Price != nil {
		out.Price = next.Price
		if next.PriceSeenAt != nil {
			out.PriceSeenAt = next.PriceSeenAt
		}
	}
	if next.ROI != nil {
		out.ROI = next.ROI
	}
	if next.KeyCost != nil {
		out.KeyCost = next.KeyCost
	}
	if next.MetadataImageURL != nil {
		out.MetadataImageURL = next.MetadataImageURL
	}
	if next.MarketImageURL != nil {
		out.MarketImageURL = next.MarketImageURL
	}
	return out
}

func lessByName(a, b internal.CaseRecord) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.NormalizedKey < b.NormalizedKey
}
