package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"caseplanner/internal"
)

type SortField string

const (
	SortByName  SortField = "name"
	SortByPrice SortField = "price"
	SortByROI   SortField = "roi"
)

func ParseSortField(v string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(v))); f {
	case SortByName, SortByPrice, SortByROI:
		return f, nil
	case "":
		return SortByName, nil
	default:
		return "", fmt.Errorf("unknown sort field: %s", v)
	}
}

// SortRecords returns a sorted copy. Records missing the sort value go last in
// either direction; ties fall back to name order.
func SortRecords(records []internal.CaseRecord, field SortField, desc bool) []internal.CaseRecord {
	out := append([]internal.CaseRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if field == SortByName {
			if desc {
				return lessByName(b, a)
			}
			return lessByName(a, b)
		}

		av, bv := sortValue(a, field), sortValue(b, field)
		switch {
		case av == nil && bv == nil:
			return lessByName(a, b)
		case av == nil:
			return false
		case bv == nil:
			return true
		case *av == *bv:
			return lessByName(a, b)
		case desc:
			return *av > *bv
		default:
			return *av < *bv
		}
	})
	return out
}

func sortValue(rec internal.CaseRecord, field SortField) *float64 {
	switch field {
	case SortByPrice:
		return rec.Price
	case SortByROI:
		return rec.ROI
	default:
		return nil
	}
}
