// Package market pages through the marketplace search and turns each result
// into a Listing. Two transports exist: the structured JSON search endpoint and
// the rendered HTML search page. Both share Pager, which keeps requests serial
// and spaced by a fixed delay.
package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/config"
)

const (
	SkipNotContainer = "not_container"
	SkipMissingName  = "missing_name"
	SkipInvalidPrice = "invalid_price"
	SkipMissingImage = "missing_image"
)

const highResSegment = "/360fx360f"

var lowResSegments = []string{"/96fx96f", "/62fx62f"}

// Source yields the current marketplace listings for the modeled product line.
type Source interface {
	FetchListings(ctx context.Context) ([]internal.Listing, Stats, error)
	Mode() string
}

type Stats struct {
	Mode           string
	Pages          int
	Fetched        int
	TotalReported  int
	HitPageCeiling bool
	Skipped        map[string]int
}

func (s Stats) SkippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

func NewSource(cfg config.Config, log *zap.Logger) (Source, error) {
	switch cfg.MarketMode {
	case config.MarketModeSearch:
		return NewSearchClient(cfg, log), nil
	case config.MarketModeMarkup:
		return NewMarkupClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported market mode: %s", cfg.MarketMode)
	}
}

// UpgradeImageURL swaps a known low resolution path segment for the high
// resolution one. URLs without such a segment are returned unchanged.
func UpgradeImageURL(raw string) string {
	for _, seg := range lowResSegments {
		if strings.Contains(raw, seg) {
			return strings.Replace(raw, seg, highResSegment, 1)
		}
	}
	return raw
}

func categoryParam(appID string) string {
	return "category_" + appID + "_Type[]"
}

func withQuery(base string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	existing := u.Query()
	for k, vs := range q {
		existing[k] = vs
	}
	u.RawQuery = existing.Encode()
	return u.String(), nil
}
