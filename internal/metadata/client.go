// Package metadata reads the bulk ROI feed: one JSON array of tracked cases
// with their expected return, key cost and artwork.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/config"
	"caseplanner/internal/httpclient"
	"caseplanner/internal/util"
)

type Stats struct {
	Total    int
	Accepted int
	Skipped  int
}

type Client struct {
	url    string
	origin string
	http   *httpclient.Client
	log    *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("metadata")
	return &Client{
		url:    cfg.MetadataURL,
		origin: strings.TrimRight(cfg.MetadataOrigin, "/"),
		http: httpclient.New(httpclient.Options{
			Source:   "metadata",
			Timeout:  cfg.MetadataTimeout(),
			Attempts: cfg.MetadataAttempts,
		}, log),
		log: log,
	}
}

// Fetch downloads the feed and returns entries keyed by normalized name. Any
// failure yields an empty map and an error wrapping internal.ErrSourceUnavailable;
// the caller is expected to carry on without ROI data.
func (c *Client) Fetch(ctx context.Context) (map[string]internal.MetadataEntry, Stats, error) {
	out := map[string]internal.MetadataEntry{}

	body, err := c.http.Get(ctx, c.url, "application/json")
	if err != nil {
		return out, Stats{}, unavailable(err)
	}

	entries, stats, err := c.Parse(body)
	if err != nil {
		return out, stats, unavailable(err)
	}

	c.log.Info("metadata feed processed",
		zap.Int("total", stats.Total),
		zap.Int("accepted", stats.Accepted),
		zap.Int("skipped", stats.Skipped))
	return entries, stats, nil
}

// Parse validates a raw feed payload. Descriptors without a name, an image or
// a finite ROI are skipped and counted.
func (c *Client) Parse(body []byte) (map[string]internal.MetadataEntry, Stats, error) {
	out := map[string]internal.MetadataEntry{}
	stats := Stats{}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return out, stats, fmt.Errorf("decode metadata feed: %w", err)
	}
	items, ok := payload.([]any)
	if !ok {
		return out, stats, errors.New("metadata feed is not an array")
	}

	for _, raw := range items {
		stats.Total++
		entry, err := c.toEntry(raw)
		if err != nil {
			stats.Skipped++
			c.log.Warn("metadata item skipped", zap.Error(err))
			continue
		}
		key := util.NormalizeCaseName(entry.OriginalName)
		if key == "" {
			stats.Skipped++
			c.log.Warn("metadata item skipped", zap.String("name", entry.OriginalName), zap.String("reason", "empty key"))
			continue
		}
		out[key] = entry
	}
	stats.Accepted = len(out)
	return out, stats, nil
}

func (c *Client) toEntry(raw any) (internal.MetadataEntry, error) {
	item, ok := raw.(map[string]any)
	if !ok {
		return internal.MetadataEntry{}, fmt.Errorf("%w: descriptor is not an object", internal.ErrMalformedRecord)
	}

	name, _ := item["Name"].(string)
	name = util.CleanName(name)
	image, _ := item["Image"].(string)
	image = strings.TrimSpace(image)
	if name == "" || image == "" {
		return internal.MetadataEntry{}, fmt.Errorf("%w: missing Name or Image (name=%q)", internal.ErrMalformedRecord, name)
	}

	roi, ok := toFloat(item["SteamROI"])
	if !ok {
		return internal.MetadataEntry{}, fmt.Errorf("%w: invalid SteamROI %v for %q", internal.ErrMalformedRecord, item["SteamROI"], name)
	}

	var keyCost *float64
	if v, ok := toFloat(item["KeyCostSteam"]); ok && v >= 0 {
		keyCost = util.FloatPtr(v)
	}

	return internal.MetadataEntry{
		OriginalName: name,
		ROI:          roi,
		KeyCost:      keyCost,
		ImageURL:     c.NormalizeImageURL(image),
	}, nil
}

// NormalizeImageURL makes a feed image reference absolute. The feed sometimes
// carries the origin twice ("https://hosthttps://host/..."); the duplicate is
// dropped.
func (c *Client) NormalizeImageURL(image string) string {
	doubled := c.origin + "http"
	if strings.HasPrefix(image, doubled) {
		image = strings.TrimPrefix(image, c.origin)
	}
	if util.IsAbsoluteURL(image) {
		return image
	}
	if !strings.HasPrefix(image, "/") {
		image = "/" + image
	}
	return c.origin + image
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func unavailable(err error) error {
	if errors.Is(err, internal.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: metadata: %w", internal.ErrSourceUnavailable, err)
}
