package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/config"
	"caseplanner/internal/httpclient"
	"caseplanner/internal/util"
)

var containerTypes = map[string]struct{}{
	"Container":            {},
	"Base Grade Container": {},
}

// SearchClient pages through the JSON search endpoint (norender=1).
type SearchClient struct {
	cfg   config.Config
	http  *httpclient.Client
	pager *Pager
	log   *zap.Logger
}

type searchResponse struct {
	Success    *bool          `json:"success"`
	Message    string         `json:"message"`
	TotalCount *int           `json:"total_count"`
	Results    []searchResult `json:"results"`
}

type searchResult struct {
	Name             string            `json:"name"`
	SellPrice        any               `json:"sell_price"`
	AssetDescription *assetDescription `json:"asset_description"`
}

type assetDescription struct {
	Type    string `json:"type"`
	IconURL string `json:"icon_url"`
}

func NewSearchClient(cfg config.Config, log *zap.Logger) *SearchClient {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("market.search")
	return &SearchClient{
		cfg:   cfg,
		http:  httpclient.New(httpclient.Options{Source: "market", Timeout: cfg.MarketTimeout(), Attempts: 1}, log),
		pager: NewPager(config.MarketModeSearch, cfg.MarketMaxPages, NewThrottle(cfg.MarketPageDelay()), log),
		log:   log,
	}
}

func (c *SearchClient) Mode() string { return config.MarketModeSearch }

func (c *SearchClient) FetchListings(ctx context.Context) ([]internal.Listing, Stats, error) {
	return c.pager.Collect(ctx, c.fetchPage)
}

func (c *SearchClient) pageURL(start int) (string, error) {
	q := url.Values{}
	q.Set("query", c.cfg.MarketQuery)
	q.Set("appid", c.cfg.MarketAppID)
	q[categoryParam(c.cfg.MarketAppID)] = []string{"tag_CSGO_Type_WeaponCase", "tag_CSGO_Type_Container"}
	q.Set("norender", "1")
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(c.cfg.MarketPageSize))
	return withQuery(c.cfg.MarketSearchURL, q)
}

func (c *SearchClient) fetchPage(ctx context.Context, start int) (page, error) {
	pageURL, err := c.pageURL(start)
	if err != nil {
		return page{}, err
	}
	body, err := c.http.Get(ctx, pageURL, "application/json")
	if err != nil {
		return page{}, err
	}
	return c.parsePage(body)
}

func (c *SearchClient) parsePage(body []byte) (page, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return page{}, fmt.Errorf("decode search page: %w", err)
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "no message"
		}
		return page{}, errors.New("search returned success=false: " + msg)
	}

	pg := page{Raw: len(resp.Results), Total: -1, Skipped: map[string]int{}}
	if resp.TotalCount != nil {
		pg.Total = *resp.TotalCount
	}

	for _, item := range resp.Results {
		listing, reason := c.toListing(item)
		if reason != "" {
			pg.Skipped[reason]++
			if reason == SkipNotContainer {
				c.log.Debug("skipping non-container listing", zap.String("name", item.Name))
			} else {
				c.log.Warn("skipping listing with missing data", zap.String("name", item.Name), zap.String("reason", reason))
			}
			continue
		}
		pg.Listings = append(pg.Listings, listing)
	}
	return pg, nil
}

func (c *SearchClient) toListing(item searchResult) (internal.Listing, string) {
	if item.AssetDescription == nil {
		return internal.Listing{}, SkipNotContainer
	}
	if _, ok := containerTypes[item.AssetDescription.Type]; !ok {
		return internal.Listing{}, SkipNotContainer
	}

	name := util.CleanName(item.Name)
	if name == "" {
		return internal.Listing{}, SkipMissingName
	}
	cents, ok := item.SellPrice.(float64)
	if !ok || cents < 0 || math.IsNaN(cents) || math.IsInf(cents, 0) {
		return internal.Listing{}, SkipInvalidPrice
	}
	icon := strings.TrimSpace(item.AssetDescription.IconURL)
	if icon == "" {
		return internal.Listing{}, SkipMissingImage
	}

	return internal.Listing{
		Name:     name,
		Price:    cents / 100,
		ImageURL: UpgradeImageURL(c.iconURL(icon)),
	}, ""
}

func (c *SearchClient) iconURL(icon string) string {
	if util.IsAbsoluteURL(icon) {
		return icon
	}
	return strings.TrimRight(c.cfg.MarketCDNBaseURL, "/") + "/" + strings.TrimLeft(icon, "/")
}
