package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"caseplanner/internal/config"
	"caseplanner/internal/httpclient"
	"caseplanner/internal/util"
)

var itemInfoPattern = regexp.MustCompile(`(?s)var g_rgItemInfo = (\{.*?\});`)

// ListingClient reads the lowest asking price of one item from its listing page.
type ListingClient struct {
	cfg  config.Config
	http *httpclient.Client
	log  *zap.Logger
}

func NewListingClient(cfg config.Config, log *zap.Logger) *ListingClient {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("market.listing")
	return &ListingClient{
		cfg:  cfg,
		http: httpclient.New(httpclient.Options{Source: "market", Timeout: cfg.MarketTimeout(), Attempts: 1}, log),
		log:  log,
	}
}

func (c *ListingClient) listingURL(name string) string {
	return strings.TrimRight(c.cfg.MarketListingURL, "/") + "/" + c.cfg.MarketAppID + "/" + url.PathEscape(name)
}

// LookupPrice returns nil without error when the page carries no price.
func (c *ListingClient) LookupPrice(ctx context.Context, name string) (*float64, error) {
	name = util.CleanName(name)
	if name == "" {
		return nil, fmt.Errorf("listing lookup: empty name")
	}
	body, err := c.http.Get(ctx, c.listingURL(name), "text/html")
	if err != nil {
		return nil, fmt.Errorf("listing lookup %q: %w", name, err)
	}
	return c.parsePrice(name, body)
}

func (c *ListingClient) parsePrice(name string, body []byte) (*float64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, "var g_rgItemInfo") {
			script = text
			return false
		}
		return true
	})
	if script != "" {
		if price, ok := c.priceFromItemInfo(name, script); ok {
			return price, nil
		}
	}

	text := doc.Find(".market_listing_price.market_listing_price_with_fee").First().Text()
	if price := util.ParsePrice(text); price != nil {
		return price, nil
	}
	c.log.Debug("no price on listing page", zap.String("name", name))
	return nil, nil
}

func (c *ListingClient) priceFromItemInfo(name, script string) (*float64, bool) {
	m := itemInfoPattern.FindStringSubmatch(script)
	if len(m) < 2 {
		return nil, false
	}
	var info map[string]struct {
		LowestPrice string `json:"lowest_price"`
	}
	if err := json.Unmarshal([]byte(m[1]), &info); err != nil {
		c.log.Warn("failed to decode item info", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	for _, item := range info {
		if price := util.ParsePrice(item.LowestPrice); price != nil {
			return price, true
		}
	}
	return nil, false
}
