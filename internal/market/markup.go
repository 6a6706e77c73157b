package market

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"caseplanner/internal"
	"caseplanner/internal/config"
	"caseplanner/internal/httpclient"
	"caseplanner/internal/util"
)

// MarkupClient scrapes the rendered search page. The page carries no item type,
// so the category filter in the query is the only container check.
type MarkupClient struct {
	cfg   config.Config
	http  *httpclient.Client
	pager *Pager
	log   *zap.Logger
}

func NewMarkupClient(cfg config.Config, log *zap.Logger) *MarkupClient {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("market.markup")
	return &MarkupClient{
		cfg:   cfg,
		http:  httpclient.New(httpclient.Options{Source: "market", Timeout: cfg.MarketTimeout(), Attempts: 1}, log),
		pager: NewPager(config.MarketModeMarkup, cfg.MarketMaxPages, NewThrottle(cfg.MarketPageDelay()), log),
		log:   log,
	}
}

func (c *MarkupClient) Mode() string { return config.MarketModeMarkup }

func (c *MarkupClient) FetchListings(ctx context.Context) ([]internal.Listing, Stats, error) {
	return c.pager.Collect(ctx, c.fetchPage)
}

func (c *MarkupClient) pageURL(start int) (string, error) {
	q := url.Values{}
	q.Set("q", c.cfg.MarketQuery)
	q.Set("appid", c.cfg.MarketAppID)
	q[categoryParam(c.cfg.MarketAppID)] = []string{"tag_CSGO_Type_WeaponCase"}
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(c.cfg.MarketHTMLPageSize))
	return withQuery(c.cfg.MarketMarkupURL, q)
}

func (c *MarkupClient) fetchPage(ctx context.Context, start int) (page, error) {
	pageURL, err := c.pageURL(start)
	if err != nil {
		return page{}, err
	}
	body, err := c.http.Get(ctx, pageURL, "text/html")
	if err != nil {
		return page{}, err
	}
	return c.parsePage(body)
}

func (c *MarkupClient) parsePage(body []byte) (page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return page{}, fmt.Errorf("parse search markup: %w", err)
	}

	pg := page{Total: -1, Skipped: map[string]int{}}
	doc.Find(".market_listing_row_link").Each(func(_ int, row *goquery.Selection) {
		pg.Raw++
		listing, reason := c.toListing(row)
		if reason != "" {
			pg.Skipped[reason]++
			c.log.Warn("skipping listing row", zap.String("name", listing.Name), zap.String("reason", reason))
			return
		}
		pg.Listings = append(pg.Listings, listing)
	})

	if total, ok := totalFromMarkup(doc); ok {
		pg.Total = total
	}
	return pg, nil
}

func (c *MarkupClient) toListing(row *goquery.Selection) (internal.Listing, string) {
	name := util.CleanName(row.Find(".market_listing_item_name").First().Text())
	if name == "" {
		return internal.Listing{}, SkipMissingName
	}

	var price *float64
	if raw, ok := row.Find(".normal_price[data-price]").First().Attr("data-price"); ok {
		price = util.ParseCents(raw)
	}
	if price == nil {
		price = util.ParsePrice(row.Find(".normal_price").Last().Text())
	}
	if price == nil {
		return internal.Listing{Name: name}, SkipInvalidPrice
	}

	img := strings.TrimSpace(row.Find("img.market_listing_item_img").First().AttrOr("src", ""))
	if img == "" {
		return internal.Listing{Name: name}, SkipMissingImage
	}

	return internal.Listing{Name: name, Price: *price, ImageURL: UpgradeImageURL(img)}, ""
}

// totalFromMarkup reads the "of N results" counter when the page renders one.
func totalFromMarkup(doc *goquery.Document) (int, bool) {
	text := strings.TrimSpace(doc.Find("#searchResults_total").First().Text())
	if text == "" {
		return 0, false
	}
	text = strings.NewReplacer(",", "", ".", "", " ", "").Replace(text)
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}
