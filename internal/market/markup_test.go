package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const markupPage = `<html><body>
<span id="searchResults_total">3</span>
<a class="market_listing_row_link" href="/market/listings/730/Chroma%20Case">
  <div class="market_listing_row">
    <img class="market_listing_item_img" src="https://cdn.example/chroma/62fx62f">
    <span class="market_listing_item_name">Chroma&nbsp;Case</span>
    <span class="normal_price" data-price="290" data-currency="1">$2.90 USD</span>
  </div>
</a>
<a class="market_listing_row_link" href="/market/listings/730/Prisma%20Case">
  <div class="market_listing_row">
    <img class="market_listing_item_img" src="https://cdn.example/prisma/62fx62f">
    <span class="market_listing_item_name">Prisma Case</span>
    <span class="normal_price">Starting at: <span class="normal_price">$1,234.50 USD</span></span>
  </div>
</a>
</body></html>`

const markupLastPage = `<html><body>
<a class="market_listing_row_link">
  <div class="market_listing_row">
    <span class="market_listing_item_name">Imageless Case</span>
    <span class="normal_price" data-price="100">$1.00</span>
  </div>
</a>
</body></html>`

func TestMarkupClientParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/search", r.URL.Path)
		switch r.URL.Query().Get("start") {
		case "0":
			_, _ = fmt.Fprint(w, markupPage)
		case "2":
			_, _ = fmt.Fprint(w, markupLastPage)
		default:
			_, _ = fmt.Fprint(w, `<html><body>No listings</body></html>`)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MarketMaxPages = 10
	client := NewMarkupClient(cfg, zap.NewNop())
	listings, stats, err := client.FetchListings(context.Background())
	require.NoError(t, err)

	require.Len(t, listings, 2)
	assert.Equal(t, "Chroma Case", listings[0].Name)
	assert.Equal(t, 2.90, listings[0].Price)
	assert.Equal(t, "https://cdn.example/chroma/360fx360f", listings[0].ImageURL)
	assert.Equal(t, "Prisma Case", listings[1].Name)
	assert.Equal(t, 1234.50, listings[1].Price)

	assert.Equal(t, 3, stats.TotalReported)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 1, stats.Skipped[SkipMissingImage])
	assert.Equal(t, "html", client.Mode())
}

func TestMarkupClientStopsOnEmptyPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = fmt.Fprint(w, `<html><body><div id="searchResultsRows"></div></body></html>`)
	}))
	defer srv.Close()

	listings, stats, err := NewMarkupClient(testConfig(srv.URL), zap.NewNop()).FetchListings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stats.Pages)
}
