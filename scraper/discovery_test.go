package scraper

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-catalog-ingest/config"
	"github.com/aluiziolira/go-catalog-ingest/fetcher"
)

func htmlResponder(body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

func newTestDiscoverer(t *testing.T, mutate func(*config.Config)) (*Discoverer, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.MaxPages = 1
	cfg.Concurrency = 2
	cfg.RequestDelay = 0
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	d, err := NewDiscoverer(cfg, fetcher.NewMetrics())
	if err != nil {
		t.Fatalf("new discoverer: %v", err)
	}
	transport := httpmock.NewMockTransport()
	d.WithTransport(transport)
	return d, transport
}

func TestDiscoverCategoryNormalizesAndDedupes(t *testing.T) {
	d, transport := newTestDiscoverer(t, func(cfg *config.Config) {
		cfg.MaxPages = 2
	})

	pageOne := `<html><body>
<a href="/products/red-heels?variant=1">Red Heels</a>
<a href="/products/blue-jacket#detail">Blue Jacket</a>
<a href="/products/red-heels">Red Heels again</a>
<a href="/collections/other">Not a product</a>
</body></html>`
	pageTwo := `<html><body>
<a href="/products/green-skirt">Green Skirt</a>
<a href="/products/blue-jacket">Seen on page one</a>
</body></html>`

	transport.RegisterResponder("GET", d.ListingURL("shoes", 1), htmlResponder(pageOne))
	transport.RegisterResponder("GET", d.ListingURL("shoes", 2), htmlResponder(pageTwo))

	urls := d.DiscoverCategory(context.Background(), "shoes")

	want := []string{
		"http://example.test/products/red-heels",
		"http://example.test/products/blue-jacket",
		"http://example.test/products/green-skirt",
	}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestDiscoverCategoryEmptyPage(t *testing.T) {
	d, transport := newTestDiscoverer(t, nil)
	transport.RegisterResponder("GET", d.ListingURL("shoes", 1),
		htmlResponder("<html><body><p>no products here</p></body></html>"))

	urls := d.DiscoverCategory(context.Background(), "shoes")
	if len(urls) != 0 {
		t.Fatalf("urls = %v, want empty", urls)
	}
}

func TestDiscoverCategoryFailedPageYieldsNothing(t *testing.T) {
	d, transport := newTestDiscoverer(t, nil)
	transport.RegisterResponder("GET", d.ListingURL("shoes", 1),
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	urls := d.DiscoverCategory(context.Background(), "shoes")
	if len(urls) != 0 {
		t.Fatalf("urls = %v, want empty", urls)
	}
}

func TestDiscoverCategoryRespectsPerPageLimit(t *testing.T) {
	d, transport := newTestDiscoverer(t, func(cfg *config.Config) {
		cfg.LimitPerPage = 2
	})

	page := `<html><body>
<a href="/products/one">1</a>
<a href="/products/two">2</a>
<a href="/products/three">3</a>
</body></html>`
	transport.RegisterResponder("GET", d.ListingURL("shoes", 1), htmlResponder(page))

	urls := d.DiscoverCategory(context.Background(), "shoes")
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2 entries", urls)
	}
	if urls[0] != "http://example.test/products/one" || urls[1] != "http://example.test/products/two" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}
