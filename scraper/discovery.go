// Package scraper discovers product detail URLs from paginated
// category listing pages.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-catalog-ingest/config"
	"github.com/aluiziolira/go-catalog-ingest/fetcher"
	"github.com/aluiziolira/go-catalog-ingest/parser"
)

const ctxKeyPageURLs = "page_urls"

// Discoverer crawls listing pages for a category and collects
// normalized product URLs. The collector enforces the same parallelism
// and delay the product-fetch phase runs under; the two phases never
// overlap within a run.
type Discoverer struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *fetcher.Metrics

	handlersOnce sync.Once
}

// NewDiscoverer builds a discoverer configured from cfg.
func NewDiscoverer(cfg *config.Config, metrics *fetcher.Metrics) (*Discoverer, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
		Delay:       cfg.RequestDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	d := &Discoverer{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
	}
	d.configureHandlers()
	return d, nil
}

// WithTransport swaps the collector transport. Used by tests.
func (d *Discoverer) WithTransport(rt http.RoundTripper) {
	d.collector.WithTransport(rt)
}

// pageURLs accumulates product URLs for a single listing page. The
// collector runs async, so appends are serialized with a lock.
type pageURLs struct {
	mu   sync.Mutex
	urls []string
}

func (p *pageURLs) add(u string) {
	p.mu.Lock()
	p.urls = append(p.urls, u)
	p.mu.Unlock()
}

func (p *pageURLs) take(limit int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	deduped := parser.Dedupe(p.urls)
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

func (d *Discoverer) configureHandlers() {
	d.handlersOnce.Do(func() {
		d.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			d.metrics.IncRequest("started")
		})

		d.collector.OnResponse(func(r *colly.Response) {
			if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
				d.metrics.ObserveDuration(time.Since(start))
			}
			d.metrics.IncRequest("completed")
		})

		d.collector.OnError(func(r *colly.Response, err error) {
			pageURL := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				pageURL = r.Request.URL.String()
			}
			// A failed listing page yields an empty URL set; absence of
			// products is a valid outcome at this stage.
			slog.Error("listing page fetch failed",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			d.metrics.IncError("listing")
		})

		d.collector.OnHTML(`a[href^="/products/"]`, func(e *colly.HTMLElement) {
			href := e.Attr("href")
			if href == "" {
				return
			}
			normalized, err := parser.NormalizeProductURL(href, e.Request.URL.String())
			if err != nil {
				slog.Debug("skipping malformed product link",
					slog.String("href", href),
					slog.Any("error", err),
				)
				return
			}
			if acc, ok := e.Request.Ctx.GetAny(ctxKeyPageURLs).(*pageURLs); ok {
				acc.add(normalized)
			}
		})
	})
}

// ListingURL builds the listing page URL for a category and page number.
func (d *Discoverer) ListingURL(category string, page int) string {
	return fmt.Sprintf("%s/collections/%s?division=women&page=%d", d.cfg.BaseURL, category, page)
}

// DiscoverCategory visits every configured page of a category and
// returns the product URLs deduplicated across pages in first-seen
// order. Failed pages contribute nothing; they never fail the category.
func (d *Discoverer) DiscoverCategory(ctx context.Context, category string) []string {
	pages := make([]*pageURLs, 0, d.cfg.MaxPages)
	for page := 1; page <= d.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		acc := &pageURLs{}
		pages = append(pages, acc)

		requestCtx := colly.NewContext()
		requestCtx.Put(ctxKeyPageURLs, acc)
		listingURL := d.ListingURL(category, page)
		if err := d.collector.Request(http.MethodGet, listingURL, nil, requestCtx, nil); err != nil {
			slog.Error("queue listing page",
				slog.String("url", listingURL),
				slog.Any("error", err),
			)
		}
	}
	d.collector.Wait()

	var combined []string
	for _, acc := range pages {
		combined = append(combined, acc.take(d.cfg.LimitPerPage)...)
	}
	return parser.Dedupe(combined)
}
