// Package fetcher issues outbound page and resource requests under a
// global concurrency cap and a fixed inter-request delay.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aluiziolira/go-catalog-ingest/config"
)

// Fetcher is shared read-only across all concurrent units of one run.
// The weighted semaphore is the only rate-limiting state; it bounds
// in-flight requests globally, not per category.
type Fetcher struct {
	client    *http.Client
	limiter   *semaphore.Weighted
	delay     time.Duration
	timeout   time.Duration
	userAgent string
	metrics   *Metrics
}

// New builds a fetcher from cfg. The limiter is constructed here, once
// per run, and shared by every request the fetcher serves.
func New(cfg *config.Config, metrics *Metrics) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Fetcher{
		client:    &http.Client{Transport: transport},
		limiter:   semaphore.NewWeighted(int64(cfg.Concurrency)),
		delay:     cfg.RequestDelay,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
	}
}

// WithTransport swaps the underlying round tripper. Used by tests to
// install a mock transport.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.client.Transport = rt
}

// Fetch retrieves the raw body of url. It blocks until a concurrency
// slot is free, waits the configured delay, then issues the request
// under the configured timeout. A failed fetch is final for that URL in
// a run; callers must treat the error as "skip this unit of work".
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer f.limiter.Release(1)

	// The delay is applied inside the slot so total request rate stays
	// throttled regardless of how many goroutines are queued.
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	f.metrics.IncRequest("started")
	f.metrics.IncInFlight()
	defer f.metrics.DecInFlight()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		classified := classifyError(err, 0)
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}
	defer resp.Body.Close()
	f.metrics.ObserveDuration(time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		classified := classifyError(nil, resp.StatusCode)
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		classified := classifyError(err, 0)
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}

	f.metrics.IncRequest("completed")
	return body, nil
}
