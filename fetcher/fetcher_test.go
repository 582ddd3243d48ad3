package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-catalog-ingest/config"
)

func newTestFetcher(t *testing.T, mutate func(*config.Config)) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RequestDelay = 0
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	f := New(cfg, NewMetrics())
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

func TestFetchReturnsBody(t *testing.T) {
	f, transport := newTestFetcher(t, nil)
	transport.RegisterResponder("GET", "http://example.test/products/heels",
		httpmock.NewStringResponder(http.StatusOK, "<html>ok</html>"))

	body, err := f.Fetch(context.Background(), "http://example.test/products/heels")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	tests := []struct {
		status int
		label  string
	}{
		{status: http.StatusForbidden, label: "forbidden"},
		{status: http.StatusNotFound, label: "not_found"},
		{status: http.StatusTooManyRequests, label: "rate_limited"},
		{status: http.StatusInternalServerError, label: "bad_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			f, transport := newTestFetcher(t, nil)
			url := "http://example.test/products/x"
			transport.RegisterResponder("GET", url, httpmock.NewStringResponder(tt.status, ""))

			_, err := f.Fetch(context.Background(), url)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.label {
				t.Fatalf("errorTypeLabel = %q, want %q", got, tt.label)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "bad_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestFetchRespectsConcurrencyCap(t *testing.T) {
	const limit = 3
	f, transport := newTestFetcher(t, func(cfg *config.Config) {
		cfg.Concurrency = limit
	})

	var inFlight, maxInFlight int64
	transport.RegisterResponder("GET", `=~^http://example\.test/products/`,
		func(req *http.Request) (*http.Response, error) {
			current := atomic.AddInt64(&inFlight, 1)
			for {
				observed := atomic.LoadInt64(&maxInFlight)
				if current <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("http://example.test/products/%d", i)
			if _, err := f.Fetch(context.Background(), url); err != nil {
				t.Errorf("fetch %s: %v", url, err)
			}
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got > limit {
		t.Fatalf("max in-flight requests = %d, want <= %d", got, limit)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	f, transport := newTestFetcher(t, nil)
	transport.RegisterResponder("GET", "http://example.test/products/x",
		httpmock.NewStringResponder(http.StatusOK, "ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "http://example.test/products/x"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
