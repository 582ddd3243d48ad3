// Package pipeline drives a full ingestion run: URL discovery, bounded
// concurrent product processing, media upload, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/aluiziolira/go-catalog-ingest/config"
	"github.com/aluiziolira/go-catalog-ingest/fetcher"
	"github.com/aluiziolira/go-catalog-ingest/models"
	"github.com/aluiziolira/go-catalog-ingest/parser"
	"github.com/aluiziolira/go-catalog-ingest/storage"
)

// mediaCacheSize bounds the run-wide cache of already uploaded images.
const mediaCacheSize = 4096

// PageFetcher retrieves raw page or resource bytes.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// URLDiscoverer collects product URLs for one category.
type URLDiscoverer interface {
	DiscoverCategory(ctx context.Context, category string) []string
}

// Uploader persists image bytes and returns an addressable URL.
type Uploader interface {
	Upload(ctx context.Context, sourceURL string, body []byte, key string) models.UploadResult
}

// ProductStore upserts a record with its resolved image URLs.
type ProductStore interface {
	Upsert(ctx context.Context, rec *models.ProductRecord, imageURLs []string) error
}

// CategorySink writes one category's results to a local file.
type CategorySink interface {
	WriteCategory(result *models.CategoryResult) error
}

// Deps are the collaborators a pipeline needs. Everything is injected;
// the pipeline owns no hidden process-wide state.
type Deps struct {
	Fetcher    PageFetcher
	Discoverer URLDiscoverer
	Parser     parser.ProductParser
	Uploader   Uploader
	Store      ProductStore
	Sink       CategorySink
	Metrics    *fetcher.Metrics
}

// Pipeline orchestrates one ingestion run. All collaborators are shared
// read-only across concurrent units; the only mutable state is the
// per-category result accumulator and the media cache, both locked.
type Pipeline struct {
	cfg       *config.Config
	fetcher   PageFetcher
	disc      URLDiscoverer
	parser    parser.ProductParser
	uploader  Uploader
	store     ProductStore
	sink      CategorySink
	metrics   *fetcher.Metrics
	seenMedia *lru.Cache[string, string]
	media     singleflight.Group
}

// New validates the dependency set against the configured output mode
// and builds a pipeline.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	switch cfg.OutputMode {
	case config.OutputLocal:
		if deps.Sink == nil {
			return nil, fmt.Errorf("sink is required in local mode")
		}
	case config.OutputRemote:
		if deps.Uploader == nil {
			return nil, fmt.Errorf("uploader is required in remote mode")
		}
		if deps.Store == nil {
			return nil, fmt.Errorf("store is required in remote mode")
		}
	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.OutputMode)
	}

	seenMedia, err := lru.New[string, string](mediaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create media cache: %w", err)
	}

	return &Pipeline{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		disc:      deps.Discoverer,
		parser:    deps.Parser,
		uploader:  deps.Uploader,
		store:     deps.Store,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		seenMedia: seenMedia,
	}, nil
}

// Run executes one full ingestion pass: discover per category, then
// fan product units out under the shared fetch cap. One unit's failure
// never cancels its siblings.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	run := &models.RunResult{
		RunID:      uuid.NewString(),
		StartTime:  time.Now(),
		Categories: make(map[string]*models.CategoryResult, len(p.cfg.Categories)),
	}

	urlsByCategory := make(map[string][]string, len(p.cfg.Categories))
	for _, category := range p.cfg.Categories {
		urls := p.disc.DiscoverCategory(ctx, category)
		urlsByCategory[category] = urls
		run.URLCount += len(urls)
	}
	slog.Info("product url discovery complete",
		slog.String("run_id", run.RunID),
		slog.Int("urls", run.URLCount),
		slog.Int("categories", len(p.cfg.Categories)),
	)

	for _, category := range p.cfg.Categories {
		result := &models.CategoryResult{Category: category}
		run.Categories[category] = result

		urls := urlsByCategory[category]
		if len(urls) == 0 {
			slog.Info("no products found", slog.String("category", category))
			continue
		}

		// The fetcher's semaphore bounds in-flight requests globally,
		// so every unit can be dispatched at once. Completion order is
		// unordered; the accumulator never assumes arrival order.
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, productURL := range urls {
			wg.Add(1)
			go func(productURL string) {
				defer wg.Done()
				record, errRec := p.processProduct(ctx, category, productURL)
				mu.Lock()
				defer mu.Unlock()
				if errRec != nil {
					result.Errors = append(result.Errors, errRec)
					return
				}
				result.Records = append(result.Records, record)
			}(productURL)
		}
		wg.Wait()

		if p.sink != nil {
			if err := p.sink.WriteCategory(result); err != nil {
				return nil, fmt.Errorf("write category %s: %w", category, err)
			}
		}

		slog.Info("category complete",
			slog.String("category", category),
			slog.Int("persisted", result.Persisted()),
			slog.Int("failed", result.Failed()),
		)
	}

	run.EndTime = time.Now()
	run.ErrorCount = run.TotalFailed()
	return run, nil
}

// processProduct runs the fetch, parse, upload, persist chain for one
// URL and reports either a record or a staged error.
func (p *Pipeline) processProduct(ctx context.Context, category, productURL string) (*models.ProductRecord, *models.ErrorRecord) {
	body, err := p.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, &models.ErrorRecord{
			SourceURL: productURL,
			Stage:     models.StageFetch,
			Message:   err.Error(),
		}
	}

	record, err := p.parser.Parse(body, productURL)
	if err != nil {
		return nil, &models.ErrorRecord{
			SourceURL: productURL,
			Stage:     models.StageParse,
			Message:   err.Error(),
		}
	}
	p.metrics.IncProducts()

	if p.cfg.OutputMode == config.OutputLocal {
		return record, nil
	}

	resolved := p.uploadImages(ctx, category, record)
	if err := p.store.Upsert(ctx, record, resolved); err != nil {
		return nil, &models.ErrorRecord{
			SourceURL: productURL,
			Stage:     models.StagePersist,
			Message:   err.Error(),
		}
	}
	return record, nil
}

// uploadImages fetches and uploads every image of a record, returning
// the destination URLs that succeeded. Failed images are omitted; they
// never block persistence. Images already uploaded this run are served
// from the cache instead of being re-uploaded; a cache miss runs under
// a per-URL singleflight so concurrent products sharing an image wait
// for one upload instead of racing their own.
func (p *Pipeline) uploadImages(ctx context.Context, category string, record *models.ProductRecord) []string {
	resolved := make([]string, 0, len(record.Images))
	for i, imageURL := range record.Images {
		if destination, ok := p.seenMedia.Get(imageURL); ok {
			resolved = append(resolved, destination)
			p.metrics.IncUpload("cached")
			continue
		}

		key := storage.ImageKey(category, record.Title, i)
		destination, err, shared := p.media.Do(imageURL, func() (any, error) {
			body, err := p.fetcher.Fetch(ctx, imageURL)
			if err != nil {
				slog.Warn("image fetch failed",
					slog.String("image_url", imageURL),
					slog.String("product_url", record.SourceURL),
					slog.Any("error", err),
				)
				p.metrics.IncUpload("failed")
				return nil, err
			}

			result := p.uploader.Upload(ctx, imageURL, body, key)
			if !result.Succeeded {
				p.metrics.IncUpload("failed")
				return nil, fmt.Errorf("upload rejected for %s", imageURL)
			}
			p.metrics.IncUpload("succeeded")
			p.seenMedia.Add(imageURL, result.DestinationURL)
			return result.DestinationURL, nil
		})
		if err != nil {
			continue
		}
		if shared {
			p.metrics.IncUpload("cached")
		}
		resolved = append(resolved, destination.(string))
	}
	return resolved
}
