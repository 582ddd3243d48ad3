package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-catalog-ingest/models"
)

const upsertProductSQL = `
INSERT INTO products (
	product_title, product_url, product_price,
	product_images, size_options, product_details,
	financing, promo_tagline, image_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (product_url) DO UPDATE SET updated_at = NOW()`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MetadataStore upserts parsed product records keyed by source URL.
// A first-seen URL inserts a row; a previously seen URL only refreshes
// its update timestamp.
type MetadataStore struct {
	pool *pgxpool.Pool
	db   execer
}

// NewMetadataStore connects to Postgres and verifies the connection.
// A failure here aborts the run before any work is dispatched.
func NewMetadataStore(ctx context.Context, dsn string) (*MetadataStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &MetadataStore{pool: pool, db: pool}, nil
}

// Upsert writes one record with its resolved image URLs. Details and
// financing persist as JSONB blobs; images and sizes as text arrays.
// An unpriced record stores NULL for the price. Failure surfaces as a
// persist-stage error for that product only; there is no retry.
func (s *MetadataStore) Upsert(ctx context.Context, rec *models.ProductRecord, imageURLs []string) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("encode details for %s: %w", rec.SourceURL, err)
	}
	financing, err := json.Marshal(rec.Financing)
	if err != nil {
		return fmt.Errorf("encode financing for %s: %w", rec.SourceURL, err)
	}

	var price any
	if rec.Priced {
		price = rec.PriceValue
	}

	_, err = s.db.Exec(ctx, upsertProductSQL,
		rec.Title, rec.SourceURL, price,
		imageURLs, rec.SizeOptions, details,
		financing, rec.PromoTagline, len(imageURLs),
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", rec.SourceURL, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *MetadataStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
