// Package models defines data structures for the ingestion pipeline.
package models

import "time"

// Stage identifies the pipeline stage where a unit of work failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageUpload  Stage = "upload"
	StagePersist Stage = "persist"
)

// Financing captures the financing offer shown on a product page.
// PaymentsCount and PaymentAmount are derived from the raw text and
// either may be absent.
type Financing struct {
	RawText       string  `json:"raw_text"`
	PaymentsCount *int    `json:"payments_count"`
	PaymentAmount *string `json:"payment_amount"`
}

// ProductRecord is the structured result of parsing one detail page.
// A record is immutable once produced; missing fields carry documented
// defaults instead of failing the parse.
type ProductRecord struct {
	Title        string     `json:"product_title"`
	Price        string     `json:"product_price"`
	PriceValue   float64    `json:"price_value"`
	Priced       bool       `json:"priced"`
	Images       []string   `json:"product_images"`
	Details      []string   `json:"product_details"`
	Financing    *Financing `json:"financing"`
	PromoTagline *string    `json:"promo_tagline"`
	SizeOptions  []string   `json:"size_options"`
	SourceURL    string     `json:"product_url"`
	ScrapedAt    time.Time  `json:"scraped_at"`
}

// UploadResult reports the outcome of a single image upload. A failed
// upload omits the image from the persisted record and nothing more.
type UploadResult struct {
	SourceURL      string `json:"source_url"`
	DestinationURL string `json:"destination_url,omitempty"`
	Succeeded      bool   `json:"succeeded"`
}

// ErrorRecord is produced instead of a ProductRecord when a stage fails
// unrecoverably for one URL.
type ErrorRecord struct {
	SourceURL string `json:"product_url"`
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
}

// CategoryResult accumulates the outcome of one category within a run.
type CategoryResult struct {
	Category string           `json:"category"`
	Records  []*ProductRecord `json:"records"`
	Errors   []*ErrorRecord   `json:"errors"`
}

// Persisted returns the number of successfully processed products.
func (c *CategoryResult) Persisted() int {
	return len(c.Records)
}

// Failed returns the number of products that produced an ErrorRecord.
func (c *CategoryResult) Failed() int {
	return len(c.Errors)
}

// RunResult holds the overall outcome of one pipeline invocation. It is
// owned by the orchestrator and never persisted as a whole.
type RunResult struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	Categories map[string]*CategoryResult
	URLCount   int
	ErrorCount int
}

// TotalPersisted sums successful records across all categories.
func (r *RunResult) TotalPersisted() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Persisted()
	}
	return total
}

// TotalFailed sums error records across all categories.
func (r *RunResult) TotalFailed() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Failed()
	}
	return total
}
