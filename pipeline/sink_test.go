package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-catalog-ingest/models"
)

func TestJSONSinkWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONSink(dir)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	result := &models.CategoryResult{
		Category: "shoes",
		Records: []*models.ProductRecord{
			{Title: "Red Heels", Price: "$49.99", SourceURL: "http://example.test/products/red-heels"},
		},
		Errors: []*models.ErrorRecord{
			{SourceURL: "http://example.test/products/gone", Stage: models.StageFetch, Message: "timeout"},
		},
	}
	if err := sink.WriteCategory(result); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "shoes_catalog.json"))
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}

	var decoded models.CategoryResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Category != "shoes" {
		t.Errorf("category = %q", decoded.Category)
	}
	if len(decoded.Records) != 1 || decoded.Records[0].Title != "Red Heels" {
		t.Errorf("records = %+v", decoded.Records)
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0].Stage != models.StageFetch {
		t.Errorf("errors = %+v", decoded.Errors)
	}
}

func TestJSONSinkCreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "catalog")
	if _, err := NewJSONSink(dir); err != nil {
		t.Fatalf("new sink: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s, got %v / %v", dir, info, err)
	}
}

func TestJSONSinkEmptyDirRejected(t *testing.T) {
	if _, err := NewJSONSink(""); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
