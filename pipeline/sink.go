package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-catalog-ingest/models"
)

// JSONSink writes one structured file per category to a local
// directory: {dir}/{category}_catalog.json with the full record and
// error lists for that category.
type JSONSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONSink ensures the output directory exists.
func NewJSONSink(dir string) (*JSONSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	return &JSONSink{dir: dir}, nil
}

// WriteCategory serializes a category result to its file.
func (s *JSONSink) WriteCategory(result *models.CategoryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, result.Category+"_catalog.json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode category %s: %w", result.Category, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
