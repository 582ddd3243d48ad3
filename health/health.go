// Package health verifies that the pipeline's data stores are up and
// ready for writes. It is health-adjacent tooling for the scheduler,
// unrelated to ingestion correctness.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredTables must exist in the relational store before a run.
var RequiredTables = []string{"products", "product_images", "embeddings"}

// RequiredCollections are the vector-store collections the search side
// consumes. Missing collections are created during the check.
var RequiredCollections = map[string]CollectionSpec{
	"product_images": {VectorSize: 768, Distance: "Cosine"},
	"product_text":   {VectorSize: 768, Distance: "Cosine"},
}

// CollectionSpec describes a vector collection's schema.
type CollectionSpec struct {
	VectorSize int
	Distance   string
}

// PostgresStatus reports the relational store check outcome.
type PostgresStatus struct {
	Version      string
	Tables       []string
	ProductCount int
}

// CheckPostgres connects, verifies the required tables exist, and
// confirms the products table is readable.
func CheckPostgres(ctx context.Context, dsn string) (*PostgresStatus, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	status := &PostgresStatus{}
	if err := pool.QueryRow(ctx, "SELECT version()").Scan(&status.Version); err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		status.Tables = append(status.Tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	var missing []string
	for _, required := range RequiredTables {
		found := false
		for _, table := range status.Tables {
			if table == required {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required tables: %s", strings.Join(missing, ", "))
	}

	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&status.ProductCount); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	return status, nil
}

// VectorStoreStatus reports the vector store check outcome.
type VectorStoreStatus struct {
	Version     string
	Collections []string
	Created     []string
}

// CheckVectorStore probes readiness, lists collections, and creates
// any required collection that is missing.
func CheckVectorStore(ctx context.Context, baseURL string, client *http.Client) (*VectorStoreStatus, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if err := expectOK(ctx, client, baseURL+"/readyz"); err != nil {
		return nil, fmt.Errorf("vector store not ready: %w", err)
	}

	status := &VectorStoreStatus{}
	var info struct {
		Version string `json:"version"`
	}
	if err := getJSON(ctx, client, baseURL+"/", &info); err != nil {
		return nil, fmt.Errorf("query vector store info: %w", err)
	}
	status.Version = info.Version

	existing, err := listCollections(ctx, client, baseURL)
	if err != nil {
		return nil, err
	}
	status.Collections = existing

	for name, spec := range RequiredCollections {
		found := false
		for _, collection := range existing {
			if collection == name {
				found = true
				break
			}
		}
		if found {
			continue
		}
		if err := createCollection(ctx, client, baseURL, name, spec); err != nil {
			return nil, err
		}
		status.Created = append(status.Created, name)
	}
	return status, nil
}

// ListCollections returns the collection names currently present.
func ListCollections(ctx context.Context, baseURL string, client *http.Client) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return listCollections(ctx, client, strings.TrimSuffix(baseURL, "/"))
}

func listCollections(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	var payload struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := getJSON(ctx, client, baseURL+"/collections", &payload); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(payload.Result.Collections))
	for _, collection := range payload.Result.Collections {
		names = append(names, collection.Name)
	}
	return names, nil
}

func createCollection(ctx context.Context, client *http.Client, baseURL, name string, spec CollectionSpec) error {
	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     spec.VectorSize,
			"distance": spec.Distance,
		},
	})
	if err != nil {
		return fmt.Errorf("encode collection spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, baseURL+"/collections/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create collection %s: http status %d", name, resp.StatusCode)
	}
	return nil
}

func expectOK(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
