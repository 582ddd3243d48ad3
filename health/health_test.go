package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// vectorStoreStub emulates the subset of the Qdrant HTTP API the check
// touches: readiness, instance info, collection listing and creation.
type vectorStoreStub struct {
	mu          sync.Mutex
	ready       bool
	collections map[string]map[string]any
	created     []string
}

func newVectorStoreStub(existing ...string) *vectorStoreStub {
	s := &vectorStoreStub{ready: true, collections: make(map[string]map[string]any)}
	for _, name := range existing {
		s.collections[name] = nil
	}
	return s
}

func (s *vectorStoreStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"version": "1.9.0"})
	})
	mux.HandleFunc("/collections", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		names := make([]map[string]string, 0, len(s.collections))
		for name := range s.collections {
			names = append(names, map[string]string{"name": name})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"collections": names},
		})
	})
	mux.HandleFunc("/collections/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/collections/")
		var payload struct {
			Vectors map[string]any `json:"vectors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.collections[name] = payload.Vectors
		s.created = append(s.created, name)
	})
	return mux
}

func TestCheckVectorStoreCreatesMissingCollections(t *testing.T) {
	stub := newVectorStoreStub("product_images")
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	status, err := CheckVectorStore(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if status.Version != "1.9.0" {
		t.Errorf("version = %q", status.Version)
	}
	if len(status.Collections) != 1 || status.Collections[0] != "product_images" {
		t.Errorf("existing collections = %v", status.Collections)
	}
	if len(status.Created) != 1 || status.Created[0] != "product_text" {
		t.Fatalf("created = %v, want [product_text]", status.Created)
	}

	spec := stub.collections["product_text"]
	if spec == nil {
		t.Fatalf("product_text was not created on the server")
	}
	if size, ok := spec["size"].(float64); !ok || size != 768 {
		t.Errorf("vector size = %v, want 768", spec["size"])
	}
	if spec["distance"] != "Cosine" {
		t.Errorf("distance = %v, want Cosine", spec["distance"])
	}
}

func TestCheckVectorStoreAllPresent(t *testing.T) {
	stub := newVectorStoreStub("product_images", "product_text")
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	status, err := CheckVectorStore(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(status.Created) != 0 {
		t.Fatalf("created = %v, want none", status.Created)
	}
	if len(status.Collections) != 2 {
		t.Fatalf("collections = %v, want 2 entries", status.Collections)
	}
}

func TestCheckVectorStoreNotReady(t *testing.T) {
	stub := newVectorStoreStub()
	stub.ready = false
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	if _, err := CheckVectorStore(context.Background(), srv.URL, srv.Client()); err == nil {
		t.Fatalf("expected error for unready store")
	} else if !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("error = %v, want readiness failure", err)
	}
}

func TestCheckVectorStoreCreateFailure(t *testing.T) {
	stub := newVectorStoreStub()
	base := stub.handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		base.ServeHTTP(w, r)
	}))
	defer srv.Close()

	_, err := CheckVectorStore(context.Background(), srv.URL, srv.Client())
	if err == nil {
		t.Fatalf("expected error when collection creation fails")
	}
	if !strings.Contains(err.Error(), "create collection") {
		t.Fatalf("error = %v, want creation failure", err)
	}
}

func TestListCollections(t *testing.T) {
	stub := newVectorStoreStub("alpha", "beta")
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	names, err := ListCollections(context.Background(), srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}
}

func TestListCollectionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := ListCollections(context.Background(), srv.URL, srv.Client()); err == nil {
		t.Fatalf("expected error")
	} else if !strings.Contains(err.Error(), fmt.Sprintf("%d", http.StatusInternalServerError)) {
		t.Fatalf("error = %v, want status in message", err)
	}
}
