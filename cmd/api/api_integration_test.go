//go:build integration

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m1520n/rag-chatbot/engine/app"
	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/pkg/config"
)

// TestAPI_AgainstLiveServices needs Ollama (and Qdrant unless
// INDEX_BACKEND=memory) reachable at the configured addresses.
func TestAPI_AgainstLiveServices(t *testing.T) {
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "catalog.db"))
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("services unavailable: %v", err)
	}
	defer a.Close()

	s := &server{chat: a.Assistant, search: a.Searcher, indexer: a.Pipeline, limit: cfg.Search.Limit, log: logger}
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/admin/indexing/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d", resp.StatusCode)
	}
	a.Pipeline.Wait()

	resp, err = http.Get(srv.URL + "/admin/indexing/progress")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	defer resp.Body.Close()
	var st indexing.JobState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != indexing.StatusCompleted {
		t.Fatalf("expected completed, got %+v", st)
	}

	resp, err = http.Post(srv.URL+"/api/search", "application/json", strings.NewReader(`{"query":"garage door"}`))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", resp.StatusCode)
	}
}
