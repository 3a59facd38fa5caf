package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/pkg/config"
)

var vocabulary = []string{"cable", "usb", "charger", "phone", "case", "leather"}

// fakeOllama embeds text as keyword counts and answers chat prompts with a
// fixed extraction or reply.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req struct {
				Prompt string `json:"prompt"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			lower := strings.ToLower(req.Prompt)
			vec := make([]float64, len(vocabulary)+1)
			vec[len(vocabulary)] = 0.05
			for i, word := range vocabulary {
				vec[i] = float64(strings.Count(lower, word))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
		case "/api/chat":
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			content := "<think>plan</think>The USB cable is what you need."
			if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "Extract key information") {
				content = `{"product": "usb cable", "attributes": [], "special_requirements": []}`
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": content}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) config.Config {
	cfg := config.Default()
	cfg.Catalog.SQLitePath = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Index.Backend = "memory"
	cfg.Ollama.URL = ollamaURL
	cfg.Ollama.RPS = 1000
	cfg.Ollama.Burst = 100
	require.NoError(t, cfg.Validate())
	return cfg
}

func seedCatalog(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []domain.ProductRecord{
		{ID: "1", Name: "USB cable", Descriptions: []string{"Braided usb cable", "2m"}, Tags: "cable, usb", Active: true},
		{ID: "2", Name: "Phone case", Descriptions: []string{"Leather phone case", ""}, Tags: "case, leather", Active: true},
		{ID: "3", Name: "Wall charger", Descriptions: []string{"Fast charger", ""}, Tags: "charger", Active: false},
	} {
		require.NoError(t, a.Writer.Insert(ctx, rec))
	}
}

func TestBuildIndexAndSearch(t *testing.T) {
	srv := fakeOllama(t)
	a, err := Build(context.Background(), testConfig(t, srv.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Nil(t, a.NATS)

	seedCatalog(t, a)

	require.NoError(t, a.Pipeline.Start(context.Background()))
	a.Pipeline.Wait()

	st := a.Pipeline.Progress()
	assert.Equal(t, indexing.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Total)
	assert.Empty(t, st.Errors)

	sum, err := a.Pipeline.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalCatalogCount)
	assert.Equal(t, 2, sum.IndexedCount)
	assert.NotNil(t, sum.LastIndexedAt)

	got, err := a.Searcher.SearchText(context.Background(), "usb cable", nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "1", got[0].ID)
	assert.True(t, strings.HasPrefix(got[0].URL, a.Config.Catalog.BaseURL))
}

func TestBuildAssistantEndToEnd(t *testing.T) {
	srv := fakeOllama(t)
	a, err := Build(context.Background(), testConfig(t, srv.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	seedCatalog(t, a)
	require.NoError(t, a.Pipeline.Start(context.Background()))
	a.Pipeline.Wait()

	resp, err := a.Assistant.Reply(context.Background(), "do you have a usb cable?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The USB cable is what you need.", resp.Reply)
	assert.Equal(t, "usb cable", resp.Debug.Extracted.Product)
	require.NotEmpty(t, resp.Debug.ProductsFound)
	assert.Equal(t, "1", resp.Debug.ProductsFound[0].ID)
}

func TestBuildRejectsUnreachableNATS(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.NATS.URL = "nats://127.0.0.1:1"
	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "nats connect")
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, "http://127.0.0.1:1"), nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
