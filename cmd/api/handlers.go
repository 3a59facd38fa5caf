package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/m1520n/rag-chatbot/engine/assistant"
	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/indexing"
)

// historyLimit is how many turns are handed back to the client to resend.
const historyLimit = 10

type chatter interface {
	Reply(ctx context.Context, query string, conv domain.Conversation) (assistant.Response, error)
}

type searcher interface {
	SearchText(ctx context.Context, text string, conv domain.Conversation, limit int) ([]domain.Product, error)
}

type indexer interface {
	Start(ctx context.Context) error
	Stop() bool
	Progress() indexing.JobState
	Status(ctx context.Context) (indexing.Summary, error)
	Cleanup(ctx context.Context) error
	Preview(ctx context.Context, page, perPage int, filters ...domain.CatalogFilter) (indexing.PreviewPage, error)
	PreviewOne(ctx context.Context, id string) (indexing.PreviewItem, error)
	Vectors(ctx context.Context) ([]domain.IndexEntry, error)
}

type server struct {
	chat    chatter
	search  searcher
	indexer indexer
	limit   int
	log     *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/search", s.handleSearch)

	mux.HandleFunc("GET /admin/indexing/status", s.handleStatus)
	mux.HandleFunc("GET /admin/indexing/progress", s.handleProgress)
	mux.HandleFunc("POST /admin/indexing/start", s.handleStart)
	mux.HandleFunc("POST /admin/indexing/stop", s.handleStop)
	mux.HandleFunc("POST /admin/indexing/cleanup", s.handleCleanup)

	mux.HandleFunc("GET /admin/embeddings", s.handlePreview)
	mux.HandleFunc("GET /admin/embeddings/vectors", s.handleVectors)
	mux.HandleFunc("GET /admin/embeddings/{id}", s.handlePreviewOne)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps engine errors onto HTTP statuses. Unexpected errors are logged
// and hidden from the client.
func (s *server) fail(w http.ResponseWriter, op string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrIndexingAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error(op+" failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat. The client keeps the
// conversation and sends it back with every message.
type ChatRequest struct {
	Message      string              `json:"message"`
	Conversation domain.Conversation `json:"conversation,omitempty"`
}

// ChatResponse carries the reply and the updated conversation.
type ChatResponse struct {
	Response     string              `json:"response"`
	Debug        assistant.Debug     `json:"debug_info"`
	Conversation domain.Conversation `json:"conversation"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "no message provided")
		return
	}

	resp, err := s.chat.Reply(r.Context(), req.Message, req.Conversation)
	if err != nil {
		s.fail(w, "chat", err)
		return
	}

	conv := append(req.Conversation,
		domain.Turn{Role: "user", Content: req.Message},
		domain.Turn{Role: "assistant", Content: resp.Reply},
	)
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:     resp.Reply,
		Debug:        resp.Debug,
		Conversation: conv.Last(historyLimit),
	})
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query        string              `json:"query"`
	Limit        int                 `json:"limit,omitempty"`
	Conversation domain.Conversation `json:"conversation,omitempty"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		s.fail(w, "search", err)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = s.limit
	}
	products, err := s.search.SearchText(r.Context(), req.Query, req.Conversation, limit)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sum, err := s.indexer.Status(r.Context())
	if err != nil {
		s.fail(w, "indexing status", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.indexer.Progress())
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Start(r.Context()); err != nil {
		s.fail(w, "indexing start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if !s.indexer.Stop() {
		writeError(w, http.StatusConflict, "indexing is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Cleanup(r.Context()); err != nil {
		s.fail(w, "index cleanup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}
	perPage, err := intParam(q.Get("per_page"), 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}
	var filters []domain.CatalogFilter
	for _, v := range append(q["empty_fields"], q["empty_fields[]"]...) {
		f, ok := domain.ParseCatalogFilter(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown filter "+strconv.Quote(v))
			return
		}
		filters = append(filters, f)
	}

	res, err := s.indexer.Preview(r.Context(), page, perPage, filters...)
	if err != nil {
		s.fail(w, "embedding preview", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handlePreviewOne(w http.ResponseWriter, r *http.Request) {
	item, err := s.indexer.PreviewOne(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, "embedding preview", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// vectorsResponse is the column layout the visualisation page reads.
type vectorsResponse struct {
	Embeddings [][]float32       `json:"embeddings"`
	Metadatas  []domain.Metadata `json:"metadatas"`
	IDs        []string          `json:"ids"`
}

func (s *server) handleVectors(w http.ResponseWriter, r *http.Request) {
	entries, err := s.indexer.Vectors(r.Context())
	if err != nil {
		s.fail(w, "vector export", err)
		return
	}
	out := vectorsResponse{
		Embeddings: make([][]float32, 0, len(entries)),
		Metadatas:  make([]domain.Metadata, 0, len(entries)),
		IDs:        make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		out.Embeddings = append(out.Embeddings, e.Vector)
		out.Metadatas = append(out.Metadatas, e.Metadata)
		out.IDs = append(out.IDs, e.ID)
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
