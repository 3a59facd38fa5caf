// Package ollama talks to an Ollama server over its HTTP API for embeddings
// and text generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m1520n/rag-chatbot/pkg/fn"
)

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: %s: status %d: %s", e.Path, e.Code, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	Retry      fn.RetryOpts
}

func DefaultOptions() Options {
	return Options{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		ChatModel:  "llama3.2",
		Timeout:    2 * time.Minute,
		Retry:      fn.DefaultRetry,
	}
}

// Client calls /api/embeddings and /api/chat.
type Client struct {
	opts Options
	http *http.Client
}

func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.Retry.Retryable = retryable
	return &Client{opts: opts, http: &http.Client{Timeout: opts.Timeout}}
}

// EmbedModel names the model used for embeddings.
func (c *Client) EmbedModel() string { return c.opts.EmbedModel }

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: encode %s: %w", path, err)
	}
	_, err = fn.Retry(ctx, c.opts.Retry, func(ctx context.Context) fn.Result[struct{}] {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return fn.Err[struct{}](err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return fn.Err[struct{}](fmt.Errorf("ollama: %s: %w", path, err))
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fn.Err[struct{}](&StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fn.Err[struct{}](fmt.Errorf("ollama: decode %s: %w", path, err))
		}
		return fn.Ok(struct{}{})
	}).Unwrap()
	return err
}
