package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrCacheMiss is returned by a VectorCache that holds no entry for a key.
var ErrCacheMiss = errors.New("embedding: cache miss")

// VectorCache stores vectors under content-addressed keys.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, error)
	Put(ctx context.Context, key string, v []float32) error
}

// ContentHash is the cache key for text: the hex SHA-256 of the model name and text.
func ContentHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// KVCache keeps vectors in a NATS JetStream key-value bucket.
type KVCache struct {
	bucket jetstream.KeyValue
}

// NewKVCache wraps a bucket.
func NewKVCache(bucket jetstream.KeyValue) *KVCache {
	return &KVCache{bucket: bucket}
}

// OpenKVCache creates or binds the named bucket.
func OpenKVCache(ctx context.Context, js jetstream.JetStream, bucket string) (*KVCache, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "product embedding cache",
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: open kv bucket %s: %w", bucket, err)
	}
	return NewKVCache(kv), nil
}

func (c *KVCache) Get(ctx context.Context, key string) ([]float32, error) {
	entry, err := c.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("embedding: cache get: %w", err)
	}
	var v []float32
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, fmt.Errorf("embedding: cache decode: %w", err)
	}
	return v, nil
}

func (c *KVCache) Put(ctx context.Context, key string, v []float32) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("embedding: cache encode: %w", err)
	}
	if _, err := c.bucket.Put(ctx, key, data); err != nil {
		return fmt.Errorf("embedding: cache put: %w", err)
	}
	return nil
}

// CachedEncoder consults a VectorCache before calling the wrapped encoder.
// Cache failures are logged and never fail an encode.
type CachedEncoder struct {
	next   Encoder
	cache  VectorCache
	model  string
	logger *slog.Logger
}

// NewCachedEncoder wraps next. model namespaces keys so a model change
// never serves stale vectors.
func NewCachedEncoder(next Encoder, cache VectorCache, model string, logger *slog.Logger) *CachedEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEncoder{next: next, cache: cache, model: model, logger: logger}
}

func (e *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(e.model, text)
	v, err := e.cache.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		e.logger.Warn("embedding cache read failed", "err", err)
	}

	v, err = e.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(ctx, key, v); err != nil {
		e.logger.Warn("embedding cache write failed", "err", err)
	}
	return v, nil
}
