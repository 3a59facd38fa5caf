// Package config loads service settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/embedding"
	"github.com/m1520n/rag-chatbot/engine/search"
)

type HTTPConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// CatalogConfig selects where product records are read from.
type CatalogConfig struct {
	Backend    string `yaml:"backend"` // sqlite or neo4j
	SQLitePath string `yaml:"sqlite_path"`
	BaseURL    string `yaml:"base_url"`
	Seller     string `yaml:"seller"`
}

type Neo4jConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// IndexConfig selects the vector store.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // qdrant or memory
	QdrantAddr string `yaml:"qdrant_addr"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
}

// NATSConfig is optional; an empty URL disables events and the embedding cache.
type NATSConfig struct {
	URL         string `yaml:"url"`
	CacheBucket string `yaml:"cache_bucket"`
}

type OllamaConfig struct {
	URL        string        `yaml:"url"`
	EmbedModel string        `yaml:"embed_model"`
	ChatModel  string        `yaml:"chat_model"`
	Timeout    time.Duration `yaml:"timeout"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
}

type SearchConfig struct {
	Weights     embedding.Weights `yaml:"weights"`
	Thresholds  search.Thresholds `yaml:"thresholds"`
	Limit       int               `yaml:"limit"`
	MaxParallel int               `yaml:"max_parallel"`
}

type Config struct {
	HTTP       HTTPConfig           `yaml:"http"`
	Catalog    CatalogConfig        `yaml:"catalog"`
	Neo4j      Neo4jConfig          `yaml:"neo4j"`
	Index      IndexConfig          `yaml:"index"`
	NATS       NATSConfig           `yaml:"nats"`
	Ollama     OllamaConfig         `yaml:"ollama"`
	Search     SearchConfig         `yaml:"search"`
	Categories domain.CategoryTable `yaml:"categories"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{Port: "8080", CORSOrigin: "*"},
		Catalog: CatalogConfig{
			Backend:    "sqlite",
			SQLitePath: "data/catalog.db",
			BaseURL:    "https://aikondistribution.com/products",
			Seller:     "Aikon Distribution",
		},
		Neo4j: Neo4jConfig{URL: "neo4j://localhost:7687", User: "neo4j", Password: "password"},
		Index: IndexConfig{Backend: "qdrant", QdrantAddr: "localhost:6334", Collection: "products", Dimensions: 768},
		NATS:  NATSConfig{CacheBucket: "embeddings"},
		Ollama: OllamaConfig{
			URL:        "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3.2",
			Timeout:    2 * time.Minute,
			RPS:        20,
			Burst:      8,
		},
		Search: SearchConfig{
			Weights:     embedding.DefaultWeights(),
			Thresholds:  search.DefaultThresholds(),
			Limit:       10,
			MaxParallel: 4,
		},
		Categories: domain.DefaultCategoryTable(),
	}
}

// Load builds the configuration. A missing file at path leaves the defaults
// in place; an empty path skips the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = domain.DefaultCategoryTable()
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.HTTP.Port = envOr("PORT", c.HTTP.Port)
	c.HTTP.CORSOrigin = envOr("CORS_ORIGIN", c.HTTP.CORSOrigin)
	c.Catalog.Backend = envOr("CATALOG_BACKEND", c.Catalog.Backend)
	c.Catalog.SQLitePath = envOr("SQLITE_PATH", c.Catalog.SQLitePath)
	c.Catalog.BaseURL = envOr("BASE_URL", c.Catalog.BaseURL)
	c.Neo4j.URL = envOr("NEO4J_URL", c.Neo4j.URL)
	c.Neo4j.User = envOr("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Password = envOr("NEO4J_PASS", c.Neo4j.Password)
	c.Index.Backend = envOr("INDEX_BACKEND", c.Index.Backend)
	c.Index.QdrantAddr = envOr("QDRANT_URL", c.Index.QdrantAddr)
	c.Index.Collection = envOr("QDRANT_COLLECTION", c.Index.Collection)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Ollama.EmbedModel = envOr("OLLAMA_EMBED_MODEL", c.Ollama.EmbedModel)
	c.Ollama.ChatModel = envOr("OLLAMA_MODEL", c.Ollama.ChatModel)

	if v := os.Getenv("VECTOR_DIMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: VECTOR_DIMS: %w", err)
		}
		c.Index.Dimensions = n
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if err := c.Search.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Search.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Search.Limit <= 0 {
		errs = append(errs, fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit))
	}
	switch c.Catalog.Backend {
	case "sqlite", "neo4j":
	default:
		errs = append(errs, fmt.Errorf("catalog.backend %q is not sqlite or neo4j", c.Catalog.Backend))
	}
	switch c.Index.Backend {
	case "memory":
	case "qdrant":
		if c.Index.Dimensions <= 0 {
			errs = append(errs, fmt.Errorf("index.dimensions must be positive, got %d", c.Index.Dimensions))
		}
	default:
		errs = append(errs, fmt.Errorf("index.backend %q is not qdrant or memory", c.Index.Backend))
	}
	if c.Catalog.BaseURL == "" {
		errs = append(errs, errors.New("catalog.base_url is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
