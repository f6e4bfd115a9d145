// Package config loads the service configuration from an optional YAML file,
// a .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/itish2003/docrag/models"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "docrag.yaml"

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr        string `yaml:"addr" validate:"required"`
	MaxUploadMB int    `yaml:"max_upload_mb" validate:"gt=0"`
	TempDir     string `yaml:"temp_dir"`
}

// ModelConfig selects one capability provider.
type ModelConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai ollama"`
	Model    string `yaml:"model" validate:"required"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// TimeoutConfig bounds each remote capability call.
type TimeoutConfig struct {
	Embed    time.Duration `yaml:"embed" validate:"gt=0"`
	Vision   time.Duration `yaml:"vision" validate:"gt=0"`
	Generate time.Duration `yaml:"generate" validate:"gt=0"`
}

// ModelsConfig groups the three capabilities the pipeline consumes.
type ModelsConfig struct {
	Embedding         ModelConfig   `yaml:"embedding"`
	Generation        ModelConfig   `yaml:"generation"`
	Vision            ModelConfig   `yaml:"vision"`
	VisionPrompt      string        `yaml:"vision_prompt"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gt=0"`
	Timeouts          TimeoutConfig `yaml:"timeouts"`
	GeminiAPIKey      string        `yaml:"-"`
	OpenAIAPIKey      string        `yaml:"-"`
}

// ChunkingConfig holds the window policy; overlap must stay below size.
type ChunkingConfig struct {
	Size    int `yaml:"size" validate:"gt=0"`
	Overlap int `yaml:"overlap" validate:"gte=0"`
}

// QdrantConfig holds the gRPC endpoint of a Qdrant server.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
}

// ChromaConfig holds the base URL of a Chroma server.
type ChromaConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig holds the pgvector database connection.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// IndexConfig selects the vector store backend and where it persists.
type IndexConfig struct {
	Backend        string         `yaml:"backend" validate:"required,oneof=sqlite memory qdrant chroma pgvector"`
	Path           string         `yaml:"path" validate:"required_if=Backend sqlite"`
	Name           string         `yaml:"name" validate:"required"`
	EmbedBatchSize int            `yaml:"embed_batch_size" validate:"gt=0"`
	Qdrant         QdrantConfig   `yaml:"qdrant"`
	Chroma         ChromaConfig   `yaml:"chroma"`
	Postgres       PostgresConfig `yaml:"postgres"`
}

// CacheConfig locates the whole-corpus document cache.
type CacheConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// RetrievalConfig tunes the answerer.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" validate:"gt=0"`
}

// ExtractionConfig tunes the content extractor.
type ExtractionConfig struct {
	PDFEngine        string `yaml:"pdf_engine" validate:"oneof=auto unipdf ledongthuc"`
	OCRConcurrency   int    `yaml:"ocr_concurrency" validate:"gt=0"`
	UnidocLicenseKey string `yaml:"-"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Models     ModelsConfig     `yaml:"models"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Index      IndexConfig      `yaml:"index"`
	Cache      CacheConfig      `yaml:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file is present: OpenAI
// models, 500/50 chunks, a local index named faiss_index and k=4 retrieval.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":9000", MaxUploadMB: 32},
		Models: ModelsConfig{
			Embedding:         ModelConfig{Provider: "openai", Model: "text-embedding-3-small"},
			Generation:        ModelConfig{Provider: "openai", Model: "gpt-4o"},
			Vision:            ModelConfig{Provider: "openai", Model: "gpt-4o"},
			VisionPrompt:      "Extract text and describe the image. Languages: Japanese, English, Chinese.",
			RequestsPerSecond: 5,
			Burst:             5,
			Timeouts: TimeoutConfig{
				Embed:    60 * time.Second,
				Vision:   60 * time.Second,
				Generate: 120 * time.Second,
			},
		},
		Chunking: ChunkingConfig{Size: 500, Overlap: 50},
		Index: IndexConfig{
			Backend:        "sqlite",
			Path:           "faiss_index",
			Name:           "documents",
			EmbedBatchSize: 64,
			Qdrant:         QdrantConfig{Host: "localhost", Port: 6334},
			Chroma:         ChromaConfig{URL: "http://localhost:8000"},
		},
		Cache:      CacheConfig{Path: "processed_docs.cache"},
		Retrieval:  RetrievalConfig{TopK: 4},
		Extraction: ExtractionConfig{PDFEngine: "auto", OCRConcurrency: 4},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A missing file at path is not an error; the
// defaults are used instead. Environment variables always win over the file.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints. Chunk window violations are reported as
// models.ErrConfiguration so callers can treat them like the chunker does.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			models.ErrConfiguration, c.Chunking.Overlap, c.Chunking.Size)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("RAG_ADDR", cfg.Server.Addr)
	cfg.Index.Backend = getEnv("RAG_INDEX_BACKEND", cfg.Index.Backend)
	cfg.Index.Path = getEnv("RAG_INDEX_PATH", cfg.Index.Path)
	cfg.Index.Postgres.DSN = getEnv("DATABASE_URL", cfg.Index.Postgres.DSN)
	cfg.Index.Qdrant.Host = getEnv("QDRANT_URL", cfg.Index.Qdrant.Host)
	cfg.Index.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Index.Qdrant.Port)
	cfg.Index.Chroma.URL = getEnv("CHROMA_URL", cfg.Index.Chroma.URL)
	cfg.Cache.Path = getEnv("RAG_CACHE_PATH", cfg.Cache.Path)
	cfg.Chunking.Size = getEnvInt("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)
	cfg.Retrieval.TopK = getEnvInt("TOP_K_RESULTS", cfg.Retrieval.TopK)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Models.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Models.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Extraction.UnidocLicenseKey = os.Getenv("UNIDOC_LICENSE_KEY")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
