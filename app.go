package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/config"
	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/providers"
	"github.com/itish2003/docrag/providers/gemini"
	"github.com/itish2003/docrag/providers/ollama"
	"github.com/itish2003/docrag/providers/openai"
	"github.com/itish2003/docrag/services"
	"github.com/itish2003/docrag/vectorstore"
	"github.com/itish2003/docrag/vectorstore/chroma"
	"github.com/itish2003/docrag/vectorstore/memory"
	"github.com/itish2003/docrag/vectorstore/pgvector"
	"github.com/itish2003/docrag/vectorstore/qdrant"
	"github.com/itish2003/docrag/vectorstore/sqlite"
)

// capabilities is what every provider client implements.
type capabilities interface {
	providers.Embedder
	providers.ImageDescriber
	providers.Generator
}

// app holds the wired pipeline shared by every command.
type app struct {
	cfg     *config.Config
	index   *services.IndexManager
	ingest  *services.IngestService
	rag     services.RAGService
	folders *services.FolderIndexer
	log     *logrus.Entry
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.Component("APP")

	limiter := providers.NewLimiter(cfg.Models.RequestsPerSecond, cfg.Models.Burst, 0)

	embedClient, err := newCapabilities(ctx, cfg.Models.Embedding, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	visionClient, err := newCapabilities(ctx, cfg.Models.Vision, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	genClient, err := newCapabilities(ctx, cfg.Models.Generation, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	embedder := providers.LimitEmbedder(embedClient, limiter.WithTimeout(cfg.Models.Timeouts.Embed))
	describer := providers.LimitDescriber(visionClient, limiter.WithTimeout(cfg.Models.Timeouts.Vision))
	generator := providers.LimitGenerator(genClient, limiter.WithTimeout(cfg.Models.Timeouts.Generate))

	pdfReader, err := services.NewPDFReader(cfg.Extraction.PDFEngine, cfg.Extraction.UnidocLicenseKey)
	if err != nil {
		return nil, err
	}
	chunker, err := services.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	store, err := newStorage(cfg.Index)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"backend": store.Backend(), "location": store.Location()}).Info("vector store ready")

	extractor := services.NewExtractor(pdfReader, describer, cfg.Extraction.OCRConcurrency, cfg.Models.Timeouts.Vision)
	index := services.NewIndexManager(store, embedder, cfg.Index.EmbedBatchSize)
	ingest := services.NewIngestService(extractor, chunker, index, cfg.Server.TempDir)
	cache := services.NewDocumentCache(cfg.Cache.Path)

	return &app{
		cfg:     cfg,
		index:   index,
		ingest:  ingest,
		rag:     services.NewRAGService(index, generator, cfg.Retrieval.TopK),
		folders: services.NewFolderIndexer(extractor, cache, chunker, index, ingest),
		log:     log,
	}, nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close vector store")
	}
}

func newCapabilities(ctx context.Context, mc config.ModelConfig, models config.ModelsConfig) (capabilities, error) {
	switch mc.Provider {
	case "gemini":
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:         models.GeminiAPIKey,
			EmbeddingModel: mc.Model,
			ChatModel:      mc.Model,
			VisionModel:    mc.Model,
			VisionPrompt:   models.VisionPrompt,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "openai":
		c, err := openai.New(openai.Config{
			APIKey:         models.OpenAIAPIKey,
			BaseURL:        mc.BaseURL,
			EmbeddingModel: mc.Model,
			ChatModel:      mc.Model,
			VisionModel:    mc.Model,
			VisionPrompt:   models.VisionPrompt,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "ollama":
		return ollama.New(&http.Client{}, ollama.Config{
			BaseURL:        mc.BaseURL,
			EmbeddingModel: mc.Model,
			ChatModel:      mc.Model,
			VisionModel:    mc.Model,
			VisionPrompt:   models.VisionPrompt,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

func newStorage(cfg config.IndexConfig) (vectorstore.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.NewStorage(cfg.Path), nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Name,
		})
	case "chroma":
		return chroma.NewStorage(cfg.Chroma.URL, cfg.Name)
	case "pgvector":
		db, err := pgvector.Connect(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return pgvector.NewStorage(db, cfg.Name)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}
