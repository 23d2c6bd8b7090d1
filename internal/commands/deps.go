package coachrag

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mwiater/coachrag/internal/appconfig"
	"github.com/mwiater/coachrag/internal/llm"
	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/rag"
	"github.com/mwiater/coachrag/internal/storage"
)

// requireConfig returns the loaded configuration or an error when the root
// pre-run did not execute.
func requireConfig() (*appconfig.Config, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return cfg, nil
}

// newClient builds the OpenAI-compatible client. The public endpoint needs a key;
// local compatible servers usually do not.
func newClient(cfg *appconfig.Config) (*llm.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && isOpenAIHost(cfg.BaseURL) {
		return nil, errors.New("apiKey is not set (export OPENAI_API_KEY or set apiKey in the config file)")
	}
	return llm.New(llm.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
		Temperature:    float32(cfg.Temperature),
		Dimension:      cfg.EmbeddingDimension,
		BatchSize:      cfg.EmbedBatchSize,
	}), nil
}

func isOpenAIHost(baseURL string) bool {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(baseURL) == ""
	}
	return strings.EqualFold(u.Hostname(), "api.openai.com")
}

// newEmbedder selects the configured embedding backend.
func newEmbedder(cfg *appconfig.Config) (rag.Embedder, error) {
	if cfg.UsesHashEmbedder() {
		dim := cfg.HashDimension
		if dim <= 0 {
			dim = 256
		}
		return rag.NewHashEmbedder(dim), nil
	}
	return newClient(cfg)
}

func openIndexStore(ctx context.Context, cfg *appconfig.Config) (storage.Store, error) {
	store, err := storage.Open(ctx, cfg.IndexLocation, storage.Options{Region: cfg.AWSRegion})
	if err != nil {
		return nil, fmt.Errorf("open index location: %w", err)
	}
	return store, nil
}

func newIndex(cfg *appconfig.Config, embedder rag.Embedder) (*rag.Index, error) {
	metric, err := rag.ParseMetric(cfg.Similarity)
	if err != nil {
		return nil, err
	}
	return rag.NewIndex(rag.WithMetric(metric), rag.WithEmbeddingModel(embedder.Model())), nil
}

// loadIndex opens the configured location and loads the saved index. A
// location with no index yields an empty index and a warning; questions
// against it fail with rag.ErrEmptyIndex.
func loadIndex(ctx context.Context, cfg *appconfig.Config, embedder rag.Embedder) (*rag.Index, error) {
	idx, err := newIndex(cfg, embedder)
	if err != nil {
		return nil, err
	}
	store, err := openIndexStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(ctx, store); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logging.LogEvent("[RAG] No index at %s. Run `coachrag rag index` first.", store)
			return idx, nil
		}
		return nil, fmt.Errorf("load index from %s: %w", store, err)
	}
	stats := idx.Stats()
	if stats.EmbeddingModel != "" && stats.EmbeddingModel != embedder.Model() {
		logging.LogEvent("[RAG] Index was built with %q but the configured embedder is %q; rebuild it if answers look unrelated.", stats.EmbeddingModel, embedder.Model())
	}
	logging.LogDebug("[RAG] Loaded %d entries (dim %d, %s) from %s", stats.Count, stats.Dimension, stats.Metric, store)
	return idx, nil
}

func newRetriever(cfg *appconfig.Config, idx *rag.Index, embedder rag.Embedder) *rag.Retriever {
	return rag.NewRetriever(idx, embedder, rag.RetrieverConfig{
		TopK:              cfg.TopKOrDefault(),
		ContextTokenLimit: cfg.ContextTokenLimit,
		RequestTimeout:    cfg.RequestTimeout(),
	})
}

// newAssistant loads the index and wires the retriever and generator.
func newAssistant(ctx context.Context, cfg *appconfig.Config) (*rag.Assistant, error) {
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	idx, err := loadIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}
	return rag.NewAssistant(newRetriever(cfg, idx, embedder), generator, rag.AssistantConfig{
		Coaching:       cfg.Coaching,
		RequestTimeout: cfg.RequestTimeout(),
	}), nil
}
