// Package llm talks to OpenAI-compatible embedding and chat endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/rag"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultBatchSize      = 64
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Temperature    float32
	// Dimension, when set, is the vector length every embedding must have.
	// Otherwise the first response fixes it.
	Dimension  int
	BatchSize  int
	HTTPClient *http.Client
}

// Client implements rag.Embedder and rag.Generator over one OpenAI-compatible API.
type Client struct {
	api  *openai.Client
	host string
	cfg  Config

	mu  sync.Mutex
	dim int
}

var (
	_ rag.Embedder  = (*Client)(nil)
	_ rag.Generator = (*Client)(nil)
)

// New builds a Client. Empty fields fall back to the package defaults.
func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	oaiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oaiCfg.HTTPClient = cfg.HTTPClient
	}

	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &Client{
		api:  openai.NewClientWithConfig(oaiCfg),
		host: host,
		cfg:  cfg,
		dim:  cfg.Dimension,
	}
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.cfg.EmbeddingModel }

// ChatModel returns the generation model name.
func (c *Client) ChatModel() string { return c.cfg.ChatModel }

// Embed returns one vector per text in input order, sending at most
// BatchSize texts per request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logging.LogRequest("outbound", c.host, c.cfg.EmbeddingModel, "embeddings", map[string]int{"inputs": len(texts)})
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, providerError("embedding", err)
	}
	logging.LogRequest("inbound", c.host, c.cfg.EmbeddingModel, "embeddings", map[string]int{"vectors": len(resp.Data)})

	if len(resp.Data) != len(texts) {
		return nil, &rag.ProviderError{Op: "embedding", Retryable: true,
			Err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(resp.Data))}
	}
	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) || vectors[item.Index] != nil {
			return nil, &rag.ProviderError{Op: "embedding", Retryable: true,
				Err: fmt.Errorf("response index %d out of range or repeated", item.Index)}
		}
		vectors[item.Index] = item.Embedding
	}
	for n, vec := range vectors {
		if err := c.checkDimension(n, vec); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (c *Client) checkDimension(n int, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 && len(vec) > 0 {
		c.dim = len(vec)
	}
	if len(vec) == 0 || len(vec) != c.dim {
		return &rag.ProviderError{Op: "embedding", Retryable: false,
			Err: &rag.DimensionMismatchError{Want: c.dim, Got: len(vec), Index: n}}
	}
	return nil
}

// Complete sends a system and user message to the chat model and returns the reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	// The request field is omitempty, so an exact zero would fall back to the server default.
	temperature := c.cfg.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	logging.LogRequest("outbound", c.host, c.cfg.ChatModel, "chat", map[string]int{"messages": len(messages), "chars": len(system) + len(user)})
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", providerError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", &rag.ProviderError{Op: "chat", Retryable: true, Err: errors.New("response has no choices")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	logging.LogRequest("inbound", c.host, c.cfg.ChatModel, "chat", map[string]any{"finish_reason": resp.Choices[0].FinishReason, "chars": len(content)})
	return content, nil
}

func providerError(op string, err error) error {
	return &rag.ProviderError{Op: op, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	}
	return true
}
