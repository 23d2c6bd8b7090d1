package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/metrics"
	"github.com/mwiater/coachrag/internal/rag"
)

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	assistant *rag.Assistant
	metrics   *metrics.Aggregator
	maxK      int
}

// NewHandler builds a Handler.
func NewHandler(assistant *rag.Assistant, agg *metrics.Aggregator, maxK int) *Handler {
	return &Handler{assistant: assistant, metrics: agg, maxK: maxK}
}

// AskResponse is the body returned by POST /api/ask.
type AskResponse struct {
	Answer  string       `json:"answer"`
	Sources []rag.Source `json:"sources,omitempty"`
}

// PreviewResponse is the body returned by POST /api/preview.
type PreviewResponse struct {
	Context        string       `json:"context"`
	ContextTokens  int          `json:"context_tokens"`
	SourceCoverage int          `json:"source_coverage"`
	RetrievalMs    int          `json:"retrieval_ms"`
	Sources        []rag.Source `json:"sources"`
}

// Health reports liveness and whether an index is loaded.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "entries": h.assistant.Retriever().Index().Len()})
}

// IndexStats describes the loaded index.
func (h *Handler) IndexStats(c *fiber.Ctx) error {
	return c.JSON(h.assistant.Retriever().Index().Stats())
}

// Examples lists the starter questions.
func (h *Handler) Examples(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"questions": rag.ExampleQuestions})
}

// Metrics returns the per-operation statistics collected so far.
func (h *Handler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}

// Ask answers one question.
func (h *Handler) Ask(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}
	answer, err := h.assistant.Ask(c.UserContext(), req)
	h.metrics.Record("ask", answer.Stats, err)
	if err != nil {
		return answerError(c, err)
	}
	return c.JSON(AskResponse{Answer: answer.Text, Sources: answer.Sources})
}

// Preview runs retrieval only and returns the chunks and context block.
func (h *Handler) Preview(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}
	result, err := h.assistant.Retriever().Retrieve(c.UserContext(), req.Query, req.K)
	h.metrics.Record("preview", rag.AnswerStats{
		RetrievalMs:    result.RetrievalMs,
		TotalMs:        result.RetrievalMs,
		ContextTokens:  result.ContextTokens,
		SourceCoverage: result.SourceCoverage,
		Chunks:         len(result.Chunks),
	}, err)
	if err != nil {
		return answerError(c, err)
	}
	return c.JSON(PreviewResponse{
		Context:        result.Context,
		ContextTokens:  result.ContextTokens,
		SourceCoverage: result.SourceCoverage,
		RetrievalMs:    result.RetrievalMs,
		Sources:        rag.Sources(result.Chunks),
	})
}

func (h *Handler) parseRequest(c *fiber.Ctx) (rag.Request, error) {
	var req rag.Request
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(http.StatusBadRequest, `invalid request, expected JSON: {"query":"..."}`)
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.K < 0 || req.K > h.maxK {
		return req, fiber.NewError(http.StatusBadRequest, fmt.Sprintf("k must be between 0 and %d", h.maxK))
	}
	return req, nil
}

func answerError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	if !strings.HasPrefix(msg, "could not answer") {
		msg = "could not answer: " + msg
	}
	if status >= http.StatusInternalServerError {
		logging.LogEvent("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// StatusFor maps assistant errors onto HTTP status codes.
func StatusFor(err error) int {
	var providerErr *rag.ProviderError
	var generationErr *rag.GenerationError
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrEmptyIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &providerErr), errors.As(err, &generationErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
