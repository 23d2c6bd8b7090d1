package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/coachrag/internal/rag"
)

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Complete(context.Context, string, string) (string, error) {
	return g.reply, g.err
}

func newTestServer(t *testing.T, gen rag.Generator, populated bool) *Server {
	t.Helper()
	embedder := rag.NewHashEmbedder(32)
	idx := rag.NewIndex(rag.WithEmbeddingModel(embedder.Model()))
	if populated {
		var entries []rag.IndexEntry
		for n, text := range []string{
			"Avoidant employees prefer written feedback and time to reflect.",
			"Anxious employees respond to frequent reassurance.",
		} {
			vec, err := rag.EmbedText(context.Background(), embedder, text)
			if err != nil {
				t.Fatal(err)
			}
			entries = append(entries, rag.IndexEntry{Doc: fmt.Sprintf("doc%d.pdf", n), Text: text, Vector: vec})
		}
		if err := idx.Build(entries); err != nil {
			t.Fatal(err)
		}
	}
	retriever := rag.NewRetriever(idx, embedder, rag.RetrieverConfig{TopK: 1})
	return New(rag.NewAssistant(retriever, gen, rag.AssistantConfig{}), Options{MaxK: 5})
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestAskReturnsAnswerAndSources(t *testing.T) {
	s := newTestServer(t, stubGenerator{reply: "Write it down for them."}, true)

	status, body := do(t, s, http.MethodPost, "/api/ask", `{"query":"avoidant employee feedback","show_sources":true}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%v", status, body)
	}
	if body["answer"] != "Write it down for them." {
		t.Fatalf("answer = %v", body["answer"])
	}
	sources, ok := body["sources"].([]any)
	if !ok || len(sources) != 1 {
		t.Fatalf("expected one source, got %v", body["sources"])
	}
}

func TestAskOmitsSourcesByDefault(t *testing.T) {
	s := newTestServer(t, stubGenerator{reply: "ok"}, true)
	status, body := do(t, s, http.MethodPost, "/api/ask", `{"query":"anxious"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if _, ok := body["sources"]; ok {
		t.Fatalf("sources should be omitted: %v", body)
	}
}

func TestAskErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		gen       rag.Generator
		populated bool
		body      string
		want      int
	}{
		{"invalid json", stubGenerator{reply: "x"}, true, `{"query":`, http.StatusBadRequest},
		{"empty query", stubGenerator{reply: "x"}, true, `{"query":"   "}`, http.StatusBadRequest},
		{"k too large", stubGenerator{reply: "x"}, true, `{"query":"q","k":99}`, http.StatusBadRequest},
		{"empty index", stubGenerator{reply: "x"}, false, `{"query":"q"}`, http.StatusServiceUnavailable},
		{"generator failure", stubGenerator{err: errors.New("boom")}, true, `{"query":"q"}`, http.StatusBadGateway},
		{"empty generation", stubGenerator{reply: "  "}, true, `{"query":"q"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.gen, tt.populated)
			status, body := do(t, s, http.MethodPost, "/api/ask", tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.want, body)
			}
			if _, ok := body["error"].(string); !ok {
				t.Fatalf("expected error message, got %v", body)
			}
		})
	}
}

func TestAnswerErrorsArePrefixed(t *testing.T) {
	s := newTestServer(t, stubGenerator{reply: "x"}, false)
	_, body := do(t, s, http.MethodPost, "/api/ask", `{"query":"q"}`)
	msg, _ := body["error"].(string)
	if !strings.HasPrefix(msg, "could not answer: ") || strings.Count(msg, "could not answer") != 1 {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, stubGenerator{}, true)
	status, body := do(t, s, http.MethodPost, "/api/preview", `{"query":"avoidant feedback","k":2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%v", status, body)
	}
	if ctx, _ := body["context"].(string); !strings.HasPrefix(ctx, "CONTEXT") {
		t.Fatalf("context = %q", ctx)
	}
	if sources, _ := body["sources"].([]any); len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", body["sources"])
	}
}

func TestInfoRoutes(t *testing.T) {
	s := newTestServer(t, stubGenerator{}, true)

	status, body := do(t, s, http.MethodGet, "/health", "")
	if status != http.StatusOK || body["status"] != "ok" || body["entries"] != float64(2) {
		t.Fatalf("health = %d %v", status, body)
	}

	status, body = do(t, s, http.MethodGet, "/api/examples", "")
	if status != http.StatusOK {
		t.Fatalf("examples status = %d", status)
	}
	if qs, _ := body["questions"].([]any); len(qs) != len(rag.ExampleQuestions) {
		t.Fatalf("questions = %v", body["questions"])
	}

	status, body = do(t, s, http.MethodGet, "/api/index", "")
	if status != http.StatusOK || body["count"] != float64(2) || body["dimension"] != float64(32) {
		t.Fatalf("index = %d %v", status, body)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, stubGenerator{reply: "ok"}, true)
	do(t, s, http.MethodPost, "/api/ask", `{"query":"avoidant"}`)
	do(t, s, http.MethodPost, "/api/ask", `{"query":"   "}`)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var ops []struct {
		Operation    string `json:"operation"`
		OverallStats struct {
			TotalRequests int64 `json:"total_requests"`
			Failures      int64 `json:"failures"`
		} `json:"overall_stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ops); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Operation != "ask" || ops[0].OverallStats.TotalRequests != 2 || ops[0].OverallStats.Failures != 1 {
		t.Fatalf("unexpected metrics: %+v", ops)
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	s := newTestServer(t, stubGenerator{}, true)
	status, body := do(t, s, http.MethodGet, "/nope", "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("could not answer: %w", rag.ErrEmptyQuery), http.StatusBadRequest},
		{fmt.Errorf("could not answer: %w", rag.ErrEmptyIndex), http.StatusServiceUnavailable},
		{&rag.ProviderError{Op: "embedding", Err: errors.New("x")}, http.StatusBadGateway},
		{&rag.GenerationError{Stage: "answer", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
