package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Generator produces text from a system and a user message.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Request is one question to the assistant.
type Request struct {
	Query       string `json:"query"`
	K           int    `json:"k,omitempty"`
	ShowSources bool   `json:"show_sources,omitempty"`
}

// Answer is the assistant's reply. BaseAnswer holds the grounded answer
// before the coaching reformat; it equals Text when coaching is off.
type Answer struct {
	Text       string      `json:"answer"`
	BaseAnswer string      `json:"base_answer,omitempty"`
	Sources    []Source    `json:"sources,omitempty"`
	Stats      AnswerStats `json:"-"`
}

// AnswerStats is per-question telemetry.
type AnswerStats struct {
	RetrievalMs    int
	GenerationMs   int
	TotalMs        int
	ContextTokens  int
	SourceCoverage int
	Chunks         int
}

// AssistantConfig tunes the generation steps.
type AssistantConfig struct {
	Coaching       bool
	RequestTimeout time.Duration
}

// Assistant answers questions grounded in the retrieved chunks. It holds no
// per-conversation state; every Ask is independent.
type Assistant struct {
	retriever *Retriever
	generator Generator
	cfg       AssistantConfig
}

// NewAssistant wires a retriever and a generator.
func NewAssistant(retriever *Retriever, generator Generator, cfg AssistantConfig) *Assistant {
	return &Assistant{retriever: retriever, generator: generator, cfg: cfg}
}

// Retriever returns the assistant's retriever.
func (a *Assistant) Retriever() *Retriever { return a.retriever }

// Ask retrieves context for the query, generates a grounded answer and,
// when coaching is enabled, reformats it into the coaching layout. Every
// error is wrapped as "could not answer" and keeps its cause for errors.Is/As.
func (a *Assistant) Ask(ctx context.Context, req Request) (Answer, error) {
	answer, err := a.ask(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("could not answer: %w", err)
	}
	return answer, nil
}

func (a *Assistant) ask(ctx context.Context, req Request) (Answer, error) {
	start := time.Now()
	retrieval, err := a.retriever.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		return Answer{}, err
	}

	genStart := time.Now()
	base, err := a.generate(ctx, "answer", GroundedSystemPrompt, GroundedUserPrompt(retrieval.Query, retrieval.Context))
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{Text: base, BaseAnswer: base}
	if a.cfg.Coaching {
		coached, err := a.generate(ctx, "coach", "", CoachingPrompt(retrieval.Query, base))
		if err != nil {
			return Answer{}, err
		}
		answer.Text = coached
	}
	if req.ShowSources {
		answer.Sources = Sources(retrieval.Chunks)
	}
	answer.Stats = AnswerStats{
		RetrievalMs:    retrieval.RetrievalMs,
		GenerationMs:   int(time.Since(genStart).Milliseconds()),
		TotalMs:        int(time.Since(start).Milliseconds()),
		ContextTokens:  retrieval.ContextTokens,
		SourceCoverage: retrieval.SourceCoverage,
		Chunks:         len(retrieval.Chunks),
	}
	return answer, nil
}

func (a *Assistant) generate(ctx context.Context, stage, system, user string) (string, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.cfg.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
	}
	defer cancel()

	out, err := a.generator.Complete(callCtx, system, user)
	if err != nil {
		return "", &GenerationError{Stage: stage, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &GenerationError{Stage: stage, Err: errors.New("model returned an empty response")}
	}
	return out, nil
}
