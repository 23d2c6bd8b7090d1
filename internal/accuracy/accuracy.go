// accuracy/accuracy.go
package accuracy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/rag"
)

// Retriever is the part of rag.Retriever a suite run needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (rag.RetrievalResult, error)
}

// Options controls a suite run.
type Options struct {
	TopK           int
	ResultsDir     string
	EmbeddingModel string
	Out            io.Writer
}

// LoadPromptSuite reads and validates a suite file. Tests without an id are
// numbered by position.
func LoadPromptSuite(path string) (PromptSuite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptSuite{}, fmt.Errorf("error reading prompt suite: %w", err)
	}

	var suite PromptSuite
	if err := json.Unmarshal(raw, &suite); err != nil {
		return PromptSuite{}, fmt.Errorf("error parsing prompt suite: %w", err)
	}

	if len(suite.Tests) == 0 {
		return PromptSuite{}, fmt.Errorf("prompt suite contains no tests")
	}
	for i := range suite.Tests {
		t := &suite.Tests[i]
		if t.ID == 0 {
			t.ID = i + 1
		}
		if strings.TrimSpace(t.Prompt) == "" {
			return PromptSuite{}, fmt.Errorf("prompt suite test %d has an empty prompt", t.ID)
		}
		if len(t.ExpectedDocs) == 0 {
			return PromptSuite{}, fmt.Errorf("prompt suite test %d lists no expected_docs", t.ID)
		}
	}

	return suite, nil
}

// RunAccuracy retrieves every suite prompt and scores where the first expected
// document lands. Per-prompt failures are recorded and do not stop the run;
// only a cancelled context or an unwritable results file does.
func RunAccuracy(ctx context.Context, retriever Retriever, suite PromptSuite, opts Options) ([]AccuracyResult, Summary, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	var resultsPath string
	if opts.ResultsDir != "" {
		if err := os.MkdirAll(opts.ResultsDir, 0755); err != nil {
			return nil, Summary{}, fmt.Errorf("error creating results directory: %w", err)
		}
		name := slugify(opts.EmbeddingModel)
		if name == "" {
			name = "retrieval"
		}
		resultsPath = filepath.Join(opts.ResultsDir, name+".jsonl")
	}

	total := len(suite.Tests)
	results := make([]AccuracyResult, 0, total)
	for i, t := range suite.Tests {
		if err := ctx.Err(); err != nil {
			return results, summarize(results, resultsPath), err
		}
		iteration := i + 1
		fmt.Fprintf(out, "[%d/%d] Prompt: %s\n", iteration, total, t.Prompt)

		result := AccuracyResult{
			Timestamp:      time.Now().Format(time.RFC3339),
			EmbeddingModel: opts.EmbeddingModel,
			PromptID:       t.ID,
			Prompt:         t.Prompt,
			Category:       t.Category,
			ExpectedDocs:   t.ExpectedDocs,
			TopK:           opts.TopK,
		}

		retrieval, err := retriever.Retrieve(ctx, t.Prompt, opts.TopK)
		if err != nil {
			result.Error = err.Error()
			result.DeadlineExceeded = isDeadlineExceeded(err)
			fmt.Fprintf(out, "[%d/%d] Result: deadlineExceeded=%t error=%v\n", iteration, total, result.DeadlineExceeded, err)
			logging.LogEvent("[ACCURACY] prompt %d failed: %v", t.ID, err)
		} else {
			result.RetrievedDocs = retrievedDocs(retrieval.Chunks)
			result.Rank = firstExpectedRank(result.RetrievedDocs, t.ExpectedDocs)
			result.Correct = result.Rank > 0
			if result.Correct {
				result.ReciprocalRank = 1 / float64(result.Rank)
			}
			result.RetrievalMs = retrieval.RetrievalMs
			result.ContextTokens = retrieval.ContextTokens
			result.SourceCoverage = retrieval.SourceCoverage
			fmt.Fprintf(out, "[%d/%d] Result: correct=%t rank=%d retrieved=%s\n", iteration, total, result.Correct, result.Rank, strings.Join(result.RetrievedDocs, ","))
		}

		if resultsPath != "" {
			if err := appendResult(resultsPath, result); err != nil {
				return results, summarize(results, resultsPath), err
			}
		}
		results = append(results, result)
	}

	return results, summarize(results, resultsPath), nil
}

func summarize(results []AccuracyResult, resultsPath string) Summary {
	s := Summary{Total: len(results), ResultsPath: resultsPath}
	if s.Total == 0 {
		return s
	}
	var rr float64
	var ms int
	for _, r := range results {
		if r.Error != "" {
			s.Errors++
		}
		if r.Correct {
			s.Hits++
		}
		rr += r.ReciprocalRank
		ms += r.RetrievalMs
	}
	s.HitRate = float64(s.Hits) / float64(s.Total)
	s.MRR = rr / float64(s.Total)
	if ok := s.Total - s.Errors; ok > 0 {
		s.MeanRetrievalMs = float64(ms) / float64(ok)
	}
	return s
}

// retrievedDocs lists each document once, in rank order.
func retrievedDocs(chunks []rag.RetrievedChunk) []string {
	seen := make(map[string]bool, len(chunks))
	docs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.Entry.Doc] {
			continue
		}
		seen[c.Entry.Doc] = true
		docs = append(docs, c.Entry.Doc)
	}
	return docs
}

// firstExpectedRank returns the 1-based rank of the first expected document, or 0.
func firstExpectedRank(retrieved, expected []string) int {
	for i, doc := range retrieved {
		for _, want := range expected {
			if sameDoc(doc, want) {
				return i + 1
			}
		}
	}
	return 0
}

// sameDoc matches on the full relative path or, when the expectation has no
// directory, on the file name alone.
func sameDoc(doc, want string) bool {
	doc = strings.ToLower(filepath.ToSlash(doc))
	want = strings.ToLower(filepath.ToSlash(strings.TrimSpace(want)))
	if doc == want {
		return true
	}
	return !strings.Contains(want, "/") && path.Base(doc) == want
}

func appendResult(path string, result AccuracyResult) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error opening results file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("error writing results: %w", err)
	}

	return nil
}

func isDeadlineExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "context deadline exceeded")
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// slugify converts a string into a filesystem-friendly slug.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "_")
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}
