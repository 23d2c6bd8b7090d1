package accuracy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/coachrag/internal/rag"
)

type fakeRetriever struct {
	docs map[string][]string
	err  map[string]error
}

func (f fakeRetriever) Retrieve(_ context.Context, query string, k int) (rag.RetrievalResult, error) {
	if err := f.err[query]; err != nil {
		return rag.RetrievalResult{}, err
	}
	var chunks []rag.RetrievedChunk
	for i, doc := range f.docs[query] {
		chunks = append(chunks, rag.RetrievedChunk{Entry: rag.IndexEntry{Doc: doc, Ordinal: i}, Score: 1 - float64(i)/10})
	}
	return rag.RetrievalResult{Query: query, Chunks: chunks, RetrievalMs: 4, SourceCoverage: len(chunks)}, nil
}

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPromptSuite(t *testing.T) {
	path := writeSuite(t, `{"tests":[{"prompt":"a","expected_docs":["x.pdf"]},{"id":9,"prompt":"b","expected_docs":["y.pdf"]}]}`)
	suite, err := LoadPromptSuite(path)
	if err != nil {
		t.Fatalf("LoadPromptSuite: %v", err)
	}
	if suite.Tests[0].ID != 1 || suite.Tests[1].ID != 9 {
		t.Fatalf("unexpected ids: %+v", suite.Tests)
	}
}

func TestLoadPromptSuiteRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no tests":         `{"tests":[]}`,
		"empty prompt":     `{"tests":[{"prompt":" ","expected_docs":["x"]}]}`,
		"no expected docs": `{"tests":[{"prompt":"q"}]}`,
		"malformed":        `{"tests":`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadPromptSuite(writeSuite(t, content)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestRunAccuracyScoresRanks(t *testing.T) {
	retriever := fakeRetriever{
		docs: map[string][]string{
			"first":  {"coaching/avoidant.pdf", "anxious.pdf"},
			"second": {"budget.txt", "budget.txt", "anxious.pdf"},
			"miss":   {"budget.txt"},
		},
		err: map[string]error{"slow": context.DeadlineExceeded},
	}
	suite := PromptSuite{Tests: []PromptTest{
		{ID: 1, Prompt: "first", ExpectedDocs: []string{"avoidant.pdf"}},
		{ID: 2, Prompt: "second", ExpectedDocs: []string{"ANXIOUS.pdf"}},
		{ID: 3, Prompt: "miss", ExpectedDocs: []string{"other/budget.txt"}},
		{ID: 4, Prompt: "slow", ExpectedDocs: []string{"x"}},
	}}
	dir := t.TempDir()
	var out bytes.Buffer

	results, summary, err := RunAccuracy(context.Background(), retriever, suite, Options{TopK: 3, ResultsDir: dir, EmbeddingModel: "hash-128", Out: &out})
	if err != nil {
		t.Fatalf("RunAccuracy: %v", err)
	}

	wantRanks := []int{1, 2, 0, 0}
	for i, r := range results {
		if r.Rank != wantRanks[i] {
			t.Errorf("prompt %d rank = %d, want %d", r.PromptID, r.Rank, wantRanks[i])
		}
	}
	if got := results[1].RetrievedDocs; len(got) != 2 {
		t.Errorf("expected duplicate docs collapsed, got %v", got)
	}
	if !results[3].DeadlineExceeded || results[3].Error == "" {
		t.Errorf("expected deadline failure recorded, got %+v", results[3])
	}

	if summary.Total != 4 || summary.Hits != 2 || summary.Errors != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.HitRate != 0.5 || summary.MRR != 0.375 || summary.MeanRetrievalMs != 4 {
		t.Fatalf("unexpected rates: %+v", summary)
	}
	if !strings.Contains(out.String(), "[1/4] Prompt: first") || !strings.Contains(out.String(), "[4/4] Result: deadlineExceeded=true") {
		t.Fatalf("unexpected progress output:\n%s", out.String())
	}

	if summary.ResultsPath != filepath.Join(dir, "hash-128.jsonl") {
		t.Fatalf("results path = %q", summary.ResultsPath)
	}
	f, err := os.Open(summary.ResultsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r AccuracyResult
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		lines++
	}
	if lines != 4 {
		t.Fatalf("expected 4 jsonl lines, got %d", lines)
	}
}

func TestRunAccuracyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	suite := PromptSuite{Tests: []PromptTest{{ID: 1, Prompt: "q", ExpectedDocs: []string{"x"}}}}
	results, _, err := RunAccuracy(ctx, fakeRetriever{}, suite, Options{})
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Fatalf("expected cancellation before any prompt, got %v %v", results, err)
	}
}

func TestFirstExpectedRankMatchesPaths(t *testing.T) {
	retrieved := []string{"other/doc.pdf", "sub/doc.pdf", "guide.txt"}
	tests := []struct {
		expected []string
		want     int
	}{
		{[]string{"sub/doc.pdf"}, 2},
		{[]string{"doc.pdf"}, 1},
		{[]string{"Guide.TXT"}, 3},
		{[]string{"missing/doc.pdf"}, 0},
	}
	for _, tt := range tests {
		if got := firstExpectedRank(retrieved, tt.expected); got != tt.want {
			t.Errorf("firstExpectedRank(%v) = %d, want %d", tt.expected, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"text-embedding-3-small": "text-embedding-3-small",
		"Hash:128":               "hash_128",
		"  weird//name  ":        "weird-name",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
