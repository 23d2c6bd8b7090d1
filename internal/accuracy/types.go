// accuracy/types.go
package accuracy

// PromptSuite defines the retrieval test cases loaded from JSON.
type PromptSuite struct {
	Tests []PromptTest `json:"tests"`
}

// PromptTest is a question and the documents a good retrieval should surface.
type PromptTest struct {
	ID           int      `json:"id"`
	Prompt       string   `json:"prompt"`
	ExpectedDocs []string `json:"expected_docs"`
	Category     string   `json:"category,omitempty"`
}

// AccuracyResult records how a single retrieval ranked the expected documents.
type AccuracyResult struct {
	Timestamp        string   `json:"timestamp"`
	EmbeddingModel   string   `json:"embedding_model"`
	PromptID         int      `json:"promptId"`
	Prompt           string   `json:"prompt"`
	Category         string   `json:"category,omitempty"`
	ExpectedDocs     []string `json:"expectedDocs"`
	RetrievedDocs    []string `json:"retrievedDocs"`
	Correct          bool     `json:"correct"`
	Rank             int      `json:"rank"`
	ReciprocalRank   float64  `json:"reciprocal_rank"`
	TopK             int      `json:"top_k"`
	RetrievalMs      int      `json:"retrieval_ms"`
	ContextTokens    int      `json:"context_tokens"`
	SourceCoverage   int      `json:"source_coverage"`
	Error            string   `json:"error,omitempty"`
	DeadlineExceeded bool     `json:"deadlineExceeded"`
}

// Summary aggregates a suite run.
type Summary struct {
	Total           int
	Hits            int
	Errors          int
	HitRate         float64
	MRR             float64
	MeanRetrievalMs float64
	ResultsPath     string
}
