package rag

// Document is a single corpus file after text extraction.
type Document struct {
	Path string
	Name string
	Text string
}

// Chunk is a span of a document's text. Start and End are rune offsets into
// the document text and Overlap is the number of leading runes shared with
// the previous chunk.
type Chunk struct {
	Doc     string
	Ordinal int
	Text    string
	Start   int
	End     int
	Overlap int
}

// IndexEntry is a single record of the vector index.
type IndexEntry struct {
	ChunkID    string    `json:"chunk_id"`
	Doc        string    `json:"doc"`
	Ordinal    int       `json:"ordinal"`
	Offset     int       `json:"offset"`
	Overlap    int       `json:"overlap"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Vector     []float32 `json:"-"`
}

// RetrievedChunk is an index entry plus its similarity score.
type RetrievedChunk struct {
	Entry IndexEntry
	Score float64
}

// Source describes a chunk that grounded an answer.
type Source struct {
	Doc     string  `json:"doc"`
	ChunkID string  `json:"chunk_id"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}
