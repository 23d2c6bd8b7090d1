package rag

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/coachrag/internal/storage"
)

// Persisted index layout. Vectors are raw little-endian float32 values, row
// major; chunk records are JSON lines; the manifest describes both and is
// written last. Nothing in the format is executable.
const (
	IndexFormat        = "coachrag-index"
	IndexFormatVersion = 1

	ManifestFile = "manifest.json"
	EntriesFile  = "entries.jsonl"
	VectorsFile  = "vectors.f32"
)

type manifest struct {
	Format         string    `json:"format"`
	Version        int       `json:"version"`
	BuildID        string    `json:"build_id"`
	CreatedAt      time.Time `json:"created_at"`
	Dimension      int       `json:"dimension"`
	Metric         string    `json:"metric"`
	Count          int       `json:"count"`
	EmbeddingModel string    `json:"embedding_model"`
	VectorsSHA256  string    `json:"vectors_sha256"`
	EntriesSHA256  string    `json:"entries_sha256"`
}

const manifestSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["format", "version", "build_id", "created_at", "dimension", "metric", "count", "vectors_sha256", "entries_sha256"],
  "properties": {
    "format": {"type": "string", "enum": ["coachrag-index"]},
    "version": {"type": "integer", "minimum": 1},
    "build_id": {"type": "string"},
    "created_at": {"type": "string"},
    "dimension": {"type": "integer", "minimum": 0},
    "metric": {"type": "string", "enum": ["cosine", "dot", "euclidean"]},
    "count": {"type": "integer", "minimum": 0},
    "embedding_model": {"type": "string"},
    "vectors_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "entries_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
  }
}`

const entrySchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["chunk_id", "doc", "ordinal", "offset", "overlap", "text", "token_count"],
  "properties": {
    "chunk_id": {"type": "string", "minLength": 1},
    "doc": {"type": "string"},
    "ordinal": {"type": "integer", "minimum": 0},
    "offset": {"type": "integer", "minimum": 0},
    "overlap": {"type": "integer", "minimum": 0},
    "text": {"type": "string"},
    "token_count": {"type": "integer", "minimum": 0}
  }
}`

var (
	manifestSchema = mustSchema(manifestSchemaJSON)
	entrySchema    = mustSchema(entrySchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile index schema: %v", err))
	}
	return schema
}

func validateJSON(schema *gojsonschema.Schema, raw []byte, what string) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexFormat, what, err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrIndexFormat, what, strings.Join(details, "; "))
}

func encodeSnapshot(snap *snapshot) ([]storage.File, error) {
	vectors := make([]byte, 0, len(snap.entries)*snap.dim*4)
	for _, e := range snap.entries {
		for _, v := range e.Vector {
			vectors = binary.LittleEndian.AppendUint32(vectors, math.Float32bits(v))
		}
	}

	var entries bytes.Buffer
	encoder := json.NewEncoder(&entries)
	encoder.SetEscapeHTML(false)
	for _, e := range snap.entries {
		if err := encoder.Encode(e); err != nil {
			return nil, fmt.Errorf("encode index entry %s: %w", e.ChunkID, err)
		}
	}

	m := manifest{
		Format:         IndexFormat,
		Version:        IndexFormatVersion,
		BuildID:        snap.buildID,
		CreatedAt:      snap.createdAt,
		Dimension:      snap.dim,
		Metric:         string(snap.metric),
		Count:          len(snap.entries),
		EmbeddingModel: snap.model,
		VectorsSHA256:  digest(vectors),
		EntriesSHA256:  digest(entries.Bytes()),
	}
	rawManifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode index manifest: %w", err)
	}

	return []storage.File{
		{Name: VectorsFile, Data: vectors},
		{Name: EntriesFile, Data: entries.Bytes()},
		{Name: ManifestFile, Data: rawManifest},
	}, nil
}

func readSnapshot(ctx context.Context, store storage.Store) (*snapshot, error) {
	rawManifest, err := store.ReadFile(ctx, ManifestFile)
	if err != nil {
		return nil, err
	}
	if err := validateJSON(manifestSchema, rawManifest, ManifestFile); err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(rawManifest, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrIndexFormat, err)
	}
	if m.Version != IndexFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIndexFormat, m.Version)
	}
	if m.Count > 0 && m.Dimension == 0 {
		return nil, fmt.Errorf("%w: %d entries with dimension 0", ErrIndexFormat, m.Count)
	}

	rawEntries, err := store.ReadFile(ctx, EntriesFile)
	if err != nil {
		return nil, err
	}
	rawVectors, err := store.ReadFile(ctx, VectorsFile)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(m, rawEntries, rawVectors)
}

func decodeSnapshot(m manifest, rawEntries, rawVectors []byte) (*snapshot, error) {
	if digest(rawEntries) != m.EntriesSHA256 {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrIndexFormat, EntriesFile)
	}
	if digest(rawVectors) != m.VectorsSHA256 {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrIndexFormat, VectorsFile)
	}
	if want := m.Count * m.Dimension * 4; len(rawVectors) != want {
		return nil, fmt.Errorf("%w: %s has %d bytes, expected %d", ErrIndexFormat, VectorsFile, len(rawVectors), want)
	}

	entries := make([]IndexEntry, 0, m.Count)
	scanner := bufio.NewScanner(bytes.NewReader(rawEntries))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := validateJSON(entrySchema, line, fmt.Sprintf("%s line %d", EntriesFile, lineNo)); err != nil {
			return nil, err
		}
		var entry IndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("%w: parse %s line %d: %v", ErrIndexFormat, EntriesFile, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIndexFormat, EntriesFile, err)
	}
	if len(entries) != m.Count {
		return nil, fmt.Errorf("%w: manifest lists %d entries, found %d", ErrIndexFormat, m.Count, len(entries))
	}

	for n := range entries {
		vec := make([]float32, m.Dimension)
		row := rawVectors[n*m.Dimension*4:]
		for d := range vec {
			vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(row[d*4:]))
		}
		entries[n].Vector = vec
	}

	metric, err := ParseMetric(m.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFormat, err)
	}
	snap, err := newSnapshot(entries, metric, m.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFormat, err)
	}
	snap.buildID = m.BuildID
	snap.createdAt = m.CreatedAt
	return snap, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
