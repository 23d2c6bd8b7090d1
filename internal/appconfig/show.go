package appconfig

import (
	"fmt"
	"io"
	"strings"
)

// ShowConfig prints the current configuration summary. The API key is masked.
func ShowConfig(out io.Writer, file string, cfg Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:              %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Corpus Path:        %s\n", cfg.CorpusPath)
	fmt.Fprintf(out, "  Index Location:     %s\n", cfg.IndexLocation)
	fmt.Fprintf(out, "  Allowed Extensions: %v\n", cfg.AllowedExtensions)
	fmt.Fprintf(out, "  Exclude Globs:      %v\n", cfg.ExcludeGlobs)
	fmt.Fprintf(out, "  Chunk Size:         %d\n", cfg.ChunkSize())
	fmt.Fprintf(out, "  Chunk Overlap:      %d\n", cfg.ChunkOverlap())
	fmt.Fprintf(out, "  Top K:              %d\n", cfg.TopKOrDefault())
	fmt.Fprintf(out, "  Context Token Limit: %d\n", cfg.ContextTokenLimit)
	fmt.Fprintf(out, "  Similarity:         %s\n", cfg.Similarity)
	fmt.Fprintf(out, "  Embedder:           %s\n", cfg.Embedder)
	fmt.Fprintf(out, "  Base URL:           %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  API Key:            %s\n", MaskSecret(cfg.APIKey))
	fmt.Fprintf(out, "  Embedding Model:    %s\n", cfg.EmbeddingModel)
	fmt.Fprintf(out, "  Chat Model:         %s\n", cfg.ChatModel)
	fmt.Fprintf(out, "  Temperature:        %.2f\n", cfg.Temperature)
	fmt.Fprintf(out, "  Coaching:           %v\n", cfg.Coaching)
	fmt.Fprintf(out, "  Embed Workers:      %d (batch %d, %.1f req/s, %d retries)\n",
		cfg.EmbedConcurrency, cfg.EmbedBatchSize, cfg.EmbedRequestsPerSecond, cfg.EmbedRetries)
	fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Listen:             %s\n", cfg.Listen())
	if cfg.MetricsFile != "" {
		fmt.Fprintf(out, "  Metrics File:       %s\n", cfg.MetricsFile)
	}
	if cfg.S3Bucket != "" {
		fmt.Fprintf(out, "  S3 Bucket:          %s (prefix %q, region %q)\n", cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion)
	}
	fmt.Fprintf(out, "  Log File:           %s\n", cfg.LogFilePath())
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 4:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

// Redacted returns a copy of cfg safe to print in full.
func (c Config) Redacted() Config {
	c.APIKey = MaskSecret(c.APIKey)
	return c
}
