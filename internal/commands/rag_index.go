package coachrag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwiater/coachrag/internal/extract"
	"github.com/mwiater/coachrag/internal/rag"
	"github.com/spf13/cobra"
)

// ragIndexCmd builds the vector index from the corpus and saves it.
var ragIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		embedder, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		splitter, err := rag.NewSplitter(cfg.ChunkSize(), cfg.ChunkOverlap())
		if err != nil {
			return err
		}
		idx, err := newIndex(cfg, embedder)
		if err != nil {
			return err
		}
		store, err := openIndexStore(ctx, cfg)
		if err != nil {
			return err
		}

		indexer := rag.NewIndexer(rag.IndexerConfig{
			CorpusPath:         cfg.CorpusPath,
			AllowedExtensions:  cfg.AllowedExtensions,
			ExcludeGlobs:       cfg.ExcludeGlobs,
			ExtractConcurrency: cfg.ExtractConcurrency,
			EmbedConcurrency:   cfg.EmbedConcurrency,
			EmbedBatchSize:     cfg.EmbedBatchSize,
			RequestsPerSecond:  cfg.EmbedRequestsPerSecond,
			Retries:            cfg.EmbedRetries,
			RequestTimeout:     cfg.RequestTimeout(),
		}, extract.Extract, splitter, embedder)

		report, err := indexer.Build(ctx, idx, store)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %d documents (%d files) into %d chunks at %s in %s\n",
			report.Documents, report.Files, report.Embedded, store, report.Duration.Round(time.Millisecond))
		if len(report.Failed) > 0 {
			fmt.Fprintf(out, "Skipped unreadable files: %s\n", strings.Join(report.Failed, ", "))
		}
		if len(report.EmptyDocs) > 0 {
			fmt.Fprintf(out, "Files with no extractable text: %s\n", strings.Join(report.EmptyDocs, ", "))
		}
		if report.FailedChunks > 0 {
			fmt.Fprintf(out, "Chunks dropped after embedding failures: %d\n", report.FailedChunks)
		}
		return nil
	},
}

func init() {
	ragCmd.AddCommand(ragIndexCmd)
}
