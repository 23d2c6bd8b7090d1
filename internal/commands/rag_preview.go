package coachrag

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/coachrag/internal/rag"
	"github.com/spf13/cobra"
)

var previewTopK int

// ragPreviewCmd previews retrieval and context assembly for a query without generating an answer.
var ragPreviewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview retrieval and context assembly",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("query is required")
		}

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[RAG] corpus: %s\n", cfg.CorpusPath)
		fmt.Fprintf(out, "[RAG] index: %s\n", cfg.IndexLocation)
		fmt.Fprintf(out, "[RAG] embedder: %s\n", cfg.Embedder)
		fmt.Fprintf(out, "[RAG] topK: %d\n", cfg.TopKOrDefault())
		fmt.Fprintf(out, "[RAG] context token limit: %d\n", cfg.ContextTokenLimit)
		fmt.Fprintf(out, "[RAG] similarity: %s\n", cfg.Similarity)

		embedder, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		idx, err := loadIndex(ctx, cfg, embedder)
		if err != nil {
			return err
		}
		result, err := newRetriever(cfg, idx, embedder).Retrieve(ctx, query, previewTopK)
		if err != nil {
			return err
		}
		rag.WritePreview(out, result)
		return nil
	},
}

func init() {
	ragPreviewCmd.Flags().IntVarP(&previewTopK, "k", "k", 0, "number of chunks to retrieve (0 uses topK from the config)")
	ragCmd.AddCommand(ragPreviewCmd)
}
