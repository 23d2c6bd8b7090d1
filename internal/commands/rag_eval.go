package coachrag

import (
	"context"
	"fmt"

	"github.com/mwiater/coachrag/internal/accuracy"
	"github.com/spf13/cobra"
)

var (
	evalSuitePath  string
	evalResultsDir string
	evalTopK       int
)

// ragEvalCmd scores retrieval against a suite of questions with known source documents.
var ragEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure retrieval hit rate against a question suite",
	Long: `Eval runs every question in a JSON suite through retrieval only and checks whether
the expected documents appear in the top-k chunks. Each result is appended as a JSON line
to <out>/<embedding-model>.jsonl and a hit rate / MRR summary is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalSuitePath == "" {
			return fmt.Errorf("--suite is required")
		}
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		suite, err := accuracy.LoadPromptSuite(evalSuitePath)
		if err != nil {
			return err
		}
		embedder, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		idx, err := loadIndex(ctx, cfg, embedder)
		if err != nil {
			return err
		}

		k := evalTopK
		if k <= 0 {
			k = cfg.TopKOrDefault()
		}
		out := cmd.OutOrStdout()
		_, summary, err := accuracy.RunAccuracy(ctx, newRetriever(cfg, idx, embedder), suite, accuracy.Options{
			TopK:           k,
			ResultsDir:     evalResultsDir,
			EmbeddingModel: embedder.Model(),
			Out:            out,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Prompts:        %d (%d errors)\n", summary.Total, summary.Errors)
		fmt.Fprintf(out, "Hit Rate:       %.3f (%d/%d at k=%d)\n", summary.HitRate, summary.Hits, summary.Total, k)
		fmt.Fprintf(out, "MRR:            %.3f\n", summary.MRR)
		fmt.Fprintf(out, "Mean Retrieval: %.1fms\n", summary.MeanRetrievalMs)
		if summary.ResultsPath != "" {
			fmt.Fprintf(out, "Results:        %s\n", summary.ResultsPath)
		}
		return nil
	},
}

func init() {
	ragEvalCmd.Flags().StringVar(&evalSuitePath, "suite", "", "path to the question suite JSON")
	ragEvalCmd.Flags().StringVar(&evalResultsDir, "out", "coachragData/retrievalAccuracy", "directory for JSONL results (empty disables)")
	ragEvalCmd.Flags().IntVarP(&evalTopK, "k", "k", 0, "number of chunks to retrieve (0 uses topK from the config)")
	ragCmd.AddCommand(ragEvalCmd)
}
