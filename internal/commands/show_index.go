package coachrag

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// showIndexCmd prints what the saved index contains.
var showIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Show the saved index metadata",
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
		idx, err := loadIndex(ctx, cfg, embedder)
		if err != nil {
			return err
		}

		stats := idx.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Index location:  %s\n", cfg.IndexLocation)
		fmt.Fprintf(out, "  Entries:         %d\n", stats.Count)
		fmt.Fprintf(out, "  Documents:       %d\n", stats.Documents)
		fmt.Fprintf(out, "  Dimension:       %d\n", stats.Dimension)
		fmt.Fprintf(out, "  Metric:          %s\n", stats.Metric)
		fmt.Fprintf(out, "  Embedding Model: %s\n", stats.EmbeddingModel)
		if stats.BuildID != "" {
			fmt.Fprintf(out, "  Build ID:        %s\n", stats.BuildID)
			fmt.Fprintf(out, "  Created:         %s\n", stats.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

func init() {
	showCmd.AddCommand(showIndexCmd)
}
