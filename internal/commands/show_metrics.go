package coachrag

import (
	"errors"
	"fmt"

	"github.com/mwiater/coachrag/internal/metrics"
	"github.com/spf13/cobra"
)

// showMetricsCmd summarises the request statistics saved by `serve`.
var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show saved request metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		if cfg.MetricsFile == "" {
			return errors.New("metricsFile is not set in the configuration")
		}
		ops, err := metrics.Load(cfg.MetricsFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Metrics file: %s\n", cfg.MetricsFile)
		for _, op := range ops {
			s := op.OverallStats
			fmt.Fprintf(out, "\n%s (updated %s)\n", op.Operation, op.LastUpdatedUTC.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  Requests:        %d (%d failed)\n", s.TotalRequests, s.Failures)
			fmt.Fprintf(out, "  Retrieval ms:    mean %.1f  sd %.1f  min %.0f  max %.0f\n", s.RetrievalMillis.Mean, s.RetrievalMillis.StdDev(), s.RetrievalMillis.Min, s.RetrievalMillis.Max)
			fmt.Fprintf(out, "  Generation ms:   mean %.1f  sd %.1f  min %.0f  max %.0f\n", s.GenerationMillis.Mean, s.GenerationMillis.StdDev(), s.GenerationMillis.Min, s.GenerationMillis.Max)
			fmt.Fprintf(out, "  Total ms:        mean %.1f  sd %.1f\n", s.TotalDurationMillis.Mean, s.TotalDurationMillis.StdDev())
			fmt.Fprintf(out, "  Context tokens:  mean %.1f  max %.0f\n", s.ContextTokens.Mean, s.ContextTokens.Max)
			for _, b := range op.PerformanceBuckets {
				fmt.Fprintf(out, "    %s %-10s %4d requests, mean total %.1f ms\n", b.Dimension, b.Bucket, b.Stats.TotalRequests, b.Stats.TotalDurationMillis.Mean)
			}
		}
		return nil
	},
}

func init() {
	showCmd.AddCommand(showMetricsCmd)
}
