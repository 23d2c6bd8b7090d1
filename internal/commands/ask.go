package coachrag

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/metrics"
	"github.com/mwiater/coachrag/internal/rag"
	"github.com/mwiater/coachrag/internal/util"
	"github.com/spf13/cobra"
)

var (
	askTopK    int
	askSources bool
)

var (
	answerHeading = color.New(color.FgGreen, color.Bold).SprintFunc()
	sourceLine    = color.New(color.FgCyan).SprintFunc()
	errorLine     = color.New(color.FgRed).SprintFunc()
)

// askCmd answers a management question from the indexed corpus.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a management question",
	Long: `Ask answers a question using only the indexed documents. With no argument it reads
one question per line from stdin until EOF, which makes a simple interactive session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		assistant, err := newAssistant(ctx, cfg)
		if err != nil {
			return err
		}

		agg := metrics.NewAggregator(cfg.MetricsFile)
		defer func() {
			if err := agg.Save(); err != nil {
				logging.LogEvent("[METRICS] Save failed: %v", err)
			}
		}()

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			return askOnce(ctx, out, assistant, agg, strings.Join(args, " "))
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		fmt.Fprintln(out, "Ask a question (Ctrl+D to quit).")
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}
			if err := askOnce(ctx, out, assistant, agg, question); err != nil {
				fmt.Fprintln(out, errorLine(err.Error()))
			}
		}
	},
}

func askOnce(ctx context.Context, out io.Writer, assistant *rag.Assistant, agg *metrics.Aggregator, question string) error {
	answer, err := assistant.Ask(ctx, rag.Request{Query: question, K: askTopK, ShowSources: askSources})
	agg.Record("ask", answer.Stats, err)
	if err != nil {
		return err
	}
	writeAnswer(out, answer)
	return nil
}

// answerWidth is the column answers are wrapped at.
const answerWidth = 100

func writeAnswer(out io.Writer, answer rag.Answer) {
	fmt.Fprintln(out, answerHeading("Answer"))
	fmt.Fprintln(out, util.WrapToWidth(answer.Text, answerWidth))
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, answerHeading("Sources"))
	for i, src := range answer.Sources {
		fmt.Fprintln(out, sourceLine(fmt.Sprintf("  %d. %s#%d (score %.3f)", i+1, src.Doc, src.Ordinal, src.Score)))
		fmt.Fprintf(out, "     %s\n", util.TruncateRunes(util.OneLine(src.Text), answerWidth-5))
	}
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "k", "k", 0, "number of chunks to retrieve (0 uses topK from the config)")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "list the chunks the answer was grounded on")
	rootCmd.AddCommand(askCmd)
}
