package coachrag

import (
	"fmt"

	"github.com/mwiater/coachrag/internal/rag"
	"github.com/spf13/cobra"
)

// examplesCmd prints starter questions.
var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List example questions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for i, q := range rag.ExampleQuestions {
			fmt.Fprintf(out, "%d. %s\n", i+1, q)
		}
	},
}

func init() {
	rootCmd.AddCommand(examplesCmd)
}
