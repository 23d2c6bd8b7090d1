package coachrag

import "github.com/spf13/cobra"

// ragCmd groups index maintenance commands.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Index utilities",
}

func init() {
	rootCmd.AddCommand(ragCmd)
}
