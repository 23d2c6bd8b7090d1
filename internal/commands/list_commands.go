// internal/commands/list_commands.go
package coachrag

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// commandInfo holds the path and description of a command for display.
type commandInfo struct {
	Path        string
	Description string
}

// commandsCmd implements 'list commands', which prints the available
// commands and subcommands in a hierarchical, indented, two-column format.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands in two columns",
	Long:  `The 'commands' subcommand lists all commands and subcommands in a hierarchical, indented format, with the command path in the first column and its short description in the second column.`,
	Run: func(cmd *cobra.Command, args []string) {
		commandData := collectCommandData(rootCmd, "", "")
		filtered := make([]commandInfo, 0, len(commandData))
		for _, data := range commandData {
			if strings.Contains(data.Path, "completion") || strings.HasSuffix(data.Path, " help") {
				continue
			}
			filtered = append(filtered, data)
		}
		listCommands(cmd.OutOrStdout(), filtered)
	},
}

func init() {
	listCmd.AddCommand(commandsCmd)
}

// listCommands prints the command tree in a two-column layout.
func listCommands(out io.Writer, commands []commandInfo) {
	maxPathLength := 0
	for _, data := range commands {
		if len(data.Path) > maxPathLength {
			maxPathLength = len(data.Path)
		}
	}

	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, data := range commands {
		fmt.Fprintf(out, "  %s%s%s\n", data.Path, strings.Repeat(" ", maxPathLength-len(data.Path)+2), data.Description)
	}
}

// collectCommandData collects command metadata for display, walking the
// command tree and returning a flattened slice of path/description pairs.
func collectCommandData(cmd *cobra.Command, currentPath string, indent string) []commandInfo {
	var allData []commandInfo

	fullPath := currentPath + cmd.Name()
	if currentPath != "" {
		fullPath = currentPath + " " + cmd.Name()
	}

	allData = append(allData, commandInfo{
		Path:        indent + fullPath,
		Description: cmd.Short,
	})

	for _, subCmd := range cmd.Commands() {
		allData = append(allData, collectCommandData(subCmd, fullPath, indent+"  ")...)
	}

	return allData
}
