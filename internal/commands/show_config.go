package coachrag

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/coachrag/internal/appconfig"
	"github.com/spf13/cobra"
)

var showConfigRaw bool

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by environment and flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showConfigRaw {
			pp.ColoringEnabled = false
			_, err := pp.Fprintln(out, cfg.Redacted())
			return err
		}
		appconfig.ShowConfig(out, cfg.ConfigPath, *cfg)
		return nil
	},
}

func init() {
	showConfigCmd.Flags().BoolVar(&showConfigRaw, "raw", false, "dump the merged configuration struct")
	showCmd.AddCommand(showConfigCmd)
}
