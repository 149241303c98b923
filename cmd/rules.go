package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/core/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect hard rules and scoring weights",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse and validate a rule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := rules.LoadFile(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"valid": true, "hard_rules": len(rs.Rules)})
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured rule set",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rs, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return err
		}
		return printJSON(cmd, rs)
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd, rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}
