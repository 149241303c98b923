package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/core/ledger"
	"github.com/kilianp07/rescuedispatch/core/scenario"
	"github.com/kilianp07/rescuedispatch/core/store"
	"github.com/kilianp07/rescuedispatch/infra/logger"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Work with scenario files",
}

var scenarioCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a scenario and seed it into a scratch store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.LoadFile(args[0])
		if err != nil {
			return err
		}
		s := store.NewMemoryStore()
		stats, err := scenario.Seed(context.Background(), s, ledger.New(s, logger.NopLogger{}), sc)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"name": sc.Name, "seeded": stats})
	},
}

func init() {
	scenarioCmd.AddCommand(scenarioCheckCmd)
	rootCmd.AddCommand(scenarioCmd)
}
