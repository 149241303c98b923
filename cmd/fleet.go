package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/app"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List teams and vehicles with their status and load",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			teams, err := svc.Store.ListTeams(ctx)
			if err != nil {
				return err
			}
			vehicles, err := svc.Store.ListVehicles(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"teams": teams, "vehicles": vehicles})
		})
	},
}

func init() {
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}
