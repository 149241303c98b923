package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/app"
)

var (
	matchLimit int
	matchTeam  string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank candidate teams or vehicles for a task",
}

var matchTeamsCmd = &cobra.Command{
	Use:   "teams <task-id>",
	Short: "Rank rescue teams for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Engine.MatchTeams(ctx, args[0], matchLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		})
	},
}

var matchVehiclesCmd = &cobra.Command{
	Use:   "vehicles <task-id>",
	Short: "Rank vehicles for a task, optionally for a given team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			list, err := svc.Engine.MatchVehicles(ctx, args[0], matchTeam, matchLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		})
	},
}

func init() {
	matchCmd.PersistentFlags().IntVarP(&matchLimit, "limit", "n", 5, "number of candidates to return (0 for all)")
	matchVehiclesCmd.Flags().StringVar(&matchTeam, "team", "", "team the vehicles would carry")
	matchCmd.AddCommand(matchTeamsCmd, matchVehiclesCmd)
	rootCmd.AddCommand(matchCmd)
}
