package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/app"
	"github.com/kilianp07/rescuedispatch/core/model"
)

var (
	commitTeam     string
	commitVehicles []string
	dispatcherName string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Plan, commit and cancel task dispatches",
}

var dispatchCommitCmd = &cobra.Command{
	Use:   "commit <task-id>",
	Short: "Bind a team and vehicles to a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if commitTeam == "" {
			return fmt.Errorf("--team is required")
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if _, err := svc.Engine.Plan(ctx, args[0]); err != nil {
				return err
			}
			id, err := svc.Engine.CommitDispatch(ctx, args[0], commitTeam, commitVehicles, dispatcherName)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"dispatch_id": id, "task_id": args[0]})
		})
	},
}

var dispatchAutoCmd = &cobra.Command{
	Use:   "auto <task-id>",
	Short: "Pick the best admissible team and vehicles and commit them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			out, err := svc.Engine.AutoDispatch(ctx, args[0], dispatcherName)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		})
	},
}

var dispatchCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task and release its resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			changed, err := svc.Engine.CancelTask(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"task_id": args[0], "changed": changed})
		})
	},
}

var dispatchAdvanceCmd = &cobra.Command{
	Use:   "advance <task-id> <status>",
	Short: "Apply a field status update to a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			changed, err := svc.Engine.AdvanceTask(ctx, args[0], model.TaskStatus(args[1]))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"task_id": args[0], "status": args[1], "changed": changed})
		})
	},
}

func init() {
	dispatchCmd.PersistentFlags().StringVar(&dispatcherName, "dispatcher", "", "name recorded as the dispatcher")
	dispatchCommitCmd.Flags().StringVar(&commitTeam, "team", "", "team to dispatch")
	dispatchCommitCmd.Flags().StringSliceVar(&commitVehicles, "vehicle", nil, "vehicle to dispatch (repeatable)")
	dispatchCmd.AddCommand(dispatchCommitCmd, dispatchAutoCmd, dispatchCancelCmd, dispatchAdvanceCmd)
	rootCmd.AddCommand(dispatchCmd)
}
