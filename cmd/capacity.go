package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/app"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Check load and mount feasibility",
}

var capacityLoadCmd = &cobra.Command{
	Use:   "load <vehicle-id> <device-id>",
	Short: "Check whether a device fits on a vehicle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			f, err := svc.Engine.CanLoad(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, f)
		})
	},
}

var capacityMountCmd = &cobra.Command{
	Use:   "mount <device-id> <module-id> <slot>",
	Short: "Check whether a module fits in a device slot",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			f, err := svc.Engine.CanMount(ctx, args[0], args[1], slot)
			if err != nil {
				return err
			}
			return printJSON(cmd, f)
		})
	},
}

func init() {
	capacityCmd.AddCommand(capacityLoadCmd, capacityMountCmd)
	rootCmd.AddCommand(capacityCmd)
}
