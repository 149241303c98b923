package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
)

var (
	journalTask     string
	journalResource string
	journalOutcome  string
	journalSince    time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query recorded auto-dispatch decisions",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.Backend == "" {
			return fmt.Errorf("no journal backend configured")
		}
		store, err := journal.New(cfg.Journal)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		q := journal.Query{TaskID: journalTask, ResourceID: journalResource, Outcome: journalOutcome}
		if journalSince > 0 {
			q.Start = time.Now().Add(-journalSince)
		}
		recs, err := store.Query(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(cmd, recs)
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalTask, "task", "", "filter by task id")
	journalCmd.Flags().StringVar(&journalResource, "resource", "", "filter by team or vehicle id")
	journalCmd.Flags().StringVar(&journalOutcome, "outcome", "", "filter by outcome")
	journalCmd.Flags().DurationVar(&journalSince, "since", 0, "only records newer than this")
	rootCmd.AddCommand(journalCmd)
}
