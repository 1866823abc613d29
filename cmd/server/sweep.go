package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/compliance-engine/api"
	"github.com/warp/compliance-engine/lifecycle"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and exit",
		Long: `Recomputes the status of every record against today's date and
persists the changes. Use it from cron when the built-in scheduler is
disabled (sweep.enabled=false).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.close()

			scheduler := api.NewSweepScheduler(a.reconciler, a.store, a.logger, api.SchedulerConfig{
				Timeout: a.cfg.Sweep.Timeout,
			})
			run, _ := scheduler.RunNow(cmd.Context(), api.TriggerCLI)

			fmt.Fprintf(cmd.OutOrStdout(), "sweep %s as of %s: scanned=%d updated=%d skipped=%d parse_failures=%d\n",
				run.Status, run.AsOf, run.Scanned, run.Updated, run.Skipped, run.ParseFailures)
			if run.Status == lifecycle.SweepFailed {
				return fmt.Errorf("sweep failed: %s", run.Error)
			}
			return nil
		},
	}
}
