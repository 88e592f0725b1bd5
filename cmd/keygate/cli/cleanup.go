package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadrelay/keygate/internal/jobs"
	"github.com/leadrelay/keygate/internal/service"
)

func newCleanupCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired rate-limit windows and old usage entries once",
		Long: `Run both maintenance cleanups a single time: rate-limit windows older than
24 hours and usage entries older than the retention period. Safe to run
alongside a serving gateway, e.g. from cron when maintenance.enabled is false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if retentionDays <= 0 {
				retentionDays = a.cfg.Usage.RetentionDays
			}
			m := service.NewMaintenance(a.store, a.store, a.logger, nil)
			windows, usage, err := jobs.RunOnce(cmd.Context(), m, retentionDays)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d rate-limit windows and %d usage entries older than %d days.\n",
				windows, usage, retentionDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Usage retention in days (default: usage.retention_days)")

	return cmd
}
