package cli

import (
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var opts reconcile.RunOptions
	cmd := &cobra.Command{
		Use:   "sync <user>",
		Short: "Run one full reconciliation pass for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			metrics, err := app.Service.FullSync(cmd.Context(), args[0], opts)
			if metrics != nil {
				if perr := printJSON(cmd.OutOrStdout(), metrics); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&opts.MaxRecords, "max-records", 0, "Cap on remote mutations pushed in this run (0 uses the policy)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Concurrent list fetches (0 uses the default)")
	cmd.Flags().StringVar(&opts.ReclassifyMode, "mode", "", "Reclassify mode: strict or auto-all (empty uses the policy)")
	return cmd
}

func newSyncAllCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "sync-all [user...]",
		Short: "Run a reconciliation pass for many users",
		Long:  "Runs every listed user, or every user with sync enabled when none are given. A failing user never stops the others.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.Service.SyncAll(cmd.Context(), args, concurrency)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Users processed at once (0 uses the policy)")
	return cmd
}
