package cli

import (
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var (
		apply bool
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "cleanup <user>",
		Short: "Collapse duplicates and reclassify orphans (dry run unless --apply)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Service.Cleanup(cmd.Context(), args[0], reconcile.CleanupOptions{DryRun: !apply, Mode: mode})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the changes instead of only planning them")
	cmd.Flags().StringVar(&mode, "mode", "", "Reclassify mode: strict or auto-all (empty uses the policy)")
	return cmd
}
