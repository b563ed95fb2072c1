package cli

import (
	"fmt"
	"os"

	"github.com/locvowork/task_reconciler/internal/report"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	var (
		withRemote bool
		xlsxPath   string
	)
	cmd := &cobra.Command{
		Use:   "audit <user>",
		Short: "Report duplicates, collisions and broken links without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			audit, err := app.Service.Audit(cmd.Context(), args[0], withRemote)
			if err != nil {
				return err
			}
			if xlsxPath == "" {
				return printJSON(cmd.OutOrStdout(), audit)
			}

			f, err := os.Create(xlsxPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", xlsxPath, err)
			}
			if err := report.WriteAuditWorkbook(f, audit); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "audit written to %s\n", xlsxPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRemote, "remote", false, "Also compare against the remote service")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the report to this xlsx file instead of stdout")
	return cmd
}
