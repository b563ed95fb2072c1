package cli

import (
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := initApp(ctx)
			if err != nil {
				return err
			}
			if err := app.Run(); err != nil {
				logger.ErrorLog(ctx, "Application failed: %v", err)
				return err
			}
			return nil
		},
	}
}
