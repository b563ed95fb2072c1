package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/locvowork/task_reconciler/internal/bootstrap"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "task_reconciler",
		Short: "Reconcile and deduplicate tasks against Google Tasks",
		Long: `task_reconciler keeps a local task store and each user's Google Tasks account in agreement.

It pushes local changes, pulls remote edits, collapses duplicates and folds orphan
top-level tasks into the sub-tasks they duplicate.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newSyncAllCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newCleanupCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func initApp(ctx context.Context) (*bootstrap.App, error) {
	app := bootstrap.NewApp()
	if err := app.Initialize(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return app, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
