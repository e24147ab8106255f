// Package contextcmd inspects the persisted conversation context from the
// command line.
package contextcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clerkai/clerkbridge/contextstore"
	"github.com/clerkai/clerkbridge/internal/logging"
	"github.com/clerkai/clerkbridge/internal/statepaths"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Inspect the cached conversation context",
	}
	cmd.AddCommand(newShowCmd())
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the rendered conversation context",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.FromViper()
			if err != nil {
				return err
			}
			store, err := contextstore.New(contextstore.Options{
				StatePath: statepaths.ContextFile(),
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			store.Load()
			fmt.Fprintln(cmd.OutOrStdout(), store.Render())
			return nil
		},
	}
}
