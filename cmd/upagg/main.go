// Command upagg resolves each issuer's ultimate parent and country of
// domicile across the vendor sources and serves the results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var policyFile string

	cmd := &cobra.Command{
		Use:           "upagg",
		Short:         "Multi-source ultimate parent and country aggregation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&policyFile, "policy", "", "Aggregation policy YAML (default: $UPAGG_POLICY_FILE, then built-in)")

	cmd.AddCommand(newRunCmd(&policyFile))
	cmd.AddCommand(newServeCmd(&policyFile))
	cmd.AddCommand(newMigrateCmd())
	return cmd
}
