package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/api-enricher/internal/config"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(config.New())
	err := runCLI(ctx, a, newRootCmd(a))
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runCLI executes cmd and always releases what setup acquired. cobra skips
// post-run hooks when a command fails, so this cannot live in one.
func runCLI(ctx context.Context, a *app, cmd *cobra.Command) error {
	defer a.close()
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "enricher",
		Short: "Reference-following enrichment reports over REST and OData APIs",
		Long: `enricher walks paginated API collections, resolves the references of each
record (pilots, species, films, ...) through a run-scoped cache and writes
denormalized JSON or CSV reports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	a.bindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newVehiclesCmd(a))
	rootCmd.AddCommand(newGrievousCmd(a))
	rootCmd.AddCommand(newLongestFlightCmd(a))
	rootCmd.AddCommand(newTeamSalaryCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
