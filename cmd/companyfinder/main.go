// Package main is the companyfinder CLI: it resolves company names to their
// LinkedIn company page URLs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/FranksOps/companyfinder/pkg/logger"
)

type rootOptions struct {
	verbosity int
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	resolve := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "companyfinder",
		Short: "Find LinkedIn company page URLs for a list of company names",
		Long: "companyfinder searches the web for each company in an input file, picks the best " +
			"matching LinkedIn company page and writes one record per company.\n\n" +
			"Running it without a subcommand is the same as running resolve.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := logger.Init(cmd.ErrOrStderr(), opts.logFormat, opts.verbosity)
			return err
		},
		RunE: resolve.run,
	}

	pf := cmd.PersistentFlags()
	pf.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug)")
	pf.StringVar(&opts.logFormat, "log-format", logger.FormatText, "Log format: text or json")

	resolve.addFlags(cmd)
	cmd.AddCommand(newResolveCmd(), newReportCmd())
	return cmd
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("companyfinder failed", "err", err)
		os.Exit(1)
	}
}
