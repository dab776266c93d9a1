// Command cvpknife solves systems of bounded linear constraints by reducing
// them to a closest vector problem.
//
// Usage:
//
//	cvpknife solve system.yaml --format mapping --show
//	cvpknife inspect system.yaml --preview-mod 65537
//	cvpknife recover-nonce sigs.yaml --bits 128
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cvp-knife/internal/logger"
)

type rootOptions struct {
	logLevel string
	strict   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cvpknife",
		Short:         "Solve bounded linear constraint systems with lattice reduction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.strict, "strict", false, "treat warnings as errors")

	root.AddCommand(
		newSolveCmd(opts),
		newInspectCmd(opts),
		newRecoverCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() (*logger.Logger, error) {
	return logger.NewWithLevel(100, o.logLevel)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
