package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/problem"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var previewMod string
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Compile a constraint system and print its lattice without solving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := root.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			sys, err := problem.Load(args[0])
			if err != nil {
				return err
			}
			if err := sys.Validate(0); err != nil {
				return err
			}
			mod, err := parseMod(previewMod)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "System %s (fingerprint %s)\n", sys.Name, sys.Fingerprint())
			return sys.Inspect(out, mod, cvp.WithWarner(log), cvp.WithStrict(root.strict))
		},
	}
	cmd.Flags().StringVar(&previewMod, "preview-mod", "", "reduce printed lattice entries modulo this value")
	return cmd
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
