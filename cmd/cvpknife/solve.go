package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/expr"
	"cvp-knife/internal/problem"
)

type solveOptions struct {
	format     string
	show       bool
	previewMod string
	asJSON     bool
	timeout    time.Duration
}

func newSolveCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Solve a constraint system and print the traced values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "", "result format: list or mapping (defaults to the file's format)")
	cmd.Flags().BoolVar(&opts.show, "show", false, "print the compiled lattice before the result")
	cmd.Flags().StringVar(&opts.previewMod, "preview-mod", "", "reduce printed lattice entries modulo this value")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

func parseMod(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	m, ok := expr.ParseInt(s)
	if !ok || m.Sign() <= 0 {
		return nil, fmt.Errorf("invalid --preview-mod %q", s)
	}
	return m, nil
}

func runSolve(cmd *cobra.Command, root *rootOptions, opts *solveOptions, path string) error {
	log, err := root.logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	sys, err := problem.Load(path)
	if err != nil {
		return err
	}
	if opts.format != "" {
		sys.Format = opts.format
	}
	mod, err := parseMod(opts.previewMod)
	if err != nil {
		return err
	}

	cvpOpts := []cvp.Option{cvp.WithWarner(log), cvp.WithStrict(root.strict)}
	out := cmd.OutOrStdout()
	if opts.show {
		if err := sys.Inspect(out, mod, cvpOpts...); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	ctx, cancel := contextWithTimeout(cmd, opts.timeout)
	defer cancel()

	res, err := sys.Run(ctx, cvpOpts...)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Format == cvp.FormatMapping {
		keys := make([]string, 0, len(res.Mapping))
		for k := range res.Mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %s\n", k, res.Mapping[k])
		}
	} else {
		fmt.Fprintf(out, "[%s]\n", strings.Join(res.Values, ", "))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}
