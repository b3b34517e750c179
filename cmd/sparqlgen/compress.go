package main

import (
	"github.com/aleksaelezovic/sparqlgen/internal/compressor"
	"github.com/aleksaelezovic/sparqlgen/internal/input"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newCompressCmd(a *app) *cobra.Command {
	var (
		previous string
		out      string
		remove   []string
	)
	cmd := &cobra.Command{
		Use:   "compress [flags] DATASET...",
		Short: "Compress N-Triples datasets into a compressor state",
		Long: `Compress N-Triples datasets (optionally .gz or .zst) into a compressor state.

With --previous the existing state is loaded first and the datasets extend
it; term ids of the existing state are kept. Statements in the --remove
datasets are removed afterwards.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = previous
			}
			if out == "" {
				return errors.WithHint(errors.New("no output path"), "pass --out, or --previous to update it in place")
			}

			datasets, err := input.Datasets(a.fs, args, a.cfg.Compress.Recursive, nil)
			if err != nil {
				return err
			}
			removals, err := input.Datasets(a.fs, remove, a.cfg.Compress.Recursive, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, cleanup, err := a.openWorkState(ctx, previous)
			if err != nil {
				return err
			}
			defer cleanup()

			var total compressor.Stats
			var st compressor.Stats
			if previous == "" && c.Len() == 0 && c.NumTerms() == 0 {
				st, err = c.Build(ctx, datasets)
			} else {
				st, err = c.Extend(ctx, datasets)
			}
			total.Add(st)
			if err != nil {
				return err
			}
			if len(removals) > 0 {
				st, err = c.ApplyRemoval(ctx, removals)
				total.Add(st)
				if err != nil {
					return err
				}
			}
			a.log.WithFields(total.Fields()).Info("compression done")

			return c.Save(ctx, a.fs, out)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&previous, "previous", "i", "", "existing compressor state to extend")
	flags.StringVarP(&out, "out", "o", "", "where to write the compressor state (default: --previous)")
	flags.StringSliceVar(&remove, "remove", nil, "datasets whose statements are removed after compression")
	a.cfg.BindCompress(flags)
	return cmd
}
