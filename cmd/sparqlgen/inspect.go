package main

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDecompressCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "decompress [flags] STATE",
		Short: "Write the statements of a compressor state as N-Triples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			snap, err := a.openSnapshot(args[0])
			if err != nil {
				return err
			}
			defer snap.Close()

			f, err := a.createOutput(out)
			if err != nil {
				return err
			}
			defer func() { err = errors.CombineErrors(err, closeOutput(f)) }()

			w := serializer.NewWriter(f, snap, serializer.NTriples)
			batch := make([]encoding.Triple, 0, 1024)
			err = snap.ForEachTriple(cmd.Context(), func(t encoding.Triple) error {
				batch = append(batch, t)
				if len(batch) < cap(batch) {
					return nil
				}
				err := w.WriteQuery(workload.Insert, batch)
				batch = batch[:0]
				return err
			})
			if err != nil {
				return err
			}
			if err := w.WriteQuery(workload.Insert, batch); err != nil {
				return err
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "N-Triples output")
	a.cfg.BindSnapshot(cmd.Flags())
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats STATE...",
		Short: "Print term and statement counts of compressor states",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				snap, err := a.openSnapshot(path)
				if err != nil {
					return err
				}

				var distinct [3]*roaring64.Bitmap
				for i := range distinct {
					distinct[i] = roaring64.New()
				}
				err = snap.ForEachTriple(cmd.Context(), func(t encoding.Triple) error {
					for i, id := range t {
						distinct[i].Add(uint64(id))
					}
					return nil
				})
				snap.Close()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s:\n", path)
				fmt.Fprintf(out, "  terms:      %s\n", humanize.Comma(int64(snap.NumTerms())))
				fmt.Fprintf(out, "  triples:    %s\n", humanize.Comma(int64(snap.Len())))
				fmt.Fprintf(out, "  subjects:   %s\n", humanize.Comma(int64(distinct[0].GetCardinality())))
				fmt.Fprintf(out, "  predicates: %s\n", humanize.Comma(int64(distinct[1].GetCardinality())))
				fmt.Fprintf(out, "  objects:    %s\n", humanize.Comma(int64(distinct[2].GetCardinality())))
			}
			return nil
		},
	}
	a.cfg.BindSnapshot(cmd.Flags())
	return cmd
}

func newContainedCmd(a *app) *cobra.Command {
	var mainState string
	cmd := &cobra.Command{
		Use:   "contained [flags] STATE...",
		Short: "Count how many statements of each state are contained in a main state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, cleanup, err := a.openWorkState(ctx, mainState)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, path := range args {
				snap, err := a.openSnapshot(path)
				if err != nil {
					return err
				}
				var contained uint64
				err = snap.ForEachTriple(ctx, func(t encoding.Triple) error {
					var terms [3]string
					for i, id := range t {
						s, err := snap.Resolve(id)
						if err != nil {
							return err
						}
						terms[i] = s
					}
					ok, err := c.ContainsStatement(terms)
					if ok {
						contained++
					}
					return err
				})
				total := snap.Len()
				snap.Close()
				if err != nil {
					return err
				}

				pct := 0.0
				if total > 0 {
					pct = 100 * float64(contained) / float64(total)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s of %s contained (%.2f%%)\n",
					path, humanize.Comma(int64(contained)), humanize.Comma(int64(total)), pct)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mainState, "main", "d", "", "main compressor state to check against")
	_ = cmd.MarkFlagRequired("main")
	a.cfg.BindCompress(cmd.Flags())
	a.cfg.BindSnapshot(cmd.Flags())
	return cmd
}
