package main

import (
	"math/rand/v2"
	"slices"

	"github.com/aleksaelezovic/sparqlgen/internal/generator"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		state   string
		out     string
		prepare string
	)
	cmd := &cobra.Command{
		Use:   "generate [flags] REQUEST...",
		Short: "Generate randomized INSERT DATA / DELETE DATA queries",
		Long: `Generate randomized update queries from a compressor state.

Each REQUEST has the form <op><count>x<size>: op is i (INSERT DATA) or
d (DELETE DATA), count is the number of queries and size the number of
triples per query, either absolute or as a percentage of the dataset
(d10x0.5%). No triple is used by more than one query.

DELETE queries target triples of the dataset. INSERT queries target
triples the --prepare-out stream guarantees to be absent: run the prepare
stream against the dataset before the test stream.`,
		Example: "  sparqlgen generate -s state.spqg -o test.rq -O prepare.rq i100x10 d100x10",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			requests, err := workload.ParseRequests(args)
			if err != nil {
				return err
			}
			if a.cfg.Generate.InsertSource == generator.Recycled && prepare == "" &&
				slices.ContainsFunc(requests, func(r workload.Request) bool { return r.Kind == workload.Insert }) {
				return errors.WithHint(
					errors.New("recycled INSERT queries re-insert triples that are still present"),
					"pass --prepare-out to get the DELETE DATA queries that remove them first")
			}

			snap, err := a.openSnapshot(state)
			if err != nil {
				return err
			}
			defer snap.Close()

			testFile, err := a.createOutput(out)
			if err != nil {
				return err
			}
			defer func() { err = errors.CombineErrors(err, closeOutput(testFile)) }()
			test := serializer.NewWriter(testFile, snap, serializer.Query)

			var prep *serializer.Writer
			if prepare != "" {
				prepFile, err := a.createOutput(prepare)
				if err != nil {
					return err
				}
				defer func() { err = errors.CombineErrors(err, closeOutput(prepFile)) }()
				prep = serializer.NewWriter(prepFile, snap, a.cfg.Generate.PrepareFormat)
			}

			seed := a.cfg.Generate.Seed
			if seed == 0 {
				seed = rand.Uint64()
			}
			a.log.WithField("seed", seed).Info("seeding sampler")
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

			g := generator.NewRandomized(snap, generator.Options{
				Order:             a.cfg.Generate.Order,
				InsertSource:      a.cfg.Generate.InsertSource,
				MaxAbsentAttempts: a.cfg.Generate.MaxAbsentAttempts,
			}, a.log)

			var prepWriter generator.QueryWriter
			if prep != nil {
				prepWriter = prep
			}
			if _, err := g.Run(cmd.Context(), requests, rng, test, prepWriter); err != nil {
				return err
			}

			if err := test.Flush(); err != nil {
				return err
			}
			if prep != nil {
				return prep.Flush()
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&state, "state", "s", "", "compressor state to sample from")
	flags.StringVarP(&out, "out", "o", "-", "test query output")
	flags.StringVarP(&prepare, "prepare-out", "O", "", "prepare query output")
	_ = cmd.MarkFlagRequired("state")
	a.cfg.BindGenerate(flags)
	a.cfg.BindSnapshot(flags)
	return cmd
}
