package main

import (
	"github.com/aleksaelezovic/sparqlgen/internal/generator"
	"github.com/aleksaelezovic/sparqlgen/internal/input"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newReplicateCmd(a *app) *cobra.Command {
	var (
		state   string
		out     string
		exclude string
		save    string
	)
	cmd := &cobra.Command{
		Use:   "replicate [flags] DIFF_DIR",
		Short: "Replay a dataset's history from added/removed diff files",
		Long: `Replay a dataset's history from a directory tree of diff files.

Every file whose name ends in added.nt or removed.nt (optionally .gz or
.zst) becomes one INSERT DATA or DELETE DATA block, in path order. Each
block holds exactly the statements whose presence the file changed, so
running the blocks in order against the base state reproduces the final
dataset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			files, err := input.DiffFiles(a.fs, args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.WithHint(errors.Newf("no diff files below %s", args[0]), "diff file names end in added.nt or removed.nt")
			}

			c, cleanup, err := a.openWorkState(ctx, state)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts generator.ReplicaOptions
			if exclude != "" {
				// the exclude state gets its own working directory
				ex := *a
				cfg := *a.cfg
				cfg.Compress.WorkDir = ""
				ex.cfg = &cfg
				excl, cleanupExcl, err := ex.openWorkState(ctx, exclude)
				if err != nil {
					return err
				}
				defer cleanupExcl()
				opts.Exclude = excl
			}

			f, err := a.createOutput(out)
			if err != nil {
				return err
			}
			defer func() { err = errors.CombineErrors(err, closeOutput(f)) }()

			r := generator.NewReplica(c, opts, a.log)
			defer r.Close()
			w := serializer.NewWriter(f, r.Resolver(), a.cfg.Generate.OutputFormat)
			if _, err := r.Run(ctx, files, w); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if save != "" {
				return c.Save(ctx, a.fs, save)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&state, "state", "s", "", "compressor state of the base dataset")
	flags.StringVarP(&out, "out", "o", "-", "query output")
	flags.StringVarP(&exclude, "exclude", "E", "", "compressor state whose statements are pruned from the output")
	flags.StringVar(&save, "save", "", "write the final compressor state here")
	a.cfg.BindOutput(flags)
	a.cfg.BindCompress(flags)
	a.cfg.BindSnapshot(flags)
	return cmd
}
