package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/aleksaelezovic/sparqlgen/internal/config"
	"github.com/aleksaelezovic/sparqlgen/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app is the state shared by all commands.
type app struct {
	cfg        *config.Config
	configPath string
	fs         afero.Fs
	log        *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:           "sparqlgen",
		Short:         "Compress N-Triples datasets and generate SPARQL update workloads from them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				if err := a.cfg.Load(a.fs, a.configPath, cmd.Flags()); err != nil {
					return err
				}
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.New(a.cfg.Log.Level, a.cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	a.cfg.BindLog(root.PersistentFlags())

	root.AddCommand(
		newCompressCmd(a),
		newGenerateCmd(a),
		newReplicateCmd(a),
		newDecompressCmd(a),
		newStatsCmd(a),
		newContainedCmd(a),
	)
	return root
}
