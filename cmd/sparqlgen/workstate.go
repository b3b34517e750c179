package main

import (
	"context"
	"os"

	"github.com/aleksaelezovic/sparqlgen/internal/compressor"
	"github.com/aleksaelezovic/sparqlgen/internal/snapshot"
	"github.com/aleksaelezovic/sparqlgen/internal/storage"
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// openWorkState opens a compressor on the configured work directory, or on
// a temporary one that the returned cleanup removes. If from is set, the
// snapshot at that path is imported first.
func (a *app) openWorkState(ctx context.Context, from string) (*compressor.Compressor, func(), error) {
	dir := a.cfg.Compress.WorkDir
	temporary := dir == ""
	if temporary {
		var err error
		dir, err = os.MkdirTemp("", "sparqlgen-work-*")
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create work directory")
		}
	}
	cleanup := func() {
		if temporary {
			os.RemoveAll(dir)
		}
	}

	s, err := storage.OpenBadger(dir, storage.Options{SyncWrites: a.cfg.Compress.SyncWrites, Logger: a.log})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	c, err := compressor.Open(s, compressor.Options{
		Workers:        a.cfg.Compress.Workers,
		BatchSize:      a.cfg.Compress.BatchSize,
		ChunkSize:      a.cfg.Compress.ChunkSize,
		KeepBlankNodes: a.cfg.Compress.KeepBlankNodes,
		FS:             a.fs,
	}, a.log.WithField("work_dir", dir))
	if err != nil {
		s.Close()
		cleanup()
		return nil, nil, err
	}
	closeAll := func() {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close working state")
		}
		cleanup()
	}

	if from != "" {
		snap, err := a.openSnapshot(from)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		defer snap.Close()
		if _, err := c.Import(ctx, snap); err != nil {
			closeAll()
			return nil, nil, err
		}
	}
	return c, closeAll, nil
}

func (a *app) openSnapshot(path string) (*snapshot.Reader, error) {
	return snapshot.Open(a.fs, path, snapshot.Options{
		SkipVerify: a.cfg.Snapshot.SkipVerify,
		CacheSize:  a.cfg.Snapshot.CacheSize,
	})
}

// createOutput opens path for writing, truncating it unless appending.
// "-" is standard output.
func (a *app) createOutput(path string) (afero.File, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if a.cfg.Generate.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := a.fs.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return f, nil
}

func closeOutput(f afero.File) error {
	if f == os.Stdout {
		return nil
	}
	return errors.Wrapf(f.Close(), "failed to close %s", f.Name())
}
