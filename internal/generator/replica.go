package generator

import (
	"context"

	"github.com/aleksaelezovic/sparqlgen/internal/compressor"
	"github.com/aleksaelezovic/sparqlgen/internal/dictionary"
	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/input"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Excluder reports statements that must not appear in replica output.
// *compressor.Compressor implements it.
type Excluder interface {
	ContainsStatement(terms [3]string) (bool, error)
}

// ReplicaOptions configures a Replica.
type ReplicaOptions struct {
	// Exclude, if set, prunes statements it contains from the emitted
	// blocks. The working state is updated regardless.
	Exclude Excluder
}

// ReplicaResult summarizes a replica run.
type ReplicaResult struct {
	RunID    string
	Files    int
	Queries  uint64
	Triples  uint64
	Excluded uint64
	compressor.Stats
}

// Replica replays a dataset's history from diff files. Each file is
// applied to the working state before the next one is read, and becomes
// exactly one update block holding the statements whose presence it
// changed. Replaying the blocks in order against the base dataset
// therefore yields the final dataset.
type Replica struct {
	c    *compressor.Compressor
	opts ReplicaOptions
	log  logrus.FieldLogger
	view *view
}

// NewReplica creates a replica generator that evolves the working state
// held by c.
func NewReplica(c *compressor.Compressor, opts ReplicaOptions, log logrus.FieldLogger) *Replica {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Replica{c: c, opts: opts, log: log, view: &view{c: c}}
}

// Resolver returns a resolver that always reflects the terms known when
// the current block is written. Use it to build the serializer passed to
// Run.
func (r *Replica) Resolver() serializer.Resolver {
	return r.view
}

// Close releases the resolver's read view.
func (r *Replica) Close() error {
	return r.view.close()
}

// Run applies files in order and writes one block per file to out.
func (r *Replica) Run(ctx context.Context, files []input.DiffFile, out QueryWriter) (ReplicaResult, error) {
	res := ReplicaResult{RunID: uuid.NewString()}
	log := r.log.WithField("run", res.RunID)
	log.WithField("files", len(files)).Info("replicating diff files")

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.replay(ctx, f, out, &res); err != nil {
			return res, err
		}
		res.Files++
	}

	log.WithFields(logrus.Fields{
		"files":    res.Files,
		"queries":  humanize.Comma(int64(res.Queries)),
		"triples":  humanize.Comma(int64(res.Triples)),
		"excluded": res.Excluded,
		"absent":   res.Absent,
	}).Info("replication done")
	return res, nil
}

func (r *Replica) replay(ctx context.Context, f input.DiffFile, out QueryWriter, res *ReplicaResult) error {
	mode, kind := compressor.Insert, workload.Insert
	if f.Kind == input.Removed {
		mode, kind = compressor.Remove, workload.Delete
	}

	// no read view stays open across a write pass
	if err := r.view.close(); err != nil {
		return err
	}

	var changed []encoding.Triple
	st, err := r.c.ApplyFile(ctx, f.Path, mode, func(t encoding.Triple) {
		changed = append(changed, t)
	})
	res.Stats.Add(st)
	if err != nil {
		return err
	}

	if err := r.view.refresh(); err != nil {
		return err
	}
	if r.opts.Exclude != nil {
		kept := changed[:0]
		for _, t := range changed {
			excluded, err := r.excluded(t)
			if err != nil {
				return errors.Wrapf(err, "%s", f.Path)
			}
			if excluded {
				res.Excluded++
				continue
			}
			kept = append(kept, t)
		}
		changed = kept
	}

	if err := out.WriteQuery(kind, changed); err != nil {
		return errors.Wrapf(err, "%s", f.Path)
	}
	res.Queries++
	res.Triples += uint64(len(changed))
	return nil
}

func (r *Replica) excluded(t encoding.Triple) (bool, error) {
	var terms [3]string
	for i, id := range t {
		s, err := r.view.Resolve(id)
		if err != nil {
			return false, err
		}
		terms[i] = s
	}
	return r.opts.Exclude.ContainsStatement(terms)
}

// view is a dictionary resolver that is reopened after every applied file
// so it sees the terms the file interned.
type view struct {
	c   *compressor.Compressor
	cur *dictionary.Resolver
}

func (v *view) refresh() error {
	if err := v.close(); err != nil {
		return err
	}
	res, err := v.c.Resolver()
	if err != nil {
		return err
	}
	v.cur = res
	return nil
}

func (v *view) Resolve(id encoding.ID) (string, error) {
	if v.cur == nil {
		if err := v.refresh(); err != nil {
			return "", err
		}
	}
	return v.cur.Resolve(id)
}

func (v *view) close() error {
	if v.cur == nil {
		return nil
	}
	err := v.cur.Close()
	v.cur = nil
	return err
}
