// Package generator produces update workloads from a compressed dataset:
// randomized INSERT/DELETE queries sampled from a snapshot, and replicas of
// a dataset's history replayed from diff files.
package generator

import (
	"context"
	"math/rand/v2"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/sampling"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// QueryWriter receives generated queries in emission order.
// *serializer.Writer implements it.
type QueryWriter interface {
	WriteQuery(kind workload.Kind, triples []encoding.Triple) error
}

// InsertSource selects where the triples of INSERT queries come from.
type InsertSource int

const (
	// Absent inserts triples that are not in the dataset. The prepare
	// stream deletes them anyway so a drifted target is brought back to
	// the base state.
	Absent InsertSource = iota
	// Recycled inserts triples drawn from the dataset; the prepare stream
	// deletes them first.
	Recycled
)

func (s InsertSource) String() string {
	if s == Recycled {
		return "recycled"
	}
	return "absent"
}

// Set implements pflag.Value.
func (s *InsertSource) Set(v string) error {
	switch v {
	case "absent":
		*s = Absent
	case "recycled":
		*s = Recycled
	default:
		return errors.WithHint(errors.Newf("unknown insert source %q", v), "valid sources: absent, recycled")
	}
	return nil
}

// Type implements pflag.Value.
func (s *InsertSource) Type() string { return "source" }

// UnmarshalText lets insert sources appear in config files.
func (s *InsertSource) UnmarshalText(b []byte) error { return s.Set(string(b)) }

// MarshalText is the inverse of UnmarshalText.
func (s InsertSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options configures a Randomized generator.
type Options struct {
	Order        workload.Order
	InsertSource InsertSource
	// MaxAbsentAttempts bounds consecutive rejected candidates when
	// generating absent triples. Zero selects the sampling default.
	MaxAbsentAttempts int
}

// Result summarizes a generation run.
type Result struct {
	RunID         string
	Queries       uint64
	InsertQueries uint64
	DeleteQueries uint64
	Triples       uint64
}

// Fields renders the result as log fields.
func (r Result) Fields() logrus.Fields {
	return logrus.Fields{
		"run":     r.RunID,
		"queries": humanize.Comma(int64(r.Queries)),
		"inserts": humanize.Comma(int64(r.InsertQueries)),
		"deletes": humanize.Comma(int64(r.DeleteQueries)),
		"triples": humanize.Comma(int64(r.Triples)),
	}
}

// Randomized samples queries from an immutable dataset.
//
// DELETE queries target triples of the dataset. INSERT queries target
// triples that are absent from the dataset once the prepare stream has
// been applied. Every triple is used by at most one query of a run; the
// dataset itself is never modified, draws only shrink a scratch pool
// private to the run.
type Randomized struct {
	pop  sampling.Population
	opts Options
	log  logrus.FieldLogger
}

// NewRandomized creates a generator over pop.
func NewRandomized(pop sampling.Population, opts Options, log logrus.FieldLogger) *Randomized {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.MaxAbsentAttempts <= 0 {
		opts.MaxAbsentAttempts = sampling.DefaultMaxAbsentAttempts
	}
	return &Randomized{pop: pop, opts: opts, log: log}
}

// Run generates the queries of all requests. Test queries go to test;
// the DELETE DATA queries that prepare the target for INSERT tests go to
// prepare, which may be nil. Nothing is written when the requests cannot
// all be satisfied from the present triples.
func (g *Randomized) Run(ctx context.Context, requests []workload.Request, rng *rand.Rand, test, prepare QueryWriter) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := g.log.WithField("run", res.RunID)

	total := g.pop.Len()
	slots, err := workload.Plan(requests, total, g.opts.Order, rng)
	if err != nil {
		return res, err
	}
	if err := g.checkPopulation(requests, slots, total); err != nil {
		return res, err
	}

	log.WithFields(logrus.Fields{
		"triples": humanize.Comma(int64(total)),
		"queries": humanize.Comma(int64(len(slots))),
		"order":   g.opts.Order,
		"inserts": g.opts.InsertSource,
	}).Info("generating queries")

	scratch := sampling.NewScratch(g.pop, rng)
	scratch.MaxAbsentAttempts = g.opts.MaxAbsentAttempts

	for i, slot := range slots {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := g.generate(scratch, slot, test, prepare, &res); err != nil {
			return res, errors.Wrapf(err, "request %s (query %d of the run)", requests[slot.Request], i+1)
		}
		if (i+1)%100000 == 0 {
			log.WithField("queries", humanize.Comma(int64(i+1))).Info("progress")
		}
	}

	log.WithFields(res.Fields()).Info("generation done")
	return res, nil
}

func (g *Randomized) generate(scratch *sampling.Scratch, slot workload.Slot, test, prepare QueryWriter, res *Result) error {
	var (
		triples []encoding.Triple
		err     error
	)
	switch {
	case slot.Kind == workload.Delete:
		triples, err = scratch.SamplePresent(slot.Size)
	case g.opts.InsertSource == Recycled:
		triples, err = scratch.SamplePresent(slot.Size)
	default:
		triples, err = scratch.SampleAbsent(slot.Size)
	}
	if err != nil {
		return err
	}

	if slot.Kind == workload.Insert && prepare != nil {
		if err := prepare.WriteQuery(workload.Delete, triples); err != nil {
			return err
		}
	}
	if err := test.WriteQuery(slot.Kind, triples); err != nil {
		return err
	}

	res.Queries++
	res.Triples += uint64(len(triples))
	if slot.Kind == workload.Insert {
		res.InsertQueries++
	} else {
		res.DeleteQueries++
	}
	return nil
}

// checkPopulation fails before any output is produced if the present
// triples cannot cover every query drawing from them.
func (g *Randomized) checkPopulation(requests []workload.Request, slots []workload.Slot, total uint64) error {
	var need uint64
	for _, slot := range slots {
		if slot.Kind == workload.Insert && g.opts.InsertSource == Absent {
			continue
		}
		need += uint64(slot.Size)
		if need > total {
			err := errors.Wrapf(sampling.ErrInsufficientPopulation,
				"request %s: the run needs at least %s present triples, the dataset has %s",
				requests[slot.Request], humanize.Comma(int64(need)), humanize.Comma(int64(total)))
			return errors.WithHint(err, "reduce the query count or size, or use a larger dataset")
		}
	}
	return nil
}
