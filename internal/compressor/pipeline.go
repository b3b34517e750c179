package compressor

import (
	"context"
	"io"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/input"
	"github.com/aleksaelezovic/sparqlgen/internal/storage"
	"github.com/aleksaelezovic/sparqlgen/pkg/rdf"
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// chunk is a run of consecutive input lines.
type chunk struct {
	seq   int
	lines []input.Line
}

// parsed is the outcome of parsing one line.
type parsed struct {
	line  int
	terms [3]string
	blank bool
	err   *rdf.ParseError
}

type parsedChunk struct {
	seq     int
	records []parsed
	lines   int
}

// Apply streams statements from r into the working state.
//
// Lines are read in chunks, parsed by Options.Workers goroutines and then
// encoded strictly in input order by a single writer, so term ids depend
// only on the order of the input. Malformed lines are logged with their
// position and skipped. onChange, if set, receives every triple whose
// presence changed: newly inserted ones in Insert mode, removed ones in
// Remove mode.
func (c *Compressor) Apply(ctx context.Context, name string, r io.Reader, mode Mode, onChange func(encoding.Triple)) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)

	chunks := make(chan chunk, c.opts.Workers)
	results := make(chan parsedChunk, c.opts.Workers)

	// reader
	g.Go(func() error {
		defer close(chunks)
		lr := input.NewLineReader(r)
		seq := 0
		cur := make([]input.Line, 0, c.opts.ChunkSize)
		send := func() error {
			select {
			case chunks <- chunk{seq: seq, lines: cur}:
			case <-ctx.Done():
				return ctx.Err()
			}
			seq++
			cur = make([]input.Line, 0, c.opts.ChunkSize)
			return nil
		}
		for lr.Next() {
			cur = append(cur, lr.Line())
			if len(cur) == c.opts.ChunkSize {
				if err := send(); err != nil {
					return err
				}
			}
		}
		if err := lr.Err(); err != nil {
			return errors.Wrapf(err, "%s", name)
		}
		if len(cur) > 0 {
			return send()
		}
		return nil
	})

	// parsers
	parsers, pctx := errgroup.WithContext(ctx)
	for i := 0; i < c.opts.Workers; i++ {
		parsers.Go(func() error {
			p := rdf.NewLineParser()
			for ch := range chunks {
				out := parsedChunk{seq: ch.seq, lines: len(ch.lines)}
				for _, line := range ch.lines {
					rec, ok := parseLine(p, name, line)
					if ok {
						out.records = append(out.records, rec)
					}
				}
				select {
				case results <- out:
				case <-pctx.Done():
					return pctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return parsers.Wait()
	})

	// encoder
	var st Stats
	g.Go(func() error {
		return c.encode(ctx, name, mode, results, onChange, &st)
	})

	err := g.Wait()
	return st, err
}

func parseLine(p *rdf.LineParser, name string, line input.Line) (parsed, bool) {
	triple, err := p.ParseLine(line.Text)
	if err != nil {
		var pe *rdf.ParseError
		if !errors.As(err, &pe) {
			pe = &rdf.ParseError{Column: 1, Msg: err.Error()}
		}
		pe.File = name
		pe.Line = line.No
		return parsed{line: line.No, err: pe}, true
	}
	if triple == nil {
		return parsed{}, false
	}
	return parsed{line: line.No, terms: triple.Canonical(), blank: triple.HasBlankNode()}, true
}

// encode consumes parsed chunks in sequence order and applies them.
func (c *Compressor) encode(ctx context.Context, name string, mode Mode, results <-chan parsedChunk, onChange func(encoding.Triple), st *Stats) error {
	log := c.log.WithField("file", name)

	batch := c.dict.NewBatch(c.opts.BatchSize, c.triples.Flush)
	defer batch.Rollback()

	pending := make(map[int]parsedChunk)
	next := 0
	for res := range results {
		pending[res.seq] = res
		for {
			ch, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			st.Lines += uint64(ch.lines)
			for _, rec := range ch.records {
				if err := c.encodeRecord(batch, log, mode, rec, onChange, st); err != nil {
					return errors.Wrapf(err, "%s:%d", name, rec.line)
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if len(pending) != 0 {
		// The parsers stopped early; their error is reported by the group.
		return ctx.Err()
	}
	return batch.Commit()
}

func (c *Compressor) encodeRecord(batch *storage.Batch, log logrus.FieldLogger, mode Mode, rec parsed, onChange func(encoding.Triple), st *Stats) error {
	if rec.err != nil {
		st.Malformed++
		log.WithFields(logrus.Fields{
			"line":   rec.err.Line,
			"column": rec.err.Column,
		}).Warnf("skipping malformed statement: %s", rec.err.Msg)
		return nil
	}

	st.Statements++
	if rec.blank && !c.opts.KeepBlankNodes {
		st.SkippedBlank++
		return nil
	}

	var (
		t       encoding.Triple
		changed bool
		known   bool
	)
	err := batch.Do(func(txn store.Transaction) error {
		changed = false
		known = true
		for i, term := range rec.terms {
			var err error
			if mode == Insert {
				t[i], _, err = c.dict.Intern(txn, term)
			} else {
				t[i], known, err = c.dict.Lookup(txn, term)
			}
			if err != nil {
				return err
			}
			if !known {
				return nil
			}
		}

		var err error
		if mode == Insert {
			changed, err = c.triples.InsertTxn(txn, t)
		} else {
			changed, err = c.triples.RemoveTxn(txn, t)
		}
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case mode == Insert && changed:
		st.Inserted++
	case mode == Insert:
		st.Duplicates++
	case changed:
		st.Removed++
	default:
		st.Absent++
	}
	if changed && onChange != nil {
		onChange(t)
	}
	return nil
}
