// Package serializer renders encoded triples as SPARQL update blocks or
// N-Triples, resolving ids back to canonical term text.
package serializer

import (
	"bufio"
	"io"
	"strings"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/aleksaelezovic/sparqlgen/pkg/rdf"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnresolvableIdentifier means a triple references an id the
	// dictionary does not know. It indicates a broken state, not bad input.
	ErrUnresolvableIdentifier = errors.New("unresolvable identifier")

	// ErrBlankNodeInDelete is returned for DELETE DATA blocks that would
	// contain a blank node, which SPARQL does not allow.
	ErrBlankNodeInDelete = errors.New("blank node in DELETE DATA")
)

// Resolver maps ids to canonical N-Triples terms.
type Resolver interface {
	Resolve(id encoding.ID) (string, error)
}

// Format is the rendering of a query.
type Format int

const (
	// Query renders one INSERT DATA or DELETE DATA block per query.
	Query Format = iota
	// NTriples renders one statement per line with no block structure.
	NTriples
)

func (f Format) String() string {
	if f == NTriples {
		return "ntriples"
	}
	return "query"
}

// ParseFormat parses "query" or "ntriples".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "query":
		return Query, nil
	case "ntriples", "n-triples":
		return NTriples, nil
	}
	return 0, errors.WithHint(errors.Newf("unknown output format %q", s), "valid formats: query, ntriples")
}

// Set implements pflag.Value.
func (f *Format) Set(s string) error {
	v, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Type implements pflag.Value.
func (f *Format) Type() string { return "format" }

// UnmarshalText lets formats appear in config files.
func (f *Format) UnmarshalText(b []byte) error { return f.Set(string(b)) }

// MarshalText is the inverse of UnmarshalText.
func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Writer renders queries to an underlying writer. Output is buffered; call
// Flush when done.
type Writer struct {
	w      *bufio.Writer
	res    Resolver
	format Format

	buf     strings.Builder
	queries uint64
	triples uint64
}

// NewWriter creates a Writer rendering to w.
func NewWriter(w io.Writer, res Resolver, format Format) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<16), res: res, format: format}
}

// WriteQuery renders one query. All ids are resolved before anything is
// written, so a failed query leaves no partial block behind. A query with
// no triples renders as an empty block.
func (w *Writer) WriteQuery(kind workload.Kind, triples []encoding.Triple) error {
	w.buf.Reset()

	if w.format == Query {
		w.buf.WriteString(kind.String())
		w.buf.WriteString(" DATA { ")
	}
	for _, t := range triples {
		for i, id := range t {
			term, err := w.res.Resolve(id)
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "triple %v", t), ErrUnresolvableIdentifier)
			}
			if kind == workload.Delete && w.format == Query && rdf.KindOf(term) == rdf.TermTypeBlankNode {
				return errors.Wrapf(ErrBlankNodeInDelete, "term %s", term)
			}
			if i > 0 {
				w.buf.WriteByte(' ')
			}
			w.buf.WriteString(term)
		}
		if w.format == Query {
			w.buf.WriteString(" . ")
		} else {
			w.buf.WriteString(" .\n")
		}
	}
	if w.format == Query {
		w.buf.WriteString("}\n")
	}

	if _, err := w.w.WriteString(w.buf.String()); err != nil {
		return errors.Wrap(err, "failed to write query")
	}
	w.queries++
	w.triples += uint64(len(triples))
	return nil
}

// Flush writes any buffered output.
func (w *Writer) Flush() error {
	return errors.Wrap(w.w.Flush(), "failed to flush output")
}

// Queries returns the number of queries written.
func (w *Writer) Queries() uint64 { return w.queries }

// Triples returns the number of triples written.
func (w *Writer) Triples() uint64 { return w.triples }
