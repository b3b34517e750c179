// Package compressor turns N-Triples files into the encoded working state
// (dictionary plus triple set) and persists that state as snapshots.
package compressor

import (
	"context"
	"runtime"

	"github.com/aleksaelezovic/sparqlgen/internal/dictionary"
	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/input"
	"github.com/aleksaelezovic/sparqlgen/internal/snapshot"
	"github.com/aleksaelezovic/sparqlgen/internal/storage"
	"github.com/aleksaelezovic/sparqlgen/internal/triplestore"
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Mode selects what Apply does with the statements it reads.
type Mode int

const (
	// Insert adds statements, interning new terms.
	Insert Mode = iota
	// Remove deletes statements. Terms are only looked up, never interned;
	// a statement with an unknown term cannot be present.
	Remove
)

func (m Mode) String() string {
	if m == Remove {
		return "remove"
	}
	return "insert"
}

// Options configures a Compressor.
type Options struct {
	// Workers is the number of parser goroutines. Zero uses GOMAXPROCS.
	Workers int
	// BatchSize is the number of statements per storage transaction.
	BatchSize int
	// ChunkSize is the number of lines handed to a parser at once.
	ChunkSize int
	// KeepBlankNodes keeps statements with blank nodes; by default they are
	// skipped because DELETE DATA cannot target them.
	KeepBlankNodes bool
	// FS is where input files are read from. Nil means the OS filesystem.
	FS afero.Fs
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = storage.DefaultBatchSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1024
	}
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
}

// Stats counts what happened during one or more Apply calls.
type Stats struct {
	Lines        uint64
	Statements   uint64
	Malformed    uint64
	SkippedBlank uint64
	Inserted     uint64
	Duplicates   uint64
	Removed      uint64
	Absent       uint64
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Statements += o.Statements
	s.Malformed += o.Malformed
	s.SkippedBlank += o.SkippedBlank
	s.Inserted += o.Inserted
	s.Duplicates += o.Duplicates
	s.Removed += o.Removed
	s.Absent += o.Absent
}

// Fields renders the stats as log fields.
func (s Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"lines":      humanize.Comma(int64(s.Lines)),
		"statements": humanize.Comma(int64(s.Statements)),
		"malformed":  s.Malformed,
		"blank":      s.SkippedBlank,
		"inserted":   humanize.Comma(int64(s.Inserted)),
		"duplicates": s.Duplicates,
		"removed":    humanize.Comma(int64(s.Removed)),
		"absent":     s.Absent,
	}
}

// Compressor owns a working state. It is not safe for concurrent use; one
// pipeline run at a time owns the state.
type Compressor struct {
	storage store.Storage
	dict    *dictionary.Dictionary
	triples *triplestore.TripleStore
	opts    Options
	log     logrus.FieldLogger
}

// Open attaches a compressor to the working state held in s.
func Open(s store.Storage, opts Options, log logrus.FieldLogger) (*Compressor, error) {
	opts.setDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	dict, err := dictionary.Open(s)
	if err != nil {
		return nil, err
	}
	triples, err := triplestore.Open(s)
	if err != nil {
		return nil, err
	}
	return &Compressor{storage: s, dict: dict, triples: triples, opts: opts, log: log}, nil
}

// Close closes the underlying storage.
func (c *Compressor) Close() error {
	return c.storage.Close()
}

// NumTerms returns the number of interned terms.
func (c *Compressor) NumTerms() uint64 { return c.dict.Len() }

// Len returns the number of stored triples.
func (c *Compressor) Len() uint64 { return c.triples.Len() }

// Build compresses the given files into an empty working state.
func (c *Compressor) Build(ctx context.Context, paths []string) (Stats, error) {
	if c.dict.Len() != 0 || c.triples.Len() != 0 {
		return Stats{}, errors.WithHint(errors.New("working state is not empty"), "use extend to add to an existing state")
	}
	return c.applyFiles(ctx, paths, Insert)
}

// Extend adds the statements of the given files to the working state.
func (c *Compressor) Extend(ctx context.Context, paths []string) (Stats, error) {
	return c.applyFiles(ctx, paths, Insert)
}

// ApplyRemoval removes the statements of the given files from the working
// state. Statements that are not present are counted and otherwise ignored.
func (c *Compressor) ApplyRemoval(ctx context.Context, paths []string) (Stats, error) {
	return c.applyFiles(ctx, paths, Remove)
}

func (c *Compressor) applyFiles(ctx context.Context, paths []string, mode Mode) (Stats, error) {
	var total Stats
	for _, path := range paths {
		st, err := c.ApplyFile(ctx, path, mode, nil)
		total.Add(st)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ApplyFile runs Apply over one (possibly compressed) file.
func (c *Compressor) ApplyFile(ctx context.Context, path string, mode Mode, onChange func(encoding.Triple)) (Stats, error) {
	r, err := input.Open(c.opts.FS, path)
	if err != nil {
		return Stats{}, err
	}
	defer r.Close()

	log := c.log.WithField("file", path)
	log.WithField("mode", mode).Info("reading statements")

	st, err := c.Apply(ctx, path, r, mode, onChange)
	if err != nil {
		return st, errors.Wrapf(err, "%s", path)
	}
	log.WithFields(st.Fields()).Info("done")
	return st, nil
}

// Import merges a snapshot into the working state: its terms are interned
// and its triples, translated to local ids, are inserted. Importing into an
// empty state reproduces the snapshot's ids exactly.
func (c *Compressor) Import(ctx context.Context, snap *snapshot.Reader) (Stats, error) {
	log := c.log.WithField("snapshot", snap.Path())
	log.WithFields(logrus.Fields{
		"terms":   humanize.Comma(int64(snap.NumTerms())),
		"triples": humanize.Comma(int64(snap.Len())),
	}).Info("importing compressor state")

	remap, err := c.dict.Merge(ctx, snap, c.opts.BatchSize)
	if err != nil {
		return Stats{}, err
	}
	defer remap.Release()

	var st Stats
	batch := c.dict.NewBatch(c.opts.BatchSize, c.triples.Flush)
	defer batch.Rollback()

	err = snap.ForEachTriple(ctx, func(t encoding.Triple) error {
		st.Statements++
		var added bool
		err := batch.Do(func(txn store.Transaction) error {
			local, err := remap.MapTriple(txn, t)
			if err != nil {
				return err
			}
			added, err = c.triples.InsertTxn(txn, local)
			return err
		})
		if err != nil {
			return err
		}
		if added {
			st.Inserted++
		} else {
			st.Duplicates++
		}
		return nil
	})
	if err != nil {
		return st, errors.Wrapf(err, "failed to import %s", snap.Path())
	}
	if err := batch.Commit(); err != nil {
		return st, err
	}

	log.WithFields(st.Fields()).Info("import done")
	return st, nil
}

// Save writes the working state as a snapshot at path.
func (c *Compressor) Save(ctx context.Context, fs afero.Fs, path string) error {
	c.log.WithFields(logrus.Fields{
		"path":    path,
		"terms":   humanize.Comma(int64(c.NumTerms())),
		"triples": humanize.Comma(int64(c.Len())),
	}).Info("writing compressor state")
	return snapshot.Write(ctx, fs, path, c)
}

// ForEachTerm enumerates the dictionary in id order.
func (c *Compressor) ForEachTerm(ctx context.Context, fn func(id encoding.ID, canonical string) error) error {
	return c.dict.ForEach(ctx, fn)
}

// ForEachTriple enumerates the triple set in sorted order.
func (c *Compressor) ForEachTriple(ctx context.Context, fn func(t encoding.Triple) error) error {
	return c.triples.ForEach(ctx, fn)
}

// ContainsStatement reports whether the statement with the given canonical
// terms is stored. Unknown terms mean it is not.
func (c *Compressor) ContainsStatement(terms [3]string) (bool, error) {
	txn, err := c.storage.Begin(false)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()

	var t encoding.Triple
	for i, term := range terms {
		id, ok, err := c.dict.Lookup(txn, term)
		if err != nil || !ok {
			return false, err
		}
		t[i] = id
	}
	return c.triples.ContainsTxn(txn, t)
}

// Resolver returns a read view of the dictionary as of now.
func (c *Compressor) Resolver() (*dictionary.Resolver, error) {
	return c.dict.NewResolver()
}
