package generator

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/sampling"
	"github.com/aleksaelezovic/sparqlgen/internal/serializer"
	"github.com/aleksaelezovic/sparqlgen/internal/snapshot"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// dataset is a synthetic snapshot source: subjects, predicates and objects
// use disjoint id ranges.
type dataset struct {
	terms   []string
	triples []encoding.Triple
}

func (d *dataset) ForEachTerm(ctx context.Context, fn func(encoding.ID, string) error) error {
	for i, term := range d.terms {
		if err := fn(encoding.ID(i+1), term); err != nil {
			return err
		}
	}
	return nil
}

func (d *dataset) ForEachTriple(ctx context.Context, fn func(encoding.Triple) error) error {
	for _, t := range d.triples {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func newDataset(subjects, predicates, objects, n int, rng *rand.Rand) *dataset {
	d := &dataset{}
	for i := 0; i < subjects; i++ {
		d.terms = append(d.terms, fmt.Sprintf("<http://example.org/s%d>", i))
	}
	for i := 0; i < predicates; i++ {
		d.terms = append(d.terms, fmt.Sprintf("<http://example.org/p%d>", i))
	}
	for i := 0; i < objects; i++ {
		d.terms = append(d.terms, fmt.Sprintf("\"o%d\"", i))
	}

	seen := make(map[encoding.Triple]struct{})
	for len(d.triples) < n {
		t := encoding.Triple{
			encoding.ID(1 + rng.IntN(subjects)),
			encoding.ID(1 + subjects + rng.IntN(predicates)),
			encoding.ID(1 + subjects + predicates + rng.IntN(objects)),
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		d.triples = append(d.triples, t)
	}
	slices.SortFunc(d.triples, encoding.CompareTriples)
	return d
}

func openDataset(t *testing.T, d *dataset) *snapshot.Reader {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, snapshot.Write(context.Background(), fs, "/base.spqg", d))
	rd, err := snapshot.Open(fs, "/base.spqg", snapshot.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { rd.Close() })
	return rd
}

type query struct {
	kind    workload.Kind
	triples []encoding.Triple
}

type recorder struct {
	queries []query
}

func (r *recorder) WriteQuery(kind workload.Kind, triples []encoding.Triple) error {
	r.queries = append(r.queries, query{kind: kind, triples: slices.Clone(triples)})
	return nil
}

func run(t *testing.T, pop sampling.Population, opts Options, tokens ...string) (*recorder, *recorder, Result, error) {
	t.Helper()
	reqs, err := workload.ParseRequests(tokens)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	g := NewRandomized(pop, opts, logger)
	var tst, prep recorder
	res, err := g.Run(context.Background(), reqs, rand.New(rand.NewPCG(7, 11)), &tst, &prep)
	return &tst, &prep, res, err
}

func TestWorkloadFidelity(t *testing.T) {
	rd := openDataset(t, newDataset(200, 10, 1000, 2000, rand.New(rand.NewPCG(1, 1))))

	tst, prep, res, err := run(t, rd, Options{}, "i10000x10", "i20x3", "d150x10")
	require.NoError(t, err)
	require.Equal(t, uint64(10170), res.Queries)
	require.Equal(t, uint64(10020), res.InsertQueries)
	require.Equal(t, uint64(150), res.DeleteQueries)
	require.NotEmpty(t, res.RunID)

	require.Len(t, tst.queries, 10170)
	for i, q := range tst.queries[:10000] {
		require.Equal(t, workload.Insert, q.kind, i)
		require.Len(t, q.triples, 10, i)
	}
	for _, q := range tst.queries[10000:10020] {
		require.Equal(t, workload.Insert, q.kind)
		require.Len(t, q.triples, 3)
	}
	for _, q := range tst.queries[10020:] {
		require.Equal(t, workload.Delete, q.kind)
		require.Len(t, q.triples, 10)
	}

	seen := make(map[encoding.Triple]int)
	for i, q := range tst.queries {
		for _, tr := range q.triples {
			prev, dup := seen[tr]
			require.False(t, dup, "triple %v in queries %d and %d", tr, prev, i)
			seen[tr] = i
		}
	}

	// every insert test query has its aligned prepare query
	require.Len(t, prep.queries, 10020)
	for i, q := range prep.queries {
		require.Equal(t, workload.Delete, q.kind)
		require.Equal(t, tst.queries[i].triples, q.triples)
	}
}

// checkInvariants applies the prepare stream to the base dataset and checks
// that deletes target present and inserts target absent triples.
func checkInvariants(t *testing.T, d *dataset, tst, prep *recorder) {
	t.Helper()
	state := make(map[encoding.Triple]bool, len(d.triples))
	for _, tr := range d.triples {
		state[tr] = true
	}
	for _, q := range prep.queries {
		for _, tr := range q.triples {
			state[tr] = q.kind == workload.Insert
		}
	}
	for i, q := range tst.queries {
		for _, tr := range q.triples {
			if q.kind == workload.Delete {
				require.True(t, state[tr], "query %d deletes absent %v", i, tr)
			} else {
				require.False(t, state[tr], "query %d inserts present %v", i, tr)
			}
		}
	}
}

func TestPresenceAndAbsence(t *testing.T) {
	d := newDataset(30, 4, 60, 500, rand.New(rand.NewPCG(2, 2)))
	rd := openDataset(t, d)

	for _, src := range []InsertSource{Absent, Recycled} {
		t.Run(src.String(), func(t *testing.T) {
			for _, order := range []workload.Order{workload.AsSpecified, workload.Randomized, workload.SizeDesc} {
				tst, prep, _, err := run(t, rd, Options{InsertSource: src, Order: order}, "d10x5", "i10x5", "d3x20", "i4x10%")
				require.NoError(t, err)
				checkInvariants(t, d, tst, prep)
			}
		})
	}
}

func TestAlternateOrder(t *testing.T) {
	rd := openDataset(t, newDataset(30, 4, 60, 500, rand.New(rand.NewPCG(3, 3))))

	tst, _, _, err := run(t, rd, Options{Order: workload.Alternate}, "i3x2", "d3x1")
	require.NoError(t, err)
	require.Len(t, tst.queries, 6)
	for i, q := range tst.queries {
		if i%2 == 0 {
			require.Equal(t, workload.Insert, q.kind)
		} else {
			require.Equal(t, workload.Delete, q.kind)
		}
	}
}

func TestInsufficientPopulation(t *testing.T) {
	rd := openDataset(t, newDataset(30, 4, 60, 100, rand.New(rand.NewPCG(4, 4))))

	tst, prep, _, err := run(t, rd, Options{}, "d5x10", "d6x10")
	require.True(t, errors.Is(err, sampling.ErrInsufficientPopulation))
	require.Contains(t, err.Error(), "d6x10")
	require.Empty(t, tst.queries)
	require.Empty(t, prep.queries)

	// recycled inserts draw from the same pool
	_, _, _, err = run(t, rd, Options{InsertSource: Recycled}, "d5x10", "i6x10")
	require.True(t, errors.Is(err, sampling.ErrInsufficientPopulation))

	// absent inserts do not
	_, _, _, err = run(t, rd, Options{}, "d10x10", "i6x10")
	require.NoError(t, err)
}

func TestSamplingExhausted(t *testing.T) {
	// every combination of the 2x1x2 term space is present
	d := &dataset{
		terms:   []string{"<http://example.org/a>", "<http://example.org/b>", "<http://example.org/p>", `"x"`, `"y"`},
		triples: []encoding.Triple{{1, 3, 4}, {1, 3, 5}, {2, 3, 4}, {2, 3, 5}},
	}
	rd := openDataset(t, d)

	_, _, _, err := run(t, rd, Options{MaxAbsentAttempts: 50}, "d1x1", "i1x1")
	require.True(t, errors.Is(err, sampling.ErrSamplingExhausted))
	require.Contains(t, err.Error(), "i1x1")
}

func TestZeroSizeQueries(t *testing.T) {
	rd := openDataset(t, newDataset(30, 4, 60, 100, rand.New(rand.NewPCG(5, 5))))

	var out, prep bytes.Buffer
	tw := serializer.NewWriter(&out, rd, serializer.Query)
	pw := serializer.NewWriter(&prep, rd, serializer.Query)

	reqs, err := workload.ParseRequests([]string{"i2x0", "d1x0"})
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	_, err = NewRandomized(rd, Options{}, logger).Run(context.Background(), reqs, rand.New(rand.NewPCG(1, 2)), tw, pw)
	require.NoError(t, err)
	require.NoError(t, tw.Flush())
	require.NoError(t, pw.Flush())

	require.Equal(t, "INSERT DATA { }\nINSERT DATA { }\nDELETE DATA { }\n", out.String())
	require.Equal(t, "DELETE DATA { }\nDELETE DATA { }\n", prep.String())
}

func TestRenderedQueries(t *testing.T) {
	d := newDataset(30, 4, 60, 200, rand.New(rand.NewPCG(6, 6)))
	rd := openDataset(t, d)

	var out, prep bytes.Buffer
	tw := serializer.NewWriter(&out, rd, serializer.Query)
	pw := serializer.NewWriter(&prep, rd, serializer.NTriples)

	reqs, err := workload.ParseRequests([]string{"d4x3", "i2x5"})
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	_, err = NewRandomized(rd, Options{}, logger).Run(context.Background(), reqs, rand.New(rand.NewPCG(1, 2)), tw, pw)
	require.NoError(t, err)
	require.NoError(t, tw.Flush())
	require.NoError(t, pw.Flush())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	for _, l := range lines[:4] {
		require.True(t, strings.HasPrefix(l, "DELETE DATA { <http://example.org/s"), l)
		require.Equal(t, 3, strings.Count(l, " . "), l)
		require.True(t, strings.HasSuffix(l, " . }"), l)
	}
	for _, l := range lines[4:] {
		require.True(t, strings.HasPrefix(l, "INSERT DATA { "), l)
		require.Equal(t, 5, strings.Count(l, " . "), l)
	}

	// N-Triples prepare output: one line per statement
	require.Equal(t, 10, strings.Count(prep.String(), " .\n"))
}

func TestSnapshotUntouched(t *testing.T) {
	d := newDataset(30, 4, 60, 300, rand.New(rand.NewPCG(8, 8)))
	rd := openDataset(t, d)

	_, _, _, err := run(t, rd, Options{}, "d30x10", "i10x10")
	require.NoError(t, err)

	require.Equal(t, uint64(300), rd.Len())
	var got []encoding.Triple
	require.NoError(t, rd.ForEachTriple(context.Background(), func(tr encoding.Triple) error {
		got = append(got, tr)
		return nil
	}))
	require.Equal(t, d.triples, got)
}

func TestRunHonoursCancel(t *testing.T) {
	rd := openDataset(t, newDataset(30, 4, 60, 100, rand.New(rand.NewPCG(9, 9))))
	reqs, err := workload.ParseRequests([]string{"d1x1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger, _ := test.NewNullLogger()
	_, err = NewRandomized(rd, Options{}, logger).Run(ctx, reqs, rand.New(rand.NewPCG(1, 2)), &recorder{}, nil)
	require.True(t, errors.Is(err, context.Canceled))
}
