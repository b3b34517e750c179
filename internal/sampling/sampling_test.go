package sampling

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// sliceMemPop is a sorted in-memory population.
type sliceMemPop []encoding.Triple

func (p sliceMemPop) Len() uint64 { return uint64(len(p)) }

func (p sliceMemPop) Triple(rank uint64) (encoding.Triple, error) { return p[rank], nil }

func (p sliceMemPop) Contains(t encoding.Triple) (bool, error) {
	_, ok := slices.BinarySearchFunc(p, t, encoding.CompareTriples)
	return ok, nil
}

func grid(n int) sliceMemPop {
	var pop sliceMemPop
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			pop = append(pop, encoding.Triple{encoding.ID(i), 1, encoding.ID(j)})
		}
	}
	return pop
}

func diagonal(n int) sliceMemPop {
	var pop sliceMemPop
	for i := 1; i <= n; i++ {
		pop = append(pop, encoding.Triple{encoding.ID(i), encoding.ID(n + 1), encoding.ID(i)})
	}
	return pop
}

func TestSamplePresentIsDisjointAcrossDraws(t *testing.T) {
	pop := grid(10)
	scratch := NewScratch(pop, rand.New(rand.NewPCG(1, 1)))

	seen := make(map[encoding.Triple]bool)
	for i := 0; i < 10; i++ {
		got, err := scratch.SamplePresent(10)
		require.NoError(t, err)
		require.Len(t, got, 10)
		for _, tr := range got {
			require.False(t, seen[tr], "triple %v drawn twice", tr)
			seen[tr] = true
		}
	}
	require.Equal(t, uint64(0), scratch.Available())

	_, err := scratch.SamplePresent(1)
	require.True(t, errors.Is(err, ErrInsufficientPopulation))
	require.NotEmpty(t, errors.GetAllHints(err))
}

func TestSamplePresentLeavesPopulationUntouched(t *testing.T) {
	pop := grid(4)
	before := slices.Clone(pop)

	scratch := NewScratch(pop, rand.New(rand.NewPCG(2, 2)))
	_, err := scratch.SamplePresent(16)
	require.NoError(t, err)
	require.Equal(t, before, pop)

	// A fresh scratch over the same population starts full again.
	require.Equal(t, uint64(16), NewScratch(pop, rand.New(rand.NewPCG(2, 2))).Available())
}

func TestSamplePresentIsUniform(t *testing.T) {
	pop := grid(3)
	counts := make(map[encoding.Triple]int)
	rng := rand.New(rand.NewPCG(7, 7))

	const rounds = 9000
	for i := 0; i < rounds; i++ {
		got, err := NewScratch(pop, rng).SamplePresent(1)
		require.NoError(t, err)
		counts[got[0]]++
	}
	require.Len(t, counts, 9)
	for tr, c := range counts {
		// expected 1000 each; allow generous slack
		require.InDelta(t, rounds/9, c, 150, "triple %v", tr)
	}
}

func TestSampleZero(t *testing.T) {
	scratch := NewScratch(sliceMemPop{}, rand.New(rand.NewPCG(1, 1)))

	got, err := scratch.SamplePresent(0)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = scratch.SampleAbsent(0)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = scratch.SamplePresent(1)
	require.True(t, errors.Is(err, ErrInsufficientPopulation))
}

func TestSampleAbsent(t *testing.T) {
	pop := diagonal(30)
	scratch := NewScratch(pop, rand.New(rand.NewPCG(4, 4)))

	seen := make(map[encoding.Triple]bool)
	for i := 0; i < 5; i++ {
		got, err := scratch.SampleAbsent(20)
		require.NoError(t, err)
		require.Len(t, got, 20)
		for _, tr := range got {
			present, _ := pop.Contains(tr)
			require.False(t, present, "%v is present", tr)
			require.False(t, seen[tr], "%v drawn twice", tr)
			seen[tr] = true
			require.Equal(t, encoding.ID(31), tr.Predicate())
		}
	}
}

func TestSampleAbsentExhausted(t *testing.T) {
	scratch := NewScratch(grid(2), rand.New(rand.NewPCG(5, 5)))
	scratch.MaxAbsentAttempts = 20

	_, err := scratch.SampleAbsent(1)
	require.True(t, errors.Is(err, ErrSamplingExhausted))

	// Nothing to recombine at all.
	_, err = NewScratch(sliceMemPop{}, rand.New(rand.NewPCG(5, 5))).SampleAbsent(1)
	require.True(t, errors.Is(err, ErrSamplingExhausted))
}
