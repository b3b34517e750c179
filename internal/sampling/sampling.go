// Package sampling draws statements from a population of sorted triples:
// present ones uniformly without replacement, absent ones by recombining
// the components of present ones.
package sampling

import (
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/cockroachdb/errors"
)

// DefaultMaxAbsentAttempts bounds the number of consecutive rejected
// candidates before SampleAbsent gives up.
const DefaultMaxAbsentAttempts = 1000

var (
	// ErrInsufficientPopulation is returned when more triples are requested
	// than are available to draw from.
	ErrInsufficientPopulation = errors.New("insufficient population")

	// ErrSamplingExhausted is returned when no further absent triples could
	// be generated within the attempt bound.
	ErrSamplingExhausted = errors.New("sampling exhausted")
)

// Population is a read-only, rank-addressable set of sorted triples.
type Population interface {
	Len() uint64
	// Triple returns the triple of the given rank, 0 <= rank < Len().
	Triple(rank uint64) (encoding.Triple, error)
	Contains(t encoding.Triple) (bool, error)
}

// Scratch is the presence state private to one generation run. Drawing
// marks triples as used in the scratch state only; the population itself
// is never modified. Later draws never return a triple handed out before.
type Scratch struct {
	pop Population
	rng *rand.Rand

	// ranks of present triples not yet drawn
	available *roaring64.Bitmap
	// absent triples already handed out
	drawn map[encoding.Triple]struct{}

	// MaxAbsentAttempts bounds consecutive rejected candidates in
	// SampleAbsent.
	MaxAbsentAttempts int
}

// NewScratch creates a scratch state where every triple of pop is
// available.
func NewScratch(pop Population, rng *rand.Rand) *Scratch {
	available := roaring64.New()
	if n := pop.Len(); n > 0 {
		available.AddRange(0, n)
	}
	return &Scratch{
		pop:               pop,
		rng:               rng,
		available:         available,
		drawn:             make(map[encoding.Triple]struct{}),
		MaxAbsentAttempts: DefaultMaxAbsentAttempts,
	}
}

// Available returns the number of present triples that can still be drawn.
func (s *Scratch) Available() uint64 {
	return s.available.GetCardinality()
}

// SamplePresent draws n distinct present triples uniformly without
// replacement, in draw order.
func (s *Scratch) SamplePresent(n int) ([]encoding.Triple, error) {
	if n < 0 {
		return nil, errors.Newf("negative sample size %d", n)
	}
	if avail := s.Available(); uint64(n) > avail {
		return nil, insufficient(n, avail, s.pop.Len())
	}

	out := make([]encoding.Triple, 0, n)
	for len(out) < n {
		k := s.rng.Uint64N(s.available.GetCardinality())
		rank, err := s.available.Select(k)
		if err != nil {
			return nil, errors.Wrap(err, "rank select failed")
		}
		s.available.Remove(rank)

		t, err := s.pop.Triple(rank)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SampleAbsent generates n distinct triples that are not in the population
// and were not handed out before. Each candidate takes its subject,
// predicate and object from three independently drawn present triples, so
// every component is valid in its position.
func (s *Scratch) SampleAbsent(n int) ([]encoding.Triple, error) {
	if n < 0 {
		return nil, errors.Newf("negative sample size %d", n)
	}
	if n == 0 {
		return []encoding.Triple{}, nil
	}
	total := s.pop.Len()
	if total == 0 {
		return nil, exhausted(0, n, 0)
	}

	out := make([]encoding.Triple, 0, n)
	rejected := 0
	for len(out) < n {
		if rejected >= s.MaxAbsentAttempts {
			return nil, exhausted(len(out), n, rejected)
		}

		var candidate encoding.Triple
		for pos := 0; pos < 3; pos++ {
			t, err := s.pop.Triple(s.rng.Uint64N(total))
			if err != nil {
				return nil, err
			}
			candidate[pos] = t[pos]
		}

		if _, seen := s.drawn[candidate]; seen {
			rejected++
			continue
		}
		present, err := s.pop.Contains(candidate)
		if err != nil {
			return nil, err
		}
		if present {
			rejected++
			continue
		}

		s.drawn[candidate] = struct{}{}
		out = append(out, candidate)
		rejected = 0
	}
	return out, nil
}

func insufficient(n int, avail, total uint64) error {
	err := errors.Wrapf(ErrInsufficientPopulation, "requested %d triples, %d of %d available", n, avail, total)
	return errors.WithHint(err, "reduce the query count or size, or use a larger dataset")
}

func exhausted(found, n, rejected int) error {
	err := errors.Wrapf(ErrSamplingExhausted, "found %d of %d absent triples, gave up after %d rejected candidates", found, n, rejected)
	return errors.WithHint(err, "the dataset has too few distinct terms for this request; reduce the size or raise the attempt limit")
}
