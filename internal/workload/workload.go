// Package workload parses generation requests of the form <op><count>x<size>
// and expands them into an ordered plan of individual queries.
package workload

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the operation of an update block.
type Kind int

const (
	Insert Kind = iota
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Delete:
		return "DELETE"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) token() byte {
	if k == Delete {
		return 'd'
	}
	return 'i'
}

// ErrInvalidRequest is returned for request tokens that do not parse.
var ErrInvalidRequest = errors.New("invalid request")

// Request asks for Count queries of one kind, each holding Size triples.
// When Percent is set, Size is a percentage of the dataset's triple count
// and is turned into an absolute size by Resolve.
type Request struct {
	Kind    Kind
	Count   int
	Size    float64
	Percent bool
}

// ParseRequest parses a token such as "i10000x10" or "d5x2.5%".
func ParseRequest(s string) (Request, error) {
	fail := func(format string, args ...interface{}) (Request, error) {
		err := errors.Wrapf(ErrInvalidRequest, "%q: "+format, append([]interface{}{s}, args...)...)
		return Request{}, errors.WithHint(err, "requests look like i<count>x<size> or d<count>x<percent>%")
	}

	if len(s) < 2 {
		return fail("too short")
	}
	var r Request
	switch s[0] {
	case 'i', 'I':
		r.Kind = Insert
	case 'd', 'D':
		r.Kind = Delete
	default:
		return fail("operation must be 'i' or 'd'")
	}

	count, size, ok := strings.Cut(s[1:], "x")
	if !ok {
		return fail("missing 'x' between count and size")
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 0 {
		return fail("count %q is not a non-negative integer", count)
	}
	r.Count = n

	if pct, ok := strings.CutSuffix(size, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil || v < 0 || v > 100 || math.IsNaN(v) {
			return fail("percentage %q must be between 0 and 100", pct)
		}
		r.Size, r.Percent = v, true
		return r, nil
	}
	v, err := strconv.Atoi(size)
	if err != nil || v < 0 {
		return fail("size %q is not a non-negative integer", size)
	}
	r.Size = float64(v)
	return r, nil
}

// ParseRequests parses every token; the first failure is returned.
func ParseRequests(tokens []string) ([]Request, error) {
	out := make([]Request, 0, len(tokens))
	for _, tok := range tokens {
		r, err := ParseRequest(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (r Request) String() string {
	var b strings.Builder
	b.WriteByte(r.Kind.token())
	b.WriteString(strconv.Itoa(r.Count))
	b.WriteByte('x')
	b.WriteString(strconv.FormatFloat(r.Size, 'f', -1, 64))
	if r.Percent {
		b.WriteByte('%')
	}
	return b.String()
}

// Resolve returns the number of triples per query for a dataset holding
// total triples. Percentages round down.
func (r Request) Resolve(total uint64) int {
	if !r.Percent {
		return int(r.Size)
	}
	return int(float64(total) * r.Size / 100)
}

// Order selects the order in which the queries of all requests are emitted.
type Order int

const (
	// AsSpecified emits requests in the order given, queries of a request
	// consecutively.
	AsSpecified Order = iota
	// Randomized shuffles all queries.
	Randomized
	// SizeAsc sorts queries by ascending size.
	SizeAsc
	// SizeDesc sorts queries by descending size.
	SizeDesc
	// Alternate sorts by ascending size and interleaves insert and delete
	// queries. It needs as many insert as delete queries.
	Alternate
)

var orderNames = []string{"as-specified", "randomized", "size-asc", "size-desc", "alternate"}

func (o Order) String() string {
	if int(o) < len(orderNames) {
		return orderNames[o]
	}
	return "Order(" + strconv.Itoa(int(o)) + ")"
}

// ParseOrder parses one of the names returned by Order.String.
func ParseOrder(s string) (Order, error) {
	for i, name := range orderNames {
		if s == name {
			return Order(i), nil
		}
	}
	return 0, errors.WithHintf(errors.Newf("unknown order %q", s), "valid orders: %s", strings.Join(orderNames, ", "))
}

// Set implements pflag.Value.
func (o *Order) Set(s string) error {
	v, err := ParseOrder(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Type implements pflag.Value.
func (o *Order) Type() string { return "order" }

// UnmarshalText lets orders appear in config files.
func (o *Order) UnmarshalText(b []byte) error { return o.Set(string(b)) }

// MarshalText is the inverse of UnmarshalText.
func (o Order) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Slot is one query to generate.
type Slot struct {
	// Request is the index of the originating request.
	Request int
	Kind    Kind
	Size    int
}

// Plan expands requests into one slot per query, sized against a dataset
// of total triples, and orders them. rng is only used by Randomized.
func Plan(requests []Request, total uint64, order Order, rng *rand.Rand) ([]Slot, error) {
	var slots []Slot
	inserts := 0
	for i, r := range requests {
		size := r.Resolve(total)
		for j := 0; j < r.Count; j++ {
			slots = append(slots, Slot{Request: i, Kind: r.Kind, Size: size})
		}
		if r.Kind == Insert {
			inserts += r.Count
		}
	}

	switch order {
	case AsSpecified:
	case Randomized:
		rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	case SizeAsc:
		slices.SortStableFunc(slots, func(a, b Slot) int { return cmp.Compare(a.Size, b.Size) })
	case SizeDesc:
		slices.SortStableFunc(slots, func(a, b Slot) int { return cmp.Compare(b.Size, a.Size) })
	case Alternate:
		deletes := len(slots) - inserts
		if inserts != deletes {
			return nil, errors.WithHint(
				errors.Newf("alternate order needs as many insert as delete queries, got %d and %d", inserts, deletes),
				"balance the insert and delete request counts or pick another order")
		}
		slices.SortStableFunc(slots, func(a, b Slot) int {
			return cmp.Or(cmp.Compare(a.Size, b.Size), cmp.Compare(a.Kind, b.Kind))
		})
		ins := make([]Slot, 0, inserts)
		del := make([]Slot, 0, deletes)
		for _, s := range slots {
			if s.Kind == Insert {
				ins = append(ins, s)
			} else {
				del = append(del, s)
			}
		}
		slots = slots[:0]
		for i := range ins {
			slots = append(slots, ins[i], del[i])
		}
	default:
		return nil, errors.AssertionFailedf("unknown order %d", order)
	}
	return slots, nil
}
