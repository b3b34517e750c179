package encoding

import (
	"bytes"
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

const (
	// IDSize is the encoded size of a term identifier
	IDSize = 8

	// TripleSize is the encoded size of a triple key (s ++ p ++ o)
	TripleSize = 3 * IDSize

	// HashSize is the size of a term hash key
	HashSize = 16
)

// ID identifies an interned term. IDs start at 1; 0 is never assigned.
type ID uint64

// None is the reserved sentinel identifier.
const None ID = 0

// Triple is an encoded statement: subject, predicate and object ids.
type Triple [3]ID

func (t Triple) Subject() ID   { return t[0] }
func (t Triple) Predicate() ID { return t[1] }
func (t Triple) Object() ID    { return t[2] }

// EncodeID encodes an id as 8 big-endian bytes so that byte order matches
// numeric order.
func EncodeID(id ID) []byte {
	buf := make([]byte, IDSize)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// DecodeID decodes an 8-byte big-endian id.
func DecodeID(b []byte) (ID, error) {
	if len(b) != IDSize {
		return None, errBadLength("id", IDSize, len(b))
	}
	return ID(binary.BigEndian.Uint64(b)), nil
}

// EncodeTriple encodes a triple as 24 big-endian bytes. Lexicographic byte
// order of the encoding equals (s, p, o) order of the triple.
func EncodeTriple(t Triple) []byte {
	buf := make([]byte, TripleSize)
	PutTriple(buf, t)
	return buf
}

// PutTriple writes the encoding of t into buf, which must hold TripleSize bytes.
func PutTriple(buf []byte, t Triple) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(t[0]))
	binary.BigEndian.PutUint64(buf[8:16], uint64(t[1]))
	binary.BigEndian.PutUint64(buf[16:24], uint64(t[2]))
}

// DecodeTriple decodes a 24-byte triple key.
func DecodeTriple(b []byte) (Triple, error) {
	if len(b) != TripleSize {
		return Triple{}, errBadLength("triple", TripleSize, len(b))
	}
	return Triple{
		ID(binary.BigEndian.Uint64(b[0:8])),
		ID(binary.BigEndian.Uint64(b[8:16])),
		ID(binary.BigEndian.Uint64(b[16:24])),
	}, nil
}

// CompareTriples orders triples by subject, then predicate, then object.
func CompareTriples(a, b Triple) int {
	for i := 0; i < 3; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// CompareEncoded compares two encoded triples; equivalent to CompareTriples
// on the decoded values.
func CompareEncoded(a, b []byte) int {
	return bytes.Compare(a, b)
}

// HashTerm computes the 128-bit xxhash3 key of a canonical term
func HashTerm(canonical string) [HashSize]byte {
	hash := xxh3.HashString128(canonical)
	var result [HashSize]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}
