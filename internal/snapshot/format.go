// Package snapshot reads and writes the persisted compressor state: a single
// immutable file holding the term dictionary and the sorted, unique encoded
// triples.
//
// File layout (all integers big-endian):
//
//	header   64 bytes, see header below
//	terms    canonical term bytes for ids 1..nterms, concatenated
//	padding  zeroes up to an 8-byte boundary
//	offsets  nterms+1 absolute file offsets; id i spans [off[i-1], off[i])
//	triples  ntriples x 24 bytes, strictly ascending
//	trailer  SHA-512/256(header || SHA-512/256(everything between header and trailer))
//
// Files are written under a temporary name and renamed into place once
// complete, so a crash never leaves a partial file under the final name.
package snapshot

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/cockroachdb/errors"
)

// Version is the file format version written by this package.
const Version = 1

const (
	headerSize  = 64
	trailerSize = sha512.Size256
)

var magic = [4]byte{'S', 'P', 'Q', 'G'}

var (
	// ErrCorrupt means the file is not a snapshot or is structurally damaged.
	ErrCorrupt = errors.New("corrupt compressor state")

	// ErrIncompatibleStateVersion means the file was written by an
	// incompatible format version.
	ErrIncompatibleStateVersion = errors.New("incompatible compressor state version")

	// ErrChecksumMismatch means the integrity trailer does not match the
	// file contents.
	ErrChecksumMismatch = errors.New("compressor state checksum mismatch")

	// ErrUnknownIdentifier is returned when resolving an id outside the
	// snapshot's dictionary.
	ErrUnknownIdentifier = errors.New("unknown term identifier")
)

type header struct {
	version    uint32
	flags      uint32
	nterms     uint64
	ntriples   uint64
	termsOff   uint64
	offsetsOff uint64
	triplesOff uint64
}

func (h *header) marshal() [headerSize]byte {
	var b [headerSize]byte
	be := binary.BigEndian

	copy(b[0:4], magic[:])
	be.PutUint32(b[4:8], h.version)
	be.PutUint32(b[8:12], h.flags)
	// 12:16 padding
	be.PutUint64(b[16:24], h.nterms)
	be.PutUint64(b[24:32], h.ntriples)
	be.PutUint64(b[32:40], h.termsOff)
	be.PutUint64(b[40:48], h.offsetsOff)
	be.PutUint64(b[48:56], h.triplesOff)
	// 56:64 reserved
	return b
}

func unmarshalHeader(b []byte, size int64) (*header, error) {
	if len(b) < headerSize || [4]byte(b[0:4]) != magic {
		return nil, errors.Wrap(ErrCorrupt, "bad file magic")
	}

	be := binary.BigEndian
	h := &header{
		version:    be.Uint32(b[4:8]),
		flags:      be.Uint32(b[8:12]),
		nterms:     be.Uint64(b[16:24]),
		ntriples:   be.Uint64(b[24:32]),
		termsOff:   be.Uint64(b[32:40]),
		offsetsOff: be.Uint64(b[40:48]),
		triplesOff: be.Uint64(b[48:56]),
	}
	if h.version != Version {
		return nil, errors.Wrapf(ErrIncompatibleStateVersion, "file version %d, supported %d", h.version, Version)
	}

	// Every region must sit where its predecessor ends.
	usize := uint64(size)
	switch {
	case h.termsOff != headerSize:
		return nil, errors.Wrap(ErrCorrupt, "terms region misplaced")
	case h.offsetsOff < h.termsOff || h.offsetsOff > usize || h.offsetsOff%8 != 0:
		return nil, errors.Wrap(ErrCorrupt, "offset table misplaced")
	case h.nterms > (usize-h.offsetsOff)/8:
		return nil, errors.Wrap(ErrCorrupt, "term count exceeds file size")
	case h.triplesOff != h.offsetsOff+(h.nterms+1)*8:
		return nil, errors.Wrap(ErrCorrupt, "triples region misplaced")
	case h.triplesOff > usize || h.ntriples > (usize-h.triplesOff)/encoding.TripleSize:
		return nil, errors.Wrap(ErrCorrupt, "triple count exceeds file size")
	case h.triplesOff+h.ntriples*encoding.TripleSize+trailerSize != usize:
		return nil, errors.Wrapf(ErrCorrupt, "file size %d does not match header", size)
	}
	return h, nil
}

func trailer(hdr [headerSize]byte, bodySum []byte) []byte {
	h := sha512.New512_256()
	h.Write(hdr[:])
	h.Write(bodySum)
	return h.Sum(nil)
}
