package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"io"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/spf13/afero"
)

// DefaultCacheSize is the default byte budget of the resolve cache.
const DefaultCacheSize = 64 << 20

// Options controls how a snapshot is opened.
type Options struct {
	// SkipVerify skips the checksum pass over the whole file. Structural
	// header checks are always performed.
	SkipVerify bool
	// CacheSize is the byte budget for cached resolved terms. Zero selects
	// DefaultCacheSize; negative disables the cache.
	CacheSize int64
}

// Reader is an open, immutable snapshot. All methods are safe for
// concurrent use.
type Reader struct {
	path string
	f    afero.File
	hdr  *header

	cache *ristretto.Cache[uint64, string]
}

// Open opens and validates the snapshot at path. Nothing in the file is
// trusted before the header has been checked and, unless disabled, the
// trailer checksum matched.
func Open(fs afero.Fs, path string, opts Options) (rd *Reader, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	size := st.Size()
	if size < headerSize+trailerSize {
		return nil, errors.Wrapf(ErrCorrupt, "%s: file too short (%d bytes)", path, size)
	}

	var hb [headerSize]byte
	if _, err := f.ReadAt(hb[:], 0); err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}
	hdr, err := unmarshalHeader(hb[:], size)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	if !opts.SkipVerify {
		if err := verify(f, hb, size); err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
	}

	rd = &Reader{path: path, f: f, hdr: hdr}

	if opts.CacheSize >= 0 {
		maxCost := opts.CacheSize
		if maxCost == 0 {
			maxCost = DefaultCacheSize
		}
		rd.cache, err = ristretto.NewCache(&ristretto.Config[uint64, string]{
			// ~10x the number of entries we expect to hold at ~64 bytes each
			NumCounters: max(maxCost/6, 1000),
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create resolve cache")
		}
	}
	return rd, nil
}

func verify(f afero.File, hb [headerSize]byte, size int64) error {
	h := sha512.New512_256()
	body := io.NewSectionReader(f, headerSize, size-headerSize-trailerSize)
	if _, err := io.Copy(h, bufio.NewReaderSize(body, 1<<20)); err != nil {
		return errors.Wrap(err, "failed to read while verifying checksum")
	}

	var want [trailerSize]byte
	if _, err := f.ReadAt(want[:], size-trailerSize); err != nil {
		return errors.Wrap(err, "failed to read checksum")
	}
	got := trailer(hb, h.Sum(nil))
	if subtle.ConstantTimeCompare(got, want[:]) != 1 {
		return errors.Wrapf(ErrChecksumMismatch, "expected %x, computed %x", want, got)
	}
	return nil
}

// Path returns the file the snapshot was opened from.
func (rd *Reader) Path() string { return rd.path }

// NumTerms returns the number of terms in the dictionary.
func (rd *Reader) NumTerms() uint64 { return rd.hdr.nterms }

// Len returns the number of triples.
func (rd *Reader) Len() uint64 { return rd.hdr.ntriples }

// Close releases the file and the cache.
func (rd *Reader) Close() error {
	if rd.cache != nil {
		rd.cache.Close()
	}
	return rd.f.Close()
}

// Resolve returns the canonical form of a term id.
func (rd *Reader) Resolve(id encoding.ID) (string, error) {
	if id == encoding.None || uint64(id) > rd.hdr.nterms {
		return "", errors.Wrapf(ErrUnknownIdentifier, "id %d (snapshot has %d terms)", id, rd.hdr.nterms)
	}
	if rd.cache != nil {
		if s, ok := rd.cache.Get(uint64(id)); ok {
			return s, nil
		}
	}

	var ob [16]byte
	if _, err := rd.f.ReadAt(ob[:], int64(rd.hdr.offsetsOff+(uint64(id)-1)*8)); err != nil {
		return "", errors.Wrapf(err, "%s: failed to read offset of id %d", rd.path, id)
	}
	start := binary.BigEndian.Uint64(ob[0:8])
	end := binary.BigEndian.Uint64(ob[8:16])
	if start > end || end > rd.hdr.offsetsOff {
		return "", errors.Wrapf(ErrCorrupt, "%s: bad offsets for id %d", rd.path, id)
	}

	b := make([]byte, end-start)
	if _, err := rd.f.ReadAt(b, int64(start)); err != nil {
		return "", errors.Wrapf(err, "%s: failed to read term %d", rd.path, id)
	}
	s := string(b)
	if rd.cache != nil {
		rd.cache.Set(uint64(id), s, int64(len(s)))
	}
	return s, nil
}

// Triple returns the triple at rank i in sorted order.
func (rd *Reader) Triple(i uint64) (encoding.Triple, error) {
	if i >= rd.hdr.ntriples {
		return encoding.Triple{}, errors.Newf("triple rank %d out of range (%d triples)", i, rd.hdr.ntriples)
	}
	var b [encoding.TripleSize]byte
	if _, err := rd.f.ReadAt(b[:], int64(rd.hdr.triplesOff+i*encoding.TripleSize)); err != nil {
		return encoding.Triple{}, errors.Wrapf(err, "%s: failed to read triple %d", rd.path, i)
	}
	return encoding.DecodeTriple(b[:])
}

// Contains reports whether t is stored, by binary search over the sorted
// triple region.
func (rd *Reader) Contains(t encoding.Triple) (bool, error) {
	want := encoding.EncodeTriple(t)
	var b [encoding.TripleSize]byte

	lo, hi := uint64(0), rd.hdr.ntriples
	for lo < hi {
		mid := lo + (hi-lo)/2
		if _, err := rd.f.ReadAt(b[:], int64(rd.hdr.triplesOff+mid*encoding.TripleSize)); err != nil {
			return false, errors.Wrapf(err, "%s: failed to read triple %d", rd.path, mid)
		}
		switch c := bytes.Compare(b[:], want); {
		case c == 0:
			return true, nil
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false, nil
}

// ForEachTerm streams the dictionary in id order.
func (rd *Reader) ForEachTerm(ctx context.Context, fn func(id encoding.ID, canonical string) error) error {
	terms := bufio.NewReaderSize(io.NewSectionReader(rd.f, int64(rd.hdr.termsOff), int64(rd.hdr.offsetsOff-rd.hdr.termsOff)), 1<<20)
	offsets := bufio.NewReaderSize(io.NewSectionReader(rd.f, int64(rd.hdr.offsetsOff), int64(rd.hdr.triplesOff-rd.hdr.offsetsOff)), 1<<16)

	var ob [8]byte
	if _, err := io.ReadFull(offsets, ob[:]); err != nil {
		return errors.Wrapf(err, "%s: failed to read offsets", rd.path)
	}
	prev := binary.BigEndian.Uint64(ob[:])

	var buf []byte
	for id := uint64(1); id <= rd.hdr.nterms; id++ {
		if id%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := io.ReadFull(offsets, ob[:]); err != nil {
			return errors.Wrapf(err, "%s: failed to read offsets", rd.path)
		}
		next := binary.BigEndian.Uint64(ob[:])
		if next < prev {
			return errors.Wrapf(ErrCorrupt, "%s: offsets decrease at id %d", rd.path, id)
		}

		n := next - prev
		if uint64(cap(buf)) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err := io.ReadFull(terms, buf); err != nil {
			return errors.Wrapf(err, "%s: failed to read term %d", rd.path, id)
		}
		if err := fn(encoding.ID(id), string(buf)); err != nil {
			return err
		}
		prev = next
	}
	return nil
}

// ForEachTriple streams the triples in sorted order.
func (rd *Reader) ForEachTriple(ctx context.Context, fn func(t encoding.Triple) error) error {
	r := bufio.NewReaderSize(io.NewSectionReader(rd.f, int64(rd.hdr.triplesOff), int64(rd.hdr.ntriples*encoding.TripleSize)), 1<<20)

	var b [encoding.TripleSize]byte
	for i := uint64(0); i < rd.hdr.ntriples; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return errors.Wrapf(err, "%s: failed to read triple %d", rd.path, i)
		}
		t, err := encoding.DecodeTriple(b[:])
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
