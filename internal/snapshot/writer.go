package snapshot

import (
	"bufio"
	"context"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math/rand/v2"
	"os"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// Source is anything that can enumerate a compressor state: terms in
// ascending, dense id order starting at 1, and triples in ascending order.
type Source interface {
	ForEachTerm(ctx context.Context, fn func(id encoding.ID, canonical string) error) error
	ForEachTriple(ctx context.Context, fn func(t encoding.Triple) error) error
}

// Write stores src as a snapshot at path. The file appears under path only
// once it is complete and synced; on failure no trace is left behind.
func Write(ctx context.Context, fs afero.Fs, path string, src Source) (err error) {
	tmp := fmt.Sprintf("%s.tmp.%d", path, rand.Uint32())
	spill := tmp + ".offsets"

	f, err := fs.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}
	defer func() {
		if err != nil {
			f.Close()
			fs.Remove(tmp)
		}
	}()

	// The offset table is only known once all terms are written; it is
	// spilled to a side file instead of being held in memory.
	sf, err := fs.OpenFile(spill, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", spill)
	}
	defer func() {
		sf.Close()
		fs.Remove(spill)
	}()

	w := newBodyWriter(f)
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		return errors.Wrapf(err, "failed to seek in %s", tmp)
	}

	hdr := header{version: Version, termsOff: headerSize}

	// terms
	offsets := bufio.NewWriterSize(sf, 1<<16)
	var buf [8]byte
	putOffset := func(off uint64) error {
		binary.BigEndian.PutUint64(buf[:], off)
		_, err := offsets.Write(buf[:])
		return err
	}
	if err := putOffset(w.off); err != nil {
		return errors.Wrap(err, "failed to spill offsets")
	}
	err = src.ForEachTerm(ctx, func(id encoding.ID, canonical string) error {
		if uint64(id) != hdr.nterms+1 {
			return errors.AssertionFailedf("term ids are not dense: got %d after %d", id, hdr.nterms)
		}
		if _, err := w.WriteString(canonical); err != nil {
			return err
		}
		hdr.nterms++
		return putOffset(w.off)
	})
	if err != nil {
		return errors.Wrap(err, "failed to write terms")
	}
	if err := offsets.Flush(); err != nil {
		return errors.Wrap(err, "failed to spill offsets")
	}

	// padding + offsets
	if pad := (8 - w.off%8) % 8; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	hdr.offsetsOff = w.off
	if _, err := sf.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to rewind offsets")
	}
	// Hide bufio's ReadFrom so the copy goes through w.Write.
	if _, err := io.Copy(struct{ io.Writer }{w}, bufio.NewReaderSize(sf, 1<<16)); err != nil {
		return errors.Wrap(err, "failed to copy offsets")
	}

	// triples
	hdr.triplesOff = w.off
	var prev encoding.Triple
	var tbuf [encoding.TripleSize]byte
	err = src.ForEachTriple(ctx, func(t encoding.Triple) error {
		if hdr.ntriples > 0 && encoding.CompareTriples(prev, t) >= 0 {
			return errors.AssertionFailedf("triples out of order: %v after %v", t, prev)
		}
		for _, id := range t {
			if id == encoding.None || uint64(id) > hdr.nterms {
				return errors.AssertionFailedf("triple %v references an id outside 1..%d", t, hdr.nterms)
			}
		}
		encoding.PutTriple(tbuf[:], t)
		if _, err := w.Write(tbuf[:]); err != nil {
			return err
		}
		prev = t
		hdr.ntriples++
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to write triples")
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}

	// trailer, then the header at the front
	hb := hdr.marshal()
	if _, err := f.Write(trailer(hb, w.sum())); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if _, err := f.WriteAt(hb[:], 0); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}

	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to rename %s", tmp)
	}
	return nil
}

// bodyWriter buffers writes to the file, hashes them and tracks the
// absolute file offset.
type bodyWriter struct {
	*bufio.Writer
	h   hash.Hash
	off uint64
}

func newBodyWriter(f io.Writer) *bodyWriter {
	bw := &bodyWriter{h: sha512.New512_256(), off: headerSize}
	bw.Writer = bufio.NewWriterSize(io.MultiWriter(f, bw.h), 1<<20)
	return bw
}

func (w *bodyWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	w.off += uint64(n)
	return n, err
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	n, err := w.Writer.WriteString(s)
	w.off += uint64(n)
	return n, err
}

func (w *bodyWriter) sum() []byte {
	return w.h.Sum(nil)
}
