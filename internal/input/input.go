// Package input finds statement files and diff files on disk and opens
// them with transparent decompression.
package input

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	gzip "github.com/klauspost/pgzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// DefaultExtensions are the dataset file suffixes picked up when walking
// directories.
var DefaultExtensions = []string{".nt", ".nt.gz", ".nt.zst"}

// Datasets expands paths into the list of statement files to read. Plain
// files are taken as given. Directories are walked when recursive is set
// and contribute the files whose names end in one of exts; otherwise they
// are an error. The result is sorted within each directory.
func Datasets(fs afero.Fs, paths []string, recursive bool, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var out []string
	for _, p := range paths {
		st, err := fs.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %s", p)
		}
		if !st.IsDir() {
			out = append(out, p)
			continue
		}
		if !recursive {
			return nil, errors.WithHint(errors.Newf("%s is a directory", p), "pass --recursive to read every dataset file below it")
		}

		var found []string
		err = afero.Walk(fs, p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && hasSuffix(path, exts) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s", p)
		}
		slices.SortFunc(found, comparePaths)
		out = append(out, found...)
	}
	return out, nil
}

// DiffKind tells whether a diff file lists added or removed statements.
type DiffKind int

const (
	Added DiffKind = iota + 1
	Removed
)

func (k DiffKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// DiffFile is one dated diff file.
type DiffFile struct {
	Path string
	Kind DiffKind
}

// DiffFiles returns every file below root whose name ends in "added.nt" or
// "removed.nt" (optionally followed by .gz or .zst), sorted by path segment
// by segment, as a depth-first walk ordered by name would visit them. The
// timestamp of a diff is encoded in its path, so path order is
// chronological order.
func DiffFiles(fs afero.Fs, root string) ([]DiffFile, error) {
	var out []DiffFile
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if kind := diffKind(path); kind != 0 {
			out = append(out, DiffFile{Path: path, Kind: kind})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	sort.SliceStable(out, func(i, j int) bool { return comparePaths(out[i].Path, out[j].Path) < 0 })
	return out, nil
}

// comparePaths orders paths one segment at a time, so a directory sorts
// with all of its contents before any sibling whose name it prefixes.
func comparePaths(a, b string) int {
	return slices.Compare(strings.Split(filepath.ToSlash(a), "/"), strings.Split(filepath.ToSlash(b), "/"))
}

func diffKind(path string) DiffKind {
	name := trimCompression(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, "added.nt"):
		return Added
	case strings.HasSuffix(name, "removed.nt"):
		return Removed
	default:
		return 0
	}
}

func trimCompression(name string) string {
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func hasSuffix(path string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Open opens path for reading, decompressing .gz and .zst files.
func Open(fs afero.Fs, path string) (io.ReadCloser, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to read gzip header of %s", path)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to open zstd stream %s", path)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	default:
		return f, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
