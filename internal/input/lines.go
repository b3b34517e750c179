package input

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Line is one line of input with its 1-based line number.
type Line struct {
	No   int
	Text string
}

// LineReader reads lines of arbitrary length. Trailing "\n" and "\r\n" are
// stripped.
type LineReader struct {
	r    *bufio.Reader
	no   int
	line Line
	err  error
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 1<<20)}
}

// Next advances to the next line. It returns false at end of input or on
// error; Err distinguishes the two.
func (lr *LineReader) Next() bool {
	if lr.err != nil {
		return false
	}
	text, err := lr.r.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		if err != io.EOF {
			lr.err = errors.Wrapf(err, "read error after line %d", lr.no)
		}
		return false
	}
	lr.no++
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	lr.line = Line{No: lr.no, Text: text}
	return true
}

// Line returns the current line.
func (lr *LineReader) Line() Line {
	return lr.line
}

// Err returns the first read error, if any.
func (lr *LineReader) Err() error {
	return lr.err
}
