package encoding

import "github.com/cockroachdb/errors"

// ErrMalformedKey is returned when a stored key or value has the wrong size.
var ErrMalformedKey = errors.New("malformed encoded key")

func errBadLength(what string, want, got int) error {
	return errors.Wrapf(ErrMalformedKey, "%s: expected %d bytes, got %d", what, want, got)
}
