// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// New returns a logger writing to out at the given level ("debug", "info",
// ...) in the given format ("text" or "json").
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "bad log level"), "use one of trace, debug, info, warn, error")
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return nil, errors.WithHint(errors.Newf("unknown log format %q", format), "use text or json")
	}
	return logger, nil
}
