package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "text", &buf)
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("file", "a.nt").Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "file=a.nt")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	require.NoError(t, err)

	logger.WithField("line", 7).Debug("malformed")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "malformed", entry["msg"])
	require.Equal(t, float64(7), entry["line"])
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	require.Error(t, err)
	_, err = New("info", "xml", &bytes.Buffer{})
	require.Error(t, err)
}
