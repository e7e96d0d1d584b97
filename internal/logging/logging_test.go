package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":  slog.LevelDebug,
		"INFO":   slog.LevelInfo,
		" warn ": slog.LevelWarn,
		"error":  slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("resources missing", "dir", "/srv/res")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "resources missing")
	assert.Contains(t, out, "dir=/srv/res")
	assert.NotContains(t, out, "\x1b[", "non-terminal output must be plain")

	_, err = New("nope", &buf)
	assert.Error(t, err)
}
