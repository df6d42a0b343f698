package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/netrixframework/smscsim/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerFields(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWriterLogger(buf, "info")

	l.With(LogParams{"seq_no": 42}).Info("resubmitted")
	l.Debug("hidden")
	l.WithError(errors.New("boom")).Warn("failed")

	out := buf.String()
	assert.Contains(t, out, "seq_no=42")
	assert.Contains(t, out, "resubmitted")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "error=boom")
}

func TestSetLevelIgnoresGarbage(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWriterLogger(buf, "warn")
	l.SetLevel("not-a-level")
	l.Info("still filtered")
	assert.Empty(t, buf.String())
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smscsim.log")
	l := NewLogger(config.LogConfig{Path: path, Format: "json", Level: "debug"})
	l.With(LogParams{"message_id": "abc"}).Debug("State transition")
	l.Destroy()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &entry))
	assert.Equal(t, "abc", entry["message_id"])
	assert.Equal(t, "State transition", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}
