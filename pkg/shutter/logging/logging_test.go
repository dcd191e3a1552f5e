package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
)

// These tests share the package-level logging state and must not run in
// parallel.

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"loud", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, logging.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInit_InvalidComponentLevel(t *testing.T) {
	err := logging.Init(logging.Config{
		Level:      "info",
		Path:       filepath.Join(t.TempDir(), "bad.log"),
		Components: map[string]string{"queue": "chatty"},
	})
	assert.ErrorIs(t, err, logging.ErrInvalidLevel)
}

func TestLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shutter.log")
	require.NoError(t, logging.Init(logging.Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{"saver": "debug"},
	}))
	defer logging.Close()

	logging.Get("saver").Debug("request saved", "id", "abc")
	logging.Get("queue").Debug("should be filtered")
	logging.Get("queue").Warn("waiting for capacity", "cost", 6)

	require.NoError(t, logging.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "request saved")
	assert.Contains(t, out, "waiting for capacity")
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "saver")
}

func TestGet_BeforeInitIsSilent(t *testing.T) {
	require.NoError(t, logging.Close())

	logger := logging.Get("spool")
	require.NotNil(t, logger)
	logger.Info("dropped")
}

func TestSubscribe(t *testing.T) {
	require.NoError(t, logging.Init(logging.Config{
		Level: "debug",
		Path:  filepath.Join(t.TempDir(), "sub.log"),
	}))
	defer logging.Close()

	ch := logging.Subscribe()
	defer logging.Unsubscribe(ch)

	logging.Get("queue").Info("admitted")

	select {
	case entry := <-ch:
		assert.Equal(t, "queue", entry.Component)
		assert.Equal(t, "admitted", entry.Message)
		assert.Equal(t, logging.LevelInfo, entry.Level)
	case <-time.After(time.Second):
		t.Fatal("expected log entry")
	}
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")

	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 64, MaxBackups: 2})
	require.NoError(t, err)

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 6; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
		// Rotated names carry millisecond timestamps.
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	rotated := 0
	for _, e := range entries {
		if e.Name() != "rot.log" {
			rotated++
		}
	}
	assert.Equal(t, 2, rotated, "only MaxBackups rotated files are kept")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(64))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), logging.RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
