package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTimestampRFC3339Prefix(t *testing.T) {
	got := extractTimestamp("2026-07-31T10:00:00Z level=INFO msg=hello")
	assert.Equal(t, 2026, got.Year())
}

func TestExtractTimestampJSONField(t *testing.T) {
	got := extractTimestamp(`{"time":"2026-07-31T10:00:00.000Z","level":"INFO"}`)
	assert.Equal(t, 2026, got.Year())
}

func TestExtractTimestampMissing(t *testing.T) {
	got := extractTimestamp("no timestamp here")
	assert.True(t, got.IsZero())
}

func TestShowLogsFiltersBySinceAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graymamba.log")
	content := "2026-07-31T09:00:00Z line one\n" +
		"2026-07-31T10:00:00Z line two\n" +
		"2026-07-31T11:00:00Z line three\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	since, err := time.Parse(time.RFC3339, "2026-07-31T10:00:00Z")
	require.NoError(t, err)

	capture := func(n int) string {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		orig := os.Stdout
		os.Stdout = w
		showErr := showLogs(path, n, since)
		os.Stdout = orig
		require.NoError(t, w.Close())
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, showErr)
		return string(out)
	}

	assert.Equal(t, "2026-07-31T10:00:00Z line two\n2026-07-31T11:00:00Z line three\n", capture(10))
	assert.Equal(t, "2026-07-31T11:00:00Z line three\n", capture(1))
}

func TestShowLogsMissingFile(t *testing.T) {
	err := showLogs(filepath.Join(t.TempDir(), "missing.log"), 10, time.Time{})
	assert.Error(t, err)
}
