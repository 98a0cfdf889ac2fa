package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	InitLogger(DebugLevel, path)
	defer InitLogger(InfoLevel, "")

	Info("flush complete", "sstable", "sstable_0.db", "entries", 42)
	Debug("checkpoint", "keys", 10)
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "flush complete"))
	assert.True(t, strings.Contains(content, "sstable_0.db"))
	assert.True(t, strings.Contains(content, "checkpoint"))
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	InitLogger(ErrorLevel, path)
	defer InitLogger(InfoLevel, "")

	Info("should be filtered")
	Error("should appear")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "should be filtered"))
	assert.True(t, strings.Contains(string(data), "should appear"))
}
