package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c, err := New("/tmp/db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/db", c.Dir)
	assert.Equal(t, DefaultMemTableCap, c.MemTableCap)
	assert.Equal(t, DefaultMaxSSTables, c.MaxSSTables)
	assert.Equal(t, DefaultRecordCacheSize, c.RecordCacheSize)
	assert.Equal(t, DefaultBloomBitsPerKey, c.BloomBitsPerKey)
	assert.Equal(t, "info", c.LogLevel)

	_, err = New("")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	c, err := New("/tmp/db",
		WithMemTableCap(10),
		WithMaxSSTables(3),
		WithRecordCacheSize(0),
		WithBloomBitsPerKey(8),
	)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MemTableCap)
	assert.Equal(t, 3, c.MaxSSTables)
	assert.Equal(t, 0, c.RecordCacheSize)
	assert.Equal(t, 8, c.BloomBitsPerKey)
}

func TestFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `
dir: /var/lib/lakekv
memtable_cap: 500
max_sstables: 8
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/lakekv", c.Dir)
	assert.Equal(t, 500, c.MemTableCap)
	assert.Equal(t, 8, c.MaxSSTables)
	assert.Equal(t, "debug", c.LogLevel)
	// unset fields keep their defaults
	assert.Equal(t, DefaultRecordCacheSize, c.RecordCacheSize)
	assert.Equal(t, DefaultBloomBitsPerKey, c.BloomBitsPerKey)

	_, err = FromFile(filepath.Join(tmpDir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dir: [broken"), 0644))
	_, err = FromFile(bad)
	assert.Error(t, err)
}
