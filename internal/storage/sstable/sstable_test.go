package sstable

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakekv/internal/storage/memtable"
	"lakekv/internal/storage/value"
	"lakekv/pkg/errors"
)

func testEntries() []memtable.Entry {
	return []memtable.Entry{
		{Key: "bool", Value: value.Bool(true)},
		{Key: "float", Value: value.Float(2.75)},
		{Key: "gone", Value: value.Tombstone()},
		{Key: "int", Value: value.Int(-7)},
		{Key: "map", Value: value.Mapping(map[string]value.Value{
			"nested": value.Sequence(value.Int(1), value.String("two")),
		})},
		{Key: "null", Value: value.Null()},
		{Key: "seq", Value: value.Sequence(value.Float(0.5), value.Null())},
		{Key: "str", Value: value.String("hello")},
	}
}

func TestWriteAndGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")
	entries := testEntries()

	tbl, err := Write(path, entries, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	for _, e := range entries {
		v, ok, err := tbl.Get(e.Key)
		require.NoError(t, err)
		require.True(t, ok, "key %q should be present", e.Key)
		assert.True(t, e.Value.Equal(v), "key %q round trip changed value", e.Key)
	}

	// missing key is not-found, not an error and not a null value
	_, ok, err := tbl.Get("zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	// no temporary file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")
	entries := testEntries()

	tbl, err := Write(path, entries, Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened, err := Open(path, Options{RecordCacheSize: 8})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, len(entries), reopened.Len())
	for _, e := range entries {
		v, ok, err := reopened.Get(e.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, e.Value.Equal(v))
	}

	// second read comes from the record cache
	v, ok, err := reopened.Get("int")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(value.Int(-7)))
}

func TestHeaderFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")
	tbl, err := Write(path, []memtable.Entry{{Key: "a", Value: value.Int(1)}}, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	trailerOff := binary.BigEndian.Uint64(data[:8])
	require.Less(t, trailerOff, uint64(len(data)))
	recLen := binary.BigEndian.Uint32(data[8:12])
	// the first record sits between its length prefix and the trailer
	assert.Equal(t, uint64(12)+uint64(recLen), trailerOff)
}

func TestRangeScanIncludesTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")
	tbl, err := Write(path, testEntries(), Options{})
	require.NoError(t, err)
	defer tbl.Close()

	var keys []string
	for e, err := range tbl.RangeScan("float", "null") {
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"float", "gone", "int", "map", "null"}, keys)

	keys = nil
	for e, err := range tbl.All() {
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.Len(t, keys, 8)

	count := 0
	for range tbl.RangeScan("x", "y") {
		count++
	}
	assert.Zero(t, count)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()

	// too short to hold a header
	short := filepath.Join(dir, "short.db")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0644))
	_, err := Open(short, Options{})
	assert.True(t, errors.Is(err, errors.KindCorruption))

	// header points past the end of the file
	bogus := filepath.Join(dir, "bogus.db")
	buf := make([]byte, 64)
	binary.BigEndian.PutUint64(buf, 1<<40)
	require.NoError(t, os.WriteFile(bogus, buf, 0644))
	_, err = Open(bogus, Options{})
	assert.True(t, errors.Is(err, errors.KindCorruption))

	// trailer is not decodable
	garbage := filepath.Join(dir, "garbage.db")
	buf = make([]byte, 64)
	binary.BigEndian.PutUint64(buf, 8)
	require.NoError(t, os.WriteFile(garbage, buf, 0644))
	_, err = Open(garbage, Options{})
	assert.True(t, errors.Is(err, errors.KindCorruption))
}

func TestGetReportsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")
	tbl, err := Write(path, []memtable.Entry{{Key: "a", Value: value.Int(1)}}, Options{})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	// clobber the first record's length prefix; the trailer stays intact
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00, 0x00, 0xFF, 0xFF}, 8)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = reopened.Get("a")
	assert.True(t, errors.Is(err, errors.KindCorruption))
}

func TestLargeTableStaysSorted(t *testing.T) {
	dir := t.TempDir()
	var entries []memtable.Entry
	for i := 0; i < 500; i++ {
		entries = append(entries, memtable.Entry{
			Key:   fmt.Sprintf("key_%04d", i),
			Value: value.Int(int64(i)),
		})
	}
	tbl, err := Write(filepath.Join(dir, "big.db"), entries, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	var prev string
	for e, err := range tbl.All() {
		require.NoError(t, err)
		if prev != "" {
			assert.Less(t, prev, e.Key)
		}
		prev = e.Key
	}
}
