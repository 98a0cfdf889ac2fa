// Package sstable implements the immutable on-disk table format and its
// point/range read paths.
//
// File layout:
//
//	[8 bytes big-endian: absolute offset of the trailer]
//	[4 bytes big-endian: record length][record] ... in ascending key order
//	[trailer: JSON {"index": {key: offset}, "filter": base64}]
//
// Each record is a self-describing JSON object {"k": key, "v": value}. The
// offset stored in the index points at the record's 4-byte length prefix.
// Files are written to a temporary path, fsynced and atomically renamed, so
// a crash never leaves a partial file at the canonical path.
package sstable

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"lakekv/internal/storage/filter"
	"lakekv/internal/storage/memtable"
	"lakekv/internal/storage/value"
	"lakekv/pkg/errors"
)

const headerSize = 8

// Options tune a table's auxiliary structures. The zero value disables the
// record cache and uses the default bloom sizing.
type Options struct {
	BloomBitsPerKey int
	RecordCacheSize int
}

type record struct {
	K string      `json:"k"`
	V value.Value `json:"v"`
}

type trailer struct {
	Index  map[string]int64 `json:"index"`
	Filter []byte           `json:"filter"`
}

// SSTable is one immutable table file plus its in-memory key index. Reads go
// through an open file handle using ReadAt; the engine serializes access.
type SSTable struct {
	path   string
	file   *os.File
	index  map[string]int64
	keys   []string // index keys, ascending
	filter *filter.BloomFilter
	cache  *lru.Cache[string, value.Value]
}

// Write creates a brand-new table at path from entries already sorted
// ascending by key, then opens it for reading. The write goes through a
// temporary file in the same directory and an atomic rename.
func Write(path string, entries []memtable.Entry, opts Options) (*SSTable, error) {
	tmp := path + ".tmp"
	if err := writeFile(tmp, entries, opts); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("rename sstable: %w", err)
	}
	return Open(path, opts)
}

func writeFile(path string, entries []memtable.Entry, opts Options) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	bitsPerKey := opts.BloomBitsPerKey
	if bitsPerKey <= 0 {
		bitsPerKey = 10
	}
	bf := filter.New(len(entries), bitsPerKey)

	index := make(map[string]int64, len(entries))
	var body []byte
	var lenBuf [4]byte
	for _, e := range entries {
		encoded, err := json.Marshal(record{K: e.Key, V: e.Value})
		if err != nil {
			return err
		}
		index[e.Key] = headerSize + int64(len(body))
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
		body = append(body, lenBuf[:]...)
		body = append(body, encoded...)
		bf.Add(e.Key)
	}

	trailerBytes, err := json.Marshal(trailer{Index: index, Filter: bf.Encode()})
	if err != nil {
		return err
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(headerSize+len(body)))

	for _, chunk := range [][]byte{header[:], body, trailerBytes} {
		if _, err := f.Write(chunk); err != nil {
			return err
		}
	}
	return f.Sync()
}

// Open loads an existing table: reads the trailer offset from the header,
// decodes the index and bloom filter, and keeps the file open for reads.
// A file whose header or trailer cannot be decoded is reported as corrupt.
func Open(path string, opts Options) (*SSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.KindCorruption, "open sstable "+path, err)
	}

	t, err := loadTrailer(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.New(errors.KindCorruption, "load sstable "+path, err)
	}

	bf, err := filter.Decode(t.Filter)
	if err != nil {
		_ = f.Close()
		return nil, errors.New(errors.KindCorruption, "load sstable "+path, err)
	}

	keys := make([]string, 0, len(t.Index))
	for k := range t.Index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &SSTable{
		path:   path,
		file:   f,
		index:  t.Index,
		keys:   keys,
		filter: bf,
	}
	if opts.RecordCacheSize > 0 {
		// lru.New only fails on a non-positive size.
		s.cache, _ = lru.New[string, value.Value](opts.RecordCacheSize)
	}
	return s, nil
}

func loadTrailer(f *os.File) (*trailer, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() < headerSize {
		return nil, fmt.Errorf("file too short: %d bytes", stat.Size())
	}

	var header [headerSize]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	trailerOff := int64(binary.BigEndian.Uint64(header[:]))
	if trailerOff < headerSize || trailerOff > stat.Size() {
		return nil, fmt.Errorf("trailer offset %d out of bounds", trailerOff)
	}

	buf := make([]byte, stat.Size()-trailerOff)
	if _, err := f.ReadAt(buf, trailerOff); err != nil {
		return nil, err
	}
	var t trailer
	if err := json.Unmarshal(buf, &t); err != nil {
		return nil, fmt.Errorf("decode trailer: %w", err)
	}
	if t.Index == nil {
		t.Index = map[string]int64{}
	}
	return &t, nil
}

// Path returns the table's file path.
func (s *SSTable) Path() string { return s.path }

// Len returns the number of keys in the table.
func (s *SSTable) Len() int { return len(s.keys) }

// Get returns the stored value for key. The bool result distinguishes a
// missing key from a present one; a present value may be a tombstone, which
// is the caller's job to filter. Read or decode failures mean the file is
// corrupt.
func (s *SSTable) Get(key string) (value.Value, bool, error) {
	if !s.filter.MayContain(key) {
		return value.Value{}, false, nil
	}
	off, ok := s.index[key]
	if !ok {
		return value.Value{}, false, nil
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, true, nil
		}
	}

	v, err := s.readRecord(key, off)
	if err != nil {
		return value.Value{}, false, errors.New(errors.KindCorruption, "read sstable "+s.path, err)
	}
	if s.cache != nil {
		s.cache.Add(key, v)
	}
	return v, true, nil
}

func (s *SSTable) readRecord(key string, off int64) (value.Value, error) {
	var lenBuf [4]byte
	if _, err := s.file.ReadAt(lenBuf[:], off); err != nil {
		return value.Value{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, off+4); err != nil {
		return value.Value{}, err
	}
	var rec record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return value.Value{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.K != key {
		return value.Value{}, fmt.Errorf("record key %q does not match index key %q", rec.K, key)
	}
	return rec.V, nil
}

// RangeScan yields entries with start <= key <= end in ascending key order,
// tombstones included; filtering them is the engine's merge layer's job.
// A non-nil error ends the sequence.
func (s *SSTable) RangeScan(start, end string) iter.Seq2[memtable.Entry, error] {
	lo := sort.SearchStrings(s.keys, start)
	hi := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > end })
	return s.scan(lo, hi)
}

// All yields every entry in the table in ascending key order.
func (s *SSTable) All() iter.Seq2[memtable.Entry, error] {
	return s.scan(0, len(s.keys))
}

func (s *SSTable) scan(lo, hi int) iter.Seq2[memtable.Entry, error] {
	return func(yield func(memtable.Entry, error) bool) {
		for i := lo; i < hi; i++ {
			key := s.keys[i]
			v, _, err := s.Get(key)
			if err != nil {
				yield(memtable.Entry{}, err)
				return
			}
			if !yield(memtable.Entry{Key: key, Value: v}, nil) {
				return
			}
		}
	}
}

// Close releases the table's file handle.
func (s *SSTable) Close() error {
	return s.file.Close()
}

// Remove closes the table and deletes its file.
func (s *SSTable) Remove() error {
	_ = s.file.Close()
	return os.Remove(s.path)
}
