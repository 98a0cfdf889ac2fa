// Package engine ties the memtable, SSTables and WAL together into the
// storage engine: writes go WAL first, then memtable, flushing to a new
// SSTable when the memtable fills; reads consult the memtable and then the
// SSTables newest to oldest; once the table count crosses the configured
// threshold everything is merged into a single compacted table.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"lakekv/internal/config"
	"lakekv/internal/storage/memtable"
	"lakekv/internal/storage/sstable"
	"lakekv/internal/storage/value"
	"lakekv/internal/storage/wal"
	"lakekv/pkg/errors"
	"lakekv/pkg/logger"
)

const (
	checkpointFile = "data.db"
	logFile        = "wal.log"
	lockFile       = "LOCK"
	compactedName  = "sstable_compacted.db"
)

// Engine is a single-node LSM storage engine. One coarse mutex serializes
// every public operation, reads included: a read must never observe the
// SSTable list mid-replacement or touch a file compaction just unlinked.
type Engine struct {
	mu   sync.Mutex
	conf *config.Config

	mem    *memtable.MemTable
	tables []*sstable.SSTable // oldest to newest
	wal    *wal.WAL
	fl     *flock.Flock

	flushes     uint64
	compactions uint64
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	MemTableEntries int
	SSTables        int
	Flushes         uint64
	Compactions     uint64
}

// Open creates or reopens the engine at conf.Dir. The directory is created
// if absent; a path naming an existing regular file is rejected. Recovery
// loads every SSTable (oldest first), recovers the WAL, and replays the WAL
// log tail into a fresh memtable so acknowledged but unflushed writes
// survive a crash.
func Open(conf *config.Config) (*Engine, error) {
	dir := conf.Dir
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, errors.Newf(errors.KindValidation, "open engine",
			"%s is a regular file, not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.New(errors.KindValidation, "open engine", err)
	}

	fl := flock.New(filepath.Join(dir, lockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.New(errors.KindValidation, "lock database directory", err)
	}
	if !locked {
		return nil, errors.Newf(errors.KindValidation, "lock database directory",
			"%s is in use by another process", dir)
	}

	e := &Engine{
		conf: conf,
		mem:  memtable.New(conf.MemTableCap),
		fl:   fl,
	}

	if err := e.loadTables(); err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	w, err := wal.Open(filepath.Join(dir, checkpointFile), filepath.Join(dir, logFile))
	if err != nil {
		e.closeTables()
		_ = fl.Unlock()
		return nil, err
	}
	e.wal = w

	// The WAL is checkpointed after every flush, so its log tail holds
	// exactly the operations applied to the memtable since then. Replaying
	// it rebuilds the pre-crash memtable; skipping this would silently drop
	// acknowledged writes.
	for _, rec := range w.Tail() {
		switch rec.Operation {
		case wal.OpSet:
			e.mem.Add(rec.Key, *rec.Value)
		case wal.OpDelete:
			e.mem.Add(rec.Key, value.Tombstone())
		}
	}

	if len(e.tables) > conf.MaxSSTables {
		if err := e.compactLocked(); err != nil {
			_ = w.Close()
			e.closeTables()
			_ = fl.Unlock()
			return nil, err
		}
	}

	logger.Info("engine opened", "dir", dir,
		"sstables", len(e.tables), "memtable_entries", e.mem.Len())
	return e, nil
}

func (e *Engine) loadTables() error {
	entries, err := os.ReadDir(e.conf.Dir)
	if err != nil {
		return errors.New(errors.KindValidation, "read database directory", err)
	}

	type tableFile struct {
		name string
		seq  int
	}
	var files []tableFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "sstable_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		if name == compactedName {
			// The compacted table predates every numbered one.
			files = append(files, tableFile{name: name, seq: -1})
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "sstable_"), ".db")
		seq, err := strconv.Atoi(raw)
		if err != nil {
			logger.Warn("skipping unrecognized sstable file", "file", name)
			continue
		}
		files = append(files, tableFile{name: name, seq: seq})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	opts := e.tableOptions()
	for _, f := range files {
		t, err := sstable.Open(filepath.Join(e.conf.Dir, f.name), opts)
		if err != nil {
			e.closeTables()
			return err
		}
		e.tables = append(e.tables, t)
	}
	return nil
}

func (e *Engine) tableOptions() sstable.Options {
	return sstable.Options{
		BloomBitsPerKey: e.conf.BloomBitsPerKey,
		RecordCacheSize: e.conf.RecordCacheSize,
	}
}

// Set durably writes a key-value pair. The WAL append is the durability
// point: Set does not return success before the record is on stable storage.
func (e *Engine) Set(key string, v value.Value) error {
	if v.IsTombstone() {
		return errors.Newf(errors.KindValidation, "set", "tombstone is not a settable value")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.wal.Set(key, v); err != nil {
		return err
	}
	return e.applyLocked(key, v)
}

// Delete removes a key by writing a tombstone, so stale entries in older
// SSTables stay shadowed across flushes and compactions.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.wal.Delete(key); err != nil {
		return err
	}
	return e.applyLocked(key, value.Tombstone())
}

func (e *Engine) applyLocked(key string, v value.Value) error {
	e.mem.Add(key, v)
	if e.mem.IsFull() {
		return e.flushLocked()
	}
	return nil
}

// Get returns the value for key. The bool result is false when the key was
// never written or has been deleted; tombstones are never surfaced.
func (e *Engine) Get(key string) (value.Value, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.mem.Get(key); ok {
		if v.IsTombstone() {
			return value.Value{}, false, nil
		}
		return v, true, nil
	}
	for i := len(e.tables) - 1; i >= 0; i-- {
		v, ok, err := e.tables[i].Get(key)
		if err != nil {
			return value.Value{}, false, err
		}
		if ok {
			if v.IsTombstone() {
				return value.Value{}, false, nil
			}
			return v, true, nil
		}
	}
	return value.Value{}, false, nil
}

// RangeScan returns every live entry with start <= key <= end, ascending,
// each key once. Newer tables win over older ones and the memtable wins
// over everything; tombstoned keys are filtered out.
func (e *Engine) RangeScan(start, end string) ([]memtable.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := make(map[string]value.Value)
	for _, t := range e.tables {
		for entry, err := range t.RangeScan(start, end) {
			if err != nil {
				return nil, err
			}
			merged[entry.Key] = entry.Value
		}
	}
	for entry := range e.mem.RangeScan(start, end) {
		merged[entry.Key] = entry.Value
	}

	out := make([]memtable.Entry, 0, len(merged))
	for k, v := range merged {
		if v.IsTombstone() {
			continue
		}
		out = append(out, memtable.Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// flushLocked writes the memtable to a new SSTable, swaps in a fresh
// memtable, and checkpoints the WAL: the flushed data is now durable in the
// table file, so the log segment covering it can go.
func (e *Engine) flushLocked() error {
	if e.mem.Len() == 0 {
		return nil
	}

	name := fmt.Sprintf("sstable_%d.db", len(e.tables))
	t, err := sstable.Write(filepath.Join(e.conf.Dir, name), e.mem.Entries(), e.tableOptions())
	if err != nil {
		return err
	}
	entries := e.mem.Len()
	e.tables = append(e.tables, t)
	e.mem = memtable.New(e.conf.MemTableCap)
	e.flushes++

	if err := e.wal.Checkpoint(); err != nil {
		return err
	}
	logger.Info("memtable flushed", "sstable", name, "entries", entries)

	if len(e.tables) > e.conf.MaxSSTables {
		return e.compactLocked()
	}
	return nil
}

// Compact merges all SSTables into one, newest value winning per key.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tables) < 2 {
		return nil
	}
	return e.compactLocked()
}

func (e *Engine) compactLocked() error {
	// Unbounded merge buffer: inserting oldest to newest lets later tables
	// overwrite earlier values for the same key. This costs memory
	// proportional to the distinct key count, a known limit of the design.
	merged := memtable.New(0)
	for _, t := range e.tables {
		for entry, err := range t.All() {
			if err != nil {
				return errors.New(errors.KindCompaction, "merge sstables", err)
			}
			merged.Add(entry.Key, entry.Value)
		}
	}

	path := filepath.Join(e.conf.Dir, compactedName)
	t, err := sstable.Write(path, merged.Entries(), e.tableOptions())
	if err != nil {
		return errors.New(errors.KindCompaction, "write compacted sstable", err)
	}

	old := e.tables
	e.tables = []*sstable.SSTable{t}
	e.compactions++

	// Best effort: a dangling unreferenced file is a space leak, not a
	// correctness problem. The previous compacted file was already replaced
	// by the rename, so only close its stale handle.
	for _, ot := range old {
		if ot.Path() == path {
			_ = ot.Close()
			continue
		}
		if err := ot.Remove(); err != nil {
			logger.Warn("failed to remove compacted-away sstable", "file", ot.Path(), "error", err)
		}
	}
	logger.Info("compaction complete", "merged_tables", len(old), "keys", t.Len())
	return nil
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		MemTableEntries: e.mem.Len(),
		SSTables:        len(e.tables),
		Flushes:         e.flushes,
		Compactions:     e.compactions,
	}
}

// Close flushes any pending memtable entries, forces a final checkpoint,
// and releases the directory lock. An orderly shutdown loses nothing.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flushLocked(); err != nil {
		return err
	}
	if err := e.wal.Checkpoint(); err != nil {
		return err
	}
	if err := e.wal.Close(); err != nil {
		return err
	}
	e.closeTables()
	if err := e.fl.Unlock(); err != nil {
		return err
	}
	logger.Info("engine closed", "flushes", e.flushes, "compactions", e.compactions)
	return nil
}

func (e *Engine) closeTables() {
	for _, t := range e.tables {
		_ = t.Close()
	}
	e.tables = nil
}
