// Package wal implements the write-ahead log: an append-only file of
// newline-terminated JSON records plus a periodically rewritten full-state
// checkpoint. Replaying the checkpoint and then the log in order rebuilds
// the committed state exactly.
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"lakekv/internal/storage/value"
	"lakekv/pkg/errors"
	"lakekv/pkg/logger"
)

// Op is a logged operation type.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Record is one log line: {"timestamp": ..., "operation": "set", "key": ...,
// "value": ...}. Delete records carry no value.
type Record struct {
	Timestamp string       `json:"timestamp"`
	Operation Op           `json:"operation"`
	Key       string       `json:"key"`
	Value     *value.Value `json:"value,omitempty"`
}

// WAL owns the checkpoint/log file pair. committed mirrors the full state
// the pair encodes; it is what a checkpoint snapshots. The engine replays
// only the log tail at startup to rebuild its memtable.
type WAL struct {
	checkpointPath string
	logPath        string
	logFile        *os.File
	committed      map[string]value.Value
	tail           []Record
}

// Open recovers the WAL state from the checkpoint and log files (either or
// both may be missing) and opens the log for appending. Any malformed
// checkpoint or log line is fatal; there is no partial recovery.
func Open(checkpointPath, logPath string) (*WAL, error) {
	w := &WAL{
		checkpointPath: checkpointPath,
		logPath:        logPath,
		committed:      make(map[string]value.Value),
	}
	if err := w.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.New(errors.KindRecovery, "open wal log", err)
	}
	w.logFile = f
	return w, nil
}

func (w *WAL) recover() error {
	data, err := os.ReadFile(w.checkpointPath)
	switch {
	case err == nil:
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &w.committed); err != nil {
				return errors.New(errors.KindRecovery, "decode checkpoint "+w.checkpointPath, err)
			}
		}
	case os.IsNotExist(err):
		// no checkpoint yet
	default:
		return errors.New(errors.KindRecovery, "read checkpoint "+w.checkpointPath, err)
	}

	logData, err := os.ReadFile(w.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(errors.KindRecovery, "read wal log "+w.logPath, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(logData))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return errors.Newf(errors.KindRecovery, "replay wal log",
				"malformed record at line %d: %v", line, err)
		}
		switch rec.Operation {
		case OpSet:
			if rec.Value == nil {
				return errors.Newf(errors.KindRecovery, "replay wal log",
					"set record without value at line %d", line)
			}
			w.committed[rec.Key] = *rec.Value
		case OpDelete:
			delete(w.committed, rec.Key)
		default:
			return errors.Newf(errors.KindRecovery, "replay wal log",
				"unknown operation %q at line %d", rec.Operation, line)
		}
		w.tail = append(w.tail, rec)
	}
	if err := scanner.Err(); err != nil {
		return errors.New(errors.KindRecovery, "replay wal log", err)
	}
	if len(w.tail) > 0 {
		logger.Info("wal recovered", "records", len(w.tail), "committed", len(w.committed))
	}
	return nil
}

// Tail returns the records recovered from the log file, i.e. every operation
// applied since the last checkpoint. The engine replays these into a fresh
// memtable at startup.
func (w *WAL) Tail() []Record { return w.tail }

// Committed returns a copy of the full recovered state.
func (w *WAL) Committed() map[string]value.Value {
	out := make(map[string]value.Value, len(w.committed))
	for k, v := range w.committed {
		out[k] = v
	}
	return out
}

// Append durably writes one operation record. It does not return until the
// record has been flushed and fsynced, so a successful return means the
// operation survives a crash.
func (w *WAL) Append(op Op, key string, v value.Value) error {
	rec := Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Key:       key,
	}
	if op == OpSet {
		rec.Value = &v
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode wal record: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.logFile.Write(line); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}
	return w.logFile.Sync()
}

// Set appends a set record and applies it to the committed state.
func (w *WAL) Set(key string, v value.Value) error {
	if err := w.Append(OpSet, key, v); err != nil {
		return err
	}
	w.committed[key] = v
	return nil
}

// Delete appends a delete record and applies it to the committed state.
func (w *WAL) Delete(key string) error {
	if err := w.Append(OpDelete, key, value.Value{}); err != nil {
		return err
	}
	delete(w.committed, key)
	return nil
}

// Checkpoint snapshots the committed state to the checkpoint file and then
// truncates the log. The snapshot goes through a temp file and an atomic
// rename, and the rename completes before the truncate; a crash between the
// two is safe because replaying the log atop the new checkpoint is
// idempotent for set and delete.
func (w *WAL) Checkpoint() error {
	tmp := w.checkpointPath + ".tmp"
	if err := w.writeSnapshot(tmp); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.KindCheckpoint, "write checkpoint snapshot", err)
	}
	if err := os.Rename(tmp, w.checkpointPath); err != nil {
		_ = os.Remove(tmp)
		return errors.New(errors.KindCheckpoint, "persist checkpoint", err)
	}

	if err := w.logFile.Truncate(0); err != nil {
		return errors.New(errors.KindCheckpoint, "truncate wal log", err)
	}
	if _, err := w.logFile.Seek(0, io.SeekStart); err != nil {
		return errors.New(errors.KindCheckpoint, "truncate wal log", err)
	}
	if err := w.logFile.Sync(); err != nil {
		return errors.New(errors.KindCheckpoint, "truncate wal log", err)
	}
	w.tail = nil
	logger.Debug("wal checkpoint complete", "keys", len(w.committed))
	return nil
}

func (w *WAL) writeSnapshot(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(w.committed)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// Close closes the log file. It does not checkpoint; the engine does that
// as part of its own shutdown.
func (w *WAL) Close() error {
	return w.logFile.Close()
}
