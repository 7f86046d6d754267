// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kleinmatic/daybreak/internal/filelock"
	"github.com/kleinmatic/daybreak/internal/journal"
)

// Compact rewrites the journal so it holds exactly one put per live
// key.  Records appended by other handles while the rewrite is underway
// are preserved.  Observable state is unchanged; the file does not
// grow unless concurrent appends intervened, and a journal that is
// already minimal is left as it is.
func (db *DB) Compact() error {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return ErrClosed
	}

	// dump the live index into a sibling temp file
	tmp, compactSize, err := db.dumpLocked()
	if err != nil {
		return err
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	// in-memory state must be on disk before sizes mean anything
	if err := db.flushLocked(); err != nil {
		discard()
		return err
	}

	out, err := acquireExclusive(db.out, db.path)
	db.out = out
	if err != nil {
		discard()
		return err
	}
	db.exclusive = true
	defer func() {
		db.exclusive = false
		_ = filelock.Unlock(db.out)
	}()

	size, _, err := filelock.Stat(db.in)
	if err != nil {
		discard()
		return err
	}

	switch {
	case size == compactSize:
		// every record on disk is already in the dump
		discard()
	default:
		if size > db.pos {
			// preserve records appended since the dump started
			tail := make([]byte, size-db.pos)
			if _, err := db.in.ReadAt(tail, db.pos); err != nil {
				discard()
				return fmt.Errorf("read journal tail at %d: %w", db.pos, err)
			}
			if _, err := tmp.Write(tail); err != nil {
				discard()
				return fmt.Errorf("append tail to %s: %w", tmp.Name(), err)
			}
		}
		if err := db.replace(tmp); err != nil {
			return err
		}
	}

	return db.updateLocked()
}

// Clear empties the database: a journal holding only the header is
// renamed over the file.
func (db *DB) Clear() error {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return ErrClosed
	}

	// settle pending writes into the old file so they die with it
	if err := db.flushLocked(); err != nil {
		return err
	}

	tmp, err := db.createTemp()
	if err != nil {
		return err
	}
	if err := journal.WriteHeader(tmp, db.codec.Name()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	out, err := acquireExclusive(db.out, db.path)
	db.out = out
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	db.exclusive = true
	defer func() {
		db.exclusive = false
		_ = filelock.Unlock(db.out)
	}()

	if err := db.replace(tmp); err != nil {
		return err
	}
	return db.updateLocked()
}

func (db *DB) createTemp() (*os.File, error) {
	dir, base := filepath.Split(db.path)
	tmp, err := os.CreateTemp(dir, base+".*.compact")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp (may need permissions for dir %q): %w", dir, err)
	}
	return tmp, nil
}

// dumpLocked writes a fresh journal containing one put per live key, in
// index order, to a sibling temp file, and returns it with its size.
func (db *DB) dumpLocked() (*os.File, int64, error) {
	tmp, err := db.createTemp()
	if err != nil {
		return nil, 0, err
	}

	w := bufio.NewWriter(tmp)
	size := db.headerLen
	err = journal.WriteHeader(w, db.codec.Name())
	if err == nil {
		db.index.walk(func(k string, v any) bool {
			var encoded, b []byte
			if encoded, err = db.codec.Encode(v); err != nil {
				return false
			}
			if b, err = journal.Marshal(journal.Record{Key: []byte(k), Value: encoded}); err != nil {
				return false
			}
			if _, err = w.Write(b); err != nil {
				return false
			}
			size += int64(len(b))
			return true
		})
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("dump index to %s: %w", tmp.Name(), err)
	}
	return tmp, size, nil
}

// replace fsyncs tmp and renames it over the journal.  Open handles
// keep reading the replaced file; the nlink check in update and
// acquireExclusive moves them to the new one.
func (db *DB) replace(tmp *os.File) error {
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}
