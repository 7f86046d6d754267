// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"fmt"
	"os"

	"github.com/kleinmatic/daybreak/internal/filelock"
	"github.com/kleinmatic/daybreak/internal/journal"
)

// acquireExclusive takes the exclusive lock on out, revalidating that
// the handle still refers to the live file.  If the file was replaced
// (nlink == 0), the handle is reopened in append mode and the lock is
// reacquired.  It returns the handle the caller must use from now on.
func acquireExclusive(out *os.File, path string) (*os.File, error) {
	for {
		if err := filelock.Exclusive(out); err != nil {
			return out, err
		}
		_, nlink, err := filelock.Stat(out)
		if err != nil {
			_ = filelock.Unlock(out)
			return out, err
		}
		if nlink > 0 {
			return out, nil
		}
		_ = filelock.Unlock(out)
		_ = out.Close()
		next, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return out, fmt.Errorf("reopen %s for append: %w", path, err)
		}
		out = next
	}
}

func (db *DB) enqueueLocked(rec *journal.Record) {
	db.queue = append(db.queue, rec)
	db.full.Signal()
}

// flushLocked blocks until the queue is drained and the worker is idle,
// then surfaces any write failure recorded since the last synchronous
// call.  db.mu must be held.
func (db *DB) flushLocked() error {
	for len(db.queue) > 0 || db.inFlight {
		db.empty.Wait()
	}
	err := db.writeErr
	db.writeErr = nil
	return err
}

// worker is the single background goroutine that appends queued records
// to the journal.  It exits after consuming the shutdown sentinel.
func (db *DB) worker() {
	defer close(db.workerDone)
	for {
		db.mu.Lock()
		for len(db.queue) == 0 {
			db.full.Wait()
		}
		batch := db.queue
		db.queue = nil

		shutdown := false
		records := batch
		for i, rec := range batch {
			if rec == nil {
				records = batch[:i]
				shutdown = true
				break
			}
		}
		db.inFlight = len(records) > 0
		out := db.out
		haveLock := db.exclusive
		db.mu.Unlock()

		var size, written int64
		var err error
		if len(records) > 0 {
			out, size, written, err = db.writeBatch(out, records, haveLock)
		}

		db.mu.Lock()
		db.out = out
		db.inFlight = false
		if err != nil {
			// the index is now ahead of the file; remember the failure so
			// the next synchronous caller sees it instead of silence
			db.writeErr = err
			db.logger.Error("journal append failed, mutations dropped",
				"file", db.path, "records", len(records), "error", err)
		} else if written > 0 && size == db.pos+written {
			// the appended bytes are exactly the ones the reader hasn't
			// seen; account for them now instead of re-reading them on
			// the next update
			db.pos = size
			db.logSize += int64(len(records))
		}
		if len(db.queue) == 0 {
			db.empty.Broadcast()
		}
		db.mu.Unlock()

		if shutdown {
			return
		}
	}
}

// writeBatch serializes records and appends them under the exclusive
// file lock, fsyncing before release.  When the facade already holds
// the lock (db.exclusive), locking is skipped.  It returns the current
// append handle and the file size observed after the write.
func (db *DB) writeBatch(out *os.File, records []*journal.Record, haveLock bool) (_ *os.File, size, written int64, err error) {
	var buf []byte
	for _, rec := range records {
		if buf, err = journal.AppendRecord(buf, *rec); err != nil {
			return out, 0, 0, err
		}
	}

	if !haveLock {
		if out, err = acquireExclusive(out, db.path); err != nil {
			return out, 0, 0, err
		}
		defer func() { _ = filelock.Unlock(out) }()
	}

	if _, err := out.Write(buf); err != nil {
		return out, 0, 0, fmt.Errorf("append %d records: %w", len(records), err)
	}
	if err := out.Sync(); err != nil {
		return out, 0, 0, fmt.Errorf("sync journal: %w", err)
	}
	size, _, err = filelock.Stat(out)
	if err != nil {
		return out, 0, 0, err
	}
	return out, size, int64(len(buf)), nil
}
