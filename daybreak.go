// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package daybreak is an embedded, single-file, append-only key-value
// store.  Every mutation is persisted as a length-prefixed, CRC-checked
// record appended to a journal file, and an in-memory index mirrors the
// journal's latest state.  Writes are coalesced by a background writer;
// Compact rewrites the file to drop superseded records.
//
// Multiple processes may open the same file: advisory file locks
// serialize appends and rewrites, and Sync pulls records written by
// others into the local index.
package daybreak

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kleinmatic/daybreak/internal/filelock"
	"github.com/kleinmatic/daybreak/internal/journal"
)

// DB is an open daybreak database.  All methods are safe for concurrent
// use by multiple goroutines.
type DB struct {
	path      string
	codec     Codec
	logger    *slog.Logger
	defaults  defaultPolicy
	headerLen int64

	// lockMu serializes the operations that hold the exclusive file
	// lock for their whole duration: Lock, Compact, and Clear.
	lockMu sync.Mutex

	mu    sync.Mutex
	full  sync.Cond // queue became non-empty; wakes the worker
	empty sync.Cond // queue drained; wakes flushers

	queue    []*journal.Record // nil entry is the shutdown sentinel
	inFlight bool              // worker is appending a batch
	closing  bool
	closed   bool
	writeErr error // last worker failure, surfaced to the next synchronous call

	exclusive bool // facade holds the exclusive file lock (Lock/Compact/Clear)

	out     *os.File // append handle, owned by the worker
	in      *os.File // read handle; pos is the byte offset applied to the index
	pos     int64
	logSize int64

	index *orderedIndex

	workerDone chan struct{}
}

// Open opens the database journal at path, creating it if necessary,
// and replays any existing records into memory.
func Open(path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for append: %w", path, err)
	}
	in, err := os.Open(path)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("open %s for read: %w", path, err)
	}

	db := &DB{
		path:       path,
		codec:      o.codec,
		logger:     o.logger,
		defaults:   o.defaults,
		headerLen:  int64(journal.HeaderLen(o.codec.Name())),
		out:        out,
		in:         in,
		index:      newOrderedIndex(),
		workerDone: make(chan struct{}),
	}
	db.full.L = &db.mu
	db.empty.L = &db.mu

	if err := db.initHeader(); err != nil {
		_ = db.out.Close()
		_ = db.in.Close()
		return nil, err
	}

	db.mu.Lock()
	err = db.updateLocked()
	db.mu.Unlock()
	if err != nil {
		_ = db.out.Close()
		_ = db.in.Close()
		return nil, err
	}

	go db.worker()
	register(db)
	return db, nil
}

// initHeader writes the header if the file is empty, then checks the
// header against the codec.  Initialization happens under the exclusive
// lock so two processes racing to create the same file can't both write
// a header.
func (db *DB) initHeader() error {
	format := db.codec.Name()

	out, err := acquireExclusive(db.out, db.path)
	db.out = out
	if err != nil {
		return err
	}
	defer func() { _ = filelock.Unlock(db.out) }()

	size, _, err := filelock.Stat(db.out)
	if err != nil {
		return err
	}
	if size == 0 {
		if err := journal.WriteHeader(db.out, format); err != nil {
			return err
		}
		if err := db.out.Sync(); err != nil {
			return fmt.Errorf("sync header: %w", err)
		}
	}

	return db.readHeaderLocked()
}

// readHeaderLocked parses and validates the header through the read
// handle and positions pos at the first record.
func (db *DB) readHeaderLocked() error {
	n, err := journal.ReadHeader(io.NewSectionReader(db.in, 0, maxHeaderLen), db.codec.Name())
	if err != nil {
		return err
	}
	db.pos = int64(n)
	return nil
}

// Path returns the absolute path of the journal file.
func (db *DB) Path() string { return db.path }

func (db *DB) key(key any) (string, error) {
	kb, err := db.codec.Key(key)
	if err != nil {
		return "", err
	}
	if len(kb) == 0 {
		return "", fmt.Errorf("codec produced an empty key: %w", ErrKeyType)
	}
	return string(kb), nil
}

// Get returns the value stored under key.  It only touches memory: the
// on-disk journal is consulted by Sync, not here.  If a default was
// configured and key is missing, the default is installed via Set and
// returned.
func (db *DB) Get(key any) (any, bool, error) {
	k, err := db.key(key)
	if err != nil {
		return nil, false, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return nil, false, ErrClosed
	}

	if v, ok := db.index.get(k); ok {
		return v, true, nil
	}

	v, ok := db.defaults.value(key)
	if !ok {
		return nil, false, nil
	}
	encoded, err := db.codec.Encode(v)
	if err != nil {
		return nil, false, err
	}
	db.index.set(k, v)
	db.enqueueLocked(&journal.Record{Key: []byte(k), Value: encoded})
	return v, true, nil
}

// Set records key = value in memory and queues a put for the
// background writer.  It does not block on I/O.
func (db *DB) Set(key, value any) error {
	k, err := db.key(key)
	if err != nil {
		return err
	}
	encoded, err := db.codec.Encode(value)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return ErrClosed
	}
	db.index.set(k, value)
	db.enqueueLocked(&journal.Record{Key: []byte(k), Value: encoded})
	return nil
}

// SetSync is Set followed by Sync: the record is durable on return.
func (db *DB) SetSync(key, value any) error {
	if err := db.Set(key, value); err != nil {
		return err
	}
	return db.Sync()
}

// Delete removes key from memory and queues a tombstone.
func (db *DB) Delete(key any) error {
	k, err := db.key(key)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return ErrClosed
	}
	db.index.delete(k)
	db.enqueueLocked(&journal.Record{Key: []byte(k), Tombstone: true})
	return nil
}

// DeleteSync is Delete followed by Sync.
func (db *DB) DeleteSync(key any) error {
	if err := db.Delete(key); err != nil {
		return err
	}
	return db.Sync()
}

// Has reports whether key is present.  Like Get, it reads memory only.
func (db *DB) Has(key any) (bool, error) {
	k, err := db.key(key)
	if err != nil {
		return false, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return false, ErrClosed
	}
	_, ok := db.index.get(k)
	return ok, nil
}

// Len returns the number of live keys.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.index.len()
}

// LogSize returns a monotonic count of journal records applied so far.
// It is a compaction heuristic, not a precise record count: compare it
// against Len to decide when the journal is mostly superseded records.
func (db *DB) LogSize() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.logSize
}

// Range calls fn for each key/value pair in index order (the order in
// which each live key was most recently assigned) until fn returns
// false.  It iterates over a snapshot, so fn may call back into the
// database.
func (db *DB) Range(fn func(key string, value any) bool) {
	db.mu.Lock()
	entries := db.index.snapshot()
	db.mu.Unlock()

	for _, e := range entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Keys returns the live keys in index order.
func (db *DB) Keys() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	keys := make([]string, 0, db.index.len())
	db.index.walk(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Sync blocks until every queued mutation has been appended and
// fsynced, then catches the index up with records other handles may
// have appended.  Any write failure since the last synchronous call is
// returned here.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closing || db.closed {
		return ErrClosed
	}
	if err := db.flushLocked(); err != nil {
		return err
	}
	return db.updateLocked()
}

// Lock flushes, catches up the index, and runs fn while holding the
// exclusive file lock, flushing again before releasing it.  Mutations
// made by fn reach the file before any other process can append.
func (db *DB) Lock(fn func() error) error {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()

	db.mu.Lock()
	if db.closing || db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	if err := db.flushLocked(); err != nil {
		db.mu.Unlock()
		return err
	}
	out, err := acquireExclusive(db.out, db.path)
	db.out = out
	if err != nil {
		db.mu.Unlock()
		return err
	}
	db.exclusive = true
	err = db.updateLocked()
	db.mu.Unlock()

	if err == nil {
		err = fn()
	}

	db.mu.Lock()
	if flushErr := db.flushLocked(); err == nil {
		err = flushErr
	}
	db.exclusive = false
	unlockErr := filelock.Unlock(db.out)
	db.mu.Unlock()
	if err == nil {
		err = unlockErr
	}
	return err
}

// Close drains the write queue, stops the worker, and closes both file
// handles.  A second Close reports ErrClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	if !db.closing {
		db.closing = true
		db.queue = append(db.queue, nil)
		db.full.Signal()
	}
	db.mu.Unlock()

	<-db.workerDone

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		// another Close finished the teardown first
		return ErrClosed
	}
	db.closed = true
	err := db.writeErr
	db.writeErr = nil
	if cerr := db.out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if cerr := db.in.Close(); err == nil && cerr != nil {
		err = cerr
	}
	unregister(db)
	return err
}
