// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"errors"
	"sync"
)

// Every open database is tracked process-wide so embedders can drain
// them all at shutdown.  Go has no portable at-exit hook, so the drain
// is an explicit call rather than something registered behind the
// caller's back.
var (
	registryMu sync.Mutex
	registry   = make(map[*DB]struct{})
)

func register(db *DB) {
	registryMu.Lock()
	registry[db] = struct{}{}
	registryMu.Unlock()
}

func unregister(db *DB) {
	registryMu.Lock()
	delete(registry, db)
	registryMu.Unlock()
}

// CloseAll closes every database still open in the process, draining
// their write queues.  Call it on the way out of main.  Databases left
// open are named in a warning through their configured logger.
func CloseAll() error {
	registryMu.Lock()
	open := make([]*DB, 0, len(registry))
	for db := range registry {
		open = append(open, db)
	}
	registryMu.Unlock()

	var errs []error
	for _, db := range open {
		db.logger.Warn("database still open at shutdown, closing it", "file", db.path)
		if err := db.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
