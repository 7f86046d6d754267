// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kleinmatic/daybreak/internal/filelock"
	"github.com/kleinmatic/daybreak/internal/journal"
)

// a header is the fixed fields plus a format name of at most 64 KiB
const maxHeaderLen = 1 << 17

// updateLocked catches the index up with the journal: it reads the
// bytes past pos under the shared lock and replays them.  If the file
// was replaced (nlink == 0), the read handle is reopened and the index
// rebuilt from the start.  db.mu must be held.
func (db *DB) updateLocked() error {
	var buf []byte
	for {
		if !db.exclusive {
			if err := filelock.Shared(db.in); err != nil {
				return err
			}
		}
		size, nlink, err := filelock.Stat(db.in)
		if err != nil {
			db.sharedUnlock()
			return err
		}
		if nlink == 0 {
			db.sharedUnlock()
			if err := db.reopenIn(); err != nil {
				return err
			}
			continue
		}
		if size > db.pos {
			buf = make([]byte, size-db.pos)
			if _, err := db.in.ReadAt(buf, db.pos); err != nil {
				db.sharedUnlock()
				return fmt.Errorf("read journal tail at %d: %w", db.pos, err)
			}
		}
		if !db.exclusive {
			if err := filelock.Unlock(db.in); err != nil {
				return err
			}
		}
		return db.replayLocked(buf)
	}
}

func (db *DB) sharedUnlock() {
	if !db.exclusive {
		_ = filelock.Unlock(db.in)
	}
}

// reopenIn reopens the read handle after the journal was replaced,
// reparses the header, and resets the index so the new file replays
// from offset zero.
func (db *DB) reopenIn() error {
	_ = db.in.Close()
	in, err := os.Open(db.path)
	if err != nil {
		return fmt.Errorf("reopen %s for read: %w", db.path, err)
	}
	db.in = in
	db.index.reset()
	db.pos = 0
	return db.readHeaderLocked()
}

// replayLocked applies a run of serialized records to the index,
// advancing pos one whole record at a time.  A partial record at the
// end of the buffer means we raced another handle's in-progress append;
// pos stays at the last whole record so a later update can retry.
func (db *DB) replayLocked(buf []byte) error {
	r := bytes.NewReader(buf)
	for {
		rec, err := journal.ReadRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, journal.ErrUnexpectedEnd) {
				return fmt.Errorf("partial record at offset %d: %w", db.pos, ErrMalformedRecord)
			}
			return err
		}

		k := string(rec.Key)
		if rec.Tombstone {
			db.index.delete(k)
		} else {
			v, err := db.codec.Decode(rec.Value)
			if err != nil {
				return fmt.Errorf("decode value for key %q: %w", k, err)
			}
			db.index.set(k, v)
		}
		db.pos += int64(rec.EncodedLen())
		db.logSize++
	}
}
