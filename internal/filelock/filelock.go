// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package filelock wraps the advisory whole-file locks and the stat
// calls daybreak uses to coordinate readers and writers across
// processes.  Locks are per open file description, so two handles on
// the same path contend even within a single process.
package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

// Shared acquires the shared (reader) lock on f, blocking until granted.
func Shared(f *os.File) error {
	if err := flock(f, unix.LOCK_SH); err != nil {
		return fmt.Errorf("flock(%s, LOCK_SH): %w", f.Name(), err)
	}
	return nil
}

// Exclusive acquires the exclusive (writer) lock on f, blocking until granted.
func Exclusive(f *os.File) error {
	if err := flock(f, unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock(%s, LOCK_EX): %w", f.Name(), err)
	}
	return nil
}

// Unlock releases whichever lock is held on f.
func Unlock(f *os.File) error {
	if err := flock(f, unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock(%s, LOCK_UN): %w", f.Name(), err)
	}
	return nil
}

// Stat returns the size and link count of the open handle.  A link
// count of zero means the file was replaced out from under the handle
// and the caller should reopen by path.
func Stat(f *os.File) (size int64, nlink uint64, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, 0, fmt.Errorf("fstat(%s): %w", f.Name(), err)
	}
	return st.Size, uint64(st.Nlink), nil
}
