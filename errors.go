// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"errors"

	"github.com/kleinmatic/daybreak/internal/journal"
)

var (
	// ErrClosed is returned by every DB method with an error result once
	// the database is closed.  Len, LogSize, Keys and Range have no error
	// result and keep reading the in-memory index.
	ErrClosed = errors.New("database is closed")

	// ErrKeyType is returned when a key cannot be reduced to a non-empty
	// byte string by the codec.
	ErrKeyType = errors.New("unsupported key type")

	// ErrMalformedRecord indicates a CRC mismatch, bad size fields, or a
	// partial record at the end of the journal.
	ErrMalformedRecord = journal.ErrMalformedRecord

	// ErrUnexpectedEnd indicates input that stops partway through a
	// record or header.
	ErrUnexpectedEnd = journal.ErrUnexpectedEnd

	ErrWrongMagic   = journal.ErrWrongMagic
	ErrWrongVersion = journal.ErrWrongVersion
	ErrWrongFormat  = journal.ErrWrongFormat
)
