// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package journal implements the on-disk format of a daybreak database:
// a short identifying header followed by an append-only run of
// length-prefixed, CRC-checked records.
//
// A journal file looks like:
//
//	┌───────────────────┐
//	│ file header       │
//	├───────────────────┤
//	│ repeated records  │
//	│                   │
//	│                   │
//	└───────────────────┘
//
// The header identifies the format and the value codec the file was
// written with:
//
//	 0    1    2    3    4    5    6    7
//	+----+----+----+----+----+----+----+----+
//	| "DAYBREAK"                            |
//	+----+----+----+----+----+----+----+----+
//	| version | fmtLen  | format name...    |
//	+----+----+----+----+----+----+----+----+
//
// Records are variable length and self-describing:
//
//	 0    1    2    3    4    5    6    7
//	+----+----+----+----+----+----+----+----+
//	| key size          | value size        |
//	+----+----+----+----+----+----+----+----+
//	| key... | value... | crc32             |
//	+----+----+----+----+----+----+----+----+
//
// All integers are big-endian. A value size of 0xFFFFFFFF marks a
// tombstone (the key was deleted); no value bytes follow it. The CRC is
// IEEE CRC-32 over everything before it, so corruption anywhere in a
// record is detected before the record is applied.
package journal
