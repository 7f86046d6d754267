// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic identifies a daybreak journal file.
	Magic = "DAYBREAK"

	// Version is the current file format version.
	Version = 1

	fixedHeaderLen = len(Magic) + 2 + 2
)

var (
	ErrWrongMagic   = errors.New("not a daybreak journal")
	ErrWrongVersion = errors.New("unsupported journal version")
	ErrWrongFormat  = errors.New("journal written with a different codec")
)

// HeaderLen returns the encoded header length for the given format name.
func HeaderLen(format string) int {
	return fixedHeaderLen + len(format)
}

// Header returns the bytes to write when initializing an empty journal
// for the given value codec.
func Header(format string) []byte {
	buf := make([]byte, 0, HeaderLen(format))
	buf = append(buf, Magic...)
	buf = binary.BigEndian.AppendUint16(buf, Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(format)))
	return append(buf, format...)
}

// WriteHeader writes the header for format to w.
func WriteHeader(w io.Writer, format string) error {
	if _, err := w.Write(Header(format)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader consumes the header from r and checks it against the codec
// format the caller expects.  It returns the number of bytes consumed,
// which is where records begin.
func ReadHeader(r io.Reader, format string) (int, error) {
	var fixed [fixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return 0, fmt.Errorf("header: %w", ErrUnexpectedEnd)
	}
	if !bytes.Equal(fixed[:len(Magic)], []byte(Magic)) {
		return 0, ErrWrongMagic
	}
	if v := binary.BigEndian.Uint16(fixed[len(Magic):]); v != Version {
		return 0, fmt.Errorf("%w: found v%d, can only read v%d", ErrWrongVersion, v, Version)
	}

	formatLen := int(binary.BigEndian.Uint16(fixed[len(Magic)+2:]))
	name := make([]byte, formatLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return 0, fmt.Errorf("header format name: %w", ErrUnexpectedEnd)
	}
	if string(name) != format {
		return 0, fmt.Errorf("%w: file has %q, open requested %q", ErrWrongFormat, name, format)
	}

	return fixedHeaderLen + formatLen, nil
}
