// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Codec converts user keys and values to and from the byte strings the
// journal persists.  The codec's name is recorded in the file header,
// so opening a file with a different codec fails fast.
//
// Both ends of a file must use identical codecs.
type Codec interface {
	// Name identifies the codec in the file header.
	Name() string

	// Encode serializes a user value.
	Encode(value any) ([]byte, error)

	// Decode is the inverse of Encode.
	Decode(data []byte) (any, error)

	// Key reduces a user key to the canonical non-empty byte string the
	// index is keyed by.  Keys are compared bytewise.
	Key(key any) ([]byte, error)
}

func canonicalKey(key any) ([]byte, error) {
	switch k := key.(type) {
	case string:
		if k == "" {
			return nil, fmt.Errorf("empty key: %w", ErrKeyType)
		}
		return []byte(k), nil
	case []byte:
		if len(k) == 0 {
			return nil, fmt.Errorf("empty key: %w", ErrKeyType)
		}
		return append([]byte(nil), k...), nil
	default:
		return nil, fmt.Errorf("%T: %w", key, ErrKeyType)
	}
}

// JSON returns the default codec.  Values round-trip through
// encoding/json, so a value read back from disk has JSON's type mapping
// (numbers decode as float64, objects as map[string]any).
func JSON() Codec { return jsonCodec{} }

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

func (jsonCodec) Key(key any) ([]byte, error) { return canonicalKey(key) }

// Raw returns a codec that stores values as uninterpreted bytes.
// Values must be []byte or string and decode as []byte.
func Raw() Codec { return rawCodec{} }

type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }

func (rawCodec) Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("raw codec cannot encode %T", value)
	}
}

func (rawCodec) Decode(data []byte) (any, error) {
	return append([]byte(nil), data...), nil
}

func (rawCodec) Key(key any) ([]byte, error) { return canonicalKey(key) }

// Snappy wraps another codec with snappy block compression of the
// encoded value.  The wrapped codec shows up in the format name, e.g.
// "snappy+json".
func Snappy(inner Codec) Codec { return snappyCodec{inner: inner} }

type snappyCodec struct {
	inner Codec
}

func (c snappyCodec) Name() string { return "snappy+" + c.inner.Name() }

func (c snappyCodec) Encode(value any) ([]byte, error) {
	data, err := c.inner.Encode(value)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func (c snappyCodec) Decode(data []byte) (any, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return c.inner.Decode(decoded)
}

func (c snappyCodec) Key(key any) ([]byte, error) { return c.inner.Key(key) }
