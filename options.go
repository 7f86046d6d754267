// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"io"
	"log/slog"
)

// Option configures a database at Open.
type Option func(*options)

type options struct {
	codec    Codec
	logger   *slog.Logger
	defaults defaultPolicy
}

// defaultPolicy is the configured behavior for Get on a missing key:
// nothing, a constant, or a factory invoked with the user key.
type defaultPolicy struct {
	set      bool
	constant any
	factory  func(key any) any
}

func (p defaultPolicy) value(key any) (any, bool) {
	if !p.set {
		return nil, false
	}
	if p.factory != nil {
		return p.factory(key), true
	}
	return p.constant, true
}

func defaultOptions() options {
	return options{
		codec:  JSON(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithCodec selects the value codec.  The codec's name must match the
// one recorded in an existing file's header.
func WithCodec(c Codec) Option {
	return func(opts *options) {
		opts.codec = c
	}
}

// WithDefault makes Get install and return v for missing keys.
func WithDefault(v any) Option {
	return func(opts *options) {
		opts.defaults = defaultPolicy{set: true, constant: v}
	}
}

// WithDefaultFunc makes Get install and return fn(key) for missing keys.
func WithDefaultFunc(fn func(key any) any) Option {
	return func(opts *options) {
		opts.defaults = defaultPolicy{set: true, factory: fn}
	}
}

// WithLogger sets an optional logger for diagnostics, like failed
// journal writes.  If not provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}
