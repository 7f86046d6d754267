// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedIndex(t *testing.T) {
	idx := newOrderedIndex()

	idx.set("a", 1)
	idx.set("b", 2)
	idx.set("c", 3)
	idx.set("a", 4) // moves to the back
	idx.delete("b")

	assert.Equal(t, 2, idx.len())

	v, ok := idx.get("a")
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	_, ok = idx.get("b")
	assert.False(t, ok)

	var keys []string
	idx.walk(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []string{"c", "a"}, keys)

	// walk stops when fn returns false
	var first []string
	idx.walk(func(k string, _ any) bool {
		first = append(first, k)
		return false
	})
	assert.Equal(t, []string{"c"}, first)

	idx.reset()
	assert.Zero(t, idx.len())
	assert.Empty(t, idx.snapshot())
}
