// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import "container/list"

// orderedIndex is the in-memory mirror of the journal: a map from
// canonical key to value that iterates in order of each live key's most
// recent put.  Re-assigning a key moves it to the back.
type orderedIndex struct {
	order *list.List
	byKey map[string]*list.Element
}

type indexEntry struct {
	key   string
	value any
}

func newOrderedIndex() *orderedIndex {
	return &orderedIndex{
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

func (idx *orderedIndex) get(key string) (any, bool) {
	el, ok := idx.byKey[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*indexEntry).value, true
}

func (idx *orderedIndex) set(key string, value any) {
	if el, ok := idx.byKey[key]; ok {
		el.Value.(*indexEntry).value = value
		idx.order.MoveToBack(el)
		return
	}
	idx.byKey[key] = idx.order.PushBack(&indexEntry{key: key, value: value})
}

func (idx *orderedIndex) delete(key string) {
	if el, ok := idx.byKey[key]; ok {
		idx.order.Remove(el)
		delete(idx.byKey, key)
	}
}

func (idx *orderedIndex) len() int { return len(idx.byKey) }

func (idx *orderedIndex) reset() {
	idx.order.Init()
	clear(idx.byKey)
}

// walk visits entries in index order until fn returns false.
func (idx *orderedIndex) walk(fn func(key string, value any) bool) {
	for el := idx.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*indexEntry)
		if !fn(e.key, e.value) {
			return
		}
	}
}

// snapshot copies the entries out in index order, so callers can
// iterate without holding the database lock.
func (idx *orderedIndex) snapshot() []indexEntry {
	entries := make([]indexEntry, 0, idx.order.Len())
	for el := idx.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, *el.Value.(*indexEntry))
	}
	return entries
}
