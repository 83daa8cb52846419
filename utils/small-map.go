// bamShrink: a tool for shrinking and de-identifying SAM/BAM files.
// Copyright (c) 2017-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/bamshrink/blob/master/LICENSE.txt>.

package utils

// SmallMapEntry is an entry in a SmallMap.
type SmallMapEntry struct {
	Key   Symbol
	Value interface{}
}

// A SmallMap maps keys to values, similar to Go's built-in maps. An
// alignment rarely carries more than a handful of optional tags, so a
// linear scan over a slice beats a native map here. SmallMap keys are
// always symbols, and entries keep their insertion order, which is
// also the order in which tags are written back to the output.
type SmallMap []SmallMapEntry

// Get returns the value of the first entry in the SmallMap that has
// the same key as the given key.
//
// It returns the found value and true if the key was found, otherwise
// nil and false.
func (m SmallMap) Get(key Symbol) (interface{}, bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// Set associates the given value with the given key, replacing the
// value of an existing entry or appending a new entry.
func (m *SmallMap) Set(key Symbol, value interface{}) {
	for index := range *m {
		if (*m)[index].Key == key {
			(*m)[index].Value = value
			return
		}
	}
	*m = append(*m, SmallMapEntry{key, value})
}

// DeleteIf returns a SmallMap from which all entries have been
// removed that satisfy the given test. The result shares memory with
// the receiver.
//
// It also returns true if any entry was removed, and false if no
// entry was removed because no entry matched the given test.
func (m SmallMap) DeleteIf(test func(key Symbol, val interface{}) bool) (SmallMap, bool) {
	i := 0
	for _, entry := range m {
		if !test(entry.Key, entry.Value) {
			m[i] = entry
			i++
		}
	}
	return m[:i], i < len(m)
}

// Retain returns a SmallMap that only holds the entries whose key is
// one of the given keys, preserving their order.
func (m SmallMap) Retain(keys ...Symbol) SmallMap {
	result, _ := m.DeleteIf(func(key Symbol, _ interface{}) bool {
		for _, k := range keys {
			if k == key {
				return false
			}
		}
		return true
	})
	return result
}
