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

package filters

import (
	"github.com/exascience/bamshrink/sam"
)

// A Role selects one of the two mates of a pair.
type Role int

const (
	// Forward is the role of the mate on the forward strand.
	Forward Role = iota
	// Reverse is the role of the mate on the reverse strand.
	Reverse
)

// Opposite returns the role of the other mate.
func (role Role) Opposite() Role {
	return 1 - role
}

func (role Role) String() string {
	if role == Forward {
		return "forward"
	}
	return "reverse"
}

// RoleOf returns the role of an alignment within its pair. Mates of a
// pair in which neither read is mapped are told apart by their
// segment flags instead of their strand.
func RoleOf(aln *sam.Alignment) Role {
	if aln.IsUnmapped() && aln.IsNextUnmapped() {
		if aln.IsFirst() {
			return Forward
		}
		return Reverse
	}
	if aln.IsReversed() {
		return Reverse
	}
	return Forward
}

// MateEditInfo records the edits of one mate that its partner needs
// to know about when it is emitted.
type MateEditInfo struct {
	// PositionShift accumulates how far the start of this mate moved.
	PositionShift int32
	// FragmentLengthAnchor is the start of a forward mate, or the end
	// of a reverse mate, after all edits.
	FragmentLengthAnchor int32
	Removed              bool
	Emitted              bool
	Seen                 bool
}

// MatePairState holds the edit information of both mates of a pair.
type MatePairState struct {
	slots   [2]MateEditInfo
	lastPos int32
}

// Slot returns the edit information for the given role.
func (state *MatePairState) Slot(role Role) *MateEditInfo {
	return &state.slots[role]
}

// Removed is true if the pair has been removed.
func (state *MatePairState) Removed() bool {
	return state.slots[Forward].Removed || state.slots[Reverse].Removed
}

type trackedName struct {
	name string
	pos  int32
}

// A MateTracker keeps the MatePairState of all pairs that still have a
// mate in flight, keyed by read name.
type MateTracker struct {
	pairs map[string]*MatePairState
	queue []trackedName
	scan  int32
}

// NewMateTracker returns an empty tracker.
func NewMateTracker() *MateTracker {
	return &MateTracker{pairs: make(map[string]*MatePairState)}
}

// Advance tells the tracker the position of the record being scanned.
// Entries touched from now on are considered last seen there.
func (t *MateTracker) Advance(pos int32) {
	t.scan = pos
}

func (t *MateTracker) state(name string) *MatePairState {
	state, ok := t.pairs[name]
	if !ok {
		state = &MatePairState{lastPos: t.scan}
		t.pairs[name] = state
		t.queue = append(t.queue, trackedName{name, t.scan})
	} else if state.lastPos != t.scan {
		state.lastPos = t.scan
		t.queue = append(t.queue, trackedName{name, t.scan})
	}
	return state
}

// Lookup returns the state of the named pair, or nil.
func (t *MateTracker) Lookup(name string) *MatePairState {
	return t.pairs[name]
}

// Observe records that the mate with the given role has been read.
func (t *MateTracker) Observe(name string, role Role) {
	t.state(name).Slot(role).Seen = true
}

// Shift accumulates a change of the start position of a mate.
func (t *MateTracker) Shift(name string, role Role, delta int32) {
	if delta != 0 {
		t.state(name).Slot(role).PositionShift += delta
	}
}

// Anchor sets the coordinate from which the template length of the
// other mate is recomputed.
func (t *MateTracker) Anchor(name string, role Role, pos int32) {
	t.state(name).Slot(role).FragmentLengthAnchor = pos
}

// MarkRemoved removes both mates of the named pair.
func (t *MateTracker) MarkRemoved(name string) {
	state := t.state(name)
	state.slots[Forward].Removed = true
	state.slots[Reverse].Removed = true
}

// IsRemoved is true if the named pair has been removed.
func (t *MateTracker) IsRemoved(name string) bool {
	state, ok := t.pairs[name]
	return ok && state.Removed()
}

// Forget erases the state of the named pair.
func (t *MateTracker) Forget(name string) {
	delete(t.pairs, name)
}

// Expire erases all pairs that were last touched before the given
// position.
func (t *MateTracker) Expire(before int32) {
	i := 0
	for ; i < len(t.queue) && t.queue[i].pos < before; i++ {
		entry := t.queue[i]
		if state, ok := t.pairs[entry.name]; ok && state.lastPos < before {
			delete(t.pairs, entry.name)
		}
	}
	t.queue = t.queue[i:]
}

// Len returns the number of tracked pairs.
func (t *MateTracker) Len() int {
	return len(t.pairs)
}

// Reset erases all state.
func (t *MateTracker) Reset() {
	t.pairs = make(map[string]*MatePairState)
	t.queue = nil
}
