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

// CoverageWindowSize is the number of consecutive start positions over
// which the coverage filter counts reads.
const CoverageWindowSize = 50

// A CoverageWindow counts the reads that start at each of the last
// CoverageWindowSize positions, and rejects reads once the total
// exceeds a threshold.
type CoverageWindow struct {
	slots     [CoverageWindowSize]int32
	head      int
	sum       int64
	pos       int32
	started   bool
	threshold float64
}

// NewCoverageWindow returns a window that admits at most
// avgCoverage * CoverageWindowSize * 3 reads.
func NewCoverageWindow(avgCoverage float64) *CoverageWindow {
	return &CoverageWindow{threshold: avgCoverage * CoverageWindowSize * 3}
}

func (w *CoverageWindow) push() {
	w.head = (w.head + 1) % CoverageWindowSize
	w.sum -= int64(w.slots[w.head])
	w.slots[w.head] = 0
}

// Admit counts a read starting at pos, unless that would exceed the
// threshold. Positions must not decrease between calls to Reset.
func (w *CoverageWindow) Admit(pos int32) bool {
	if !w.started {
		w.started = true
		w.pos = pos
		w.push()
	} else if pos != w.pos {
		gap := pos - w.pos
		if gap < 0 || gap > CoverageWindowSize {
			gap = CoverageWindowSize
		}
		for ; gap > 0; gap-- {
			w.push()
		}
		w.pos = pos
	}
	w.slots[w.head]++
	w.sum++
	if float64(w.sum) > w.threshold {
		w.Undo()
		return false
	}
	return true
}

// Undo takes back the count of the last admitted read.
func (w *CoverageWindow) Undo() {
	w.slots[w.head]--
	w.sum--
}

// Sum returns the number of reads counted in the window.
func (w *CoverageWindow) Sum() int64 {
	return w.sum
}

// Reset empties the window.
func (w *CoverageWindow) Reset() {
	*w = CoverageWindow{threshold: w.threshold}
}
