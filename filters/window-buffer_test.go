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
	"testing"

	"github.com/exascience/bamshrink/sam"
)

func collect(emitted *[]*sam.Alignment) func(*sam.Alignment) error {
	return func(aln *sam.Alignment) error {
		*emitted = append(*emitted, aln)
		return nil
	}
}

func names(alns []*sam.Alignment) (result string) {
	for _, aln := range alns {
		result += aln.QNAME
	}
	return result
}

func fill(buffer *WindowBuffer, entries ...interface{}) {
	for i := 0; i < len(entries); i += 2 {
		buffer.Add(&sam.Alignment{QNAME: entries[i].(string), POS: int32(entries[i+1].(int))})
	}
}

func TestWindowBufferDrain(t *testing.T) {
	var buffer WindowBuffer
	fill(&buffer, "a", 5, "b", 3, "c", 5, "d", 1, "e", 4, "f", 3)
	if buffer.Len() != 6 {
		t.Errorf("buffer holds %v alignments, expected 6", buffer.Len())
	}
	if min, ok := buffer.MinPos(); !ok || min != 1 {
		t.Errorf("MinPos returned %v, %v", min, ok)
	}
	var emitted []*sam.Alignment
	if err := buffer.Drain(4, collect(&emitted)); err != nil {
		t.Fatal(err)
	}
	if names(emitted) != "dbfe" {
		t.Errorf("drained %v, expected dbfe", names(emitted))
	}
	if buffer.Len() != 2 {
		t.Errorf("buffer holds %v alignments, expected 2", buffer.Len())
	}
	emitted = nil
	if err := buffer.DrainAll(collect(&emitted)); err != nil {
		t.Fatal(err)
	}
	if names(emitted) != "ac" {
		t.Errorf("drained %v, expected ac", names(emitted))
	}
	if _, ok := buffer.MinPos(); ok || buffer.Len() != 0 {
		t.Error("buffer not empty after DrainAll")
	}
}

func TestWindowBufferPrune(t *testing.T) {
	var buffer WindowBuffer
	fill(&buffer, "a", 1, "x", 1, "x", 2, "b", 3, "x", 7, "c", 7)
	removed := buffer.Prune(3, func(aln *sam.Alignment) bool {
		return aln.QNAME != "x"
	})
	if removed != 2 {
		t.Errorf("Prune removed %v alignments, expected 2", removed)
	}
	if buffer.Len() != 4 {
		t.Errorf("buffer holds %v alignments, expected 4", buffer.Len())
	}
	var emitted []*sam.Alignment
	if err := buffer.DrainAll(collect(&emitted)); err != nil {
		t.Fatal(err)
	}
	if names(emitted) != "abxc" {
		t.Errorf("drained %v, expected abxc", names(emitted))
	}
	for i := 1; i < len(emitted); i++ {
		if emitted[i].POS < emitted[i-1].POS {
			t.Errorf("alignments drained out of order at %v", i)
		}
	}
}

func TestCoverageWindow(t *testing.T) {
	window := NewCoverageWindow(1)
	admitted := 0
	for i := 0; i < 200; i++ {
		if window.Admit(10) {
			admitted++
		}
	}
	if admitted != 150 || window.Sum() != 150 {
		t.Errorf("admitted %v reads with sum %v, expected 150", admitted, window.Sum())
	}
	if !window.Admit(61) || window.Sum() != 1 {
		t.Errorf("window did not clear after a gap, sum %v", window.Sum())
	}
	window.Undo()
	if window.Sum() != 0 {
		t.Errorf("Undo left sum %v", window.Sum())
	}

	window = NewCoverageWindow(0.5)
	for i := 0; i < 75; i++ {
		if !window.Admit(0) {
			t.Fatalf("read %v rejected", i)
		}
	}
	if window.Admit(49) {
		t.Error("window of 50 positions should still count position 0")
	}
	if !window.Admit(50) || window.Sum() != 1 {
		t.Errorf("position 0 should have left the window, sum %v", window.Sum())
	}
	window.Reset()
	if window.Sum() != 0 || !window.Admit(5) {
		t.Error("Reset did not empty the window")
	}
}
