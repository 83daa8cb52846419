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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exascience/bamshrink/intervals"
	"github.com/exascience/bamshrink/sam"
)

type alignmentSink struct {
	alns []*sam.Alignment
}

func (sink *alignmentSink) Write(aln *sam.Alignment) error {
	sink.alns = append(sink.alns, aln)
	return nil
}

func (sink *alignmentSink) names() []string {
	result := make([]string, 0, len(sink.alns))
	for _, aln := range sink.alns {
		result = append(result, aln.QNAME)
	}
	return result
}

func run(t *testing.T, opts Options, alns ...*sam.Alignment) (*alignmentSink, *Shrinker) {
	t.Helper()
	sink := &alignmentSink{}
	shrinker := NewShrinker(sink, opts)
	if err := shrinker.Process(alns); err != nil {
		t.Fatal(err)
	}
	if err := shrinker.Finish(); err != nil {
		t.Fatal(err)
	}
	return sink, shrinker
}

var shrinkOptions = Options{MaxFragmentLength: 100, MinMatches: 20, AvgCoverage: 10}

func TestShrinkAdapterPair(t *testing.T) {
	sink, shrinker := run(t, shrinkOptions,
		newTestAlignment(t, "pair", revFlag, 110, "50M", 120, -40),
		newTestAlignment(t, "pair", fwdFlag, 120, "50M", 110, 40))
	if len(sink.alns) != 2 {
		t.Fatalf("%v alignments written, expected 2", len(sink.alns))
	}
	rev, fwd := sink.alns[0], sink.alns[1]
	if !rev.IsReversed() || fwd.IsReversed() {
		t.Fatal("unexpected output order")
	}
	if rev.QNAME != "0" || fwd.QNAME != "0" {
		t.Errorf("mates renamed to %v and %v", rev.QNAME, fwd.QNAME)
	}
	if rev.POS != 120 || sam.CigarString(rev.CIGAR) != "40M" || rev.PNEXT != 120 || rev.TLEN != -40 {
		t.Errorf("unexpected reverse mate %v %v %v %v", rev.POS, sam.CigarString(rev.CIGAR), rev.PNEXT, rev.TLEN)
	}
	if fwd.POS != 120 || sam.CigarString(fwd.CIGAR) != "40M" || fwd.PNEXT != 120 || fwd.TLEN != 40 {
		t.Errorf("unexpected forward mate %v %v %v %v", fwd.POS, sam.CigarString(fwd.CIGAR), fwd.PNEXT, fwd.TLEN)
	}
	for _, aln := range sink.alns {
		if _, ok := aln.TAGS.Get(sam.RG); !ok {
			t.Error("RG tag removed")
		}
		if _, ok := aln.TAGS.Get(sam.MQ); ok {
			t.Error("MQ tag kept")
		}
		if _, ok := aln.TAGS.Get(nm); ok {
			t.Error("NM tag kept")
		}
		for _, q := range aln.QUAL {
			if q != HighQuality {
				t.Fatalf("quality %v not binarized", q)
			}
		}
	}
	stats := shrinker.Stats()
	if stats.TotalReads != 2 || stats.AdapterTrimmedReads != 2 || stats.AdapterClippedBp != 20 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestShrinkLongTemplateUntouched(t *testing.T) {
	sink, shrinker := run(t, shrinkOptions,
		newTestAlignment(t, "pair", fwdFlag, 100, "50M", 120, 80),
		newTestAlignment(t, "pair", revFlag, 120, "50M", 100, -80))
	if len(sink.alns) != 2 {
		t.Fatalf("%v alignments written, expected 2", len(sink.alns))
	}
	fwd, rev := sink.alns[0], sink.alns[1]
	if fwd.POS != 100 || sam.CigarString(fwd.CIGAR) != "50M" || len(fwd.SEQ) != 50 {
		t.Errorf("forward mate changed to %v %v", fwd.POS, sam.CigarString(fwd.CIGAR))
	}
	if rev.POS != 120 || sam.CigarString(rev.CIGAR) != "50M" || len(rev.SEQ) != 50 {
		t.Errorf("reverse mate changed to %v %v", rev.POS, sam.CigarString(rev.CIGAR))
	}
	if stats := shrinker.Stats(); stats.AdapterTrimmedReads != 0 || stats.AdapterClippedBp != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestShrinkKeepMapQuality(t *testing.T) {
	opts := shrinkOptions
	opts.KeepMapQuality = true
	sink, _ := run(t, opts, newTestAlignment(t, "single", 0, 100, "30M", 0, 0))
	if len(sink.alns) != 1 {
		t.Fatalf("%v alignments written, expected 1", len(sink.alns))
	}
	if _, ok := sink.alns[0].TAGS.Get(sam.MQ); !ok {
		t.Error("MQ tag removed")
	}
	if _, ok := sink.alns[0].TAGS.Get(nm); ok {
		t.Error("NM tag kept")
	}
}

func TestShrinkSecondaryWithoutSequence(t *testing.T) {
	aln := newTestAlignment(t, "secondary", sam.Secondary, 100, "10S40M", 0, 0)
	aln.SEQ, aln.QUAL = nil, nil
	sink, shrinker := run(t, shrinkOptions, aln)
	if len(sink.alns) != 1 {
		t.Fatalf("%v alignments written, expected 1", len(sink.alns))
	}
	if out := sink.alns[0]; sam.CigarString(out.CIGAR) != "40M" || out.POS != 100 || len(out.SEQ) != 0 {
		t.Errorf("unexpected alignment %v %v %v", out.POS, sam.CigarString(out.CIGAR), len(out.SEQ))
	}
	if stats := shrinker.Stats(); stats.SoftClippedBp != 10 {
		t.Errorf("%v soft clipped bp, expected 10", stats.SoftClippedBp)
	}
}

func TestShrinkFlushTiming(t *testing.T) {
	sink := &alignmentSink{}
	shrinker := NewShrinker(sink, shrinkOptions)
	steps := []struct {
		pos     int32
		written int
	}{{100, 0}, {200, 0}, {201, 1}, {300, 1}, {301, 2}}
	for _, step := range steps {
		if err := shrinker.Add(newTestAlignment(t, "single", 0, step.pos, "30M", 0, 0)); err != nil {
			t.Fatal(err)
		}
		if len(sink.alns) != step.written {
			t.Errorf("%v alignments written after a read at %v, expected %v", len(sink.alns), step.pos, step.written)
		}
	}
	if err := shrinker.Finish(); err != nil {
		t.Fatal(err)
	}
	if len(sink.alns) != len(steps) {
		t.Errorf("%v alignments written, expected %v", len(sink.alns), len(steps))
	}
	if sink.alns[0].POS != 100 || sink.alns[1].POS != 200 {
		t.Errorf("unexpected output order %v %v", sink.alns[0].POS, sink.alns[1].POS)
	}
}

func TestShrinkPairingAndOrder(t *testing.T) {
	chr2 := newTestAlignment(t, "c", 0, 10, "30M", 0, 0)
	chr2.REFID = 1
	sink, _ := run(t, shrinkOptions,
		newTestAlignment(t, "a", fwdFlag, 100, "30M", 200, 130),
		newTestAlignment(t, "s", 0, 150, "30M", 0, 0),
		newTestAlignment(t, "a", revFlag, 200, "30M", 100, -130),
		newTestAlignment(t, "b", fwdFlag, 250, "30M", 300, 80),
		chr2)
	if got := strings.Join(sink.names(), ","); got != "0,1,0,2,3" {
		t.Errorf("names %v, expected 0,1,0,2,3", got)
	}
	if len(sink.alns) != 5 {
		t.Fatalf("%v alignments written, expected 5", len(sink.alns))
	}
	for i := 1; i < 4; i++ {
		if sink.alns[i].POS < sink.alns[i-1].POS {
			t.Errorf("alignment %v written out of order", i)
		}
	}
	a1, a2 := sink.alns[0], sink.alns[2]
	if a1.TLEN != 130 || a2.TLEN != -130 || a1.PNEXT != 200 || a2.PNEXT != 100 {
		t.Errorf("unexpected mate fields %v %v %v %v", a1.TLEN, a2.TLEN, a1.PNEXT, a2.PNEXT)
	}
	if !a1.IsMultiple() || !a2.IsMultiple() {
		t.Error("pair a lost its pairing")
	}
	b := sink.alns[3]
	if b.IsMultiple() || b.PNEXT != -1 || b.TLEN != 0 || b.NEXTREFID != -1 {
		t.Errorf("read b without a mate not made single-end: %v %v %v", b.FLAG, b.PNEXT, b.TLEN)
	}
	if sink.alns[4].REFID != 1 {
		t.Error("read on the second reference missing")
	}
}

func TestShrinkRemovedPair(t *testing.T) {
	sink, _ := run(t, shrinkOptions,
		newTestAlignment(t, "d", fwdFlag, 100, "30M", 200, 130),
		newTestAlignment(t, "d", revFlag|sam.Duplicate, 200, "30M", 100, -130),
		newTestAlignment(t, "e", 0, 300, "30M", 0, 0))
	if got := strings.Join(sink.names(), ","); got != "0" {
		t.Errorf("names %v, expected only the single read", got)
	}
	if len(sink.alns) == 1 && sink.alns[0].POS != 300 {
		t.Error("wrong read written")
	}
}

func TestShrinkUnpairsDistantMates(t *testing.T) {
	sink, _ := run(t, shrinkOptions,
		newTestAlignment(t, "f", fwdFlag, 100, "30M", 670, 600),
		newTestAlignment(t, "f", revFlag, 670, "30M", 100, -600))
	if len(sink.alns) != 2 {
		t.Fatalf("%v alignments written, expected 2", len(sink.alns))
	}
	if sink.alns[0].QNAME == sink.alns[1].QNAME {
		t.Error("unpaired mates share a name")
	}
	for _, aln := range sink.alns {
		if aln.IsMultiple() || aln.PNEXT != -1 || aln.TLEN != 0 {
			t.Errorf("read at %v not made single-end", aln.POS)
		}
	}
}

func TestShrinkCoverage(t *testing.T) {
	opts := shrinkOptions
	opts.AvgCoverage = 0.1
	var alns []*sam.Alignment
	for i := 0; i < 20; i++ {
		alns = append(alns, newTestAlignment(t, "r", 0, 100, "30M", 0, 0))
	}
	sink, shrinker := run(t, opts, alns...)
	if len(sink.alns) != 15 {
		t.Errorf("%v alignments written, expected 15", len(sink.alns))
	}
	if stats := shrinker.Stats(); stats.CoverageFilteredReads != 5 || stats.TotalReads != 20 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestShrinkRegion(t *testing.T) {
	sink := &alignmentSink{}
	shrinker := NewShrinker(sink, shrinkOptions)
	shrinker.SetRegion(&intervals.Region{Chrom: "chr1", Interval: intervals.Interval{Start: 300, End: 400}})
	err := shrinker.Process([]*sam.Alignment{
		newTestAlignment(t, "g", fwdFlag, 100, "30M", 150, 80),
		newTestAlignment(t, "g", revFlag, 150, "30M", 100, -80),
		newTestAlignment(t, "i", 0, 200, "30M", 0, 0),
		newTestAlignment(t, "h", fwdFlag, 250, "30M", 320, 100),
		newTestAlignment(t, "h", revFlag, 320, "30M", 250, -100),
		newTestAlignment(t, "j", 0, 350, "30M", 0, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := shrinker.Finish(); err != nil {
		t.Fatal(err)
	}
	if len(sink.alns) != 3 {
		t.Fatalf("%v alignments written, expected 3", len(sink.alns))
	}
	for i, pos := range []int32{250, 320, 350} {
		if sink.alns[i].POS != pos {
			t.Errorf("alignment %v at %v, expected %v", i, sink.alns[i].POS, pos)
		}
	}
	if got := strings.Join(sink.names(), ","); got != "0,0,1" {
		t.Errorf("names %v, expected 0,0,1", got)
	}
	if !sink.alns[0].IsMultiple() || sink.alns[0].TLEN != 100 {
		t.Error("pair with a mate in the region lost its pairing")
	}
}

const shrinkSam = "@HD\tVN:1.5\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:10000\n" +
	"pairA\t99\tchr1\t101\t60\t30M\t=\t151\t80\tACGTACGTACGTACGTACGTACGTACGTAC\t5555555555IIIIIIIIIIIIIIIIIIII\tRG:Z:grp1\tMQ:i:60\tNM:i:0\n" +
	"pairA\t147\tchr1\t151\t60\t30M\t=\t101\t-80\tACGTACGTACGTACGTACGTACGTACGTAC\tIIIIIIIIIIIIIIIIIIIIIIIIIIIIII\tRG:Z:grp1\tMQ:i:60\n"

func TestShrinkFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "bamshrink-filters")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	name := filepath.Join(dir, "in.sam")
	if err := ioutil.WriteFile(name, []byte(shrinkSam), 0666); err != nil {
		t.Fatal(err)
	}
	in, err := sam.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	sink := &alignmentSink{}
	stats, err := ShrinkFile(in, sink, shrinkOptions)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReads != 2 || len(sink.alns) != 2 {
		t.Fatalf("%v reads in, %v written", stats.TotalReads, len(sink.alns))
	}
	first, second := sink.alns[0], sink.alns[1]
	if first.QNAME != "0" || second.QNAME != "0" {
		t.Errorf("mates renamed to %v and %v", first.QNAME, second.QNAME)
	}
	if first.POS != 100 || second.POS != 150 || first.TLEN != 80 || second.TLEN != -80 {
		t.Errorf("unexpected mates %v %v %v %v", first.POS, second.POS, first.TLEN, second.TLEN)
	}
	for i, q := range first.QUAL {
		expected := byte(HighQuality)
		if i < 10 {
			expected = LowQuality
		}
		if q != expected {
			t.Fatalf("quality %v at %v, expected %v", q, i, expected)
		}
	}
}
