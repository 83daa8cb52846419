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
	"math"
	"strconv"

	"github.com/exascience/bamshrink/intervals"
	"github.com/exascience/bamshrink/sam"
)

// Options configure a Shrinker.
type Options struct {
	// MaxFragmentLength bounds the distance between mates of a pair
	// that are kept paired, and how long alignments stay buffered.
	MaxFragmentLength int32
	// KeepMapQuality keeps the MQ tag in the output.
	KeepMapQuality bool
	// MinMatches is the minimum read length and number of matching
	// bases of an output read.
	MinMatches int32
	// AvgCoverage is the average coverage divided by the read length.
	AvgCoverage float64
	// QualityClipWindow enables quality clipping with the given
	// window size when > 0.
	QualityClipWindow int32
}

// An AlignmentWriter receives the alignments a Shrinker emits.
type AlignmentWriter interface {
	Write(*sam.Alignment) error
}

type adapterCandidate struct {
	name string
	aln  *sam.Alignment
}

// A Shrinker filters, trims and anonymizes a coordinate-sorted stream
// of alignments.
//
// Alignments are buffered until no later alignment in the stream can
// still be their mate, at which point they are emitted in position
// order with their mate fields corrected for the edits of their mate.
type Shrinker struct {
	opts     Options
	out      AlignmentWriter
	stats    RunStats
	editor   RecordEditor
	mates    *MateTracker
	coverage *CoverageWindow
	buffer   WindowBuffer

	candidates     map[string]*sam.Alignment
	candidateQueue []adapterCandidate

	renames map[string]int64
	nextID  int64

	refID   int32
	scan    int32
	ready   int32
	started bool
	region  *intervals.Region
}

// NewShrinker returns a Shrinker that writes to out.
func NewShrinker(out AlignmentWriter, opts Options) *Shrinker {
	s := &Shrinker{
		opts:       opts,
		out:        out,
		mates:      NewMateTracker(),
		coverage:   NewCoverageWindow(opts.AvgCoverage),
		candidates: make(map[string]*sam.Alignment),
		renames:    make(map[string]int64),
		ready:      math.MinInt32,
	}
	s.editor = RecordEditor{opts: &s.opts, mates: s.mates, stats: &s.stats}
	return s
}

// Stats returns the counters of the run so far.
func (s *Shrinker) Stats() RunStats {
	return s.stats
}

// SetRegion restricts the output to alignments that lie in, or have a
// mate in, the given region. A nil region disables the restriction.
func (s *Shrinker) SetRegion(region *intervals.Region) {
	s.region = region
}

// Process adds a batch of alignments. It implements
// sam.AlignmentReceiver.
func (s *Shrinker) Process(alns []*sam.Alignment) error {
	for _, aln := range alns {
		if err := s.Add(aln); err != nil {
			return err
		}
	}
	return nil
}

// Add processes the next alignment of the stream.
func (s *Shrinker) Add(aln *sam.Alignment) error {
	if s.started && aln.REFID != s.refID {
		if err := s.Finish(); err != nil {
			return err
		}
	}
	s.started = true
	s.refID = aln.REFID
	s.scan = aln.POS
	s.mates.Advance(aln.POS)
	s.stats.TotalReads++
	if aln.IsSecondary() || aln.IsSupplementary() {
		aln.MakeUnpaired()
	}

	if !s.coverage.Admit(aln.POS) {
		s.stats.CoverageFilteredReads++
		if aln.IsMultiple() {
			s.mates.MarkRemoved(aln.QNAME)
		}
		return s.flush()
	}
	if admitted := s.filter(aln); len(admitted) == 0 {
		s.coverage.Undo()
	} else {
		for _, ready := range admitted {
			BinarizeQualities(ready)
			s.buffer.Add(ready)
		}
	}
	return s.flush()
}

func (s *Shrinker) unpair(aln *sam.Alignment) {
	aln.MakeUnpaired()
	s.mates.MarkRemoved(aln.QNAME)
}

// filter applies the pairing rules and the record editor. It returns
// the alignments that are ready to be buffered, which can be none
// (rejected or held back for the adapter check), the alignment itself,
// or the alignment and its held mate.
func (s *Shrinker) filter(aln *sam.Alignment) []*sam.Alignment {
	readLength := len(aln.SEQ)
	if !aln.IsMultiple() {
		if aln.IsDuplicate() || !s.editor.Edit(aln) {
			return nil
		}
		return []*sam.Alignment{aln}
	}

	if aln.SameOrientation() {
		if aln.IsNextUnmapped() && !aln.IsUnmapped() {
			aln.SetNextReversed(!aln.IsReversed())
		} else if aln.IsUnmapped() && !aln.IsNextUnmapped() {
			aln.SetReversed(!aln.IsNextReversed())
		}
	}
	name := aln.QNAME
	role := RoleOf(aln)
	s.mates.Observe(name, role)
	if role == Forward {
		s.mates.Anchor(name, Forward, aln.POS)
	} else {
		s.mates.Anchor(name, Reverse, aln.End())
	}
	if aln.SameOrientation() && !(aln.IsUnmapped() && aln.IsNextUnmapped()) {
		s.unpair(aln)
	}
	if aln.IsDuplicate() {
		s.mates.MarkRemoved(name)
		return nil
	}
	if aln.IsMultiple() && (abs(aln.TLEN) > s.opts.MaxFragmentLength || aln.REFID != aln.NEXTREFID) {
		s.unpair(aln)
	}
	if !s.editor.Edit(aln) {
		return nil
	}
	if !aln.IsMultiple() {
		return []*sam.Alignment{aln}
	}

	if held, ok := s.candidates[name]; ok {
		delete(s.candidates, name)
		if s.mates.IsRemoved(name) {
			return nil
		}
		if RoleOf(held) != role && aln.IsPairMapped() && held.IsPairMapped() {
			fwd, rev := held, aln
			if role == Forward {
				fwd, rev = aln, held
			}
			if !s.editor.TrimAdapters(fwd, rev) {
				return nil
			}
		}
		return []*sam.Alignment{held, aln}
	}
	if int(abs(aln.TLEN)) < readLength && aln.IsPairMapped() {
		s.candidates[name] = aln
		s.candidateQueue = append(s.candidateQueue, adapterCandidate{name, aln})
		return nil
	}
	return []*sam.Alignment{aln}
}

func abs(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

// expireCandidates drops held alignments whose mate can no longer
// appear, and removes their pairs.
func (s *Shrinker) expireCandidates(before int32, all bool) {
	i := 0
	for ; i < len(s.candidateQueue); i++ {
		candidate := s.candidateQueue[i]
		if !all && candidate.aln.POS >= before {
			break
		}
		if held, ok := s.candidates[candidate.name]; ok && held == candidate.aln {
			delete(s.candidates, candidate.name)
			s.mates.MarkRemoved(candidate.name)
		}
	}
	s.candidateQueue = s.candidateQueue[i:]
}

// flush emits all buffered alignments that are more than
// MaxFragmentLength positions behind the scan position.
func (s *Shrinker) flush() error {
	ready := s.scan - s.opts.MaxFragmentLength - 1
	if ready <= s.ready {
		return nil
	}
	s.ready = ready
	s.expireCandidates(ready+1, false)
	if s.region != nil {
		if min, ok := s.buffer.MinPos(); ok && min < s.region.Start {
			upTo := ready
			if upTo >= s.region.Start {
				upTo = s.region.Start - 1
			}
			s.buffer.Prune(upTo, s.connectsToRegion)
		}
	}
	if err := s.buffer.Drain(ready, s.emit); err != nil {
		return err
	}
	s.mates.Expire(ready - s.opts.MaxFragmentLength)
	return nil
}

// Finish emits all buffered alignments and clears all per-stream
// state. The read name counter and the run stats are kept.
func (s *Shrinker) Finish() error {
	s.expireCandidates(0, true)
	if s.region != nil && s.buffer.Len() > 0 {
		s.buffer.Prune(math.MaxInt32, s.connectsToRegion)
	}
	err := s.buffer.DrainAll(s.emit)
	s.buffer.Reset()
	s.mates.Reset()
	s.coverage.Reset()
	s.candidates = make(map[string]*sam.Alignment)
	s.candidateQueue = nil
	s.renames = make(map[string]int64)
	s.ready = math.MinInt32
	s.started = false
	return err
}

// connectsToRegion decides whether an alignment outside the active
// region can still reach the output. Paired alignments survive if they
// or their mate overlap the region; the pair is removed otherwise.
func (s *Shrinker) connectsToRegion(aln *sam.Alignment) bool {
	region := s.region
	if s.mates.IsRemoved(aln.QNAME) && aln.IsMultiple() {
		return false
	}
	start, end := aln.POS, aln.End()
	if end == start {
		end = start + 1
	}
	if !aln.IsMultiple() {
		return end > region.Start && start <= region.End
	}
	role := RoleOf(aln)
	mateStart := aln.PNEXT
	mateEnd := mateStart + (end - start)
	if state := s.mates.Lookup(aln.QNAME); state != nil {
		mate := state.Slot(role.Opposite())
		mateStart += mate.PositionShift
		mateEnd += mate.PositionShift
		if role == Forward && mate.Seen && !aln.IsNextUnmapped() {
			mateEnd = mate.FragmentLengthAnchor
		}
	}
	if (end <= region.Start && mateEnd <= region.Start) || (start > region.End && mateStart > region.End) {
		s.mates.MarkRemoved(aln.QNAME)
		return false
	}
	return true
}

// emit resolves the mate fields of an alignment, anonymizes it, and
// writes it to the output. Alignments of removed pairs are dropped.
func (s *Shrinker) emit(aln *sam.Alignment) error {
	name := aln.QNAME
	if !aln.IsMultiple() {
		if !aln.IsSecondary() && !aln.IsSupplementary() {
			s.mates.Forget(name)
		}
		aln.MakeUnpaired()
		return s.write(aln, s.freshID())
	}
	role := RoleOf(aln)
	state := s.mates.Lookup(name)
	if state != nil && state.Removed() {
		delete(s.renames, name)
		return nil
	}
	var mate *MateEditInfo
	if state != nil {
		mate = state.Slot(role.Opposite())
	}
	if mate == nil || !mate.Seen || (!mate.Emitted && aln.POS > aln.PNEXT+mate.PositionShift) {
		s.mates.Forget(name)
		delete(s.renames, name)
		aln.MakeUnpaired()
		return s.write(aln, s.freshID())
	}
	aln.PNEXT += mate.PositionShift
	switch {
	case !aln.IsPairMapped() || aln.TLEN == 0:
		aln.TLEN = 0
	case aln.TLEN > 0:
		aln.TLEN = mate.FragmentLengthAnchor - aln.POS
	default:
		aln.TLEN = -(aln.End() - mate.FragmentLengthAnchor)
	}
	if mate.Emitted {
		s.mates.Forget(name)
	} else {
		state.Slot(role).Emitted = true
	}
	id, ok := s.renames[name]
	if ok {
		delete(s.renames, name)
	} else {
		id = s.freshID()
		s.renames[name] = id
	}
	return s.write(aln, id)
}

func (s *Shrinker) freshID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Shrinker) write(aln *sam.Alignment, id int64) error {
	aln.QNAME = strconv.FormatInt(id, 10)
	if s.opts.KeepMapQuality {
		aln.TAGS = aln.TAGS.Retain(sam.RG, sam.MQ)
	} else {
		aln.TAGS = aln.TAGS.Retain(sam.RG)
	}
	aln.Temps = nil
	return s.out.Write(aln)
}
