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
	"log"
	"math"

	"github.com/exascience/bamshrink/sam"
)

// Output quality scores. QUAL holds raw phred scores, which the SAM
// writer encodes as 'I' and '!'.
const (
	HighQuality      = 40
	LowQuality       = 0
	QualityThreshold = 25
	missingQuality   = 0xff
)

// A RecordEditor applies the per-record clipping and trimming steps.
// Position changes of paired reads are reported to the mate tracker
// under the role of the edited read, and removed bases are counted in
// the run stats.
type RecordEditor struct {
	opts  *Options
	mates *MateTracker
	stats *RunStats
}

func warnIfInconsistent(aln *sam.Alignment, step string) {
	if !aln.CigarMatchesSequence() {
		log.Printf("Warning: CIGAR %v covers %v read bases, but the sequence has %v bases after %v.",
			sam.CigarString(aln.CIGAR), sam.ReadLengthFromCigar(aln.CIGAR), len(aln.SEQ), step)
	}
}

func (e *RecordEditor) reject(aln *sam.Alignment) bool {
	if aln.IsMultiple() {
		e.mates.MarkRemoved(aln.QNAME)
	}
	return false
}

func (e *RecordEditor) tooShort(aln *sam.Alignment) bool {
	return len(aln.SEQ) == 0 || int32(len(aln.SEQ)) < e.opts.MinMatches
}

// trimBegin removes n bases from the start of the read.
func (e *RecordEditor) trimBegin(aln *sam.Alignment, n int32) {
	aln.SEQ = aln.SEQ[n:]
	aln.QUAL = aln.QUAL[n:]
	if aln.IsUnmapped() {
		return
	}
	var removed []sam.CigarOperation
	aln.CIGAR, removed = sam.TrimCigarBegin(aln.CIGAR, n)
	shift := sam.ReferenceLengthFromCigar(removed)
	aln.POS += shift
	if !aln.IsMultiple() {
		return
	}
	role := RoleOf(aln)
	e.mates.Shift(aln.QNAME, role, shift)
	if role == Forward {
		e.mates.Anchor(aln.QNAME, Forward, aln.POS)
	}
}

// trimEnd removes n bases from the end of the read.
func (e *RecordEditor) trimEnd(aln *sam.Alignment, n int32) {
	keep := int32(len(aln.SEQ)) - n
	aln.SEQ = aln.SEQ[:keep]
	aln.QUAL = aln.QUAL[:keep]
	if aln.IsUnmapped() {
		return
	}
	aln.CIGAR, _ = sam.TrimCigarEnd(aln.CIGAR, n)
	if aln.IsMultiple() && RoleOf(aln) == Reverse {
		e.mates.Anchor(aln.QNAME, Reverse, aln.End())
	}
}

// boundedClip bounds n by the number of bases the read actually holds.
func boundedClip(aln *sam.Alignment, n int32) int32 {
	if l := int32(len(aln.SEQ)); n > l {
		n = l
	}
	if l := int32(len(aln.QUAL)); n > l {
		n = l
	}
	return n
}

// StripSoftClips removes soft clipped bases from both ends of a mapped
// read. The start position including the leading soft clip is
// remembered for the adapter check. A read without a sequence only has
// its CIGAR edited.
func (e *RecordEditor) StripSoftClips(aln *sam.Alignment) bool {
	if aln.IsUnmapped() || len(aln.CIGAR) == 0 {
		return true
	}
	noSeq := len(aln.SEQ) == 0
	if first := aln.CIGAR[0]; first.Operation == 'S' {
		n := boundedClip(aln, first.Length)
		aln.SEQ = aln.SEQ[n:]
		aln.QUAL = aln.QUAL[n:]
		aln.CIGAR = aln.CIGAR[1:]
		aln.SetSoftClippedStart(aln.POS - first.Length)
		e.stats.SoftClippedBp += int64(first.Length)
	}
	if l := len(aln.CIGAR); l > 0 && aln.CIGAR[l-1].Operation == 'S' {
		last := aln.CIGAR[l-1]
		n := boundedClip(aln, last.Length)
		aln.SEQ = aln.SEQ[:int32(len(aln.SEQ))-n]
		aln.QUAL = aln.QUAL[:int32(len(aln.QUAL))-n]
		aln.CIGAR = aln.CIGAR[:l-1]
		e.stats.SoftClippedBp += int64(last.Length)
	}
	if noSeq {
		return true
	}
	warnIfInconsistent(aln, "soft clip removal")
	if e.tooShort(aln) {
		e.stats.MatchRemovedReads++
		return e.reject(aln)
	}
	return true
}

func isAmbiguous(base byte) bool {
	return base == 'N' || base == 'n'
}

// TrimAmbiguousBases removes runs of N bases from both ends of the
// read.
func (e *RecordEditor) TrimAmbiguousBases(aln *sam.Alignment) bool {
	var lead int32
	for int(lead) < len(aln.SEQ) && isAmbiguous(aln.SEQ[lead]) {
		lead++
	}
	if lead > 0 {
		e.trimBegin(aln, lead)
		warnIfInconsistent(aln, "leading N removal")
	}
	if e.tooShort(aln) {
		e.stats.MatchRemovedReads++
		return e.reject(aln)
	}
	var trail int32
	for n := int32(len(aln.SEQ)); trail < n && isAmbiguous(aln.SEQ[n-1-trail]); {
		trail++
	}
	if trail > 0 {
		e.trimEnd(aln, trail)
		warnIfInconsistent(aln, "trailing N removal")
	}
	if e.tooShort(aln) {
		e.stats.MatchRemovedReads++
		return e.reject(aln)
	}
	return true
}

func averageQuality(sum, window int32) float64 {
	return math.Round(float64(sum) / float64(window))
}

// ClipLowQuality clips each end of the read until the average quality
// of a window of QualityClipWindow bases reaches QualityThreshold. It
// does nothing if the window size is 0 or the read has no qualities.
func (e *RecordEditor) ClipLowQuality(aln *sam.Alignment) bool {
	w := e.opts.QualityClipWindow
	if w <= 0 || int32(len(aln.QUAL)) <= w || aln.QUAL[0] == missingQuality {
		return true
	}
	qual := aln.QUAL
	var sum int32
	for _, q := range qual[:w] {
		sum += int32(q)
	}
	var index int32
	for averageQuality(sum, w) < QualityThreshold && index+w < int32(len(qual)) {
		sum += int32(qual[index+w]) - int32(qual[index])
		index++
	}
	if index > 0 {
		e.stats.QualityClippedBp += int64(index)
		e.trimBegin(aln, index)
		warnIfInconsistent(aln, "quality clipping")
	}
	qual = aln.QUAL
	n := int32(len(qual))
	sum = 0
	for _, q := range qual[n-w:] {
		sum += int32(q)
	}
	index = 0
	for averageQuality(sum, w) < QualityThreshold && index+w < n {
		index++
		sum += int32(qual[n-w-index]) - int32(qual[n-index])
	}
	if index > 0 {
		e.stats.QualityClippedBp += int64(index)
		e.trimEnd(aln, index)
		warnIfInconsistent(aln, "quality clipping")
	}
	if e.tooShort(aln) {
		e.stats.MatchRemovedReads++
		return e.reject(aln)
	}
	return true
}

// CheckMatches rejects mapped reads with fewer than MinMatches bases
// aligned as M, = or X.
func (e *RecordEditor) CheckMatches(aln *sam.Alignment) bool {
	if aln.IsUnmapped() {
		return true
	}
	if sam.MatchingBasesFromCigar(aln.CIGAR) < e.opts.MinMatches {
		e.stats.MatchRemovedReads++
		return e.reject(aln)
	}
	return true
}

// Edit runs the per-record steps in order: hard clip removal, soft
// clip removal, N trimming, optional quality clipping, and the
// matching-base check. It returns false if the read is rejected, in
// which case its pair is marked removed. Mapped reads without a
// sequence only get their clips removed from the CIGAR before the
// matching-base check.
func (e *RecordEditor) Edit(aln *sam.Alignment) bool {
	if !aln.IsUnmapped() {
		aln.StripHardClips()
		if len(aln.SEQ) == 0 {
			return e.StripSoftClips(aln) && e.CheckMatches(aln)
		}
		warnIfInconsistent(aln, "reading")
	}
	return e.StripSoftClips(aln) &&
		e.TrimAmbiguousBases(aln) &&
		e.ClipLowQuality(aln) &&
		e.CheckMatches(aln)
}

// adapterClip counts the read bases at the start of rev that align
// before target. Deletions advance the reference coordinate only,
// insertions count as clipped bases only.
func adapterClip(rev *sam.Alignment, target int32) (clip int32) {
	coord := rev.POS
	for _, op := range rev.CIGAR {
		if coord >= target {
			break
		}
		readBases := sam.OperatorConsumesReadBases(op.Operation)
		if sam.OperatorConsumesReferenceBases(op.Operation) {
			n := op.Length
			if remaining := target - coord; n > remaining {
				n = remaining
			}
			coord += n
			if readBases {
				clip += n
			}
		} else if readBases {
			clip += op.Length
		}
	}
	return clip
}

// TrimAdapters removes adapter read-through from a pair whose
// template is shorter than its reads. The bases of the reverse mate
// that align before the start of the forward mate are removed, and the
// forward mate is shortened to the resulting length of the reverse
// mate. TrimAdapters returns false if either mate becomes too short,
// in which case the pair is marked removed.
func (e *RecordEditor) TrimAdapters(fwd, rev *sam.Alignment) bool {
	if start, ok := fwd.SoftClippedStart(); ok && start <= rev.POS {
		return true
	}
	if fwd.POS <= rev.POS {
		return true
	}
	clip := adapterClip(rev, fwd.POS)
	if clip == 0 {
		return true
	}
	if clip > int32(len(rev.SEQ)) {
		clip = int32(len(rev.SEQ))
	}
	e.trimBegin(rev, clip)
	e.stats.AdapterClippedBp += int64(clip)
	if extra := int32(len(fwd.SEQ) - len(rev.SEQ)); extra > 0 {
		e.trimEnd(fwd, extra)
		e.stats.AdapterClippedBp += int64(extra)
	}
	e.stats.AdapterTrimmedReads += 2
	e.mates.Anchor(rev.QNAME, Reverse, rev.End())
	e.mates.Anchor(fwd.QNAME, Forward, fwd.POS)
	warnIfInconsistent(fwd, "adapter trimming")
	warnIfInconsistent(rev, "adapter trimming")
	if e.tooShort(fwd) || e.tooShort(rev) {
		return e.reject(fwd)
	}
	return true
}

// BinarizeQualities replaces each quality score with HighQuality if it
// is at least QualityThreshold, and with LowQuality otherwise. Missing
// qualities are left alone.
func BinarizeQualities(aln *sam.Alignment) {
	for i, q := range aln.QUAL {
		switch {
		case q == missingQuality:
		case q >= QualityThreshold:
			aln.QUAL[i] = HighQuality
		default:
			aln.QUAL[i] = LowQuality
		}
	}
}
