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

package sam

import (
	"strconv"
	"strings"

	"github.com/exascience/bamshrink/utils"
)

// An Alignment is one record of a SAM/BAM file.
//
// REFID and NEXTREFID index the references of the file header, with -1
// for an unplaced record or mate. POS and PNEXT are 0-based. QUAL
// holds raw phred scores (not the SAM text encoding), or 0xff bytes
// if the input did not carry qualities.
type Alignment struct {
	QNAME     string
	FLAG      uint16
	REFID     int32
	POS       int32
	MAPQ      byte
	CIGAR     []CigarOperation
	NEXTREFID int32
	PNEXT     int32
	TLEN      int32
	SEQ       []byte
	QUAL      []byte
	TAGS      utils.SmallMap
	Temps     utils.SmallMap
}

var (
	// RG is the read group tag.
	RG = utils.Intern("RG")
	// MQ is the mate mapping quality tag.
	MQ = utils.Intern("MQ")

	softClippedStart = utils.Intern("SoftClippedStart")
)

// SoftClippedStart returns the start position recorded with
// SetSoftClippedStart, and whether one was recorded.
func (aln *Alignment) SoftClippedStart() (int32, bool) {
	if pos, ok := aln.Temps.Get(softClippedStart); ok {
		return pos.(int32), true
	}
	return 0, false
}

// SetSoftClippedStart records the start position of the alignment
// including its leading soft clip.
func (aln *Alignment) SetSoftClippedStart(pos int32) {
	aln.Temps.Set(softClippedStart, pos)
}

// Alignment FLAG bits.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsMultiple() bool      { return (aln.FLAG & Multiple) != 0 }
func (aln *Alignment) IsUnmapped() bool      { return (aln.FLAG & Unmapped) != 0 }
func (aln *Alignment) IsNextUnmapped() bool  { return (aln.FLAG & NextUnmapped) != 0 }
func (aln *Alignment) IsReversed() bool      { return (aln.FLAG & Reversed) != 0 }
func (aln *Alignment) IsNextReversed() bool  { return (aln.FLAG & NextReversed) != 0 }
func (aln *Alignment) IsFirst() bool         { return (aln.FLAG & First) != 0 }
func (aln *Alignment) IsSecondary() bool     { return (aln.FLAG & Secondary) != 0 }
func (aln *Alignment) IsDuplicate() bool     { return (aln.FLAG & Duplicate) != 0 }
func (aln *Alignment) IsSupplementary() bool { return (aln.FLAG & Supplementary) != 0 }

func (aln *Alignment) FlagNotAny(flag uint16) bool { return (aln.FLAG & flag) == 0 }

// SetFlag sets or clears the given flag bits.
func (aln *Alignment) SetFlag(flag uint16, on bool) {
	if on {
		aln.FLAG |= flag
	} else {
		aln.FLAG &^= flag
	}
}

func (aln *Alignment) SetReversed(on bool)     { aln.SetFlag(Reversed, on) }
func (aln *Alignment) SetNextReversed(on bool) { aln.SetFlag(NextReversed, on) }

// IsPairMapped is true if both the alignment and its mate are mapped.
func (aln *Alignment) IsPairMapped() bool {
	return aln.FlagNotAny(Unmapped | NextUnmapped)
}

// SameOrientation is true if the alignment and its mate are recorded
// on the same strand.
func (aln *Alignment) SameOrientation() bool {
	return aln.IsReversed() == aln.IsNextReversed()
}

// MakeUnpaired turns the alignment into a single-end alignment by
// clearing its mate fields and pairing flags.
func (aln *Alignment) MakeUnpaired() {
	aln.TLEN = 0
	aln.PNEXT = -1
	aln.NEXTREFID = -1
	aln.FLAG &^= NextUnmapped | Proper | Multiple | NextReversed
}

// A CigarOperation is one (length, operation) element of a CIGAR.
type CigarOperation struct {
	Length    int32
	Operation byte
}

// CigarString formats a CIGAR in SAM notation.
func CigarString(cigar []CigarOperation) string {
	if len(cigar) == 0 {
		return "*"
	}
	var b strings.Builder
	for _, op := range cigar {
		b.WriteString(strconv.FormatInt(int64(op.Length), 10))
		b.WriteByte(op.Operation)
	}
	return b.String()
}
