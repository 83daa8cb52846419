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

// OperatorConsumesReadBases is true for CIGAR operations that consume
// bases of the read sequence.
func OperatorConsumesReadBases(operator byte) bool {
	switch operator {
	case 'M', 'I', 'S', '=', 'X':
		return true
	default:
		return false
	}
}

// OperatorConsumesReferenceBases is true for CIGAR operations that
// consume bases of the reference.
func OperatorConsumesReferenceBases(operator byte) bool {
	switch operator {
	case 'M', 'D', 'N', '=', 'X':
		return true
	default:
		return false
	}
}

func operatorIsMatch(operator byte) bool {
	switch operator {
	case 'M', '=', 'X':
		return true
	default:
		return false
	}
}

// ReadLengthFromCigar sums the lengths of all CIGAR operations that
// consume read bases.
func ReadLengthFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if OperatorConsumesReadBases(op.Operation) {
			length += op.Length
		}
	}
	return length
}

// ReferenceLengthFromCigar sums the lengths of all CIGAR operations
// that consume reference bases.
func ReferenceLengthFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if OperatorConsumesReferenceBases(op.Operation) {
			length += op.Length
		}
	}
	return length
}

// MatchingBasesFromCigar sums the lengths of all M, = and X operations.
func MatchingBasesFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if operatorIsMatch(op.Operation) {
			length += op.Length
		}
	}
	return length
}

// End returns the 0-based position just past the last reference base
// covered by the alignment.
func (aln *Alignment) End() int32 {
	return aln.POS + ReferenceLengthFromCigar(aln.CIGAR)
}

// CigarMatchesSequence checks that the read bases consumed by the
// CIGAR account for the whole sequence. Unmapped alignments and
// alignments without a sequence always pass.
func (aln *Alignment) CigarMatchesSequence() bool {
	if aln.IsUnmapped() || len(aln.CIGAR) == 0 || len(aln.SEQ) == 0 {
		return true
	}
	return ReadLengthFromCigar(aln.CIGAR) == int32(len(aln.SEQ))
}

// TrimCigarBegin removes n read bases from the start of the given
// CIGAR. Operations that do not consume read bases and become leading
// during the trim are removed as well. It returns the remaining CIGAR
// and the removed operations in the order they were removed; the
// input slice is not modified.
func TrimCigarBegin(cigar []CigarOperation, n int32) (remaining, removed []CigarOperation) {
	remaining = append([]CigarOperation(nil), cigar...)
	if n <= 0 {
		return remaining, nil
	}
	for len(remaining) > 0 {
		op := remaining[0]
		if !OperatorConsumesReadBases(op.Operation) {
			removed = append(removed, op)
			remaining = remaining[1:]
			continue
		}
		if n == 0 {
			break
		}
		if op.Length > n {
			removed = append(removed, CigarOperation{n, op.Operation})
			remaining[0].Length -= n
			break
		}
		removed = append(removed, op)
		remaining = remaining[1:]
		n -= op.Length
	}
	return remaining, removed
}

// TrimCigarEnd removes n read bases from the end of the given CIGAR.
// Operations that do not consume read bases and become trailing during
// the trim are removed as well. It returns the remaining CIGAR and the
// removed operations in the order they were removed; the input slice
// is not modified.
func TrimCigarEnd(cigar []CigarOperation, n int32) (remaining, removed []CigarOperation) {
	remaining = append([]CigarOperation(nil), cigar...)
	if n <= 0 {
		return remaining, nil
	}
	for len(remaining) > 0 {
		last := len(remaining) - 1
		op := remaining[last]
		if !OperatorConsumesReadBases(op.Operation) {
			removed = append(removed, op)
			remaining = remaining[:last]
			continue
		}
		if n == 0 {
			break
		}
		if op.Length > n {
			removed = append(removed, CigarOperation{n, op.Operation})
			remaining[last].Length -= n
			break
		}
		removed = append(removed, op)
		remaining = remaining[:last]
		n -= op.Length
	}
	return remaining, removed
}

// StripHardClips removes leading and trailing hard clip operations.
func (aln *Alignment) StripHardClips() {
	cigar := aln.CIGAR
	if len(cigar) > 0 && cigar[0].Operation == 'H' {
		cigar = cigar[1:]
	}
	if n := len(cigar); n > 0 && cigar[n-1].Operation == 'H' {
		cigar = cigar[:n-1]
	}
	aln.CIGAR = cigar
}
