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
	"fmt"
	"strings"

	"github.com/google/uuid"

	hsam "github.com/biogo/hts/sam"

	"github.com/exascience/bamshrink/utils"
)

// The index of an operation in this string is its BAM encoding, which
// is also the value of the corresponding hts CigarOpType.
const cigarOpCodes = "MIDNSHP=XB"

var cigarOpTypes [256]hsam.CigarOpType

func init() {
	for i := range cigarOpTypes {
		cigarOpTypes[i] = hsam.CigarBack
	}
	for i := 0; i < len(cigarOpCodes); i++ {
		cigarOpTypes[cigarOpCodes[i]] = hsam.CigarOpType(i)
	}
}

func refID(ref *hsam.Reference) int32 {
	if ref == nil {
		return -1
	}
	return int32(ref.ID())
}

func fromRecord(rec *hsam.Record) *Alignment {
	aln := &Alignment{
		QNAME:     rec.Name,
		FLAG:      uint16(rec.Flags),
		REFID:     refID(rec.Ref),
		POS:       int32(rec.Pos),
		MAPQ:      rec.MapQ,
		NEXTREFID: refID(rec.MateRef),
		PNEXT:     int32(rec.MatePos),
		TLEN:      int32(rec.TempLen),
		SEQ:       rec.Seq.Expand(),
		QUAL:      rec.Qual,
	}
	if len(rec.Cigar) > 0 {
		aln.CIGAR = make([]CigarOperation, 0, len(rec.Cigar))
		for _, op := range rec.Cigar {
			code := byte('B')
			if t := int(op.Type()); t < len(cigarOpCodes) {
				code = cigarOpCodes[t]
			}
			aln.CIGAR = append(aln.CIGAR, CigarOperation{Length: int32(op.Len()), Operation: code})
		}
	}
	if len(aln.QUAL) != len(aln.SEQ) {
		aln.QUAL = missingQualities(len(aln.SEQ))
	}
	aln.TAGS = make(utils.SmallMap, 0, len(rec.AuxFields))
	for _, aux := range rec.AuxFields {
		aln.TAGS.Set(utils.Intern(aux.Tag().String()), aux)
	}
	return aln
}

func missingQualities(n int) []byte {
	qual := make([]byte, n)
	for i := range qual {
		qual[i] = 0xff
	}
	return qual
}

func (f *OutputFile) reference(id int32) (*hsam.Reference, error) {
	if id < 0 {
		return nil, nil
	}
	if int(id) >= len(f.refs) {
		return nil, fmt.Errorf("%w with id %v", ErrUnknownReference, id)
	}
	return f.refs[id], nil
}

func (f *OutputFile) toRecord(aln *Alignment) (*hsam.Record, error) {
	ref, err := f.reference(aln.REFID)
	if err != nil {
		return nil, err
	}
	mateRef, err := f.reference(aln.NEXTREFID)
	if err != nil {
		return nil, err
	}
	rec := &hsam.Record{
		Name:    aln.QNAME,
		Ref:     ref,
		Pos:     int(aln.POS),
		MapQ:    aln.MAPQ,
		Flags:   hsam.Flags(aln.FLAG),
		MateRef: mateRef,
		MatePos: int(aln.PNEXT),
		TempLen: int(aln.TLEN),
		Seq:     hsam.NewSeq(aln.SEQ),
		Qual:    aln.QUAL,
	}
	if len(aln.CIGAR) > 0 {
		rec.Cigar = make(hsam.Cigar, 0, len(aln.CIGAR))
		for _, op := range aln.CIGAR {
			rec.Cigar = append(rec.Cigar, hsam.NewCigarOp(cigarOpTypes[op.Operation], int(op.Length)))
		}
	}
	for _, entry := range aln.TAGS {
		if aux, ok := entry.Value.(hsam.Aux); ok {
			rec.AuxFields = append(rec.AuxFields, aux)
		}
	}
	return rec, nil
}

// ShrinkHeader returns a copy of the given header with an additional
// @PG line for this program. The @PG command line only lists the
// numeric parameters, never file names.
func ShrinkHeader(header *hsam.Header, params ...string) (*hsam.Header, error) {
	result := header.Clone()
	var prev string
	if progs := result.Progs(); len(progs) > 0 {
		prev = progs[len(progs)-1].UID()
	}
	id := utils.ProgramName + "-" + uuid.New().String()
	command := strings.Join(append([]string{utils.ProgramName}, params...), " ")
	if err := result.AddProgram(hsam.NewProgram(id, utils.ProgramName, command, prev, utils.ProgramVersion)); err != nil {
		return nil, fmt.Errorf("%w, while adding a @PG line to the output header", err)
	}
	return result, nil
}
