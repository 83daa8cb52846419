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
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSam = "@HD\tVN:1.5\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:10000\n" +
	"@SQ\tSN:chr2\tLN:5000\n" +
	"@RG\tID:grp1\tSM:sample1\n" +
	"pairA\t99\tchr1\t101\t60\t5S45M\t=\t151\t100\tNACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTA\t#IIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIII\tRG:Z:grp1\tNM:i:0\n" +
	"pairA\t147\tchr1\t151\t60\t50M\t=\t101\t-100\tACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTACGTAC\tIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIIII\tRG:Z:grp1\n" +
	"single\t0\tchr2\t11\t30\t10M\t*\t0\t0\tACGTACGTAC\t*\n"

func writeTestSam(t *testing.T) (dir, name string) {
	t.Helper()
	dir, err := ioutil.TempDir("", "bamshrink-sam")
	if err != nil {
		t.Fatal(err)
	}
	name = filepath.Join(dir, "in.sam")
	if err := ioutil.WriteFile(name, []byte(testSam), 0666); err != nil {
		t.Fatal(err)
	}
	return dir, name
}

func readAll(t *testing.T, f *InputFile) (alns []*Alignment) {
	t.Helper()
	for {
		aln, err := f.Read()
		if err == io.EOF {
			return alns
		}
		if err != nil {
			t.Fatal(err)
		}
		alns = append(alns, aln)
	}
}

func TestOpenSam(t *testing.T) {
	dir, name := writeTestSam(t)
	defer os.RemoveAll(dir)
	f, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if id, err := f.ReferenceID("chr2"); err != nil || id != 1 {
		t.Errorf("ReferenceID chr2 returned %v, %v", id, err)
	}
	if _, err := f.ReferenceID("chrX"); !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
	if _, err := f.Jump(0, 0, 100); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
	alns := readAll(t, f)
	if len(alns) != 3 {
		t.Fatalf("expected 3 alignments, got %v", len(alns))
	}
	first := alns[0]
	if first.QNAME != "pairA" || first.REFID != 0 || first.POS != 100 || first.NEXTREFID != 0 || first.PNEXT != 150 || first.TLEN != 100 {
		t.Errorf("unexpected first alignment %+v", first)
	}
	if CigarString(first.CIGAR) != "5S45M" {
		t.Errorf("unexpected CIGAR %v", CigarString(first.CIGAR))
	}
	if first.QUAL[0] != 2 || first.QUAL[1] != 40 {
		t.Errorf("qualities not converted to phred scores: %v", first.QUAL[:2])
	}
	if len(first.TAGS) != 2 {
		t.Errorf("expected 2 tags, got %v", len(first.TAGS))
	}
	if _, ok := first.TAGS.Get(RG); !ok {
		t.Error("RG tag missing")
	}
	if !first.IsMultiple() || first.IsReversed() || !first.IsNextReversed() {
		t.Errorf("unexpected flags %v", first.FLAG)
	}
	last := alns[2]
	if last.REFID != 1 || last.NEXTREFID != -1 || last.PNEXT != -1 {
		t.Errorf("unexpected single-end alignment %+v", last)
	}
	if len(last.QUAL) != len(last.SEQ) {
		t.Error("missing qualities not expanded")
	}
}

func TestCreateSam(t *testing.T) {
	dir, name := writeTestSam(t)
	defer os.RemoveAll(dir)
	in, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	header, err := ShrinkHeader(in.Header(), "500", "N", "30", "1.5")
	if err != nil {
		t.Fatal(err)
	}
	outName := filepath.Join(dir, "out.sam")
	out, err := Create(outName, header)
	if err != nil {
		t.Fatal(err)
	}
	var count int
	if err := in.RunPipeline(func(alns []*Alignment) error {
		for _, aln := range alns {
			aln.QNAME = strings.ToUpper(aln.QNAME)
			aln.TAGS = aln.TAGS.Retain(RG)
			if err := out.Write(aln); err != nil {
				return err
			}
			count++
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := in.Close(); err != nil {
		t.Error(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("pipeline delivered %v alignments", count)
	}
	check, err := Open(outName)
	if err != nil {
		t.Fatal(err)
	}
	defer check.Close()
	progs := check.Header().Progs()
	if len(progs) != 1 || !strings.HasPrefix(progs[0].UID(), "bamshrink-") {
		t.Errorf("unexpected @PG lines %v", progs)
	}
	alns := readAll(t, check)
	if len(alns) != 3 {
		t.Fatalf("expected 3 alignments, got %v", len(alns))
	}
	if alns[1].QNAME != "PAIRA" || alns[1].POS != 150 || alns[1].TLEN != -100 || len(alns[1].TAGS) != 1 {
		t.Errorf("unexpected alignment after round trip %+v", alns[1])
	}
	if len(alns[0].TAGS) != 1 {
		t.Errorf("NM tag survived Retain")
	}
}
