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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	hsam "github.com/biogo/hts/sam"
)

// SAM file extensions.
const (
	SamExt  = ".sam"
	BamExt  = ".bam"
	cramExt = ".cram"
)

var (
	// ErrUnknownReference is returned when a reference name is not
	// listed in the header of an input file.
	ErrUnknownReference = errors.New("unknown reference sequence")

	// ErrNoIndex is returned when an indexed jump is requested on an
	// input file without a loaded BAI index.
	ErrNoIndex = errors.New("no BAI index loaded")
)

type (
	recordReader interface {
		Read() (*hsam.Record, error)
	}

	// A Region restricts an InputFile to the alignments on one
	// reference whose POS lies in [Start, End].
	Region struct {
		RefID      int32
		Start, End int32
	}

	// InputFile represents a SAM or BAM file for input.
	InputFile struct {
		file   *os.File
		bam    *bam.Reader
		reader recordReader
		header *hsam.Header
		index  *bam.Index
		region *Region
		done   bool
		err    error
		data   []*Alignment
	}
)

// Open a SAM or BAM file for input.
//
// If the filename extension is not .bam, then .sam is always
// assumed.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin
func Open(name string) (*InputFile, error) {
	switch filepath.Ext(name) {
	case BamExt:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		reader, err := bam.NewReader(file, 1)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%w, while reading the header of %v", err, name)
		}
		return &InputFile{
			file:   file,
			bam:    reader,
			reader: reader,
			header: reader.Header(),
		}, nil
	case cramExt:
		return nil, fmt.Errorf("CRAM format not supported when opening %v", name)
	default:
		file := os.Stdin
		if name != "/dev/stdin" {
			var err error
			if file, err = os.Open(name); err != nil {
				return nil, err
			}
		}
		reader, err := hsam.NewReader(bufio.NewReader(file))
		if err != nil {
			if file != os.Stdin {
				_ = file.Close()
			}
			return nil, fmt.Errorf("%w, while reading the header of %v", err, name)
		}
		return &InputFile{
			file:   file,
			reader: reader,
			header: reader.Header(),
		}, nil
	}
}

// Close closes the SAM/BAM input file.
func (f *InputFile) Close() (err error) {
	if f.bam != nil {
		err = f.bam.Close()
	}
	if f.file != os.Stdin {
		if nerr := f.file.Close(); err == nil {
			err = nerr
		}
	}
	return err
}

// Header returns the header of the input file.
func (f *InputFile) Header() *hsam.Header {
	return f.header
}

// ReferenceID returns the index of the named reference in the header.
func (f *InputFile) ReferenceID(name string) (int32, error) {
	for _, ref := range f.header.Refs() {
		if ref.Name() == name {
			return int32(ref.ID()), nil
		}
	}
	return -1, fmt.Errorf("%w %v", ErrUnknownReference, name)
}

// LoadIndex reads the BAI index for a BAM input file.
func (f *InputFile) LoadIndex(name string) (err error) {
	if f.bam == nil {
		return fmt.Errorf("%w: indexed access requires BAM input", ErrNoIndex)
	}
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		nerr := file.Close()
		if err == nil {
			err = nerr
		}
	}()
	idx, err := bam.ReadIndex(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("%w, while reading BAI index %v", err, name)
	}
	f.index = idx
	return nil
}

// Jump positions the input file at the first alignment that may lie in
// the given region, and restricts subsequent reads to alignments on
// that reference with POS in [start, end]. It returns false if the
// index lists no alignments for the region.
func (f *InputFile) Jump(refID, start, end int32) (bool, error) {
	if f.index == nil {
		return false, ErrNoIndex
	}
	refs := f.header.Refs()
	if refID < 0 || int(refID) >= len(refs) {
		return false, fmt.Errorf("%w with id %v", ErrUnknownReference, refID)
	}
	ref := refs[refID]
	if start < 0 {
		start = 0
	}
	hi := int(end) + 1
	if hi > ref.Len() {
		hi = ref.Len()
	}
	f.region = &Region{RefID: refID, Start: start, End: end}
	f.done = true
	if int(start) >= hi {
		return false, nil
	}
	chunks, err := f.index.Chunks(ref, int(start), hi)
	if errors.Is(err, index.ErrNoReference) || (err == nil && len(chunks) == 0) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w, while looking up %v:%v-%v in the BAI index", err, ref.Name(), start, end)
	}
	if err := f.bam.Seek(chunks[0].Begin); err != nil {
		return false, fmt.Errorf("%w, while seeking to %v:%v", err, ref.Name(), start)
	}
	f.done = false
	return true, nil
}

// Read returns the next alignment, or io.EOF at the end of the file or
// of the region set by Jump.
func (f *InputFile) Read() (*Alignment, error) {
	for {
		rec, err := f.reader.Read()
		if err != nil {
			return nil, err
		}
		aln := fromRecord(rec)
		if region := f.region; region != nil {
			if aln.REFID != region.RefID {
				if aln.REFID >= 0 && aln.REFID < region.RefID {
					continue
				}
				return nil, io.EOF
			}
			if aln.POS > region.End {
				return nil, io.EOF
			}
			if aln.POS < region.Start {
				continue
			}
		}
		return aln, nil
	}
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	return f.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*InputFile) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) (fetched int) {
	f.data = nil
	if f.done {
		return 0
	}
	alns := make([]*Alignment, 0, size)
	for fetched = 0; fetched < size; fetched++ {
		aln, err := f.Read()
		if err != nil {
			f.done = true
			if err != io.EOF {
				f.err = err
			}
			break
		}
		alns = append(alns, aln)
	}
	f.data = alns
	return fetched
}

// Data implements the method of the pipeline.Source interface.
func (f *InputFile) Data() interface{} {
	return f.data
}

type (
	recordWriter interface {
		Write(*hsam.Record) error
	}

	// OutputFile represents a SAM or BAM file for output.
	OutputFile struct {
		file   *os.File
		buf    *bufio.Writer
		bam    *bam.Writer
		writer recordWriter
		refs   []*hsam.Reference
	}
)

// Create a SAM or BAM file for output, and write the given header to
// it.
//
// If the filename extension is not .bam, then .sam is always
// assumed.
//
// If the name is "/dev/stdout", then the output is written to
// os.Stdout.
func Create(name string, header *hsam.Header) (*OutputFile, error) {
	switch filepath.Ext(name) {
	case cramExt:
		return nil, fmt.Errorf("CRAM format not supported when creating %v", name)
	case BamExt:
		file, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		writer, err := bam.NewWriter(file, header, 1)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%w, while writing the header of %v", err, name)
		}
		return &OutputFile{file: file, bam: writer, writer: writer, refs: header.Refs()}, nil
	default:
		file := os.Stdout
		if name != "/dev/stdout" {
			var err error
			if file, err = os.Create(name); err != nil {
				return nil, err
			}
		}
		buf := bufio.NewWriter(file)
		writer, err := hsam.NewWriter(buf, header, hsam.FlagDecimal)
		if err != nil {
			if file != os.Stdout {
				_ = file.Close()
			}
			return nil, fmt.Errorf("%w, while writing the header of %v", err, name)
		}
		return &OutputFile{file: file, buf: buf, writer: writer, refs: header.Refs()}, nil
	}
}

// Write formats one alignment to the output file.
func (f *OutputFile) Write(aln *Alignment) error {
	rec, err := f.toRecord(aln)
	if err != nil {
		return err
	}
	return f.writer.Write(rec)
}

// Close flushes and closes a SAM or BAM output file.
func (f *OutputFile) Close() (err error) {
	if f.bam != nil {
		err = f.bam.Close()
	}
	if f.buf != nil {
		if nerr := f.buf.Flush(); err == nil {
			err = nerr
		}
	}
	if f.file != os.Stdout {
		if nerr := f.file.Close(); err == nil {
			err = nerr
		}
	}
	return err
}
