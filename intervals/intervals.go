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

// Package intervals reads the genomic windows that restrict which
// parts of an alignment file are processed.
package intervals

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exascience/bamshrink/utils"
)

// ErrNoIntervals is returned for an interval file without intervals.
var ErrNoIntervals = errors.New("the interval file contains no intervals")

// Interval is a generic struct with a start and an end position.
type Interval struct {
	Start, End int32
}

// Extend makes interval1 larger if interval2 starts at most gap
// positions after the end of interval1, by storing max(interval1.End,
// interval2.End) in interval1.End; otherwise, interval1 remains
// unchanged. Returns true if interval1 was extended.
// interval2.Start >= interval1.Start must be true before
// calling Extend.
func (interval1 *Interval) Extend(interval2 Interval, gap int32) bool {
	if interval2.Start-interval1.End > gap {
		return false
	}
	if interval2.End > interval1.End {
		interval1.End = interval2.End
	}
	return true
}

// A Region is an interval on a named reference sequence, in 0-based
// inclusive coordinates.
type Region struct {
	Chrom string
	Interval
}

func (region Region) String() string {
	return fmt.Sprintf("%v:%v-%v", region.Chrom, region.Start, region.End)
}

func parseCoordinate(field, what string, index int) (int32, error) {
	value, err := strconv.ParseInt(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w, while parsing the %v of interval %v", err, what, index)
	}
	if value < 1 {
		return 0, fmt.Errorf("invalid %v %v of interval %v, coordinates are 1-based", what, value, index)
	}
	return int32(value - 1), nil
}

// ParseRegions reads whitespace-separated "chromosome start end"
// triples with 1-based inclusive coordinates, and returns them as
// 0-based regions in file order.
func ParseRegions(r io.Reader) (regions []Region, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	var fields [3]string
	n := 0
	for scanner.Scan() {
		fields[n] = scanner.Text()
		n++
		if n < 3 {
			continue
		}
		n = 0
		index := len(regions) + 1
		region := Region{Chrom: fields[0]}
		if region.Start, err = parseCoordinate(fields[1], "start", index); err != nil {
			return nil, err
		}
		if region.End, err = parseCoordinate(fields[2], "end", index); err != nil {
			return nil, err
		}
		if region.End < region.Start {
			return nil, fmt.Errorf("interval %v ends before it starts", index)
		}
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n != 0 {
		return nil, fmt.Errorf("incomplete interval after interval %v", len(regions))
	}
	return regions, nil
}

// MergeRegions merges each region into its predecessor when both lie
// on the same chromosome and the gap between them is at most
// 2*maxFragmentLength. Only consecutive regions are merged, the input
// order is kept. The result shares memory with the regions argument.
func MergeRegions(regions []Region, maxFragmentLength int32) []Region {
	if len(regions) == 0 {
		return regions
	}
	merged := regions[:1]
	for _, region := range regions[1:] {
		last := &merged[len(merged)-1]
		if last.Chrom == region.Chrom && last.Extend(region.Interval, 2*maxFragmentLength) {
			continue
		}
		merged = append(merged, region)
	}
	return merged
}

// ReadRegions parses an interval file, which may be gzip or BGZF
// compressed, and merges its regions with MergeRegions. Files with a
// .bed or .bed.gz extension are parsed with ParseBed, all others with
// ParseRegions.
func ReadRegions(filename string, maxFragmentLength int32) (regions []Region, err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	input, err := utils.HandleBGZF(bufio.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("%w, while opening interval file %v", err, filename)
	}
	parse := ParseRegions
	if isBed(filename) {
		parse = ParseBed
	}
	if regions, err = parse(input); err != nil {
		return nil, fmt.Errorf("%w, while reading interval file %v", err, filename)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoIntervals, filename)
	}
	return MergeRegions(regions, maxFragmentLength), nil
}

func isBed(filename string) bool {
	ext := filepath.Ext(filename)
	if ext == ".gz" || ext == ".bgz" {
		ext = filepath.Ext(strings.TrimSuffix(filename, ext))
	}
	return strings.EqualFold(ext, BedExt)
}
