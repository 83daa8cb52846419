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

package intervals

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BedExt is the filename extension of BED interval files.
const BedExt = ".bed"

// Valid bed region optional fields. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
const (
	brName = iota
	brScore
	brStrand
)

func checkBedFields(fields []string, line int) error {
	for i, val := range fields {
		switch i {
		case brName:
		case brScore:
			score, err := strconv.Atoi(val)
			if err != nil || score < 0 || score > 1000 {
				return fmt.Errorf("invalid Score field %v in BED line %v", val, line)
			}
		case brStrand:
			if val != "+" && val != "-" && val != "." {
				return fmt.Errorf("invalid Strand field %v in BED line %v", val, line)
			}
		default:
			return nil
		}
	}
	return nil
}

// ParseBed reads the regions of a BED file, in file order. BED
// coordinates are 0-based with an exclusive end, the returned regions
// are 0-based and inclusive. Comment, track and browser lines are
// skipped. See https://genome.ucsc.edu/FAQ/FAQformat.html#format1
func ParseBed(r io.Reader) (regions []Region, err error) {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" ||
			strings.HasPrefix(text, "#") ||
			strings.HasPrefix(text, "track") ||
			strings.HasPrefix(text, "browser") {
			continue
		}
		data := strings.Split(text, "\t")
		if len(data) < 3 {
			return nil, fmt.Errorf("BED line %v has fewer than 3 fields", line)
		}
		start, err := strconv.ParseInt(data[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w, while parsing the start of BED line %v", err, line)
		}
		end, err := strconv.ParseInt(data[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w, while parsing the end of BED line %v", err, line)
		}
		if start < 0 || end <= start {
			return nil, fmt.Errorf("invalid region %v-%v in BED line %v", start, end, line)
		}
		if err := checkBedFields(data[3:], line); err != nil {
			return nil, err
		}
		regions = append(regions, Region{Chrom: data[0], Interval: Interval{Start: int32(start), End: int32(end - 1)}})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}
