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

	"github.com/exascience/bamshrink/intervals"
	"github.com/exascience/bamshrink/sam"
)

// ShrinkFile streams all alignments of the input file through a
// Shrinker and returns the stats of the run.
func ShrinkFile(in *sam.InputFile, out AlignmentWriter, opts Options) (RunStats, error) {
	shrinker := NewShrinker(out, opts)
	if err := in.RunPipeline(shrinker.Process); err != nil {
		return shrinker.Stats(), err
	}
	err := shrinker.Finish()
	return shrinker.Stats(), err
}

// ShrinkRegions processes the given regions one after the other, using
// the BAI index of the input file to jump to each of them. Alignments
// are read from MaxFragmentLength positions before the start until
// MaxFragmentLength positions after the end of each region, so that
// mates of alignments in the region can be found. Regions for which
// the index lists no alignments are skipped.
func ShrinkRegions(in *sam.InputFile, out AlignmentWriter, opts Options, regions []intervals.Region) (RunStats, error) {
	shrinker := NewShrinker(out, opts)
	for i := range regions {
		region := &regions[i]
		refID, err := in.ReferenceID(region.Chrom)
		if err != nil {
			return shrinker.Stats(), err
		}
		start := region.Start - opts.MaxFragmentLength
		if start < 0 {
			start = 0
		}
		found, err := in.Jump(refID, start, region.End+opts.MaxFragmentLength)
		if err != nil {
			return shrinker.Stats(), err
		}
		if !found {
			log.Printf("No alignments found in region %v.", region)
			continue
		}
		shrinker.SetRegion(region)
		if err := in.RunPipeline(shrinker.Process); err != nil {
			return shrinker.Stats(), err
		}
		if err := shrinker.Finish(); err != nil {
			return shrinker.Stats(), err
		}
	}
	shrinker.SetRegion(nil)
	return shrinker.Stats(), nil
}
