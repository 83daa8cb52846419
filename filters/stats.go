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
	"fmt"
	"io"
)

// RunStats counts what a run removed.
type RunStats struct {
	SoftClippedBp         int64
	QualityClippedBp      int64
	AdapterClippedBp      int64
	MatchRemovedReads     int64
	AdapterTrimmedReads   int64
	CoverageFilteredReads int64
	TotalReads            int64
}

// AdapterTrimmedFraction returns the fraction of reads that were
// adapter trimmed, or 0 if no reads were seen.
func (stats *RunStats) AdapterTrimmedFraction() float64 {
	if stats.TotalReads == 0 {
		return 0
	}
	return float64(stats.AdapterTrimmedReads) / float64(stats.TotalReads)
}

// Report writes a completion report.
func (stats *RunStats) Report(w io.Writer) (err error) {
	_, err = fmt.Fprintf(w, "Total number of reads: %v\n"+
		"Soft clipped bp: %v\n"+
		"Quality clipped bp: %v\n"+
		"Adapter removed bp: %v\n"+
		"Number of coverage filtered reads: %v\n"+
		"Not enough matches reads: %v\n"+
		"Number of adapter trimmed reads: %v\n"+
		"Fraction of adapter trimmed reads: %.6f\n",
		stats.TotalReads,
		stats.SoftClippedBp,
		stats.QualityClippedBp,
		stats.AdapterClippedBp,
		stats.CoverageFilteredReads,
		stats.MatchRemovedReads,
		stats.AdapterTrimmedReads,
		stats.AdapterTrimmedFraction())
	return err
}
