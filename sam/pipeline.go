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
	"github.com/exascience/pargo/pipeline"
)

const (
	minBatchSize = 4096
	maxBatchSize = 262144
)

// An AlignmentReceiver consumes one batch of alignments. Returning an
// error stops the pipeline.
type AlignmentReceiver func(alns []*Alignment) error

// RunPipeline reads the alignments of the input file in batches and
// passes them to the given receiver. The receiver runs in a strictly
// ordered pargo node, so it sees one batch at a time, in input order,
// and needs no synchronization of its own.
//
// RunPipeline returns the first error reported by either the input
// file or the receiver.
func (f *InputFile) RunPipeline(receive AlignmentReceiver) error {
	var p pipeline.Pipeline
	p.Source(f)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		if err := receive(data.([]*Alignment)); err != nil {
			p.SetErr(err)
		}
		return nil
	})))
	p.Run()
	return p.Err()
}
