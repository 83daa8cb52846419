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
	"sort"

	"github.com/willf/bitset"

	"github.com/exascience/bamshrink/sam"
)

type bucket struct {
	pos  int32
	alns []*sam.Alignment
}

// A WindowBuffer holds alignments until they can be emitted. It keeps
// one bucket per start position, ordered by position, and each bucket
// keeps its alignments in insertion order.
type WindowBuffer struct {
	buckets []*bucket
	size    int
}

// Add inserts an alignment in the bucket for its start position.
func (b *WindowBuffer) Add(aln *sam.Alignment) {
	n := len(b.buckets)
	if n > 0 && b.buckets[n-1].pos == aln.POS {
		b.buckets[n-1].alns = append(b.buckets[n-1].alns, aln)
	} else if n == 0 || b.buckets[n-1].pos < aln.POS {
		b.buckets = append(b.buckets, &bucket{pos: aln.POS, alns: []*sam.Alignment{aln}})
	} else {
		i := sort.Search(n, func(i int) bool { return b.buckets[i].pos >= aln.POS })
		if b.buckets[i].pos == aln.POS {
			b.buckets[i].alns = append(b.buckets[i].alns, aln)
		} else {
			b.buckets = append(b.buckets, nil)
			copy(b.buckets[i+1:], b.buckets[i:])
			b.buckets[i] = &bucket{pos: aln.POS, alns: []*sam.Alignment{aln}}
		}
	}
	b.size++
}

// Len returns the number of buffered alignments.
func (b *WindowBuffer) Len() int {
	return b.size
}

// MinPos returns the smallest buffered start position.
func (b *WindowBuffer) MinPos() (int32, bool) {
	if len(b.buckets) == 0 {
		return 0, false
	}
	return b.buckets[0].pos, true
}

// prefix returns the number of buckets with a position <= ready.
func (b *WindowBuffer) prefix(ready int32) int {
	return sort.Search(len(b.buckets), func(i int) bool { return b.buckets[i].pos > ready })
}

// Drain passes all alignments with a start position <= ready to emit,
// in ascending position order, and removes their buckets. If emit
// returns an error, Drain stops and the remaining alignments stay
// buffered.
func (b *WindowBuffer) Drain(ready int32, emit func(*sam.Alignment) error) error {
	n := b.prefix(ready)
	for i := 0; i < n; i++ {
		bucket := b.buckets[i]
		for len(bucket.alns) > 0 {
			aln := bucket.alns[0]
			bucket.alns = bucket.alns[1:]
			b.size--
			if err := emit(aln); err != nil {
				b.removePrefix(i)
				return err
			}
		}
	}
	b.removePrefix(n)
	return nil
}

// DrainAll passes all buffered alignments to emit in ascending
// position order.
func (b *WindowBuffer) DrainAll(emit func(*sam.Alignment) error) error {
	if len(b.buckets) == 0 {
		return nil
	}
	return b.Drain(b.buckets[len(b.buckets)-1].pos, emit)
}

// Prune keeps only those alignments with a start position <= upTo for
// which keep returns true. Buckets that become empty are removed.
// Prune returns the number of removed alignments.
func (b *WindowBuffer) Prune(upTo int32, keep func(*sam.Alignment) bool) (removed int) {
	n := b.prefix(upTo)
	j := 0
	for i, bucket := range b.buckets {
		if i < n {
			survivors := bitset.New(uint(len(bucket.alns)))
			for k, aln := range bucket.alns {
				if keep(aln) {
					survivors.Set(uint(k))
				}
			}
			if count := int(survivors.Count()); count < len(bucket.alns) {
				removed += len(bucket.alns) - count
				kept := make([]*sam.Alignment, 0, count)
				for k, ok := survivors.NextSet(0); ok; k, ok = survivors.NextSet(k + 1) {
					kept = append(kept, bucket.alns[k])
				}
				bucket.alns = kept
			}
			if len(bucket.alns) == 0 {
				continue
			}
		}
		b.buckets[j] = bucket
		j++
	}
	for i := j; i < len(b.buckets); i++ {
		b.buckets[i] = nil
	}
	b.buckets = b.buckets[:j]
	b.size -= removed
	return removed
}

func (b *WindowBuffer) removePrefix(n int) {
	for i := 0; i < n; i++ {
		b.buckets[i] = nil
	}
	b.buckets = b.buckets[n:]
}

// Reset discards all buffered alignments.
func (b *WindowBuffer) Reset() {
	b.buckets = nil
	b.size = 0
}
