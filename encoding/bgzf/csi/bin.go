// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package csi implements the CSI/Tabix hierarchical binning scheme used to
// index genomic-interval files on top of bgzf: the arithmetic mapping a
// region to the bin that can contain it (reg2bin) or to the bins it
// overlaps (reg2bins), as used by github.com/biogo/hts/csi and samtools'
// tabix. It does not parse or write the CSI/BAI/Tabix on-disk index
// formats themselves.
package csi

// DefaultMinShift and DefaultDepth are the parameters used by samtools and
// htslib: bin 0 (the root) spans the whole genome; each level below it
// divides its parent into 8 equal children, down to depth levels, whose
// leaves span 1<<MinShift bases.
const (
	DefaultMinShift = 14
	DefaultDepth    = 5
)

// Binner computes bin numbers for a hierarchical interval index with the
// given min_shift and depth parameters. The zero value is not usable; use
// NewBinner.
type Binner struct {
	minShift uint
	depth    uint
}

// NewBinner returns a Binner for the given min_shift/depth parameters.
func NewBinner(minShift, depth int) Binner {
	return Binner{minShift: uint(minShift), depth: uint(depth)}
}

// DefaultBinner is a Binner using DefaultMinShift and DefaultDepth, the
// parameters assumed by CSIv1/CSIv2 unless its header says otherwise.
var DefaultBinner = NewBinner(DefaultMinShift, DefaultDepth)

// BinLimit returns one past the largest bin number this Binner can produce:
// valid bins lie in [0, BinLimit()).
func (b Binner) BinLimit() int {
	return ((1 << (3 * (b.depth + 1))) - 1) / 7
}

// shiftAndOffset returns, for hierarchy level l (1 meaning the coarsest
// non-root level, b.depth meaning the leaves), the bit shift that divides
// coordinates into that level's bin width and the bin number of that
// level's first (leftmost) bin.
func (b Binner) shiftAndOffset(l uint) (shift uint, t int64) {
	shift = b.minShift + 3*(b.depth-l)
	t = (int64(1)<<(3*l) - 1) / 7
	return shift, t
}

// Reg2Bin returns the smallest bin that fully contains the half-open region
// [beg, end). An empty region (end <= beg) maps to bin 0, the root.
func (b Binner) Reg2Bin(beg, end int64) int {
	if end <= beg {
		return 0
	}
	end--
	for l := b.depth; l > 0; l-- {
		shift, t := b.shiftAndOffset(l)
		if beg>>shift == end>>shift {
			return int(t + beg>>shift)
		}
	}
	return 0
}

// Reg2Bins returns every bin whose interval intersects [beg, end), in
// ascending order, including bin 0 (the root) unconditionally. An empty
// region (end <= beg) yields just {0}.
func (b Binner) Reg2Bins(beg, end int64) []int {
	bins := []int{0}
	if end <= beg {
		return bins
	}
	end--
	for l := uint(1); l <= b.depth; l++ {
		shift, t := b.shiftAndOffset(l)
		lo := beg >> shift
		hi := end >> shift
		for k := lo; k <= hi; k++ {
			bins = append(bins, int(t+k))
		}
	}
	return bins
}
