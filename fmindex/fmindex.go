// Package fmindex implements the FM-index the vBWT search runs on: a
// suffix array and BWT over the integer PRG, rank tables for the DNA
// symbols, and a 2-D range view of variant-marker occurrences. The index is
// immutable and safe for concurrent readers.
package fmindex

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/iqbal-lab/gramtools/prg"
)

// SAInterval is a contiguous range of suffix-array rows, inclusive on both
// ends. An interval with L > R is empty.
type SAInterval struct {
	L, R uint32
}

// Empty reports whether the interval holds no rows.
func (iv SAInterval) Empty() bool { return iv.L > iv.R }

// Size returns the number of rows.
func (iv SAInterval) Size() int {
	if iv.Empty() {
		return 0
	}
	return int(iv.R-iv.L) + 1
}

// EmptyInterval is the canonical empty SA interval.
var EmptyInterval = SAInterval{L: 1, R: 0}

// MarkerHit is one variant-marker occurrence inside an SA interval: the
// row whose preceding symbol (BWT) is Symbol.
type MarkerHit struct {
	Row    uint32
	Symbol prg.Marker
}

// Index is an FM-index over a linearised PRG. The text is the marker
// vector plus a trailing 0 sentinel, so Size() == len(prg)+1 and row 0 is
// the sentinel suffix.
type Index struct {
	text []prg.Marker
	sa   []uint32
	bwt  []prg.Marker

	// occ[c-1][i] counts occurrences of DNA symbol c in bwt[0..i).
	occ [4][]uint32
	// starts[sym] is the first row of sym's bucket in the first SA column;
	// counts[sym] its number of occurrences in the text.
	starts map[prg.Marker]uint32
	counts map[prg.Marker]uint32

	// markerRows lists, in ascending row order, every row whose BWT symbol
	// is a variant marker; markerOcc holds the same rows per symbol, for
	// marker rank queries.
	markerRows []MarkerHit
	markerOcc  map[prg.Marker][]uint32
}

// New builds the index over a normalised PRG marker vector.
func New(markers []prg.Marker) *Index {
	n := len(markers) + 1
	text := make([]prg.Marker, n)
	copy(text, markers)
	// text[n-1] is the 0 sentinel, unique and smallest.

	x := &Index{
		text:      text,
		sa:        buildSuffixArray(text),
		starts:    map[prg.Marker]uint32{},
		counts:    map[prg.Marker]uint32{},
		markerOcc: map[prg.Marker][]uint32{},
	}

	x.bwt = make([]prg.Marker, n)
	for i, p := range x.sa {
		if p == 0 {
			x.bwt[i] = text[n-1]
		} else {
			x.bwt[i] = text[p-1]
		}
	}

	for c := 0; c < 4; c++ {
		x.occ[c] = make([]uint32, n+1)
	}
	for i, m := range x.bwt {
		for c := 0; c < 4; c++ {
			x.occ[c][i+1] = x.occ[c][i]
		}
		switch {
		case m >= 1 && m <= 4:
			x.occ[m-1][i+1]++
		case m >= prg.MinVariantMarker:
			x.markerRows = append(x.markerRows, MarkerHit{Row: uint32(i), Symbol: m})
			x.markerOcc[m] = append(x.markerOcc[m], uint32(i))
		}
	}

	for _, m := range text {
		x.counts[m]++
	}
	symbols := make([]prg.Marker, 0, len(x.counts))
	for m := range x.counts {
		symbols = append(symbols, m)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	var acc uint32
	for _, m := range symbols {
		x.starts[m] = acc
		acc += x.counts[m]
	}
	return x
}

// Size returns the number of SA rows (text length including the sentinel).
func (x *Index) Size() int { return len(x.text) }

// All returns the whole-index SA interval, the initial search state.
func (x *Index) All() SAInterval { return SAInterval{L: 0, R: uint32(x.Size() - 1)} }

// SAAt returns the text index of suffix-array row i.
func (x *Index) SAAt(i uint32) uint32 { return x.sa[i] }

// Symbol returns text[i].
func (x *Index) Symbol(i uint32) prg.Marker { return x.text[i] }

// RankAll returns the number of occurrences of DNA symbol c in bwt[0..i).
//
// REQUIRES: 1 <= c <= 4.
func (x *Index) RankAll(c prg.Marker, i uint32) uint32 {
	if c == 0 || c > 4 {
		log.Panicf("fmindex: rank of non-DNA symbol %d", c)
	}
	return x.occ[c-1][i]
}

// rank counts occurrences of any symbol in bwt[0..i).
func (x *Index) rank(m prg.Marker, i uint32) uint32 {
	if m >= 1 && m <= 4 {
		return x.occ[m-1][i]
	}
	rows := x.markerOcc[m]
	return uint32(sort.Search(len(rows), func(j int) bool { return rows[j] >= i }))
}

// LF backward-extends an SA interval by symbol m: the returned interval
// holds the rows of suffixes beginning with m followed by a suffix of the
// input interval. Empty input or no occurrences yield EmptyInterval.
func (x *Index) LF(iv SAInterval, m prg.Marker) SAInterval {
	if iv.Empty() {
		return EmptyInterval
	}
	start, ok := x.starts[m]
	if !ok {
		return EmptyInterval
	}
	lo := x.rank(m, iv.L)
	hi := x.rank(m, iv.R+1)
	if lo >= hi {
		return EmptyInterval
	}
	out := SAInterval{L: start + lo, R: start + hi - 1}
	if int(out.R) >= x.Size() {
		log.Panicf("fmindex: LF produced out-of-range interval %+v (size %d)", out, x.Size())
	}
	return out
}

// SymbolBucket returns the SA run of all suffixes starting with symbol m;
// empty if m does not occur. Equal symbols are contiguous in the first SA
// column, which is what makes variant-marker jumps cheap.
func (x *Index) SymbolBucket(m prg.Marker) SAInterval {
	start, ok := x.starts[m]
	if !ok {
		return EmptyInterval
	}
	return SAInterval{L: start, R: start + x.counts[m] - 1}
}

// RangeMarkers returns every variant-marker occurrence with row in
// [iv.L, iv.R] and symbol in [5, max], in ascending row order.
func (x *Index) RangeMarkers(iv SAInterval, max prg.Marker) []MarkerHit {
	if iv.Empty() {
		return nil
	}
	i := sort.Search(len(x.markerRows), func(j int) bool { return x.markerRows[j].Row >= iv.L })
	var hits []MarkerHit
	for ; i < len(x.markerRows) && x.markerRows[i].Row <= iv.R; i++ {
		if h := x.markerRows[i]; h.Symbol <= max {
			hits = append(hits, h)
		}
	}
	return hits
}

// buildSuffixArray sorts the suffixes by prefix doubling. The PRG alphabet
// is sparse uint32, which rules out the usual byte-oriented linear-time
// constructions.
func buildSuffixArray(text []prg.Marker) []uint32 {
	n := len(text)
	sa := make([]int, n)
	rank := make([]int, n)
	next := make([]int, n)
	for i := range sa {
		sa[i] = i
		rank[i] = int(text[i])
	}
	for k := 1; ; k *= 2 {
		less := func(a, b int) bool {
			if rank[a] != rank[b] {
				return rank[a] < rank[b]
			}
			ra, rb := -1, -1
			if a+k < n {
				ra = rank[a+k]
			}
			if b+k < n {
				rb = rank[b+k]
			}
			return ra < rb
		}
		sort.Slice(sa, func(i, j int) bool { return less(sa[i], sa[j]) })
		next[sa[0]] = 0
		for i := 1; i < n; i++ {
			next[sa[i]] = next[sa[i-1]]
			if less(sa[i-1], sa[i]) {
				next[sa[i]]++
			}
		}
		copy(rank, next)
		if rank[sa[n-1]] == n-1 {
			break
		}
	}
	out := make([]uint32, n)
	for i, p := range sa {
		out[i] = uint32(p)
	}
	return out
}
