package fmindex

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/stretchr/testify/require"
)

func indexOf(t *testing.T, raw string) *Index {
	t.Helper()
	markers, err := prg.Encode(raw)
	require.NoError(t, err)
	return New(markers)
}

/*
PRG: GCGCT5C6G6A6AGTCCT
i	BWT	SA	text_suffix
0	T	18
1	6	12	A G T C C T
2	6	10	A 6 A G T C C T
3	T	15	C C T
4	G	1	C G C T 5 ...
5	C	16	C T
6	G	3	C T 5 C 6 ...
7	5	6	C 6 G 6 A 6 ...
8	0	0	G C G C T 5 ...
9	C	2	G C T 5 C 6 ...
10	A	13	G T C C T
11	6	8	G 6 A 6 A G ...
12	C	17	T
13	G	14	T C C T
14	C	4	T 5 C 6 G 6 ...
15	T	5	5 C 6 G 6 A 6 ...
16	A	11	6 A G T C C T
17	G	9	6 A 6 A G T ...
18	C	7	6 G 6 A 6 A G ...
*/
func TestSuffixArrayMatchesWorkedExample(t *testing.T) {
	x := indexOf(t, "gcgct5c6g6a6agtcct")
	require.Equal(t, 19, x.Size())
	want := []uint32{18, 12, 10, 15, 1, 16, 3, 6, 0, 2, 13, 8, 17, 14, 4, 5, 11, 9, 7}
	got := make([]uint32, x.Size())
	for i := range got {
		got[i] = x.SAAt(uint32(i))
	}
	expect.EQ(t, got, want)
}

func TestSymbolBuckets(t *testing.T) {
	x := indexOf(t, "gcgct5c6g6a6agtcct")
	expect.EQ(t, x.SymbolBucket(5), SAInterval{15, 15})
	expect.EQ(t, x.SymbolBucket(6), SAInterval{16, 18})
	expect.True(t, x.SymbolBucket(9).Empty())

	// Non-continuous marker alphabet.
	x = indexOf(t, "7g8c8g9t10a10")
	expect.EQ(t, x.SymbolBucket(8), SAInterval{7, 8})
}

func TestLFBackwardExtension(t *testing.T) {
	x := indexOf(t, "gcgctggagtgctgt")
	require.Equal(t, 16, x.Size())

	g := x.LF(x.All(), 3)
	expect.EQ(t, g, SAInterval{5, 11})

	// "tg" occurs three times.
	expect.EQ(t, x.LF(g, 4), SAInterval{13, 15})

	a := x.LF(x.All(), 1)
	expect.EQ(t, a, SAInterval{1, 1})

	// "ga" occurs once.
	expect.EQ(t, x.LF(a, 3), SAInterval{5, 5})

	// "ca" does not occur.
	expect.True(t, x.LF(a, 2).Empty())

	// Absent symbol.
	expect.True(t, x.LF(x.All(), 9).Empty())
}

func TestRangeMarkers(t *testing.T) {
	x := indexOf(t, "gcgct5c6g6a6agtcct")

	// The 'A' interval: one site-end 6 and one separator 6 to the left.
	hits := x.RangeMarkers(SAInterval{1, 2}, 6)
	expect.EQ(t, hits, []MarkerHit{{Row: 1, Symbol: 6}, {Row: 2, Symbol: 6}})

	// The 'C' interval: the site entry marker 5 precedes row 7.
	hits = x.RangeMarkers(SAInterval{3, 7}, 6)
	expect.EQ(t, hits, []MarkerHit{{Row: 7, Symbol: 5}})

	// Marker cap excludes symbols above max.
	hits = x.RangeMarkers(SAInterval{1, 2}, 5)
	expect.EQ(t, len(hits), 0)

	// No markers to the left of the 'G' run except row 11.
	hits = x.RangeMarkers(SAInterval{8, 11}, 6)
	expect.EQ(t, hits, []MarkerHit{{Row: 11, Symbol: 6}})
}

func TestRankAll(t *testing.T) {
	x := indexOf(t, "gcgct5c6g6a6agtcct")
	// Whole-BWT ranks equal full symbol counts.
	n := uint32(x.Size())
	expect.EQ(t, x.RankAll(1, n), uint32(2))
	expect.EQ(t, x.RankAll(2, n), uint32(5))
	expect.EQ(t, x.RankAll(3, n), uint32(4))
	expect.EQ(t, x.RankAll(4, n), uint32(3))
}

func TestSymbolAccess(t *testing.T) {
	x := indexOf(t, "aca5g6t6catt")
	expect.EQ(t, x.Symbol(3), prg.Marker(5))
	expect.EQ(t, x.Symbol(0), prg.Marker(1))
}
