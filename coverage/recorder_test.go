package coverage

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/iqbal-lab/gramtools/covgraph"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
	"github.com/stretchr/testify/require"
)

func infoOf(t *testing.T, raw string) *search.PRGInfo {
	t.Helper()
	markers, err := prg.Encode(raw)
	require.NoError(t, err)
	ps, err := prg.NewPRGString(markers)
	require.NoError(t, err)
	in, err := search.NewPRGInfo(ps)
	require.NoError(t, err)
	return in
}

func mustBases(t *testing.T, seq string) []prg.Marker {
	t.Helper()
	b, err := prg.EncodeBases(seq)
	require.NoError(t, err)
	return b
}

func mapRead(t *testing.T, in *search.PRGInfo, read, kmer string) []search.SearchState {
	t.Helper()
	readBases := mustBases(t, read)
	kmerBases := mustBases(t, kmer)
	seeds, _ := search.SearchRead(in, []search.SearchState{in.Initial()}, kmerBases, false)
	states, _ := search.SearchRead(in, seeds, readBases[:len(readBases)-len(kmerBases)], true)
	return search.HandleAlleleEncapsulated(in, states)
}

// nodeBySeq finds the unique sequence node spelling seq.
func nodeBySeq(t *testing.T, g *covgraph.Graph, seq string) *covgraph.Node {
	t.Helper()
	var found *covgraph.Node
	for i := 0; i < g.NumNodes(); i++ {
		n := g.Node(covgraph.NodeID(i))
		if n.HasSeq() && n.SeqString() == seq {
			require.Nil(t, found, "duplicate node %q", seq)
			found = n
		}
	}
	require.NotNil(t, found, "no node %q", seq)
	return found
}

func coverageOf(n *covgraph.Node) []uint32 {
	out := make([]uint32, len(n.Coverage))
	for i := range out {
		out[i] = n.CoverageAt(i)
	}
	return out
}

func TestRecordSingleSiteRead(t *testing.T) {
	in := infoOf(t, "gcgct5c6g6t6agtcct")
	states := mapRead(t, in, "cttagt", "tagt")
	require.Equal(t, 1, len(states))

	Record(in, states, 6)

	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "gcgct")), []uint32{0, 0, 0, 1, 1})
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "t")), []uint32{1})
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "c")), []uint32{0})
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "g")), []uint32{0})
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "agtcct")), []uint32{1, 1, 1, 0, 0, 0})
}

func TestRecordCrossingTwoSites(t *testing.T) {
	in := infoOf(t, "gct5c6g6t6ag7t8c8cta")
	states := mapRead(t, in, "cttagt", "tagt")
	require.Equal(t, 1, len(states))

	Record(in, states, 6)

	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "gct")), []uint32{0, 1, 1})
	// The flank between the sites, reached through site 5's allele 3.
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "ag")), []uint32{1, 1})
	// Site 7: allele 1 (t) covered, allele 2 (the 'c') untouched.
	site7 := covgraph.NilNode
	in.Graph.EachBubble(func(entry, exit covgraph.NodeID) bool {
		if in.Graph.Node(entry).SiteID == 7 {
			site7 = entry
		}
		return true
	})
	require.NotEqual(t, covgraph.NilNode, site7)
	entry := in.Graph.Node(site7)
	require.Equal(t, 2, len(entry.Out))
	expect.EQ(t, coverageOf(in.Graph.Node(entry.Out[0])), []uint32{1})
	expect.EQ(t, coverageOf(in.Graph.Node(entry.Out[1])), []uint32{0})
}

func TestCoverageConservation(t *testing.T) {
	in := infoOf(t, "gct5c6g6t6ag7t8c8cta")
	reads := []string{"cttagt", "gctcag", "agtcta"}
	var want uint32
	for _, read := range reads {
		states := mapRead(t, in, read, read[len(read)-4:])
		require.True(t, len(states) > 0, "read %s did not map", read)
		Record(in, states, len(read))
		want += uint32(len(read))
	}
	var got uint32
	for i := 0; i < in.Graph.NumNodes(); i++ {
		for _, c := range coverageOf(in.Graph.Node(covgraph.NodeID(i))) {
			got += c
		}
	}
	expect.EQ(t, got, want)
}

func TestCoverageCommutativity(t *testing.T) {
	reads := []string{"cttagt", "gctcag", "agtcta"}
	run := func(order []int) *search.PRGInfo {
		in := infoOf(t, "gct5c6g6t6ag7t8c8cta")
		for _, i := range order {
			states := mapRead(t, in, reads[i], reads[i][len(reads[i])-4:])
			Record(in, states, len(reads[i]))
		}
		return in
	}
	a := run([]int{0, 1, 2})
	b := run([]int{2, 0, 1})
	expect.True(t, covgraph.Equal(a.Graph, b.Graph))
}

func TestSameReadStatesMergeOnSharedNode(t *testing.T) {
	in := infoOf(t, "gcgct5c6g6t6agtcct")
	states := mapRead(t, in, "cttagt", "tagt")
	require.Equal(t, 1, len(states))

	// Two mapping instances of one read over the same path: the dummy map
	// keeps one interval per node, so flushing increments each base once.
	r := NewRecorder(in.Graph)
	r.ProcessState(in, states[0], 6)
	r.ProcessState(in, states[0], 6)
	r.Flush()

	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "t")), []uint32{1})
	expect.EQ(t, coverageOf(nodeBySeq(t, in.Graph, "gcgct")), []uint32{0, 0, 0, 1, 1})
}

func TestTraverserStopsAtUnknownAllele(t *testing.T) {
	in := infoOf(t, "aca5g6t6catt")
	start := in.Graph.RandomAccess[1] // the 'c' of "aca"
	tr := NewTraverser(in.Graph, start,
		search.VariantSitePath{{Site: 5, Allele: prg.AlleleUnknown}}, 6)

	id, ok := tr.Next()
	require.True(t, ok)
	expect.EQ(t, in.Graph.Node(id).SeqString(), "aca")
	s, e := tr.Coordinates()
	expect.EQ(t, s, uint32(1))
	expect.EQ(t, e, uint32(2))

	// The bubble entry has no resolved allele: traversal defers.
	_, ok = tr.Next()
	expect.False(t, ok)
	expect.EQ(t, tr.RemainingBases(), 4)
}

func TestTraverserChoosesNestedEntry(t *testing.T) {
	// t 5 7 a 8 c 8 6 g 6 t : allele 1 of site 5 opens with site 7.
	ps, err := prg.NewPRGString([]prg.Marker{4, 5, 7, 1, 8, 2, 8, 6, 3, 6, 4})
	require.NoError(t, err)
	in, err := search.NewPRGInfo(ps)
	require.NoError(t, err)

	// Walk t -> site5(allele 1) -> site7(allele 2: c) -> t.
	start := in.Graph.RandomAccess[0]
	tr := NewTraverser(in.Graph, start, search.VariantSitePath{
		{Site: 7, Allele: 2},
		{Site: 5, Allele: 1},
	}, 3)

	var seqs []string
	for {
		id, ok := tr.Next()
		if !ok {
			break
		}
		seqs = append(seqs, in.Graph.Node(id).SeqString())
	}
	expect.EQ(t, seqs, []string{"t", "c", "t"})
	expect.EQ(t, tr.RemainingBases(), 0)
}

func TestDummyCovNodeExtend(t *testing.T) {
	d := newDummyCovNode(2, 4, 8)
	s, e := d.Coordinates()
	expect.EQ(t, s, uint32(2))
	expect.EQ(t, e, uint32(4))
	expect.False(t, d.Full())

	// Overlapping extension widens.
	d.ExtendCoordinates(0, 3)
	s, e = d.Coordinates()
	expect.EQ(t, s, uint32(0))
	expect.EQ(t, e, uint32(4))

	// Adjacent extension is allowed.
	d.ExtendCoordinates(5, 7)
	expect.True(t, d.Full())
}

func TestDummyCovNodeDisjointPanics(t *testing.T) {
	d := newDummyCovNode(0, 1, 8)
	require.Panics(t, func() { d.ExtendCoordinates(4, 5) })
}
