// Package coverage turns matched search states into per-base coverage on
// the coverage graph, and aggregates the per-site counts the external
// genotyper consumes.
package coverage

import (
	"github.com/grailbio/base/log"
	"github.com/iqbal-lab/gramtools/covgraph"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
)

// DummyCovNode accumulates, for one coverage node, the 0-based inclusive
// interval of bases a read covered. Intervals from the read's mapping
// instances are merged here and written to the real node once, so a node
// crossed by several instances of one read is still incremented once per
// base.
type DummyCovNode struct {
	start, end uint32
	size       int
	full       bool
}

func newDummyCovNode(start, end uint32, size int) *DummyCovNode {
	if int(end) >= size || start > end {
		log.Panicf("coverage: dummy node coordinates [%d, %d] outside node of size %d", start, end, size)
	}
	d := &DummyCovNode{start: start, end: end, size: size}
	d.checkFull()
	return d
}

// Coordinates returns the merged inclusive interval.
func (d *DummyCovNode) Coordinates() (start, end uint32) { return d.start, d.end }

// Full reports whether the whole node is covered.
func (d *DummyCovNode) Full() bool { return d.full }

// ExtendCoordinates merges a new interval into the node. A single read
// walks a contiguous path, so an extension that neither overlaps nor abuts
// the existing interval can only be a programming error.
func (d *DummyCovNode) ExtendCoordinates(start, end uint32) {
	if int(end) >= d.size {
		log.Panicf("coverage: dummy node extension [%d, %d] outside node of size %d", start, end, d.size)
	}
	if start > d.end+1 || (d.start > 0 && end < d.start-1) {
		log.Panicf("coverage: inconsistent cov node coordinates: [%d, %d] disjoint from [%d, %d]",
			start, end, d.start, d.end)
	}
	if start < d.start {
		d.start = start
	}
	if end > d.end {
		d.end = end
	}
	d.checkFull()
}

func (d *DummyCovNode) checkFull() {
	d.full = d.start == 0 && int(d.end) == d.size-1
}

// Traverser walks the coverage graph along one search state's match,
// consuming readLength bases from the state's start position and choosing
// the outgoing edge at each bubble entry from the state's traversed loci.
type Traverser struct {
	g              *covgraph.Graph
	cur            covgraph.NodeID
	offset         uint32
	basesRemaining int
	loci           search.VariantSitePath
	lociIdx        int // walked from the back: leftmost locus first
	first          bool
	start, end     uint32
}

// NewTraverser starts a traversal at a random-access point.
func NewTraverser(g *covgraph.Graph, at covgraph.NodeAccess, loci search.VariantSitePath, readLength int) *Traverser {
	return &Traverser{
		g:              g,
		cur:            at.Node,
		offset:         at.Offset,
		basesRemaining: readLength,
		loci:           loci,
		lociIdx:        len(loci) - 1,
		first:          true,
	}
}

// Next returns the next sequence node the match covers. It returns false
// once all bases are consumed, the sink is reached, or an unresolved
// allele defers the rest of the traversal to the grouped-count stage.
func (t *Traverser) Next() (covgraph.NodeID, bool) {
	if t.first {
		t.first = false
		if t.g.Node(t.cur).HasSeq() {
			t.updateCoordinates()
			return t.cur, true
		}
		// Start on a boundary: fall through to the walk below.
	}
	for t.basesRemaining > 0 {
		next, ok := t.step()
		if !ok {
			return covgraph.NilNode, false
		}
		t.cur = next
		t.offset = 0
		if t.g.Node(next).HasSeq() {
			t.updateCoordinates()
			return t.cur, true
		}
	}
	return covgraph.NilNode, false
}

// Coordinates returns the covered inclusive interval within the node most
// recently returned by Next.
func (t *Traverser) Coordinates() (start, end uint32) { return t.start, t.end }

// RemainingBases returns how many read bases are still unconsumed.
func (t *Traverser) RemainingBases() int { return t.basesRemaining }

// step picks the next node: straight through out-degree-one nodes, by
// allele at bubble entries.
func (t *Traverser) step() (covgraph.NodeID, bool) {
	n := t.g.Node(t.cur)
	switch len(n.Out) {
	case 0:
		return covgraph.NilNode, false
	case 1:
		return n.Out[0], true
	}
	return t.chooseAllele(n)
}

func (t *Traverser) chooseAllele(entry *covgraph.Node) (covgraph.NodeID, bool) {
	if t.lociIdx < 0 {
		log.Panicf("coverage: bubble entry for site %d reached with an exhausted variant path", entry.SiteID)
	}
	locus := t.loci[t.lociIdx]
	if locus.Site != entry.SiteID {
		log.Panicf("coverage: bubble entry for site %d but next path locus is site %d", entry.SiteID, locus.Site)
	}
	if locus.Allele == prg.AlleleUnknown {
		// The allele was never resolved; stop here and leave the rest to
		// the grouped counts.
		return covgraph.NilNode, false
	}
	t.lociIdx--
	for _, c := range entry.Out {
		child := t.g.Node(c)
		if child.SiteID == locus.Site && child.AlleleID == locus.Allele {
			return c, true
		}
		// An allele that opens with a nested site has no node of its own:
		// the child is the nested entry, attributed via the parent map.
		if child.IsBoundary && child.SiteID != locus.Site {
			if parent, ok := t.g.ParentMap[child.SiteID]; ok && parent == locus {
				return c, true
			}
		}
	}
	log.Panicf("coverage: site %d has no outgoing edge for allele %d", locus.Site, locus.Allele)
	return covgraph.NilNode, false
}

func (t *Traverser) updateCoordinates() {
	n := t.g.Node(t.cur)
	avail := len(n.Seq) - int(t.offset)
	consumed := avail
	if t.basesRemaining < consumed {
		consumed = t.basesRemaining
	}
	t.start = t.offset
	t.end = t.offset + uint32(consumed) - 1
	t.basesRemaining -= consumed
}

// Recorder accumulates one read's coverage in a dummy-node map and flushes
// it to the graph once, after every search state of the read contributed.
type Recorder struct {
	g       *covgraph.Graph
	dummies map[covgraph.NodeID]*DummyCovNode
}

// NewRecorder returns an empty per-read recorder.
func NewRecorder(g *covgraph.Graph) *Recorder {
	return &Recorder{g: g, dummies: map[covgraph.NodeID]*DummyCovNode{}}
}

// ProcessState traverses one search state and merges its covered intervals
// into the dummy map. Only the state's first mapping instance is walked;
// further rows of the interval repeat the same locus path.
func (r *Recorder) ProcessState(in *search.PRGInfo, st search.SearchState, readLength int) {
	textIdx := in.FM.SAAt(st.SAInterval.L)
	t := NewTraverser(r.g, in.Graph.RandomAccess[textIdx], st.TraversedPath, readLength)
	for {
		id, ok := t.Next()
		if !ok {
			return
		}
		start, end := t.Coordinates()
		r.processNode(id, start, end)
	}
}

func (r *Recorder) processNode(id covgraph.NodeID, start, end uint32) {
	if d, ok := r.dummies[id]; ok {
		d.ExtendCoordinates(start, end)
		return
	}
	r.dummies[id] = newDummyCovNode(start, end, len(r.g.Node(id).Seq))
}

// Flush writes the accumulated intervals to the graph, incrementing each
// covered base once. Increments are atomic, so concurrent reads may flush
// at the same time.
func (r *Recorder) Flush() {
	for id, d := range r.dummies {
		n := r.g.Node(id)
		if d.full {
			for i := range n.Coverage {
				n.IncCoverage(i)
			}
			continue
		}
		for i := d.start; i <= d.end; i++ {
			n.IncCoverage(int(i))
		}
	}
	r.dummies = map[covgraph.NodeID]*DummyCovNode{}
}

// Record is the whole per-read pipeline: traverse every search state into
// the dummy map, then flush once.
func Record(in *search.PRGInfo, states []search.SearchState, readLength int) {
	r := NewRecorder(in.Graph)
	for _, st := range states {
		r.ProcessState(in, st, readLength)
	}
	r.Flush()
}
