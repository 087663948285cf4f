package covgraph

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/iqbal-lab/gramtools/prg"
)

type markerType int

const (
	mtSequence markerType = iota
	mtSiteEntry
	mtAlleleEnd
	mtSiteEnd
)

// classify returns the role of position pos in the normalised marker
// vector. After normalisation an odd marker always opens a site; an even
// marker at its recorded end position closes it, anywhere else it
// separates alleles.
func classify(linear []prg.Marker, ends map[prg.Marker]int, pos int) markerType {
	m := linear[pos]
	if m <= 4 {
		return mtSequence
	}
	if m%2 == 1 {
		return mtSiteEntry
	}
	if ends[m] == pos {
		return mtSiteEnd
	}
	return mtAlleleEnd
}

type builder struct {
	linear []prg.Marker
	ends   map[prg.Marker]int
	g      *Graph

	curNode  NodeID
	backWire NodeID
	curPos   int32
	curLocus prg.VariantLocus

	bubbleStarts map[prg.Marker]NodeID
	bubbleEnds   map[prg.Marker]NodeID
}

// Build decodes a normalised PRG into its coverage graph in one
// left-to-right pass, then appends the sink and populates the jump-target
// maps. Malformed variation (an empty allele, interleaved sites) is an
// error.
func Build(ps *prg.PRGString) (*Graph, error) {
	b := &builder{
		linear: ps.Markers(),
		ends:   ps.EndPositions,
		g: &Graph{
			ParentMap: map[prg.Marker]prg.VariantLocus{},
			TargetMap: map[prg.Marker][]TargetedMarker{},
		},
		bubbleStarts: map[prg.Marker]NodeID{},
		bubbleEnds:   map[prg.Marker]NodeID{},
	}
	b.g.RandomAccess = make([]NodeAccess, len(b.linear))
	b.makeRoot()
	for i := range b.linear {
		if err := b.processMarker(i); err != nil {
			return nil, err
		}
		b.setupRandomAccess(i)
	}
	b.makeSink()
	b.mapTargets()
	for i := range b.g.nodes {
		n := &b.g.nodes[i]
		n.Coverage = make([]uint32, len(n.Seq))
	}
	b.g.IsNested = len(b.g.ParentMap) > 0
	return b.g, nil
}

func (b *builder) newNode(pos int32, site prg.Marker, allele uint32, boundary bool) NodeID {
	b.g.nodes = append(b.g.nodes, Node{
		Pos:        pos,
		SiteID:     site,
		AlleleID:   allele,
		IsBoundary: boundary,
	})
	return NodeID(len(b.g.nodes) - 1)
}

func (b *builder) makeRoot() {
	b.curPos = -1
	b.g.Root = b.newNode(b.curPos, 0, 0, false)
	b.backWire = b.g.Root
	b.curPos++
	b.curNode = b.newNode(b.curPos, 0, 0, false)
}

func (b *builder) makeSink() {
	sink := b.newNode(b.curPos+1, 0, 0, false)
	b.wire(sink)
	b.g.Sink = sink
	b.curNode = NilNode
	b.backWire = NilNode
}

func (b *builder) processMarker(pos int) error {
	m := b.linear[pos]
	switch classify(b.linear, b.ends, pos) {
	case mtSequence:
		b.addSequence(m)
	case mtSiteEntry:
		b.enterSite(m)
	case mtAlleleEnd:
		return b.endAllele(m)
	case mtSiteEnd:
		return b.exitSite(m)
	}
	return nil
}

// setupRandomAccess records which node holds position pos. A sequence
// position lands in the node under construction at its last appended base;
// marker positions reference the wired-back boundary node (the site's entry
// after an entry or allele separator, its exit after a site end).
func (b *builder) setupRandomAccess(pos int) {
	target := b.curNode
	if classify(b.linear, b.ends, pos) != mtSequence {
		target = b.backWire
	}
	var offset uint32
	if n := len(b.g.nodes[target].Seq); n > 1 {
		offset = uint32(n - 1)
	}
	b.g.RandomAccess[pos] = NodeAccess{Node: target, Offset: offset}
}

func (b *builder) addSequence(m prg.Marker) {
	n := &b.g.nodes[b.curNode]
	n.Seq = append(n.Seq, byte(m))
	b.curPos++
}

// wire finalises the node under construction: if it holds sequence it is
// linked between backWire and target, otherwise it is discarded and
// backWire links straight to target.
func (b *builder) wire(target NodeID) {
	if b.g.nodes[b.curNode].HasSeq() {
		b.addEdge(b.backWire, b.curNode)
		b.addEdge(b.curNode, target)
	} else {
		b.addEdge(b.backWire, target)
	}
}

func (b *builder) addEdge(from, to NodeID) {
	n := &b.g.nodes[from]
	n.Out = append(n.Out, to)
}

func (b *builder) enterSite(m prg.Marker) {
	entry := b.newNode(b.curPos, m, 0, true)
	b.wire(entry)

	b.curNode = b.newNode(b.curPos, m, 1, false)
	b.backWire = entry

	exit := b.newNode(b.curPos, m, 0, true)
	b.g.bubbles.Insert(bubbleKey{pos: b.curPos, entry: entry, exit: exit})
	b.bubbleStarts[m] = entry
	b.bubbleEnds[m] = exit

	if b.curLocus.Site != 0 {
		b.g.ParentMap[m] = b.curLocus
	}
	b.curLocus = prg.VariantLocus{Site: m, Allele: 1}
}

func (b *builder) endAllele(m prg.Marker) error {
	siteID := m - 1
	if _, err := b.reachAlleleEnd(m); err != nil {
		return err
	}
	entry := b.bubbleStarts[siteID]
	b.backWire = entry
	b.curPos = b.g.nodes[entry].Pos

	b.curLocus.Allele++
	b.curNode = b.newNode(b.curPos, siteID, b.curLocus.Allele, false)
	return nil
}

func (b *builder) exitSite(m prg.Marker) error {
	siteID := m - 1
	exit, err := b.reachAlleleEnd(m)
	if err != nil {
		return err
	}
	if parent, ok := b.g.ParentMap[siteID]; ok {
		b.curLocus = parent
	} else {
		b.curLocus = prg.VariantLocus{}
	}
	b.backWire = exit
	b.curPos = b.g.nodes[exit].Pos
	b.curNode = b.newNode(b.curPos, b.curLocus.Site, b.curLocus.Allele, false)
	return nil
}

// reachAlleleEnd wires the finished allele to the site's exit and keeps the
// exit position at the largest allele end seen.
func (b *builder) reachAlleleEnd(m prg.Marker) (NodeID, error) {
	siteID := m - 1
	if b.curLocus.Site != siteID {
		return NilNode, errors.E(fmt.Sprintf("covgraph: marker %d closes site %d while inside site %d", m, siteID, b.curLocus.Site))
	}
	if !b.g.nodes[b.curNode].HasSeq() && b.backWire == b.bubbleStarts[siteID] {
		return NilNode, errors.E(fmt.Sprintf("covgraph: empty allele %d in site %d", b.curLocus.Allele, siteID))
	}
	exit := b.bubbleEnds[siteID]
	b.wire(exit)
	if b.g.nodes[exit].Pos < b.curPos {
		b.g.nodes[exit].Pos = b.curPos
	}
	return exit, nil
}
