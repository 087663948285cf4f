package covgraph

import (
	"github.com/biogo/store/llrb"
	"github.com/iqbal-lab/gramtools/prg"
)

// NodeAccess is the random-access record for one PRG position: the node
// holding that position, the offset of the position inside the node's
// sequence, and the variant locus the position is a jump target for (the
// empty locus for plain sequence positions).
type NodeAccess struct {
	Node   NodeID
	Offset uint32
	Target prg.VariantLocus
}

// TargetedMarker is one entry of the target map: a marker that jumps, in
// one hop, to the map key's marker. DirectDeletionAllele is non-zero when
// the hop crosses an empty allele (a site marker or allele separator
// immediately followed by the closing marker) and then holds that allele's
// number; double entries and double exits of nested sites record 0.
type TargetedMarker struct {
	ID                   prg.Marker
	DirectDeletionAllele uint32
}

// bubbleKey orders the bubble registry by (entry position, entry id).
type bubbleKey struct {
	pos   int32
	entry NodeID
	exit  NodeID
}

// Compare implements llrb.Comparable.
func (k bubbleKey) Compare(c llrb.Comparable) int {
	o := c.(bubbleKey)
	if k.pos != o.pos {
		return int(k.pos - o.pos)
	}
	return int(k.entry - o.entry)
}

// Graph is the coverage graph. Topology, the bubble registry, the parent
// map, the random-access index and the target map are read-only after
// Build; only node coverage vectors mutate.
type Graph struct {
	nodes []Node

	// Root and Sink delimit the DAG.
	Root, Sink NodeID

	// bubbles maps each site entry to its exit, ordered by entry position.
	bubbles llrb.Tree

	// ParentMap records, for every nested site, the (site, allele) of its
	// enclosing site.
	ParentMap map[prg.Marker]prg.VariantLocus

	// RandomAccess has one record per PRG position.
	RandomAccess []NodeAccess

	// TargetMap accelerates multi-hop jumps between adjacent markers.
	TargetMap map[prg.Marker][]TargetedMarker

	// IsNested reports whether any site encloses another.
	IsNested bool
}

// Node returns the node with the given arena index.
func (g *Graph) Node(id NodeID) *Node { return &g.nodes[id] }

// NumNodes returns the arena size.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumBubbles returns the number of registered sites.
func (g *Graph) NumBubbles() int { return g.bubbles.Len() }

// BubbleExit returns the exit matching a site entry node.
func (g *Graph) BubbleExit(entry NodeID) (NodeID, bool) {
	got := g.bubbles.Get(bubbleKey{pos: g.nodes[entry].Pos, entry: entry})
	if got == nil {
		return NilNode, false
	}
	return got.(bubbleKey).exit, true
}

// EachBubble calls fn for every (entry, exit) pair in ascending entry
// position order, stopping early if fn returns false.
func (g *Graph) EachBubble(fn func(entry, exit NodeID) bool) {
	g.bubbles.Do(func(c llrb.Comparable) bool {
		k := c.(bubbleKey)
		return !fn(k.entry, k.exit)
	})
}

// Equal reports whether two graphs decode the same PRG: their random-access
// vectors match node-wise, and parent and target maps are identical. Arena
// numbering is not compared.
func Equal(a, b *Graph) bool {
	if len(a.RandomAccess) != len(b.RandomAccess) {
		return false
	}
	for i := range a.RandomAccess {
		ra, rb := a.RandomAccess[i], b.RandomAccess[i]
		if ra.Offset != rb.Offset || ra.Target != rb.Target {
			return false
		}
		if !sameNode(a, ra.Node, b, rb.Node) {
			return false
		}
	}
	if len(a.ParentMap) != len(b.ParentMap) {
		return false
	}
	for k, v := range a.ParentMap {
		if b.ParentMap[k] != v {
			return false
		}
	}
	if len(a.TargetMap) != len(b.TargetMap) {
		return false
	}
	for k, v := range a.TargetMap {
		w, ok := b.TargetMap[k]
		if !ok || len(v) != len(w) {
			return false
		}
		for i := range v {
			if v[i] != w[i] {
				return false
			}
		}
	}
	return true
}

// sameNode compares two nodes by value plus their children by value
// (non-recursively).
func sameNode(ga *Graph, ia NodeID, gb *Graph, ib NodeID) bool {
	na, nb := ga.Node(ia), gb.Node(ib)
	if !sameValue(na, nb) || len(na.Out) != len(nb.Out) {
		return false
	}
	for i := range na.Out {
		if !sameValue(ga.Node(na.Out[i]), gb.Node(nb.Out[i])) {
			return false
		}
	}
	return true
}
