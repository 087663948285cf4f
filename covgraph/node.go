package covgraph

import (
	"sync/atomic"

	"github.com/iqbal-lab/gramtools/prg"
)

// NodeID indexes a node in the graph's arena. Edges and the bubble registry
// refer to nodes by arena index, so the graph owns every node outright and
// teardown is a single arena free.
type NodeID int32

// NilNode is the absent node.
const NilNode NodeID = -1

// Node is one coverage node. Boundary nodes (site entry/exit) own no
// sequence; sequence nodes own a run of encoded bases and a per-base
// coverage vector of the same length.
type Node struct {
	// Seq holds encoded bases (1..4). Empty for boundary nodes.
	Seq []byte
	// Pos is the node's absolute position, counted in consumed bases. All
	// alleles of a site share their entry's position; an exit carries the
	// largest end position among its alleles.
	Pos int32
	// SiteID and AlleleID locate the node inside the site hierarchy; both
	// zero outside sites. Boundary nodes carry their site's marker and
	// allele 0.
	SiteID   prg.Marker
	AlleleID uint32
	// IsBoundary marks site entry and exit nodes.
	IsBoundary bool
	// Coverage counts, per base of Seq, how many mapped reads covered it.
	// Cells are incremented atomically during the map phase.
	Coverage []uint32
	// Out lists the outgoing edges in wiring order (allele order at a
	// site entry).
	Out []NodeID
}

// HasSeq reports whether the node owns sequence.
func (n *Node) HasSeq() bool { return len(n.Seq) > 0 }

// SeqString renders the node's sequence as lowercase ASCII.
func (n *Node) SeqString() string {
	buf := make([]byte, len(n.Seq))
	for i, b := range n.Seq {
		buf[i] = prg.DecodeBase(prg.Marker(b))
	}
	return string(buf)
}

// IncCoverage atomically increments coverage of base i.
func (n *Node) IncCoverage(i int) { atomic.AddUint32(&n.Coverage[i], 1) }

// CoverageAt reads coverage of base i with the same atomicity as the
// increments.
func (n *Node) CoverageAt(i int) uint32 { return atomic.LoadUint32(&n.Coverage[i]) }

// sameValue compares everything except edges.
func sameValue(a, b *Node) bool {
	if a.Pos != b.Pos || a.SiteID != b.SiteID || a.AlleleID != b.AlleleID ||
		a.IsBoundary != b.IsBoundary || len(a.Seq) != len(b.Seq) {
		return false
	}
	for i := range a.Seq {
		if a.Seq[i] != b.Seq[i] {
			return false
		}
	}
	for i := range a.Coverage {
		if a.Coverage[i] != b.Coverage[i] {
			return false
		}
	}
	return true
}
