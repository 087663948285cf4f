// Package kmerindex precomputes, for every kmer reachable in the PRG, the
// seed search states a read lookup starts from, and persists them in a
// deterministic binary file.
package kmerindex

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/iqbal-lab/gramtools/covgraph"
	"github.com/iqbal-lab/gramtools/prg"
)

// Kmer is a compact 2-bit encoding of up to 32 encoded bases, used to
// deduplicate enumeration and to shard the build.
type Kmer uint64

// MaxKmerLength is the longest sequence a Kmer can hold.
const MaxKmerLength = 32

// PackKmer encodes a 1..4 base sequence.
func PackKmer(bases []prg.Marker) Kmer {
	if len(bases) > MaxKmerLength {
		log.Panicf("kmerindex: kmer length %d exceeds %d", len(bases), MaxKmerLength)
	}
	var k Kmer
	for _, b := range bases {
		if b == 0 || b > 4 {
			log.Panicf("kmerindex: non-DNA symbol %d in kmer", b)
		}
		k = (k << 2) | Kmer(b-1)
	}
	return k
}

// Bases decodes a Kmer of the given length.
func (k Kmer) Bases(length int) []prg.Marker {
	out := make([]prg.Marker, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = prg.Marker(k&3) + 1
		k >>= 2
	}
	return out
}

// Enumerate lists every distinct kmer spelled by some length-k path in the
// coverage graph, site alternatives expanded. The result is sorted by
// packed value, so the build is deterministic.
func Enumerate(g *covgraph.Graph, k int) []Kmer {
	seen := map[Kmer]bool{}
	buf := make([]prg.Marker, 0, k)

	var walk func(id covgraph.NodeID, off int)
	walk = func(id covgraph.NodeID, off int) {
		n := g.Node(id)
		added := 0
		for i := off; i < len(n.Seq) && len(buf) < k; i++ {
			buf = append(buf, prg.Marker(n.Seq[i]))
			added++
		}
		if len(buf) == k {
			seen[PackKmer(buf)] = true
		} else {
			for _, c := range n.Out {
				walk(c, 0)
			}
		}
		buf = buf[:len(buf)-added]
	}

	for id := 0; id < g.NumNodes(); id++ {
		n := g.Node(covgraph.NodeID(id))
		for off := range n.Seq {
			walk(covgraph.NodeID(id), off)
		}
	}

	out := make([]Kmer, 0, len(seen))
	for km := range seen {
		out = append(out, km)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
