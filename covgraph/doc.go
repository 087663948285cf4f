// Package covgraph builds the coverage graph: the rooted DAG of coverage
// nodes decoded from a linearised PRG. Sequence nodes own a segment of bases
// and a per-base coverage vector; boundary nodes delimit variant sites
// (bubbles). Topology is immutable after construction; the coverage vectors
// are the only mutable state and support concurrent increments.
package covgraph
