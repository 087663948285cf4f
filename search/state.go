package search

import (
	"github.com/iqbal-lab/gramtools/fmindex"
	"github.com/iqbal-lab/gramtools/prg"
)

// VariantState says whether a search state currently sits inside a variant
// site (entered backwards and not yet exited, or a match lying wholly inside
// one allele) or outside all sites.
type VariantState int

const (
	// Outside means the match is not inside any variant site.
	Outside VariantState = iota
	// Within means the match has entered a site whose allele is still
	// unknown, or lies wholly inside one allele (its traversed path then
	// names that allele).
	Within
)

// VariantSitePath is an ordered list of variant loci. Paths are stored
// rightmost site first: backward search crosses sites right to left and
// appends each newly crossed locus, so the leftmost locus sits last.
// Downstream consumers walking the text forwards read the path from the
// back.
type VariantSitePath []prg.VariantLocus

func (p VariantSitePath) clone() VariantSitePath {
	if p == nil {
		return nil
	}
	return append(VariantSitePath(nil), p...)
}

// Last returns the most recently appended locus.
func (p VariantSitePath) Last() prg.VariantLocus { return p[len(p)-1] }

// SearchState is one partial-match instance of the backward search: the SA
// interval of the current match plus the variant loci it has crossed.
type SearchState struct {
	// SAInterval holds the suffix-array rows matching the pattern so far.
	SAInterval fmindex.SAInterval

	// TraversedPath lists the loci the match has fully crossed, allele
	// resolved.
	TraversedPath VariantSitePath

	// TraversingPath lists the sites the match has entered from their end
	// but not yet exited; alleles are AlleleUnknown until the exit fixes
	// them.
	TraversingPath VariantSitePath

	// VariantState tracks whether the newest position sits inside a variant
	// site.
	VariantState VariantState

	// CachedExit remembers the locus appended by the most recent exit
	// jump, so chained jumps in the same step do not record it twice.
	CachedExit *prg.VariantLocus
}

// fork copies the state with fresh path slices, ready for divergence.
func (s SearchState) fork() SearchState {
	s.TraversedPath = s.TraversedPath.clone()
	s.TraversingPath = s.TraversingPath.clone()
	return s
}
