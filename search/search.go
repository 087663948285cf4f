package search

import (
	"github.com/grailbio/base/log"
	"github.com/iqbal-lab/gramtools/fmindex"
	"github.com/iqbal-lab/gramtools/prg"
)

// markerHit is a classified variant-marker occurrence to the left of a
// match. The reporting convention follows the jump it implies: a site exit
// is reported with the site's odd marker (allele resolved), a site entry
// with the even marker (allele unknown until the exit).
type markerHit struct {
	row    uint32
	marker prg.Marker
	entry  bool
	allele uint32
}

func (in *PRGInfo) classifyHit(h fmindex.MarkerHit) markerHit {
	if prg.IsSiteMarker(h.Symbol) {
		// Crossing the site's entry marker: only allele 1 borders it.
		return markerHit{row: h.Row, marker: h.Symbol, allele: 1}
	}
	// Even symbol. The marker sits one position left of the matched
	// suffix; at the site's end position it is entered, anywhere else it
	// is an allele separator and the match exits towards the entry.
	textPos := in.FM.SAAt(h.Row)
	if in.PRG.EndPositions[h.Symbol] == int(textPos)-1 {
		return markerHit{row: h.Row, marker: h.Symbol, entry: true, allele: prg.AlleleUnknown}
	}
	return markerHit{row: h.Row, marker: h.Symbol - 1, allele: in.AlleleMask[textPos]}
}

// LeftMarkers returns the classified markers bordering a state's matches,
// in ascending SA-row order, as (reported marker, allele) pairs.
func LeftMarkers(in *PRGInfo, st SearchState) []prg.VariantLocus {
	var out []prg.VariantLocus
	for _, h := range in.FM.RangeMarkers(st.SAInterval, in.MaxMarker) {
		c := in.classifyHit(h)
		out = append(out, prg.VariantLocus{Site: c.marker, Allele: c.allele})
	}
	return out
}

// jumpKey deduplicates state emissions within one read step: hits that
// would produce the same interval and locus collapse to one state.
type jumpKey struct {
	iv     fmindex.SAInterval
	site   prg.Marker
	allele uint32
	entry  bool
}

// VBWTJumps forks a state at every variant marker bordering its matches.
// Newly forked states are scanned again before returning, so chains of
// adjacent markers (nested sites opening or closing together) resolve
// within a single read step. The input state itself is not returned; it
// stays alive in the caller for plain base extension.
func VBWTJumps(in *PRGInfo, st SearchState) []SearchState {
	var out []SearchState
	seen := map[jumpKey]bool{}
	work := []SearchState{st}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, h := range in.FM.RangeMarkers(cur.SAInterval, in.MaxMarker) {
			c := in.classifyHit(h)
			ns, key, ok := in.jumpState(cur, c)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ns)
			work = append(work, ns)
		}
	}
	return out
}

// jumpState builds the forked state for one classified hit.
func (in *PRGInfo) jumpState(st SearchState, c markerHit) (SearchState, jumpKey, bool) {
	if c.entry {
		// Entering the site from its end: the new interval is the SA run
		// of all the site's boundary markers; the next base extension
		// lands on the last base of whichever alleles match.
		ns := st.fork()
		ns.SAInterval = in.FM.SymbolBucket(c.marker)
		ns.TraversingPath = append(ns.TraversingPath, prg.VariantLocus{Site: c.marker - 1, Allele: prg.AlleleUnknown})
		ns.VariantState = Within
		ns.CachedExit = nil
		key := jumpKey{iv: ns.SAInterval, site: c.marker - 1, allele: prg.AlleleUnknown, entry: true}
		return ns, key, true
	}

	// Exiting the site towards its entry marker: the match continues from
	// the single row of the site's odd marker.
	locus := prg.VariantLocus{Site: c.marker, Allele: c.allele}
	key := jumpKey{iv: in.FM.SymbolBucket(c.marker), site: locus.Site, allele: locus.Allele}
	if st.CachedExit != nil && *st.CachedExit == locus {
		return SearchState{}, key, false
	}
	ns := st.fork()
	ns.SAInterval = in.FM.SymbolBucket(c.marker)
	if n := len(ns.TraversingPath); n > 0 {
		open := ns.TraversingPath.Last()
		if open.Site != locus.Site {
			log.Panicf("search: exit of site %d while site %d is open", locus.Site, open.Site)
		}
		ns.TraversingPath = ns.TraversingPath[:n-1]
	}
	ns.TraversedPath = append(ns.TraversedPath, locus)
	if len(ns.TraversingPath) > 0 {
		ns.VariantState = Within
	} else {
		ns.VariantState = Outside
	}
	ns.CachedExit = &locus
	return ns, key, true
}

// ExtendBase LF-extends every state by the next read base, dropping states
// whose interval empties. The second return reports whether the first
// state of the list (the seed chain) was among the dropped.
func ExtendBase(in *PRGInfo, states []SearchState, base prg.Marker) ([]SearchState, bool) {
	if base == 0 || base > 4 {
		log.Panicf("search: read base %d outside the DNA alphabet", base)
	}
	out := states[:0]
	firstDropped := false
	for i := range states {
		iv := in.FM.LF(states[i].SAInterval, base)
		if iv.Empty() {
			if i == 0 {
				firstDropped = true
			}
			continue
		}
		st := states[i]
		st.SAInterval = iv
		out = append(out, st)
	}
	return out, firstDropped
}

// SearchRead runs the backward search over bases, starting from the given
// states (a fresh initial state, or seeds from the kmer index). Each read
// base costs two sub-steps: variant-marker jumps, then base extension.
// When seeded fresh (precalcDone false) the first base skips the jump scan.
// The flag returned reports whether the seed-chain interval was ever
// pruned.
func SearchRead(in *PRGInfo, states []SearchState, bases []prg.Marker, precalcDone bool) ([]SearchState, bool) {
	seedPruned := false
	for i := len(bases) - 1; i >= 0; i-- {
		if len(states) == 0 {
			return nil, seedPruned
		}
		if precalcDone || i != len(bases)-1 {
			n := len(states)
			for j := 0; j < n; j++ {
				states = append(states, VBWTJumps(in, states[j])...)
			}
		}
		var dropped bool
		states, dropped = ExtendBase(in, states, bases[i])
		seedPruned = seedPruned || dropped
	}
	for i := range states {
		states[i].CachedExit = nil
	}
	return states, seedPruned
}

// HandleAlleleEncapsulated resolves states that matched without crossing
// any marker: rows landing inside an allele become per-locus states whose
// traversed path carries the (site, allele) read off the coverage graph,
// state Within. Rows outside sites stay as one reference state.
func HandleAlleleEncapsulated(in *PRGInfo, states []SearchState) []SearchState {
	var out []SearchState
	for _, st := range states {
		if len(st.TraversedPath) > 0 || len(st.TraversingPath) > 0 {
			out = append(out, st)
			continue
		}
		type group struct {
			iv    fmindex.SAInterval
			n     int
			locus prg.VariantLocus
		}
		groups := map[prg.VariantLocus]*group{}
		order := []prg.VariantLocus{}
		for row := st.SAInterval.L; row <= st.SAInterval.R; row++ {
			acc := in.Graph.RandomAccess[in.FM.SAAt(row)]
			node := in.Graph.Node(acc.Node)
			locus := prg.VariantLocus{Site: node.SiteID, Allele: node.AlleleID}
			g, ok := groups[locus]
			if !ok {
				g = &group{iv: fmindex.SAInterval{L: row, R: row}, locus: locus}
				groups[locus] = g
				order = append(order, locus)
			} else if row == g.iv.R+1 {
				g.iv.R = row
			}
			g.n++
		}
		for _, locus := range order {
			g := groups[locus]
			ns := st.fork()
			ns.SAInterval = g.iv
			if locus.Site != 0 {
				ns.TraversedPath = append(ns.TraversedPath, locus)
				ns.VariantState = Within
			}
			out = append(out, ns)
		}
	}
	return out
}
