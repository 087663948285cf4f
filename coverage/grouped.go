package coverage

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
)

// GroupedAlleleCounts records, per variant site, how many reads supported
// each group of alleles. A read crossing a site with several surviving
// mapping instances contributes one count to the group of all their
// alleles, not one count per instance.
type GroupedAlleleCounts struct {
	mu    sync.Mutex
	sites map[prg.Marker]map[string]uint64
}

// NewGroupedAlleleCounts returns an empty structure.
func NewGroupedAlleleCounts() *GroupedAlleleCounts {
	return &GroupedAlleleCounts{sites: map[prg.Marker]map[string]uint64{}}
}

// GroupKey renders a set of allele ids as the canonical group key:
// ascending, space-joined.
func GroupKey(alleles []uint32) string {
	sorted := append([]uint32(nil), alleles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	var prev uint32
	for i, a := range sorted {
		if i > 0 && a == prev {
			continue
		}
		prev = a
		parts = append(parts, strconv.FormatUint(uint64(a), 10))
	}
	return strings.Join(parts, " ")
}

// Record adds one read's states: for every site any state crossed, the
// group of alleles seen across all states is counted once. Unresolved
// (traversing) sites count with the unknown allele, which is how the
// deferred-allele case surfaces to the genotyper.
func (g *GroupedAlleleCounts) Record(states []search.SearchState) {
	perSite := map[prg.Marker][]uint32{}
	add := func(path search.VariantSitePath) {
		for _, locus := range path {
			perSite[locus.Site] = append(perSite[locus.Site], locus.Allele)
		}
	}
	for _, st := range states {
		add(st.TraversedPath)
		add(st.TraversingPath)
	}
	if len(perSite) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for site, alleles := range perSite {
		m, ok := g.sites[site]
		if !ok {
			m = map[string]uint64{}
			g.sites[site] = m
		}
		m[GroupKey(alleles)]++
	}
}

// Site returns a copy of the recorded groups for one site (an empty map if
// never crossed).
func (g *GroupedAlleleCounts) Site(site prg.Marker) map[string]uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string]uint64{}
	for k, v := range g.sites[site] {
		out[k] = v
	}
	return out
}
