package search

import (
	"github.com/iqbal-lab/gramtools/covgraph"
	"github.com/iqbal-lab/gramtools/fmindex"
	"github.com/iqbal-lab/gramtools/prg"
)

// PRGInfo ties together every index derived from one normalised PRG. All
// fields are immutable after construction and shared across mapping
// threads; only the graph's coverage vectors mutate.
type PRGInfo struct {
	PRG        *prg.PRGString
	FM         *fmindex.Index
	Graph      *covgraph.Graph
	AlleleMask []uint32
	MaxMarker  prg.Marker
}

// NewPRGInfo builds the coverage graph and FM-index over a normalised PRG.
func NewPRGInfo(ps *prg.PRGString) (*PRGInfo, error) {
	g, err := covgraph.Build(ps)
	if err != nil {
		return nil, err
	}
	return &PRGInfo{
		PRG:        ps,
		FM:         fmindex.New(ps.Markers()),
		Graph:      g,
		AlleleMask: ps.AlleleMask(),
		MaxMarker:  ps.MaxMarker(),
	}, nil
}

// Initial returns the state every search starts from: the whole index,
// empty paths, outside any site.
func (in *PRGInfo) Initial() SearchState {
	return SearchState{SAInterval: in.FM.All()}
}
