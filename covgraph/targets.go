package covgraph

import "github.com/iqbal-lab/gramtools/prg"

// mapTargets walks the marker vector once more and, wherever a marker is
// immediately preceded by another marker, records the jump relation: which
// marker a position is reached from, and for sequence positions, which
// variant locus the position is the jump target of.
func (b *builder) mapTargets() {
	prevT := mtSequence
	var prevM prg.Marker
	var curAllele uint32

	for pos := range b.linear {
		curM := b.linear[pos]
		curT := classify(b.linear, b.ends, pos)

		switch curT {
		case mtSequence:
			if prevT != mtSequence {
				b.g.RandomAccess[pos].Target = prg.VariantLocus{Site: prevM, Allele: curAllele}
			}
		case mtSiteEntry:
			curAllele = 1
			if prevT != mtSequence {
				b.entryTargets(prevT, prevM, curM)
			}
		case mtSiteEnd:
			if prevT != mtSequence {
				b.exitTargets(prevT, prevM, curM, curAllele)
			}
			if parent, ok := b.g.ParentMap[curM-1]; ok {
				curAllele = parent.Allele
			} else {
				curAllele = 0
			}
		case mtAlleleEnd:
			if prevT != mtSequence {
				b.exitTargets(prevT, prevM, curM, curAllele)
			}
			curAllele++
		}
		prevM = curM
		prevT = curT
	}
}

// entryTargets records how a site entry is reached from an adjacent marker:
// a double entry (nested site opening first), or a site end running
// straight into the next site.
func (b *builder) entryTargets(prevT markerType, prevM, curM prg.Marker) {
	inserted := prevM
	if prevT == mtAlleleEnd {
		inserted = prevM - 1
	}
	b.g.TargetMap[curM] = []TargetedMarker{{ID: inserted}}
}

// exitTargets records how a site (or allele) end is reached from an
// adjacent marker: a double exit (nested site closing at the end of an
// allele), or a direct deletion (the allele holds no sequence at all).
func (b *builder) exitTargets(prevT markerType, prevM, curM prg.Marker, curAllele uint32) {
	var tm TargetedMarker
	switch prevT {
	case mtSiteEnd: // double exit
		tm = TargetedMarker{ID: prevM}
	case mtSiteEntry, mtAlleleEnd: // direct deletion
		tm = TargetedMarker{ID: prg.SiteOf(prevM), DirectDeletionAllele: curAllele}
	default:
		return
	}
	b.g.TargetMap[curM] = append(b.g.TargetMap[curM], tm)
}
