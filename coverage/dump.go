package coverage

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/iqbal-lab/gramtools/covgraph"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/klauspost/compress/gzip"
)

// Dump is the JSON coverage contract with the external genotyper: both
// arrays are indexed by variant site in PRG order.
type Dump struct {
	GroupedAlleleCounts []map[string]uint64 `json:"grouped_allele_counts"`
	AlleleBaseCounts    [][][]uint32        `json:"allele_base_counts"`
}

// BuildDump assembles the dump from the populated graph and the grouped
// counts. Base counts are a flat-PRG view: for a nested PRG the per-allele
// arrays stay empty and the genotyper works from the grouped counts alone.
func BuildDump(g *covgraph.Graph, grouped *GroupedAlleleCounts) Dump {
	d := Dump{
		GroupedAlleleCounts: []map[string]uint64{},
		AlleleBaseCounts:    [][][]uint32{},
	}
	g.EachBubble(func(entry, exit covgraph.NodeID) bool {
		en := g.Node(entry)
		d.GroupedAlleleCounts = append(d.GroupedAlleleCounts, grouped.Site(en.SiteID))

		alleles := [][]uint32{}
		if !g.IsNested {
			for _, c := range en.Out {
				allele := g.Node(c)
				counts := make([]uint32, len(allele.Coverage))
				for i := range allele.Coverage {
					counts[i] = allele.CoverageAt(i)
				}
				alleles = append(alleles, counts)
			}
		}
		d.AlleleBaseCounts = append(d.AlleleBaseCounts, alleles)
		return true
	})
	return d
}

// SiteIDs returns the variant sites in PRG order, aligning dump indexes to
// site markers.
func SiteIDs(g *covgraph.Graph) []prg.Marker {
	var ids []prg.Marker
	g.EachBubble(func(entry, exit covgraph.NodeID) bool {
		ids = append(ids, g.Node(entry).SiteID)
		return true
	})
	return ids
}

// WriteJSON serialises the dump.
func (d Dump) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(d)
}

// WriteFile writes the dump to a file, gzip-compressed when the path ends
// in .gz.
func (d Dump) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "write coverage dump:", path)
	}
	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := d.WriteJSON(w); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "write coverage dump:", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close() // nolint: errcheck
			return errors.E(err, "write coverage dump:", path)
		}
	}
	return f.Close()
}
