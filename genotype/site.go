// Package genotype holds the genotyped-site surface the core exposes to
// the external genotyping models. The models compute calls; the core only
// carries the record.
package genotype

import "github.com/iqbal-lab/gramtools/prg"

// SiteKind tags the concrete genotyped-site representation. Models are
// tagged the same way; a record never needs virtual dispatch.
type SiteKind int

const (
	// LevelGenotyped is the nesting-aware site produced by the level
	// genotyper.
	LevelGenotyped SiteKind = iota
)

// Allele is one sequence choice at a site, with the per-base coverage the
// mapper recorded for it.
type Allele struct {
	Sequence     string
	BaseCoverage []uint32
	// HaplogroupID is the first-level allele this (possibly nested)
	// sequence descends from.
	HaplogroupID uint32
}

// Call is a genotype call: indexes into the site's allele list.
type Call struct {
	Alleles []int
	// Likelihood of the call, as assigned by the model. The core never
	// computes it.
	Likelihood float64
}

// SiteInfo is the record a genotyping model fills in for one site.
type SiteInfo struct {
	Kind   SiteKind
	Site   prg.Marker
	Parent prg.VariantLocus

	Alleles         []Allele
	AlleleCoverages []uint64
	TotalCoverage   uint64

	Genotyped bool
	Call      Call

	// Filters lists the filter flags the model raised (e.g. low coverage,
	// ambiguous call).
	Filters []string

	// Extra carries model-specific entries attached to the record, keyed
	// by name; the core treats them as opaque.
	Extra map[string]interface{}
}

// Null reports whether the site carries no call.
func (s *SiteInfo) Null() bool { return !s.Genotyped }
