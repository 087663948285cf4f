// Package quasimap drives read mapping: seed a read from the kmer index,
// extend it backwards through the vBWT engine, and turn the surviving
// search states into coverage on the graph.
package quasimap

import (
	"runtime"
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/iqbal-lab/gramtools/coverage"
	"github.com/iqbal-lab/gramtools/kmerindex"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
)

// Opts collects the mapping parameters.
type Opts struct {
	// K is the seed length; it must match the kmer index.
	K int
	// MaxReadSize is the longest read the kmer index was built for.
	MaxReadSize int
	// Parallelism caps the map-phase workers; 0 means NumCPU.
	Parallelism int
}

// DefaultOpts are the mapper defaults.
var DefaultOpts = Opts{
	K:           10,
	MaxReadSize: 150,
	Parallelism: 0,
}

// MapRead maps one read: look up the read's length-k suffix in the kmer
// index, extend the seed states backwards over the remaining bases, then
// resolve mappings that stayed inside a single allele. A read that does
// not map returns zero states; that is an outcome, not an error.
func MapRead(in *search.PRGInfo, ki *kmerindex.Index, read []prg.Marker) []search.SearchState {
	if len(read) < ki.K {
		return nil
	}
	seed, ok := ki.Lookup(read[len(read)-ki.K:])
	if !ok {
		return nil
	}
	states := make([]search.SearchState, len(seed.States))
	copy(states, seed.States)
	states, _ = search.SearchRead(in, states, read[:len(read)-ki.K], true)
	return search.HandleAlleleEncapsulated(in, states)
}

// RecordCoverage adds one mapped read's coverage: per-base counts on the
// graph plus the grouped allele counts. The per-read recorder flushes once,
// after all of the read's states contributed, so other readers of the
// graph never observe a half-recorded read.
func RecordCoverage(in *search.PRGInfo, grouped *coverage.GroupedAlleleCounts,
	states []search.SearchState, readLength int) {
	coverage.Record(in, states, readLength)
	grouped.Record(states)
}

// Stats summarises a map phase.
type Stats struct {
	Reads    uint64
	Mapped   uint64
	Skipped  uint64 // shorter than the seed length (the CLI also counts reads with ambiguous bases)
	Unmapped uint64
}

// Run maps a batch of reads in parallel. Reads are independent; workers
// share the graph read-only except for the atomic coverage cells.
func Run(in *search.PRGInfo, ki *kmerindex.Index, grouped *coverage.GroupedAlleleCounts,
	reads [][]prg.Marker, opts Opts) Stats {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(reads) {
		parallelism = len(reads)
	}
	var stats Stats
	if len(reads) == 0 {
		return stats
	}
	_ = traverse.Each(parallelism, func(job int) error {
		start := (job * len(reads)) / parallelism
		end := ((job + 1) * len(reads)) / parallelism
		for _, read := range reads[start:end] {
			atomic.AddUint64(&stats.Reads, 1)
			if len(read) < ki.K {
				atomic.AddUint64(&stats.Skipped, 1)
				continue
			}
			states := MapRead(in, ki, read)
			if len(states) == 0 {
				atomic.AddUint64(&stats.Unmapped, 1)
				continue
			}
			RecordCoverage(in, grouped, states, len(read))
			atomic.AddUint64(&stats.Mapped, 1)
		}
		return nil
	})
	log.Printf("quasimap: %d reads, %d mapped, %d unmapped, %d too short",
		stats.Reads, stats.Mapped, stats.Unmapped, stats.Skipped)
	return stats
}
