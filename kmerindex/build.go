package kmerindex

import (
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
)

// nShard is the fan-out width of the build. Kmers are assigned to shards
// by farmhash, each shard seeds its own output map, and the shard maps are
// merged afterwards; no two workers ever touch the same map.
const nShard = 256

// Opts parameterises the index.
type Opts struct {
	// K is the seed length: lookups use the read's length-K suffix.
	K int
	// MaxReadSize bounds the reads the index is built for; it is recorded
	// in the persisted header. Read does not compare it with anything, so
	// an index built for another read size is loaded as it is.
	MaxReadSize int
}

// DefaultOpts mirrors the mapper defaults.
var DefaultOpts = Opts{K: 10, MaxReadSize: 150}

// Seed is the precomputed search outcome for one kmer.
type Seed struct {
	// States are the surviving search states after backward-searching the
	// kmer from a fresh initial state.
	States []search.SearchState
	// RefSeedPruned reports whether the whole-index seed interval was
	// dropped while searching the kmer: if so, every match of the kmer
	// crosses variation, and none lies on a uniform reference stretch.
	RefSeedPruned bool
}

// Index maps kmers to their seed states.
type Index struct {
	K           int
	MaxReadSize int
	PRGLength   uint64
	Fingerprint uint64

	seeds map[Kmer]Seed
}

func shardOf(km Kmer) int {
	return int(farm.Hash64WithSeed(nil, uint64(km)) & (nShard - 1))
}

// Build enumerates every kmer reachable in the PRG and seeds each one
// through the vBWT engine. The per-shard passes run in parallel; each
// worker owns its shard's output map.
func Build(in *search.PRGInfo, opts Opts) *Index {
	if opts.K <= 0 || opts.K > MaxKmerLength {
		log.Panicf("kmerindex: kmer length %d out of range", opts.K)
	}
	kmers := Enumerate(in.Graph, opts.K)
	log.Printf("kmer index: seeding %d kmers (k=%d) over %d shards", len(kmers), opts.K, nShard)

	shards := make([][]Kmer, nShard)
	for _, km := range kmers {
		s := shardOf(km)
		shards[s] = append(shards[s], km)
	}

	results := make([]map[Kmer]Seed, nShard)
	_ = traverse.Each(nShard, func(si int) error {
		out := map[Kmer]Seed{}
		for _, km := range shards[si] {
			states, pruned := search.SearchRead(in, []search.SearchState{in.Initial()}, km.Bases(opts.K), false)
			if len(states) == 0 {
				continue
			}
			out[km] = Seed{States: states, RefSeedPruned: pruned}
		}
		results[si] = out
		return nil
	})

	idx := &Index{
		K:           opts.K,
		MaxReadSize: opts.MaxReadSize,
		PRGLength:   uint64(in.PRG.Len()),
		Fingerprint: FingerprintPRG(in.PRG),
		seeds:       map[Kmer]Seed{},
	}
	for _, m := range results {
		for km, seed := range m {
			idx.seeds[km] = seed
		}
	}
	log.Printf("kmer index: %d kmers mapped", len(idx.seeds))
	return idx
}

// Lookup returns the seed for a kmer (the read's length-K suffix). No
// reverse-complement normalisation happens here; strandness is the
// caller's concern.
func (x *Index) Lookup(bases []prg.Marker) (Seed, bool) {
	if len(bases) != x.K {
		return Seed{}, false
	}
	seed, ok := x.seeds[PackKmer(bases)]
	return seed, ok
}

// NumKmers returns how many kmers have seed states.
func (x *Index) NumKmers() int { return len(x.seeds) }
