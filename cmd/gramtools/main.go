// Command gramtools builds the indexes for a linearised PRG and quasimaps
// reads against them.
//
// Build every index from a PRG:
//
//	gramtools build -prg prg.bin -out-dir idx -k 10 -max-read-size 150
//
// Map reads and dump coverage:
//
//	gramtools quasimap -prg idx/prg.bin -kmer-index idx/kmers.gtk \
//	    -reads reads.fastq -coverage-out coverage.json.gz
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/iqbal-lab/gramtools/coverage"
	"github.com/iqbal-lab/gramtools/encoding/fastq"
	"github.com/iqbal-lab/gramtools/kmerindex"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/quasimap"
	"github.com/iqbal-lab/gramtools/search"
	"golang.org/x/sync/errgroup"
)

type buildFlags struct {
	prgPath     string
	prgASCII    string
	bigEndian   bool
	k           int
	maxReadSize int
	outDir      string
}

type quasimapFlags struct {
	prgPath     string
	bigEndian   bool
	kmerIndex   string
	readsPath   string
	coverageOut string
	k           int
	maxReadSize int
	parallelism int
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: gramtools <build|quasimap> [flags]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "build":
		runBuild(os.Args[2:])
	case "quasimap":
		runQuasimap(os.Args[2:])
	default:
		usage()
	}
}

func loadPRG(path, ascii string, bigEndian bool) *prg.PRGString {
	if ascii != "" {
		markers, err := prg.Encode(ascii)
		if err != nil {
			log.Panicf("parse ascii prg: %v", err)
		}
		ps, err := prg.NewPRGString(markers)
		if err != nil {
			log.Panicf("normalise prg: %v", err)
		}
		return ps
	}
	en := prg.Little
	if bigEndian {
		en = prg.Big
	}
	ps, err := prg.Read(path, en)
	if err != nil {
		log.Panicf("read prg %s: %v", path, err)
	}
	return ps
}

func runBuild(args []string) {
	f := buildFlags{}
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	fs.StringVar(&f.prgPath, "prg", "", "binary linear PRG file")
	fs.StringVar(&f.prgASCII, "prg-ascii", "", "inline ASCII PRG (flat only), instead of -prg")
	fs.BoolVar(&f.bigEndian, "big-endian", false, "PRG words are big-endian")
	fs.IntVar(&f.k, "k", kmerindex.DefaultOpts.K, "seed kmer length")
	fs.IntVar(&f.maxReadSize, "max-read-size", kmerindex.DefaultOpts.MaxReadSize, "largest read the index serves")
	fs.StringVar(&f.outDir, "out-dir", "", "output directory")
	fs.Parse(args) // nolint: errcheck
	if (f.prgPath == "") == (f.prgASCII == "") || f.outDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	ps := loadPRG(f.prgPath, f.prgASCII, f.bigEndian)
	if ps.OddSiteEndFound {
		log.Printf("build: legacy odd site ends rewritten")
	}
	in, err := search.NewPRGInfo(ps)
	if err != nil {
		log.Panicf("build coverage graph: %v", err)
	}
	log.Printf("build: %d markers, %d sites, nested=%v", ps.Len(), in.Graph.NumBubbles(), in.Graph.IsNested)

	if err := os.MkdirAll(f.outDir, 0755); err != nil {
		log.Panicf("build: %v", err)
	}
	if err := ps.WriteFile(filepath.Join(f.outDir, "prg.bin"), prg.Little); err != nil {
		log.Panicf("build: %v", err)
	}
	ki := kmerindex.Build(in, kmerindex.Opts{K: f.k, MaxReadSize: f.maxReadSize})
	if err := ki.WriteFile(filepath.Join(f.outDir, "kmers.gtk")); err != nil {
		log.Panicf("build: %v", err)
	}
	log.Printf("build: wrote %s", f.outDir)
}

func runQuasimap(args []string) {
	f := quasimapFlags{}
	fs := flag.NewFlagSet("quasimap", flag.ExitOnError)
	fs.StringVar(&f.prgPath, "prg", "", "binary linear PRG file")
	fs.BoolVar(&f.bigEndian, "big-endian", false, "PRG words are big-endian")
	fs.StringVar(&f.kmerIndex, "kmer-index", "", "kmer index file (rebuilt when stale)")
	fs.StringVar(&f.readsPath, "reads", "", "FASTQ reads")
	fs.StringVar(&f.coverageOut, "coverage-out", "", "coverage dump (.json or .json.gz)")
	fs.IntVar(&f.k, "k", kmerindex.DefaultOpts.K, "seed kmer length for rebuilds")
	fs.IntVar(&f.maxReadSize, "max-read-size", kmerindex.DefaultOpts.MaxReadSize, "largest read mapped")
	fs.IntVar(&f.parallelism, "parallelism", 0, "mapping workers (0 = NumCPU)")
	fs.Parse(args) // nolint: errcheck
	if f.prgPath == "" || f.readsPath == "" || f.coverageOut == "" {
		fs.Usage()
		os.Exit(2)
	}

	ps := loadPRG(f.prgPath, "", f.bigEndian)
	in, err := search.NewPRGInfo(ps)
	if err != nil {
		log.Panicf("build coverage graph: %v", err)
	}

	var ki *kmerindex.Index
	if f.kmerIndex != "" {
		ki, err = kmerindex.ReadFile(f.kmerIndex, ps)
		if err == kmerindex.ErrStale {
			log.Printf("quasimap: %s is stale, rebuilding", f.kmerIndex)
			ki = nil
		} else if err != nil {
			log.Panicf("load kmer index: %v", err)
		}
	}
	if ki == nil {
		ki = kmerindex.Build(in, kmerindex.Opts{K: f.k, MaxReadSize: f.maxReadSize})
		if f.kmerIndex != "" {
			if err := ki.WriteFile(f.kmerIndex); err != nil {
				log.Panicf("write kmer index: %v", err)
			}
		}
	}

	grouped := coverage.NewGroupedAlleleCounts()
	stats := mapReads(f, in, ki, grouped)
	log.Printf("quasimap: %d reads, %d mapped, %d unmapped, %d skipped",
		stats.Reads, stats.Mapped, stats.Unmapped, stats.Skipped)

	dump := coverage.BuildDump(in.Graph, grouped)
	if err := dump.WriteFile(f.coverageOut); err != nil {
		log.Panicf("quasimap: %v", err)
	}
	log.Printf("quasimap: wrote %s", f.coverageOut)
}

// mapReads overlaps FASTQ scanning with mapping: one reader goroutine
// feeds encoded reads to a worker pool.
func mapReads(f quasimapFlags, in *search.PRGInfo, ki *kmerindex.Index,
	grouped *coverage.GroupedAlleleCounts) quasimap.Stats {
	rf, err := os.Open(f.readsPath)
	if err != nil {
		log.Panicf("open reads %s: %v", f.readsPath, err)
	}
	defer rf.Close() // nolint: errcheck

	parallelism := f.parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	readCh := make(chan []prg.Marker, 4*parallelism)
	var stats quasimap.Stats

	var g errgroup.Group
	g.Go(func() error {
		defer close(readCh)
		s := fastq.NewScanner(rf)
		var r fastq.Read
		for s.Scan(&r) {
			stats.Reads++
			encoded, err := r.Encoded()
			if err != nil {
				// Ambiguous bases: the read cannot match the DNA-only PRG.
				stats.Skipped++
				continue
			}
			readCh <- encoded
		}
		return s.Err()
	})

	results := make([]quasimap.Stats, parallelism)
	for i := 0; i < parallelism; i++ {
		i := i
		g.Go(func() error {
			for read := range readCh {
				if len(read) < ki.K {
					results[i].Skipped++
					continue
				}
				states := quasimap.MapRead(in, ki, read)
				if len(states) == 0 {
					results[i].Unmapped++
					continue
				}
				quasimap.RecordCoverage(in, grouped, states, len(read))
				results[i].Mapped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Panicf("read %s: %v", f.readsPath, err)
	}
	for _, r := range results {
		stats.Mapped += r.Mapped
		stats.Unmapped += r.Unmapped
		stats.Skipped += r.Skipped
	}
	return stats
}
