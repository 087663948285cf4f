package kmerindex

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/iqbal-lab/gramtools/fmindex"
	"github.com/iqbal-lab/gramtools/prg"
	"github.com/iqbal-lab/gramtools/search"
	"github.com/pkg/errors"
)

// The on-disk format: a fixed header followed by self-delimiting records,
// all integers little-endian.
//
//	magic "GTK1" | u32 version | u32 k | u32 max_read_size |
//	u64 prg_length | u64 prg_fingerprint
//	then per kmer:
//	k bases (1 byte each) | u8 ref_seed_pruned | u32 n_states | states
//	each state:
//	u64 l | u64 r | u8 variant_state |
//	u32 n_traversed | (u32 site, u32 allele)... |
//	u32 n_traversing | (u32 site, u32 allele)...
var indexMagic = [4]byte{'G', 'T', 'K', '1'}

const indexVersion = 1

// ErrStale marks an index file that does not belong to the current PRG or
// cannot be trusted: the caller should rebuild instead of failing.
var ErrStale = errors.New("kmer index is stale or corrupt")

// FingerprintPRG hashes the normalised PRG words; the index header records
// it so an index built over a different PRG is never reused.
func FingerprintPRG(ps *prg.PRGString) uint64 {
	h := seahash.New()
	h.Write(ps.Bytes(prg.Little)) // nolint: errcheck
	return h.Sum64()
}

// Write serialises the index deterministically (kmers in ascending packed
// order).
func (x *Index) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.Write(indexMagic[:]); err != nil {
		return errors.Wrap(err, "kmer index header")
	}
	var u32 [4]byte
	var u64buf [8]byte
	writeU32 := func(v uint32) error {
		le.PutUint32(u32[:], v)
		_, err := bw.Write(u32[:])
		return err
	}
	writeU64 := func(v uint64) error {
		le.PutUint64(u64buf[:], v)
		_, err := bw.Write(u64buf[:])
		return err
	}
	for _, v := range []uint32{indexVersion, uint32(x.K), uint32(x.MaxReadSize)} {
		if err := writeU32(v); err != nil {
			return errors.Wrap(err, "kmer index header")
		}
	}
	if err := writeU64(x.PRGLength); err != nil {
		return errors.Wrap(err, "kmer index header")
	}
	if err := writeU64(x.Fingerprint); err != nil {
		return errors.Wrap(err, "kmer index header")
	}

	kmers := make([]Kmer, 0, len(x.seeds))
	for km := range x.seeds {
		kmers = append(kmers, km)
	}
	sort.Slice(kmers, func(i, j int) bool { return kmers[i] < kmers[j] })

	writePath := func(p search.VariantSitePath) error {
		if err := writeU32(uint32(len(p))); err != nil {
			return err
		}
		for _, locus := range p {
			if err := writeU32(uint32(locus.Site)); err != nil {
				return err
			}
			if err := writeU32(locus.Allele); err != nil {
				return err
			}
		}
		return nil
	}
	for _, km := range kmers {
		seed := x.seeds[km]
		bases := km.Bases(x.K)
		kmerBytes := make([]byte, x.K)
		for i, b := range bases {
			kmerBytes[i] = byte(b)
		}
		if _, err := bw.Write(kmerBytes); err != nil {
			return errors.Wrap(err, "kmer index record")
		}
		pruned := byte(0)
		if seed.RefSeedPruned {
			pruned = 1
		}
		if err := bw.WriteByte(pruned); err != nil {
			return errors.Wrap(err, "kmer index record")
		}
		if err := writeU32(uint32(len(seed.States))); err != nil {
			return errors.Wrap(err, "kmer index record")
		}
		for _, st := range seed.States {
			if err := writeU64(uint64(st.SAInterval.L)); err != nil {
				return errors.Wrap(err, "kmer index state")
			}
			if err := writeU64(uint64(st.SAInterval.R)); err != nil {
				return errors.Wrap(err, "kmer index state")
			}
			if err := bw.WriteByte(byte(st.VariantState)); err != nil {
				return errors.Wrap(err, "kmer index state")
			}
			if err := writePath(st.TraversedPath); err != nil {
				return errors.Wrap(err, "kmer index state")
			}
			if err := writePath(st.TraversingPath); err != nil {
				return errors.Wrap(err, "kmer index state")
			}
		}
	}
	return bw.Flush()
}

// WriteFile persists the index.
func (x *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "kmer index create")
	}
	if err := x.Write(f); err != nil {
		f.Close() // nolint: errcheck
		return err
	}
	return f.Close()
}

// Read parses an index and checks it against the PRG it is meant to serve.
// A bad magic or version, a zero or oversized k, a PRG length or
// fingerprint mismatch, or truncation returns ErrStale; k and max read size
// are otherwise taken from the file as they are.
func Read(r io.Reader, wantPRGLength, wantFingerprint uint64) (*Index, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, ErrStale
	}
	if magic != indexMagic {
		return nil, ErrStale
	}
	readU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return 0, err
		}
		return le.Uint32(b[:]), nil
	}
	readU64 := func() (uint64, error) {
		var b [8]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return 0, err
		}
		return le.Uint64(b[:]), nil
	}
	version, err := readU32()
	if err != nil || version != indexVersion {
		return nil, ErrStale
	}
	k, err := readU32()
	if err != nil || k == 0 || k > MaxKmerLength {
		return nil, ErrStale
	}
	maxReadSize, err := readU32()
	if err != nil {
		return nil, ErrStale
	}
	prgLength, err := readU64()
	if err != nil || prgLength != wantPRGLength {
		return nil, ErrStale
	}
	fingerprint, err := readU64()
	if err != nil || fingerprint != wantFingerprint {
		return nil, ErrStale
	}

	x := &Index{
		K:           int(k),
		MaxReadSize: int(maxReadSize),
		PRGLength:   prgLength,
		Fingerprint: fingerprint,
		seeds:       map[Kmer]Seed{},
	}
	readPath := func() (search.VariantSitePath, error) {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		var p search.VariantSitePath
		for i := uint32(0); i < n; i++ {
			site, err := readU32()
			if err != nil {
				return nil, err
			}
			allele, err := readU32()
			if err != nil {
				return nil, err
			}
			p = append(p, prg.VariantLocus{Site: prg.Marker(site), Allele: allele})
		}
		return p, nil
	}
	kmerBytes := make([]byte, k)
	for {
		if _, err := io.ReadFull(br, kmerBytes); err == io.EOF {
			return x, nil
		} else if err != nil {
			return nil, ErrStale
		}
		bases := make([]prg.Marker, k)
		for i, b := range kmerBytes {
			if b == 0 || b > 4 {
				return nil, ErrStale
			}
			bases[i] = prg.Marker(b)
		}
		pruned, err := br.ReadByte()
		if err != nil {
			return nil, ErrStale
		}
		nStates, err := readU32()
		if err != nil {
			return nil, ErrStale
		}
		seed := Seed{RefSeedPruned: pruned == 1}
		for i := uint32(0); i < nStates; i++ {
			l, err := readU64()
			if err != nil {
				return nil, ErrStale
			}
			rr, err := readU64()
			if err != nil {
				return nil, ErrStale
			}
			vs, err := br.ReadByte()
			if err != nil {
				return nil, ErrStale
			}
			traversed, err := readPath()
			if err != nil {
				return nil, ErrStale
			}
			traversing, err := readPath()
			if err != nil {
				return nil, ErrStale
			}
			seed.States = append(seed.States, search.SearchState{
				SAInterval:     fmindex.SAInterval{L: uint32(l), R: uint32(rr)},
				VariantState:   search.VariantState(vs),
				TraversedPath:  traversed,
				TraversingPath: traversing,
			})
		}
		x.seeds[PackKmer(bases)] = seed
	}
}

// ReadFile loads an index file for the given PRG, returning ErrStale when
// it should be rebuilt.
func ReadFile(path string, ps *prg.PRGString) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStale
		}
		return nil, errors.Wrap(err, "kmer index open")
	}
	defer f.Close() // nolint: errcheck
	return Read(f, uint64(ps.Len()), FingerprintPRG(ps))
}
