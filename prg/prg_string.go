package prg

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/grailbio/base/errors"
)

// Endianness declares the byte order of a binary PRG stream. The serialiser
// and deserialiser must agree; there is no header to record it.
type Endianness int

const (
	// Little is little-endian word encoding.
	Little Endianness = iota
	// Big is big-endian word encoding.
	Big
)

func (e Endianness) order() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// wordSize is the fixed width, in bytes, of one marker on disk.
const wordSize = 4

// PRGString is a normalised linearised PRG: the marker vector plus the
// site-end bookkeeping every consumer (coverage graph, vBWT search) needs.
//
// Normalisation rewrites legacy odd site-end markers to the even form, so
// that after construction an odd marker always signals a site entry.
type PRGString struct {
	markers []Marker

	// EndPositions maps each even (allele) marker to the index of the
	// site's end in the marker vector.
	EndPositions map[Marker]int

	// OddSiteEndFound records whether normalisation rewrote anything; if
	// so, callers holding the original bytes should re-serialise.
	OddSiteEndFound bool

	en Endianness
}

// NewPRGString normalises a marker vector. It fails on malformed input:
// zero words, or an odd marker that never closes.
func NewPRGString(markers []Marker) (*PRGString, error) {
	p := &PRGString{
		markers:      append([]Marker(nil), markers...),
		EndPositions: map[Marker]int{},
		en:           Little,
	}
	if err := p.mapAndNormaliseEnds(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromBytes decodes a binary PRG: a stream of fixed-width words in the
// declared endianness, no header.
func FromBytes(data []byte, en Endianness) (*PRGString, error) {
	if len(data)%wordSize != 0 {
		return nil, errors.E(fmt.Sprintf("prg: binary stream length %d is not a multiple of the %d-byte word size", len(data), wordSize))
	}
	order := en.order()
	markers := make([]Marker, len(data)/wordSize)
	for i := range markers {
		markers[i] = Marker(order.Uint32(data[i*wordSize:]))
	}
	p, err := NewPRGString(markers)
	if err != nil {
		return nil, err
	}
	p.en = en
	return p, nil
}

// Read decodes a binary PRG file. Length is implicit from file size.
func Read(path string, en Endianness) (*PRGString, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.E(err, "read prg:", path)
	}
	return FromBytes(data, en)
}

// Bytes serialises the normalised marker vector in the given endianness.
// Symmetric with FromBytes.
func (p *PRGString) Bytes(en Endianness) []byte {
	order := en.order()
	out := make([]byte, len(p.markers)*wordSize)
	for i, m := range p.markers {
		order.PutUint32(out[i*wordSize:], uint32(m))
	}
	return out
}

// Write serialises the normalised marker vector to w.
func (p *PRGString) Write(w io.Writer, en Endianness) error {
	_, err := w.Write(p.Bytes(en))
	return err
}

// WriteFile serialises the normalised marker vector to a file.
func (p *PRGString) WriteFile(path string, en Endianness) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "write prg:", path)
	}
	if err := p.Write(f, en); err != nil {
		f.Close() // nolint: errcheck
		return errors.E(err, "write prg:", path)
	}
	return f.Close()
}

// Markers returns the normalised marker vector. Callers must not mutate it.
func (p *PRGString) Markers() []Marker { return p.markers }

// Len returns the number of markers.
func (p *PRGString) Len() int { return len(p.markers) }

// Endianness returns the byte order the PRG was read with.
func (p *PRGString) Endianness() Endianness { return p.en }

// MaxMarker returns the largest marker value in the PRG; the upper bound
// for 2-D marker range searches.
func (p *PRGString) MaxMarker() Marker {
	var max Marker
	for _, m := range p.markers {
		if m > max {
			max = m
		}
	}
	return max
}

// mapAndNormaliseEnds discovers site boundaries, rewrites any legacy odd
// site-end (second occurrence of an odd marker) to the even form, and
// records, for every even marker, where its site ends.
func (p *PRGString) mapAndNormaliseEnds() error {
	seenOdd := map[Marker]bool{}
	for i, m := range p.markers {
		switch {
		case m == 0:
			return errors.E(fmt.Sprintf("prg: zero marker at position %d", i))
		case m <= 4:
			// sequence
		case m%2 == 1:
			if seenOdd[m] {
				// Legacy form: the site closes with its own odd marker.
				p.markers[i] = m + 1
				p.OddSiteEndFound = true
			} else {
				seenOdd[m] = true
			}
		}
	}
	for i, m := range p.markers {
		if IsAlleleMarker(m) {
			p.EndPositions[m] = i // last occurrence wins
		}
	}
	for m := range seenOdd {
		if _, ok := p.EndPositions[m+1]; !ok {
			return errors.E(fmt.Sprintf("prg: site %d opens but never closes", m))
		}
	}
	for m := range p.EndPositions {
		if !seenOdd[m-1] {
			return errors.E(fmt.Sprintf("prg: allele marker %d has no site entry %d", m, m-1))
		}
	}
	return nil
}

// AlleleMask computes, for every PRG position, the 1-based allele number of
// the innermost site enclosing it; 0 outside sites. Site-entry marker
// positions carry the allele number of their enclosing context (the value a
// backward search consults when a site starts an allele of its parent);
// allele/site-end marker positions carry 0.
func (p *PRGString) AlleleMask() []uint32 {
	type frame struct {
		site   Marker
		allele uint32
	}
	mask := make([]uint32, len(p.markers))
	var stack []frame
	cur := func() uint32 {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1].allele
	}
	for i, m := range p.markers {
		switch {
		case m <= 4:
			mask[i] = cur()
		case m%2 == 1:
			mask[i] = cur()
			stack = append(stack, frame{site: m, allele: 1})
		default: // even: allele separator or site end
			mask[i] = 0
			if p.EndPositions[m] == i {
				stack = stack[:len(stack)-1]
			} else {
				stack[len(stack)-1].allele++
			}
		}
	}
	return mask
}
