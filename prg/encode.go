package prg

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Marker is one symbol of the linearised PRG.
type Marker uint32

// MinVariantMarker is the smallest marker value denoting variation.
// Everything below it (1..4) is a DNA base.
const MinVariantMarker Marker = 5

// IsVariantMarker reports whether m delimits variation rather than encoding
// a base.
func IsVariantMarker(m Marker) bool { return m >= MinVariantMarker }

// IsSiteMarker reports whether m is an odd (site boundary) marker.
func IsSiteMarker(m Marker) bool { return m >= MinVariantMarker && m%2 == 1 }

// IsAlleleMarker reports whether m is an even (allele boundary) marker.
func IsAlleleMarker(m Marker) bool { return m >= MinVariantMarker && m%2 == 0 }

// SiteOf maps either marker of a site to the site's odd identifier.
func SiteOf(m Marker) Marker {
	if m%2 == 0 {
		return m - 1
	}
	return m
}

var decodeBaseTable = [5]byte{'?', 'a', 'c', 'g', 't'}

var encodeBaseTable = func() [256]Marker {
	var t [256]Marker
	t['a'], t['A'] = 1, 1
	t['c'], t['C'] = 2, 2
	t['g'], t['G'] = 3, 3
	t['t'], t['T'] = 4, 4
	return t
}()

// EncodeBase converts an ASCII nucleotide to its 1..4 encoding. Returns 0
// for anything that is not acgt (case-insensitive).
func EncodeBase(c byte) Marker { return encodeBaseTable[c] }

// DecodeBase converts a 1..4 encoding back to its lowercase ASCII base.
//
// REQUIRES: 1 <= m <= 4.
func DecodeBase(m Marker) byte {
	if m == 0 || m > 4 {
		panic(fmt.Sprintf("prg: %d is not a DNA base encoding", m))
	}
	return decodeBaseTable[m]
}

// EncodeBases converts an ASCII DNA sequence (a read, a kmer) to 1..4
// encodings. Any non-acgt character yields an error.
func EncodeBases(seq string) ([]Marker, error) {
	out := make([]Marker, len(seq))
	for i := 0; i < len(seq); i++ {
		b := encodeBaseTable[seq[i]]
		if b == 0 {
			return nil, errors.E(fmt.Sprintf("encode bases: non-DNA character %q at offset %d", seq[i], i))
		}
		out[i] = b
	}
	return out, nil
}

// Encode converts an ASCII PRG with digit-run markers into a marker vector.
// Digits are parsed greedily as multi-digit integers, so this function is
// only usable on flat (non-nested) PRGs, where marker characters cannot be
// confounded.
func Encode(raw string) ([]Marker, error) {
	out := make([]Marker, 0, len(raw))
	var digits uint64
	inDigits := false
	flush := func() {
		if inDigits {
			out = append(out, Marker(digits))
			digits = 0
			inDigits = false
		}
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			digits = digits*10 + uint64(c-'0')
			inDigits = true
		case encodeBaseTable[c] != 0:
			flush()
			out = append(out, encodeBaseTable[c])
		default:
			return nil, errors.E(fmt.Sprintf("encode prg: unrecognised character %q at offset %d", c, i))
		}
	}
	flush()
	for i, m := range out {
		if m == 0 || (m > 4 && m < MinVariantMarker) {
			return nil, errors.E(fmt.Sprintf("encode prg: invalid marker %d at position %d", m, i))
		}
	}
	return out, nil
}

// Decode renders a marker vector back as ASCII, markers as decimal digit
// runs. Inverse of Encode for flat PRGs; used for logging and tests.
func Decode(markers []Marker) string {
	buf := make([]byte, 0, len(markers))
	for _, m := range markers {
		if m <= 4 {
			buf = append(buf, decodeBaseTable[m])
			continue
		}
		buf = append(buf, []byte(fmt.Sprintf("%d", m))...)
	}
	return string(buf)
}
