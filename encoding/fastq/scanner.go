// Package fastq reads the FASTQ files the mapper consumes. It validates
// just enough structure to walk the four-line records and hands sequences
// to the mapper in the PRG's 1..4 base encoding.
package fastq

import (
	"bufio"
	"errors"
	"io"

	"github.com/iqbal-lab/gramtools/prg"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is one FASTQ record, comprising an ID, a sequence, and a quality
// string.
type Read struct {
	ID, Seq, Qual string
}

// Encoded returns the sequence in the 1..4 base encoding the search engine
// consumes. Reads containing ambiguous bases (N and friends) return an
// error; the caller decides whether to drop or split them.
func (r *Read) Encoded() ([]prg.Marker, error) {
	return prg.EncodeBases(r.Seq)
}

var errEOF = errors.New("eof")

// Scanner provides a convenient interface for reading FASTQ read data.
// The Scan method fills the next read, returning a boolean indicating
// whether the scan succeeded. Scanners are not threadsafe.
//
// Scanner requires ID lines to begin with "@" and line 3 to begin with
// "+"; it does not validate sequence content, which the mapper checks at
// encoding time.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a Scanner reading raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided read. Once Scan returns false, it
// never returns true again; the user should then check Err to distinguish
// end of stream from failure.
func (s *Scanner) Scan(read *Read) bool {
	if s.err != nil {
		return false
	}
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return false
	}
	id := s.b.Text()
	if len(id) == 0 || id[0] != '@' {
		s.err = ErrInvalid
		return false
	}
	read.ID = id[1:]
	if !s.scanLine(&read.Seq) {
		return false
	}
	var plus string
	if !s.scanLine(&plus) {
		return false
	}
	if len(plus) == 0 || plus[0] != '+' {
		s.err = ErrInvalid
		return false
	}
	if !s.scanLine(&read.Qual) {
		return false
	}
	if len(read.Qual) != len(read.Seq) {
		s.err = ErrInvalid
		return false
	}
	return true
}

func (s *Scanner) scanLine(dst *string) bool {
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = ErrShort
		}
		return false
	}
	*dst = s.b.Text()
	return true
}

// Err returns the error that terminated scanning, or nil at a clean end of
// stream.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
