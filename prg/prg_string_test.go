package prg

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, raw string) []Marker {
	t.Helper()
	m, err := Encode(raw)
	require.NoError(t, err)
	return m
}

func TestEncodeFlatPRG(t *testing.T) {
	got := mustEncode(t, "gcgct5c6g6a6agtcct")
	want := []Marker{3, 2, 3, 2, 4, 5, 2, 6, 3, 6, 1, 6, 1, 3, 4, 2, 2, 4}
	expect.EQ(t, got, want)
	expect.EQ(t, Decode(got), "gcgct5c6g6a6agtcct")
}

func TestEncodeMultiDigitMarkers(t *testing.T) {
	got := mustEncode(t, "a13g14c14t")
	want := []Marker{1, 13, 3, 14, 2, 14, 4}
	expect.EQ(t, got, want)
}

func TestEncodeRejectsUnknownCharacter(t *testing.T) {
	_, err := Encode("acgn5c6g6")
	assert.Error(t, err)
}

func TestNormaliseOddSiteEnd(t *testing.T) {
	// Legacy form: the site closes with its own odd marker.
	p, err := NewPRGString(mustEncode(t, "aca5g6t5catt"))
	require.NoError(t, err)
	expect.EQ(t, Decode(p.Markers()), "aca5g6t6catt")
	expect.EQ(t, p.OddSiteEndFound, true)
	expect.EQ(t, p.EndPositions[Marker(6)], 7)
}

func TestNormaliseIdempotent(t *testing.T) {
	p, err := NewPRGString(mustEncode(t, "aca5g6t5catt"))
	require.NoError(t, err)
	again, err := NewPRGString(p.Markers())
	require.NoError(t, err)
	expect.EQ(t, again.Markers(), p.Markers())
	expect.EQ(t, again.OddSiteEndFound, false)
	expect.EQ(t, again.EndPositions, p.EndPositions)
}

func TestEndPositionsNested(t *testing.T) {
	// [[A,C],G] shape: site 5 contains site 7 in its first allele.
	p, err := NewPRGString([]Marker{5, 7, 1, 8, 2, 8, 6, 3, 6})
	require.NoError(t, err)
	expect.EQ(t, p.EndPositions[Marker(8)], 5)
	expect.EQ(t, p.EndPositions[Marker(6)], 8)
	expect.EQ(t, p.MaxMarker(), Marker(8))
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, en := range []Endianness{Little, Big} {
		p, err := NewPRGString(mustEncode(t, "gct5c6g6t6ag7t8c8cta"))
		require.NoError(t, err)
		data := p.Bytes(en)
		back, err := FromBytes(data, en)
		require.NoError(t, err)
		expect.EQ(t, back.Markers(), p.Markers())
		// Re-serialisation of a normalised PRG round-trips byte-exact.
		expect.EQ(t, back.Bytes(en), data)
	}
}

func TestBinaryRejectsRaggedStream(t *testing.T) {
	_, err := FromBytes([]byte{1, 0, 0}, Little)
	assert.Error(t, err)
}

func TestRejectsZeroMarker(t *testing.T) {
	_, err := NewPRGString([]Marker{1, 0, 2})
	assert.Error(t, err)
}

func TestRejectsUnclosedSite(t *testing.T) {
	_, err := NewPRGString(mustEncode(t, "aca5gt"))
	assert.Error(t, err)
}

func TestRejectsOrphanAlleleMarker(t *testing.T) {
	_, err := NewPRGString([]Marker{1, 6, 2, 6})
	assert.Error(t, err)
}

func TestAlleleMaskFlat(t *testing.T) {
	p, err := NewPRGString(mustEncode(t, "gcgct5c6g6a6agtcct"))
	require.NoError(t, err)
	want := []uint32{
		0, 0, 0, 0, 0, // gcgct
		0,    // 5
		1,    // c
		0,    // 6
		2,    // g
		0,    // 6
		3,    // a
		0,    // 6 (site end)
		0, 0, 0, 0, 0, 0, // agtcct
	}
	expect.EQ(t, p.AlleleMask(), want)
}

func TestAlleleMaskNested(t *testing.T) {
	// 5 7 a 8 c 8 6 g 6: site 7 occupies allele 1 of site 5.
	p, err := NewPRGString([]Marker{5, 7, 1, 8, 2, 8, 6, 3, 6})
	require.NoError(t, err)
	want := []uint32{
		0, // 5
		1, // 7: allele 1 of the enclosing site
		1, // a: allele 1 of site 7
		0, // 8
		2, // c: allele 2 of site 7
		0, // 8 (end of 7)
		0, // 6
		2, // g: allele 2 of site 5
		0, // 6 (end of 5)
	}
	expect.EQ(t, p.AlleleMask(), want)
}
