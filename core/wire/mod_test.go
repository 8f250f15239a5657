package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignment_Size(t *testing.T) {
	require.Equal(t, 0, Alignment{}.Size())
	require.Equal(t, 11, Atoms(1, 2, 8).Size())
}

func TestAlignment_Concat(t *testing.T) {
	a := Atoms(1, 2)
	b := Atoms(8)

	res := a.Concat(b, Atoms(4))

	require.Equal(t, Atoms(1, 2, 8, 4), res)
	// The receiver is left untouched.
	require.Equal(t, Atoms(1, 2), a)
}

func TestAlignment_Equal(t *testing.T) {
	require.True(t, Atoms(1, 2).Equal(Atoms(1, 2)))
	require.False(t, Atoms(1, 2).Equal(Atoms(1)))
	require.False(t, Atoms(1, 2).Equal(Atoms(1, 3)))
}

func TestAlignment_String(t *testing.T) {
	require.Equal(t, "[1,2,8]", Atoms(1, 2, 8).String())
	require.Equal(t, "[]", Alignment{}.String())
}

func TestEncodedValue_Validate(t *testing.T) {
	enc := EncodedValue{
		Alignment: Atoms(1, 2),
		Segments:  []Segment{{1}, {2, 3}},
	}

	require.NoError(t, enc.Validate())

	enc.Segments = enc.Segments[:1]
	err := enc.Validate()
	require.EqualError(t, err, "expected 2 segments but found 1")

	enc.Segments = []Segment{{1}, {2}}
	err = enc.Validate()
	require.EqualError(t, err, "segment 1 should be 2 bytes but is 1")
}

func TestEncodedValue_Concat(t *testing.T) {
	a := EncodedValue{Alignment: Atoms(1), Segments: []Segment{{1}}}
	b := EncodedValue{Alignment: Atoms(2), Segments: []Segment{{2, 3}}}

	res := a.Concat(b)

	require.Equal(t, Atoms(1, 2), res.Alignment)
	require.Equal(t, []byte{1, 2, 3}, res.Bytes())
}

func TestEncodedValue_Equal(t *testing.T) {
	a := EncodedValue{Alignment: Atoms(1), Segments: []Segment{{1}}}
	b := EncodedValue{Alignment: Atoms(1), Segments: []Segment{{1}}}

	require.True(t, a.Equal(b))

	b.Segments[0][0] = 2
	require.False(t, a.Equal(b))

	require.False(t, a.Equal(EncodedValue{Alignment: Atoms(2)}))

	// A value missing segments for its alignment compares unequal instead
	// of panicking.
	short := EncodedValue{Alignment: Atoms(1)}
	require.False(t, a.Equal(short))
	require.False(t, short.Equal(a))
}

func TestEncodedValue_Fingerprint(t *testing.T) {
	enc := EncodedValue{
		Alignment: Atoms(1, 2),
		Segments:  []Segment{{1}, {2, 3}},
	}

	buf := new(bytes.Buffer)

	err := enc.Fingerprint(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 1, 1, 2, 2, 3}, buf.Bytes())

	err = enc.Fingerprint(fakeWriter{})
	require.EqualError(t, err, "couldn't write atom count: oops")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeWriter struct{}

func (fakeWriter) Write([]byte) (int, error) {
	return 0, fakeError{}
}

type fakeError struct{}

func (fakeError) Error() string {
	return "oops"
}
