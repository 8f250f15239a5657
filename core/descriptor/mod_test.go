package descriptor

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/slate/core/wire"
)

func TestEnum_RoundTrip(t *testing.T) {
	desc := NewEnum(3)

	for v := uint8(0); v <= 3; v++ {
		requireRoundTrip(t, desc, v)
	}

	_, err := desc.Encode(uint8(4))
	require.EqualError(t, err, "enum value 4 is above maximum 3")

	_, err = desc.Encode("oops")
	require.EqualError(t, err, "expected uint8 but found string")
}

func TestEnum_Decode_Bounds(t *testing.T) {
	desc := NewEnum(1)

	_, err := desc.Decode(wire.EncodedValue{
		Alignment: wire.Atoms(1),
		Segments:  []wire.Segment{{5}},
	})
	require.EqualError(t, err, "enum value 5 is above maximum 1")
}

func TestUnsignedInteger_RoundTrip(t *testing.T) {
	desc := NewUnsignedInteger(1<<32, 8)

	requireRoundTrip(t, desc, uint64(0))
	requireRoundTrip(t, desc, uint64(1))
	requireRoundTrip(t, desc, uint64(1<<32))

	_, err := desc.Encode(uint64(1<<32 + 1))
	require.EqualError(t, err, "value 4294967297 is above maximum 4294967296")
}

func TestUnsignedInteger_Encoding(t *testing.T) {
	desc := NewUnsignedInteger(1000, 2)

	enc, err := desc.Encode(uint64(258))
	require.NoError(t, err)
	// Little-endian layout over the declared width.
	require.Equal(t, []byte{2, 1}, enc.Bytes())
	require.Equal(t, wire.Atoms(2), enc.Alignment)
}

func TestBytes_RoundTrip(t *testing.T) {
	desc := NewBytes(4)

	requireRoundTrip(t, desc, []byte{1, 2, 3, 4})

	_, err := desc.Encode([]byte{1})
	require.EqualError(t, err, "expected 4 bytes but found 1")
}

func TestBoolean_RoundTrip(t *testing.T) {
	desc := NewBoolean()

	requireRoundTrip(t, desc, true)
	requireRoundTrip(t, desc, false)

	_, err := desc.Decode(wire.EncodedValue{
		Alignment: wire.Atoms(1),
		Segments:  []wire.Segment{{7}},
	})
	require.EqualError(t, err, "invalid boolean byte 0x7")
}

func TestOpaqueString_RoundTrip(t *testing.T) {
	desc := NewOpaqueString(16)

	requireRoundTrip(t, desc, "")
	requireRoundTrip(t, desc, "hello")
	requireRoundTrip(t, desc, "0123456789abcdef")

	_, err := desc.Encode("0123456789abcdef!")
	require.EqualError(t, err, "string of 17 bytes is above maximum 16")
}

func TestVector_RoundTrip(t *testing.T) {
	desc := NewVector(3, NewUnsignedInteger(255, 1))

	requireRoundTrip(t, desc, []interface{}{uint64(1), uint64(2), uint64(3)})

	_, err := desc.Encode([]interface{}{uint64(1)})
	require.EqualError(t, err, "expected 3 elements but found 1")

	_, err = desc.Encode([]interface{}{uint64(1), "oops", uint64(3)})
	require.EqualError(t, err, "couldn't encode element 1: expected uint64 but found string")
}

func TestOptional_RoundTrip(t *testing.T) {
	desc := NewOptional(NewOpaqueString(8))

	requireRoundTrip(t, desc, optional.Some[interface{}]("hi"))
	requireRoundTrip(t, desc, optional.None[interface{}]())
}

func TestOptional_AbsentPayload(t *testing.T) {
	desc := NewOptional(NewOpaqueString(4))

	// The payload slot is always present at fixed width.
	enc, err := desc.Encode(optional.None[interface{}]())
	require.NoError(t, err)
	require.Equal(t, desc.Alignment().Size(), len(enc.Bytes()))

	// Garbage in the payload slot of an absent optional must not make
	// decoding fail.
	enc.Segments[1] = wire.Segment{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	value, err := desc.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, optional.None[interface{}](), value)
}

func TestSum_RoundTrip(t *testing.T) {
	desc := NewSum(NewUnsignedInteger(255, 1), NewOpaqueString(4))

	requireRoundTrip(t, desc, Choice{Value: uint64(42)})
	requireRoundTrip(t, desc, Choice{Right: true, Value: "ok"})
}

func TestSum_Decode_Selector(t *testing.T) {
	desc := NewSum(NewBoolean(), NewBoolean())

	enc, err := desc.Encode(Choice{Value: true})
	require.NoError(t, err)

	enc.Segments[0][0] = 2

	_, err = desc.Decode(enc)
	require.EqualError(t, err, "invalid selector byte 0x2")
}

func TestDescriptor_AlignmentPurity(t *testing.T) {
	descs := []Descriptor{
		NewEnum(3),
		NewUnsignedInteger(1000, 4),
		NewBytes(8),
		NewBoolean(),
		NewOpaqueString(12),
		NewVector(2, NewBoolean()),
		NewOptional(NewBytes(4)),
		NewSum(NewBoolean(), NewOpaqueString(4)),
	}

	for _, desc := range descs {
		before := desc.Alignment()

		enc, err := desc.Encode(desc.Zero())
		require.NoError(t, err)
		require.True(t, before.Equal(enc.Alignment))

		// The alignment does not depend on any value encoded in between.
		require.True(t, before.Equal(desc.Alignment()))
	}
}

func TestDescriptor_CompositeLayout(t *testing.T) {
	desc := NewOptional(NewOpaqueString(4))

	// flag atom then payload atom, left to right.
	require.Equal(t, wire.Atoms(1, 6), desc.Alignment())

	sum := NewSum(NewBoolean(), NewBytes(2))
	require.Equal(t, wire.Atoms(1, 1, 2), sum.Alignment())
}

func TestDescriptor_AlignmentMismatch(t *testing.T) {
	desc := NewBoolean()

	_, err := desc.Decode(wire.EncodedValue{
		Alignment: wire.Atoms(2),
		Segments:  []wire.Segment{{0, 0}},
	})
	require.EqualError(t, err, "alignment mismatch: expected [1] but found [2]")
}

// -----------------------------------------------------------------------------
// Utility functions

func requireRoundTrip(t *testing.T, desc Descriptor, value interface{}) {
	t.Helper()

	enc, err := desc.Encode(value)
	require.NoError(t, err)
	require.True(t, desc.Alignment().Equal(enc.Alignment))
	require.NoError(t, enc.Validate())

	decoded, err := desc.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, value, decoded)
}
