// Package descriptor implements the typed codecs over the wire format.
//
// A descriptor pairs an alignment with a pair of pure conversions between
// Go values and wire segments. Composite descriptors delegate to their
// children in a fixed left-to-right order and concatenate the child
// alignments and segments in that order. This ordering defines the
// canonical byte layout and is part of the persisted contract.
package descriptor

import (
	"encoding/binary"

	"github.com/moznion/go-optional"
	"go.dedis.ch/slate/core/wire"
	"golang.org/x/xerrors"
)

// Descriptor is a typed codec. The alignment is a pure function of the
// descriptor so it can be precomputed for composites.
//
// Decode(Encode(v)) returns v for every well-typed value v. Encoding a
// value that does not match the descriptor shape, or that exceeds the
// declared bounds, is a caller error and is reported as such.
type Descriptor interface {
	// Alignment returns the layout of the encoded value.
	Alignment() wire.Alignment

	// Encode converts the value into wire segments matching the
	// alignment.
	Encode(value interface{}) (wire.EncodedValue, error)

	// Decode reconstructs the value from wire segments.
	Decode(enc wire.EncodedValue) (interface{}, error)

	// Zero returns the default value of the descriptor. It is used to
	// fill the payload slot of an absent optional and the unused branch
	// of a sum.
	Zero() interface{}
}

// Choice is the value of a sum descriptor. Right selects the second
// branch, otherwise the first one holds the value.
type Choice struct {
	Right bool
	Value interface{}
}

// Enum is the descriptor of an enumeration encoded on a single byte.
//
// - implements descriptor.Descriptor
type Enum struct {
	max uint8
}

// NewEnum returns an enum descriptor for values in [0, max].
func NewEnum(max uint8) Enum {
	return Enum{max: max}
}

// Alignment implements descriptor.Descriptor.
func (d Enum) Alignment() wire.Alignment {
	return wire.Atoms(1)
}

// Encode implements descriptor.Descriptor.
func (d Enum) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(uint8)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected uint8 but found %T", value)
	}

	if v > d.max {
		return wire.EncodedValue{}, xerrors.Errorf("enum value %d is above maximum %d", v, d.max)
	}

	return wire.EncodedValue{
		Alignment: d.Alignment(),
		Segments:  []wire.Segment{{byte(v)}},
	}, nil
}

// Decode implements descriptor.Descriptor.
func (d Enum) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	v := uint8(enc.Segments[0][0])
	if v > d.max {
		return nil, xerrors.Errorf("enum value %d is above maximum %d", v, d.max)
	}

	return v, nil
}

// Zero implements descriptor.Descriptor.
func (d Enum) Zero() interface{} {
	return uint8(0)
}

// UnsignedInteger is the descriptor of an unsigned integer encoded in
// little-endian over a fixed number of bytes.
//
// - implements descriptor.Descriptor
type UnsignedInteger struct {
	max   uint64
	width int
}

// NewUnsignedInteger returns an unsigned integer descriptor for values in
// [0, max] over the given byte width.
func NewUnsignedInteger(max uint64, width int) UnsignedInteger {
	return UnsignedInteger{max: max, width: width}
}

// Alignment implements descriptor.Descriptor.
func (d UnsignedInteger) Alignment() wire.Alignment {
	return wire.Atoms(d.width)
}

// Encode implements descriptor.Descriptor.
func (d UnsignedInteger) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(uint64)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected uint64 but found %T", value)
	}

	if v > d.max {
		return wire.EncodedValue{}, xerrors.Errorf("value %d is above maximum %d", v, d.max)
	}

	seg := make(wire.Segment, d.width)
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, v)
	copy(seg, tmp)

	return wire.EncodedValue{
		Alignment: d.Alignment(),
		Segments:  []wire.Segment{seg},
	}, nil
}

// Decode implements descriptor.Descriptor.
func (d UnsignedInteger) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	tmp := make([]byte, 8)
	copy(tmp, enc.Segments[0])

	v := binary.LittleEndian.Uint64(tmp)
	if v > d.max {
		return nil, xerrors.Errorf("value %d is above maximum %d", v, d.max)
	}

	return v, nil
}

// Zero implements descriptor.Descriptor.
func (d UnsignedInteger) Zero() interface{} {
	return uint64(0)
}

// Bytes is the descriptor of a fixed-length byte array.
//
// - implements descriptor.Descriptor
type Bytes struct {
	length int
}

// NewBytes returns a byte array descriptor of the given length.
func NewBytes(length int) Bytes {
	return Bytes{length: length}
}

// Alignment implements descriptor.Descriptor.
func (d Bytes) Alignment() wire.Alignment {
	return wire.Atoms(d.length)
}

// Encode implements descriptor.Descriptor.
func (d Bytes) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.([]byte)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected []byte but found %T", value)
	}

	if len(v) != d.length {
		return wire.EncodedValue{}, xerrors.Errorf("expected %d bytes but found %d", d.length, len(v))
	}

	seg := make(wire.Segment, d.length)
	copy(seg, v)

	return wire.EncodedValue{
		Alignment: d.Alignment(),
		Segments:  []wire.Segment{seg},
	}, nil
}

// Decode implements descriptor.Descriptor.
func (d Bytes) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	v := make([]byte, d.length)
	copy(v, enc.Segments[0])

	return v, nil
}

// Zero implements descriptor.Descriptor.
func (d Bytes) Zero() interface{} {
	return make([]byte, d.length)
}

// Boolean is the descriptor of a boolean encoded on a single byte.
//
// - implements descriptor.Descriptor
type Boolean struct{}

// NewBoolean returns a boolean descriptor.
func NewBoolean() Boolean {
	return Boolean{}
}

// Alignment implements descriptor.Descriptor.
func (d Boolean) Alignment() wire.Alignment {
	return wire.Atoms(1)
}

// Encode implements descriptor.Descriptor.
func (d Boolean) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(bool)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected bool but found %T", value)
	}

	seg := wire.Segment{0}
	if v {
		seg[0] = 1
	}

	return wire.EncodedValue{
		Alignment: d.Alignment(),
		Segments:  []wire.Segment{seg},
	}, nil
}

// Decode implements descriptor.Descriptor.
func (d Boolean) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	switch enc.Segments[0][0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return nil, xerrors.Errorf("invalid boolean byte 0x%x", enc.Segments[0][0])
	}
}

// Zero implements descriptor.Descriptor.
func (d Boolean) Zero() interface{} {
	return false
}

// OpaqueString is the descriptor of a string bounded by a maximum length.
// The encoding is a single atom made of a 16-bit little-endian length
// prefix followed by the payload and zero padding up to the maximum
// length, so the alignment never depends on the value.
//
// - implements descriptor.Descriptor
type OpaqueString struct {
	maxLength int
}

// NewOpaqueString returns a string descriptor with the given maximum
// length.
func NewOpaqueString(maxLength int) OpaqueString {
	return OpaqueString{maxLength: maxLength}
}

// Alignment implements descriptor.Descriptor.
func (d OpaqueString) Alignment() wire.Alignment {
	return wire.Atoms(2 + d.maxLength)
}

// Encode implements descriptor.Descriptor.
func (d OpaqueString) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(string)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected string but found %T", value)
	}

	if len(v) > d.maxLength {
		return wire.EncodedValue{}, xerrors.Errorf("string of %d bytes is above maximum %d",
			len(v), d.maxLength)
	}

	seg := make(wire.Segment, 2+d.maxLength)
	binary.LittleEndian.PutUint16(seg, uint16(len(v)))
	copy(seg[2:], v)

	return wire.EncodedValue{
		Alignment: d.Alignment(),
		Segments:  []wire.Segment{seg},
	}, nil
}

// Decode implements descriptor.Descriptor.
func (d OpaqueString) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	length := int(binary.LittleEndian.Uint16(enc.Segments[0]))
	if length > d.maxLength {
		return nil, xerrors.Errorf("string of %d bytes is above maximum %d", length, d.maxLength)
	}

	return string(enc.Segments[0][2 : 2+length]), nil
}

// Zero implements descriptor.Descriptor.
func (d OpaqueString) Zero() interface{} {
	return ""
}

// Vector is the descriptor of a fixed number of elements sharing the same
// descriptor, encoded left to right.
//
// - implements descriptor.Descriptor
type Vector struct {
	count int
	elem  Descriptor
}

// NewVector returns a vector descriptor of count elements.
func NewVector(count int, elem Descriptor) Vector {
	return Vector{count: count, elem: elem}
}

// Alignment implements descriptor.Descriptor.
func (d Vector) Alignment() wire.Alignment {
	res := wire.Alignment{}
	for i := 0; i < d.count; i++ {
		res = res.Concat(d.elem.Alignment())
	}

	return res
}

// Encode implements descriptor.Descriptor.
func (d Vector) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.([]interface{})
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected []interface{} but found %T", value)
	}

	if len(v) != d.count {
		return wire.EncodedValue{}, xerrors.Errorf("expected %d elements but found %d",
			d.count, len(v))
	}

	res := wire.EncodedValue{}
	for i, item := range v {
		enc, err := d.elem.Encode(item)
		if err != nil {
			return wire.EncodedValue{}, xerrors.Errorf("couldn't encode element %d: %v", i, err)
		}

		res = res.Concat(enc)
	}

	return res, nil
}

// Decode implements descriptor.Descriptor.
func (d Vector) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	res := make([]interface{}, d.count)
	offset := 0
	step := len(d.elem.Alignment())

	for i := 0; i < d.count; i++ {
		sub := wire.EncodedValue{
			Alignment: enc.Alignment[offset : offset+step],
			Segments:  enc.Segments[offset : offset+step],
		}

		value, err := d.elem.Decode(sub)
		if err != nil {
			return nil, xerrors.Errorf("couldn't decode element %d: %v", i, err)
		}

		res[i] = value
		offset += step
	}

	return res, nil
}

// Zero implements descriptor.Descriptor.
func (d Vector) Zero() interface{} {
	res := make([]interface{}, d.count)
	for i := range res {
		res[i] = d.elem.Zero()
	}

	return res
}

// Optional is the descriptor of an optional value. The encoding is a
// presence flag followed by the payload slot, which is always present at
// fixed width. An absent optional carries the zero encoding of the
// element in the slot, and decoding ignores the slot content when absent.
//
// - implements descriptor.Descriptor
type Optional struct {
	elem Descriptor
}

// NewOptional returns an optional descriptor over the element.
func NewOptional(elem Descriptor) Optional {
	return Optional{elem: elem}
}

// Alignment implements descriptor.Descriptor.
func (d Optional) Alignment() wire.Alignment {
	return NewBoolean().Alignment().Concat(d.elem.Alignment())
}

// Encode implements descriptor.Descriptor.
func (d Optional) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(optional.Option[interface{}])
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected optional value but found %T", value)
	}

	payload := d.elem.Zero()
	if v.IsSome() {
		payload = v.Unwrap()
	}

	flag, err := NewBoolean().Encode(v.IsSome())
	if err != nil {
		return wire.EncodedValue{}, xerrors.Errorf("couldn't encode flag: %v", err)
	}

	enc, err := d.elem.Encode(payload)
	if err != nil {
		return wire.EncodedValue{}, xerrors.Errorf("couldn't encode payload: %v", err)
	}

	return flag.Concat(enc), nil
}

// Decode implements descriptor.Descriptor.
func (d Optional) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	flag, err := NewBoolean().Decode(wire.EncodedValue{
		Alignment: enc.Alignment[:1],
		Segments:  enc.Segments[:1],
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode flag: %v", err)
	}

	if !flag.(bool) {
		return optional.None[interface{}](), nil
	}

	payload, err := d.elem.Decode(wire.EncodedValue{
		Alignment: enc.Alignment[1:],
		Segments:  enc.Segments[1:],
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode payload: %v", err)
	}

	return optional.Some(payload), nil
}

// Zero implements descriptor.Descriptor.
func (d Optional) Zero() interface{} {
	return optional.None[interface{}]()
}

// Sum is the descriptor of a choice between two descriptors. The encoding
// is a selector byte followed by both slots at fixed width, the unused
// one holding the zero encoding of its descriptor.
//
// - implements descriptor.Descriptor
type Sum struct {
	left  Descriptor
	right Descriptor
}

// NewSum returns a sum descriptor over the two branches.
func NewSum(left, right Descriptor) Sum {
	return Sum{left: left, right: right}
}

// Alignment implements descriptor.Descriptor.
func (d Sum) Alignment() wire.Alignment {
	return wire.Atoms(1).Concat(d.left.Alignment(), d.right.Alignment())
}

// Encode implements descriptor.Descriptor.
func (d Sum) Encode(value interface{}) (wire.EncodedValue, error) {
	v, ok := value.(Choice)
	if !ok {
		return wire.EncodedValue{}, xerrors.Errorf("expected descriptor.Choice but found %T", value)
	}

	selector := wire.EncodedValue{
		Alignment: wire.Atoms(1),
		Segments:  []wire.Segment{{0}},
	}

	leftValue := d.left.Zero()
	rightValue := d.right.Zero()

	if v.Right {
		selector.Segments[0][0] = 1
		rightValue = v.Value
	} else {
		leftValue = v.Value
	}

	left, err := d.left.Encode(leftValue)
	if err != nil {
		return wire.EncodedValue{}, xerrors.Errorf("couldn't encode left branch: %v", err)
	}

	right, err := d.right.Encode(rightValue)
	if err != nil {
		return wire.EncodedValue{}, xerrors.Errorf("couldn't encode right branch: %v", err)
	}

	return selector.Concat(left, right), nil
}

// Decode implements descriptor.Descriptor.
func (d Sum) Decode(enc wire.EncodedValue) (interface{}, error) {
	err := checkAlignment(d, enc)
	if err != nil {
		return nil, err
	}

	split := 1 + len(d.left.Alignment())

	selector := enc.Segments[0][0]
	switch selector {
	case 0:
		value, err := d.left.Decode(wire.EncodedValue{
			Alignment: enc.Alignment[1:split],
			Segments:  enc.Segments[1:split],
		})
		if err != nil {
			return nil, xerrors.Errorf("couldn't decode left branch: %v", err)
		}

		return Choice{Value: value}, nil
	case 1:
		value, err := d.right.Decode(wire.EncodedValue{
			Alignment: enc.Alignment[split:],
			Segments:  enc.Segments[split:],
		})
		if err != nil {
			return nil, xerrors.Errorf("couldn't decode right branch: %v", err)
		}

		return Choice{Right: true, Value: value}, nil
	default:
		return nil, xerrors.Errorf("invalid selector byte 0x%x", selector)
	}
}

// Zero implements descriptor.Descriptor.
func (d Sum) Zero() interface{} {
	return Choice{Value: d.left.Zero()}
}

func checkAlignment(d Descriptor, enc wire.EncodedValue) error {
	if !d.Alignment().Equal(enc.Alignment) {
		return xerrors.Errorf("alignment mismatch: expected %v but found %v",
			d.Alignment(), enc.Alignment)
	}

	err := enc.Validate()
	if err != nil {
		return xerrors.Errorf("malformed encoded value: %v", err)
	}

	return nil
}
