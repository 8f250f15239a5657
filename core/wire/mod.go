// Package wire defines the alignment-tagged binary representation of
// encoded values.
//
// An encoded value is a sequence of segments, one per atom of its
// alignment. The alignment describes how the encoding is laid out and is
// a pure function of the type, never of the value, so that composite
// alignments can be precomputed and compared by concatenation.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/xerrors"
)

// Atom is a single atomic field of an alignment. The width is expressed
// in bytes.
type Atom struct {
	Width int
}

// Alignment is the ordered sequence of atoms describing how an encoded
// value is laid out on the wire.
type Alignment []Atom

// Atoms is a helper to build an alignment from a list of widths.
func Atoms(widths ...int) Alignment {
	alignment := make(Alignment, len(widths))
	for i, w := range widths {
		alignment[i] = Atom{Width: w}
	}

	return alignment
}

// Size returns the total width in bytes of the alignment.
func (a Alignment) Size() int {
	total := 0
	for _, atom := range a {
		total += atom.Width
	}

	return total
}

// Concat returns the concatenation of the alignment with the others, in
// order.
func (a Alignment) Concat(others ...Alignment) Alignment {
	res := make(Alignment, len(a))
	copy(res, a)

	for _, other := range others {
		res = append(res, other...)
	}

	return res
}

// Equal returns true when both alignments have the same atoms in the same
// order.
func (a Alignment) Equal(other Alignment) bool {
	if len(a) != len(other) {
		return false
	}

	for i, atom := range a {
		if atom != other[i] {
			return false
		}
	}

	return true
}

// String implements fmt.Stringer. It returns a compact representation of
// the atom widths.
func (a Alignment) String() string {
	widths := make([]string, len(a))
	for i, atom := range a {
		widths[i] = fmt.Sprintf("%d", atom.Width)
	}

	return "[" + strings.Join(widths, ",") + "]"
}

// Segment is the byte content of a single atom.
type Segment []byte

// EncodedValue is a value laid out on the wire alongside its alignment.
type EncodedValue struct {
	Alignment Alignment
	Segments  []Segment
}

// Validate returns an error when the segments do not match the alignment,
// either in count or in per-atom width.
func (e EncodedValue) Validate() error {
	if len(e.Segments) != len(e.Alignment) {
		return xerrors.Errorf("expected %d segments but found %d",
			len(e.Alignment), len(e.Segments))
	}

	for i, seg := range e.Segments {
		if len(seg) != e.Alignment[i].Width {
			return xerrors.Errorf("segment %d should be %d bytes but is %d",
				i, e.Alignment[i].Width, len(seg))
		}
	}

	return nil
}

// Concat returns the encoded value resulting from the concatenation of
// the value with the others, in order.
func (e EncodedValue) Concat(others ...EncodedValue) EncodedValue {
	res := EncodedValue{
		Alignment: make(Alignment, len(e.Alignment)),
		Segments:  make([]Segment, len(e.Segments)),
	}

	copy(res.Alignment, e.Alignment)
	copy(res.Segments, e.Segments)

	for _, other := range others {
		res.Alignment = append(res.Alignment, other.Alignment...)
		res.Segments = append(res.Segments, other.Segments...)
	}

	return res
}

// Bytes returns the segments flattened into a single byte slice, in
// alignment order.
func (e EncodedValue) Bytes() []byte {
	buf := make([]byte, 0, e.Alignment.Size())
	for _, seg := range e.Segments {
		buf = append(buf, seg...)
	}

	return buf
}

// Equal returns true when both values have the same alignment and the
// same segment bytes.
func (e EncodedValue) Equal(other EncodedValue) bool {
	if !e.Alignment.Equal(other.Alignment) {
		return false
	}

	if len(e.Segments) != len(other.Segments) {
		return false
	}

	for i, seg := range e.Segments {
		if string(seg) != string(other.Segments[i]) {
			return false
		}
	}

	return true
}

// Fingerprint writes a canonical byte stream of the encoded value into
// the writer so that it can be hashed.
func (e EncodedValue) Fingerprint(w io.Writer) error {
	buf := make([]byte, binary.MaxVarintLen64)

	n := binary.PutUvarint(buf, uint64(len(e.Alignment)))

	_, err := w.Write(buf[:n])
	if err != nil {
		return xerrors.Errorf("couldn't write atom count: %v", err)
	}

	for i, seg := range e.Segments {
		n = binary.PutUvarint(buf, uint64(e.Alignment[i].Width))

		_, err = w.Write(buf[:n])
		if err != nil {
			return xerrors.Errorf("couldn't write width: %v", err)
		}

		_, err = w.Write(seg)
		if err != nil {
			return xerrors.Errorf("couldn't write segment: %v", err)
		}
	}

	return nil
}
