package state

import (
	"bytes"
	"encoding/binary"
	"io"

	"go.dedis.ch/slate/core/wire"
	"golang.org/x/xerrors"
)

// The serialization is self-describing: every node starts with its kind
// tag and carries enough framing to be decoded without a schema. It is
// the persisted artifact of the ledger and must stay bit stable.

// Marshal returns the binary serialization of the value.
func Marshal(value Value) []byte {
	buf := new(bytes.Buffer)
	marshalInto(buf, value)

	return buf.Bytes()
}

func marshalInto(buf *bytes.Buffer, value Value) {
	buf.WriteByte(byte(value.Kind()))

	switch v := value.(type) {
	case Null:
	case *Cell:
		enc := v.Value()
		writeUvarint(buf, uint64(len(enc.Alignment)))

		for i, seg := range enc.Segments {
			writeUvarint(buf, uint64(enc.Alignment[i].Width))
			buf.Write(seg)
		}
	case *Array:
		writeUvarint(buf, uint64(len(v.values)))

		for _, item := range v.values {
			marshalInto(buf, item)
		}
	case *Map:
		writeUvarint(buf, uint64(len(v.entries)))

		for _, entry := range v.entries {
			marshalInto(buf, entry.key)
			marshalInto(buf, entry.value)
		}
	}
}

// Unmarshal reconstructs a value from its binary serialization.
func Unmarshal(data []byte) (Value, error) {
	reader := bytes.NewReader(data)

	value, err := unmarshalFrom(reader)
	if err != nil {
		return nil, err
	}

	if reader.Len() > 0 {
		return nil, xerrors.Errorf("%d trailing bytes", reader.Len())
	}

	return value, nil
}

func unmarshalFrom(reader *bytes.Reader) (Value, error) {
	tag, err := reader.ReadByte()
	if err != nil {
		return nil, xerrors.Errorf("couldn't read tag: %v", err)
	}

	switch Kind(tag) {
	case KindNull:
		return NewNull(), nil
	case KindCell:
		count, err := binary.ReadUvarint(reader)
		if err != nil {
			return nil, xerrors.Errorf("couldn't read atom count: %v", err)
		}

		enc := wire.EncodedValue{
			Alignment: make(wire.Alignment, count),
			Segments:  make([]wire.Segment, count),
		}

		for i := uint64(0); i < count; i++ {
			width, err := binary.ReadUvarint(reader)
			if err != nil {
				return nil, xerrors.Errorf("couldn't read width: %v", err)
			}

			seg := make(wire.Segment, width)

			_, err = io.ReadFull(reader, seg)
			if err != nil {
				return nil, xerrors.Errorf("couldn't read segment: %v", err)
			}

			enc.Alignment[i] = wire.Atom{Width: int(width)}
			enc.Segments[i] = seg
		}

		return NewCell(enc), nil
	case KindArray:
		count, err := binary.ReadUvarint(reader)
		if err != nil {
			return nil, xerrors.Errorf("couldn't read length: %v", err)
		}

		arr := &Array{values: make([]Value, count)}

		for i := uint64(0); i < count; i++ {
			item, err := unmarshalFrom(reader)
			if err != nil {
				return nil, xerrors.Errorf("couldn't read element %d: %v", i, err)
			}

			arr.values[i] = item
		}

		return arr, nil
	case KindMap:
		count, err := binary.ReadUvarint(reader)
		if err != nil {
			return nil, xerrors.Errorf("couldn't read length: %v", err)
		}

		m := NewMap()

		for i := uint64(0); i < count; i++ {
			key, err := unmarshalFrom(reader)
			if err != nil {
				return nil, xerrors.Errorf("couldn't read key %d: %v", i, err)
			}

			value, err := unmarshalFrom(reader)
			if err != nil {
				return nil, xerrors.Errorf("couldn't read value %d: %v", i, err)
			}

			m.Set(key, value)
		}

		return m, nil
	default:
		return nil, xerrors.Errorf("unknown tag 0x%x", tag)
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buf.Write(tmp[:n])
}
