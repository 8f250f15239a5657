// Package state models contract storage as a tree of tagged values.
//
// A value is either null, a cell holding an encoded leaf, an array of
// values, or a map from values to values. The tree is the sole persisted
// representation of contract state; typed access goes through descriptor
// encode/decode at the cells.
//
// Navigation by an out-of-range or wrong-shape path fails with a
// structural error, which is distinct from a decode error and is never
// silently defaulted.
package state

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"go.dedis.ch/slate/core/wire"
	"golang.org/x/xerrors"
)

// Kind is the tag of a value in the tree.
type Kind byte

const (
	// KindNull is the tag of the null value.
	KindNull Kind = iota

	// KindCell is the tag of a leaf holding an encoded value.
	KindCell

	// KindArray is the tag of an ordered sequence of values.
	KindArray

	// KindMap is the tag of a mapping between values.
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindCell:
		return "cell"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a node of the state tree.
type Value interface {
	// Kind returns the tag of the value.
	Kind() Kind

	// Clone returns a deep copy of the value.
	Clone() Value

	// Fingerprint writes a canonical byte stream of the value into the
	// writer.
	Fingerprint(w io.Writer) error

	// Equal returns true when the other value has the same canonical
	// representation.
	Equal(other Value) bool
}

// StructuralError is returned when a path does not match the shape of the
// tree. It indicates a malformed schema rather than a recoverable
// condition.
type StructuralError struct {
	reason string
}

func newStructuralError(format string, args ...interface{}) StructuralError {
	return StructuralError{reason: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e StructuralError) Error() string {
	return "structural error: " + e.reason
}

// IsStructural returns true when the error is, or wraps, a structural
// error.
func IsStructural(err error) bool {
	se := StructuralError{}
	return xerrors.As(err, &se)
}

// NewNullNavigationError returns the structural error reported when a
// path steps into a null value.
func NewNullNavigationError() error {
	return newStructuralError("cannot navigate into a null value")
}

// NewLeafNavigationError returns the structural error reported when a
// path steps into a value that has no children.
func NewLeafNavigationError(kind Kind) error {
	return newStructuralError("cannot navigate into a %v value", kind)
}

// Null is the empty value.
//
// - implements state.Value
type Null struct{}

// NewNull returns the null value.
func NewNull() Null {
	return Null{}
}

// Kind implements state.Value.
func (n Null) Kind() Kind {
	return KindNull
}

// Clone implements state.Value.
func (n Null) Clone() Value {
	return Null{}
}

// Fingerprint implements state.Value.
func (n Null) Fingerprint(w io.Writer) error {
	_, err := w.Write([]byte{byte(KindNull)})
	if err != nil {
		return xerrors.Errorf("couldn't write tag: %v", err)
	}

	return nil
}

// Equal implements state.Value.
func (n Null) Equal(other Value) bool {
	return other != nil && other.Kind() == KindNull
}

// Cell is a leaf of the tree holding wire bytes alongside their
// alignment.
//
// - implements state.Value
type Cell struct {
	value wire.EncodedValue
}

// NewCell returns a cell wrapping the encoded value.
func NewCell(value wire.EncodedValue) *Cell {
	return &Cell{value: value}
}

// Value returns the encoded value held by the cell.
func (c *Cell) Value() wire.EncodedValue {
	return c.value
}

// Kind implements state.Value.
func (c *Cell) Kind() Kind {
	return KindCell
}

// Clone implements state.Value.
func (c *Cell) Clone() Value {
	alignment := make(wire.Alignment, len(c.value.Alignment))
	copy(alignment, c.value.Alignment)

	segments := make([]wire.Segment, len(c.value.Segments))
	for i, seg := range c.value.Segments {
		segments[i] = append(wire.Segment{}, seg...)
	}

	return &Cell{value: wire.EncodedValue{Alignment: alignment, Segments: segments}}
}

// Fingerprint implements state.Value.
func (c *Cell) Fingerprint(w io.Writer) error {
	_, err := w.Write([]byte{byte(KindCell)})
	if err != nil {
		return xerrors.Errorf("couldn't write tag: %v", err)
	}

	err = c.value.Fingerprint(w)
	if err != nil {
		return xerrors.Errorf("couldn't fingerprint encoded value: %v", err)
	}

	return nil
}

// Equal implements state.Value.
func (c *Cell) Equal(other Value) bool {
	cell, ok := other.(*Cell)
	return ok && c.value.Equal(cell.value)
}

// Array is an ordered sequence of values.
//
// - implements state.Value
type Array struct {
	values []Value
}

// NewArray returns an array made of the values, in order.
func NewArray(values ...Value) *Array {
	return &Array{values: values}
}

// Len returns the number of values in the array.
func (a *Array) Len() int {
	return len(a.values)
}

// Get returns the value at the index, or a structural error when the
// index is out of range.
func (a *Array) Get(index uint64) (Value, error) {
	if index >= uint64(len(a.values)) {
		return nil, newStructuralError("index %d is out of range [0, %d)",
			index, len(a.values))
	}

	return a.values[index], nil
}

// Set replaces the value at the index. Setting past the end of the array
// is a structural error.
func (a *Array) Set(index uint64, value Value) error {
	if index >= uint64(len(a.values)) {
		return newStructuralError("index %d is out of range [0, %d)",
			index, len(a.values))
	}

	a.values[index] = value

	return nil
}

// Append adds the value at the end of the array.
func (a *Array) Append(value Value) {
	a.values = append(a.values, value)
}

// Kind implements state.Value.
func (a *Array) Kind() Kind {
	return KindArray
}

// Clone implements state.Value.
func (a *Array) Clone() Value {
	values := make([]Value, len(a.values))
	for i, v := range a.values {
		values[i] = v.Clone()
	}

	return &Array{values: values}
}

// Fingerprint implements state.Value.
func (a *Array) Fingerprint(w io.Writer) error {
	err := writeHeader(w, KindArray, len(a.values))
	if err != nil {
		return xerrors.Errorf("couldn't write tag: %v", err)
	}

	for i, v := range a.values {
		err = v.Fingerprint(w)
		if err != nil {
			return xerrors.Errorf("couldn't fingerprint element %d: %v", i, err)
		}
	}

	return nil
}

// Equal implements state.Value.
func (a *Array) Equal(other Value) bool {
	arr, ok := other.(*Array)
	if !ok || len(arr.values) != len(a.values) {
		return false
	}

	for i, v := range a.values {
		if !v.Equal(arr.values[i]) {
			return false
		}
	}

	return true
}

// Map is a mapping between values. The identity of a key is its canonical
// fingerprint, and the entries keep their insertion order so that the
// serialization is deterministic.
//
// - implements state.Value
type Map struct {
	entries []mapEntry
}

type mapEntry struct {
	id    string
	key   Value
	value Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{}
}

// Len returns the number of entries in the map.
func (m *Map) Len() int {
	return len(m.entries)
}

// Member returns true when the key is present in the map.
func (m *Map) Member(key Value) bool {
	_, found := m.lookup(key)
	return found
}

// Get returns the value stored under the key, or a structural error when
// the key is missing.
func (m *Map) Get(key Value) (Value, error) {
	i, found := m.lookup(key)
	if !found {
		return nil, newStructuralError("no entry for key %s", render(key))
	}

	return m.entries[i].value, nil
}

// Set stores the value under the key, replacing an existing entry.
func (m *Map) Set(key, value Value) {
	i, found := m.lookup(key)
	if found {
		m.entries[i].value = value
		return
	}

	m.entries = append(m.entries, mapEntry{
		id:    keyID(key),
		key:   key,
		value: value,
	})
}

// Delete removes the entry under the key. Removing a missing key is a
// structural error.
func (m *Map) Delete(key Value) error {
	i, found := m.lookup(key)
	if !found {
		return newStructuralError("no entry for key %s", render(key))
	}

	m.entries = append(m.entries[:i], m.entries[i+1:]...)

	return nil
}

// ForEach iterates over the entries in insertion order. The iteration
// stops when the callback returns an error.
func (m *Map) ForEach(fn func(key, value Value) error) error {
	for _, entry := range m.entries {
		err := fn(entry.key, entry.value)
		if err != nil {
			return err
		}
	}

	return nil
}

// Kind implements state.Value.
func (m *Map) Kind() Kind {
	return KindMap
}

// Clone implements state.Value.
func (m *Map) Clone() Value {
	entries := make([]mapEntry, len(m.entries))
	for i, entry := range m.entries {
		entries[i] = mapEntry{
			id:    entry.id,
			key:   entry.key.Clone(),
			value: entry.value.Clone(),
		}
	}

	return &Map{entries: entries}
}

// Fingerprint implements state.Value.
func (m *Map) Fingerprint(w io.Writer) error {
	err := writeHeader(w, KindMap, len(m.entries))
	if err != nil {
		return xerrors.Errorf("couldn't write tag: %v", err)
	}

	for _, entry := range m.entries {
		err = entry.key.Fingerprint(w)
		if err != nil {
			return xerrors.Errorf("couldn't fingerprint key: %v", err)
		}

		err = entry.value.Fingerprint(w)
		if err != nil {
			return xerrors.Errorf("couldn't fingerprint value: %v", err)
		}
	}

	return nil
}

// Equal implements state.Value.
func (m *Map) Equal(other Value) bool {
	mp, ok := other.(*Map)
	if !ok || len(mp.entries) != len(m.entries) {
		return false
	}

	for i, entry := range m.entries {
		if entry.id != mp.entries[i].id || !entry.value.Equal(mp.entries[i].value) {
			return false
		}
	}

	return true
}

func (m *Map) lookup(key Value) (int, bool) {
	id := keyID(key)
	for i, entry := range m.entries {
		if entry.id == id {
			return i, true
		}
	}

	return 0, false
}

// writeHeader writes the kind tag and the child count with the same
// uvarint framing as the serialization, so that the canonical stream of
// a container is unambiguous for any count.
func writeHeader(w io.Writer, kind Kind, count int) error {
	buf := make([]byte, 1, 1+binary.MaxVarintLen64)
	buf[0] = byte(kind)

	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, uint64(count))

	_, err := w.Write(append(buf, tmp[:n]...))

	return err
}

func keyID(key Value) string {
	sb := new(strings.Builder)

	// Writing to a strings.Builder never fails.
	_ = key.Fingerprint(sb)

	return sb.String()
}

func render(v Value) string {
	return fmt.Sprintf("%v/%x", v.Kind(), keyID(v))
}
