// Package vm implements the stack-based interpreter that navigates,
// reads, and mutates a state tree.
//
// The instruction set is a closed set of tagged variants executed by a
// single interpreter loop over an explicit operand stack. Every
// instruction appends an entry to the public transcript describing the
// operation performed. Depending on the persist marking, the entry
// carries either the plaintext value or only its shape.
package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/slate"
	"go.dedis.ch/slate/core/descriptor"
	"go.dedis.ch/slate/core/state"
	"go.dedis.ch/slate/core/transcript"
	"go.dedis.ch/slate/core/wire"
	"golang.org/x/xerrors"
)

// defines prometheus metrics
var (
	promPrograms = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slate_vm_programs_total",
		Help: "total number of programs executed",
	})

	promFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slate_vm_programs_failed",
		Help: "total number of programs that failed",
	})

	promInstructions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slate_vm_instructions_total",
		Help: "total number of instructions executed",
	})
)

func init() {
	slate.PromCollectors = append(slate.PromCollectors,
		promPrograms, promFailures, promInstructions)
}

// Step is one element of a navigation path. The key is interpreted
// against the shape of the node being traversed: an array expects a cell
// encoding a little-endian unsigned index, a map looks the key up by its
// canonical fingerprint.
type Step struct {
	Key state.Value
}

// IndexStep returns a path step navigating to the index of an array.
func IndexStep(index uint64) Step {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, index)

	return Step{Key: state.NewCell(wire.EncodedValue{
		Alignment: wire.Atoms(8),
		Segments:  []wire.Segment{buf},
	})}
}

// Instruction is one operation of the interpreter. The set of
// implementations is closed.
type Instruction interface {
	isInstruction()
}

// Push pushes a value onto the operand stack. When persist is set, the
// value is marked for eventual storage and its plaintext is recorded,
// otherwise only its shape is.
type Push struct {
	Persist bool
	Value   state.Value
}

func (Push) isInstruction() {}

// Dup duplicates the stack element n positions from the top.
type Dup struct {
	N int
}

func (Dup) isInstruction() {}

// Idx pops the top of the stack and navigates into it following the
// path. Every traversed container is pushed back so that a later Ins can
// splice a mutation along the same path, and the navigated subtree ends
// on top. When PushPath is set, missing intermediate nodes are created,
// otherwise a missing path is a structural error, never an implicit
// insert.
type Idx struct {
	Persist  bool
	PushPath bool
	Path     []Step
}

func (Idx) isInstruction() {}

// Popeq pops the top of the stack and decodes it with the descriptor.
// When Expect is set, the decoded value must additionally be equal to it.
// When Dest is set, it receives the decoded value.
type Popeq struct {
	Persist bool
	Desc    descriptor.Descriptor
	Expect  interface{}
	Dest    *interface{}
}

func (Popeq) isInstruction() {}

// Ins pops the new value plus the n containers pushed by the preceding
// Idx and splices the mutation upward along the recorded keys, pushing
// the rebuilt container back.
type Ins struct {
	Persist bool
	N       int
}

func (Ins) isInstruction() {}

// Addi decodes the top of the stack as an unsigned integer, adds the
// immediate, and re-encodes it at the same width.
type Addi struct {
	Immediate uint64
}

func (Addi) isInstruction() {}

// Machine is the interpreter. It executes instruction sequences against
// an operand stack, appending to the transcript and charging the gauge as
// it goes.
type Machine struct {
	stack []state.Value
	trail []Step
	rec   *transcript.Recorder
	gauge *state.Gauge
}

// NewMachine returns a machine recording to the given recorder and
// charging the gauge.
func NewMachine(rec *transcript.Recorder, gauge *state.Gauge) *Machine {
	return &Machine{rec: rec, gauge: gauge}
}

// PushValue pushes a value onto the operand stack outside of a program.
// It is used to seed the stack with the state root before running.
func (m *Machine) PushValue(value state.Value) {
	m.stack = append(m.stack, value)
}

// Top returns the top of the operand stack without popping it.
func (m *Machine) Top() (state.Value, error) {
	if len(m.stack) == 0 {
		return nil, xerrors.New("operand stack is empty")
	}

	return m.stack[len(m.stack)-1], nil
}

// Run executes the instructions in order. The first failing instruction
// aborts the run.
func (m *Machine) Run(instructions ...Instruction) error {
	promPrograms.Inc()

	for i, instruction := range instructions {
		err := m.execute(instruction)
		if err != nil {
			promFailures.Inc()
			return xerrors.Errorf("instruction %d: %w", i, err)
		}

		promInstructions.Inc()
	}

	return nil
}

func (m *Machine) execute(instruction Instruction) error {
	m.gauge.Charge(1)

	switch instr := instruction.(type) {
	case Push:
		return m.executePush(instr)
	case Dup:
		return m.executeDup(instr)
	case Idx:
		return m.executeIdx(instr)
	case Popeq:
		return m.executePopeq(instr)
	case Ins:
		return m.executeIns(instr)
	case Addi:
		return m.executeAddi(instr)
	default:
		return xerrors.Errorf("unknown instruction %T", instruction)
	}
}

func (m *Machine) executePush(instr Push) error {
	m.stack = append(m.stack, instr.Value)

	return m.record(transcript.OpPush, nil, instr.Value, instr.Persist)
}

func (m *Machine) executeDup(instr Dup) error {
	if instr.N < 0 || instr.N >= len(m.stack) {
		return xerrors.Errorf("dup depth %d is out of range [0, %d)", instr.N, len(m.stack))
	}

	value := m.stack[len(m.stack)-1-instr.N]
	m.stack = append(m.stack, value.Clone())

	return m.record(transcript.OpDup, nil, value, false)
}

func (m *Machine) executeIdx(instr Idx) error {
	current, err := m.pop()
	if err != nil {
		return err
	}

	path := make([]string, 0, len(instr.Path))

	for _, step := range instr.Path {
		m.gauge.Charge(1)

		child, parent, err := navigate(current, step, instr.PushPath)
		if err != nil {
			return xerrors.Errorf("couldn't navigate %v: %w", renderPath(path), err)
		}

		path = append(path, renderStep(step))

		m.stack = append(m.stack, parent)
		m.trail = append(m.trail, step)

		current = child
	}

	m.stack = append(m.stack, current)

	entry := transcript.Entry{Op: transcript.OpIdx, Path: path}

	return m.rec.Append(entry)
}

func (m *Machine) executePopeq(instr Popeq) error {
	value, err := m.pop()
	if err != nil {
		return err
	}

	cell, ok := value.(*state.Cell)
	if !ok {
		return xerrors.Errorf("expected a cell on top of the stack but found %v", value.Kind())
	}

	decoded, err := instr.Desc.Decode(cell.Value())
	if err != nil {
		return xerrors.Errorf("couldn't decode value: %v", err)
	}

	if instr.Expect != nil {
		expected, err := instr.Desc.Encode(instr.Expect)
		if err != nil {
			return xerrors.Errorf("couldn't encode expected value: %v", err)
		}

		if !expected.Equal(cell.Value()) {
			return xerrors.Errorf("value mismatch: expected %x but found %x",
				expected.Bytes(), cell.Value().Bytes())
		}
	}

	if instr.Dest != nil {
		*instr.Dest = decoded
	}

	return m.record(transcript.OpPopeq, nil, cell, instr.Persist)
}

func (m *Machine) executeIns(instr Ins) error {
	if instr.N < 0 || instr.N > len(m.trail) {
		return xerrors.Errorf("ins depth %d exceeds the recorded path of %d",
			instr.N, len(m.trail))
	}

	value, err := m.pop()
	if err != nil {
		return err
	}

	recorded := value

	for i := 0; i < instr.N; i++ {
		parent, err := m.pop()
		if err != nil {
			return err
		}

		step := m.trail[len(m.trail)-1]
		m.trail = m.trail[:len(m.trail)-1]

		err = splice(parent, step, value)
		if err != nil {
			return xerrors.Errorf("couldn't splice: %w", err)
		}

		value = parent
	}

	m.stack = append(m.stack, value)

	return m.record(transcript.OpIns, nil, recorded, instr.Persist)
}

func (m *Machine) executeAddi(instr Addi) error {
	value, err := m.pop()
	if err != nil {
		return err
	}

	cell, ok := value.(*state.Cell)
	if !ok {
		return xerrors.Errorf("expected a cell on top of the stack but found %v", value.Kind())
	}

	enc := cell.Value()
	if len(enc.Segments) != 1 || len(enc.Segments[0]) > 8 {
		return xerrors.Errorf("expected a single integer atom but found alignment %v",
			enc.Alignment)
	}

	buf := make([]byte, 8)
	copy(buf, enc.Segments[0])

	sum := binary.LittleEndian.Uint64(buf) + instr.Immediate
	binary.LittleEndian.PutUint64(buf, sum)

	seg := make(wire.Segment, len(enc.Segments[0]))
	copy(seg, buf)

	updated := state.NewCell(wire.EncodedValue{
		Alignment: enc.Alignment,
		Segments:  []wire.Segment{seg},
	})

	m.stack = append(m.stack, updated)

	return m.record(transcript.OpAddi, nil, updated, true)
}

func (m *Machine) pop() (state.Value, error) {
	if len(m.stack) == 0 {
		return nil, xerrors.New("operand stack is empty")
	}

	value := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]

	return value, nil
}

func (m *Machine) record(op transcript.OpKind, path []string, value state.Value, persist bool) error {
	entry := transcript.Entry{Op: op, Path: path}

	if cell, ok := value.(*state.Cell); ok {
		if persist {
			enc := cell.Value()
			entry.Value = &enc
		} else {
			entry.Shape = cell.Value().Alignment
		}
	}

	return m.rec.Append(entry)
}

// navigate resolves one path step against the node. It returns the child
// and the parent container the child lives in, materializing missing
// nodes when pushPath is set.
func navigate(node state.Value, step Step, pushPath bool) (state.Value, state.Value, error) {
	switch container := node.(type) {
	case *state.Array:
		index, err := stepIndex(step)
		if err != nil {
			return nil, nil, err
		}

		if pushPath {
			for uint64(container.Len()) <= index {
				container.Append(state.NewNull())
			}
		}

		child, err := container.Get(index)
		if err != nil {
			return nil, nil, err
		}

		return child, container, nil
	case *state.Map:
		if pushPath && !container.Member(step.Key) {
			container.Set(step.Key, state.NewNull())
		}

		child, err := container.Get(step.Key)
		if err != nil {
			return nil, nil, err
		}

		return child, container, nil
	case state.Null:
		if !pushPath {
			return nil, nil, state.NewNullNavigationError()
		}

		container2 := state.NewMap()
		container2.Set(step.Key, state.NewNull())

		child, err := container2.Get(step.Key)
		if err != nil {
			return nil, nil, err
		}

		return child, container2, nil
	default:
		return nil, nil, state.NewLeafNavigationError(node.Kind())
	}
}

// splice writes the child back into the parent container at the step.
func splice(parent state.Value, step Step, child state.Value) error {
	switch container := parent.(type) {
	case *state.Array:
		index, err := stepIndex(step)
		if err != nil {
			return err
		}

		return container.Set(index, child)
	case *state.Map:
		container.Set(step.Key, child)

		return nil
	default:
		return state.NewLeafNavigationError(parent.Kind())
	}
}

func stepIndex(step Step) (uint64, error) {
	cell, ok := step.Key.(*state.Cell)
	if !ok {
		return 0, xerrors.Errorf("expected an index cell but found %v", step.Key.Kind())
	}

	raw := cell.Value().Bytes()
	if len(raw) > 8 {
		return 0, xerrors.Errorf("index of %d bytes is too wide", len(raw))
	}

	buf := make([]byte, 8)
	copy(buf, raw)

	return binary.LittleEndian.Uint64(buf), nil
}

func renderStep(step Step) string {
	if cell, ok := step.Key.(*state.Cell); ok {
		raw := cell.Value().Bytes()
		if len(raw) <= 8 {
			buf := make([]byte, 8)
			copy(buf, raw)

			return fmt.Sprintf("%d", binary.LittleEndian.Uint64(buf))
		}

		return fmt.Sprintf("%x", raw)
	}

	return step.Key.Kind().String()
}

func renderPath(path []string) []string {
	if len(path) == 0 {
		return []string{"."}
	}

	return path
}
