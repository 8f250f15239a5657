// Package transcript accumulates the proof data produced by one circuit
// invocation.
//
// The public part is the ordered record of the operations performed
// against the state tree and forms the proof obligations. The private
// part holds the values produced by witness calls, which never appear in
// the public record. A recorder is created empty at invocation start,
// appended to during execution, and frozen at invocation end.
package transcript

import (
	"go.dedis.ch/slate/core/wire"
	"golang.org/x/xerrors"
)

// OpKind identifies the operation recorded by a public entry.
type OpKind string

const (
	// OpPush records a literal value pushed onto the operand stack.
	OpPush OpKind = "push"

	// OpDup records a duplication of a stack element.
	OpDup OpKind = "dup"

	// OpIdx records a navigation into the state tree.
	OpIdx OpKind = "idx"

	// OpPopeq records a read of the top of the stack.
	OpPopeq OpKind = "popeq"

	// OpIns records a mutation spliced into the state tree.
	OpIns OpKind = "ins"

	// OpAddi records an in-place numeric increment.
	OpAddi OpKind = "addi"
)

// Entry is one public proof obligation. Operations marked for persistence
// carry the plaintext value, transient ones only its shape.
type Entry struct {
	Op    OpKind
	Path  []string
	Value *wire.EncodedValue
	Shape wire.Alignment
}

// Transcript is the frozen result of a recorder. It is never mutated
// after the invocation that produced it returns.
type Transcript struct {
	Input   wire.EncodedValue
	Output  wire.EncodedValue
	Public  []Entry
	Private []wire.EncodedValue
}

// Recorder accumulates the transcript of a single invocation.
type Recorder struct {
	input     wire.EncodedValue
	hasInput  bool
	output    wire.EncodedValue
	hasOutput bool
	public    []Entry
	private   []wire.EncodedValue
	frozen    bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetInput sets the encoded circuit argument. It can only be called once.
func (r *Recorder) SetInput(input wire.EncodedValue) error {
	if r.frozen {
		return xerrors.New("recorder is frozen")
	}

	if r.hasInput {
		return xerrors.New("input is already set")
	}

	r.input = input
	r.hasInput = true

	return nil
}

// Append adds a public entry to the transcript.
func (r *Recorder) Append(entry Entry) error {
	if r.frozen {
		return xerrors.New("recorder is frozen")
	}

	r.public = append(r.public, entry)

	return nil
}

// AppendPrivate adds a witness output to the private transcript.
func (r *Recorder) AppendPrivate(value wire.EncodedValue) error {
	if r.frozen {
		return xerrors.New("recorder is frozen")
	}

	r.private = append(r.private, value)

	return nil
}

// SetOutput sets the encoded circuit result. It can only be called once.
func (r *Recorder) SetOutput(output wire.EncodedValue) error {
	if r.frozen {
		return xerrors.New("recorder is frozen")
	}

	if r.hasOutput {
		return xerrors.New("output is already set")
	}

	r.output = output
	r.hasOutput = true

	return nil
}

// Len returns the number of public entries recorded so far.
func (r *Recorder) Len() int {
	return len(r.public)
}

// Freeze closes the recorder and returns the transcript. Any later
// mutation of the recorder fails.
func (r *Recorder) Freeze() Transcript {
	r.frozen = true

	public := make([]Entry, len(r.public))
	copy(public, r.public)

	private := make([]wire.EncodedValue, len(r.private))
	copy(private, r.private)

	return Transcript{
		Input:   r.input,
		Output:  r.output,
		Public:  public,
		Private: private,
	}
}
