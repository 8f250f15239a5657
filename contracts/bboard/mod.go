// Package bboard implements the bulletin board contract, a two-party
// resource lock over a single message.
//
// The board is a fixed record of four fields. Posting writes a message
// and an ownership key derived from a hash of the sequence counter and a
// secret key supplied by a witness. Taking down requires re-deriving the
// same key. The sequence counter domain-separates the ownership key per
// post so that reusing the same secret key across posts produces
// unlinkable keys.
package bboard

import (
	"bytes"
	"math"

	"github.com/moznion/go-optional"
	"go.dedis.ch/slate"
	"go.dedis.ch/slate/core/descriptor"
	"go.dedis.ch/slate/core/state"
	"go.dedis.ch/slate/core/vm"
	"go.dedis.ch/slate/core/wire"
	"go.dedis.ch/slate/crypto"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/slate.Bboard"

	// DomainTag frames the ownership key derivation.
	DomainTag = "bboard:pk:"

	// SecretKeySize is the expected size of the witness secret key.
	SecretKeySize = 32

	// MaxMessageLength is the maximum size of a posted message.
	MaxMessageLength = 280

	// Vacant is the board state with no message posted.
	Vacant uint8 = 0

	// Occupied is the board state with a standing post.
	Occupied uint8 = 1
)

// Field indices of the board record.
const (
	fieldState uint64 = iota
	fieldMessage
	fieldSequence
	fieldOwner
)

// Field descriptors of the board record.
var (
	stateDesc    = descriptor.NewEnum(1)
	messageDesc  = descriptor.NewOptional(descriptor.NewOpaqueString(MaxMessageLength))
	sequenceDesc = descriptor.NewUnsignedInteger(math.MaxUint64, 8)
	ownerDesc    = descriptor.NewBytes(SecretKeySize)
)

// Witness is the capability supplying the caller's secret key. The
// returned bytes only ever appear in the private transcript.
type Witness interface {
	// LocalSecretKey returns the updated private state and the secret key
	// bytes.
	LocalSecretKey(ctx *vm.QueryContext) (interface{}, []byte, error)
}

// NewLedgerState returns the state tree of a fresh board: vacant, no
// message, sequence zero, zero owner key.
func NewLedgerState() (state.Value, error) {
	fields := []struct {
		desc  descriptor.Descriptor
		value interface{}
	}{
		{stateDesc, Vacant},
		{messageDesc, optional.None[interface{}]()},
		{sequenceDesc, uint64(0)},
		{ownerDesc, make([]byte, SecretKeySize)},
	}

	cells := make([]state.Value, len(fields))

	for i, field := range fields {
		enc, err := field.desc.Encode(field.value)
		if err != nil {
			return nil, xerrors.Errorf("couldn't encode field %d: %v", i, err)
		}

		cells[i] = state.NewCell(enc)
	}

	return state.NewArray(cells...), nil
}

// Contract is the bulletin board state machine.
type Contract struct {
	witness Witness
	hash    crypto.HashFactory
}

// NewContract returns a bulletin board contract using the witness for
// secret keys and SHA-256 for the ownership key derivation.
func NewContract(witness Witness) Contract {
	return Contract{
		witness: witness,
		hash:    crypto.NewHashFactory(crypto.Sha256),
	}
}

// Post writes the message on a vacant board and stores the ownership key
// derived from the current sequence and the witness secret key. The
// mutation is installed into the context only after the whole instruction
// sequence succeeds.
func (c Contract) Post(ctx *vm.QueryContext, message string) error {
	input, err := descriptor.NewOpaqueString(MaxMessageLength).Encode(message)
	if err != nil {
		return xerrors.Errorf("couldn't encode message: %v", err)
	}

	err = ctx.Recorder().SetInput(input)
	if err != nil {
		return xerrors.Errorf("couldn't record input: %v", err)
	}

	work := ctx.State().Clone()

	machine := vm.NewMachine(ctx.Recorder(), work.Gauge())
	machine.PushValue(work.Root())

	boardState, err := readField(machine, fieldState, stateDesc)
	if err != nil {
		return xerrors.Errorf("couldn't read board state: %v", err)
	}

	if boardState.(uint8) != Vacant {
		return NewAssertionError("attempted to post to an occupied board")
	}

	sequence, err := readField(machine, fieldSequence, sequenceDesc)
	if err != nil {
		return xerrors.Errorf("couldn't read sequence: %v", err)
	}

	sk, err := c.secretKey(ctx)
	if err != nil {
		return err
	}

	owner := c.deriveKey(sequence.(uint64), sk)

	err = writeField(machine, fieldOwner, ownerDesc, owner)
	if err != nil {
		return xerrors.Errorf("couldn't write owner: %v", err)
	}

	err = writeField(machine, fieldMessage, messageDesc, optional.Some[interface{}](message))
	if err != nil {
		return xerrors.Errorf("couldn't write message: %v", err)
	}

	err = writeField(machine, fieldState, stateDesc, Occupied)
	if err != nil {
		return xerrors.Errorf("couldn't write board state: %v", err)
	}

	err = incrementField(machine, fieldSequence)
	if err != nil {
		return xerrors.Errorf("couldn't increment sequence: %v", err)
	}

	err = ctx.Recorder().SetOutput(wire.EncodedValue{})
	if err != nil {
		return xerrors.Errorf("couldn't record output: %v", err)
	}

	ctx.SetState(work)

	slate.Logger.Info().Str("contract", ContractName).
		Str("invocation", ctx.ID().String()).
		Msg("message posted")

	return nil
}

// TakeDown removes the standing post when the witness secret key
// re-derives the stored ownership key, and returns the captured message.
func (c Contract) TakeDown(ctx *vm.QueryContext) (string, error) {
	err := ctx.Recorder().SetInput(wire.EncodedValue{})
	if err != nil {
		return "", xerrors.Errorf("couldn't record input: %v", err)
	}

	work := ctx.State().Clone()

	machine := vm.NewMachine(ctx.Recorder(), work.Gauge())
	machine.PushValue(work.Root())

	boardState, err := readField(machine, fieldState, stateDesc)
	if err != nil {
		return "", xerrors.Errorf("couldn't read board state: %v", err)
	}

	if boardState.(uint8) != Occupied {
		return "", NewAssertionError("attempted to take down post from an empty board")
	}

	sequence, err := readField(machine, fieldSequence, sequenceDesc)
	if err != nil {
		return "", xerrors.Errorf("couldn't read sequence: %v", err)
	}

	owner, err := readField(machine, fieldOwner, ownerDesc)
	if err != nil {
		return "", xerrors.Errorf("couldn't read owner: %v", err)
	}

	sk, err := c.secretKey(ctx)
	if err != nil {
		return "", err
	}

	// The standing post was made under the previous sequence value, which
	// the posting operation incremented.
	candidate := c.deriveKey(sequence.(uint64)-1, sk)

	if !bytes.Equal(candidate, owner.([]byte)) {
		return "", NewAssertionError("not the current owner")
	}

	message, err := readField(machine, fieldMessage, messageDesc)
	if err != nil {
		return "", xerrors.Errorf("couldn't read message: %v", err)
	}

	captured, err := message.(optional.Option[interface{}]).Take()
	if err != nil {
		return "", NewAssertionError("attempted to take down post from an empty board")
	}

	err = writeField(machine, fieldState, stateDesc, Vacant)
	if err != nil {
		return "", xerrors.Errorf("couldn't write board state: %v", err)
	}

	err = writeField(machine, fieldMessage, messageDesc, optional.None[interface{}]())
	if err != nil {
		return "", xerrors.Errorf("couldn't write message: %v", err)
	}

	err = incrementField(machine, fieldSequence)
	if err != nil {
		return "", xerrors.Errorf("couldn't increment sequence: %v", err)
	}

	output, err := descriptor.NewOpaqueString(MaxMessageLength).Encode(captured)
	if err != nil {
		return "", xerrors.Errorf("couldn't encode output: %v", err)
	}

	err = ctx.Recorder().SetOutput(output)
	if err != nil {
		return "", xerrors.Errorf("couldn't record output: %v", err)
	}

	ctx.SetState(work)

	slate.Logger.Info().Str("contract", ContractName).
		Str("invocation", ctx.ID().String()).
		Msg("message taken down")

	return captured.(string), nil
}

// PublicKey is the pure circuit deriving the ownership key from the
// secret key and the encoded sequence. It runs in a detached context with
// no persistence target.
func (c Contract) PublicKey(sk [SecretKeySize]byte, seqBytes []byte) ([]byte, error) {
	ctx := vm.NewDetached()

	input, err := descriptor.NewBytes(len(seqBytes)).Encode(seqBytes)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode input: %v", err)
	}

	err = ctx.Recorder().SetInput(input)
	if err != nil {
		return nil, xerrors.Errorf("couldn't record input: %v", err)
	}

	skEnc, err := ownerDesc.Encode(sk[:])
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode secret key: %v", err)
	}

	err = ctx.Recorder().AppendPrivate(skEnc)
	if err != nil {
		return nil, xerrors.Errorf("couldn't record secret key: %v", err)
	}

	pk := crypto.DomainHash(c.hash, DomainTag, seqBytes, sk[:])

	output, err := ownerDesc.Encode(pk)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode output: %v", err)
	}

	err = ctx.Recorder().SetOutput(output)
	if err != nil {
		return nil, xerrors.Errorf("couldn't record output: %v", err)
	}

	return pk, nil
}

// secretKey calls the witness, validates the shape of the returned value
// at the boundary, and routes the bytes to the private transcript.
func (c Contract) secretKey(ctx *vm.QueryContext) ([]byte, error) {
	private, sk, err := c.witness.LocalSecretKey(ctx)
	if err != nil {
		return nil, xerrors.Errorf("witness failed: %w", err)
	}

	if len(sk) != SecretKeySize {
		return nil, NewShapeError("secret key must be 32 bytes")
	}

	enc, err := ownerDesc.Encode(sk)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode secret key: %v", err)
	}

	err = ctx.Recorder().AppendPrivate(enc)
	if err != nil {
		return nil, xerrors.Errorf("couldn't record secret key: %v", err)
	}

	ctx.SetPrivate(private)

	return sk, nil
}

// deriveKey computes Hash(tag || encode(sequence) || sk).
func (c Contract) deriveKey(sequence uint64, sk []byte) []byte {
	enc, err := sequenceDesc.Encode(sequence)
	if err != nil {
		// The full uint64 range is representable.
		panic("couldn't encode sequence: " + err.Error())
	}

	return crypto.DomainHash(c.hash, DomainTag, enc.Bytes(), sk)
}

// readField navigates to the field and decodes it, leaving the board on
// the stack.
func readField(machine *vm.Machine, field uint64, desc descriptor.Descriptor) (interface{}, error) {
	var out interface{}

	err := machine.Run(
		vm.Idx{Path: []vm.Step{vm.IndexStep(field)}},
		vm.Popeq{Persist: true, Desc: desc, Dest: &out},
	)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// writeField replaces the field with the encoded value and splices the
// mutation back into the board.
func writeField(machine *vm.Machine, field uint64, desc descriptor.Descriptor,
	value interface{}) error {

	enc, err := desc.Encode(value)
	if err != nil {
		return xerrors.Errorf("couldn't encode value: %v", err)
	}

	return machine.Run(
		vm.Idx{PushPath: true, Path: []vm.Step{vm.IndexStep(field)}},
		vm.Popeq{Desc: desc},
		vm.Push{Persist: true, Value: state.NewCell(enc)},
		vm.Ins{Persist: true, N: 1},
	)
}

// incrementField adds one to the unsigned integer field in place.
func incrementField(machine *vm.Machine, field uint64) error {
	return machine.Run(
		vm.Idx{PushPath: true, Path: []vm.Step{vm.IndexStep(field)}},
		vm.Addi{Immediate: 1},
		vm.Ins{Persist: true, N: 1},
	)
}
