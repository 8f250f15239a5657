package bboard

import (
	"github.com/moznion/go-optional"
	"go.dedis.ch/slate/core/descriptor"
	"go.dedis.ch/slate/core/state"
	"golang.org/x/xerrors"
)

// Board is a decoded view of the board record.
type Board struct {
	State    uint8
	Message  optional.Option[string]
	Sequence uint64
	Owner    []byte
}

// View decodes the board record from the state tree. It is a read-only
// convenience that does not record a transcript.
func View(root state.Value) (Board, error) {
	record, ok := root.(*state.Array)
	if !ok {
		return Board{}, xerrors.Errorf("expected an array root but found %v", root.Kind())
	}

	boardState, err := decodeField(record, fieldState, stateDesc)
	if err != nil {
		return Board{}, xerrors.Errorf("couldn't decode board state: %v", err)
	}

	message, err := decodeField(record, fieldMessage, messageDesc)
	if err != nil {
		return Board{}, xerrors.Errorf("couldn't decode message: %v", err)
	}

	sequence, err := decodeField(record, fieldSequence, sequenceDesc)
	if err != nil {
		return Board{}, xerrors.Errorf("couldn't decode sequence: %v", err)
	}

	owner, err := decodeField(record, fieldOwner, ownerDesc)
	if err != nil {
		return Board{}, xerrors.Errorf("couldn't decode owner: %v", err)
	}

	board := Board{
		State:    boardState.(uint8),
		Message:  optional.None[string](),
		Sequence: sequence.(uint64),
		Owner:    owner.([]byte),
	}

	raw := message.(optional.Option[interface{}])
	if raw.IsSome() {
		board.Message = optional.Some(raw.Unwrap().(string))
	}

	return board, nil
}

func decodeField(record *state.Array, field uint64,
	desc descriptor.Descriptor) (interface{}, error) {

	node, err := record.Get(field)
	if err != nil {
		return nil, err
	}

	cell, ok := node.(*state.Cell)
	if !ok {
		return nil, xerrors.Errorf("expected a cell but found %v", node.Kind())
	}

	return desc.Decode(cell.Value())
}
