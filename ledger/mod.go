// Package ledger persists the charged state of contracts between
// invocations.
//
// The store plays the role of the external runtime: it supplies the
// initial charged state of a contract for an invocation and installs the
// returned one after a successful run. It never interprets the tree; the
// serialized form is the self-describing state encoding.
package ledger

import (
	"go.dedis.ch/slate"
	"go.dedis.ch/slate/core/state"
	"go.dedis.ch/slate/core/store/kv"
	"golang.org/x/xerrors"
)

var bucket = []byte("slate:states")

// Store persists contract state trees keyed by contract address.
type Store struct {
	db kv.DB
}

// NewStore returns a store over the database.
func NewStore(db kv.DB) Store {
	return Store{db: db}
}

// Load returns the charged state of the contract, or a fresh one over the
// fallback root when the contract has no state yet.
func (s Store) Load(address []byte, fallback state.Value) (state.Charged, error) {
	var root state.Value

	// An update transaction so that the bucket is created on first use.
	err := s.db.Update(bucket, func(b kv.Bucket) error {
		data := b.Get(address)
		if data == nil {
			return nil
		}

		var err error

		root, err = state.Unmarshal(data)
		if err != nil {
			return xerrors.Errorf("couldn't unmarshal state: %v", err)
		}

		return nil
	})
	if err != nil {
		return state.Charged{}, xerrors.Errorf("couldn't load state: %v", err)
	}

	if root == nil {
		slate.Logger.Debug().Hex("address", address).Msg("no ledger state yet")

		root = fallback
	}

	return state.NewCharged(root), nil
}

// Save installs the charged state of the contract. It is called only
// after a successful invocation.
func (s Store) Save(address []byte, charged state.Charged) error {
	data := state.Marshal(charged.Root())

	err := s.db.Update(bucket, func(b kv.Bucket) error {
		return b.Set(address, data)
	})
	if err != nil {
		return xerrors.Errorf("couldn't save state: %v", err)
	}

	return nil
}
