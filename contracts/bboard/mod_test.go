package bboard

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/slate/core/state"
	"go.dedis.ch/slate/core/transcript"
	"go.dedis.ch/slate/core/vm"
	"golang.org/x/xerrors"
)

func TestNewLedgerState(t *testing.T) {
	root, err := NewLedgerState()
	require.NoError(t, err)

	board, err := View(root)
	require.NoError(t, err)
	require.Equal(t, Vacant, board.State)
	require.True(t, board.Message.IsNone())
	require.Equal(t, uint64(0), board.Sequence)
	require.Equal(t, make([]byte, SecretKeySize), board.Owner)
}

func TestContract_Post(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)

	err := contract.Post(ctx, "hello")
	require.NoError(t, err)

	board, err := View(ctx.State().Root())
	require.NoError(t, err)
	require.Equal(t, Occupied, board.State)
	require.Equal(t, "hello", board.Message.Unwrap())
	require.Equal(t, uint64(1), board.Sequence)
	require.Equal(t, deriveOwner(0, sk), board.Owner)

	require.Greater(t, ctx.State().Gauge().Reading(), uint64(0))
}

func TestContract_Post_Occupied(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	next := vm.NewContext(ctx.Address(), ctx.State(), nil)

	err := contract.Post(next, "world")
	require.EqualError(t, err, "attempted to post to an occupied board")
	require.True(t, IsAssertion(err))

	// The failed invocation leaves the standing post untouched.
	board, err := View(next.State().Root())
	require.NoError(t, err)
	require.Equal(t, Occupied, board.State)
	require.Equal(t, "hello", board.Message.Unwrap())
	require.Equal(t, uint64(1), board.Sequence)
}

func TestContract_TakeDown(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	next := vm.NewContext(ctx.Address(), ctx.State(), nil)

	message, err := contract.TakeDown(next)
	require.NoError(t, err)
	require.Equal(t, "hello", message)

	board, err := View(next.State().Root())
	require.NoError(t, err)
	require.Equal(t, Vacant, board.State)
	require.True(t, board.Message.IsNone())
	require.Equal(t, uint64(2), board.Sequence)
}

func TestContract_TakeDown_Empty(t *testing.T) {
	contract := NewContract(fakeWitness{sk: makeSecretKey(0xaa)})

	ctx := makeContext(t)

	_, err := contract.TakeDown(ctx)
	require.EqualError(t, err, "attempted to take down post from an empty board")
	require.True(t, IsAssertion(err))
}

func TestContract_TakeDown_WrongKey(t *testing.T) {
	contract := NewContract(fakeWitness{sk: makeSecretKey(0xaa)})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	intruder := NewContract(fakeWitness{sk: makeSecretKey(0xbb)})

	next := vm.NewContext(ctx.Address(), ctx.State(), nil)

	_, err := intruder.TakeDown(next)
	require.EqualError(t, err, "not the current owner")
	require.True(t, IsAssertion(err))

	board, err := View(next.State().Root())
	require.NoError(t, err)
	require.Equal(t, Occupied, board.State)
	require.Equal(t, "hello", board.Message.Unwrap())
	require.Equal(t, uint64(1), board.Sequence)
}

func TestContract_Repost(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "first"))

	first, err := View(ctx.State().Root())
	require.NoError(t, err)

	ctx = vm.NewContext(ctx.Address(), ctx.State(), nil)
	_, err = contract.TakeDown(ctx)
	require.NoError(t, err)

	ctx = vm.NewContext(ctx.Address(), ctx.State(), nil)
	require.NoError(t, contract.Post(ctx, "second"))

	second, err := View(ctx.State().Root())
	require.NoError(t, err)
	require.Equal(t, "second", second.Message.Unwrap())
	require.Equal(t, uint64(3), second.Sequence)
	require.Equal(t, deriveOwner(2, sk), second.Owner)

	// The same secret key yields an unlinkable key per post.
	require.NotEqual(t, first.Owner, second.Owner)
}

func TestContract_Post_WitnessFailure(t *testing.T) {
	contract := NewContract(fakeWitness{err: xerrors.New("oops")})

	err := contract.Post(makeContext(t), "hello")
	require.EqualError(t, err, "witness failed: oops")

	contract = NewContract(fakeWitness{sk: []byte{0xaa}})

	err = contract.Post(makeContext(t), "hello")
	require.EqualError(t, err, "shape error: secret key must be 32 bytes")
	require.True(t, IsShape(err))
}

func TestContract_Post_MessageTooLong(t *testing.T) {
	contract := NewContract(fakeWitness{sk: makeSecretKey(0xaa)})

	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}

	err := contract.Post(makeContext(t), string(long))
	require.EqualError(t, err,
		"couldn't encode message: string of 281 bytes is above maximum 280")
}

func TestContract_Post_PrivateState(t *testing.T) {
	witness := fakeWitness{sk: makeSecretKey(0xaa), private: "updated"}
	contract := NewContract(witness)

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	require.Equal(t, "updated", ctx.Private())
}

func TestContract_Transcript(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	tx := ctx.Recorder().Freeze()

	require.NotEmpty(t, tx.Public)
	require.Equal(t, transcript.OpIdx, tx.Public[0].Op)

	// The secret key only ever reaches the private transcript.
	require.False(t, bytes.Contains(tx.Input.Bytes(), sk))
	for _, entry := range tx.Public {
		if entry.Value != nil {
			require.False(t, bytes.Contains(entry.Value.Bytes(), sk))
		}
	}

	require.Len(t, tx.Private, 1)
	require.Equal(t, sk, tx.Private[0].Bytes())

	// The posted message is a persisted plaintext obligation.
	found := false
	for _, entry := range tx.Public {
		if entry.Value != nil && bytes.Contains(entry.Value.Bytes(), []byte("hello")) {
			found = true
		}
	}
	require.True(t, found)
}

func TestContract_PublicKey(t *testing.T) {
	sk := makeSecretKey(0xaa)
	contract := NewContract(fakeWitness{sk: sk})

	ctx := makeContext(t)
	require.NoError(t, contract.Post(ctx, "hello"))

	board, err := View(ctx.State().Root())
	require.NoError(t, err)

	var fixed [SecretKeySize]byte
	copy(fixed[:], sk)

	pk, err := contract.PublicKey(fixed, make([]byte, 8))
	require.NoError(t, err)
	require.Equal(t, board.Owner, pk)
}

func TestView_Malformed(t *testing.T) {
	_, err := View(state.NewNull())
	require.EqualError(t, err, "expected an array root but found null")

	_, err = View(state.NewArray(state.NewNull()))
	require.EqualError(t, err, "couldn't decode board state: expected a cell but found null")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeWitness struct {
	sk      []byte
	private interface{}
	err     error
}

func (w fakeWitness) LocalSecretKey(*vm.QueryContext) (interface{}, []byte, error) {
	return w.private, w.sk, w.err
}

func makeSecretKey(fill byte) []byte {
	sk := make([]byte, SecretKeySize)
	for i := range sk {
		sk[i] = fill
	}

	return sk
}

func makeContext(t *testing.T) *vm.QueryContext {
	t.Helper()

	root, err := NewLedgerState()
	require.NoError(t, err)

	return vm.NewContext([]byte{0xde, 0xad}, state.NewCharged(root), nil)
}

func deriveOwner(sequence uint64, sk []byte) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, sequence)

	h := sha256.New()
	h.Write([]byte(DomainTag))
	h.Write(buf)
	h.Write(sk)

	return h.Sum(nil)
}

// ensure the fake satisfies the capability.
var _ Witness = fakeWitness{}
