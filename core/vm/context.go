package vm

import (
	"github.com/rs/xid"
	"go.dedis.ch/slate/core/state"
	"go.dedis.ch/slate/core/transcript"
)

// QueryContext is the ephemeral context of a single circuit invocation.
// It wraps the charged state, the contract address, the private witness
// state, and a fresh transcript recorder. It is exclusively owned by the
// invocation that created it and never shared across invocations.
type QueryContext struct {
	id       xid.ID
	address  []byte
	state    state.Charged
	private  interface{}
	rec      *transcript.Recorder
	detached bool
}

// NewContext returns a context for an invocation against the contract at
// the address, with the charged state supplied by the ledger.
func NewContext(address []byte, charged state.Charged, private interface{}) *QueryContext {
	return &QueryContext{
		id:      xid.New(),
		address: address,
		state:   charged,
		private: private,
		rec:     transcript.NewRecorder(),
	}
}

// NewDetached returns a scratch context for pure-circuit evaluation. It
// has no persistence target: its state is an empty tree that is discarded
// when the call returns.
func NewDetached() *QueryContext {
	ctx := NewContext(nil, state.NewCharged(state.NewNull()), nil)
	ctx.detached = true

	return ctx
}

// ID returns the unique identifier of the invocation.
func (ctx *QueryContext) ID() xid.ID {
	return ctx.id
}

// Address returns the contract address.
func (ctx *QueryContext) Address() []byte {
	return ctx.address
}

// State returns the current charged state.
func (ctx *QueryContext) State() state.Charged {
	return ctx.state
}

// SetState installs the charged state into the context. It is called once
// at the end of a successful invocation so that no partial write is ever
// visible.
func (ctx *QueryContext) SetState(charged state.Charged) {
	ctx.state = charged
}

// Private returns the private witness state.
func (ctx *QueryContext) Private() interface{} {
	return ctx.private
}

// SetPrivate replaces the private witness state.
func (ctx *QueryContext) SetPrivate(private interface{}) {
	ctx.private = private
}

// Recorder returns the transcript recorder of the invocation.
func (ctx *QueryContext) Recorder() *transcript.Recorder {
	return ctx.rec
}

// Detached returns true when the context has no persistence target.
func (ctx *QueryContext) Detached() bool {
	return ctx.detached
}
