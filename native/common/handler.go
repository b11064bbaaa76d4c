package common

import (
	"context"
	"math/big"

	"matchpool/core/events"
	"matchpool/core/state"
	"matchpool/core/types"
)

// Handler is a logic module installed behind the router. Modules hold no state
// of their own: every invocation receives the shared state region through the
// CallContext, so swapping a module is a pure table update.
type Handler interface {
	// Name identifies the module; it is also the key used by pause guards.
	Name() string
	// Version distinguishes redeployments of the same module.
	Version() string
	// Operations lists the operation names the module can serve.
	Operations() []string
	// Invoke executes op with the JSON-encoded args and returns a JSON result.
	Invoke(ctx *CallContext, op string, args []byte) ([]byte, error)
}

// TransferFunc releases amount from the vault to the recipient, running any
// logic the recipient attached to inbound transfers.
type TransferFunc func(to types.Identity, amount *big.Int) error

// ModuleDirectory reports which module addresses have code deployed.
type ModuleDirectory interface {
	IsDeployed(addr types.ModuleAddress) bool
}

// CallContext carries everything a handler may touch during one invocation.
type CallContext struct {
	Context   context.Context
	State     *state.Manager
	Caller    types.Identity
	Value     *big.Int
	Emitter   events.Emitter
	Modules   ModuleDirectory
	Timestamp int64

	transfer TransferFunc
}

// NewCallContext assembles a call context. A nil transfer function makes every
// transfer fail.
func NewCallContext(ctx context.Context, st *state.Manager, caller types.Identity, value *big.Int, emitter events.Emitter, modules ModuleDirectory, now int64, transfer TransferFunc) *CallContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &CallContext{
		Context:   ctx,
		State:     st,
		Caller:    caller,
		Value:     new(big.Int).Set(value),
		Emitter:   emitter,
		Modules:   modules,
		Timestamp: now,
		transfer:  transfer,
	}
}

// Transfer pays amount out of the vault to the recipient.
func (c *CallContext) Transfer(to types.Identity, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if c.transfer == nil {
		return errNoTransfer
	}
	return c.transfer(to, amount)
}

// Emit publishes a notification through the context's emitter.
func (c *CallContext) Emit(evt *types.Event) {
	if c == nil || c.Emitter == nil || evt == nil {
		return
	}
	c.Emitter.Emit(events.Record{Evt: evt})
}

// HasValue reports whether a non-zero value was attached.
func (c *CallContext) HasValue() bool {
	return c.Value != nil && c.Value.Sign() != 0
}
