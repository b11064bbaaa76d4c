// Package router hosts the handler modules and routes every operation name
// to the module currently registered for it. Each top-level dispatch runs as
// one atomic frame over the shared state region.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "matchpool/core/errors"
	"matchpool/core/events"
	"matchpool/core/state"
	"matchpool/core/types"
	"matchpool/crypto"
	"matchpool/native/admin"
	"matchpool/native/common"
	"matchpool/observability/metrics"
	"matchpool/storage"
)

// MaxCallDepth bounds how deep receiver hooks may nest dispatches.
const MaxCallDepth = 16

var errCallDepth = errors.New("router: call depth exceeded")

// Dispatcher executes a named operation on behalf of caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int) ([]byte, error)
}

// Receiver runs when value is transferred to the identity it is attached to.
// The dispatcher it is handed executes inside the transfer's frame, so an
// error returned by the receiver rejects the transfer.
type Receiver interface {
	Receive(ctx context.Context, d Dispatcher, amount *big.Int) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(ctx context.Context, d Dispatcher, amount *big.Int) error

func (f ReceiverFunc) Receive(ctx context.Context, d Dispatcher, amount *big.Int) error {
	return f(ctx, d, amount)
}

// Router owns the state region and the deployed module code.
type Router struct {
	mu sync.Mutex

	// modulesMu guards modules. IsDeployed runs inside frames that already
	// hold mu, so the code table has its own lock.
	modulesMu sync.RWMutex
	modules   map[types.ModuleAddress]common.Handler

	state     *state.Manager
	receivers map[types.Identity]Receiver
	pending   events.Buffer

	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.RouterMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// New returns a router persisting its state region in db.
func New(db storage.Database) *Router {
	return &Router{
		state:     state.NewManager(db),
		modules:   make(map[types.ModuleAddress]common.Handler),
		receivers: make(map[types.Identity]Receiver),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		metrics:   metrics.Router(),
		tracer:    otel.Tracer("matchpool/router"),
		now:       time.Now,
	}
}

// SetEmitter configures where committed notifications are published.
func (r *Router) SetEmitter(emitter events.Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Router) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetNowFunc overrides the clock used to stamp invocations.
func (r *Router) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	r.now = now
}

// SetReceiver attaches inbound-transfer logic to id. A nil receiver detaches
// any existing hook.
func (r *Router) SetReceiver(id types.Identity, recv Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if recv == nil {
		delete(r.receivers, id)
		return
	}
	r.receivers[id] = recv
}

// Deploy installs handler code in the host and returns its module address.
// Deploying only makes the code addressable; no operation routes to it until
// it is registered.
func (r *Router) Deploy(h common.Handler) types.ModuleAddress {
	addr := types.ModuleAddress(crypto.ModuleAddress(h.Name(), h.Version()))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modulesMu.Lock()
	r.modules[addr] = h
	r.modulesMu.Unlock()
	r.logger.Info("module deployed",
		slog.String("module", h.Name()),
		slog.String("version", h.Version()),
		slog.String("address", addr.String()))
	return addr
}

// IsDeployed reports whether code exists at addr.
func (r *Router) IsDeployed(addr types.ModuleAddress) bool {
	_, ok := r.handler(addr)
	return ok
}

func (r *Router) handler(addr types.ModuleAddress) (common.Handler, bool) {
	r.modulesMu.RLock()
	defer r.modulesMu.RUnlock()
	h, ok := r.modules[addr]
	return h, ok
}

// frame runs fn as one atomic unit. Failures discard every write and queued
// notification; success commits state in a single batch and then publishes
// the notifications in emission order.
func (r *Router) frame(fn func() error) error {
	if err := fn(); err != nil {
		r.state.Discard()
		r.pending.Drain()
		return err
	}
	queued := r.pending.Drain()
	for _, evt := range queued {
		seq, err := r.state.NextEventSequence()
		if err != nil {
			r.state.Discard()
			return err
		}
		if payload := evt.Event(); payload != nil {
			payload.Sequence = seq
		}
	}
	if err := r.state.Commit(); err != nil {
		r.state.Discard()
		return fmt.Errorf("router: commit: %w", err)
	}
	for _, evt := range queued {
		r.emitter.Emit(evt)
	}
	return nil
}

// Bootstrap performs the one-time initialization of the administrator and the
// platform fee.
func (r *Router) Bootstrap(administrator types.Identity, feePercent uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.frame(func() error {
		return admin.Bootstrap(r.state, administrator, feePercent)
	})
	if err != nil {
		return err
	}
	r.logger.Info("router bootstrapped",
		slog.String("administrator", administrator.String()),
		slog.Uint64("platformFeePercent", feePercent))
	return nil
}

// Fund credits genesis balances. It is only meant for initial allocation and
// local testing.
func (r *Router) Fund(id types.Identity, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame(func() error {
		return r.state.Credit(id, amount)
	})
}

// RegisterOperations binds names to module. Only the administrator may call it.
func (r *Router) RegisterOperations(caller types.Identity, module types.ModuleAddress, names []string) error {
	return r.mutateRegistry("register", names, func() error {
		return admin.RegisterOperations(r.state, r, caller, module, names)
	})
}

// ReplaceOperations repoints already-registered names at module.
func (r *Router) ReplaceOperations(caller types.Identity, module types.ModuleAddress, names []string) error {
	return r.mutateRegistry("replace", names, func() error {
		return admin.ReplaceOperations(r.state, r, caller, module, names)
	})
}

// RemoveOperations unregisters names.
func (r *Router) RemoveOperations(caller types.Identity, names []string) error {
	return r.mutateRegistry("remove", names, func() error {
		return admin.RemoveOperations(r.state, caller, names)
	})
}

func (r *Router) mutateRegistry(kind string, names []string, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.frame(fn); err != nil {
		return err
	}
	r.metrics.IncRegistryChange(kind)
	r.logger.Info("registry updated", slog.String("kind", kind), slog.Any("operations", names))
	return nil
}

// Install deploys h and points every operation it serves at it, registering
// missing names and replacing names bound elsewhere.
func (r *Router) Install(caller types.Identity, h common.Handler) (types.ModuleAddress, error) {
	addr := r.Deploy(h)
	var missing, stale []string
	r.mu.Lock()
	for _, name := range h.Operations() {
		entry, ok, err := r.state.RegistryLookup(name)
		if err != nil {
			r.mu.Unlock()
			return addr, err
		}
		switch {
		case !ok:
			missing = append(missing, name)
		case entry.Module != addr:
			stale = append(stale, name)
		}
	}
	r.mu.Unlock()
	if len(missing) > 0 {
		if err := r.RegisterOperations(caller, addr, missing); err != nil {
			return addr, err
		}
	}
	if len(stale) > 0 {
		if err := r.ReplaceOperations(caller, addr, stale); err != nil {
			return addr, err
		}
	}
	return addr, nil
}

// Operations returns the registered operation names in list order.
func (r *Router) Operations() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RegistryNames()
}

// Lookup returns the registry entry for name.
func (r *Router) Lookup(name string) (state.RegistryEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RegistryLookup(name)
}

// Balance returns the spendable balance of id.
func (r *Router) Balance(id types.Identity) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Balance(id)
}

// View runs fn against committed state. Writes made by fn are discarded.
func (r *Router) View(fn func(st *state.Manager) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.state.Discard()
	return fn(r.state)
}

// Dispatch looks up op and invokes its module with the supplied arguments.
// Attached value moves from the caller into the vault before the handler
// runs. The invocation is atomic: any error leaves state and notifications
// exactly as they were.
func (r *Router) Dispatch(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("operation", op),
		attribute.String("caller", caller.String()),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []byte
	err := r.frame(func() error {
		var err error
		result, err = r.invoke(ctx, op, args, caller, value, 0)
		return err
	})
	outcome := "ok"
	if err != nil {
		outcome = coreerrors.Classify(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("dispatch failed",
			slog.String("operation", op),
			slog.String("caller", caller.String()),
			slog.String("error", err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.metrics.ObserveDispatch(op, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// invoke routes one call. It runs with the router lock held.
func (r *Router) invoke(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int, depth int) ([]byte, error) {
	if depth > MaxCallDepth {
		return nil, errCallDepth
	}
	entry, ok, err := r.state.RegistryLookup(op)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrOperationNotFound, op)
	}
	handler, ok := r.handler(entry.Module)
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrModuleNotDeployed, entry.Module)
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", coreerrors.ErrValueMismatch)
	}
	if err := r.state.Move(caller, state.VaultIdentity, value); err != nil {
		return nil, err
	}
	transfer := func(to types.Identity, amount *big.Int) error {
		return r.transfer(ctx, to, amount, depth)
	}
	call := common.NewCallContext(ctx, r.state, caller, value, &r.pending, r, r.now().Unix(), transfer)
	return handler.Invoke(call, op, args)
}

// transfer pays amount from the vault to recipient and runs the recipient's
// receive hook. A rejected transfer leaves no trace of the hook's work.
func (r *Router) transfer(ctx context.Context, to types.Identity, amount *big.Int, depth int) error {
	snap := r.state.Snapshot()
	mark := r.pending.Len()
	fail := func(err error) error {
		r.state.RevertToSnapshot(snap)
		r.pending.Truncate(mark)
		r.metrics.ObserveTransfer(ctx, amount, false)
		return err
	}
	if err := r.state.Move(state.VaultIdentity, to, amount); err != nil {
		return fail(err)
	}
	if recv, ok := r.receivers[to]; ok {
		nested := &nestedDispatcher{router: r, depth: depth + 1}
		if err := recv.Receive(ctx, nested, new(big.Int).Set(amount)); err != nil {
			return fail(fmt.Errorf("%w: %w", coreerrors.ErrTransferRejected, err))
		}
	}
	r.metrics.ObserveTransfer(ctx, amount, true)
	return nil
}

// nestedDispatcher re-enters the router from inside a receive hook. The router
// lock is already held by the outer dispatch, so calls run without locking in
// a child frame of the outer journal.
type nestedDispatcher struct {
	router *Router
	depth  int
}

func (n *nestedDispatcher) Dispatch(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int) ([]byte, error) {
	r := n.router
	snap := r.state.Snapshot()
	mark := r.pending.Len()
	result, err := r.invoke(ctx, op, args, caller, value, n.depth)
	if err != nil {
		r.state.RevertToSnapshot(snap)
		r.pending.Truncate(mark)
		return nil, err
	}
	return result, nil
}
