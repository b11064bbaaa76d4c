package router

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "matchpool/core/errors"
	"matchpool/core/events"
	"matchpool/core/state"
	"matchpool/core/types"
	"matchpool/native/admin"
	"matchpool/native/common"
	"matchpool/native/escrow"
	"matchpool/storage"
)

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func ident(fill byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneToken)
}

type fixture struct {
	t          *testing.T
	router     *Router
	log        *events.Log
	client     *escrow.Client
	admin      types.Identity
	controller types.Identity
	escrowAddr types.ModuleAddress
}

func newFixture(t *testing.T, platformFee uint64, funded ...types.Identity) *fixture {
	t.Helper()
	r := New(storage.NewMemDB())
	log := events.NewLog(0)
	r.SetEmitter(log)

	f := &fixture{t: t, router: r, log: log, client: escrow.NewClient(r), admin: ident(0xAD), controller: ident(0xC0)}
	require.NoError(t, r.Bootstrap(f.admin, platformFee))
	_, err := r.Install(f.admin, admin.NewModule(""))
	require.NoError(t, err)
	f.escrowAddr, err = r.Install(f.admin, escrow.NewModule(""))
	require.NoError(t, err)
	for _, id := range funded {
		require.NoError(t, r.Fund(id, tokens(100)))
	}
	return f
}

func (f *fixture) balance(id types.Identity) *big.Int {
	f.t.Helper()
	bal, err := f.router.Balance(id)
	require.NoError(f.t, err)
	return bal
}

func (f *fixture) custody(id uint64) *big.Int {
	f.t.Helper()
	var out *big.Int
	require.NoError(f.t, f.router.View(func(st *state.Manager) error {
		var err error
		out, err = st.MatchCustody(id)
		return err
	}))
	return out
}

func (f *fixture) retained() *big.Int {
	f.t.Helper()
	var out *big.Int
	require.NoError(f.t, f.router.View(func(st *state.Manager) error {
		var err error
		out, err = st.PlatformFeesRetained()
		return err
	}))
	return out
}

// openMatch creates a match with players[0] as creator and joins the rest.
func (f *fixture) openMatch(stake *big.Int, players ...types.Identity) uint64 {
	f.t.Helper()
	ctx := context.Background()
	id, err := f.client.CreateMatch(ctx, players[0], stake, escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: stake})
	require.NoError(f.t, err)
	for _, p := range players[1:] {
		require.NoError(f.t, f.client.JoinMatch(ctx, p, stake, id))
	}
	return id
}

func (f *fixture) requireCustodyMatchesActive(id uint64) {
	f.t.Helper()
	view, err := f.client.GetMatch(context.Background(), id)
	require.NoError(f.t, err)
	expected := new(big.Int).Mul(view.StakeAmount, new(big.Int).SetUint64(view.ActiveCount))
	if view.Phase == state.PhaseEnded.String() {
		expected = big.NewInt(0)
	}
	require.Equal(f.t, 0, expected.Cmp(f.custody(id)), "custody %s, expected %s", f.custody(id), expected)
}

func requireAmount(t *testing.T, expected, actual *big.Int) {
	t.Helper()
	require.Equal(t, 0, expected.Cmp(actual), "expected %s, got %s", expected, actual)
}

func TestResolveTwoPlayersWithPlatformFee(t *testing.T) {
	a, b := ident(0xA1), ident(0xB1)
	f := newFixture(t, 10, a, b)
	ctx := context.Background()

	id := f.openMatch(oneToken, a, b)
	f.requireCustodyMatchesActive(id)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, b))

	res, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)
	require.Equal(t, escrow.PolicyWinners, res.Policy)
	require.Equal(t, []types.Identity{a}, res.Winners)

	// 2 tokens pooled, 10% retained, the single winner receives 1.8.
	requireAmount(t, new(big.Int).Add(tokens(99), new(big.Int).Div(tokens(18), big.NewInt(10))), f.balance(a))
	requireAmount(t, tokens(99), f.balance(b))
	requireAmount(t, new(big.Int).Div(tokens(2), big.NewInt(10)), f.retained())
	requireAmount(t, f.retained(), f.balance(state.VaultIdentity))

	view, err := f.client.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "ended", view.Phase)
	f.requireCustodyMatchesActive(id)
}

func TestResolveFourPlayersTwoWinners(t *testing.T) {
	p1, p2, p3, p4 := ident(0x01), ident(0x02), ident(0x03), ident(0x04)
	f := newFixture(t, 20, p1, p2, p3, p4)
	ctx := context.Background()

	id := f.openMatch(oneToken, p1, p2, p3, p4)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, p2))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, p4))

	res, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)
	require.Equal(t, []types.Identity{p1, p3}, res.Winners)
	require.Equal(t, "1600000000000000000", res.Share)
	require.Equal(t, "0", res.Remainder)
	require.Equal(t, "800000000000000000", res.PlatformFee)

	gain := new(big.Int).Div(tokens(16), big.NewInt(10))
	requireAmount(t, new(big.Int).Add(tokens(99), gain), f.balance(p1))
	requireAmount(t, new(big.Int).Add(tokens(99), gain), f.balance(p3))
	requireAmount(t, tokens(99), f.balance(p2))
	requireAmount(t, tokens(99), f.balance(p4))
}

func TestResolveRemainderGoesToEarliestWinners(t *testing.T) {
	a, b, c := ident(0x0A), ident(0x0B), ident(0x0C)
	f := newFixture(t, 10, a, b, c)
	ctx := context.Background()

	stake := big.NewInt(5)
	id := f.openMatch(stake, a, b, c)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	res, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)

	// 15 pooled, platform fee 1, 14 split three ways: 5, 5, 4.
	require.Equal(t, "1", res.PlatformFee)
	require.Equal(t, "4", res.Share)
	require.Equal(t, "2", res.Remainder)
	require.Len(t, res.Payouts, 3)
	require.Equal(t, "5", res.Payouts[0].Amount)
	require.Equal(t, "5", res.Payouts[1].Amount)
	require.Equal(t, "4", res.Payouts[2].Amount)

	base := tokens(100)
	requireAmount(t, new(big.Int).Add(base, big.NewInt(0)), f.balance(a))
	requireAmount(t, new(big.Int).Add(base, big.NewInt(0)), f.balance(b))
	requireAmount(t, new(big.Int).Sub(base, big.NewInt(1)), f.balance(c))
}

func TestResolveAllLosersSplitsAmongActive(t *testing.T) {
	a, b, c, d := ident(0x0A), ident(0x0B), ident(0x0C), ident(0x0D)
	f := newFixture(t, 10, a, b, c, d)
	ctx := context.Background()

	stake := big.NewInt(5)
	id := f.openMatch(stake, a, b, c, d)
	require.NoError(t, f.client.ForfeitMatch(ctx, d, id))
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	for _, p := range []types.Identity{a, b, c} {
		require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, p))
	}
	require.ErrorIs(t, f.client.MarkLoser(ctx, f.controller, id, d), coreerrors.ErrParticipantForfeited)

	res, err := f.client.ResolveMatch(ctx, f.controller, id, 5)
	require.NoError(t, err)
	require.Equal(t, escrow.PolicyNoWinners, res.Policy)
	require.Empty(t, res.Winners)
	require.Len(t, res.Payouts, 3)

	total := big.NewInt(0)
	for _, key := range []string{res.ControllerFee, res.PlatformFee} {
		v, ok := new(big.Int).SetString(key, 10)
		require.True(t, ok)
		total.Add(total, v)
	}
	for _, p := range res.Payouts {
		v, ok := new(big.Int).SetString(p.Amount, 10)
		require.True(t, ok)
		total.Add(total, v)
	}
	requireAmount(t, big.NewInt(15), total)
	requireAmount(t, tokens(100), f.balance(d))
}

func TestForfeitLastParticipantEndsMatch(t *testing.T) {
	a := ident(0x0A)
	f := newFixture(t, 0, a)
	ctx := context.Background()

	id := f.openMatch(oneToken, a)
	requireAmount(t, tokens(99), f.balance(a))
	require.NoError(t, f.client.ForfeitMatch(ctx, a, id))

	view, err := f.client.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "ended", view.Phase)
	require.Zero(t, view.ActiveCount)
	requireAmount(t, tokens(100), f.balance(a))
	f.requireCustodyMatchesActive(id)

	require.ErrorIs(t, f.client.ForfeitMatch(ctx, a, id), coreerrors.ErrPhaseViolation)
	require.ErrorIs(t, f.client.SetMatchReady(ctx, f.controller, id), coreerrors.ErrPhaseViolation)
}

func TestJoinFailuresLeaveMatchUnchanged(t *testing.T) {
	a, b, c, outsider := ident(0x0A), ident(0x0B), ident(0x0C), ident(0x0F)
	f := newFixture(t, 0, a, b, c, outsider)
	ctx := context.Background()

	id, err := f.client.CreateMatch(ctx, a, oneToken, escrow.CreateMatchArgs{
		Controller:      f.controller,
		StakeAmount:     oneToken,
		MaxParticipants: 2,
		AllowList:       []types.Identity{b, c},
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.client.JoinMatch(ctx, b, big.NewInt(1), id), coreerrors.ErrValueMismatch)
	require.ErrorIs(t, f.client.JoinMatch(ctx, a, oneToken, id), coreerrors.ErrAlreadyJoined)
	require.ErrorIs(t, f.client.JoinMatch(ctx, outsider, oneToken, id), coreerrors.ErrNotAllowed)
	require.NoError(t, f.client.JoinMatch(ctx, b, oneToken, id))
	require.ErrorIs(t, f.client.JoinMatch(ctx, c, oneToken, id), coreerrors.ErrMatchFull)

	view, err := f.client.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []types.Identity{a, b}, view.Participants)
	requireAmount(t, tokens(100), f.balance(c))
	requireAmount(t, tokens(100), f.balance(outsider))
	f.requireCustodyMatchesActive(id)

	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.ErrorIs(t, f.client.JoinMatch(ctx, c, oneToken, id), coreerrors.ErrPhaseViolation)
}

func TestCreateMatchValidation(t *testing.T) {
	a := ident(0x0A)
	f := newFixture(t, 0, a)
	ctx := context.Background()

	_, err := f.client.CreateMatch(ctx, a, big.NewInt(0), escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: big.NewInt(0)})
	require.ErrorIs(t, err, coreerrors.ErrInvalidStake)
	_, err = f.client.CreateMatch(ctx, a, big.NewInt(2), escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: big.NewInt(1)})
	require.ErrorIs(t, err, coreerrors.ErrValueMismatch)
	_, err = f.client.CreateMatch(ctx, a, big.NewInt(1), escrow.CreateMatchArgs{StakeAmount: big.NewInt(1)})
	require.ErrorIs(t, err, coreerrors.ErrInvalidController)
	_, err = f.client.CreateMatch(ctx, a, tokens(1000), escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: tokens(1000)})
	require.ErrorIs(t, err, coreerrors.ErrInsufficientBalance)

	requireAmount(t, tokens(100), f.balance(a))
	page, err := f.client.ListMatches(ctx, escrow.MatchFilter{IncludeUnstarted: true, IncludeOngoing: true, IncludeEnded: true})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestControllerGates(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 10, a, b)
	ctx := context.Background()

	id := f.openMatch(oneToken, a, b)
	require.ErrorIs(t, f.client.SetMatchReady(ctx, a, id), coreerrors.ErrNotController)
	require.ErrorIs(t, f.client.MarkLoser(ctx, f.controller, id, b), coreerrors.ErrPhaseViolation)
	_, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.ErrorIs(t, err, coreerrors.ErrPhaseViolation)

	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.ErrorIs(t, f.client.MarkLoser(ctx, a, id, b), coreerrors.ErrNotController)
	require.ErrorIs(t, f.client.MarkLoser(ctx, f.controller, id, ident(0x77)), coreerrors.ErrNotParticipant)
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, b))
	require.ErrorIs(t, f.client.MarkLoser(ctx, f.controller, id, b), coreerrors.ErrAlreadyLoser)
	require.ErrorIs(t, f.client.ForfeitMatch(ctx, a, id), coreerrors.ErrPhaseViolation)

	_, err = f.client.ResolveMatch(ctx, a, id, 0)
	require.ErrorIs(t, err, coreerrors.ErrNotController)
	_, err = f.client.ResolveMatch(ctx, f.controller, id, 91)
	require.ErrorIs(t, err, coreerrors.ErrFeeOverflow)

	_, err = f.client.GetMatch(ctx, 99)
	require.ErrorIs(t, err, coreerrors.ErrMatchNotFound)
}

func TestControllerFeePaidToController(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 10, a, b)
	ctx := context.Background()

	id := f.openMatch(big.NewInt(100), a, b)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, b))
	res, err := f.client.ResolveMatch(ctx, f.controller, id, 5)
	require.NoError(t, err)
	require.Equal(t, "10", res.ControllerFee)
	require.Equal(t, "20", res.PlatformFee)
	require.Equal(t, "170", res.PrizePool)
	requireAmount(t, big.NewInt(10), f.balance(f.controller))
	requireAmount(t, new(big.Int).Add(tokens(100), big.NewInt(70)), f.balance(a))
}

func TestRegisterIsAtomic(t *testing.T) {
	f := newFixture(t, 0)
	before, err := f.router.Operations()
	require.NoError(t, err)

	err = f.router.RegisterOperations(f.admin, f.escrowAddr, []string{"fresh", escrow.OpCreateMatch})
	require.ErrorIs(t, err, coreerrors.ErrOperationAlreadyRegistered)
	after, err := f.router.Operations()
	require.NoError(t, err)
	require.Equal(t, before, after)

	err = f.router.RegisterOperations(f.admin, f.escrowAddr, []string{"dup", "dup"})
	require.ErrorIs(t, err, coreerrors.ErrOperationAlreadyRegistered)
	_, ok, err := f.router.Lookup("dup")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, f.router.RegisterOperations(ident(0x01), f.escrowAddr, []string{"x"}), coreerrors.ErrNotAdministrator)
	require.ErrorIs(t, f.router.RegisterOperations(f.admin, types.ModuleAddress{}, []string{"x"}), coreerrors.ErrZeroModule)
	var ghost types.ModuleAddress
	ghost[0] = 0x42
	require.ErrorIs(t, f.router.RegisterOperations(f.admin, ghost, []string{"x"}), coreerrors.ErrModuleNotDeployed)
	require.ErrorIs(t, f.router.RemoveOperations(f.admin, []string{"missing"}), coreerrors.ErrOperationNotFound)
	require.ErrorIs(t, f.router.ReplaceOperations(f.admin, f.escrowAddr, []string{"missing"}), coreerrors.ErrOperationNotFound)
}

type echoModule struct{ ops []string }

func (m *echoModule) Name() string         { return "echo" }
func (m *echoModule) Version() string      { return "v1" }
func (m *echoModule) Operations() []string { return m.ops }
func (m *echoModule) Invoke(_ *common.CallContext, op string, _ []byte) ([]byte, error) {
	return json.Marshal(op)
}

func TestIsDeployedDuringDeploy(t *testing.T) {
	f := newFixture(t, 0)
	addr := f.router.Deploy(&echoModule{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			f.router.Deploy(&echoModule{})
		}
	}()
	for i := 0; i < 100; i++ {
		require.True(t, f.router.IsDeployed(addr))
		require.True(t, f.router.IsDeployed(f.escrowAddr))
	}
	<-done
}

func TestRemoveSwapsLastIntoSlot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	addr := f.router.Deploy(&echoModule{})
	require.NoError(t, f.router.RegisterOperations(f.admin, addr, []string{"e1", "e2", "e3", "e4"}))

	base, err := f.router.Operations()
	require.NoError(t, err)
	e2, ok, err := f.router.Lookup("e2")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.router.RemoveOperations(f.admin, []string{"e2"}))
	names, err := f.router.Operations()
	require.NoError(t, err)
	require.Len(t, names, len(base)-1)
	require.Equal(t, "e4", names[e2.Index])
	moved, ok, err := f.router.Lookup("e4")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e2.Index, moved.Index)

	_, err = f.router.Dispatch(ctx, "e2", nil, f.admin, nil)
	require.ErrorIs(t, err, coreerrors.ErrOperationNotFound)
	out, err := f.router.Dispatch(ctx, "e4", nil, f.admin, nil)
	require.NoError(t, err)
	require.JSONEq(t, `"e4"`, string(out))
}

func TestReplaceModuleKeepsMatches(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 0, a, b)
	ctx := context.Background()
	id := f.openMatch(oneToken, a)

	v2, err := f.router.Install(f.admin, escrow.NewModule("v2"))
	require.NoError(t, err)
	require.NotEqual(t, f.escrowAddr, v2)
	entry, ok, err := f.router.Lookup(escrow.OpJoinMatch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, v2, entry.Module)

	require.NoError(t, f.client.JoinMatch(ctx, b, oneToken, id))
	view, err := f.client.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []types.Identity{a, b}, view.Participants)
}

func TestValueOnNonPayableOperation(t *testing.T) {
	a := ident(0x0A)
	f := newFixture(t, 0, a)
	ctx := context.Background()
	id := f.openMatch(oneToken, a)

	payload, err := json.Marshal(escrow.MatchArgs{MatchID: id})
	require.NoError(t, err)
	_, err = f.router.Dispatch(ctx, escrow.OpForfeitMatch, payload, a, big.NewInt(1))
	require.ErrorIs(t, err, coreerrors.ErrValueMismatch)
	_, err = f.router.Dispatch(ctx, admin.OpGetConfig, nil, a, big.NewInt(1))
	require.ErrorIs(t, err, coreerrors.ErrValueMismatch)
	requireAmount(t, tokens(99), f.balance(a))
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	a := ident(0x0A)
	f := newFixture(t, 0, a)
	ctx := context.Background()
	id := f.openMatch(oneToken, a)

	pause, err := json.Marshal(admin.SetModulePausedArgs{Module: escrow.ModuleName, Paused: true})
	require.NoError(t, err)
	_, err = f.router.Dispatch(ctx, admin.OpSetModulePaused, pause, a, nil)
	require.ErrorIs(t, err, coreerrors.ErrNotAdministrator)
	_, err = f.router.Dispatch(ctx, admin.OpSetModulePaused, pause, f.admin, nil)
	require.NoError(t, err)

	_, err = f.client.CreateMatch(ctx, a, oneToken, escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: oneToken})
	require.ErrorIs(t, err, coreerrors.ErrModulePaused)
	require.ErrorIs(t, f.client.ForfeitMatch(ctx, a, id), coreerrors.ErrModulePaused)
	_, err = f.client.GetMatch(ctx, id)
	require.NoError(t, err)
}

func TestFailedDispatchPublishesNothing(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 0, a, b)
	ctx := context.Background()

	id := f.openMatch(oneToken, a)
	published := f.log.Len()
	require.Equal(t, 1, published)

	require.ErrorIs(t, f.client.JoinMatch(ctx, b, big.NewInt(3), id), coreerrors.ErrValueMismatch)
	require.Equal(t, published, f.log.Len())

	require.NoError(t, f.client.JoinMatch(ctx, b, oneToken, id))
	records := f.log.Since(0, 0)
	require.Len(t, records, 2)
	require.Equal(t, escrow.EventTypeMatchCreated, records[0].Type)
	require.Equal(t, escrow.EventTypeMatchJoined, records[1].Type)
	require.Less(t, records[0].Sequence, records[1].Sequence)
}

func TestReentrantForfeitDuringResolve(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 0, a, b)
	ctx := context.Background()

	other := f.openMatch(oneToken, a)
	id := f.openMatch(oneToken, a, b)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, b))

	var reentryErr error
	f.router.SetReceiver(a, ReceiverFunc(func(ctx context.Context, d Dispatcher, _ *big.Int) error {
		reentryErr = escrow.NewClient(d).ForfeitMatch(ctx, a, other)
		return nil
	}))
	_, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)
	require.ErrorIs(t, reentryErr, coreerrors.ErrReentrantCall)

	view, err := f.client.GetMatch(ctx, other)
	require.NoError(t, err)
	require.Equal(t, []types.Identity{a}, view.Participants)
	require.Empty(t, view.Forfeited)
	f.requireCustodyMatchesActive(other)
	requireAmount(t, new(big.Int).Add(tokens(98), tokens(2)), f.balance(a))
}

func TestRejectedTransferRollsBackResolution(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 10, a, b)
	ctx := context.Background()

	id := f.openMatch(oneToken, a, b)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	require.NoError(t, f.client.MarkLoser(ctx, f.controller, id, b))
	published := f.log.Len()

	f.router.SetReceiver(a, ReceiverFunc(func(ctx context.Context, d Dispatcher, _ *big.Int) error {
		return escrow.NewClient(d).ForfeitMatch(ctx, a, id)
	}))
	_, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.ErrorIs(t, err, coreerrors.ErrTransferRejected)
	require.ErrorIs(t, err, coreerrors.ErrReentrantCall)

	view, err := f.client.GetMatch(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "ready", view.Phase)
	f.requireCustodyMatchesActive(id)
	requireAmount(t, tokens(99), f.balance(a))
	requireAmount(t, big.NewInt(0), f.retained())
	require.Equal(t, published, f.log.Len())

	f.router.SetReceiver(a, nil)
	_, err = f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)
}

func TestWithdrawPlatformFeesRejectsReentry(t *testing.T) {
	a, b, treasury := ident(0x0A), ident(0x0B), ident(0x7E)
	f := newFixture(t, 50, a, b)
	ctx := context.Background()

	id := f.openMatch(big.NewInt(10), a, b)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, id))
	_, err := f.client.ResolveMatch(ctx, f.controller, id, 0)
	require.NoError(t, err)
	requireAmount(t, big.NewInt(10), f.retained())
	published := f.log.Len()

	f.router.SetReceiver(treasury, ReceiverFunc(func(ctx context.Context, d Dispatcher, amount *big.Int) error {
		_, err := escrow.NewClient(d).CreateMatch(ctx, treasury, amount, escrow.CreateMatchArgs{Controller: f.controller, StakeAmount: amount})
		return err
	}))
	payload, err := json.Marshal(admin.WithdrawPlatformFeesArgs{To: treasury})
	require.NoError(t, err)
	_, err = f.router.Dispatch(ctx, admin.OpWithdrawPlatformFees, payload, f.admin, nil)
	require.ErrorIs(t, err, coreerrors.ErrTransferRejected)
	require.ErrorIs(t, err, coreerrors.ErrReentrantCall)

	requireAmount(t, big.NewInt(10), f.retained())
	requireAmount(t, big.NewInt(0), f.balance(treasury))
	require.Equal(t, published, f.log.Len())

	f.router.SetReceiver(treasury, nil)
	_, err = f.router.Dispatch(ctx, admin.OpWithdrawPlatformFees, payload, f.admin, nil)
	require.NoError(t, err)
	requireAmount(t, big.NewInt(10), f.balance(treasury))
	requireAmount(t, big.NewInt(0), f.retained())

	_, err = f.router.Dispatch(ctx, admin.OpWithdrawPlatformFees, payload, f.admin, nil)
	require.ErrorIs(t, err, coreerrors.ErrNoFeesRetained)
}

func TestBootstrapOnlyOnce(t *testing.T) {
	r := New(storage.NewMemDB())
	require.ErrorIs(t, r.Bootstrap(types.Identity{}, 0), coreerrors.ErrInvalidAdministrator)
	require.ErrorIs(t, r.Bootstrap(ident(0x01), 101), coreerrors.ErrInvalidFee)
	require.NoError(t, r.Bootstrap(ident(0x01), 5))
	require.ErrorIs(t, r.Bootstrap(ident(0x02), 5), coreerrors.ErrAlreadyInitialized)

	_, err := r.Dispatch(context.Background(), escrow.OpGetMatch, nil, ident(0x01), nil)
	require.ErrorIs(t, err, coreerrors.ErrOperationNotFound)
}

func TestListingsAndPagination(t *testing.T) {
	a, b := ident(0x0A), ident(0x0B)
	f := newFixture(t, 0, a, b)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.openMatch(big.NewInt(1), a)
	}
	ready := f.openMatch(big.NewInt(1), a, b)
	require.NoError(t, f.client.SetMatchReady(ctx, f.controller, ready))

	unstarted, err := f.client.ListUnstarted(ctx, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, unstarted.Total)
	require.Len(t, unstarted.Matches, 3)

	page, err := f.client.ListUnstarted(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Matches, 1)
	require.EqualValues(t, 1, page.Matches[0].ID)

	ongoing, err := f.client.ListOngoing(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, ongoing.Matches, 1)
	require.Equal(t, ready, ongoing.Matches[0].ID)
	require.EqualValues(t, 2, ongoing.Matches[0].ActiveCount)

	byController, err := f.client.ListByController(ctx, escrow.ListByControllerArgs{Controller: f.controller})
	require.NoError(t, err)
	require.EqualValues(t, 4, byController.Total)
	none, err := f.client.ListByController(ctx, escrow.ListByControllerArgs{Controller: a})
	require.NoError(t, err)
	require.Zero(t, none.Total)
}
