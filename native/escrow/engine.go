package escrow

import (
	"errors"
	"fmt"
	"math/big"

	coreerrors "matchpool/core/errors"
	"matchpool/core/state"
	"matchpool/core/types"
	"matchpool/native/common"
)

var errNilState = errors.New("escrow engine: state not configured")

// Engine runs the match lifecycle against the state carried by one call
// context. It keeps nothing between invocations.
type Engine struct {
	ctx *common.CallContext
}

// NewEngine binds an engine to a call context.
func NewEngine(ctx *common.CallContext) *Engine {
	return &Engine{ctx: ctx}
}

func (e *Engine) state() (*state.Manager, error) {
	if e == nil || e.ctx == nil || e.ctx.State == nil {
		return nil, errNilState
	}
	return e.ctx.State, nil
}

func (e *Engine) loadMatch(id uint64) (*state.Match, error) {
	st, err := e.state()
	if err != nil {
		return nil, err
	}
	match, ok, err := st.MatchGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrMatchNotFound, id)
	}
	return match, nil
}

func (e *Engine) storeMatch(m *state.Match) error {
	st, err := e.state()
	if err != nil {
		return err
	}
	return st.MatchPut(m)
}

// checkEntry rejects mutating calls while the module is paused or while a
// guarded operation is still running further up the call stack.
func (e *Engine) checkEntry() error {
	st, err := e.state()
	if err != nil {
		return err
	}
	if err := common.Guard(st, ModuleName); err != nil {
		return err
	}
	entered, err := st.ReentrancyEntered()
	if err != nil {
		return err
	}
	if entered {
		return coreerrors.ErrReentrantCall
	}
	return nil
}

// guarded runs fn with the reentrancy flag set. The flag is cleared when fn
// returns, whether or not it failed.
func (e *Engine) guarded(fn func() error) error {
	st, err := e.state()
	if err != nil {
		return err
	}
	if err := common.Guard(st, ModuleName); err != nil {
		return err
	}
	return st.NonReentrant(fn)
}

func (e *Engine) addCustody(id uint64, delta *big.Int) error {
	st, err := e.state()
	if err != nil {
		return err
	}
	current, err := st.MatchCustody(id)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("escrow: match %d custody underflow", id)
	}
	return st.SetMatchCustody(id, next)
}

func (e *Engine) requireValue(stake *big.Int) error {
	if e.ctx.Value == nil || e.ctx.Value.Cmp(stake) != 0 {
		return fmt.Errorf("%w: attached %s, stake %s", coreerrors.ErrValueMismatch, e.ctx.Value, stake)
	}
	return nil
}

// Create opens a match with the caller as first participant and returns its
// identifier. The attached value must equal the stake.
func (e *Engine) Create(controller types.Identity, stake *big.Int, maxParticipants uint64, allowList []types.Identity) (uint64, error) {
	if err := e.checkEntry(); err != nil {
		return 0, err
	}
	st, _ := e.state()
	if stake == nil || stake.Sign() <= 0 {
		return 0, coreerrors.ErrInvalidStake
	}
	if err := checkPoolFits(stake, 1); err != nil {
		return 0, err
	}
	if err := e.requireValue(stake); err != nil {
		return 0, err
	}
	if controller.IsZero() {
		return 0, coreerrors.ErrInvalidController
	}
	caller := e.ctx.Caller

	var allowed []types.Identity
	seen := make(map[types.Identity]struct{}, len(allowList)+1)
	for _, id := range allowList {
		if id.IsZero() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		allowed = append(allowed, id)
	}
	if len(allowed) > 0 {
		if _, ok := seen[caller]; !ok {
			allowed = append(allowed, caller)
		}
	}

	id, err := st.AllocateMatchID()
	if err != nil {
		return 0, err
	}
	match := &state.Match{
		ID:              id,
		Controller:      controller,
		StakeAmount:     new(big.Int).Set(stake),
		MaxParticipants: maxParticipants,
		Phase:           state.PhaseNotStarted,
		Participants:    []types.Identity{caller},
		AllowList:       allowed,
		CreatedAt:       uint64(e.ctx.Timestamp),
	}
	if err := e.storeMatch(match); err != nil {
		return 0, err
	}
	if err := e.addCustody(id, stake); err != nil {
		return 0, err
	}
	e.ctx.Emit(NewMatchCreatedEvent(match))
	return id, nil
}

// Join adds the caller to an unstarted match. The attached value must equal
// the stake.
func (e *Engine) Join(id uint64) error {
	if err := e.checkEntry(); err != nil {
		return err
	}
	match, err := e.loadMatch(id)
	if err != nil {
		return err
	}
	if match.Phase != state.PhaseNotStarted {
		return fmt.Errorf("%w: join in phase %s", coreerrors.ErrPhaseViolation, match.Phase)
	}
	if err := e.requireValue(match.StakeAmount); err != nil {
		return err
	}
	caller := e.ctx.Caller
	if match.IsParticipant(caller) {
		return coreerrors.ErrAlreadyJoined
	}
	if !match.IsAllowed(caller) {
		return coreerrors.ErrNotAllowed
	}
	if match.MaxParticipants > 0 && uint64(len(match.Participants)) >= match.MaxParticipants {
		return fmt.Errorf("%w: %d participants", coreerrors.ErrMatchFull, match.MaxParticipants)
	}
	if err := checkPoolFits(match.StakeAmount, len(match.Participants)+1); err != nil {
		return err
	}
	match.Participants = append(match.Participants, caller)
	if err := e.storeMatch(match); err != nil {
		return err
	}
	if err := e.addCustody(id, match.StakeAmount); err != nil {
		return err
	}
	e.ctx.Emit(NewParticipantJoinedEvent(match, caller))
	return nil
}

// Forfeit withdraws the caller from an unstarted match and refunds the stake.
// The forfeiture is recorded before the refund leaves the vault. When the last
// active participant leaves the match ends.
func (e *Engine) Forfeit(id uint64) error {
	return e.guarded(func() error {
		match, err := e.loadMatch(id)
		if err != nil {
			return err
		}
		if match.Phase != state.PhaseNotStarted {
			return fmt.Errorf("%w: forfeit in phase %s", coreerrors.ErrPhaseViolation, match.Phase)
		}
		caller := e.ctx.Caller
		if !match.IsParticipant(caller) {
			return coreerrors.ErrNotParticipant
		}
		if match.HasForfeited(caller) {
			return coreerrors.ErrAlreadyForfeited
		}
		match.Forfeited = append(match.Forfeited, caller)
		if match.ActiveCount() == 0 {
			match.Phase = state.PhaseEnded
		}
		if err := e.storeMatch(match); err != nil {
			return err
		}
		refund := new(big.Int).Set(match.StakeAmount)
		if err := e.addCustody(id, new(big.Int).Neg(refund)); err != nil {
			return err
		}
		e.ctx.Emit(NewParticipantForfeitedEvent(match, caller))
		if err := e.ctx.Transfer(caller, refund); err != nil {
			return fmt.Errorf("escrow: refund match %d: %w", id, err)
		}
		return nil
	})
}

func (e *Engine) loadControlled(id uint64) (*state.Match, error) {
	match, err := e.loadMatch(id)
	if err != nil {
		return nil, err
	}
	if e.ctx.Caller != match.Controller {
		return nil, coreerrors.ErrNotController
	}
	return match, nil
}

// SetReady starts the match. Only the controller may call it and at least one
// active participant must remain.
func (e *Engine) SetReady(id uint64) error {
	if err := e.checkEntry(); err != nil {
		return err
	}
	match, err := e.loadControlled(id)
	if err != nil {
		return err
	}
	if match.Phase != state.PhaseNotStarted {
		return fmt.Errorf("%w: ready in phase %s", coreerrors.ErrPhaseViolation, match.Phase)
	}
	if match.ActiveCount() == 0 {
		return coreerrors.ErrNoParticipants
	}
	match.Phase = state.PhaseReady
	if err := e.storeMatch(match); err != nil {
		return err
	}
	e.ctx.Emit(NewMatchReadyEvent(match))
	return nil
}

// MarkLoser records participant as a loser of a ready match.
func (e *Engine) MarkLoser(id uint64, participant types.Identity) error {
	if err := e.checkEntry(); err != nil {
		return err
	}
	match, err := e.loadControlled(id)
	if err != nil {
		return err
	}
	if match.Phase != state.PhaseReady {
		return fmt.Errorf("%w: mark loser in phase %s", coreerrors.ErrPhaseViolation, match.Phase)
	}
	if !match.IsParticipant(participant) {
		return coreerrors.ErrNotParticipant
	}
	if match.IsLoser(participant) {
		return coreerrors.ErrAlreadyLoser
	}
	if match.HasForfeited(participant) {
		return coreerrors.ErrParticipantForfeited
	}
	match.Losers = append(match.Losers, participant)
	if err := e.storeMatch(match); err != nil {
		return err
	}
	e.ctx.Emit(NewLoserMarkedEvent(match, participant))
	return nil
}

// Resolve ends a ready match and distributes the pooled stake. The phase
// becomes terminal before any transfer; a failed transfer fails the whole
// resolution.
func (e *Engine) Resolve(id uint64, controllerFeePercent uint64) (*Settlement, error) {
	var settlement *Settlement
	err := e.guarded(func() error {
		var err error
		settlement, err = e.resolve(id, controllerFeePercent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (e *Engine) resolve(id uint64, controllerFeePercent uint64) (*Settlement, error) {
	st, _ := e.state()
	match, err := e.loadControlled(id)
	if err != nil {
		return nil, err
	}
	if match.Phase != state.PhaseReady {
		return nil, fmt.Errorf("%w: resolve in phase %s", coreerrors.ErrPhaseViolation, match.Phase)
	}
	platformFeePercent, err := st.PlatformFeePercent()
	if err != nil {
		return nil, err
	}
	settlement, err := ComputeSettlement(match, platformFeePercent, controllerFeePercent)
	if err != nil {
		return nil, err
	}

	match.Phase = state.PhaseEnded
	if err := e.storeMatch(match); err != nil {
		return nil, err
	}
	if err := st.SetMatchCustody(id, big.NewInt(0)); err != nil {
		return nil, err
	}
	if !settlement.PlatformFee.IsZero() {
		retained, err := st.PlatformFeesRetained()
		if err != nil {
			return nil, err
		}
		if err := st.SetPlatformFeesRetained(retained.Add(retained, settlement.PlatformFee.ToBig())); err != nil {
			return nil, err
		}
	}
	e.ctx.Emit(NewMatchResolvedEvent(match, settlement, controllerFeePercent))

	if !settlement.ControllerFee.IsZero() {
		if err := e.ctx.Transfer(match.Controller, settlement.ControllerFee.ToBig()); err != nil {
			return nil, fmt.Errorf("escrow: controller fee for match %d: %w", id, err)
		}
		e.ctx.Emit(NewPayoutEvent(id, match.Controller, settlement.ControllerFee.Dec(), "controller_fee"))
	}
	for _, payout := range settlement.Payouts {
		if payout.Amount.IsZero() {
			continue
		}
		if err := e.ctx.Transfer(payout.Recipient, payout.Amount.ToBig()); err != nil {
			return nil, fmt.Errorf("escrow: payout for match %d: %w", id, err)
		}
		e.ctx.Emit(NewPayoutEvent(id, payout.Recipient, payout.Amount.Dec(), "prize"))
	}
	return settlement, nil
}
