package escrow

import (
	"fmt"

	coreerrors "matchpool/core/errors"
	"matchpool/core/types"
	"matchpool/native/common"
)

// PayoutView is one transfer reported by a resolution.
type PayoutView struct {
	Recipient types.Identity `json:"recipient"`
	Amount    string         `json:"amount"`
}

// ResolveMatchResult reports how the pool of a resolved match was split.
type ResolveMatchResult struct {
	MatchID       uint64           `json:"matchId"`
	Policy        Policy           `json:"policy"`
	Winners       []types.Identity `json:"winners"`
	TotalStake    string           `json:"totalStake"`
	ControllerFee string           `json:"controllerFee"`
	PlatformFee   string           `json:"platformFee"`
	PrizePool     string           `json:"prizePool"`
	Share         string           `json:"share"`
	Remainder     string           `json:"remainder"`
	Payouts       []PayoutView     `json:"payouts"`
}

func newResolveMatchResult(id uint64, s *Settlement) ResolveMatchResult {
	out := ResolveMatchResult{
		MatchID:       id,
		Policy:        s.Policy,
		Winners:       nonNil(s.Winners),
		TotalStake:    s.TotalStake.Dec(),
		ControllerFee: s.ControllerFee.Dec(),
		PlatformFee:   s.PlatformFee.Dec(),
		PrizePool:     s.PrizePool.Dec(),
		Share:         s.Share.Dec(),
		Remainder:     s.Remainder.Dec(),
		Payouts:       make([]PayoutView, len(s.Payouts)),
	}
	for i, payout := range s.Payouts {
		out.Payouts[i] = PayoutView{Recipient: payout.Recipient, Amount: payout.Amount.Dec()}
	}
	return out
}

// Module is the escrow handler installed behind the router.
type Module struct {
	version string
}

// NewModule returns the escrow handler at the given version.
func NewModule(version string) *Module {
	if version == "" {
		version = "v1"
	}
	return &Module{version: version}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) Version() string { return m.version }

func (m *Module) Operations() []string { return Operations() }

func payable(op string) bool {
	return op == OpCreateMatch || op == OpJoinMatch
}

// Invoke decodes the arguments of op and runs it against the call context.
func (m *Module) Invoke(ctx *common.CallContext, op string, args []byte) ([]byte, error) {
	if ctx.HasValue() && !payable(op) {
		return nil, fmt.Errorf("%w: %s does not accept value", coreerrors.ErrValueMismatch, op)
	}
	engine := NewEngine(ctx)
	switch op {
	case OpCreateMatch:
		var in CreateMatchArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := engine.Create(in.Controller, in.StakeAmount, in.MaxParticipants, in.AllowList)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(CreateMatchResult{MatchID: id})
	case OpJoinMatch, OpForfeitMatch, OpSetMatchReady, OpGetMatch:
		var in MatchArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return m.invokeMatch(engine, op, in.MatchID)
	case OpMarkLoser:
		var in MarkLoserArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return nil, engine.MarkLoser(in.MatchID, in.Participant)
	case OpResolveMatch:
		var in ResolveMatchArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		settlement, err := engine.Resolve(in.MatchID, in.ControllerFeePercent)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(newResolveMatchResult(in.MatchID, settlement))
	case OpListUnstarted, OpListOngoing:
		var in PageArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		list := engine.ListUnstarted
		if op == OpListOngoing {
			list = engine.ListOngoing
		}
		page, err := list(in)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(page)
	case OpListByController:
		var in ListByControllerArgs
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		page, err := engine.ListByController(in)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(page)
	case OpListMatches:
		var in MatchFilter
		if err := common.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		page, err := engine.List(in)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(page)
	default:
		return nil, fmt.Errorf("%w: %s not served by %s", coreerrors.ErrOperationNotFound, op, ModuleName)
	}
}

func (m *Module) invokeMatch(engine *Engine, op string, id uint64) ([]byte, error) {
	switch op {
	case OpJoinMatch:
		return nil, engine.Join(id)
	case OpForfeitMatch:
		return nil, engine.Forfeit(id)
	case OpSetMatchReady:
		return nil, engine.SetReady(id)
	default:
		view, err := engine.Get(id)
		if err != nil {
			return nil, err
		}
		return common.EncodeResult(view)
	}
}
