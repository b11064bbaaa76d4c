package escrow

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "matchpool/core/errors"
	"matchpool/core/state"
	"matchpool/core/types"
)

var hundred = uint256.NewInt(100)

// Policy names how the prize pool was assigned.
type Policy string

const (
	// PolicyWinners splits the pool among participants that are neither losers
	// nor forfeited.
	PolicyWinners Policy = "winners"
	// PolicyNoWinners applies when every active participant was marked loser:
	// the pool is split among all non-forfeited participants with the same
	// share and remainder rule.
	PolicyNoWinners Policy = "no_winners"
)

// Payout is a single transfer out of the pool.
type Payout struct {
	Recipient types.Identity
	Amount    *uint256.Int
}

// Settlement is the complete outcome of resolving a match. The payouts plus
// both fees always add up to TotalStake.
type Settlement struct {
	TotalStake    *uint256.Int
	ControllerFee *uint256.Int
	PlatformFee   *uint256.Int
	PrizePool     *uint256.Int
	Share         *uint256.Int
	Remainder     *uint256.Int
	Policy        Policy
	Winners       []types.Identity
	Payouts       []Payout
}

// SplitEvenly divides pool across n recipients. Each receives floor(pool/n) and
// the first pool mod n recipients receive one extra unit, so the parts always
// sum to pool.
func SplitEvenly(pool *uint256.Int, n int) (share, remainder *uint256.Int, parts []*uint256.Int) {
	if n <= 0 {
		return new(uint256.Int), pool.Clone(), nil
	}
	count := uint256.NewInt(uint64(n))
	share = new(uint256.Int).Div(pool, count)
	remainder = new(uint256.Int).Mod(pool, count)
	extra := remainder.Uint64()
	parts = make([]*uint256.Int, n)
	for i := 0; i < n; i++ {
		part := share.Clone()
		if uint64(i) < extra {
			part.AddUint64(part, 1)
		}
		parts[i] = part
	}
	return share, remainder, parts
}

// percentOf returns floor(amount × percent / 100). The product is computed
// at double width so any amount that fits yields a fee that fits.
func percentOf(amount *uint256.Int, percent uint64) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(percent), hundred)
	if overflow {
		return nil, coreerrors.ErrAmountOverflow
	}
	return fee, nil
}

// checkPoolFits fails with ErrAmountOverflow unless participants stakes of
// the given size add up to a pool that fits in 256 bits.
func checkPoolFits(stake *big.Int, participants int) error {
	s, overflow := uint256.FromBig(stake)
	if overflow {
		return fmt.Errorf("%w: stake %s", coreerrors.ErrAmountOverflow, stake)
	}
	if _, overflow := new(uint256.Int).MulOverflow(s, uint256.NewInt(uint64(participants))); overflow {
		return fmt.Errorf("%w: %d stakes of %s", coreerrors.ErrAmountOverflow, participants, stake)
	}
	return nil
}

// ComputeSettlement derives the fee split and payouts for resolving m. Winners
// are participants minus losers minus forfeited, in join order.
func ComputeSettlement(m *state.Match, platformFeePercent, controllerFeePercent uint64) (*Settlement, error) {
	if platformFeePercent+controllerFeePercent > state.MaxFeePercent ||
		platformFeePercent > state.MaxFeePercent || controllerFeePercent > state.MaxFeePercent {
		return nil, fmt.Errorf("%w: platform %d%% + controller %d%%", coreerrors.ErrFeeOverflow, platformFeePercent, controllerFeePercent)
	}
	stake, overflow := uint256.FromBig(m.StakeAmount)
	if overflow {
		return nil, coreerrors.ErrAmountOverflow
	}
	total, overflow := new(uint256.Int).MulOverflow(stake, uint256.NewInt(m.ActiveCount()))
	if overflow {
		return nil, coreerrors.ErrAmountOverflow
	}
	controllerFee, err := percentOf(total, controllerFeePercent)
	if err != nil {
		return nil, err
	}
	platformFee, err := percentOf(total, platformFeePercent)
	if err != nil {
		return nil, err
	}
	pool := new(uint256.Int).Sub(total, controllerFee)
	pool.Sub(pool, platformFee)

	settlement := &Settlement{
		TotalStake:    total,
		ControllerFee: controllerFee,
		PlatformFee:   platformFee,
		PrizePool:     pool,
		Policy:        PolicyWinners,
	}

	var active []types.Identity
	for _, participant := range m.Participants {
		if m.HasForfeited(participant) {
			continue
		}
		active = append(active, participant)
		if !m.IsLoser(participant) {
			settlement.Winners = append(settlement.Winners, participant)
		}
	}
	recipients := settlement.Winners
	if len(recipients) == 0 {
		settlement.Policy = PolicyNoWinners
		recipients = active
	}
	if len(recipients) == 0 {
		if !pool.IsZero() {
			return nil, fmt.Errorf("escrow: match %d has a prize pool but no active participants", m.ID)
		}
		settlement.Share = new(uint256.Int)
		settlement.Remainder = new(uint256.Int)
		return settlement, nil
	}
	share, remainder, parts := SplitEvenly(pool, len(recipients))
	settlement.Share = share
	settlement.Remainder = remainder
	settlement.Payouts = make([]Payout, len(recipients))
	for i, recipient := range recipients {
		settlement.Payouts[i] = Payout{Recipient: recipient, Amount: parts[i]}
	}
	return settlement, nil
}

// Distributed returns the sum of payouts and both fees.
func (s *Settlement) Distributed() *big.Int {
	sum := new(uint256.Int).Add(s.ControllerFee, s.PlatformFee)
	for _, payout := range s.Payouts {
		sum.Add(sum, payout.Amount)
	}
	return sum.ToBig()
}
