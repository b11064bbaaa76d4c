package escrow

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	coreerrors "matchpool/core/errors"
	"matchpool/core/state"
	"matchpool/core/types"
)

func ident(fill byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

func readyMatch(stake int64, participants ...types.Identity) *state.Match {
	return &state.Match{
		ID:           1,
		Controller:   ident(0xC0),
		StakeAmount:  big.NewInt(stake),
		Phase:        state.PhaseReady,
		Participants: participants,
	}
}

func TestSplitEvenly(t *testing.T) {
	share, remainder, parts := SplitEvenly(uint256.NewInt(14), 3)
	require.Equal(t, uint64(4), share.Uint64())
	require.Equal(t, uint64(2), remainder.Uint64())
	require.Equal(t, []uint64{5, 5, 4}, []uint64{parts[0].Uint64(), parts[1].Uint64(), parts[2].Uint64()})

	share, remainder, parts = SplitEvenly(uint256.NewInt(2), 5)
	require.True(t, share.IsZero())
	require.Equal(t, uint64(2), remainder.Uint64())
	require.Equal(t, uint64(1), parts[1].Uint64())
	require.True(t, parts[2].IsZero())

	share, remainder, parts = SplitEvenly(uint256.NewInt(9), 0)
	require.True(t, share.IsZero())
	require.Equal(t, uint64(9), remainder.Uint64())
	require.Nil(t, parts)
}

func TestSplitEvenlyAlwaysSumsToPool(t *testing.T) {
	for pool := uint64(0); pool < 60; pool++ {
		for n := 1; n <= 7; n++ {
			_, _, parts := SplitEvenly(uint256.NewInt(pool), n)
			sum := new(uint256.Int)
			for _, p := range parts {
				sum.Add(sum, p)
			}
			require.Equal(t, pool, sum.Uint64(), "pool %d split %d", pool, n)
		}
	}
}

func TestComputeSettlementWinners(t *testing.T) {
	a, b, c := ident(0x0A), ident(0x0B), ident(0x0C)
	m := readyMatch(100, a, b, c)
	m.Losers = []types.Identity{b}

	s, err := ComputeSettlement(m, 10, 5)
	require.NoError(t, err)
	require.Equal(t, PolicyWinners, s.Policy)
	require.Equal(t, []types.Identity{a, c}, s.Winners)
	require.Equal(t, uint64(300), s.TotalStake.Uint64())
	require.Equal(t, uint64(15), s.ControllerFee.Uint64())
	require.Equal(t, uint64(30), s.PlatformFee.Uint64())
	require.Equal(t, uint64(255), s.PrizePool.Uint64())
	require.Equal(t, uint64(127), s.Share.Uint64())
	require.Equal(t, uint64(1), s.Remainder.Uint64())
	require.Equal(t, a, s.Payouts[0].Recipient)
	require.Equal(t, uint64(128), s.Payouts[0].Amount.Uint64())
	require.Equal(t, uint64(127), s.Payouts[1].Amount.Uint64())
	require.Equal(t, 0, s.Distributed().Cmp(big.NewInt(300)))
}

func TestComputeSettlementExcludesForfeited(t *testing.T) {
	a, b, c := ident(0x0A), ident(0x0B), ident(0x0C)
	m := readyMatch(7, a, b, c)
	m.Forfeited = []types.Identity{a}
	m.Losers = []types.Identity{b, c}

	s, err := ComputeSettlement(m, 0, 0)
	require.NoError(t, err)
	require.Equal(t, PolicyNoWinners, s.Policy)
	require.Empty(t, s.Winners)
	require.Len(t, s.Payouts, 2)
	require.Equal(t, b, s.Payouts[0].Recipient)
	require.Equal(t, c, s.Payouts[1].Recipient)
	require.Equal(t, uint64(14), s.TotalStake.Uint64())
	require.Equal(t, 0, s.Distributed().Cmp(big.NewInt(14)))
}

func TestComputeSettlementFeeBounds(t *testing.T) {
	m := readyMatch(10, ident(0x0A))
	_, err := ComputeSettlement(m, 60, 41)
	require.ErrorIs(t, err, coreerrors.ErrFeeOverflow)
	_, err = ComputeSettlement(m, 0, 101)
	require.ErrorIs(t, err, coreerrors.ErrFeeOverflow)

	s, err := ComputeSettlement(m, 40, 60)
	require.NoError(t, err)
	require.True(t, s.PrizePool.IsZero())
	require.Equal(t, 0, s.Distributed().Cmp(big.NewInt(10)))
}

func TestComputeSettlementOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	m := readyMatch(0, ident(0x0A), ident(0x0B))
	m.StakeAmount = huge
	_, err := ComputeSettlement(m, 0, 0)
	require.ErrorIs(t, err, coreerrors.ErrAmountOverflow)

	m.StakeAmount = new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = ComputeSettlement(m, 0, 0)
	require.ErrorIs(t, err, coreerrors.ErrAmountOverflow)
}

func TestComputeSettlementFeesOnLargePool(t *testing.T) {
	m := readyMatch(0, ident(0x0A), ident(0x0B), ident(0x0C))
	m.StakeAmount = new(big.Int).Lsh(big.NewInt(1), 254)
	s, err := ComputeSettlement(m, 5, 10)
	require.NoError(t, err)
	total := new(big.Int).Mul(m.StakeAmount, big.NewInt(3))
	require.Equal(t, 0, s.TotalStake.ToBig().Cmp(total))
	require.Equal(t, 0, s.PlatformFee.ToBig().Cmp(new(big.Int).Div(new(big.Int).Mul(total, big.NewInt(5)), big.NewInt(100))))
	require.Equal(t, 0, s.Distributed().Cmp(total))
}
