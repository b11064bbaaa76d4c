package common

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "matchpool/core/errors"
	"matchpool/core/events"
	"matchpool/core/types"
)

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	require.NoError(t, Guard(nil, "escrow"))
	require.NoError(t, Guard(pauses{"escrow": true}, ""))
	require.NoError(t, Guard(pauses{}, "escrow"))
	require.ErrorIs(t, Guard(pauses{"escrow": true}, "escrow"), coreerrors.ErrModulePaused)
}

func TestDecodeArgs(t *testing.T) {
	var out struct {
		MatchID uint64 `json:"matchId"`
	}
	require.NoError(t, DecodeArgs(nil, &out))
	require.NoError(t, DecodeArgs([]byte(`{"matchId":7}`), &out))
	require.Equal(t, uint64(7), out.MatchID)

	err := DecodeArgs([]byte(`{"matchID":7,"extra":1}`), &out)
	require.ErrorIs(t, err, coreerrors.ErrInvalidArguments)
}

func TestCallContextTransferAndEmit(t *testing.T) {
	var buf events.Buffer
	var paid []types.Identity
	to := types.Identity{0x01}
	ctx := NewCallContext(context.Background(), nil, types.Identity{}, nil, &buf, nil, 0, func(recipient types.Identity, amount *big.Int) error {
		paid = append(paid, recipient)
		return nil
	})
	require.False(t, ctx.HasValue())

	require.NoError(t, ctx.Transfer(to, big.NewInt(0)))
	require.Empty(t, paid)
	require.NoError(t, ctx.Transfer(to, big.NewInt(3)))
	require.Equal(t, []types.Identity{to}, paid)

	ctx.Emit(&types.Event{Type: "match.created"})
	ctx.Emit(nil)
	require.Equal(t, 1, buf.Len())

	noTransfer := NewCallContext(nil, nil, types.Identity{}, big.NewInt(1), nil, nil, 0, nil)
	require.True(t, noTransfer.HasValue())
	require.Error(t, noTransfer.Transfer(to, big.NewInt(1)))
}
