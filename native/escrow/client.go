package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"matchpool/core/types"
)

// Dispatcher is the router entry point the client drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, op string, args []byte, caller types.Identity, value *big.Int) ([]byte, error)
}

// Client offers typed access to the escrow operations through a Dispatcher.
type Client struct {
	d Dispatcher
}

func NewClient(d Dispatcher) *Client {
	return &Client{d: d}
}

func (c *Client) call(ctx context.Context, op string, caller types.Identity, value *big.Int, args interface{}, out interface{}) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("escrow client: encode %s: %w", op, err)
	}
	result, err := c.d.Dispatch(ctx, op, payload, caller, value)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("escrow client: decode %s: %w", op, err)
	}
	return nil
}

// CreateMatch opens a match, attaching value as the caller's stake.
func (c *Client) CreateMatch(ctx context.Context, caller types.Identity, value *big.Int, args CreateMatchArgs) (uint64, error) {
	var out CreateMatchResult
	if err := c.call(ctx, OpCreateMatch, caller, value, args, &out); err != nil {
		return 0, err
	}
	return out.MatchID, nil
}

func (c *Client) JoinMatch(ctx context.Context, caller types.Identity, value *big.Int, id uint64) error {
	return c.call(ctx, OpJoinMatch, caller, value, MatchArgs{MatchID: id}, nil)
}

func (c *Client) ForfeitMatch(ctx context.Context, caller types.Identity, id uint64) error {
	return c.call(ctx, OpForfeitMatch, caller, nil, MatchArgs{MatchID: id}, nil)
}

func (c *Client) SetMatchReady(ctx context.Context, caller types.Identity, id uint64) error {
	return c.call(ctx, OpSetMatchReady, caller, nil, MatchArgs{MatchID: id}, nil)
}

func (c *Client) MarkLoser(ctx context.Context, caller types.Identity, id uint64, participant types.Identity) error {
	return c.call(ctx, OpMarkLoser, caller, nil, MarkLoserArgs{MatchID: id, Participant: participant}, nil)
}

func (c *Client) ResolveMatch(ctx context.Context, caller types.Identity, id uint64, controllerFeePercent uint64) (ResolveMatchResult, error) {
	var out ResolveMatchResult
	err := c.call(ctx, OpResolveMatch, caller, nil, ResolveMatchArgs{MatchID: id, ControllerFeePercent: controllerFeePercent}, &out)
	return out, err
}

func (c *Client) GetMatch(ctx context.Context, id uint64) (MatchView, error) {
	var out MatchView
	err := c.call(ctx, OpGetMatch, types.Identity{}, nil, MatchArgs{MatchID: id}, &out)
	return out, err
}

func (c *Client) ListUnstarted(ctx context.Context, offset, limit uint64) (MatchPage, error) {
	var out MatchPage
	err := c.call(ctx, OpListUnstarted, types.Identity{}, nil, PageArgs{Offset: offset, Limit: limit}, &out)
	return out, err
}

func (c *Client) ListOngoing(ctx context.Context, offset, limit uint64) (MatchPage, error) {
	var out MatchPage
	err := c.call(ctx, OpListOngoing, types.Identity{}, nil, PageArgs{Offset: offset, Limit: limit}, &out)
	return out, err
}

func (c *Client) ListByController(ctx context.Context, args ListByControllerArgs) (MatchPage, error) {
	var out MatchPage
	err := c.call(ctx, OpListByController, types.Identity{}, nil, args, &out)
	return out, err
}

func (c *Client) ListMatches(ctx context.Context, filter MatchFilter) (MatchPage, error) {
	var out MatchPage
	err := c.call(ctx, OpListMatches, types.Identity{}, nil, filter, &out)
	return out, err
}
