package escrow

import (
	"math/big"

	"matchpool/core/state"
	"matchpool/core/types"
)

// ModuleName is the name the escrow handler registers under; pause guards key
// on it.
const ModuleName = "escrow"

// Operation names served by the escrow handler.
const (
	OpCreateMatch      = "createMatch"
	OpJoinMatch        = "joinMatch"
	OpForfeitMatch     = "forfeitMatch"
	OpSetMatchReady    = "setMatchReady"
	OpMarkLoser        = "markLoser"
	OpResolveMatch     = "resolveMatch"
	OpGetMatch         = "getMatch"
	OpListUnstarted    = "listUnstarted"
	OpListOngoing      = "listOngoing"
	OpListByController = "listByController"
	OpListMatches      = "listMatches"
)

// Operations returns every operation name served by the escrow handler.
func Operations() []string {
	return []string{
		OpCreateMatch, OpJoinMatch, OpForfeitMatch, OpSetMatchReady, OpMarkLoser, OpResolveMatch,
		OpGetMatch, OpListUnstarted, OpListOngoing, OpListByController, OpListMatches,
	}
}

const (
	// DefaultPageLimit applies when a listing request leaves the limit unset.
	DefaultPageLimit = 50
	// MaxPageLimit caps a single listing page.
	MaxPageLimit = 500
)

type CreateMatchArgs struct {
	Controller      types.Identity   `json:"controller"`
	StakeAmount     *big.Int         `json:"stakeAmount"`
	MaxParticipants uint64           `json:"maxParticipants,omitempty"`
	AllowList       []types.Identity `json:"allowList,omitempty"`
}

type CreateMatchResult struct {
	MatchID uint64 `json:"matchId"`
}

type MatchArgs struct {
	MatchID uint64 `json:"matchId"`
}

type MarkLoserArgs struct {
	MatchID     uint64         `json:"matchId"`
	Participant types.Identity `json:"participant"`
}

type ResolveMatchArgs struct {
	MatchID              uint64 `json:"matchId"`
	ControllerFeePercent uint64 `json:"controllerFeePercent"`
}

// PageArgs paginates listings. A zero limit selects DefaultPageLimit.
type PageArgs struct {
	Offset uint64 `json:"offset,omitempty"`
	Limit  uint64 `json:"limit,omitempty"`
}

// ListByControllerArgs lists a controller's matches. When no inclusion flag is
// set every phase is included.
type ListByControllerArgs struct {
	Controller       types.Identity `json:"controller"`
	IncludeUnstarted bool           `json:"includeUnstarted,omitempty"`
	IncludeOngoing   bool           `json:"includeOngoing,omitempty"`
	IncludeEnded     bool           `json:"includeEnded,omitempty"`
	Offset           uint64         `json:"offset,omitempty"`
	Limit            uint64         `json:"limit,omitempty"`
}

// MatchFilter composes the listing predicates. A nil Controller matches every
// controller.
type MatchFilter struct {
	Controller       *types.Identity `json:"controller,omitempty"`
	IncludeUnstarted bool            `json:"includeUnstarted,omitempty"`
	IncludeOngoing   bool            `json:"includeOngoing,omitempty"`
	IncludeEnded     bool            `json:"includeEnded,omitempty"`
	Offset           uint64          `json:"offset,omitempty"`
	Limit            uint64          `json:"limit,omitempty"`
}

// MatchView is the read-only projection of a match returned by queries.
type MatchView struct {
	ID              uint64           `json:"id"`
	Controller      types.Identity   `json:"controller"`
	StakeAmount     *big.Int         `json:"stakeAmount"`
	MaxParticipants uint64           `json:"maxParticipants"`
	Phase           string           `json:"phase"`
	Participants    []types.Identity `json:"participants"`
	Losers          []types.Identity `json:"losers"`
	Forfeited       []types.Identity `json:"forfeited"`
	AllowList       []types.Identity `json:"allowList"`
	ActiveCount     uint64           `json:"activeCount"`
	CreatedAt       int64            `json:"createdAt"`
}

// MatchPage is one page of a listing. Total counts every match satisfying the
// filter, independent of pagination.
type MatchPage struct {
	Matches []MatchView `json:"matches"`
	Total   uint64      `json:"total"`
}

func nonNil(list []types.Identity) []types.Identity {
	if list == nil {
		return []types.Identity{}
	}
	return append([]types.Identity(nil), list...)
}

// NewMatchView projects a stored match.
func NewMatchView(m *state.Match) MatchView {
	stake := new(big.Int)
	if m.StakeAmount != nil {
		stake.Set(m.StakeAmount)
	}
	return MatchView{
		ID:              m.ID,
		Controller:      m.Controller,
		StakeAmount:     stake,
		MaxParticipants: m.MaxParticipants,
		Phase:           m.Phase.String(),
		Participants:    nonNil(m.Participants),
		Losers:          nonNil(m.Losers),
		Forfeited:       nonNil(m.Forfeited),
		AllowList:       nonNil(m.AllowList),
		ActiveCount:     m.ActiveCount(),
		CreatedAt:       int64(m.CreatedAt),
	}
}
