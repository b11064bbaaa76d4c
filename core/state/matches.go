package state

import (
	"fmt"
	"math/big"

	"matchpool/core/types"
)

// Phase is the lifecycle position of a match. Phases only move forward.
type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseReady
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseReady:
		return "ready"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Valid reports whether the phase value is within the supported range.
func (p Phase) Valid() bool {
	return p <= PhaseEnded
}

// Match is the persisted record of a single staked match. The layout is owned
// by the state package so handler modules can be replaced without migrating
// records. Participants keep join order; Losers and Forfeited are subsets of
// Participants kept in the order they were recorded.
type Match struct {
	ID              uint64
	Controller      types.Identity
	StakeAmount     *big.Int
	MaxParticipants uint64
	Phase           Phase
	Participants    []types.Identity
	Losers          []types.Identity
	Forfeited       []types.Identity
	AllowList       []types.Identity
	CreatedAt       uint64
}

// ActiveCount is the number of participants whose stake is still custodied.
func (m *Match) ActiveCount() uint64 {
	return uint64(len(m.Participants) - len(m.Forfeited))
}

func contains(list []types.Identity, id types.Identity) bool {
	for _, entry := range list {
		if entry == id {
			return true
		}
	}
	return false
}

func (m *Match) IsParticipant(id types.Identity) bool { return contains(m.Participants, id) }

func (m *Match) IsLoser(id types.Identity) bool { return contains(m.Losers, id) }

func (m *Match) HasForfeited(id types.Identity) bool { return contains(m.Forfeited, id) }

// IsAllowed reports whether id may join. An empty allow-list admits everyone.
func (m *Match) IsAllowed(id types.Identity) bool {
	return len(m.AllowList) == 0 || contains(m.AllowList, id)
}

// Clone returns a deep copy of the match.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	clone := *m
	clone.StakeAmount = new(big.Int)
	if m.StakeAmount != nil {
		clone.StakeAmount.Set(m.StakeAmount)
	}
	clone.Participants = append([]types.Identity(nil), m.Participants...)
	clone.Losers = append([]types.Identity(nil), m.Losers...)
	clone.Forfeited = append([]types.Identity(nil), m.Forfeited...)
	clone.AllowList = append([]types.Identity(nil), m.AllowList...)
	return &clone
}

// NextMatchID returns the identifier the next created match will receive.
func (m *Manager) NextMatchID() (uint64, error) {
	var next uint64
	if _, err := m.KVGet(nextMatchIDKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// AllocateMatchID reserves the next identifier.
func (m *Manager) AllocateMatchID() (uint64, error) {
	next, err := m.NextMatchID()
	if err != nil {
		return 0, err
	}
	if err := m.KVPut(nextMatchIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// MatchGet loads the match stored under id.
func (m *Manager) MatchGet(id uint64) (*Match, bool, error) {
	match := new(Match)
	ok, err := m.KVGet(uint64Key(matchPrefix, id), match)
	if err != nil || !ok {
		return nil, false, err
	}
	if match.StakeAmount == nil {
		match.StakeAmount = big.NewInt(0)
	}
	return match, true, nil
}

// MatchPut persists the match record.
func (m *Manager) MatchPut(match *Match) error {
	if match == nil {
		return fmt.Errorf("state: nil match")
	}
	if !match.Phase.Valid() {
		return fmt.Errorf("state: invalid match phase %d", match.Phase)
	}
	if len(match.Forfeited) > len(match.Participants) {
		return fmt.Errorf("state: match %d forfeits exceed participants", match.ID)
	}
	return m.KVPut(uint64Key(matchPrefix, match.ID), match)
}
