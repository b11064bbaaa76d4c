package escrow

import (
	"strconv"
	"strings"

	"matchpool/core/state"
	"matchpool/core/types"
)

const (
	EventTypeMatchCreated   = "match.created"
	EventTypeMatchJoined    = "match.joined"
	EventTypeMatchForfeited = "match.forfeited"
	EventTypeMatchReady     = "match.ready"
	EventTypeLoserMarked    = "match.loser_marked"
	EventTypeMatchResolved  = "match.resolved"
	EventTypeMatchPayout    = "match.payout"
)

func joinIdentities(ids []types.Identity) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// SplitIdentities parses a comma-separated identity attribute.
func SplitIdentities(raw string) ([]types.Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]types.Identity, 0, len(parts))
	for _, part := range parts {
		id, err := types.ParseIdentity(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func newMatchEvent(eventType string, m *state.Match) *types.Event {
	attrs := make(map[string]string)
	if m == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["matchId"] = strconv.FormatUint(m.ID, 10)
	attrs["controller"] = m.Controller.String()
	attrs["phase"] = m.Phase.String()
	attrs["activeCount"] = strconv.FormatUint(m.ActiveCount(), 10)
	if m.StakeAmount != nil {
		attrs["stakeAmount"] = m.StakeAmount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewMatchCreatedEvent returns the payload for a newly created match.
func NewMatchCreatedEvent(m *state.Match) *types.Event {
	evt := newMatchEvent(EventTypeMatchCreated, m)
	if m != nil {
		evt.Attributes["creator"] = m.Participants[0].String()
		evt.Attributes["maxParticipants"] = strconv.FormatUint(m.MaxParticipants, 10)
		evt.Attributes["allowList"] = joinIdentities(m.AllowList)
		evt.Attributes["createdAt"] = strconv.FormatUint(m.CreatedAt, 10)
	}
	return evt
}

// NewParticipantJoinedEvent returns the payload emitted when a participant
// joins.
func NewParticipantJoinedEvent(m *state.Match, participant types.Identity) *types.Event {
	evt := newMatchEvent(EventTypeMatchJoined, m)
	evt.Attributes["participant"] = participant.String()
	return evt
}

// NewParticipantForfeitedEvent returns the payload emitted when a participant
// withdraws before the match starts.
func NewParticipantForfeitedEvent(m *state.Match, participant types.Identity) *types.Event {
	evt := newMatchEvent(EventTypeMatchForfeited, m)
	evt.Attributes["participant"] = participant.String()
	if m != nil && m.StakeAmount != nil {
		evt.Attributes["refund"] = m.StakeAmount.String()
	}
	return evt
}

// NewMatchReadyEvent returns the payload emitted when the controller starts the
// match.
func NewMatchReadyEvent(m *state.Match) *types.Event {
	return newMatchEvent(EventTypeMatchReady, m)
}

// NewLoserMarkedEvent returns the payload emitted when a participant is marked
// as a loser.
func NewLoserMarkedEvent(m *state.Match, participant types.Identity) *types.Event {
	evt := newMatchEvent(EventTypeLoserMarked, m)
	evt.Attributes["participant"] = participant.String()
	return evt
}

// NewMatchResolvedEvent returns the payload emitted when the pool is settled.
func NewMatchResolvedEvent(m *state.Match, s *Settlement, controllerFeePercent uint64) *types.Event {
	evt := newMatchEvent(EventTypeMatchResolved, m)
	if m != nil {
		evt.Attributes["losers"] = joinIdentities(m.Losers)
		evt.Attributes["forfeited"] = joinIdentities(m.Forfeited)
	}
	if s != nil {
		evt.Attributes["winners"] = joinIdentities(s.Winners)
		evt.Attributes["policy"] = string(s.Policy)
		evt.Attributes["totalStake"] = s.TotalStake.Dec()
		evt.Attributes["controllerFee"] = s.ControllerFee.Dec()
		evt.Attributes["controllerFeePercent"] = strconv.FormatUint(controllerFeePercent, 10)
		evt.Attributes["platformFee"] = s.PlatformFee.Dec()
		evt.Attributes["prizePool"] = s.PrizePool.Dec()
		evt.Attributes["share"] = s.Share.Dec()
		evt.Attributes["remainder"] = s.Remainder.Dec()
	}
	return evt
}

// NewPayoutEvent returns the payload emitted for each transfer out of a
// resolved pool. Kind is "prize" or "controller_fee".
func NewPayoutEvent(matchID uint64, recipient types.Identity, amount string, kind string) *types.Event {
	return &types.Event{
		Type: EventTypeMatchPayout,
		Attributes: map[string]string{
			"matchId":   strconv.FormatUint(matchID, 10),
			"recipient": recipient.String(),
			"amount":    amount,
			"kind":      kind,
		},
	}
}
