package escrow

import (
	"matchpool/core/state"
)

// Get returns the view of a single match.
func (e *Engine) Get(id uint64) (MatchView, error) {
	match, err := e.loadMatch(id)
	if err != nil {
		return MatchView{}, err
	}
	return NewMatchView(match), nil
}

func (f MatchFilter) includes(m *state.Match) bool {
	if f.Controller != nil && *f.Controller != m.Controller {
		return false
	}
	switch m.Phase {
	case state.PhaseNotStarted:
		return f.IncludeUnstarted
	case state.PhaseReady:
		return f.IncludeOngoing
	case state.PhaseEnded:
		return f.IncludeEnded
	default:
		return false
	}
}

func pageLimit(limit uint64) uint64 {
	if limit == 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// List returns the matches satisfying filter in creation order, skipping
// filter.Offset matches and returning at most filter.Limit.
func (e *Engine) List(filter MatchFilter) (MatchPage, error) {
	st, err := e.state()
	if err != nil {
		return MatchPage{}, err
	}
	next, err := st.NextMatchID()
	if err != nil {
		return MatchPage{}, err
	}
	limit := pageLimit(filter.Limit)
	page := MatchPage{Matches: []MatchView{}}
	for id := uint64(0); id < next; id++ {
		match, ok, err := st.MatchGet(id)
		if err != nil {
			return MatchPage{}, err
		}
		if !ok || !filter.includes(match) {
			continue
		}
		if page.Total >= filter.Offset && uint64(len(page.Matches)) < limit {
			page.Matches = append(page.Matches, NewMatchView(match))
		}
		page.Total++
	}
	return page, nil
}

// ListUnstarted pages through matches still accepting participants.
func (e *Engine) ListUnstarted(args PageArgs) (MatchPage, error) {
	return e.List(MatchFilter{IncludeUnstarted: true, Offset: args.Offset, Limit: args.Limit})
}

// ListOngoing pages through ready matches awaiting resolution.
func (e *Engine) ListOngoing(args PageArgs) (MatchPage, error) {
	return e.List(MatchFilter{IncludeOngoing: true, Offset: args.Offset, Limit: args.Limit})
}

// ListByController pages through the matches a controller governs.
func (e *Engine) ListByController(args ListByControllerArgs) (MatchPage, error) {
	controller := args.Controller
	filter := MatchFilter{
		Controller:       &controller,
		IncludeUnstarted: args.IncludeUnstarted,
		IncludeOngoing:   args.IncludeOngoing,
		IncludeEnded:     args.IncludeEnded,
		Offset:           args.Offset,
		Limit:            args.Limit,
	}
	if !filter.IncludeUnstarted && !filter.IncludeOngoing && !filter.IncludeEnded {
		filter.IncludeUnstarted, filter.IncludeOngoing, filter.IncludeEnded = true, true, true
	}
	return e.List(filter)
}
