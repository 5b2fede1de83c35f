package matchdb

import (
	"context"
	"strconv"
	"sync"

	"github.com/samborkent/uuidv7"
)

// Memory is an in-process Store and Feed for local runs and tests. It keeps
// the broker contract honest: events are delivered to every subscriber,
// including the writer itself, and with DuplicateDelivery set each event
// arrives twice so consumers cannot get away with assuming exactly-once.
type Memory struct {
	// DuplicateDelivery re-sends every event once to exercise the
	// at-least-once handling of consumers.
	DuplicateDelivery bool

	mu        sync.Mutex
	matches   map[string]*Match
	games     map[string]map[int]*Game
	lineups   map[string]map[string]*Lineup
	proposals map[string]map[string]*Proposal
	subs      map[string][]chan Event
}

func NewMemory() *Memory {
	return &Memory{
		matches:   map[string]*Match{},
		games:     map[string]map[int]*Game{},
		lineups:   map[string]map[string]*Lineup{},
		proposals: map[string]map[string]*Proposal{},
		subs:      map[string][]chan Event{},
	}
}

func (m *Memory) CreateMatch(ctx context.Context, match *Match, games []Game) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuidv7.New().String()
	cp := *match
	cp.ID = id
	m.matches[id] = &cp
	m.games[id] = map[int]*Game{}
	for i := range games {
		g := games[i]
		g.MatchID = id
		m.games[id][g.GameNumber] = &g
	}
	return id, nil
}

func (m *Memory) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (m *Memory) UpdateMatch(ctx context.Context, matchID string, upd MatchUpdate) error {
	m.mu.Lock()
	match, ok := m.matches[matchID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if upd.Status != nil {
		match.Status = *upd.Status
	}
	if upd.VerifiedByHome != nil {
		match.VerifiedByHome = *upd.VerifiedByHome
	}
	if upd.VerifiedByAway != nil {
		match.VerifiedByAway = *upd.VerifiedByAway
	}
	match.MutationToken = upd.MutationToken
	match.MutatedBy = upd.MutatedBy

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableMatch,
		MatchID:       matchID,
		DocID:         matchID,
		MutationToken: upd.MutationToken,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetGame(ctx context.Context, matchID string, gameNumber int) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	game, ok := m.games[matchID][gameNumber]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *game
	return &cp, nil
}

func (m *Memory) ListGames(ctx context.Context, matchID string) ([]Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.games[matchID]
	games := make([]Game, 0, len(rows))
	max := 0
	for n := range rows {
		if n > max {
			max = n
		}
	}
	for n := 1; n <= max; n++ {
		if g, ok := rows[n]; ok {
			games = append(games, *g)
		}
	}
	return games, nil
}

func (m *Memory) InsertGames(ctx context.Context, matchID string, games []Game) error {
	m.mu.Lock()
	rows, ok := m.games[matchID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for i := range games {
		g := games[i]
		if _, exists := rows[g.GameNumber]; exists {
			continue
		}
		g.MatchID = matchID
		rows[g.GameNumber] = &g
		m.publish(Event{
			Kind:          EventCreated,
			Table:         TableGames,
			MatchID:       matchID,
			DocID:         strconv.Itoa(g.GameNumber),
			GameNumber:    g.GameNumber,
			MutationToken: g.MutationToken,
		})
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateGame(ctx context.Context, matchID string, gameNumber int, upd GameUpdate) error {
	m.mu.Lock()
	game, ok := m.games[matchID][gameNumber]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if upd.ClearWinner {
		game.WinnerTeamID = nil
		game.WinnerPlayerID = nil
	} else {
		if upd.WinnerTeamID != nil {
			game.WinnerTeamID = upd.WinnerTeamID
		}
		if upd.WinnerPlayerID != nil {
			game.WinnerPlayerID = upd.WinnerPlayerID
		}
	}
	if upd.ConfirmedByHome != nil {
		game.ConfirmedByHome = *upd.ConfirmedByHome
	}
	if upd.ConfirmedByAway != nil {
		game.ConfirmedByAway = *upd.ConfirmedByAway
	}
	if upd.BreakAndRun != nil {
		game.BreakAndRun = *upd.BreakAndRun
	}
	if upd.GoldenBreak != nil {
		game.GoldenBreak = *upd.GoldenBreak
	}
	if upd.ClearConfirmedAt {
		game.ConfirmedAt = nil
	} else if upd.ConfirmedAt != nil {
		game.ConfirmedAt = upd.ConfirmedAt
	}
	game.MutationToken = upd.MutationToken
	game.MutatedBy = upd.MutatedBy

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableGames,
		MatchID:       matchID,
		DocID:         strconv.Itoa(gameNumber),
		GameNumber:    gameNumber,
		MutationToken: upd.MutationToken,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetLineup(ctx context.Context, matchID, teamID string) (*Lineup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lineup, ok := m.lineups[matchID][teamID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lineup
	cp.Players = append([]LineupSlot(nil), lineup.Players...)
	return &cp, nil
}

func (m *Memory) SetLineup(ctx context.Context, matchID string, lineup *Lineup) error {
	m.mu.Lock()
	if m.lineups[matchID] == nil {
		m.lineups[matchID] = map[string]*Lineup{}
	}
	cp := *lineup
	cp.MatchID = matchID
	cp.Players = append([]LineupSlot(nil), lineup.Players...)
	m.lineups[matchID][lineup.TeamID] = &cp

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableLineups,
		MatchID:       matchID,
		DocID:         lineup.TeamID,
		MutationToken: lineup.MutationToken,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateLineupSlot(ctx context.Context, matchID, teamID string, position int, playerID, token, actor string) error {
	m.mu.Lock()
	lineup, ok := m.lineups[matchID][teamID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if position < 1 || position > len(lineup.Players) {
		m.mu.Unlock()
		return ErrBadPosition
	}
	lineup.Players[position-1].PlayerID = playerID
	lineup.MutationToken = token
	lineup.MutatedBy = actor

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableLineups,
		MatchID:       matchID,
		DocID:         teamID,
		MutationToken: token,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) LockLineup(ctx context.Context, matchID, teamID, token string) error {
	m.mu.Lock()
	lineup, ok := m.lineups[matchID][teamID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	lineup.Locked = true
	lineup.MutationToken = token
	lineup.MutatedBy = teamID

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableLineups,
		MatchID:       matchID,
		DocID:         teamID,
		MutationToken: token,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) CreateProposal(ctx context.Context, matchID string, proposal *Proposal) (string, error) {
	m.mu.Lock()
	if m.proposals[matchID] == nil {
		m.proposals[matchID] = map[string]*Proposal{}
	}
	id := uuidv7.New().String()
	cp := *proposal
	cp.ID = id
	cp.MatchID = matchID
	m.proposals[matchID][id] = &cp

	m.publish(Event{
		Kind:          EventCreated,
		Table:         TableProposals,
		MatchID:       matchID,
		DocID:         id,
		MutationToken: proposal.MutationToken,
	})
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) GetProposal(ctx context.Context, matchID, proposalID string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	proposal, ok := m.proposals[matchID][proposalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *proposal
	return &cp, nil
}

func (m *Memory) UpdateProposalStatus(ctx context.Context, matchID, proposalID string, st ProposalStatus, token string) error {
	m.mu.Lock()
	proposal, ok := m.proposals[matchID][proposalID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	proposal.Status = st
	proposal.MutationToken = token

	m.publish(Event{
		Kind:          EventModified,
		Table:         TableProposals,
		MatchID:       matchID,
		DocID:         proposalID,
		MutationToken: token,
	})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, matchID string) (<-chan Event, error) {
	ch := make(chan Event, 256)

	m.mu.Lock()
	m.subs[matchID] = append(m.subs[matchID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		subs := m.subs[matchID]
		for i, sub := range subs {
			if sub == ch {
				m.subs[matchID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
	}()

	return ch, nil
}

// publish runs with m.mu held, so events enter the subscriber channels in
// commit order. deliver never blocks, which is what makes that safe.
func (m *Memory) publish(ev Event) {
	for _, sub := range m.subs[ev.MatchID] {
		deliver(sub, ev)
		if m.DuplicateDelivery {
			deliver(sub, ev)
		}
	}
}

// deliver never blocks a writer on a slow subscriber; a full buffer drops the
// event, which a consumer of an at-least-once feed has to survive anyway on
// resubscribe.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
