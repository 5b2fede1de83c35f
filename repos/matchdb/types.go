package matchdb

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("row not found")
var ErrBadPosition = errors.New("lineup position out of range")

const (
	ActionBreaks = "breaks"
	ActionRacks  = "racks"

	GameTypeEightBall = "eight_ball"
)

type MatchStatus string

const (
	StatusScheduled  MatchStatus = "scheduled"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusVerified   MatchStatus = "verified"
)

// Match is the jointly-owned match row. Both sides mutate it; once both
// verification markers are set it is treated as immutable.
type Match struct {
	ID                   string      `firestore:"-"`
	HomeTeamID           string      `firestore:"home_team_id"`
	AwayTeamID           string      `firestore:"away_team_id"`
	Status               MatchStatus `firestore:"status"`
	VerifiedByHome       string      `firestore:"verified_by_home"`
	VerifiedByAway       string      `firestore:"verified_by_away"`
	PlayersPerTeam       int         `firestore:"players_per_team"`
	DoubleRoundRobin     bool        `firestore:"double_round_robin"`
	HandicapDifferential float64     `firestore:"handicap_differential"`
	MutationToken        string      `firestore:"mutation_token"`
	MutatedBy            string      `firestore:"mutated_by"`
}

// Game is one rack of the match. The winner reference together with the two
// confirmation booleans carries the whole per-game lifecycle; there is no
// separate status column.
type Game struct {
	MatchID         string     `firestore:"-"`
	GameNumber      int        `firestore:"game_number"`
	HomePosition    int        `firestore:"home_position"`
	AwayPosition    int        `firestore:"away_position"`
	HomeAction      string     `firestore:"home_action"`
	AwayAction      string     `firestore:"away_action"`
	WinnerTeamID    *string    `firestore:"winner_team_id"`
	WinnerPlayerID  *string    `firestore:"winner_player_id"`
	BreakAndRun     bool       `firestore:"break_and_run"`
	GoldenBreak     bool       `firestore:"golden_break"`
	ConfirmedByHome bool       `firestore:"confirmed_by_home"`
	ConfirmedByAway bool       `firestore:"confirmed_by_away"`
	ConfirmedAt     *time.Time `firestore:"confirmed_at"`
	IsTiebreaker    bool       `firestore:"is_tiebreaker"`
	GameType        string     `firestore:"game_type"`
	MutationToken   string     `firestore:"mutation_token"`
	MutatedBy       string     `firestore:"mutated_by"`
}

type LineupSlot struct {
	PlayerID string  `firestore:"player_id"`
	Handicap float64 `firestore:"handicap"`
}

// Lineup is owned by one team for one match. Free to mutate until locked;
// after that slot changes go through the proposal flow.
type Lineup struct {
	MatchID          string       `firestore:"-"`
	TeamID           string       `firestore:"team_id"`
	Players          []LineupSlot `firestore:"players"`
	HomeTeamModifier float64      `firestore:"home_team_modifier"`
	Locked           bool         `firestore:"locked"`
	MutationToken    string       `firestore:"mutation_token"`
	MutatedBy        string       `firestore:"mutated_by"`
}

type ProposalStatus string

const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalApproved ProposalStatus = "approved"
	ProposalDenied   ProposalStatus = "denied"
)

// Proposal is a persisted lineup-substitution request. It outlives both
// clients' mounts and stays proposed until someone decides it.
type Proposal struct {
	ID            string         `firestore:"-"`
	MatchID       string         `firestore:"-"`
	TeamID        string         `firestore:"team_id"`
	Position      int            `firestore:"position"`
	OldPlayerID   string         `firestore:"old_player_id"`
	NewPlayerID   string         `firestore:"new_player_id"`
	Status        ProposalStatus `firestore:"status"`
	MutationToken string         `firestore:"mutation_token"`
	ProposedBy    string         `firestore:"proposed_by"`
}

// GameUpdate is a partial single-row game mutation. Nil fields are left
// untouched; ClearWinner nulls the winner references explicitly since a nil
// pointer here means "keep".
type GameUpdate struct {
	WinnerTeamID     *string
	WinnerPlayerID   *string
	ClearWinner      bool
	ConfirmedByHome  *bool
	ConfirmedByAway  *bool
	BreakAndRun      *bool
	GoldenBreak      *bool
	ConfirmedAt      *time.Time
	ClearConfirmedAt bool
	MutationToken    string
	MutatedBy        string
}

// MatchUpdate is a partial match-row mutation.
type MatchUpdate struct {
	Status         *MatchStatus
	VerifiedByHome *string
	VerifiedByAway *string
	MutationToken  string
	MutatedBy      string
}

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
)

type Table string

const (
	TableMatch     Table = "match"
	TableGames     Table = "games"
	TableLineups   Table = "lineups"
	TableProposals Table = "proposals"
)

// Event is one row-change notification. Payload fields are advisory: the
// store only promises at-least-once delivery of "this row changed" plus the
// authorship token, and consumers re-fetch the row for authoritative state.
type Event struct {
	Kind          EventKind
	Table         Table
	MatchID       string
	DocID         string
	GameNumber    int
	MutationToken string
}

// Store is the atomic single-row mutation surface of the row store. Every
// write is last-write-wins on its row; there is no cross-row transaction in
// the protocol's path.
type Store interface {
	CreateMatch(ctx context.Context, match *Match, games []Game) (string, error)
	GetMatch(ctx context.Context, matchID string) (*Match, error)
	UpdateMatch(ctx context.Context, matchID string, upd MatchUpdate) error

	GetGame(ctx context.Context, matchID string, gameNumber int) (*Game, error)
	ListGames(ctx context.Context, matchID string) ([]Game, error)
	InsertGames(ctx context.Context, matchID string, games []Game) error
	UpdateGame(ctx context.Context, matchID string, gameNumber int, upd GameUpdate) error

	GetLineup(ctx context.Context, matchID, teamID string) (*Lineup, error)
	SetLineup(ctx context.Context, matchID string, lineup *Lineup) error
	UpdateLineupSlot(ctx context.Context, matchID, teamID string, position int, playerID, token, actor string) error
	LockLineup(ctx context.Context, matchID, teamID, token string) error

	CreateProposal(ctx context.Context, matchID string, proposal *Proposal) (string, error)
	GetProposal(ctx context.Context, matchID, proposalID string) (*Proposal, error)
	UpdateProposalStatus(ctx context.Context, matchID, proposalID string, status ProposalStatus, token string) error
}

// Feed delivers change events for one match: the match row, its games, its
// lineups and its proposals, merged into one channel. Delivery is
// at-least-once and self-inclusive; per-table order follows commit order.
// Cancelling the context drops the subscription.
type Feed interface {
	Subscribe(ctx context.Context, matchID string) (<-chan Event, error)
}
