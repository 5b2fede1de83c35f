package confirm

import (
	"github.com/rackside/league-sync/repos/matchdb"
)

// GameState is the per-game lifecycle derived from the raw row.
type GameState string

const (
	GameOpen                 GameState = "open"
	GameAwaitingConfirmation GameState = "awaiting_confirmation"
	GameConfirmed            GameState = "confirmed"
	GameVacateRequested      GameState = "vacate_requested"
)

// Classify reads the lifecycle state off a game row. Winner presence is the
// discriminant between a never-scored row and a vacate request: both carry
// two false confirmation flags, but only a vacated game still has its winner
// set, because a vacate clears the flags and nothing else. A flag set while
// the winner is null matches no known transition; such rows are treated as
// settled rather than crashing the listener.
func Classify(g *matchdb.Game) GameState {
	if g.WinnerTeamID == nil {
		if g.ConfirmedByHome || g.ConfirmedByAway {
			return GameConfirmed
		}
		return GameOpen
	}

	switch {
	case g.ConfirmedByHome && g.ConfirmedByAway:
		return GameConfirmed
	case g.ConfirmedByHome || g.ConfirmedByAway:
		return GameAwaitingConfirmation
	default:
		return GameVacateRequested
	}
}
