package gameorder

import "errors"

var ErrInvalidPlayerCount = errors.New("players per team must be positive")

// Side names which team breaks a game.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Game is one entry of the deterministic match sequence.
type Game struct {
	GameNumber   int
	Round        int
	HomePosition int
	AwayPosition int
	Breaker      Side
}

// Generate produces the full regular-game sequence for a match. Every home
// position meets every away position exactly once per round-robin pass, and
// across a double round-robin each pairing occurs once breaking and once
// racking. Numbers run 1..N, round-major, home position ascending.
func Generate(playersPerTeam int, doubleRoundRobin bool) ([]Game, error) {
	if playersPerTeam <= 0 {
		return nil, ErrInvalidPlayerCount
	}

	rounds := playersPerTeam
	if doubleRoundRobin {
		rounds *= 2
	}

	games := make([]Game, 0, rounds*playersPerTeam)
	number := 1
	for r := 0; r < rounds; r++ {
		breaker := SideHome
		if r%2 == 1 {
			breaker = SideAway
		}
		for i := 0; i < playersPerTeam; i++ {
			games = append(games, Game{
				GameNumber:   number,
				Round:        r + 1,
				HomePosition: i + 1,
				AwayPosition: (i+r)%playersPerTeam + 1,
				Breaker:      breaker,
			})
			number++
		}
	}
	return games, nil
}

// TiebreakerNumbers returns the reserved numbering band for tiebreaker games.
// The band sits just past the regular sequence and is never emitted by
// Generate; rows there are appended only once a confirmed match result ties.
func TiebreakerNumbers(playersPerTeam int, doubleRoundRobin bool) ([]int, error) {
	if playersPerTeam <= 0 {
		return nil, ErrInvalidPlayerCount
	}

	total := playersPerTeam * playersPerTeam
	if doubleRoundRobin {
		total *= 2
	}
	return []int{total + 1, total + 2, total + 3}, nil
}
