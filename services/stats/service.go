package stats

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/rackside/league-sync/pkg/handicap"
	"github.com/rackside/league-sync/repos/matchdb"
)

// StatsService projects the raw game rows of a match into a score report.
// It only counts games both teams have confirmed; submitted-but-unconfirmed
// results never show up in a report.
type StatsService struct {
	store matchdb.Store
}

func NewStatsService(store matchdb.Store) *StatsService {
	return &StatsService{
		store: store,
	}
}

func (s *StatsService) MatchReport(ctx context.Context, matchID string) (*MatchReport, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	games, err := s.store.ListGames(ctx, matchID)
	if err != nil {
		return nil, err
	}

	format := handicap.ForPlayers(match.PlayersPerTeam)
	homeThresholds, err := handicap.Thresholds(match.HandicapDifferential, format)
	if err != nil {
		return nil, xerrors.Errorf("consistency error. Match %s carries differential %v we cannot score: %w",
			matchID, match.HandicapDifferential, err)
	}
	awayThresholds, err := handicap.Thresholds(-match.HandicapDifferential, format)
	if err != nil {
		return nil, xerrors.Errorf("consistency error. Match %s carries differential %v we cannot score: %w",
			matchID, match.HandicapDifferential, err)
	}

	regularGames := match.PlayersPerTeam * match.PlayersPerTeam
	if match.DoubleRoundRobin {
		regularGames *= 2
	}

	report := &MatchReport{
		MatchID:        matchID,
		Status:         string(match.Status),
		Home:           TeamLine{TeamID: match.HomeTeamID, GamesToWin: homeThresholds.GamesToWin},
		Away:           TeamLine{TeamID: match.AwayTeamID, GamesToWin: awayThresholds.GamesToWin},
		RegularGames:   regularGames,
		GamesConfirmed: 0,
	}

	regularPlayed := 0
	for i := range games {
		g := &games[i]
		confirmed := g.ConfirmedByHome && g.ConfirmedByAway && g.WinnerTeamID != nil
		if !confirmed {
			continue
		}
		report.GamesConfirmed++
		if !g.IsTiebreaker {
			regularPlayed++
		}

		line := &report.Away
		if *g.WinnerTeamID == match.HomeTeamID {
			line = &report.Home
		}
		if g.IsTiebreaker {
			line.TiebreakerWins++
		} else {
			line.Wins++
		}
		if g.BreakAndRun {
			line.BreakAndRuns++
		}
		if g.GoldenBreak {
			line.GoldenBreaks++
		}
	}

	report.Outcome = outcome(report, homeThresholds, regularPlayed)
	return report, nil
}

// GameRows returns the per-game sheet in game-number order.
func (s *StatsService) GameRows(ctx context.Context, matchID string) ([]GameRow, error) {
	games, err := s.store.ListGames(ctx, matchID)
	if err != nil {
		return nil, err
	}

	rows := make([]GameRow, 0, len(games))
	for i := range games {
		g := &games[i]
		row := GameRow{
			GameNumber:   g.GameNumber,
			HomePosition: g.HomePosition,
			AwayPosition: g.AwayPosition,
			IsTiebreaker: g.IsTiebreaker,
			BreakAndRun:  g.BreakAndRun,
			GoldenBreak:  g.GoldenBreak,
			Confirmed:    g.ConfirmedByHome && g.ConfirmedByAway && g.WinnerTeamID != nil,
		}
		if g.WinnerTeamID != nil {
			row.WinnerTeamID = *g.WinnerTeamID
		}
		if g.WinnerPlayerID != nil {
			row.WinnerPlayerID = *g.WinnerPlayerID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// outcome decides the match from confirmed games only. A handicap tie sends
// the match to tiebreakers, best of three.
func outcome(report *MatchReport, homeThresholds handicap.Result, regularPlayed int) string {
	switch {
	case report.Home.Wins >= report.Home.GamesToWin:
		return OutcomeHomeWon
	case report.Away.Wins >= report.Away.GamesToWin:
		return OutcomeAwayWon
	}

	if regularPlayed < report.RegularGames {
		return OutcomeUndecided
	}

	if homeThresholds.GamesToTie != nil && report.Home.Wins == *homeThresholds.GamesToTie {
		switch {
		case report.Home.TiebreakerWins >= 2:
			return OutcomeHomeWon
		case report.Away.TiebreakerWins >= 2:
			return OutcomeAwayWon
		}
	}
	return OutcomeUndecided
}
