package stats

const (
	OutcomeHomeWon   = "home_won"
	OutcomeAwayWon   = "away_won"
	OutcomeUndecided = "undecided"
)

// TeamLine is one team's side of the report.
type TeamLine struct {
	TeamID         string `json:"team_id"`
	GamesToWin     int    `json:"games_to_win"`
	Wins           int    `json:"wins"`
	TiebreakerWins int    `json:"tiebreaker_wins"`
	BreakAndRuns   int    `json:"break_and_runs"`
	GoldenBreaks   int    `json:"golden_breaks"`
}

type MatchReport struct {
	MatchID        string   `json:"match_id"`
	Status         string   `json:"status"`
	Outcome        string   `json:"outcome"`
	Home           TeamLine `json:"home"`
	Away           TeamLine `json:"away"`
	RegularGames   int      `json:"regular_games"`
	GamesConfirmed int      `json:"games_confirmed"`
}

type GameRow struct {
	GameNumber     int    `json:"game_number"`
	HomePosition   int    `json:"home_position"`
	AwayPosition   int    `json:"away_position"`
	WinnerTeamID   string `json:"winner_team_id,omitempty"`
	WinnerPlayerID string `json:"winner_player_id,omitempty"`
	IsTiebreaker   bool   `json:"is_tiebreaker"`
	BreakAndRun    bool   `json:"break_and_run"`
	GoldenBreak    bool   `json:"golden_break"`
	Confirmed      bool   `json:"confirmed"`
}
