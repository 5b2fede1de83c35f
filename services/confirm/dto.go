package confirm

type CreateMatchRequest struct {
	HomeTeamID           string  `json:"home_team_id"`
	AwayTeamID           string  `json:"away_team_id"`
	PlayersPerTeam       int     `json:"players_per_team"`
	DoubleRoundRobin     bool    `json:"double_round_robin"`
	HandicapDifferential float64 `json:"handicap_differential"`
}

type OpenSessionRequest struct {
	MatchID     string `json:"match_id"`
	TeamID      string `json:"team_id"`
	Side        string `json:"side"`
	AutoConfirm bool   `json:"auto_confirm"`
}

type SubmitResultRequest struct {
	WinnerTeamID   string `json:"winner_team_id"`
	WinnerPlayerID string `json:"winner_player_id"`
	BreakAndRun    bool   `json:"break_and_run"`
	GoldenBreak    bool   `json:"golden_break"`
}

type EditingRequest struct {
	Editing bool `json:"editing"`
}

type AutoConfirmRequest struct {
	Enabled bool `json:"enabled"`
}
