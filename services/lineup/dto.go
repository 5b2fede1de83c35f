package lineup

type PlayerSlot struct {
	PlayerID string  `json:"player_id"`
	Handicap float64 `json:"handicap"`
}

type SetLineupRequest struct {
	Players          []PlayerSlot `json:"players"`
	HomeTeamModifier float64      `json:"home_team_modifier"`
}

type ProposeRequest struct {
	Position    int    `json:"position"`
	NewPlayerID string `json:"new_player_id"`
}
