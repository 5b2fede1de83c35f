package resend

// AccessRequest is a captain's request for scorekeeper access to a match.
type AccessRequest struct {
	MatchID string `json:"match_id"`
	TeamID  string `json:"team_id"`
	Email   string `json:"email"`
}
