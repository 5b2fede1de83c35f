package confirm

import (
	"context"
	"log"

	"github.com/rackside/league-sync/pkg/gameorder"
	"github.com/rackside/league-sync/pkg/handicap"
	"github.com/rackside/league-sync/repos/matchdb"
)

// run is the session's event loop. It only ever suspends on notification
// arrival; there is no polling. A single malformed or failed event is logged
// and skipped — the session itself must outlive any one bad notification.
func (s *Session) run(ctx context.Context, events <-chan matchdb.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev matchdb.Event) {
	switch ev.Table {
	case matchdb.TableGames:
		s.handleGame(ctx, ev)
	case matchdb.TableMatch:
		// Match state is cheap to re-derive, so even our own echo is
		// processed; the token just needs retiring.
		s.consumeToken(ev.MutationToken)
		s.handleMatch(ctx)
	case matchdb.TableProposals:
		s.handleProposal(ctx, ev)
	}
}

func (s *Session) handleGame(ctx context.Context, ev matchdb.Event) {
	// Our own write coming back around.
	if s.consumeToken(ev.MutationToken) {
		return
	}
	// A local edit is in progress for this game; local state wins and the
	// remote event is dropped.
	if s.isEditing(ev.GameNumber) {
		return
	}

	// Event payloads may be partial, so the row is always re-fetched before
	// classifying.
	game, err := s.store.GetGame(ctx, s.matchID, ev.GameNumber)
	if err != nil {
		log.Printf("Failed to fetch game %d of match %s: %v\n", ev.GameNumber, s.matchID, err)
		return
	}

	switch Classify(game) {
	case GameOpen:
		// A deny or an approved vacate resolved whatever was pending here.
		s.queue.DropGame(ev.GameNumber)

	case GameAwaitingConfirmation:
		if s.ownFlag(game) {
			// Our own submission (or a duplicate of its echo); the opponent
			// is the one who owes the confirmation.
			return
		}
		winner := ""
		if game.WinnerTeamID != nil {
			winner = *game.WinnerTeamID
		}
		if s.autoConfirming() {
			if err := s.ConfirmGame(ctx, ev.GameNumber); err != nil {
				log.Printf("Auto-confirm of game %d failed: %v\n", ev.GameNumber, err)
			}
			return
		}
		s.queue.Push(Item{
			Kind:         ItemScoreSubmitted,
			GameNumber:   ev.GameNumber,
			WinnerTeamID: winner,
		})

	case GameConfirmed:
		if game.WinnerTeamID == nil {
			// Flag set with no winner matches no transition we issue; the
			// row is left alone and treated as settled.
			log.Printf("Game %d of match %s has confirmation flags but no winner\n", ev.GameNumber, s.matchID)
		}
		s.queue.DropGame(ev.GameNumber)
		s.maybeAppendTiebreakers(ctx)

	case GameVacateRequested:
		if game.MutatedBy == s.teamID {
			// Our own vacate request, redelivered without its token.
			return
		}
		s.queue.Push(Item{
			Kind:       ItemVacateRequested,
			GameNumber: ev.GameNumber,
		})
	}
}

func (s *Session) handleMatch(ctx context.Context) {
	match, err := s.store.GetMatch(ctx, s.matchID)
	if err != nil {
		log.Printf("Failed to fetch match %s: %v\n", s.matchID, err)
		return
	}

	// Two simultaneous VerifyMatch calls can each read the row before the
	// other's marker lands, leaving both markers set but the status flip
	// unwritten. Either listener finishes the flip; the write is the same on
	// both sides, so losing that race is harmless.
	if match.Status != matchdb.StatusVerified &&
		match.VerifiedByHome != "" && match.VerifiedByAway != "" {
		verified := matchdb.StatusVerified
		tok := s.token()
		err := s.store.UpdateMatch(ctx, s.matchID, matchdb.MatchUpdate{
			Status:        &verified,
			MutationToken: tok,
			MutatedBy:     s.teamID,
		})
		if err != nil {
			s.forgetToken(tok)
			log.Printf("Failed to mark match %s verified: %v\n", s.matchID, err)
			return
		}
		match.Status = matchdb.StatusVerified
	}

	if match.Status == matchdb.StatusVerified {
		s.mu.Lock()
		s.verified = true
		s.mu.Unlock()
		s.sendReportOnce(ctx)
	}
}

func (s *Session) handleProposal(ctx context.Context, ev matchdb.Event) {
	if s.consumeToken(ev.MutationToken) {
		return
	}

	proposal, err := s.store.GetProposal(ctx, s.matchID, ev.DocID)
	if err != nil {
		log.Printf("Failed to fetch proposal %s of match %s: %v\n", ev.DocID, s.matchID, err)
		return
	}

	if proposal.Status != matchdb.ProposalProposed {
		s.queue.DropProposal(proposal.ID)
		return
	}
	if proposal.ProposedBy == s.teamID {
		return
	}
	s.queue.Push(Item{
		Kind:       ItemLineupChange,
		ProposalID: proposal.ID,
	})
}

// maybeAppendTiebreakers inserts the reserved tiebreaker rows once every
// regular game is confirmed and the outcome lands on the tied score. Only
// the home session appends, so the two sides never race the insert; the
// store treats a duplicate insert as a no-op anyway.
func (s *Session) maybeAppendTiebreakers(ctx context.Context) {
	if s.side != SideHome {
		return
	}

	match, err := s.store.GetMatch(ctx, s.matchID)
	if err != nil {
		log.Printf("Failed to fetch match %s: %v\n", s.matchID, err)
		return
	}
	games, err := s.store.ListGames(ctx, s.matchID)
	if err != nil {
		log.Printf("Failed to list games for match %s: %v\n", s.matchID, err)
		return
	}

	for i := range games {
		if games[i].IsTiebreaker {
			return
		}
		if Classify(&games[i]) != GameConfirmed {
			return
		}
	}

	res, err := handicap.Thresholds(match.HandicapDifferential, handicap.ForPlayers(match.PlayersPerTeam))
	if err != nil {
		log.Printf("Threshold lookup for match %s failed: %v\n", s.matchID, err)
		return
	}
	homeWins, _ := countConfirmedWins(match, games)
	if res.GamesToTie == nil || homeWins != *res.GamesToTie {
		return
	}

	numbers, err := gameorder.TiebreakerNumbers(match.PlayersPerTeam, match.DoubleRoundRobin)
	if err != nil {
		return
	}

	tok := s.token()
	rows := make([]matchdb.Game, 0, len(numbers))
	for i, number := range numbers {
		homeAction := matchdb.ActionBreaks
		awayAction := matchdb.ActionRacks
		if i%2 == 1 {
			homeAction, awayAction = awayAction, homeAction
		}
		rows = append(rows, matchdb.Game{
			GameNumber:    number,
			HomePosition:  i + 1,
			AwayPosition:  i + 1,
			HomeAction:    homeAction,
			AwayAction:    awayAction,
			IsTiebreaker:  true,
			GameType:      matchdb.GameTypeEightBall,
			MutationToken: tok,
			MutatedBy:     s.teamID,
		})
	}

	if err := s.store.InsertGames(ctx, s.matchID, rows); err != nil {
		s.forgetToken(tok)
		log.Printf("Failed to append tiebreakers for match %s: %v\n", s.matchID, err)
	}
}
