package matchdb

import (
	"context"
	"errors"
	"log"
	"strconv"

	"cloud.google.com/go/firestore"
	"github.com/samborkent/uuidv7"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service is the Firestore-backed row store.
type Service struct {
	Client *firestore.Client
}

func NewService(client *firestore.Client) *Service {
	return &Service{
		Client: client,
	}
}

func (s *Service) matchRef(matchID string) *firestore.DocumentRef {
	return s.Client.Collection("Matches").Doc(matchID)
}

func (s *Service) gameRef(matchID string, gameNumber int) *firestore.DocumentRef {
	return s.matchRef(matchID).Collection("Games").Doc(strconv.Itoa(gameNumber))
}

func (s *Service) CreateMatch(ctx context.Context, match *Match, games []Game) (string, error) {
	ref := s.Client.Collection("Matches").NewDoc()
	if _, err := ref.Set(ctx, match); err != nil {
		return "", xerrors.Errorf("create match: %w", err)
	}

	// Game rows are seeded up front; the protocol only mutates them later.
	batch := s.Client.BulkWriter(ctx)
	for i := range games {
		_, err := batch.Set(s.gameRef(ref.ID, games[i].GameNumber), &games[i])
		if err != nil {
			return "", xerrors.Errorf("seed game %d: %w", games[i].GameNumber, err)
		}
	}
	batch.End()
	return ref.ID, nil
}

func (s *Service) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	doc, err := s.matchRef(matchID).Get(ctx)
	if err != nil {
		return nil, mapErr("get match", err)
	}

	var match Match
	if err := doc.DataTo(&match); err != nil {
		return nil, xerrors.Errorf("consistency error. Converting %+v to match struct failed: %w", doc, err)
	}
	match.ID = doc.Ref.ID
	return &match, nil
}

func (s *Service) UpdateMatch(ctx context.Context, matchID string, upd MatchUpdate) error {
	updates := []firestore.Update{
		{Path: "mutation_token", Value: upd.MutationToken},
		{Path: "mutated_by", Value: upd.MutatedBy},
	}
	if upd.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *upd.Status})
	}
	if upd.VerifiedByHome != nil {
		updates = append(updates, firestore.Update{Path: "verified_by_home", Value: *upd.VerifiedByHome})
	}
	if upd.VerifiedByAway != nil {
		updates = append(updates, firestore.Update{Path: "verified_by_away", Value: *upd.VerifiedByAway})
	}

	if _, err := s.matchRef(matchID).Update(ctx, updates); err != nil {
		return mapErr("update match", err)
	}
	return nil
}

func (s *Service) GetGame(ctx context.Context, matchID string, gameNumber int) (*Game, error) {
	doc, err := s.gameRef(matchID, gameNumber).Get(ctx)
	if err != nil {
		return nil, mapErr("get game", err)
	}

	var game Game
	if err := doc.DataTo(&game); err != nil {
		return nil, xerrors.Errorf("consistency error. Converting %+v to game struct failed: %w", doc, err)
	}
	game.MatchID = matchID
	return &game, nil
}

func (s *Service) ListGames(ctx context.Context, matchID string) ([]Game, error) {
	iter := s.matchRef(matchID).Collection("Games").OrderBy("game_number", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var games []Game
	for {
		doc, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, mapErr("list games", err)
		}

		var game Game
		if err := doc.DataTo(&game); err != nil {
			return nil, xerrors.Errorf("consistency error. Converting %+v to game struct failed: %w", doc, err)
		}
		game.MatchID = matchID
		games = append(games, game)
	}
	return games, nil
}

func (s *Service) InsertGames(ctx context.Context, matchID string, games []Game) error {
	for i := range games {
		if _, err := s.gameRef(matchID, games[i].GameNumber).Create(ctx, &games[i]); err != nil {
			// Already present means the other side won the append race;
			// the rows are identical so this is not a failure.
			if status.Code(err) == codes.AlreadyExists {
				continue
			}
			return mapErr("insert game", err)
		}
	}
	return nil
}

func (s *Service) UpdateGame(ctx context.Context, matchID string, gameNumber int, upd GameUpdate) error {
	updates := []firestore.Update{
		{Path: "mutation_token", Value: upd.MutationToken},
		{Path: "mutated_by", Value: upd.MutatedBy},
	}
	if upd.ClearWinner {
		updates = append(updates,
			firestore.Update{Path: "winner_team_id", Value: nil},
			firestore.Update{Path: "winner_player_id", Value: nil})
	} else {
		if upd.WinnerTeamID != nil {
			updates = append(updates, firestore.Update{Path: "winner_team_id", Value: *upd.WinnerTeamID})
		}
		if upd.WinnerPlayerID != nil {
			updates = append(updates, firestore.Update{Path: "winner_player_id", Value: *upd.WinnerPlayerID})
		}
	}
	if upd.ConfirmedByHome != nil {
		updates = append(updates, firestore.Update{Path: "confirmed_by_home", Value: *upd.ConfirmedByHome})
	}
	if upd.ConfirmedByAway != nil {
		updates = append(updates, firestore.Update{Path: "confirmed_by_away", Value: *upd.ConfirmedByAway})
	}
	if upd.BreakAndRun != nil {
		updates = append(updates, firestore.Update{Path: "break_and_run", Value: *upd.BreakAndRun})
	}
	if upd.GoldenBreak != nil {
		updates = append(updates, firestore.Update{Path: "golden_break", Value: *upd.GoldenBreak})
	}
	if upd.ClearConfirmedAt {
		updates = append(updates, firestore.Update{Path: "confirmed_at", Value: nil})
	} else if upd.ConfirmedAt != nil {
		updates = append(updates, firestore.Update{Path: "confirmed_at", Value: *upd.ConfirmedAt})
	}

	if _, err := s.gameRef(matchID, gameNumber).Update(ctx, updates); err != nil {
		return mapErr("update game", err)
	}
	return nil
}

func (s *Service) GetLineup(ctx context.Context, matchID, teamID string) (*Lineup, error) {
	doc, err := s.matchRef(matchID).Collection("Lineups").Doc(teamID).Get(ctx)
	if err != nil {
		return nil, mapErr("get lineup", err)
	}

	var lineup Lineup
	if err := doc.DataTo(&lineup); err != nil {
		return nil, xerrors.Errorf("consistency error. Converting %+v to lineup struct failed: %w", doc, err)
	}
	lineup.MatchID = matchID
	return &lineup, nil
}

func (s *Service) SetLineup(ctx context.Context, matchID string, lineup *Lineup) error {
	if _, err := s.matchRef(matchID).Collection("Lineups").Doc(lineup.TeamID).Set(ctx, lineup); err != nil {
		return mapErr("set lineup", err)
	}
	return nil
}

func (s *Service) UpdateLineupSlot(ctx context.Context, matchID, teamID string, position int, playerID, token, actor string) error {
	ref := s.matchRef(matchID).Collection("Lineups").Doc(teamID)

	// Firestore cannot address a single array element, so the slot swap is a
	// transactional read-modify-write of the players array.
	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var lineup Lineup
		if err := doc.DataTo(&lineup); err != nil {
			return xerrors.Errorf("consistency error. Converting %+v to lineup struct failed: %w", doc, err)
		}
		if position < 1 || position > len(lineup.Players) {
			return ErrBadPosition
		}
		lineup.Players[position-1].PlayerID = playerID

		return tx.Update(ref, []firestore.Update{
			{Path: "players", Value: lineup.Players},
			{Path: "mutation_token", Value: token},
			{Path: "mutated_by", Value: actor},
		})
	})
	if err != nil {
		return mapErr("update lineup slot", err)
	}
	return nil
}

func (s *Service) LockLineup(ctx context.Context, matchID, teamID, token string) error {
	updates := []firestore.Update{
		{Path: "locked", Value: true},
		{Path: "mutation_token", Value: token},
		{Path: "mutated_by", Value: teamID},
	}
	if _, err := s.matchRef(matchID).Collection("Lineups").Doc(teamID).Update(ctx, updates); err != nil {
		return mapErr("lock lineup", err)
	}
	return nil
}

func (s *Service) CreateProposal(ctx context.Context, matchID string, proposal *Proposal) (string, error) {
	id := uuidv7.New().String()
	if _, err := s.matchRef(matchID).Collection("Proposals").Doc(id).Set(ctx, proposal); err != nil {
		return "", mapErr("create proposal", err)
	}
	return id, nil
}

func (s *Service) GetProposal(ctx context.Context, matchID, proposalID string) (*Proposal, error) {
	doc, err := s.matchRef(matchID).Collection("Proposals").Doc(proposalID).Get(ctx)
	if err != nil {
		return nil, mapErr("get proposal", err)
	}

	var proposal Proposal
	if err := doc.DataTo(&proposal); err != nil {
		return nil, xerrors.Errorf("consistency error. Converting %+v to proposal struct failed: %w", doc, err)
	}
	proposal.ID = doc.Ref.ID
	proposal.MatchID = matchID
	return &proposal, nil
}

func (s *Service) UpdateProposalStatus(ctx context.Context, matchID, proposalID string, st ProposalStatus, token string) error {
	updates := []firestore.Update{
		{Path: "status", Value: st},
		{Path: "mutation_token", Value: token},
	}
	if _, err := s.matchRef(matchID).Collection("Proposals").Doc(proposalID).Update(ctx, updates); err != nil {
		return mapErr("update proposal", err)
	}
	return nil
}

// Subscribe merges the snapshot listeners for the match row and its three
// subcollections into one channel. Firestore listeners re-deliver the
// subscriber's own writes, which is exactly the self-inclusive at-least-once
// contract the protocol is written against.
func (s *Service) Subscribe(ctx context.Context, matchID string) (<-chan Event, error) {
	events := make(chan Event, 64)

	go s.watchDoc(ctx, matchID, events)
	go s.watchCollection(ctx, matchID, TableGames, "Games", events)
	go s.watchCollection(ctx, matchID, TableLineups, "Lineups", events)
	go s.watchCollection(ctx, matchID, TableProposals, "Proposals", events)

	return events, nil
}

func (s *Service) watchDoc(ctx context.Context, matchID string, events chan<- Event) {
	iter := s.matchRef(matchID).Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if status.Code(err) != codes.Canceled {
				log.Printf("Match listener for %s stopped: %v\n", matchID, err)
			}
			return
		}
		if !snap.Exists() {
			continue
		}

		ev := Event{
			Kind:    EventModified,
			Table:   TableMatch,
			MatchID: matchID,
			DocID:   matchID,
		}
		if token, err := snap.DataAt("mutation_token"); err == nil {
			ev.MutationToken, _ = token.(string)
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) watchCollection(ctx context.Context, matchID string, table Table, collection string, events chan<- Event) {
	iter := s.matchRef(matchID).Collection(collection).Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if status.Code(err) != codes.Canceled {
				log.Printf("%s listener for %s stopped: %v\n", collection, matchID, err)
			}
			return
		}

		for _, change := range snap.Changes {
			ev := Event{
				Table:   table,
				MatchID: matchID,
				DocID:   change.Doc.Ref.ID,
			}
			switch change.Kind {
			case firestore.DocumentAdded:
				ev.Kind = EventCreated
			case firestore.DocumentRemoved:
				ev.Kind = EventRemoved
			default:
				ev.Kind = EventModified
			}
			if table == TableGames {
				ev.GameNumber, _ = strconv.Atoi(change.Doc.Ref.ID)
			}
			if token, err := change.Doc.DataAt("mutation_token"); err == nil {
				ev.MutationToken, _ = token.(string)
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func mapErr(op string, err error) error {
	if errors.Is(err, ErrBadPosition) {
		return ErrBadPosition
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return xerrors.Errorf("%s: %w", op, err)
}
