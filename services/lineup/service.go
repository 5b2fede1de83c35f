package lineup

import (
	"context"
	"errors"

	"github.com/samborkent/uuidv7"

	"github.com/rackside/league-sync/repos/matchdb"
)

var ErrLineupLocked = errors.New("lineup is locked")
var ErrLineupNotLocked = errors.New("lineup is not locked")
var ErrTooManyPlayers = errors.New("a lineup holds at most five players")
var ErrPositionPlayed = errors.New("position has already played a game")
var ErrOwnProposal = errors.New("a team cannot decide its own proposal")
var ErrNotProposer = errors.New("only the proposing team can withdraw")
var ErrProposalDecided = errors.New("proposal is already decided")

// Service manages lineups and the post-lock substitution flow. Before the
// lock a team edits its own lineup row freely; after it, every slot change
// is a persisted proposal the opponent has to decide.
type Service struct {
	store matchdb.Store
}

func NewService(store matchdb.Store) *Service {
	return &Service{
		store: store,
	}
}

func (s *Service) Get(ctx context.Context, matchID, teamID string) (*matchdb.Lineup, error) {
	return s.store.GetLineup(ctx, matchID, teamID)
}

// Set replaces the team's lineup. Refused once locked.
func (s *Service) Set(ctx context.Context, matchID, teamID string, players []matchdb.LineupSlot, homeTeamModifier float64) error {
	if len(players) > 5 {
		return ErrTooManyPlayers
	}

	existing, err := s.store.GetLineup(ctx, matchID, teamID)
	if err != nil && !errors.Is(err, matchdb.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Locked {
		return ErrLineupLocked
	}

	return s.store.SetLineup(ctx, matchID, &matchdb.Lineup{
		TeamID:           teamID,
		Players:          players,
		HomeTeamModifier: homeTeamModifier,
		MutationToken:    uuidv7.New().String(),
		MutatedBy:        teamID,
	})
}

// Lock freezes the lineup. Locking twice is a no-op.
func (s *Service) Lock(ctx context.Context, matchID, teamID string) error {
	lineup, err := s.store.GetLineup(ctx, matchID, teamID)
	if err != nil {
		return err
	}
	if lineup.Locked {
		return nil
	}
	return s.store.LockLineup(ctx, matchID, teamID, uuidv7.New().String())
}

// Propose submits a substitution for an unplayed position of a locked
// lineup. The proposal row persists until someone decides it; there is no
// timeout and no assumption that the opponent is mounted to see it.
func (s *Service) Propose(ctx context.Context, matchID, teamID string, position int, newPlayerID string) (string, error) {
	lineup, err := s.store.GetLineup(ctx, matchID, teamID)
	if err != nil {
		return "", err
	}
	if !lineup.Locked {
		return "", ErrLineupNotLocked
	}
	if position < 1 || position > len(lineup.Players) {
		return "", matchdb.ErrBadPosition
	}

	played, err := s.positionPlayed(ctx, matchID, teamID, position)
	if err != nil {
		return "", err
	}
	if played {
		return "", ErrPositionPlayed
	}

	return s.store.CreateProposal(ctx, matchID, &matchdb.Proposal{
		TeamID:        teamID,
		Position:      position,
		OldPlayerID:   lineup.Players[position-1].PlayerID,
		NewPlayerID:   newPlayerID,
		Status:        matchdb.ProposalProposed,
		MutationToken: uuidv7.New().String(),
		ProposedBy:    teamID,
	})
}

// Approve applies the substitution on behalf of the opposing team: the slot
// mutation lands first, the status flip second, so an interrupted approve
// stays retryable.
func (s *Service) Approve(ctx context.Context, matchID, approverTeamID, proposalID string) error {
	proposal, err := s.store.GetProposal(ctx, matchID, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != matchdb.ProposalProposed {
		return ErrProposalDecided
	}
	if proposal.ProposedBy == approverTeamID {
		return ErrOwnProposal
	}

	err = s.store.UpdateLineupSlot(ctx, matchID, proposal.TeamID, proposal.Position,
		proposal.NewPlayerID, uuidv7.New().String(), approverTeamID)
	if err != nil {
		return err
	}
	return s.store.UpdateProposalStatus(ctx, matchID, proposalID, matchdb.ProposalApproved, uuidv7.New().String())
}

// Deny rejects the substitution. Nothing but the proposal row changes.
func (s *Service) Deny(ctx context.Context, matchID, denierTeamID, proposalID string) error {
	proposal, err := s.store.GetProposal(ctx, matchID, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != matchdb.ProposalProposed {
		return ErrProposalDecided
	}
	if proposal.ProposedBy == denierTeamID {
		return ErrOwnProposal
	}
	return s.store.UpdateProposalStatus(ctx, matchID, proposalID, matchdb.ProposalDenied, uuidv7.New().String())
}

// Withdraw lets the proposing team retract an undecided proposal.
func (s *Service) Withdraw(ctx context.Context, matchID, teamID, proposalID string) error {
	proposal, err := s.store.GetProposal(ctx, matchID, proposalID)
	if err != nil {
		return err
	}
	if proposal.ProposedBy != teamID {
		return ErrNotProposer
	}
	if proposal.Status != matchdb.ProposalProposed {
		return nil
	}
	return s.store.UpdateProposalStatus(ctx, matchID, proposalID, matchdb.ProposalDenied, uuidv7.New().String())
}

// positionPlayed reports whether any game involving the team's position
// already has a result recorded, confirmed or not.
func (s *Service) positionPlayed(ctx context.Context, matchID, teamID string, position int) (bool, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return false, err
	}
	games, err := s.store.ListGames(ctx, matchID)
	if err != nil {
		return false, err
	}

	home := teamID == match.HomeTeamID
	for i := range games {
		g := &games[i]
		pos := g.AwayPosition
		if home {
			pos = g.HomePosition
		}
		if pos == position && g.WinnerTeamID != nil {
			return true, nil
		}
	}
	return false, nil
}
