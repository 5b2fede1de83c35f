package lineup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xorcare/pointer"

	"github.com/rackside/league-sync/repos/matchdb"
	"github.com/rackside/league-sync/services/confirm"
)

const (
	homeTeam = "team-home"
	awayTeam = "team-away"
)

func newTestMatch(t *testing.T, mem *matchdb.Memory) string {
	t.Helper()
	manager := confirm.NewManager(mem, mem, nil)
	matchID, err := manager.CreateMatch(context.Background(), homeTeam, awayTeam, 3, true, 0)
	assert.Nil(t, err)
	return matchID
}

func setTestLineup(t *testing.T, service *Service, matchID, teamID string) {
	t.Helper()
	players := []matchdb.LineupSlot{
		{PlayerID: "p1", Handicap: 4},
		{PlayerID: "p2", Handicap: 5},
		{PlayerID: "p3", Handicap: 6},
	}
	assert.Nil(t, service.Set(context.Background(), matchID, teamID, players, 0))
}

func TestSetRefusedOnceLocked(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	err := service.Set(ctx, matchID, homeTeam, []matchdb.LineupSlot{{PlayerID: "p9"}}, 0)
	assert.ErrorIs(t, err, ErrLineupLocked)

	// Locking again is a no-op.
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))
}

func TestProposeRequiresLock(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)

	setTestLineup(t, service, matchID, homeTeam)

	_, err := service.Propose(context.Background(), matchID, homeTeam, 2, "substitute")
	assert.ErrorIs(t, err, ErrLineupNotLocked)
}

func TestApproveMutatesSlot(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	proposalID, err := service.Propose(ctx, matchID, homeTeam, 2, "substitute")
	assert.Nil(t, err)

	// The proposer cannot decide its own proposal.
	assert.ErrorIs(t, service.Approve(ctx, matchID, homeTeam, proposalID), ErrOwnProposal)

	assert.Nil(t, service.Approve(ctx, matchID, awayTeam, proposalID))

	lineup, err := service.Get(ctx, matchID, homeTeam)
	assert.Nil(t, err)
	assert.Equal(t, "substitute", lineup.Players[1].PlayerID)

	proposal, err := mem.GetProposal(ctx, matchID, proposalID)
	assert.Nil(t, err)
	assert.Equal(t, matchdb.ProposalApproved, proposal.Status)

	// Decided proposals stay decided.
	assert.ErrorIs(t, service.Approve(ctx, matchID, awayTeam, proposalID), ErrProposalDecided)
}

func TestDenyLeavesLineupAlone(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	proposalID, err := service.Propose(ctx, matchID, homeTeam, 1, "substitute")
	assert.Nil(t, err)
	assert.Nil(t, service.Deny(ctx, matchID, awayTeam, proposalID))

	lineup, err := service.Get(ctx, matchID, homeTeam)
	assert.Nil(t, err)
	assert.Equal(t, "p1", lineup.Players[0].PlayerID)

	proposal, err := mem.GetProposal(ctx, matchID, proposalID)
	assert.Nil(t, err)
	assert.Equal(t, matchdb.ProposalDenied, proposal.Status)
}

func TestProposeRejectedForPlayedPosition(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	// Record a result on a game where home position 1 plays. The result does
	// not need to be confirmed: any recorded winner makes the position played.
	games, err := mem.ListGames(ctx, matchID)
	assert.Nil(t, err)
	for _, g := range games {
		if g.HomePosition == 1 {
			assert.Nil(t, mem.UpdateGame(ctx, matchID, g.GameNumber, matchdb.GameUpdate{
				WinnerTeamID:    pointer.String(homeTeam),
				WinnerPlayerID:  pointer.String("p1"),
				ConfirmedByHome: pointer.Bool(true),
				MutatedBy:       homeTeam,
			}))
			break
		}
	}

	_, err = service.Propose(ctx, matchID, homeTeam, 1, "substitute")
	assert.ErrorIs(t, err, ErrPositionPlayed)

	// Other positions are still substitutable.
	_, err = service.Propose(ctx, matchID, homeTeam, 3, "substitute")
	assert.Nil(t, err)
}

func TestWithdraw(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	proposalID, err := service.Propose(ctx, matchID, homeTeam, 2, "substitute")
	assert.Nil(t, err)

	assert.ErrorIs(t, service.Withdraw(ctx, matchID, awayTeam, proposalID), ErrNotProposer)
	assert.Nil(t, service.Withdraw(ctx, matchID, homeTeam, proposalID))

	proposal, err := mem.GetProposal(ctx, matchID, proposalID)
	assert.Nil(t, err)
	assert.Equal(t, matchdb.ProposalDenied, proposal.Status)
}

func TestProposalSurfacesOnOpponentSession(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem)
	service := NewService(mem)
	ctx := context.Background()

	setTestLineup(t, service, matchID, homeTeam)
	assert.Nil(t, service.Lock(ctx, matchID, homeTeam))

	away := confirm.NewSession(confirm.SessionOptions{
		Store:   mem,
		Feed:    mem,
		MatchID: matchID,
		TeamID:  awayTeam,
		UserID:  "user-" + awayTeam,
		Side:    confirm.SideAway,
	})
	assert.Nil(t, away.Start(context.Background()))
	t.Cleanup(away.Close)

	proposalID, err := service.Propose(ctx, matchID, homeTeam, 2, "substitute")
	assert.Nil(t, err)

	assert.Eventually(t, func() bool {
		item, ok := away.Pending()
		return ok && item.Kind == confirm.ItemLineupChange && item.ProposalID == proposalID
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, away.AcceptPending(ctx))

	lineup, err := service.Get(ctx, matchID, homeTeam)
	assert.Nil(t, err)
	assert.Equal(t, "substitute", lineup.Players[1].PlayerID)
}
