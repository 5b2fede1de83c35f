package confirm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xorcare/pointer"

	"github.com/rackside/league-sync/repos/matchdb"
)

const (
	homeTeam = "team-home"
	awayTeam = "team-away"
)

func newTestMatch(t *testing.T, mem *matchdb.Memory, players int, double bool, diff float64) string {
	t.Helper()
	manager := NewManager(mem, mem, nil)
	matchID, err := manager.CreateMatch(context.Background(), homeTeam, awayTeam, players, double, diff)
	assert.Nil(t, err)
	return matchID
}

func openTestSession(t *testing.T, mem *matchdb.Memory, matchID string, side Side, autoConfirm bool, reporter Reporter) *Session {
	t.Helper()
	teamID := homeTeam
	if side == SideAway {
		teamID = awayTeam
	}
	session := NewSession(SessionOptions{
		Store:       mem,
		Feed:        mem,
		Reporter:    reporter,
		MatchID:     matchID,
		TeamID:      teamID,
		UserID:      "user-" + teamID,
		Side:        side,
		AutoConfirm: autoConfirm,
	})
	assert.Nil(t, session.Start(context.Background()))
	t.Cleanup(session.Close)
	return session
}

func TestSubmitSurfacesOnOpponentOnly(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false))

	assert.Eventually(t, func() bool {
		item, ok := away.Pending()
		return ok && item.Kind == ItemScoreSubmitted && item.GameNumber == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The submitter's own echo, delivered twice, never surfaces locally.
	time.Sleep(50 * time.Millisecond)
	_, ok := home.Pending()
	assert.False(t, ok)
}

func TestAcceptPendingConfirmsGame(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 2, homeTeam, "player-1", true, false))

	assert.Eventually(t, func() bool {
		_, ok := away.Pending()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, away.AcceptPending(ctx))

	game, err := mem.GetGame(ctx, matchID, 2)
	assert.Nil(t, err)
	assert.Equal(t, GameConfirmed, Classify(game))
	assert.True(t, game.BreakAndRun)
	assert.NotNil(t, game.ConfirmedAt)
}

func TestConfirmGameIsIdempotent(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false))
	assert.Nil(t, away.ConfirmGame(ctx, 1))

	before, err := mem.GetGame(ctx, matchID, 1)
	assert.Nil(t, err)
	assert.Equal(t, GameConfirmed, Classify(before))

	// Reprocessing an already-confirmed game must not touch the row.
	assert.Nil(t, away.ConfirmGame(ctx, 1))
	assert.Nil(t, home.ConfirmGame(ctx, 1))

	after, err := mem.GetGame(ctx, matchID, 1)
	assert.Nil(t, err)
	assert.Equal(t, before, after)
}

func TestSubmitRejectedWhenNotOpen(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false))
	assert.Equal(t, ErrGameNotOpen, home.SubmitGameResult(ctx, 1, awayTeam, "player-9", false, false))
}

func TestVacateDenyRestoresConfirmedState(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 3, homeTeam, "player-2", false, true))
	assert.Nil(t, away.ConfirmGame(ctx, 3))

	assert.Nil(t, away.RequestVacate(ctx, 3))

	vacated, err := mem.GetGame(ctx, matchID, 3)
	assert.Nil(t, err)
	assert.Equal(t, GameVacateRequested, Classify(vacated))
	assert.NotNil(t, vacated.WinnerTeamID, "vacate keeps the winner as its own signature")

	assert.Eventually(t, func() bool {
		item, ok := home.Pending()
		return ok && item.Kind == ItemVacateRequested && item.GameNumber == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, home.DenyPending(ctx))

	restored, err := mem.GetGame(ctx, matchID, 3)
	assert.Nil(t, err)
	assert.Equal(t, GameConfirmed, Classify(restored))
	if assert.NotNil(t, restored.WinnerTeamID) {
		assert.Equal(t, homeTeam, *restored.WinnerTeamID)
	}
	if assert.NotNil(t, restored.WinnerPlayerID) {
		assert.Equal(t, "player-2", *restored.WinnerPlayerID)
	}
	assert.True(t, restored.ConfirmedByHome)
	assert.True(t, restored.ConfirmedByAway)
}

func TestVacateAcceptReopensGame(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 4, homeTeam, "player-2", false, false))
	assert.Nil(t, away.ConfirmGame(ctx, 4))
	assert.Nil(t, away.RequestVacate(ctx, 4))

	assert.Eventually(t, func() bool {
		item, ok := home.Pending()
		return ok && item.Kind == ItemVacateRequested
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, home.AcceptPending(ctx))

	game, err := mem.GetGame(ctx, matchID, 4)
	assert.Nil(t, err)
	assert.Equal(t, GameOpen, Classify(game))
	assert.Nil(t, game.WinnerTeamID)
	assert.False(t, game.BreakAndRun)
}

func TestDenyScoreReopensGame(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 5, homeTeam, "player-3", false, false))

	assert.Eventually(t, func() bool {
		_, ok := away.Pending()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, away.DenyPending(ctx))

	game, err := mem.GetGame(ctx, matchID, 5)
	assert.Nil(t, err)
	assert.Equal(t, GameOpen, Classify(game))
}

func TestAutoConfirmSkipsQueue(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, true, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 6, awayTeam, "player-9", false, false))

	assert.Eventually(t, func() bool {
		game, err := mem.GetGame(ctx, matchID, 6)
		return err == nil && Classify(game) == GameConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := away.Pending()
	assert.False(t, ok)
}

func TestLocalEditWinsOverRemoteVacate(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 7, homeTeam, "player-1", false, false))
	assert.Nil(t, away.ConfirmGame(ctx, 7))

	home.SetEditing(7, true)
	assert.Nil(t, away.RequestVacate(ctx, 7))

	time.Sleep(100 * time.Millisecond)
	_, ok := home.Pending()
	assert.False(t, ok, "remote vacate must be dropped while the game is under local edit")

	// Leaving the edit view and replaying the feed would surface it again;
	// here it simply stays pending on the row.
	game, err := mem.GetGame(ctx, matchID, 7)
	assert.Nil(t, err)
	assert.Equal(t, GameVacateRequested, Classify(game))
}

func TestTiedMatchAppendsTiebreakers(t *testing.T) {
	mem := matchdb.NewMemory()
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	_ = openTestSession(t, mem, matchID, SideAway, true, nil)

	ctx := context.Background()
	for n := 1; n <= 18; n++ {
		winner := homeTeam
		if n > 9 {
			winner = awayTeam
		}
		assert.Nil(t, home.SubmitGameResult(ctx, n, winner, "player-x", false, false))
	}

	assert.Eventually(t, func() bool {
		games, err := mem.ListGames(ctx, matchID)
		if err != nil {
			return false
		}
		tiebreakers := 0
		for _, g := range games {
			if g.IsTiebreaker {
				tiebreakers++
			}
		}
		return tiebreakers == 3
	}, 5*time.Second, 20*time.Millisecond)

	games, err := mem.ListGames(ctx, matchID)
	assert.Nil(t, err)
	assert.Len(t, games, 21)
	assert.Equal(t, 19, games[18].GameNumber)
	assert.True(t, games[20].IsTiebreaker)
}

type fakeReporter struct {
	mu    sync.Mutex
	calls int
	home  int
	away  int
}

func (f *fakeReporter) SendMatchReport(ctx context.Context, match *matchdb.Match, homeWins, awayWins int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.home = homeWins
	f.away = awayWins
	return nil
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestVerificationSendsOneReport(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	reporter := &fakeReporter{}
	home := openTestSession(t, mem, matchID, SideHome, false, reporter)
	away := openTestSession(t, mem, matchID, SideAway, false, reporter)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false))
	assert.Nil(t, away.ConfirmGame(ctx, 1))

	assert.Nil(t, home.VerifyMatch(ctx))
	assert.Nil(t, away.VerifyMatch(ctx))

	assert.Eventually(t, func() bool {
		match, err := mem.GetMatch(ctx, matchID)
		return err == nil && match.Status == matchdb.StatusVerified
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return reporter.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Verified means immutable; further protocol writes are refused.
	assert.Eventually(t, func() bool {
		return home.SubmitGameResult(ctx, 2, homeTeam, "player-1", false, false) == ErrMatchVerified
	}, 2*time.Second, 10*time.Millisecond)
}

// When both sides verify at the same moment, each read happens before the
// other's marker lands, so neither write carries the status flip. The rows
// left behind are exactly two marker-only updates; the listeners must finish
// the flip from there.
func TestSimultaneousVerificationStillCompletes(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	reporter := &fakeReporter{}
	home := openTestSession(t, mem, matchID, SideHome, false, reporter)
	_ = openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, mem.UpdateMatch(ctx, matchID, matchdb.MatchUpdate{
		VerifiedByHome: pointer.String("user-" + homeTeam),
		MutatedBy:      homeTeam,
	}))
	assert.Nil(t, mem.UpdateMatch(ctx, matchID, matchdb.MatchUpdate{
		VerifiedByAway: pointer.String("user-" + awayTeam),
		MutatedBy:      awayTeam,
	}))

	assert.Eventually(t, func() bool {
		match, err := mem.GetMatch(ctx, matchID)
		return err == nil && match.Status == matchdb.StatusVerified
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return reporter.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false) == ErrMatchVerified
	}, 2*time.Second, 10*time.Millisecond)
}

// A game still awaiting confirmation when the match verifies stays frozen:
// neither confirming it nor denying the pending submission is allowed.
func TestConfirmRefusedAfterVerification(t *testing.T) {
	mem := matchdb.NewMemory()
	mem.DuplicateDelivery = true
	matchID := newTestMatch(t, mem, 3, true, 0)

	home := openTestSession(t, mem, matchID, SideHome, false, nil)
	away := openTestSession(t, mem, matchID, SideAway, false, nil)

	ctx := context.Background()
	assert.Nil(t, home.SubmitGameResult(ctx, 1, homeTeam, "player-1", false, false))

	assert.Eventually(t, func() bool {
		_, ok := away.Pending()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, home.VerifyMatch(ctx))
	assert.Nil(t, away.VerifyMatch(ctx))

	assert.ErrorIs(t, away.ConfirmGame(ctx, 1), ErrMatchVerified)
	assert.ErrorIs(t, away.DenyPending(ctx), ErrMatchVerified)

	game, err := mem.GetGame(ctx, matchID, 1)
	assert.Nil(t, err)
	assert.Equal(t, GameAwaitingConfirmation, Classify(game))
}
