package confirm

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/samborkent/uuidv7"
	"github.com/xorcare/pointer"

	"github.com/rackside/league-sync/pkg/gameorder"
	"github.com/rackside/league-sync/pkg/handicap"
	"github.com/rackside/league-sync/repos/matchdb"
)

// Side of the match a session scores for.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

var ErrGameNotOpen = errors.New("game already has a recorded result")
var ErrGameNotConfirmed = errors.New("game is not confirmed")
var ErrNothingToConfirm = errors.New("game has no result awaiting confirmation")
var ErrNoVacateRequest = errors.New("no vacate request on this game")
var ErrNothingPending = errors.New("no pending confirmation")
var ErrMatchVerified = errors.New("match is verified and immutable")
var ErrSessionExists = errors.New("session already open for this team")
var ErrNoSession = errors.New("no open session")

// Reporter delivers the final match report once both sides have verified.
type Reporter interface {
	SendMatchReport(ctx context.Context, match *matchdb.Match, homeWins, awayWins int) error
}

// SessionOptions configures one scorekeeper session.
type SessionOptions struct {
	Store    matchdb.Store
	Feed     matchdb.Feed
	Reporter Reporter
	MatchID  string
	TeamID   string
	UserID   string
	Side     Side

	// AutoConfirm makes the listener confirm opponent submissions instead of
	// queueing them.
	AutoConfirm bool

	// OnConfirmationNeeded fires when an item becomes the surfaced pending
	// decision. May be nil.
	OnConfirmationNeeded func(Item)
}

// Session is one team's live view of a match. It is purely reactive: every
// remote change arrives through the feed, every local action is a single row
// write whose echo comes back through the same feed.
type Session struct {
	store    matchdb.Store
	feed     matchdb.Feed
	reporter Reporter
	matchID  string
	teamID   string
	userID   string
	side     Side
	queue    *Queue

	mu          sync.Mutex
	issued      map[string]bool
	editing     map[int]bool
	autoConfirm bool
	verified    bool
	reportSent  bool
	cancel      context.CancelFunc
}

func NewSession(opts SessionOptions) *Session {
	return &Session{
		store:       opts.Store,
		feed:        opts.Feed,
		reporter:    opts.Reporter,
		matchID:     opts.MatchID,
		teamID:      opts.TeamID,
		userID:      opts.UserID,
		side:        opts.Side,
		queue:       NewQueue(opts.OnConfirmationNeeded),
		issued:      map[string]bool{},
		editing:     map[int]bool{},
		autoConfirm: opts.AutoConfirm,
	}
}

// Start subscribes to the match feed and runs the listener until the session
// is closed. State is re-derived from the rows on every mount, so nothing is
// lost by closing and reopening a session.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	events, err := s.feed.Subscribe(ctx, s.matchID)
	if err != nil {
		cancel()
		return err
	}

	if match, err := s.store.GetMatch(ctx, s.matchID); err == nil {
		s.mu.Lock()
		s.verified = match.Status == matchdb.StatusVerified
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, events)
	return nil
}

// Close drops the subscription and the in-memory queue. Nothing is persisted
// here on purpose; the rows are the source of truth.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// token mints an authorship token and records it so the listener can drop
// the echo of this client's own write.
func (s *Session) token() string {
	tok := uuidv7.New().String()
	s.mu.Lock()
	s.issued[tok] = true
	s.mu.Unlock()
	return tok
}

func (s *Session) forgetToken(tok string) {
	s.mu.Lock()
	delete(s.issued, tok)
	s.mu.Unlock()
}

// consumeToken reports whether tok was issued by this session, removing it.
func (s *Session) consumeToken(tok string) bool {
	if tok == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.issued[tok] {
		return false
	}
	delete(s.issued, tok)
	return true
}

func (s *Session) isVerified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// SetEditing marks a game as open in a local edit view. While set, incoming
// remote events for that game are dropped: the local edit wins the race.
func (s *Session) SetEditing(gameNumber int, editing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if editing {
		s.editing[gameNumber] = true
	} else {
		delete(s.editing, gameNumber)
	}
}

func (s *Session) isEditing(gameNumber int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing[gameNumber]
}

func (s *Session) SetAutoConfirm(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoConfirm = enabled
}

func (s *Session) autoConfirming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoConfirm
}

// Pending returns the one opponent action currently surfaced for a decision.
func (s *Session) Pending() (Item, bool) {
	return s.queue.Current()
}

// SubmitGameResult records a win on an open game and counts as this side's
// confirmation in the same write.
func (s *Session) SubmitGameResult(ctx context.Context, gameNumber int, winnerTeamID, winnerPlayerID string, breakAndRun, goldenBreak bool) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}
	if Classify(game) != GameOpen {
		return ErrGameNotOpen
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		WinnerTeamID:   pointer.String(winnerTeamID),
		WinnerPlayerID: pointer.String(winnerPlayerID),
		BreakAndRun:    pointer.Bool(breakAndRun),
		GoldenBreak:    pointer.Bool(goldenBreak),
		MutationToken:  tok,
		MutatedBy:      s.teamID,
	}
	s.setOwnFlag(&upd, true)

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	return nil
}

// ConfirmGame sets this side's confirmation flag without touching the
// winner. Confirming an already-confirmed game is a no-op.
func (s *Session) ConfirmGame(ctx context.Context, gameNumber int) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}

	switch Classify(game) {
	case GameConfirmed:
		return nil
	case GameAwaitingConfirmation:
	default:
		return ErrNothingToConfirm
	}

	if s.ownFlag(game) {
		// Our flag is already down; the opponent is the one who still owes a
		// confirmation.
		return nil
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		ConfirmedAt:   pointer.Time(time.Now().UTC()),
		MutationToken: tok,
		MutatedBy:     s.teamID,
	}
	s.setOwnFlag(&upd, true)

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	return nil
}

// RequestVacate asks the opponent to reopen a confirmed game. The write
// clears both confirmation flags and nothing else; the still-set winner is
// what lets the other side tell this apart from a game that was never
// scored.
func (s *Session) RequestVacate(ctx context.Context, gameNumber int) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}
	if Classify(game) != GameConfirmed {
		return ErrGameNotConfirmed
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		ConfirmedByHome:  pointer.Bool(false),
		ConfirmedByAway:  pointer.Bool(false),
		ClearConfirmedAt: true,
		MutationToken:    tok,
		MutatedBy:        s.teamID,
	}

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	return nil
}

// DenyVacate is a corrective second mutation, not a local no-op: the vacate
// request already cleared the flags on the shared row, so denying rewrites
// both flags true with the original winner.
func (s *Session) DenyVacate(ctx context.Context, gameNumber int) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}

	switch Classify(game) {
	case GameConfirmed:
		return nil
	case GameVacateRequested:
	default:
		return ErrNoVacateRequest
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		WinnerTeamID:    game.WinnerTeamID,
		WinnerPlayerID:  game.WinnerPlayerID,
		ConfirmedByHome: pointer.Bool(true),
		ConfirmedByAway: pointer.Bool(true),
		ConfirmedAt:     pointer.Time(time.Now().UTC()),
		MutationToken:   tok,
		MutatedBy:       s.teamID,
	}

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	s.queue.DropGame(gameNumber)
	return nil
}

// approveVacate reopens the game: winner cleared, flags and outcome flags
// reset. Reached only through the queue.
func (s *Session) approveVacate(ctx context.Context, gameNumber int) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}
	if Classify(game) != GameVacateRequested {
		return nil
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		ClearWinner:      true,
		ConfirmedByHome:  pointer.Bool(false),
		ConfirmedByAway:  pointer.Bool(false),
		BreakAndRun:      pointer.Bool(false),
		GoldenBreak:      pointer.Bool(false),
		ClearConfirmedAt: true,
		MutationToken:    tok,
		MutatedBy:        s.teamID,
	}

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	return nil
}

// denyScore disputes an opponent submission by resetting the row to open, so
// the submitter sees the game reopen rather than a silent conflict.
func (s *Session) denyScore(ctx context.Context, gameNumber int) error {
	if s.isVerified() {
		return ErrMatchVerified
	}

	game, err := s.store.GetGame(ctx, s.matchID, gameNumber)
	if err != nil {
		return err
	}
	if Classify(game) != GameAwaitingConfirmation {
		return nil
	}

	tok := s.token()
	upd := matchdb.GameUpdate{
		ClearWinner:     true,
		ConfirmedByHome: pointer.Bool(false),
		ConfirmedByAway: pointer.Bool(false),
		BreakAndRun:     pointer.Bool(false),
		GoldenBreak:     pointer.Bool(false),
		MutationToken:   tok,
		MutatedBy:       s.teamID,
	}

	if err := s.store.UpdateGame(ctx, s.matchID, gameNumber, upd); err != nil {
		s.forgetToken(tok)
		return err
	}
	return nil
}

// AcceptPending resolves the surfaced item in the opponent's favor.
func (s *Session) AcceptPending(ctx context.Context) error {
	item, ok := s.queue.Current()
	if !ok {
		return ErrNothingPending
	}

	var err error
	switch item.Kind {
	case ItemScoreSubmitted:
		err = s.ConfirmGame(ctx, item.GameNumber)
	case ItemVacateRequested:
		err = s.approveVacate(ctx, item.GameNumber)
	case ItemLineupChange:
		err = s.approveProposal(ctx, item.ProposalID)
	}
	if err != nil {
		return err
	}
	s.queue.Pop()
	return nil
}

// DenyPending resolves the surfaced item against the opponent.
func (s *Session) DenyPending(ctx context.Context) error {
	item, ok := s.queue.Current()
	if !ok {
		return ErrNothingPending
	}

	var err error
	switch item.Kind {
	case ItemScoreSubmitted:
		err = s.denyScore(ctx, item.GameNumber)
	case ItemVacateRequested:
		err = s.DenyVacate(ctx, item.GameNumber)
	case ItemLineupChange:
		err = s.denyProposal(ctx, item.ProposalID)
	}
	if err != nil {
		return err
	}
	s.queue.Pop()
	return nil
}

func (s *Session) approveProposal(ctx context.Context, proposalID string) error {
	proposal, err := s.store.GetProposal(ctx, s.matchID, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != matchdb.ProposalProposed {
		s.queue.DropProposal(proposalID)
		return nil
	}

	// Slot first, status second: a crash in between leaves the proposal
	// proposed and the retry re-writes the same slot value.
	tok := s.token()
	if err := s.store.UpdateLineupSlot(ctx, s.matchID, proposal.TeamID, proposal.Position, proposal.NewPlayerID, tok, s.teamID); err != nil {
		s.forgetToken(tok)
		return err
	}
	return s.store.UpdateProposalStatus(ctx, s.matchID, proposalID, matchdb.ProposalApproved, s.token())
}

func (s *Session) denyProposal(ctx context.Context, proposalID string) error {
	proposal, err := s.store.GetProposal(ctx, s.matchID, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != matchdb.ProposalProposed {
		s.queue.DropProposal(proposalID)
		return nil
	}
	return s.store.UpdateProposalStatus(ctx, s.matchID, proposalID, matchdb.ProposalDenied, s.token())
}

// VerifyMatch records this side's verification marker; when both markers are
// set the match flips to verified and becomes immutable.
func (s *Session) VerifyMatch(ctx context.Context) error {
	match, err := s.store.GetMatch(ctx, s.matchID)
	if err != nil {
		return err
	}
	if match.Status == matchdb.StatusVerified {
		return nil
	}

	tok := s.token()
	upd := matchdb.MatchUpdate{
		MutationToken: tok,
		MutatedBy:     s.teamID,
	}
	completes := false
	if s.side == SideHome {
		upd.VerifiedByHome = pointer.String(s.userID)
		completes = match.VerifiedByAway != ""
	} else {
		upd.VerifiedByAway = pointer.String(s.userID)
		completes = match.VerifiedByHome != ""
	}
	if completes {
		verified := matchdb.StatusVerified
		upd.Status = &verified
	}

	if err := s.store.UpdateMatch(ctx, s.matchID, upd); err != nil {
		s.forgetToken(tok)
		return err
	}

	if completes {
		s.mu.Lock()
		s.verified = true
		s.mu.Unlock()
		s.sendReportOnce(ctx)
	}
	return nil
}

func (s *Session) ownFlag(g *matchdb.Game) bool {
	if s.side == SideHome {
		return g.ConfirmedByHome
	}
	return g.ConfirmedByAway
}

func (s *Session) setOwnFlag(upd *matchdb.GameUpdate, value bool) {
	if s.side == SideHome {
		upd.ConfirmedByHome = pointer.Bool(value)
	} else {
		upd.ConfirmedByAway = pointer.Bool(value)
	}
}

func (s *Session) sendReportOnce(ctx context.Context) {
	if s.side != SideHome || s.reporter == nil {
		return
	}

	s.mu.Lock()
	if s.reportSent {
		s.mu.Unlock()
		return
	}
	s.reportSent = true
	s.mu.Unlock()

	match, err := s.store.GetMatch(ctx, s.matchID)
	if err != nil {
		log.Printf("Failed to load match %s for the final report: %v\n", s.matchID, err)
		return
	}
	games, err := s.store.ListGames(ctx, s.matchID)
	if err != nil {
		log.Printf("Failed to load games for match %s: %v\n", s.matchID, err)
		return
	}

	homeWins, awayWins := countConfirmedWins(match, games)
	if err := s.reporter.SendMatchReport(ctx, match, homeWins, awayWins); err != nil {
		log.Printf("Failed to send match report for %s: %v\n", s.matchID, err)
	}
}

func countConfirmedWins(match *matchdb.Match, games []matchdb.Game) (home, away int) {
	for i := range games {
		g := &games[i]
		if Classify(g) != GameConfirmed || g.WinnerTeamID == nil {
			continue
		}
		if *g.WinnerTeamID == match.HomeTeamID {
			home++
		} else if *g.WinnerTeamID == match.AwayTeamID {
			away++
		}
	}
	return home, away
}

// Manager owns the live scorekeeper sessions of this process.
type Manager struct {
	store    matchdb.Store
	feed     matchdb.Feed
	reporter Reporter

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store matchdb.Store, feed matchdb.Feed, reporter Reporter) *Manager {
	return &Manager{
		store:    store,
		feed:     feed,
		reporter: reporter,
		sessions: map[string]*Session{},
	}
}

func sessionKey(matchID, teamID string) string {
	return matchID + "|" + teamID
}

// CreateMatch seeds a match row plus its full regular game sequence.
func (m *Manager) CreateMatch(ctx context.Context, homeTeamID, awayTeamID string, playersPerTeam int, doubleRoundRobin bool, differential float64) (string, error) {
	order, err := gameorder.Generate(playersPerTeam, doubleRoundRobin)
	if err != nil {
		return "", err
	}
	if _, err := handicap.Thresholds(differential, handicap.ForPlayers(playersPerTeam)); err != nil {
		return "", err
	}

	match := &matchdb.Match{
		HomeTeamID:           homeTeamID,
		AwayTeamID:           awayTeamID,
		Status:               matchdb.StatusScheduled,
		PlayersPerTeam:       playersPerTeam,
		DoubleRoundRobin:     doubleRoundRobin,
		HandicapDifferential: differential,
	}

	games := make([]matchdb.Game, 0, len(order))
	for _, entry := range order {
		homeAction := matchdb.ActionBreaks
		awayAction := matchdb.ActionRacks
		if entry.Breaker == gameorder.SideAway {
			homeAction, awayAction = awayAction, homeAction
		}
		games = append(games, matchdb.Game{
			GameNumber:   entry.GameNumber,
			HomePosition: entry.HomePosition,
			AwayPosition: entry.AwayPosition,
			HomeAction:   homeAction,
			AwayAction:   awayAction,
			GameType:     matchdb.GameTypeEightBall,
		})
	}

	return m.store.CreateMatch(ctx, match, games)
}

// Open starts a session for one team. One session per team per process; the
// session runs on its own context until Close, not on any request's.
func (m *Manager) Open(opts SessionOptions) (*Session, error) {
	opts.Store = m.store
	opts.Feed = m.feed
	opts.Reporter = m.reporter

	key := sessionKey(opts.MatchID, opts.TeamID)
	m.mu.Lock()
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	session := NewSession(opts)
	m.sessions[key] = session
	m.mu.Unlock()

	if err := session.Start(context.Background()); err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, err
	}
	return session, nil
}

func (m *Manager) Get(matchID, teamID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionKey(matchID, teamID)]
	return session, ok
}

func (m *Manager) Close(matchID, teamID string) {
	key := sessionKey(matchID, teamID)
	m.mu.Lock()
	session := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if session != nil {
		session.Close()
	}
}
