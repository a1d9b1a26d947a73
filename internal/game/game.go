// Package game implements the state machine for one game instance: card
// dealing, the roster, countdown and inactivity timers, and scoring on
// completion. All mutation goes through the exported action methods, which
// serialize on the game's own mutex; timer callbacks drive the same
// transitions and no-op when another path already advanced or destroyed the
// game.
package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"card-party/internal/poll"

	"github.com/rs/zerolog/log"
)

// Readiness thresholds and scoring constants.
const (
	MinPicked = 3
	MinVoted  = 2

	PointsGMWon    = 10
	PointsGMFailed = 2
	PointsGMLost   = 5
	PointsPWon     = 5
	PointsPLost    = 1
	PointsPFailed  = 2
)

const (
	DefaultCountdown  = 60 * time.Second
	DefaultInactivity = 24 * time.Hour
)

// Config carries the timer durations. Zero values fall back to the defaults.
type Config struct {
	Countdown  time.Duration
	Inactivity time.Duration
}

func (c Config) withDefaults() Config {
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	if c.Inactivity <= 0 {
		c.Inactivity = DefaultInactivity
	}
	return c
}

// Observer receives autonomous (timer-driven) transitions so the owning
// service can re-publish them exactly like client-driven ones. Observer
// methods are invoked outside the game's mutex and must treat the game as
// read-only.
type Observer interface {
	// GameChanged reports a timer-driven state mutation.
	GameChanged(g *Game, action string, details map[string]any)
	// GameEnded reports that the game reached a terminal state ("complete"
	// or "canceled"); the owner is expected to unregister and Destroy it.
	GameEnded(g *Game, reason string)
}

// ScoreSummary is what Complete reports for event publication.
type ScoreSummary struct {
	WinnerCard int
	Winners    []string
	Deltas     map[string]int
}

type Game struct {
	*poll.Pollable

	store    Store
	cfg      Config
	observer Observer

	mu        sync.Mutex
	id        string
	ownerID   string
	state     State
	sentence  string
	players   []string // join order, owner first
	hands     map[string][]int
	bank      []int
	board     []int
	invited   map[string]struct{}
	picks     map[string]int
	votes     map[string]int
	wins      map[string]bool
	ownerCard int

	countdownDur time.Duration
	countdown    *time.Timer
	countdownOn  bool
	inactivity   *time.Timer
	destroyed    bool
}

// New returns an empty game; Create must follow.
func New(st Store, cfg Config) *Game {
	return &Game{
		Pollable: poll.New(),
		store:    st,
		cfg:      cfg.withDefaults(),
		state:    StateCreate,
		hands:    map[string][]int{},
		invited:  map[string]struct{}{},
		picks:    map[string]int{},
		votes:    map[string]int{},
		wins:     map[string]bool{},
	}
}

// Restore rebuilds a game from its persisted record. Timers are not started
// until Activate; in-flight countdowns are not restored at all and resume
// via the next qualifying pick or vote.
func Restore(st Store, cfg Config, rec *Record) *Game {
	g := New(st, cfg)
	g.id = rec.ID
	g.ownerID = rec.OwnerID
	g.state = rec.State
	g.sentence = rec.Sentence
	g.bank = DecodeCards(rec.Bank)
	g.board = DecodeCards(rec.Board)
	if rec.CountdownSeconds > 0 {
		g.countdownDur = time.Duration(rec.CountdownSeconds) * time.Second
	}
	for _, p := range rec.Players {
		g.players = append(g.players, p.PlayerID)
		g.hands[p.PlayerID] = DecodeCards(p.Hand)
		if pick := DecodeCard(p.Pick); pick != 0 {
			g.picks[p.PlayerID] = pick
		}
		if vote := DecodeCard(p.Vote); vote != 0 {
			g.votes[p.PlayerID] = vote
		}
		if p.Win {
			g.wins[p.PlayerID] = true
		}
	}
	if g.ownerCard == 0 {
		g.ownerCard = g.picks[g.ownerID]
	}
	for _, id := range rec.Invited {
		g.invited[id] = struct{}{}
	}
	return g
}

// SetObserver attaches the autonomous-transition observer.
func (g *Game) SetObserver(obs Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observer = obs
}

// Activate starts the inactivity timer. No-op for terminal or destroyed
// games.
func (g *Game) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed || g.state.Terminal() || g.inactivity != nil {
		return
	}
	g.inactivity = time.AfterFunc(g.cfg.Inactivity, g.onInactivity)
}

// Create persists the new game and deals the owner's initial hand, used to
// choose the card the others will guess.
func (g *Game) Create(ctx context.Context, ownerID, previousGameID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.id != "" {
		return "", warnState(CodeWrongStateForSettingCard, g.state)
	}
	deck := NewDeck()
	hand := deck.Deal(CardsPerPlayer)
	bank := deck.Remaining()
	id, err := g.store.CreateGame(ctx, ownerID, EncodeCards(hand), EncodeCards(bank), previousGameID)
	if err != nil {
		return "", err
	}
	g.id = id
	g.ownerID = ownerID
	g.players = []string{ownerID}
	g.hands[ownerID] = hand
	g.bank = bank
	g.inactivity = time.AfterFunc(g.cfg.Inactivity, g.onInactivity)
	g.touchLocked()
	return id, nil
}

// SetCard records the owner's chosen card and deals the real hands: the
// remaining 42-card deck is reshuffled and every seated player receives a
// fresh hand, the rest becoming the bank. Callable again while still in
// create to change the choice.
func (g *Game) SetCard(ctx context.Context, playerID string, card int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if playerID != g.ownerID {
		return faultNotOwner("set_card", playerID, g.ownerID)
	}
	if g.state != StateCreate {
		return warnState(CodeWrongStateForSettingCard, g.state)
	}
	if !contains(g.hands[g.ownerID], card) {
		return warn(CodeCardNotSet, map[string]any{"card": card})
	}

	deck := NewDeck(card)
	hands := make(map[string][]int, len(g.players))
	encoded := make(map[string]string, len(g.players))
	for _, p := range g.players {
		h := deck.Deal(CardsPerPlayer)
		hands[p] = h
		encoded[p] = EncodeCards(h)
	}
	bank := deck.Remaining()
	if err := g.store.SaveDeal(ctx, g.id, EncodeCards(bank), encoded, EncodeCard(card)); err != nil {
		return err
	}
	g.hands = hands
	g.bank = bank
	g.ownerCard = card
	g.picks = map[string]int{g.ownerID: card}
	g.touchLocked()
	return nil
}

// SetSentence stores the owner's sentence and opens the invitation state.
// Must follow SetCard.
func (g *Game) SetSentence(ctx context.Context, playerID, sentence string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if playerID != g.ownerID {
		return faultNotOwner("set_sentence", playerID, g.ownerID)
	}
	if g.state != StateCreate {
		return warnState(CodeWrongStateForSettingSentence, g.state)
	}
	if g.ownerCard == 0 {
		return warnState(CodeCardNotSet, g.state)
	}
	if err := g.store.SaveSentence(ctx, g.id, sentence, StateInvitation); err != nil {
		return err
	}
	g.sentence = sentence
	g.state = StateInvitation
	g.touchLocked()
	return nil
}

// Participate seats a joining player. Before the deal their hand is empty
// and is dealt retroactively by SetCard; after it, the hand comes from the
// bank. Joining twice is a no-op.
func (g *Game) Participate(ctx context.Context, playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if g.state != StateCreate && g.state != StateInvitation {
		return warnState(CodeWrongStateForParticipating, g.state)
	}
	if g.isPlayerLocked(playerID) {
		delete(g.invited, playerID)
		return nil
	}
	if len(g.players) >= NPlayers {
		return warn(CodeGameFull, map[string]any{"max_players": NPlayers})
	}
	var hand []int
	if g.ownerCard != 0 {
		hand = g.bank[:CardsPerPlayer]
	}
	if err := g.store.AddPlayer(ctx, g.id, playerID, EncodeCards(hand)); err != nil {
		if err == ErrGameFull {
			// Lost a seat race; the store is the authority on the cap.
			return warn(CodeGameFull, map[string]any{"max_players": NPlayers})
		}
		return err
	}
	if g.ownerCard != 0 {
		g.bank = g.bank[CardsPerPlayer:]
	}
	g.players = append(g.players, playerID)
	g.hands[playerID] = hand
	delete(g.invited, playerID)
	g.touchLocked()
	return nil
}

// Invite registers pending invitations and returns only the newly added ids.
func (g *Game) Invite(ctx context.Context, callerID string, playerIDs []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return nil, err
	}
	if callerID != g.ownerID {
		return nil, faultNotOwner("invite", callerID, g.ownerID)
	}
	if g.state != StateCreate && g.state != StateInvitation {
		return nil, warnState(CodeWrongStateForInviting, g.state)
	}
	added := make([]string, 0, len(playerIDs))
	for _, id := range playerIDs {
		if g.isPlayerLocked(id) {
			continue
		}
		if _, ok := g.invited[id]; ok {
			continue
		}
		added = append(added, id)
	}
	if len(added) == 0 {
		return added, nil
	}
	if err := g.store.AddInvitations(ctx, g.id, added); err != nil {
		return nil, err
	}
	for _, id := range added {
		g.invited[id] = struct{}{}
	}
	g.touchLocked()
	return added, nil
}

// Leave removes players from the roster. Their cards leave the game with
// them; nothing returns to the bank.
func (g *Game) Leave(ctx context.Context, playerIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	removed := make([]string, 0, len(playerIDs))
	for _, id := range playerIDs {
		if id == g.ownerID || !g.isPlayerLocked(id) {
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return nil
	}
	if err := g.store.RemovePlayers(ctx, g.id, removed); err != nil {
		return err
	}
	g.dropPlayersLocked(removed)
	g.touchLocked()
	return nil
}

// Pick records (or overwrites) a player's decoy pick. Crossing MinPicked
// starts the countdown if none is running.
func (g *Game) Pick(ctx context.Context, playerID string, card int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if g.state != StateInvitation {
		return warnState(CodeWrongStateForPicking, g.state)
	}
	if playerID == g.ownerID {
		return faultOwnerForbidden("pick", playerID)
	}
	if !g.isPlayerLocked(playerID) {
		return warn(CodePlayerNotInGame, map[string]any{"player_id": playerID})
	}
	if !contains(g.hands[playerID], card) {
		return warn(CodeCardNotSet, map[string]any{"card": card})
	}
	if err := g.store.SavePick(ctx, g.id, playerID, EncodeCard(card)); err != nil {
		return err
	}
	g.picks[playerID] = card
	if len(g.picks) >= MinPicked {
		g.startCountdownLocked()
	}
	g.touchLocked()
	return nil
}

// Voting is the owner's manual advance to the vote state. Allowed even
// below MinPicked (owner override); timer-fired advances are not.
func (g *Game) Voting(ctx context.Context, callerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if callerID != g.ownerID {
		return faultNotOwner("voting", callerID, g.ownerID)
	}
	if g.state != StateInvitation {
		return warnState(CodeWrongStateForStartingVote, g.state)
	}
	return g.enterVotingLocked(ctx)
}

// Vote records (or overwrites) a voter's choice from the board. Crossing
// MinVoted starts the countdown if none is running.
func (g *Game) Vote(ctx context.Context, playerID string, card int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if g.state != StateVote {
		return warnState(CodeWrongStateForVoting, g.state)
	}
	if playerID == g.ownerID {
		return faultOwnerForbidden("vote", playerID)
	}
	if !g.isPlayerLocked(playerID) {
		return warn(CodePlayerNotInGame, map[string]any{"player_id": playerID})
	}
	if !contains(g.board, card) {
		return warn(CodeCardNotSet, map[string]any{"card": card})
	}
	if err := g.store.SaveVote(ctx, g.id, playerID, EncodeCard(card)); err != nil {
		return err
	}
	g.votes[playerID] = card
	if len(g.votes) >= MinVoted {
		g.startCountdownLocked()
	}
	g.touchLocked()
	return nil
}

// Complete is the owner's manual completion: scoring runs, results persist,
// and the game reaches its terminal state. The caller (the registry) is
// responsible for destroying it afterwards.
func (g *Game) Complete(ctx context.Context, callerID string) (*ScoreSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return nil, err
	}
	if callerID != g.ownerID {
		return nil, faultNotOwner("complete", callerID, g.ownerID)
	}
	if g.state != StateVote {
		return nil, warnState(CodeWrongStateForCompleting, g.state)
	}
	return g.completeLocked(ctx)
}

// SetCountdown overrides the countdown duration for this game
// (last-write-wins) and restarts any running countdown with it.
func (g *Game) SetCountdown(ctx context.Context, seconds int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.guardLocked(); err != nil {
		return err
	}
	if err := g.store.SaveCountdown(ctx, g.id, seconds); err != nil {
		return err
	}
	g.countdownDur = time.Duration(seconds) * time.Second
	if g.countdownOn {
		g.countdown.Stop()
		g.countdown = time.AfterFunc(g.countdownDurLocked(), g.onCountdown)
	}
	g.touchLocked()
	return nil
}

// Destroy cancels the timers and resolves pending waiters with no new data.
// Idempotent. After Destroy every action returns GAME_NOT_LOADED.
func (g *Game) Destroy() {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return
	}
	g.destroyed = true
	g.stopTimersLocked()
	g.mu.Unlock()
	g.Pollable.Destroy()
}

// Ready reports whether the current state may auto-advance.
func (g *Game) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readyLocked()
}

func (g *Game) ID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *Game) OwnerID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ownerID
}

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Game) Destroyed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyed
}

func (g *Game) CountdownRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countdownOn
}

// Board returns the played cards once voting has begun.
func (g *Game) Board() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, len(g.board))
	copy(out, g.board)
	return out
}

// Players returns the roster in join order.
func (g *Game) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.players))
	copy(out, g.players)
	return out
}

// Audience returns everyone attached to the game: roster plus pending
// invitations. Used for inbox notification fan-out.
func (g *Game) Audience() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.players)+len(g.invited))
	out = append(out, g.players...)
	for id := range g.invited {
		out = append(out, id)
	}
	return out
}

// --- internals; all *Locked methods require g.mu held ---

func (g *Game) guardLocked() error {
	if g.destroyed {
		return warn(CodeGameNotLoaded, map[string]any{"game_id": g.id})
	}
	if g.id == "" {
		return warn(CodeGameDoesNotExist, nil)
	}
	return nil
}

func (g *Game) isPlayerLocked(playerID string) bool {
	for _, p := range g.players {
		if p == playerID {
			return true
		}
	}
	return false
}

func (g *Game) readyLocked() bool {
	switch g.state {
	case StateInvitation:
		return len(g.picks) >= MinPicked
	case StateVote:
		return len(g.votes) >= MinVoted
	default:
		return false
	}
}

func (g *Game) touchLocked() {
	g.Pollable.Touch()
	if g.inactivity != nil {
		g.inactivity.Reset(g.cfg.Inactivity)
	}
}

func (g *Game) countdownDurLocked() time.Duration {
	if g.countdownDur > 0 {
		return g.countdownDur
	}
	return g.cfg.Countdown
}

func (g *Game) startCountdownLocked() {
	if g.countdownOn || g.state.Terminal() {
		return
	}
	g.countdownOn = true
	g.countdown = time.AfterFunc(g.countdownDurLocked(), g.onCountdown)
}

func (g *Game) stopTimersLocked() {
	if g.countdown != nil {
		g.countdown.Stop()
		g.countdownOn = false
	}
	if g.inactivity != nil {
		g.inactivity.Stop()
	}
}

func (g *Game) dropPlayersLocked(removed []string) {
	gone := map[string]bool{}
	for _, id := range removed {
		gone[id] = true
		delete(g.hands, id)
		delete(g.picks, id)
		delete(g.votes, id)
		delete(g.invited, id)
	}
	kept := g.players[:0]
	for _, p := range g.players {
		if !gone[p] {
			kept = append(kept, p)
		}
	}
	g.players = kept
}

// enterVotingLocked performs the invitation -> vote transition: culls
// players without a pick, plays every remaining pick onto a shuffled board
// and cancels pending invitations.
func (g *Game) enterVotingLocked(ctx context.Context) error {
	var culled []string
	for _, p := range g.players {
		if _, ok := g.picks[p]; !ok {
			culled = append(culled, p)
		}
	}

	keptHands := map[string][]int{}
	board := make([]int, 0, len(g.players))
	for _, p := range g.players {
		pick, ok := g.picks[p]
		if !ok {
			continue
		}
		board = append(board, pick)
		if p == g.ownerID {
			keptHands[p] = g.hands[p]
			continue
		}
		keptHands[p] = removeCard(g.hands[p], pick)
	}
	rand.Shuffle(len(board), func(i, j int) {
		board[i], board[j] = board[j], board[i]
	})

	encoded := make(map[string]string, len(keptHands))
	for p, h := range keptHands {
		encoded[p] = EncodeCards(h)
	}
	if err := g.store.SaveVoting(ctx, g.id, EncodeCards(board), encoded, culled); err != nil {
		return err
	}

	g.dropPlayersLocked(culled)
	for p, h := range keptHands {
		g.hands[p] = h
	}
	g.board = board
	g.invited = map[string]struct{}{}
	g.state = StateVote
	if g.countdown != nil {
		g.countdown.Stop()
		g.countdownOn = false
	}
	g.touchLocked()
	return nil
}

func (g *Game) completeLocked(ctx context.Context) (*ScoreSummary, error) {
	summary := g.scoreLocked()
	if err := g.store.CompleteGame(ctx, g.id, summary.Winners, summary.Deltas); err != nil {
		return nil, err
	}
	for _, id := range summary.Winners {
		g.wins[id] = true
	}
	g.state = StateComplete
	if g.countdown != nil {
		g.countdown.Stop()
		g.countdownOn = false
	}
	g.touchLocked()
	return summary, nil
}

func (g *Game) cancelLocked(ctx context.Context) error {
	if err := g.store.CancelGame(ctx, g.id); err != nil {
		return err
	}
	g.invited = map[string]struct{}{}
	g.state = StateCanceled
	g.touchLocked()
	return nil
}

// onCountdown fires the short auto-advance timer. Readiness is re-checked
// under the lock: if it was lost, or another path already advanced or
// destroyed the game, the firing degrades to a cancel or a no-op.
func (g *Game) onCountdown() {
	g.advance("countdown")
}

// onInactivity fires the long stall timer: advance when ready, cancel
// otherwise.
func (g *Game) onInactivity() {
	g.advance("inactivity")
}

func (g *Game) advance(source string) {
	ctx := context.Background()
	var (
		changedAction  string
		changedDetails map[string]any
		endedReason    string
	)

	g.mu.Lock()
	if source == "countdown" {
		g.countdownOn = false
	}
	if g.destroyed || g.state.Terminal() {
		g.mu.Unlock()
		return
	}
	switch {
	case g.state == StateInvitation && g.readyLocked():
		if err := g.enterVotingLocked(ctx); err != nil {
			log.Error().Err(err).Str("game_id", g.id).Str("source", source).Msg("auto voting transition failed")
			g.mu.Unlock()
			return
		}
		changedAction = "voting"
		changedDetails = map[string]any{"board": append([]int{}, g.board...)}
	case g.state == StateVote && g.readyLocked():
		summary, err := g.completeLocked(ctx)
		if err != nil {
			log.Error().Err(err).Str("game_id", g.id).Str("source", source).Msg("auto completion failed")
			g.mu.Unlock()
			return
		}
		changedAction = "complete"
		changedDetails = map[string]any{"winners": summary.Winners, "scores": summary.Deltas}
		endedReason = "complete"
	default:
		if err := g.cancelLocked(ctx); err != nil {
			log.Error().Err(err).Str("game_id", g.id).Str("source", source).Msg("auto cancel failed")
			if g.inactivity != nil {
				g.inactivity.Reset(g.cfg.Inactivity)
			}
			g.mu.Unlock()
			return
		}
		endedReason = "canceled"
	}
	obs := g.observer
	g.mu.Unlock()

	log.Info().Str("game_id", g.ID()).Str("source", source).Str("state", string(g.State())).Msg("timer transition")
	if obs == nil {
		return
	}
	if changedAction != "" {
		obs.GameChanged(g, changedAction, changedDetails)
	}
	if endedReason != "" {
		obs.GameEnded(g, endedReason)
	}
}

func contains(cards []int, card int) bool {
	for _, c := range cards {
		if c == card {
			return true
		}
	}
	return false
}

func removeCard(cards []int, card int) []int {
	out := make([]int, 0, len(cards))
	removed := false
	for _, c := range cards {
		if c == card && !removed {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}
