// Package registry owns the in-memory map of live games. It restores
// unfinished games at startup, routes actions to the right game, serves
// filtered views and long polls, and re-publishes every mutation on the
// event bus.
package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"card-party/internal/config"
	"card-party/internal/eventbus"
	"card-party/internal/game"
	"card-party/internal/levels"
	"card-party/internal/poll"
	"card-party/internal/store"

	"github.com/rs/zerolog"
)

// Store is everything the registry needs from persistence: the game write
// interface plus reads for restore, views and the event log.
type Store interface {
	game.Store
	GetGame(ctx context.Context, gameID string) (*game.Record, error)
	ListUnfinishedGameIDs(ctx context.Context) ([]string, error)
	GetPlayer(ctx context.Context, playerID string) (*store.Player, error)
	AppendEvent(ctx context.Context, playerID, gameID, eventType string, data map[string]any) error
}

// PlayerDirectory resolves player identity. Provided by an external
// collaborator; the engine itself never authenticates anyone.
type PlayerDirectory interface {
	DisplayName(ctx context.Context, playerID string) (string, error)
}

// SelfDirectory is the fallback directory: every player's display name is
// their id.
type SelfDirectory struct{}

func (SelfDirectory) DisplayName(_ context.Context, playerID string) (string, error) {
	return playerID, nil
}

type Service struct {
	store Store
	bus   *eventbus.Bus
	dir   PlayerDirectory
	cfg   config.GameConfig
	log   zerolog.Logger

	mu      sync.Mutex
	games   map[string]*game.Game
	inboxes map[string]*poll.Pollable

	// publishMu serializes bus notifications so subscribers observe events
	// in a single order and Notify is never entered concurrently.
	publishMu sync.Mutex

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(st Store, bus *eventbus.Bus, dir PlayerDirectory, cfg config.GameConfig, logger zerolog.Logger) *Service {
	if dir == nil {
		dir = SelfDirectory{}
	}
	return &Service{
		store:   st,
		bus:     bus,
		dir:     dir,
		cfg:     cfg,
		log:     logger,
		games:   map[string]*game.Game{},
		inboxes: map[string]*poll.Pollable{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Service) gameConfig() game.Config {
	return game.Config{Countdown: s.cfg.Countdown, Inactivity: s.cfg.Inactivity}
}

// Run loads unfinished games, announces startup on the bus and starts the
// idle sweeper. Close is its counterpart.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	s.publish(eventbus.Event{Type: eventbus.TypeStart})
	s.started.Store(true)
	go s.sweeper()
	return nil
}

// Close announces shutdown and destroys every live game. Pending long polls
// resolve with no new data.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started.Load() {
			<-s.done
		}
		s.publish(eventbus.Event{Type: eventbus.TypeStop})

		s.mu.Lock()
		games := make([]*game.Game, 0, len(s.games))
		for _, g := range s.games {
			games = append(games, g)
		}
		s.games = map[string]*game.Game{}
		inboxes := make([]*poll.Pollable, 0, len(s.inboxes))
		for _, p := range s.inboxes {
			inboxes = append(inboxes, p)
		}
		s.inboxes = map[string]*poll.Pollable{}
		s.mu.Unlock()

		for _, g := range games {
			g.Destroy()
		}
		for _, p := range inboxes {
			p.Destroy()
		}
	})
}

// Load restores every non-terminal game from storage into the live map.
// In-flight countdowns are not restored; the next qualifying pick or vote
// starts a fresh one.
func (s *Service) Load(ctx context.Context) error {
	ids, err := s.store.ListUnfinishedGameIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := s.store.GetGame(ctx, id)
		if err != nil {
			return err
		}
		g := game.Restore(s.store, s.gameConfig(), rec)
		g.SetObserver(s)
		s.mu.Lock()
		s.games[id] = g
		s.mu.Unlock()
		g.Activate()
		s.publish(eventbus.Event{Type: eventbus.TypeChange, GameID: id, Action: "load", Game: g})
	}
	s.log.Info().Int("games", len(ids)).Msg("restored unfinished games")
	return nil
}

func (s *Service) lookup(gameID string) (*game.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	return g, ok
}

// Live reports how many games are currently loaded.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// Dispatch validates and routes one action. A successful state-changing
// action is re-published as a change event; warnings and faults flow back
// to the caller untouched.
func (s *Service) Dispatch(ctx context.Context, req *Request) (map[string]any, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Action == ActionCreate {
		return s.create(ctx, req)
	}

	g, ok := s.lookup(req.GameID)
	if !ok {
		return nil, &game.Warning{Code: game.CodeGameNotLoaded, Data: map[string]any{"game_id": req.GameID}}
	}

	var (
		result  map[string]any
		details map[string]any
		err     error
	)
	switch req.Action {
	case ActionSetCard:
		if err = g.SetCard(ctx, req.PlayerID, req.Card); err == nil {
			result = map[string]any{"state": string(g.State())}
			details = map[string]any{"player_id": req.PlayerID}
		}
	case ActionSetSentence:
		if err = g.SetSentence(ctx, req.PlayerID, req.Sentence); err == nil {
			result = map[string]any{"state": string(g.State())}
			details = map[string]any{"player_id": req.PlayerID, "sentence": req.Sentence}
		}
	case ActionParticipate:
		if err = g.Participate(ctx, req.PlayerID); err == nil {
			result = map[string]any{"state": string(g.State())}
			details = map[string]any{"player_id": req.PlayerID}
		}
	case ActionInvite:
		var added []string
		if added, err = g.Invite(ctx, req.PlayerID, req.PlayerIDs); err == nil {
			result = map[string]any{"invited": added}
			details = map[string]any{"player_id": req.PlayerID, "player_ids": added}
		}
	case ActionLeave:
		if err = g.Leave(ctx, req.PlayerIDs); err == nil {
			result = map[string]any{"state": string(g.State())}
			details = map[string]any{"player_ids": req.PlayerIDs}
		}
	case ActionPick:
		if err = g.Pick(ctx, req.PlayerID, req.Card); err == nil {
			result = map[string]any{"ready": g.Ready()}
			details = map[string]any{"player_id": req.PlayerID}
		}
	case ActionVoting:
		if err = g.Voting(ctx, req.PlayerID); err == nil {
			result = map[string]any{"state": string(g.State())}
			details = map[string]any{"board": g.Board()}
		}
	case ActionVote:
		if err = g.Vote(ctx, req.PlayerID, req.Card); err == nil {
			result = map[string]any{"ready": g.Ready()}
			details = map[string]any{"player_id": req.PlayerID}
		}
	case ActionComplete:
		var summary *game.ScoreSummary
		if summary, err = g.Complete(ctx, req.PlayerID); err == nil {
			result = map[string]any{
				"winner_card": summary.WinnerCard,
				"winners":     summary.Winners,
				"scores":      summary.Deltas,
			}
			details = map[string]any{"winners": summary.Winners, "scores": summary.Deltas}
		}
	case ActionSetCountdown:
		if err = g.SetCountdown(ctx, req.Duration); err == nil {
			result = map[string]any{"countdown": req.Duration}
			details = map[string]any{"duration": req.Duration}
		}
	}
	if err != nil {
		return nil, err
	}

	s.publish(eventbus.Event{
		Type:    eventbus.TypeChange,
		GameID:  req.GameID,
		Action:  string(req.Action),
		Details: details,
		Game:    g,
	})
	if req.Action == ActionComplete {
		s.finish(g, "complete")
	}
	return result, nil
}

func (s *Service) create(ctx context.Context, req *Request) (map[string]any, error) {
	g := game.New(s.store, s.gameConfig())
	g.SetObserver(s)
	id, err := g.Create(ctx, req.PlayerID, req.PreviousGameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.games[id] = g
	s.mu.Unlock()
	s.publish(eventbus.Event{
		Type:    eventbus.TypeChange,
		GameID:  id,
		Action:  string(ActionCreate),
		Details: map[string]any{"player_id": req.PlayerID},
		Game:    g,
	})
	return map[string]any{"game_id": id}, nil
}

// View returns a game serialized for viewerID. A game with no live entry is
// loaded from storage just long enough to answer and destroyed again; a
// live entry that loses a race with destruction still yields a consistent
// stale snapshot.
func (s *Service) View(ctx context.Context, gameID, viewerID string) (*game.Snapshot, error) {
	if g, ok := s.lookup(gameID); ok {
		return g.SnapshotFor(viewerID), nil
	}
	rec, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return nil, &game.Warning{Code: game.CodeGameDoesNotExist, Data: map[string]any{"game_id": gameID}}
		}
		return nil, err
	}
	tmp := game.Restore(s.store, s.gameConfig(), rec)
	defer tmp.Destroy()
	return tmp.SnapshotFor(viewerID), nil
}

// Player returns a leveling profile: persisted score plus the derived
// level figures and the directory display name.
func (s *Service) Player(ctx context.Context, playerID string) (map[string]any, error) {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	name, err := s.dir.DisplayName(ctx, playerID)
	if err != nil {
		name = playerID
	}
	level, scoreNext, scoreLeft := levels.Calculate(p.Score)
	return map[string]any{
		"player_id":  playerID,
		"name":       name,
		"score":      p.Score,
		"score_prev": p.ScorePrev,
		"levelups":   p.Levelups,
		"level":      level,
		"score_next": scoreNext,
		"score_left": scoreLeft,
	}, nil
}

// PollRequest names the targets one long poll watches. Types can hold
// "game" (requires GameID) and "player" (requires PlayerID, watching that
// player's inbox).
type PollRequest struct {
	Types    []string
	GameID   string
	PlayerID string
	Modified int64
	Timeout  time.Duration
}

// Poll blocks until any watched target changes, the timeout elapses, or ctx
// is done. The timeout is clamped to the configured maximum.
func (s *Service) Poll(ctx context.Context, req PollRequest) poll.Result {
	timeout := req.Timeout
	if timeout <= 0 || timeout > s.cfg.PollTimeout {
		timeout = s.cfg.PollTimeout
	}

	ch := make(chan poll.Result, len(req.Types))
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	for _, typ := range req.Types {
		var target *poll.Pollable
		switch typ {
		case "game":
			g, ok := s.lookup(req.GameID)
			if !ok {
				return poll.Result{Modified: req.Modified, Destroyed: true}
			}
			target = g.Pollable
		case "player":
			target = s.inbox(req.PlayerID)
		default:
			continue
		}
		immediate, cancel := target.Subscribe(req.Modified, ch)
		if immediate != nil {
			cancel()
			return *immediate
		}
		cancels = append(cancels, cancel)
	}
	if len(cancels) == 0 {
		return poll.Result{Modified: req.Modified, TimedOut: true}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r
	case <-timer.C:
		return poll.Result{Modified: req.Modified, TimedOut: true}
	case <-ctx.Done():
		return poll.Result{Modified: req.Modified, TimedOut: true}
	}
}

// inbox returns (lazily creating) the notification Pollable for a player.
func (s *Service) inbox(playerID string) *poll.Pollable {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inboxes[playerID]
	if !ok {
		p = poll.New()
		s.inboxes[playerID] = p
	}
	return p
}

// GameChanged re-publishes a timer-driven mutation. Part of game.Observer.
func (s *Service) GameChanged(g *game.Game, action string, details map[string]any) {
	s.publish(eventbus.Event{
		Type:    eventbus.TypeChange,
		GameID:  g.ID(),
		Action:  action,
		Details: details,
		Game:    g,
	})
}

// GameEnded unregisters and destroys a game that reached a terminal state.
// Part of game.Observer.
func (s *Service) GameEnded(g *game.Game, reason string) {
	s.finish(g, reason)
}

// finish removes the game from the live map, tells listeners, then destroys
// it, in that order.
func (s *Service) finish(g *game.Game, reason string) {
	id := g.ID()
	s.mu.Lock()
	delete(s.games, id)
	s.mu.Unlock()
	s.publish(eventbus.Event{
		Type:    eventbus.TypeDelete,
		GameID:  id,
		Details: map[string]any{"reason": reason},
		Game:    g,
	})
	g.Destroy()
	s.log.Info().Str("game_id", id).Str("reason", reason).Msg("game finished")
}

// publish serializes bus notifications, appends to the event log and wakes
// the inboxes of everyone attached to the game. Listeners receive events
// over channels, so none of their code runs inside Notify; a listener that
// calls back into Notify synchronously trips the bus's re-entrancy guard.
// Concurrent actions on the same game are legal here and serialize on the
// game's own mutex.
func (s *Service) publish(ev eventbus.Event) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.bus.Notify(ev)

	eventType := string(ev.Type)
	if ev.Action != "" {
		eventType = ev.Action
	}
	playerID := ""
	if id, ok := ev.Details["player_id"].(string); ok {
		playerID = id
	}
	if err := s.store.AppendEvent(context.Background(), playerID, ev.GameID, eventType, ev.Details); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("event log append failed")
	}

	if ev.Game != nil {
		s.mu.Lock()
		var wake []*poll.Pollable
		for _, playerID := range ev.Game.Audience() {
			if p, ok := s.inboxes[playerID]; ok {
				wake = append(wake, p)
			}
		}
		s.mu.Unlock()
		for _, p := range wake {
			p.Touch()
		}
	}
}

// sweeper unloads games idle past the configured threshold. Unloading only
// drops the in-memory entry; the game stays reloadable from storage.
func (s *Service) sweeper() {
	defer close(s.done)
	interval := s.cfg.IdleUnloadAfter / 10
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

func (s *Service) sweepIdle() {
	cutoff := time.Now().Add(-s.cfg.IdleUnloadAfter).UnixMilli()
	s.mu.Lock()
	var idle []*game.Game
	for _, g := range s.games {
		if g.Modified() < cutoff {
			idle = append(idle, g)
		}
	}
	s.mu.Unlock()
	for _, g := range idle {
		s.finish(g, "idle")
	}
}
