package store

import (
	"context"
	"sync"
	"time"

	"card-party/internal/game"
	"card-party/internal/levels"
)

// Memory is an in-memory implementation of the same surface as Store, used
// by tests and by the registry's own test harness. It applies the same seat
// cap and state bookkeeping as the Postgres store.
type Memory struct {
	mu      sync.Mutex
	games   map[string]*game.Record
	players map[string]*Player
	events  []MemoryEvent
}

type MemoryEvent struct {
	At        time.Time
	PlayerID  string
	GameID    string
	EventType string
	Data      map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		games:   map[string]*game.Record{},
		players: map[string]*Player{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) get(gameID string) (*game.Record, error) {
	rec, ok := m.games[gameID]
	if !ok {
		return nil, game.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ensurePlayer(playerID string) *Player {
	p, ok := m.players[playerID]
	if !ok {
		p = &Player{PlayerID: playerID}
		m.players[playerID] = p
	}
	return p
}

func (m *Memory) CreateGame(_ context.Context, ownerID, hand, bank, previousGameID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewID()
	m.games[id] = &game.Record{
		ID:             id,
		OwnerID:        ownerID,
		State:          game.StateCreate,
		Bank:           bank,
		PreviousGameID: previousGameID,
		Players:        []game.PlayerRecord{{PlayerID: ownerID, Hand: hand}},
		CreatedAt:      time.Now(),
	}
	m.ensurePlayer(ownerID)
	return id, nil
}

func (m *Memory) SaveDeal(_ context.Context, gameID, bank string, hands map[string]string, ownerPick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.Bank = bank
	for i := range rec.Players {
		p := &rec.Players[i]
		if h, ok := hands[p.PlayerID]; ok {
			p.Hand = h
		}
		if p.PlayerID == rec.OwnerID {
			p.Pick = ownerPick
		}
	}
	return nil
}

func (m *Memory) SaveSentence(_ context.Context, gameID, sentence string, state game.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.Sentence = sentence
	rec.State = state
	return nil
}

func (m *Memory) AddPlayer(_ context.Context, gameID, playerID, hand string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	if len(rec.Players) >= game.NPlayers {
		return game.ErrGameFull
	}
	rec.Players = append(rec.Players, game.PlayerRecord{PlayerID: playerID, Hand: hand})
	rec.Invited = removeID(rec.Invited, playerID)
	m.ensurePlayer(playerID)
	return nil
}

func (m *Memory) RemovePlayers(_ context.Context, gameID string, playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	dropPlayers(rec, playerIDs)
	return nil
}

func (m *Memory) AddInvitations(_ context.Context, gameID string, playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	for _, id := range playerIDs {
		if !containsID(rec.Invited, id) {
			rec.Invited = append(rec.Invited, id)
		}
	}
	return nil
}

func (m *Memory) SavePick(_ context.Context, gameID, playerID, card string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	for i := range rec.Players {
		if rec.Players[i].PlayerID == playerID {
			rec.Players[i].Pick = card
		}
	}
	return nil
}

func (m *Memory) SaveVote(_ context.Context, gameID, playerID, card string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	for i := range rec.Players {
		if rec.Players[i].PlayerID == playerID {
			rec.Players[i].Vote = card
		}
	}
	return nil
}

func (m *Memory) SaveVoting(_ context.Context, gameID, board string, hands map[string]string, removed []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.Board = board
	rec.State = game.StateVote
	dropPlayers(rec, removed)
	for i := range rec.Players {
		if h, ok := hands[rec.Players[i].PlayerID]; ok {
			rec.Players[i].Hand = h
		}
	}
	rec.Invited = nil
	return nil
}

func (m *Memory) SaveCountdown(_ context.Context, gameID string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.CountdownSeconds = seconds
	return nil
}

func (m *Memory) CompleteGame(_ context.Context, gameID string, winners []string, deltas map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.State = game.StateComplete
	now := time.Now()
	rec.CompletedAt = &now
	for i := range rec.Players {
		if containsID(winners, rec.Players[i].PlayerID) {
			rec.Players[i].Win = true
		}
	}
	for playerID, delta := range deltas {
		if delta == 0 {
			continue
		}
		p := m.ensurePlayer(playerID)
		before, _, _ := levels.Calculate(p.Score)
		after, _, _ := levels.Calculate(p.Score + delta)
		if after > before {
			p.Levelups += after - before
		}
		p.ScorePrev = p.Score
		p.Score += delta
	}
	return nil
}

func (m *Memory) CancelGame(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return err
	}
	rec.State = game.StateCanceled
	now := time.Now()
	rec.CompletedAt = &now
	rec.Invited = nil
	return nil
}

func (m *Memory) GetGame(_ context.Context, gameID string) (*game.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.get(gameID)
	if err != nil {
		return nil, err
	}
	cp := *rec
	cp.Players = append([]game.PlayerRecord{}, rec.Players...)
	cp.Invited = append([]string{}, rec.Invited...)
	return &cp, nil
}

func (m *Memory) ListUnfinishedGameIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for id, rec := range m.games {
		if !rec.State.Terminal() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) GetPlayer(_ context.Context, playerID string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[playerID]; ok {
		cp := *p
		return &cp, nil
	}
	return &Player{PlayerID: playerID}, nil
}

func (m *Memory) AppendEvent(_ context.Context, playerID, gameID, eventType string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, MemoryEvent{
		At:        time.Now(),
		PlayerID:  playerID,
		GameID:    gameID,
		EventType: eventType,
		Data:      data,
	})
	return nil
}

// Events returns a copy of the appended log for test assertions.
func (m *Memory) Events() []MemoryEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemoryEvent{}, m.events...)
}

func dropPlayers(rec *game.Record, playerIDs []string) {
	kept := rec.Players[:0]
	for _, p := range rec.Players {
		if !containsID(playerIDs, p.PlayerID) {
			kept = append(kept, p)
		}
	}
	rec.Players = kept
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
