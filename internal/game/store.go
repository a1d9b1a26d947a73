package game

import (
	"context"
	"errors"
	"time"
)

// State of one game. Transitions only move forward, except cancellation,
// which is terminal from any pre-complete state.
type State string

const (
	StateCreate     State = "create"
	StateInvitation State = "invitation"
	StateVote       State = "vote"
	StateComplete   State = "complete"
	StateCanceled   State = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCanceled
}

// Sentinel errors the persistence collaborator reports. ErrGameFull must be
// raised transactionally so that concurrent joins cannot overbook a table.
var (
	ErrGameFull = errors.New("game full")
	ErrNotFound = errors.New("not found")
)

// Record is the persisted form of a game, used to restore it.
type Record struct {
	ID               string
	OwnerID          string
	State            State
	Sentence         string
	Bank             string // encoded bank remainder
	Board            string // encoded board, set when voting begins
	CountdownSeconds int
	PreviousGameID   string
	Players          []PlayerRecord // join order
	Invited          []string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// PlayerRecord is one roster row.
type PlayerRecord struct {
	PlayerID string
	Hand     string // encoded
	Pick     string // encoded single card, "" when absent
	Vote     string
	Win      bool
}

// Store is the transactional persistence collaborator. Cards cross this
// boundary already encoded. Every method must leave storage consistent on
// error: the state machine validates before writing and assumes a failed
// write changed nothing.
type Store interface {
	// CreateGame inserts the game in state create with the owner seated and
	// holding hand, and returns the storage-assigned id.
	CreateGame(ctx context.Context, ownerID, hand, bank, previousGameID string) (string, error)
	// SaveDeal records the owner's chosen card, the re-dealt hands and the
	// bank remainder.
	SaveDeal(ctx context.Context, gameID, bank string, hands map[string]string, ownerPick string) error
	// SaveSentence stores the sentence and advances the persisted state.
	SaveSentence(ctx context.Context, gameID, sentence string, state State) error
	// AddPlayer seats a player, enforcing the NPlayers cap transactionally
	// (ErrGameFull), and clears any pending invitation for them.
	AddPlayer(ctx context.Context, gameID, playerID, hand string) error
	RemovePlayers(ctx context.Context, gameID string, playerIDs []string) error
	AddInvitations(ctx context.Context, gameID string, playerIDs []string) error
	SavePick(ctx context.Context, gameID, playerID, card string) error
	SaveVote(ctx context.Context, gameID, playerID, card string) error
	// SaveVoting atomically enters the vote state: drops the culled players,
	// stores the board and the hands the picks were played from, and deletes
	// pending invitations.
	SaveVoting(ctx context.Context, gameID, board string, hands map[string]string, removed []string) error
	SaveCountdown(ctx context.Context, gameID string, seconds int) error
	// CompleteGame marks the game complete, flags the winners and applies
	// the score deltas (score_prev := score; score += delta) per player.
	CompleteGame(ctx context.Context, gameID string, winners []string, deltas map[string]int) error
	CancelGame(ctx context.Context, gameID string) error
}
