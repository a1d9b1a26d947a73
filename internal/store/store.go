// Package store is the Postgres persistence layer. Game state writes happen
// inside transactions so that concurrent seat claims and score settlements
// serialize on the game row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"card-party/internal/game"
	"card-party/internal/levels"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps DB access. It satisfies game.Store plus the registry's wider
// read interface.
type Store struct {
	DB *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.DB.PingContext(ctx)
}

func (s *Store) CreateGame(ctx context.Context, ownerID, hand, bank, previousGameID string) (string, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := NewID()
	var prev any
	if previousGameID != "" {
		prev = previousGameID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO games (id, owner_id, players_count, cards, state, previous_game_id) VALUES ($1,$2,1,$3,$4,$5)`,
		id, ownerID, bank, string(game.StateCreate), prev)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO player_to_game (game_id, player_id, position, cards) VALUES ($1,$2,0,$3)`, id, ownerID, hand)
	if err != nil {
		return "", err
	}
	if err := ensurePlayer(ctx, tx, ownerID); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) SaveDeal(ctx context.Context, gameID, bank string, hands map[string]string, ownerPick string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE games SET cards = $2 WHERE id = $1`, gameID, bank); err != nil {
		return err
	}
	for playerID, hand := range hands {
		if _, err := tx.ExecContext(ctx, `UPDATE player_to_game SET cards = $3 WHERE game_id = $1 AND player_id = $2`, gameID, playerID, hand); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `UPDATE player_to_game SET picked = $2 WHERE game_id = $1 AND player_id = (SELECT owner_id FROM games WHERE id = $1)`, gameID, ownerPick)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveSentence(ctx context.Context, gameID, sentence string, state game.State) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE games SET sentence = $2, state = $3 WHERE id = $1`, gameID, sentence, string(state))
	return err
}

// AddPlayer seats a player. The seat count is checked under a row lock so
// two concurrent joins at the cap cannot both succeed.
func (s *Store) AddPlayer(ctx context.Context, gameID, playerID, hand string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	row := tx.QueryRowContext(ctx, `SELECT players_count FROM games WHERE id = $1 FOR UPDATE`, gameID)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.ErrNotFound
		}
		return err
	}
	if count >= game.NPlayers {
		return game.ErrGameFull
	}
	if _, err := tx.ExecContext(ctx, `UPDATE games SET players_count = players_count + 1 WHERE id = $1`, gameID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO player_to_game (game_id, player_id, position, cards) VALUES ($1,$2,$3,$4)`, gameID, playerID, count, hand); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE game_id = $1 AND player_id = $2`, gameID, playerID); err != nil {
		return err
	}
	if err := ensurePlayer(ctx, tx, playerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RemovePlayers(ctx context.Context, gameID string, playerIDs []string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := removePlayersTx(ctx, tx, gameID, playerIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func removePlayersTx(ctx context.Context, tx *sql.Tx, gameID string, playerIDs []string) error {
	for _, playerID := range playerIDs {
		res, err := tx.ExecContext(ctx, `DELETE FROM player_to_game WHERE game_id = $1 AND player_id = $2`, gameID, playerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE games SET players_count = players_count - 1 WHERE id = $1`, gameID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddInvitations(ctx context.Context, gameID string, playerIDs []string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, playerID := range playerIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO invitations (game_id, player_id) VALUES ($1,$2) ON CONFLICT (game_id, player_id) DO NOTHING`, gameID, playerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) SavePick(ctx context.Context, gameID, playerID, card string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE player_to_game SET picked = $3 WHERE game_id = $1 AND player_id = $2`, gameID, playerID, card)
	return err
}

func (s *Store) SaveVote(ctx context.Context, gameID, playerID, card string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE player_to_game SET vote = $3 WHERE game_id = $1 AND player_id = $2`, gameID, playerID, card)
	return err
}

func (s *Store) SaveVoting(ctx context.Context, gameID, board string, hands map[string]string, removed []string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE games SET board = $2, state = $3 WHERE id = $1`, gameID, board, string(game.StateVote)); err != nil {
		return err
	}
	if err := removePlayersTx(ctx, tx, gameID, removed); err != nil {
		return err
	}
	for playerID, hand := range hands {
		if _, err := tx.ExecContext(ctx, `UPDATE player_to_game SET cards = $3 WHERE game_id = $1 AND player_id = $2`, gameID, playerID, hand); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE game_id = $1`, gameID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveCountdown(ctx context.Context, gameID string, seconds int) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE games SET countdown_seconds = $2 WHERE id = $1`, gameID, seconds)
	return err
}

// CompleteGame settles the game: win flags, score deltas with score_prev
// bookkeeping, and the levelups counter when a delta pushes a player over a
// level threshold. Each player row is settled under a row lock.
func (s *Store) CompleteGame(ctx context.Context, gameID string, winners []string, deltas map[string]int) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE games SET state = $2, completed_at = now() WHERE id = $1`, gameID, string(game.StateComplete)); err != nil {
		return err
	}
	for _, playerID := range winners {
		if _, err := tx.ExecContext(ctx, `UPDATE player_to_game SET win = TRUE WHERE game_id = $1 AND player_id = $2`, gameID, playerID); err != nil {
			return err
		}
	}
	for playerID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if err := ensurePlayer(ctx, tx, playerID); err != nil {
			return err
		}
		var score int
		row := tx.QueryRowContext(ctx, `SELECT score FROM players WHERE player_id = $1 FOR UPDATE`, playerID)
		if err := row.Scan(&score); err != nil {
			return err
		}
		before, _, _ := levels.Calculate(score)
		after, _, _ := levels.Calculate(score + delta)
		leveled := 0
		if after > before {
			leveled = after - before
		}
		_, err := tx.ExecContext(ctx, `UPDATE players SET score_prev = score, score = score + $2, levelups = levelups + $3 WHERE player_id = $1`,
			playerID, delta, leveled)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CancelGame(ctx context.Context, gameID string) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE games SET state = $2, completed_at = now() WHERE id = $1`, gameID, string(game.StateCanceled)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE game_id = $1`, gameID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGame reads a full game record: the game row, the roster in seat order
// and pending invitations.
func (s *Store) GetGame(ctx context.Context, gameID string) (*game.Record, error) {
	var (
		rec  game.Record
		prev sql.NullString
	)
	row := s.DB.QueryRowContext(ctx, `SELECT id, owner_id, state, sentence, cards, board, countdown_seconds, previous_game_id, created_at, completed_at FROM games WHERE id = $1`, gameID)
	var completed sql.NullTime
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.State, &rec.Sentence, &rec.Bank, &rec.Board, &rec.CountdownSeconds, &prev, &rec.CreatedAt, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.ErrNotFound
		}
		return nil, err
	}
	rec.PreviousGameID = prev.String
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT player_id, cards, picked, vote, win FROM player_to_game WHERE game_id = $1 ORDER BY position ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p game.PlayerRecord
		if err := rows.Scan(&p.PlayerID, &p.Hand, &p.Pick, &p.Vote, &p.Win); err != nil {
			return nil, err
		}
		rec.Players = append(rec.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	inv, err := s.DB.QueryContext(ctx, `SELECT player_id FROM invitations WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, err
	}
	defer inv.Close()
	for inv.Next() {
		var id string
		if err := inv.Scan(&id); err != nil {
			return nil, err
		}
		rec.Invited = append(rec.Invited, id)
	}
	return &rec, inv.Err()
}

// ListUnfinishedGameIDs returns every game that should be live after a
// process restart.
func (s *Store) ListUnfinishedGameIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM games WHERE state IN ($1,$2,$3) ORDER BY created_at ASC`,
		string(game.StateCreate), string(game.StateInvitation), string(game.StateVote))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetPlayer returns the leveling row for a player, zero-valued when never
// scored.
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*Player, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT player_id, score, score_prev, levelups FROM players WHERE player_id = $1`, playerID)
	var p Player
	if err := row.Scan(&p.PlayerID, &p.Score, &p.ScorePrev, &p.Levelups); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Player{PlayerID: playerID}, nil
		}
		return nil, err
	}
	return &p, nil
}

func ensurePlayer(ctx context.Context, tx *sql.Tx, playerID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO players (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`, playerID)
	return err
}

// Player is the persisted leveling state; the level itself is derived.
type Player struct {
	PlayerID  string
	Score     int
	ScorePrev int
	Levelups  int
}
