package store

import (
	"context"
	"encoding/json"
)

// AppendEvent writes one structured record to the append-only event log.
// The log is write-only from the engine's point of view; nothing here ever
// reads it back.
func (s *Store) AppendEvent(ctx context.Context, playerID, gameID, eventType string, data map[string]any) error {
	var payload any
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO event_log (player_id, game_id, event_type, data) VALUES (NULLIF($1,''), NULLIF($2,''), $3, $4)`,
		playerID, gameID, eventType, payload)
	return err
}
