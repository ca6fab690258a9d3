package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// DatabaseSink persists events and audit records so downstream consumers can
// poll them. Inserts are best-effort: a failed write is logged, never
// propagated back into the transition that produced it.
type DatabaseSink struct {
	db *sql.DB
}

func NewDatabaseSink(db *sql.DB) *DatabaseSink {
	return &DatabaseSink{db: db}
}

func (s *DatabaseSink) Emit(ctx context.Context, disputeID, name string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("Failed to marshal event payload")
		return
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO dispute_events (dispute_id, name, payload, created_at)
        VALUES ($1, $2, $3, $4)
    `, disputeID, name, data, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).
			Str("dispute_id", disputeID).
			Str("event", name).
			Msg("Failed to persist dispute event")
	}
}

func (s *DatabaseSink) Record(ctx context.Context, action, actor, resource, outcome string, metadata map[string]interface{}) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO audit_log (action, actor, resource, outcome, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, action, actor, resource, outcome, data, time.Now().UTC())
	return err
}

// Recent returns the latest events for a dispute, newest first. Used by the
// polling endpoint.
func (s *DatabaseSink) Recent(ctx context.Context, disputeID string, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, dispute_id, name, payload, created_at
        FROM dispute_events WHERE dispute_id=$1
        ORDER BY created_at DESC LIMIT $2
    `, disputeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.DisputeID, &ev.Name, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				log.Warn().Err(err).Int64("event_id", ev.ID).Msg("Skipping malformed event payload")
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// StoredEvent is a persisted dispute event row.
type StoredEvent struct {
	ID        int64                  `json:"id"`
	DisputeID string                 `json:"dispute_id"`
	Name      string                 `json:"name"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
