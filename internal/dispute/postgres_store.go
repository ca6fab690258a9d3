package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists disputes in Postgres. Mutate serializes concurrent
// callers on the same dispute with SELECT ... FOR UPDATE, so the
// check-then-act sections of the state machine (agreement evaluation,
// one-time document generation) are atomic relative to each other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("dispute: marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO disputes (id, plaintiff_email, respondent_email, status, data, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, d.ID, d.Plaintiff.Email, d.Respondent.Email, string(d.Status), data, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Conflictf("dispute %s already exists", d.ID)
		}
		return fmt.Errorf("dispute: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM disputes WHERE id=$1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute: fetch: %w", err)
	}
	return decodeDispute(data)
}

func (s *PostgresStore) List(ctx context.Context, partyEmail string) ([]*Dispute, error) {
	query := `SELECT data FROM disputes ORDER BY created_at`
	args := []interface{}{}
	if partyEmail != "" {
		query = `SELECT data FROM disputes WHERE lower(plaintiff_email)=lower($1) OR lower(respondent_email)=lower($1) ORDER BY created_at`
		args = append(args, partyEmail)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		d, err := decodeDispute(data)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Mutate(ctx context.Context, id string, fn func(d *Dispute) error) (*Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM disputes WHERE id=$1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute: lock row: %w", err)
	}

	d, err := decodeDispute(data)
	if err != nil {
		return nil, err
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("dispute: marshal: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        UPDATE disputes SET status=$1, data=$2, updated_at=$3 WHERE id=$4
    `, string(d.Status), updated, d.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("dispute: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("dispute: commit: %w", err)
	}
	return d, nil
}

// MutateWithMessage runs the same locked read-modify-write as Mutate and
// inserts the returned message before the commit, so the dispute row and the
// message row land atomically.
func (s *PostgresStore) MutateWithMessage(ctx context.Context, id string, fn func(d *Dispute) (*Message, error)) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispute: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM disputes WHERE id=$1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute: lock row: %w", err)
	}

	d, err := decodeDispute(data)
	if err != nil {
		return nil, err
	}
	m, err := fn(d)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, Integrityf("message mutation returned no message")
	}
	d.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("dispute: marshal: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        UPDATE disputes SET status=$1, data=$2, updated_at=$3 WHERE id=$4
    `, string(d.Status), updated, d.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("dispute: update: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO dispute_messages (id, dispute_id, sender_email, sender_role, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, m.ID, m.DisputeID, m.SenderEmail, string(m.SenderRole), m.Body, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("dispute: insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("dispute: commit: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, disputeID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, dispute_id, sender_email, sender_role, body, created_at
        FROM dispute_messages WHERE dispute_id=$1 ORDER BY created_at
    `, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.SenderEmail, &role, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan message: %w", err)
		}
		m.SenderRole = Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func decodeDispute(data []byte) (*Dispute, error) {
	var d Dispute
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("dispute: decode: %w", err)
	}
	return &d, nil
}
