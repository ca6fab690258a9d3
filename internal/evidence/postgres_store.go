package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists evidence rows. MarkProcessing relies on a
// conditional UPDATE so concurrent OCR workers claim an item at most once.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, e *Evidence) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO evidence (id, dispute_id, owner_email, file_name, media_type, artifact_ref, description, ocr_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, e.ID, e.DisputeID, e.OwnerEmail, e.FileName, e.MediaType, e.ArtifactRef, e.Description, string(e.OCRStatus), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("evidence: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Evidence, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id=$1`, id)
	e, err := scanEvidence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) ListByDispute(ctx context.Context, disputeID string) ([]*Evidence, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE dispute_id=$1 ORDER BY created_at`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("evidence: list: %w", err)
	}
	defer rows.Close()

	var out []*Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE evidence SET ocr_status=$1, updated_at=$2 WHERE id=$3 AND ocr_status=$4
    `, string(OCRProcessing), time.Now().UTC(), id, string(OCRPending))
	if err != nil {
		return false, fmt.Errorf("evidence: mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteOCR(ctx context.Context, id string, extraction *Extraction) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE evidence SET ocr_status=$1, ocr_text=$2, ocr_confidence=$3, ocr_error='', updated_at=$4 WHERE id=$5
    `, string(OCRCompleted), extraction.Text, extraction.Confidence, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("evidence: complete ocr: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailOCR(ctx context.Context, id string, reason string) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE evidence SET ocr_status=$1, ocr_error=$2, updated_at=$3 WHERE id=$4
    `, string(OCRFailed), reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("evidence: fail ocr: %w", err)
	}
	return nil
}

const selectColumns = `
    SELECT id, dispute_id, owner_email, file_name, media_type, artifact_ref, description,
           ocr_status, COALESCE(ocr_text, ''), COALESCE(ocr_confidence, 0), COALESCE(ocr_error, ''), created_at, updated_at
    FROM evidence`

func scanEvidence(row pgx.Row) (*Evidence, error) {
	var e Evidence
	var status string
	err := row.Scan(&e.ID, &e.DisputeID, &e.OwnerEmail, &e.FileName, &e.MediaType, &e.ArtifactRef,
		&e.Description, &status, &e.OCRText, &e.OCRConfidence, &e.OCRError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.OCRStatus = OCRStatus(status)
	return &e, nil
}
