// Package evidence records uploaded artifacts and tracks per-item OCR
// status. Evidence has an independent lifecycle from the dispute: OCR is
// advisory, only enriching analysis context, and never blocks the owning
// dispute's progress.
package evidence

import (
	"context"
	"errors"
	"time"
)

// OCRStatus is the per-item OCR sub-state. Transitions:
// pending -> processing -> {completed | failed}; not_applicable is assigned
// immediately for unsupported media and bypasses the engine.
type OCRStatus string

const (
	OCRPending       OCRStatus = "pending"
	OCRProcessing    OCRStatus = "processing"
	OCRCompleted     OCRStatus = "completed"
	OCRFailed        OCRStatus = "failed"
	OCRNotApplicable OCRStatus = "not_applicable"
)

// ErrNotFound is returned by stores when no evidence matches the given id.
var ErrNotFound = errors.New("evidence not found")

// Evidence is one uploaded artifact, owned by the uploading party.
type Evidence struct {
	ID            string    `json:"id"`
	DisputeID     string    `json:"dispute_id"`
	OwnerEmail    string    `json:"owner_email"`
	FileName      string    `json:"file_name"`
	MediaType     string    `json:"media_type"`
	ArtifactRef   string    `json:"artifact_ref"`
	Description   string    `json:"description,omitempty"`
	OCRStatus     OCRStatus `json:"ocr_status"`
	OCRText       string    `json:"ocr_text,omitempty"`
	OCRConfidence float64   `json:"ocr_confidence,omitempty"`
	OCRError      string    `json:"ocr_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Extraction is the OCR engine's output for one artifact.
type Extraction struct {
	Text       string
	Confidence float64
}

// Engine is the external OCR collaborator.
type Engine interface {
	ExtractText(ctx context.Context, artifactRef string) (*Extraction, error)
}

// BlobStore removes stored artifacts when an upload is rejected.
type BlobStore interface {
	Remove(ctx context.Context, artifactRef string) error
}

// Store persists evidence records.
type Store interface {
	Insert(ctx context.Context, e *Evidence) error
	Get(ctx context.Context, id string) (*Evidence, error)
	ListByDispute(ctx context.Context, disputeID string) ([]*Evidence, error)

	// MarkProcessing flips pending -> processing atomically, returning false
	// when the item is not in pending. Set before invoking the engine so a
	// crash leaves visible, recoverable state.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	CompleteOCR(ctx context.Context, id string, extraction *Extraction) error
	FailOCR(ctx context.Context, id string, reason string) error
}
