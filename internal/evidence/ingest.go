package evidence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/events"
)

// OCR-supported media. Anything else is stored with status not_applicable
// and never sent to the engine.
var ocrSupported = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"application/pdf": true,
}

// JobEnqueuer hands OCR work to the background queue.
type JobEnqueuer interface {
	EnqueueOCR(ctx context.Context, evidenceID string) error
}

// Ingest accepts uploads and drives per-item OCR. Upload is gated on the
// owning dispute being open; OCR completion against a closed dispute is
// bookkeeping only and never re-opens it.
type Ingest struct {
	store    Store
	disputes dispute.Store
	engine   Engine
	blobs    BlobStore
	fanout   events.Fanout
	jobs     JobEnqueuer
}

func NewIngest(store Store, disputes dispute.Store, engine Engine, blobs BlobStore, fanout events.Fanout, jobs JobEnqueuer) *Ingest {
	return &Ingest{store: store, disputes: disputes, engine: engine, blobs: blobs, fanout: fanout, jobs: jobs}
}

// SetJobEnqueuer installs the OCR enqueuer after construction. The job queue
// and the ingest service reference each other, so one side is wired late.
func (in *Ingest) SetJobEnqueuer(jobs JobEnqueuer) {
	in.jobs = jobs
}

// UploadParams describes an already-stored artifact awaiting registration.
type UploadParams struct {
	DisputeID   string
	FileName    string
	MediaType   string
	ArtifactRef string
	Description string
}

// Upload registers an uploaded artifact. Rejected uploads remove the stored
// artifact before returning.
func (in *Ingest) Upload(ctx context.Context, actor dispute.Actor, params UploadParams) (*Evidence, error) {
	if strings.TrimSpace(params.ArtifactRef) == "" {
		return nil, dispute.Validationf("artifact reference is required")
	}

	d, err := in.disputes.Get(ctx, params.DisputeID)
	if err != nil {
		in.removeArtifact(ctx, params.ArtifactRef)
		return nil, err
	}
	role := d.RoleOf(actor.Email, actor.Admin)
	if role != dispute.RolePlaintiff && role != dispute.RoleDefendant {
		in.removeArtifact(ctx, params.ArtifactRef)
		return nil, dispute.Forbiddenf("only dispute parties can upload evidence")
	}
	if d.Closed() {
		in.removeArtifact(ctx, params.ArtifactRef)
		return nil, dispute.Preconditionf("dispute is %s", d.Status)
	}
	if role == dispute.RoleDefendant && !d.RespondentAccepted {
		in.removeArtifact(ctx, params.ArtifactRef)
		return nil, dispute.Preconditionf("respondent has not accepted the dispute")
	}

	now := time.Now().UTC()
	e := &Evidence{
		ID:          uuid.NewString(),
		DisputeID:   params.DisputeID,
		OwnerEmail:  actor.Email,
		FileName:    params.FileName,
		MediaType:   params.MediaType,
		ArtifactRef: params.ArtifactRef,
		Description: params.Description,
		OCRStatus:   OCRPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !ocrSupported[strings.ToLower(params.MediaType)] {
		e.OCRStatus = OCRNotApplicable
	}

	if err := in.store.Insert(ctx, e); err != nil {
		in.removeArtifact(ctx, params.ArtifactRef)
		return nil, err
	}

	in.fanout.Emit(ctx, params.DisputeID, events.EvidenceUploaded, map[string]interface{}{
		"evidence_id": e.ID,
		"file_name":   e.FileName,
		"ocr_status":  string(e.OCRStatus),
	})

	if e.OCRStatus == OCRPending && in.jobs != nil {
		if err := in.jobs.EnqueueOCR(ctx, e.ID); err != nil {
			// OCR is advisory: leave the item pending and let a later sweep
			// or re-upload pick it up.
			log.Warn().Err(err).Str("evidence_id", e.ID).Msg("Failed to enqueue OCR job")
		}
	}
	return e, nil
}

// List returns the dispute's evidence for a party or admin.
func (in *Ingest) List(ctx context.Context, actor dispute.Actor, disputeID string) ([]*Evidence, error) {
	d, err := in.disputes.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.RoleOf(actor.Email, actor.Admin) == dispute.RoleUnrelated {
		return nil, dispute.Forbiddenf("not a party to this dispute")
	}
	return in.store.ListByDispute(ctx, disputeID)
}

// Fetch returns one evidence item for a party or admin. Items are addressed
// through their owning dispute; a mismatched dispute id is a not-found, not
// an authorization leak.
func (in *Ingest) Fetch(ctx context.Context, actor dispute.Actor, disputeID, evidenceID string) (*Evidence, error) {
	d, err := in.disputes.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.RoleOf(actor.Email, actor.Admin) == dispute.RoleUnrelated {
		return nil, dispute.Forbiddenf("not a party to this dispute")
	}
	e, err := in.store.Get(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if e.DisputeID != disputeID {
		return nil, ErrNotFound
	}
	return e, nil
}

// ProcessOCR runs the engine for one item. The processing transition is made
// durable before the engine call so a crash leaves recoverable state rather
// than an item silently stuck in pending.
func (in *Ingest) ProcessOCR(ctx context.Context, evidenceID string) error {
	claimed, err := in.store.MarkProcessing(ctx, evidenceID)
	if err != nil {
		return err
	}
	if !claimed {
		// Already claimed, finished, or not applicable.
		return nil
	}

	e, err := in.store.Get(ctx, evidenceID)
	if err != nil {
		return err
	}

	extraction, err := in.engine.ExtractText(ctx, e.ArtifactRef)
	if err != nil {
		log.Warn().Err(err).Str("evidence_id", evidenceID).Msg("OCR extraction failed")
		if ferr := in.store.FailOCR(ctx, evidenceID, err.Error()); ferr != nil {
			return ferr
		}
		return nil
	}
	if err := in.store.CompleteOCR(ctx, evidenceID, extraction); err != nil {
		return err
	}

	in.fanout.Emit(ctx, e.DisputeID, events.OCRComplete, map[string]interface{}{
		"evidence_id": evidenceID,
		"confidence":  extraction.Confidence,
	})
	return nil
}

func (in *Ingest) removeArtifact(ctx context.Context, ref string) {
	if in.blobs == nil {
		return
	}
	if err := in.blobs.Remove(ctx, ref); err != nil {
		log.Warn().Err(err).Str("artifact_ref", ref).Msg("Failed to remove rejected artifact")
	}
}
