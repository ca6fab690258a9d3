package dispute

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// GeneratedDocument identifies a rendered agreement artifact. The hash is
// computed over the rendered content for tamper evidence.
type GeneratedDocument struct {
	DocumentID   string
	DocumentHash string
	ArtifactRef  string
}

// DocumentGenerator renders the settlement agreement from a dispute
// snapshot. The state machine invokes it exactly once per settlement.
type DocumentGenerator interface {
	Render(ctx context.Context, snapshot *Dispute) (*GeneratedDocument, error)
}

// SnapshotGenerator is the default generator: it serializes the dispute
// snapshot and stamps it with a SHA3-256 content hash. Production deployments
// swap in a PDF renderer behind the same interface.
type SnapshotGenerator struct{}

func (SnapshotGenerator) Render(ctx context.Context, snapshot *Dispute) (*GeneratedDocument, error) {
	content, err := json.Marshal(struct {
		DisputeID        string     `json:"dispute_id"`
		Title            string     `json:"title"`
		Plaintiff        Party      `json:"plaintiff"`
		Respondent       Party      `json:"respondent"`
		Solutions        []Solution `json:"solutions"`
		PlaintiffChoice  Choice     `json:"plaintiff_choice"`
		RespondentChoice Choice     `json:"respondent_choice"`
		RenderedAt       time.Time  `json:"rendered_at"`
	}{
		DisputeID:        snapshot.ID,
		Title:            snapshot.Title,
		Plaintiff:        snapshot.Plaintiff,
		Respondent:       snapshot.Respondent,
		Solutions:        snapshot.Solutions,
		PlaintiffChoice:  snapshot.PlaintiffChoice,
		RespondentChoice: snapshot.RespondentChoice,
		RenderedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("render agreement: %w", err)
	}

	sum := sha3.Sum256(content)
	id := uuid.NewString()
	return &GeneratedDocument{
		DocumentID:   id,
		DocumentHash: hex.EncodeToString(sum[:]),
		ArtifactRef:  fmt.Sprintf("agreements/%s.json", id),
	}, nil
}
