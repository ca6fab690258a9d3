// Package events carries transition events out of the dispute core. Fanout
// delivery is fire-and-forget and eventually consistent; audit recording
// happens after every transition but its failure never rolls one back.
package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Event names produced by the dispute core.
const (
	EvidenceUploaded     = "dispute:evidence-uploaded"
	OCRComplete          = "dispute:ocr-complete"
	Resolved             = "dispute:resolved"
	Conflict             = "dispute:conflict"
	Signed               = "dispute:signed"
	AgreementGenerated   = "dispute:agreement-generated"
	ResolutionFinalized  = "dispute:resolution-finalized"
	ForwardedToCourt     = "dispute:forwarded-to-court"
	AnalysisComplete     = "dispute:analysis-complete"
	AnalysisFailed       = "dispute:analysis-failed"
)

// Fanout dispatches real-time/async notifications. Implementations must not
// block state-machine progress; errors are the implementation's problem.
type Fanout interface {
	Emit(ctx context.Context, disputeID, name string, payload map[string]interface{})
}

// AuditSink records every state transition for operators.
type AuditSink interface {
	Record(ctx context.Context, action, actor, resource, outcome string, metadata map[string]interface{}) error
}

// LogFanout writes events to the structured log. Used when no realtime
// transport is configured.
type LogFanout struct{}

func (LogFanout) Emit(ctx context.Context, disputeID, name string, payload map[string]interface{}) {
	log.Info().
		Str("dispute_id", disputeID).
		Str("event", name).
		Interface("payload", payload).
		Msg("Dispute event")
}

// LogAuditSink writes audit records to the structured log.
type LogAuditSink struct{}

func (LogAuditSink) Record(ctx context.Context, action, actor, resource, outcome string, metadata map[string]interface{}) error {
	log.Info().
		Str("action", action).
		Str("actor", actor).
		Str("resource", resource).
		Str("outcome", outcome).
		Interface("metadata", metadata).
		Msg("Audit record")
	return nil
}
