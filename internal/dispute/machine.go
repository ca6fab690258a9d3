package dispute

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/settleline/internal/events"
)

// IdentityVerifier gates dispute creation on an identity document check.
type IdentityVerifier interface {
	Verify(ctx context.Context, document []byte) (valid bool, reason string, err error)
}

// AnalysisTrigger is invoked after qualifying party actions. Implementations
// decide whether an analysis run should actually start; errors are absorbed
// by the state machine so the triggering action still succeeds.
type AnalysisTrigger interface {
	MaybeTrigger(ctx context.Context, disputeID string) error
}

// Actor is the authenticated caller of a state-machine operation, resolved
// once per request from the verified token.
type Actor struct {
	Email string
	Admin bool
}

// StateMachine owns the dispute status and the decision/agreement
// sub-protocol. Every mutation runs inside the store's per-dispute
// serialization primitive; all transitions for one party action are applied
// before the call returns.
type StateMachine struct {
	store    Store
	verifier IdentityVerifier
	docs     DocumentGenerator
	fanout   events.Fanout
	audit    events.AuditSink
	analysis AnalysisTrigger

	// conflictEscalationAfter consecutive conflicts flag the dispute for
	// admin attention. Zero disables escalation flagging.
	conflictEscalationAfter int
}

// MachineOption configures a StateMachine.
type MachineOption func(*StateMachine)

func WithAnalysisTrigger(t AnalysisTrigger) MachineOption {
	return func(m *StateMachine) { m.analysis = t }
}

func WithConflictEscalationAfter(n int) MachineOption {
	return func(m *StateMachine) { m.conflictEscalationAfter = n }
}

func NewStateMachine(store Store, verifier IdentityVerifier, docs DocumentGenerator, fanout events.Fanout, audit events.AuditSink, opts ...MachineOption) *StateMachine {
	m := &StateMachine{
		store:                   store,
		verifier:                verifier,
		docs:                    docs,
		fanout:                  fanout,
		audit:                   audit,
		conflictEscalationAfter: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateParams carries dispute intake data. The respondent is identified by
// email only; an account is bound at acceptance time.
type CreateParams struct {
	Title            string
	Description      string
	Plaintiff        Party
	RespondentEmail  string
	RespondentName   string
	IdentityDocument []byte
}

// Create verifies the plaintiff's identity document and opens the dispute in
// Pending status.
func (m *StateMachine) Create(ctx context.Context, actor Actor, params CreateParams) (*Dispute, error) {
	switch {
	case strings.TrimSpace(params.Title) == "":
		return nil, Validationf("title is required")
	case strings.TrimSpace(params.Plaintiff.Email) == "":
		return nil, Validationf("plaintiff email is required")
	case strings.TrimSpace(params.RespondentEmail) == "":
		return nil, Validationf("respondent email is required")
	case emailsEqual(params.Plaintiff.Email, params.RespondentEmail):
		return nil, Validationf("plaintiff and respondent must be different parties")
	}
	if !emailsEqual(actor.Email, params.Plaintiff.Email) {
		return nil, Forbiddenf("disputes can only be created by the plaintiff")
	}

	valid, reason, err := m.verifier.Verify(ctx, params.IdentityDocument)
	if err != nil {
		return nil, Dependencyf(err, "identity verification unavailable")
	}
	if !valid {
		return nil, Validationf("identity verification failed: %s", reason)
	}

	now := time.Now().UTC()
	d := &Dispute{
		ID:           uuid.NewString(),
		CreatorEmail: actor.Email,
		Title:        params.Title,
		Description:  params.Description,
		Plaintiff:    params.Plaintiff,
		Respondent: Party{
			Name:  params.RespondentName,
			Email: params.RespondentEmail,
		},
		Status:           StatusPending,
		ResolutionStatus: ResolutionNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Create(ctx, d); err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.create", actor.Email, d.ID, "created", nil)
	return d, nil
}

// Get returns the dispute if the caller is a party or an admin. Terminal
// disputes remain readable.
func (m *StateMachine) Get(ctx context.Context, actor Actor, id string) (*Dispute, error) {
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.RoleOf(actor.Email, actor.Admin) == RoleUnrelated {
		return nil, Forbiddenf("not a party to this dispute")
	}
	return d, nil
}

// Accept binds the respondent's account to the dispute. Only the account
// whose verified email equals the respondent email may accept.
func (m *StateMachine) Accept(ctx context.Context, actor Actor, id string, details Party) (*Dispute, error) {
	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		if !emailsEqual(actor.Email, d.Respondent.Email) {
			return Forbiddenf("only the named respondent can accept this dispute")
		}
		if d.Closed() {
			return Preconditionf("dispute is %s", d.Status)
		}
		if d.RespondentAccepted {
			return Preconditionf("dispute already accepted")
		}
		if d.Status != StatusPending {
			return Preconditionf("dispute is not awaiting acceptance")
		}
		// Identity-bound acceptance is the only mutation respondent fields
		// allow after creation; the email itself stays fixed.
		if details.Name != "" {
			d.Respondent.Name = details.Name
		}
		d.Respondent.Phone = details.Phone
		d.Respondent.Address = details.Address
		d.Respondent.Occupation = details.Occupation
		d.RespondentAccepted = true
		d.Status = StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.accept", actor.Email, id, "accepted", nil)
	return d, nil
}

// SendMessage appends a discussion message and bumps the per-dispute message
// counter in one atomic store write, so the counter can never run ahead of
// the history. Trigger failures are absorbed: the message send still
// succeeds.
func (m *StateMachine) SendMessage(ctx context.Context, actor Actor, id, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, Validationf("message body is required")
	}

	msg, err := m.store.MutateWithMessage(ctx, id, func(d *Dispute) (*Message, error) {
		role := d.RoleOf(actor.Email, actor.Admin)
		switch role {
		case RoleUnrelated:
			return nil, Forbiddenf("not a party to this dispute")
		case RoleDefendant:
			if !d.RespondentAccepted {
				return nil, Preconditionf("respondent has not accepted the dispute")
			}
		}
		if d.Closed() {
			return nil, Preconditionf("dispute is %s", d.Status)
		}
		d.MessageCount++
		return &Message{
			ID:          uuid.NewString(),
			DisputeID:   d.ID,
			SenderEmail: actor.Email,
			SenderRole:  role,
			Body:        body,
			CreatedAt:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	m.kickAnalysis(ctx, id)
	return msg, nil
}

// Messages lists the discussion history for a party or admin.
func (m *StateMachine) Messages(ctx context.Context, actor Actor, id string) ([]*Message, error) {
	if _, err := m.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return m.store.ListMessages(ctx, id)
}

// SubmitDecision stores the caller's choice and evaluates the agreement
// rule. Matching non-reject choices settle the dispute and generate the
// agreement document exactly once; differing choices surface a conflict
// signal with no status change so parties may resubmit.
func (m *StateMachine) SubmitDecision(ctx context.Context, actor Actor, id string, choice Choice) (*Dispute, error) {
	if !choice.IsSet() {
		return nil, Validationf("a decision is required")
	}

	var settled, conflicted, escalated bool
	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		role := d.RoleOf(actor.Email, false)
		if role != RolePlaintiff && role != RoleDefendant {
			return Forbiddenf("only dispute parties can submit decisions")
		}
		if role == RoleDefendant && !d.RespondentAccepted {
			return Preconditionf("respondent has not accepted the dispute")
		}
		if d.Closed() {
			return Preconditionf("dispute is %s", d.Status)
		}
		if !d.HasSolutions() {
			return Preconditionf("no solutions have been proposed yet")
		}
		if idx, ok := choice.Option(); ok && idx >= len(d.Solutions) {
			return Validationf("solution index %d out of range: %d solutions proposed", idx, len(d.Solutions))
		}

		if role == RolePlaintiff {
			d.PlaintiffChoice = choice
		} else {
			d.RespondentChoice = choice
		}
		if d.ResolutionStatus == ResolutionNone {
			d.ResolutionStatus = ResolutionInProgress
		}

		// Agreement rule: evaluate only once both durable writes are visible,
		// which holds here because we are inside the per-dispute lock.
		if !d.PlaintiffChoice.IsSet() || !d.RespondentChoice.IsSet() {
			return nil
		}
		if d.PlaintiffChoice.Agrees(d.RespondentChoice) {
			if err := m.generateDocumentOnce(ctx, d); err != nil {
				return err
			}
			d.ResolutionStatus = ResolutionSettled
			d.Status = StatusResolved
			d.ConflictStreak = 0
			settled = true
			return nil
		}
		if !d.PlaintiffChoice.IsReject() && !d.RespondentChoice.IsReject() {
			// Both decided, chose different options: a workflow state, not an
			// error. Status is unchanged and parties may resubmit.
			d.ConflictStreak++
			conflicted = true
			escalated = m.conflictEscalationAfter > 0 && d.ConflictStreak >= m.conflictEscalationAfter
		}
		// A reject from either side makes reanalysis eligible; nothing else
		// changes until a party requests it.
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.decision", actor.Email, id, choice.String(), nil)
	switch {
	case settled:
		m.fanout.Emit(ctx, id, events.AgreementGenerated, map[string]interface{}{
			"document_id":   d.DocumentID,
			"document_hash": d.DocumentHash,
		})
		m.fanout.Emit(ctx, id, events.Resolved, map[string]interface{}{
			"resolution_status": string(d.ResolutionStatus),
		})
	case conflicted:
		m.fanout.Emit(ctx, id, events.Conflict, map[string]interface{}{
			"plaintiff_choice":  d.PlaintiffChoice.String(),
			"respondent_choice": d.RespondentChoice.String(),
			"conflict_streak":   d.ConflictStreak,
			"escalated":         escalated,
		})
	}
	return d, nil
}

// SignAgreement stores the caller's signature. Once both signatures are
// present the draft agreement document is generated exactly once and the
// dispute moves to admin review; the check-then-act runs under the
// per-dispute lock so concurrent signers produce a single document.
func (m *StateMachine) SignAgreement(ctx context.Context, actor Actor, id, signatureRef string) (*Dispute, error) {
	if strings.TrimSpace(signatureRef) == "" {
		return nil, Validationf("signature reference is required")
	}

	var bothSigned bool
	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		role := d.RoleOf(actor.Email, false)
		if role != RolePlaintiff && role != RoleDefendant {
			return Forbiddenf("only dispute parties can sign")
		}
		if d.Status == StatusForwardedToCourt {
			return Preconditionf("dispute was forwarded to court")
		}
		if !d.PlaintiffChoice.Agrees(d.RespondentChoice) {
			return Preconditionf("no agreed solution to sign")
		}

		if role == RolePlaintiff {
			d.PlaintiffSignature = signatureRef
		} else {
			d.RespondentSignature = signatureRef
		}

		if d.PlaintiffSignature == "" || d.RespondentSignature == "" {
			return nil
		}
		if err := m.generateDocumentOnce(ctx, d); err != nil {
			return err
		}
		if d.ResolutionStatus != ResolutionFinalized && d.ResolutionStatus != ResolutionSettled {
			d.ResolutionStatus = ResolutionAdminReview
			d.Status = StatusPendingAdminApproval
		}
		bothSigned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.sign", actor.Email, id, "signed", nil)
	m.fanout.Emit(ctx, id, events.Signed, map[string]interface{}{
		"both_signed": bothSigned,
	})
	if bothSigned {
		m.fanout.Emit(ctx, id, events.AgreementGenerated, map[string]interface{}{
			"document_id":   d.DocumentID,
			"document_hash": d.DocumentHash,
		})
	}
	return d, nil
}

// ApproveResolution finalizes a settled dispute. Admin only. Re-approving a
// finalized case is a no-op success.
func (m *StateMachine) ApproveResolution(ctx context.Context, actor Actor, id string) (*Dispute, error) {
	if !actor.Admin {
		return nil, Forbiddenf("admin role required")
	}

	var alreadyFinal bool
	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		if d.ResolutionStatus == ResolutionFinalized {
			alreadyFinal = true
			return nil
		}
		if d.Status == StatusForwardedToCourt {
			return Preconditionf("dispute was forwarded to court")
		}
		if d.Status != StatusPendingAdminApproval && d.ResolutionStatus != ResolutionSettled {
			return Preconditionf("dispute is not awaiting approval")
		}
		d.ResolutionStatus = ResolutionFinalized
		d.Status = StatusResolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyFinal {
		return d, nil
	}

	m.recordAudit(ctx, "dispute.approve", actor.Email, id, "finalized", nil)
	m.fanout.Emit(ctx, id, events.ResolutionFinalized, map[string]interface{}{
		"document_id": d.DocumentID,
	})
	return d, nil
}

// ForwardToCourt escalates the dispute. Admin only; all referral fields are
// required. Terminal: no further party actions are accepted except read.
func (m *StateMachine) ForwardToCourt(ctx context.Context, actor Actor, id string, referral CourtReferral) (*Dispute, error) {
	if !actor.Admin {
		return nil, Forbiddenf("admin role required")
	}
	if referral.CourtType == "" || referral.CourtName == "" || referral.Location == "" || referral.Reason == "" {
		return nil, Validationf("court type, name, location and reason are all required")
	}

	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		if d.Closed() {
			return Preconditionf("dispute is %s", d.Status)
		}
		ref := referral
		d.Court = &ref
		d.Status = StatusForwardedToCourt
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.forward", actor.Email, id, "forwarded_to_court", map[string]interface{}{
		"court_name": referral.CourtName,
	})
	m.fanout.Emit(ctx, id, events.ForwardedToCourt, map[string]interface{}{
		"court_type": referral.CourtType,
		"court_name": referral.CourtName,
		"location":   referral.Location,
		"reason":     referral.Reason,
	})
	return d, nil
}

// RequestReanalysis clears the current solution set and both choices,
// increments the bounded round counter and re-arms the analysis trigger.
// Evidence is untouched.
func (m *StateMachine) RequestReanalysis(ctx context.Context, actor Actor, id string) (*Dispute, error) {
	d, err := m.store.Mutate(ctx, id, func(d *Dispute) error {
		role := d.RoleOf(actor.Email, actor.Admin)
		if role == RoleUnrelated {
			return Forbiddenf("not a party to this dispute")
		}
		if d.Status != StatusActive {
			return Preconditionf("reanalysis is only available while the dispute is active")
		}
		if d.ReanalysisCount >= MaxReanalysisRounds {
			return Preconditionf("reanalysis limit of %d reached", MaxReanalysisRounds)
		}
		d.Solutions = nil
		d.PlaintiffChoice = Unset()
		d.RespondentChoice = Unset()
		d.PlaintiffSignature = ""
		d.RespondentSignature = ""
		d.ConflictStreak = 0
		d.AnalysisStartedAt = nil
		d.ReanalysisCount++
		if d.ResolutionStatus == ResolutionInProgress {
			d.ResolutionStatus = ResolutionNone
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordAudit(ctx, "dispute.reanalysis", actor.Email, id, "requested", map[string]interface{}{
		"round": d.ReanalysisCount,
	})
	m.kickAnalysis(ctx, id)
	return d, nil
}

// generateDocumentOnce renders the agreement document unless one already
// exists for this resolution attempt. Runs inside the per-dispute lock, so
// concurrent callers observe the CAS on DocumentID.
func (m *StateMachine) generateDocumentOnce(ctx context.Context, d *Dispute) error {
	if d.DocumentID != "" {
		return nil
	}
	doc, err := m.docs.Render(ctx, d)
	if err != nil {
		return Dependencyf(err, "agreement document generation failed")
	}
	if doc.DocumentID == "" {
		return Integrityf("document generator returned an empty document id")
	}
	d.DocumentID = doc.DocumentID
	d.DocumentHash = doc.DocumentHash
	return nil
}

// kickAnalysis offers the orchestrator a chance to run. Failures never fail
// the triggering party action; they surface as "analysis pending" and are
// retried lazily on the next qualifying action.
func (m *StateMachine) kickAnalysis(ctx context.Context, id string) {
	if m.analysis == nil {
		return
	}
	if err := m.analysis.MaybeTrigger(ctx, id); err != nil {
		log.Warn().Err(err).Str("dispute_id", id).Msg("Analysis trigger failed; will retry on next qualifying action")
	}
}

func (m *StateMachine) recordAudit(ctx context.Context, action, actor, resource, outcome string, metadata map[string]interface{}) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, action, actor, resource, outcome, metadata); err != nil {
		log.Error().Err(err).Str("action", action).Str("resource", resource).Msg("Audit record failed")
	}
}
