package dispute

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/settleline/internal/events"
)

type stubVerifier struct {
	valid  bool
	reason string
	err    error
}

func (v stubVerifier) Verify(ctx context.Context, document []byte) (bool, string, error) {
	return v.valid, v.reason, v.err
}

// countingGenerator wraps the default generator so tests can assert the
// exactly-once document guarantee.
type countingGenerator struct {
	calls atomic.Int32
}

func (g *countingGenerator) Render(ctx context.Context, snapshot *Dispute) (*GeneratedDocument, error) {
	g.calls.Add(1)
	return SnapshotGenerator{}.Render(ctx, snapshot)
}

type capturedEvent struct {
	name    string
	payload map[string]interface{}
}

type captureFanout struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (f *captureFanout) Emit(ctx context.Context, disputeID, name string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, capturedEvent{name: name, payload: payload})
}

func (f *captureFanout) named(name string) []capturedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capturedEvent
	for _, e := range f.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type recordingTrigger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingTrigger) MaybeTrigger(ctx context.Context, disputeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, disputeID)
	return r.err
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type testEnv struct {
	store   *InMemoryStore
	machine *StateMachine
	fanout  *captureFanout
	docs    *countingGenerator
	trigger *recordingTrigger
}

func newTestEnv(t *testing.T, opts ...MachineOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   NewInMemoryStore(),
		fanout:  &captureFanout{},
		docs:    &countingGenerator{},
		trigger: &recordingTrigger{},
	}
	opts = append([]MachineOption{WithAnalysisTrigger(env.trigger)}, opts...)
	env.machine = NewStateMachine(env.store, stubVerifier{valid: true}, env.docs, env.fanout, events.LogAuditSink{}, opts...)
	return env
}

var (
	plaintiff = Actor{Email: "asha@example.com"}
	defendant = Actor{Email: "ravi@example.com"}
	stranger  = Actor{Email: "mallory@example.com"}
	admin     = Actor{Email: "admin@example.com", Admin: true}
)

func createParams() CreateParams {
	return CreateParams{
		Title:            "Security deposit not returned",
		Description:      "Landlord kept the deposit after move-out",
		Plaintiff:        Party{Name: "Asha", Email: plaintiff.Email},
		RespondentEmail:  defendant.Email,
		RespondentName:   "Ravi",
		IdentityDocument: []byte("aadhaar scan"),
	}
}

// newActiveDispute creates and accepts a dispute, leaving it StatusActive.
func (env *testEnv) newActiveDispute(t *testing.T) *Dispute {
	t.Helper()
	ctx := context.Background()
	d, err := env.machine.Create(ctx, plaintiff, createParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	d, err = env.machine.Accept(ctx, defendant, d.ID, Party{Phone: "9000000000"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return d
}

// proposeSolutions installs a solution set directly, standing in for a
// completed analysis run.
func (env *testEnv) proposeSolutions(t *testing.T, id string, n int) {
	t.Helper()
	_, err := env.store.Mutate(context.Background(), id, func(d *Dispute) error {
		d.Solutions = nil
		for i := 0; i < n; i++ {
			d.Solutions = append(d.Solutions, Solution{
				Title:       "Proposal",
				Description: "Split the amount",
				Rationale:   "Balances both positions",
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to install solutions: %v", err)
	}
}

func mustOption(t *testing.T, i int) Choice {
	t.Helper()
	c, err := Option(i)
	if err != nil {
		t.Fatalf("Option(%d) failed: %v", i, err)
	}
	return c
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateParams)
		actor  Actor
	}{
		{"missing title", func(p *CreateParams) { p.Title = " " }, plaintiff},
		{"missing plaintiff email", func(p *CreateParams) { p.Plaintiff.Email = "" }, plaintiff},
		{"missing respondent email", func(p *CreateParams) { p.RespondentEmail = "" }, plaintiff},
		{"same party both sides", func(p *CreateParams) { p.RespondentEmail = p.Plaintiff.Email }, plaintiff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := createParams()
			tc.mutate(&params)
			_, err := env.machine.Create(ctx, tc.actor, params)
			if !IsKind(err, KindValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateRequiresPlaintiffActor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.machine.Create(context.Background(), stranger, createParams())
	if !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}
}

func TestCreateIdentityGate(t *testing.T) {
	store := NewInMemoryStore()

	t.Run("rejected document", func(t *testing.T) {
		m := NewStateMachine(store, stubVerifier{valid: false, reason: "unreadable document"}, SnapshotGenerator{}, &captureFanout{}, events.LogAuditSink{})
		_, err := m.Create(context.Background(), plaintiff, createParams())
		if !IsKind(err, KindValidation) {
			t.Errorf("Expected validation error, got %v", err)
		}
	})

	t.Run("verifier unavailable", func(t *testing.T) {
		m := NewStateMachine(store, stubVerifier{err: errors.New("ocr service down")}, SnapshotGenerator{}, &captureFanout{}, events.LogAuditSink{})
		_, err := m.Create(context.Background(), plaintiff, createParams())
		if !IsKind(err, KindDependency) {
			t.Errorf("Expected dependency error, got %v", err)
		}
	})
}

func TestCreateOpensPending(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.machine.Create(context.Background(), plaintiff, createParams())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if d.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", d.Status)
	}
	if d.ResolutionStatus != ResolutionNone {
		t.Errorf("Expected resolution none, got %s", d.ResolutionStatus)
	}
	if d.RespondentAccepted {
		t.Error("Expected respondent_accepted=false at creation")
	}
}

func TestAcceptOnlyNamedRespondent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.machine.Create(ctx, plaintiff, createParams())

	if _, err := env.machine.Accept(ctx, stranger, d.ID, Party{}); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for stranger, got %v", err)
	}
	if _, err := env.machine.Accept(ctx, plaintiff, d.ID, Party{}); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for plaintiff, got %v", err)
	}

	accepted, err := env.machine.Accept(ctx, defendant, d.ID, Party{Name: "Ravi K", Phone: "9000000000"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if accepted.Status != StatusActive {
		t.Errorf("Expected status active after accept, got %s", accepted.Status)
	}
	if !accepted.RespondentAccepted {
		t.Error("Expected respondent_accepted=true")
	}
	if accepted.Respondent.Email != defendant.Email {
		t.Errorf("Respondent email must stay fixed, got %s", accepted.Respondent.Email)
	}

	if _, err := env.machine.Accept(ctx, defendant, d.ID, Party{}); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error on double accept, got %v", err)
	}
}

func TestDefendantCannotActBeforeAcceptance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.machine.Create(ctx, plaintiff, createParams())

	if _, err := env.machine.SendMessage(ctx, defendant, d.ID, "hello"); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error, got %v", err)
	}

	// The plaintiff may message while the dispute is still pending.
	if _, err := env.machine.SendMessage(ctx, plaintiff, d.ID, "please respond"); err != nil {
		t.Errorf("Plaintiff message before acceptance failed: %v", err)
	}
}

func TestSendMessageCountsAndTriggers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)

	for i := 0; i < 3; i++ {
		actor := plaintiff
		if i%2 == 1 {
			actor = defendant
		}
		if _, err := env.machine.SendMessage(ctx, actor, d.ID, "message"); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	got, _ := env.store.Get(ctx, d.ID)
	if got.MessageCount != 3 {
		t.Errorf("Expected message count 3, got %d", got.MessageCount)
	}
	if env.trigger.count() != 3 {
		t.Errorf("Expected 3 trigger offers, got %d", env.trigger.count())
	}

	msgs, err := env.machine.Messages(ctx, plaintiff, d.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].SenderRole != RolePlaintiff {
		t.Errorf("Expected plaintiff role on first message, got %s", msgs[0].SenderRole)
	}
}

func TestSendMessageSucceedsWhenTriggerFails(t *testing.T) {
	env := newTestEnv(t)
	env.trigger.err = errors.New("model unavailable")
	d := env.newActiveDispute(t)

	if _, err := env.machine.SendMessage(context.Background(), plaintiff, d.ID, "still works"); err != nil {
		t.Errorf("Message send must succeed when the trigger fails, got %v", err)
	}
}

// failingMessageStore simulates the message write failing at the storage
// layer.
type failingMessageStore struct {
	*InMemoryStore
}

func (s *failingMessageStore) MutateWithMessage(ctx context.Context, id string, fn func(d *Dispute) (*Message, error)) (*Message, error) {
	return nil, Dependencyf(errors.New("insert failed"), "message write failed")
}

func TestSendMessageWriteFailureLeavesCounterUntouched(t *testing.T) {
	env := newTestEnv(t)
	d := env.newActiveDispute(t)
	ctx := context.Background()

	machine := NewStateMachine(&failingMessageStore{env.store}, stubVerifier{valid: true}, env.docs, env.fanout, nil)
	if _, err := machine.SendMessage(ctx, plaintiff, d.ID, "lost"); err == nil {
		t.Fatal("Expected send to fail when the store write fails")
	}

	got, err := env.store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 0 {
		t.Errorf("Expected MessageCount=0 after failed send, got %d", got.MessageCount)
	}
	msgs, _ := env.store.ListMessages(ctx, d.ID)
	if len(msgs) != 0 {
		t.Errorf("Expected no messages after failed send, got %d", len(msgs))
	}
}

func TestSubmitDecisionAgreementSettles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 2)

	if _, err := env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 1)); err != nil {
		t.Fatalf("Plaintiff decision failed: %v", err)
	}
	mid, _ := env.store.Get(ctx, d.ID)
	if mid.Status != StatusActive {
		t.Errorf("One decision must not change status, got %s", mid.Status)
	}
	if mid.ResolutionStatus != ResolutionInProgress {
		t.Errorf("Expected resolution in_progress, got %s", mid.ResolutionStatus)
	}

	final, err := env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 1))
	if err != nil {
		t.Fatalf("Defendant decision failed: %v", err)
	}
	if final.Status != StatusResolved {
		t.Errorf("Expected status resolved, got %s", final.Status)
	}
	if final.ResolutionStatus != ResolutionSettled {
		t.Errorf("Expected resolution settled, got %s", final.ResolutionStatus)
	}
	if final.DocumentID == "" || final.DocumentHash == "" {
		t.Error("Expected generated agreement document")
	}
	if got := env.docs.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one document render, got %d", got)
	}
	if len(env.fanout.named(events.AgreementGenerated)) != 1 {
		t.Error("Expected one agreement-generated event")
	}
	if len(env.fanout.named(events.Resolved)) != 1 {
		t.Error("Expected one resolved event")
	}

	// Settled disputes accept no further party actions.
	if _, err := env.machine.SendMessage(ctx, plaintiff, d.ID, "more"); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error after settlement, got %v", err)
	}
}

func TestSubmitDecisionGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)

	if _, err := env.machine.SubmitDecision(ctx, plaintiff, d.ID, Unset()); !IsKind(err, KindValidation) {
		t.Errorf("Expected validation error for unset choice, got %v", err)
	}
	if _, err := env.machine.SubmitDecision(ctx, plaintiff, d.ID, Reject()); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error with no solutions, got %v", err)
	}

	env.proposeSolutions(t, d.ID, 2)
	if _, err := env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 2)); !IsKind(err, KindValidation) {
		t.Errorf("Expected validation error for out-of-range index, got %v", err)
	}
	if _, err := env.machine.SubmitDecision(ctx, stranger, d.ID, mustOption(t, 0)); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for stranger, got %v", err)
	}
	if _, err := env.machine.SubmitDecision(ctx, admin, d.ID, mustOption(t, 0)); !IsKind(err, KindAuthorization) {
		t.Errorf("Admins are not parties; expected authorization error, got %v", err)
	}
}

func TestSubmitDecisionConflictAndResubmit(t *testing.T) {
	env := newTestEnv(t, WithConflictEscalationAfter(2))
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 3)

	env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 0))
	got, err := env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 1))
	if err != nil {
		t.Fatalf("Conflicting decision must not error: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("Conflict must not change status, got %s", got.Status)
	}
	if got.ConflictStreak != 1 {
		t.Errorf("Expected conflict streak 1, got %d", got.ConflictStreak)
	}

	conflicts := env.fanout.named(events.Conflict)
	if len(conflicts) != 1 {
		t.Fatalf("Expected one conflict event, got %d", len(conflicts))
	}
	if conflicts[0].payload["escalated"] != false {
		t.Error("First conflict should not escalate")
	}

	// Resubmit differently again: second consecutive conflict escalates.
	if _, err := env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 2)); err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	conflicts = env.fanout.named(events.Conflict)
	if len(conflicts) != 2 {
		t.Fatalf("Expected two conflict events, got %d", len(conflicts))
	}
	if conflicts[1].payload["escalated"] != true {
		t.Error("Second consecutive conflict should escalate")
	}

	// Converging resolves the standoff.
	final, err := env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 2))
	if err != nil {
		t.Fatalf("Converging decision failed: %v", err)
	}
	if final.Status != StatusResolved {
		t.Errorf("Expected resolved after convergence, got %s", final.Status)
	}
	if final.ConflictStreak != 0 {
		t.Errorf("Settlement must clear the streak, got %d", final.ConflictStreak)
	}
}

func TestRejectMakesReanalysisEligible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 2)

	env.machine.SubmitDecision(ctx, plaintiff, d.ID, Reject())
	got, err := env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 0))
	if err != nil {
		t.Fatalf("Decision after reject failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("Reject must not change status, got %s", got.Status)
	}
	if got.ConflictStreak != 0 {
		t.Errorf("Reject is not a conflict; expected streak 0, got %d", got.ConflictStreak)
	}
	if len(env.fanout.named(events.Conflict)) != 0 {
		t.Error("Reject must not emit a conflict event")
	}

	triggersBefore := env.trigger.count()
	reset, err := env.machine.RequestReanalysis(ctx, plaintiff, d.ID)
	if err != nil {
		t.Fatalf("RequestReanalysis failed: %v", err)
	}
	if reset.HasSolutions() {
		t.Error("Reanalysis must clear the solution set")
	}
	if reset.PlaintiffChoice.IsSet() || reset.RespondentChoice.IsSet() {
		t.Error("Reanalysis must clear both choices")
	}
	if reset.ReanalysisCount != 1 {
		t.Errorf("Expected reanalysis count 1, got %d", reset.ReanalysisCount)
	}
	if env.trigger.count() != triggersBefore+1 {
		t.Error("Reanalysis must re-arm the analysis trigger")
	}
}

func TestReanalysisLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)

	for i := 0; i < MaxReanalysisRounds; i++ {
		if _, err := env.machine.RequestReanalysis(ctx, plaintiff, d.ID); err != nil {
			t.Fatalf("Round %d failed: %v", i+1, err)
		}
	}
	if _, err := env.machine.RequestReanalysis(ctx, plaintiff, d.ID); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error past round %d, got %v", MaxReanalysisRounds, err)
	}
}

func TestSignAgreementFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 1)

	if _, err := env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig-a"); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error without an agreed solution, got %v", err)
	}

	env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 0))
	env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 0))

	// Agreement already settled the case via the decision path; signatures
	// then formalize it without a second document.
	one, err := env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig-a")
	if err != nil {
		t.Fatalf("First signature failed: %v", err)
	}
	if one.RespondentSignature != "" {
		t.Error("Respondent signature must be empty after one signer")
	}

	both, err := env.machine.SignAgreement(ctx, defendant, d.ID, "sig-b")
	if err != nil {
		t.Fatalf("Second signature failed: %v", err)
	}
	if both.PlaintiffSignature != "sig-a" || both.RespondentSignature != "sig-b" {
		t.Error("Expected both signature refs stored")
	}
	if got := env.docs.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one document render across decision and signing, got %d", got)
	}
	if both.ResolutionStatus != ResolutionSettled {
		t.Errorf("Settled path keeps resolution settled, got %s", both.ResolutionStatus)
	}
}

func TestSignAgreementAdminReviewPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 1)

	// Install agreed choices without running the settlement path, modeling a
	// deployment where signatures are required before any settlement.
	choice := mustOption(t, 0)
	_, err := env.store.Mutate(ctx, d.ID, func(d *Dispute) error {
		d.PlaintiffChoice = choice
		d.RespondentChoice = choice
		return nil
	})
	if err != nil {
		t.Fatalf("failed to install choices: %v", err)
	}

	env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig-a")
	both, err := env.machine.SignAgreement(ctx, defendant, d.ID, "sig-b")
	if err != nil {
		t.Fatalf("Second signature failed: %v", err)
	}
	if both.Status != StatusPendingAdminApproval {
		t.Errorf("Expected pending_admin_approval, got %s", both.Status)
	}
	if both.ResolutionStatus != ResolutionAdminReview {
		t.Errorf("Expected admin_review, got %s", both.ResolutionStatus)
	}
	if both.DocumentID == "" {
		t.Error("Expected draft agreement document after both signatures")
	}

	final, err := env.machine.ApproveResolution(ctx, admin, d.ID)
	if err != nil {
		t.Fatalf("ApproveResolution failed: %v", err)
	}
	if final.Status != StatusResolved || final.ResolutionStatus != ResolutionFinalized {
		t.Errorf("Expected resolved/finalized, got %s/%s", final.Status, final.ResolutionStatus)
	}
}

func TestConcurrentSigningGeneratesOneDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 1)

	choice := mustOption(t, 0)
	_, err := env.store.Mutate(ctx, d.ID, func(d *Dispute) error {
		d.PlaintiffChoice = choice
		d.RespondentChoice = choice
		return nil
	})
	if err != nil {
		t.Fatalf("failed to install choices: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig-a"); err != nil {
			t.Errorf("Plaintiff sign failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := env.machine.SignAgreement(ctx, defendant, d.ID, "sig-b"); err != nil {
			t.Errorf("Defendant sign failed: %v", err)
		}
	}()
	wg.Wait()

	if got := env.docs.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one document render under concurrent signing, got %d", got)
	}
	final, _ := env.store.Get(ctx, d.ID)
	if final.Status != StatusPendingAdminApproval {
		t.Errorf("Expected pending_admin_approval, got %s", final.Status)
	}
}

func TestConcurrentDecisionsSettleOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 1)

	choice := mustOption(t, 0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env.machine.SubmitDecision(ctx, plaintiff, d.ID, choice)
	}()
	go func() {
		defer wg.Done()
		env.machine.SubmitDecision(ctx, defendant, d.ID, choice)
	}()
	wg.Wait()

	final, _ := env.store.Get(ctx, d.ID)
	if final.Status != StatusResolved {
		t.Errorf("Expected resolved, got %s", final.Status)
	}
	if got := env.docs.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one document render, got %d", got)
	}
	if len(env.fanout.named(events.AgreementGenerated)) != 1 {
		t.Error("Expected exactly one agreement-generated event")
	}
}

func TestApproveResolutionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)
	env.proposeSolutions(t, d.ID, 1)
	env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 0))
	env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 0))

	if _, err := env.machine.ApproveResolution(ctx, plaintiff, d.ID); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for non-admin, got %v", err)
	}

	first, err := env.machine.ApproveResolution(ctx, admin, d.ID)
	if err != nil {
		t.Fatalf("First approval failed: %v", err)
	}
	if first.ResolutionStatus != ResolutionFinalized {
		t.Errorf("Expected finalized, got %s", first.ResolutionStatus)
	}
	finalizedEvents := len(env.fanout.named(events.ResolutionFinalized))

	second, err := env.machine.ApproveResolution(ctx, admin, d.ID)
	if err != nil {
		t.Fatalf("Re-approval must be a no-op success, got %v", err)
	}
	if second.ResolutionStatus != ResolutionFinalized {
		t.Errorf("Expected finalized after re-approval, got %s", second.ResolutionStatus)
	}
	if len(env.fanout.named(events.ResolutionFinalized)) != finalizedEvents {
		t.Error("Re-approval must not emit another finalized event")
	}
}

func TestForwardToCourt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)

	if _, err := env.machine.ForwardToCourt(ctx, plaintiff, d.ID, CourtReferral{}); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for non-admin, got %v", err)
	}
	if _, err := env.machine.ForwardToCourt(ctx, admin, d.ID, CourtReferral{CourtType: "civil"}); !IsKind(err, KindValidation) {
		t.Errorf("Expected validation error for partial referral, got %v", err)
	}

	referral := CourtReferral{
		CourtType: "civil",
		CourtName: "District Court Pune",
		Location:  "Pune",
		Reason:    "No convergence after three analysis rounds",
	}
	got, err := env.machine.ForwardToCourt(ctx, admin, d.ID, referral)
	if err != nil {
		t.Fatalf("ForwardToCourt failed: %v", err)
	}
	if got.Status != StatusForwardedToCourt {
		t.Errorf("Expected forwarded_to_court, got %s", got.Status)
	}
	if got.Court == nil || got.Court.CourtName != referral.CourtName {
		t.Error("Expected referral details stored")
	}

	// Terminal: party actions rejected, reads still work.
	if _, err := env.machine.SendMessage(ctx, plaintiff, d.ID, "anyone there?"); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error after forwarding, got %v", err)
	}
	if _, err := env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig"); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error for signing after forwarding, got %v", err)
	}
	if _, err := env.machine.Get(ctx, plaintiff, d.ID); err != nil {
		t.Errorf("Forwarded dispute must stay readable, got %v", err)
	}
	if _, err := env.machine.ForwardToCourt(ctx, admin, d.ID, referral); !IsKind(err, KindPreconditionFailed) {
		t.Errorf("Expected precondition error on double forward, got %v", err)
	}
}

func TestGetAccessControl(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, _ := env.machine.Create(ctx, plaintiff, createParams())

	if _, err := env.machine.Get(ctx, stranger, d.ID); !IsKind(err, KindAuthorization) {
		t.Errorf("Expected authorization error for stranger, got %v", err)
	}
	if _, err := env.machine.Get(ctx, admin, d.ID); err != nil {
		t.Errorf("Admin read failed: %v", err)
	}
	if _, err := env.machine.Get(ctx, defendant, d.ID); err != nil {
		t.Errorf("Respondent read failed before acceptance: %v", err)
	}
	if _, err := env.machine.Get(ctx, plaintiff, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// Full walkthrough: create, accept, converse, disagree once, reanalyze,
// converge, sign, finalize.
func TestLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newActiveDispute(t)

	for i := 0; i < 6; i++ {
		actor := plaintiff
		if i%2 == 1 {
			actor = defendant
		}
		if _, err := env.machine.SendMessage(ctx, actor, d.ID, "negotiation message"); err != nil {
			t.Fatalf("SendMessage %d failed: %v", i, err)
		}
	}

	env.proposeSolutions(t, d.ID, 3)
	env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 0))
	env.machine.SubmitDecision(ctx, defendant, d.ID, Reject())

	if _, err := env.machine.RequestReanalysis(ctx, defendant, d.ID); err != nil {
		t.Fatalf("RequestReanalysis failed: %v", err)
	}
	env.proposeSolutions(t, d.ID, 3)

	env.machine.SubmitDecision(ctx, plaintiff, d.ID, mustOption(t, 1))
	settled, err := env.machine.SubmitDecision(ctx, defendant, d.ID, mustOption(t, 1))
	if err != nil {
		t.Fatalf("Converging decision failed: %v", err)
	}
	if settled.Status != StatusResolved || settled.ResolutionStatus != ResolutionSettled {
		t.Fatalf("Expected resolved/settled, got %s/%s", settled.Status, settled.ResolutionStatus)
	}

	env.machine.SignAgreement(ctx, plaintiff, d.ID, "sig-a")
	if _, err := env.machine.SignAgreement(ctx, defendant, d.ID, "sig-b"); err != nil {
		t.Fatalf("Signing failed: %v", err)
	}

	final, err := env.machine.ApproveResolution(ctx, admin, d.ID)
	if err != nil {
		t.Fatalf("ApproveResolution failed: %v", err)
	}
	if final.ResolutionStatus != ResolutionFinalized {
		t.Errorf("Expected finalized, got %s", final.ResolutionStatus)
	}
	if got := env.docs.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one document across the whole lifecycle, got %d", got)
	}
}
