package jobqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/riverqueue/river"

	"github.com/settleline/internal/analysis"
	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/evidence"
	"github.com/settleline/internal/knowledge"
	"github.com/settleline/internal/profile"
)

const workerResponse = `{"solutions":[{"title":"Split","description":"Half each","rationale":"Fair"}]}`

type fakeModel struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return workerResponse, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type nopFanout struct{}

func (nopFanout) Emit(ctx context.Context, disputeID, name string, payload map[string]interface{}) {}

func seedDispute(t *testing.T, store dispute.Store, msgCount int) *dispute.Dispute {
	t.Helper()
	ctx := context.Background()
	d := &dispute.Dispute{
		ID:                 "d-1",
		Title:              "Security deposit not returned",
		Plaintiff:          dispute.Party{Email: "asha@example.com"},
		Respondent:         dispute.Party{Email: "ravi@example.com"},
		RespondentAccepted: true,
		Status:             dispute.StatusActive,
		MessageCount:       msgCount,
	}
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}
	return d
}

func newWorker(store dispute.Store, model *fakeModel) *AnalysisWorker {
	retriever := knowledge.NewStaticRetriever([]knowledge.Snippet{
		{Title: "Deposit norms", Content: "security deposits settle proportionally to documented damage"},
	})
	orch := analysis.NewOrchestrator(store, evidence.NewInMemoryStore(), profile.NewExtractor(),
		retriever, model, nopFanout{}, nil, analysis.DefaultConfig())
	return &AnalysisWorker{orchestrator: orch}
}

func analysisJob(disputeID string, force bool) *river.Job[AnalysisJobArgs] {
	return &river.Job[AnalysisJobArgs]{Args: AnalysisJobArgs{DisputeID: disputeID, Force: force}}
}

func TestAnalysisWorkerHonorsThreshold(t *testing.T) {
	store := dispute.NewInMemoryStore()
	model := &fakeModel{}
	d := seedDispute(t, store, 2)
	w := newWorker(store, model)

	if err := w.Work(context.Background(), analysisJob(d.ID, false)); err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	if model.callCount() != 0 {
		t.Errorf("Expected no model calls below threshold, got %d", model.callCount())
	}
	got, _ := store.Get(context.Background(), d.ID)
	if got.HasSolutions() {
		t.Error("Expected no solutions below threshold")
	}
}

func TestAnalysisWorkerRunsAboveThreshold(t *testing.T) {
	store := dispute.NewInMemoryStore()
	model := &fakeModel{}
	d := seedDispute(t, store, 6)
	w := newWorker(store, model)

	if err := w.Work(context.Background(), analysisJob(d.ID, false)); err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	if model.callCount() != 1 {
		t.Errorf("Expected 1 model call, got %d", model.callCount())
	}
	got, _ := store.Get(context.Background(), d.ID)
	if !got.HasSolutions() {
		t.Error("Expected solutions after background run")
	}
}

func TestAnalysisWorkerForceSkipsThreshold(t *testing.T) {
	store := dispute.NewInMemoryStore()
	model := &fakeModel{}
	d := seedDispute(t, store, 1)
	w := newWorker(store, model)

	if err := w.Work(context.Background(), analysisJob(d.ID, true)); err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	if model.callCount() != 1 {
		t.Errorf("Expected 1 model call on forced run, got %d", model.callCount())
	}
}

func TestAnalysisWorkerUnknownDisputeIsTerminal(t *testing.T) {
	store := dispute.NewInMemoryStore()
	w := newWorker(store, &fakeModel{})

	err := w.Work(context.Background(), analysisJob("missing", true))
	if err == nil {
		t.Fatal("Expected error for unknown dispute")
	}
	if dispute.IsKind(err, dispute.KindDependency) {
		t.Error("Unknown dispute must not be retried as a dependency failure")
	}
}
