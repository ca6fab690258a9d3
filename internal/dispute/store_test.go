package dispute

import (
	"context"
	"testing"
	"time"
)

func seedStoreDispute(t *testing.T, store *InMemoryStore) *Dispute {
	t.Helper()
	d := &Dispute{
		ID:         "d-1",
		Title:      "Security deposit not returned",
		Plaintiff:  Party{Email: "asha@example.com"},
		Respondent: Party{Email: "ravi@example.com"},
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Create(context.Background(), d); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return d
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	store := NewInMemoryStore()
	d := seedStoreDispute(t, store)

	err := store.Create(context.Background(), d)
	if err == nil {
		t.Fatal("Expected error on duplicate create")
	}
	if !IsKind(err, KindConflict) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestMutateWithMessagePersistsBoth(t *testing.T) {
	store := NewInMemoryStore()
	d := seedStoreDispute(t, store)
	ctx := context.Background()

	msg, err := store.MutateWithMessage(ctx, d.ID, func(d *Dispute) (*Message, error) {
		d.MessageCount++
		return &Message{ID: "m-1", DisputeID: d.ID, SenderEmail: d.Plaintiff.Email, Body: "hello"}, nil
	})
	if err != nil {
		t.Fatalf("MutateWithMessage failed: %v", err)
	}
	if msg.ID != "m-1" {
		t.Errorf("Expected returned message m-1, got %s", msg.ID)
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 1 {
		t.Errorf("Expected MessageCount=1, got %d", got.MessageCount)
	}
	msgs, err := store.ListMessages(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != got.MessageCount {
		t.Errorf("Expected history length %d to match counter, got %d", got.MessageCount, len(msgs))
	}
}

func TestMutateWithMessageAbortLeavesNoTrace(t *testing.T) {
	store := NewInMemoryStore()
	d := seedStoreDispute(t, store)
	ctx := context.Background()

	_, err := store.MutateWithMessage(ctx, d.ID, func(d *Dispute) (*Message, error) {
		d.MessageCount++
		return nil, Preconditionf("rejected")
	})
	if err == nil {
		t.Fatal("Expected error from aborted mutation")
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 0 {
		t.Errorf("Expected counter unchanged after abort, got %d", got.MessageCount)
	}
	msgs, _ := store.ListMessages(ctx, d.ID)
	if len(msgs) != 0 {
		t.Errorf("Expected no messages after abort, got %d", len(msgs))
	}
}

func TestMutateWithMessageUnknownDispute(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.MutateWithMessage(context.Background(), "missing", func(d *Dispute) (*Message, error) {
		return &Message{ID: "m"}, nil
	})
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
