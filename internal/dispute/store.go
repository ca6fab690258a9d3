package dispute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists disputes and their messages. Mutate is the serialization
// primitive: implementations must linearize concurrent mutations of the same
// dispute (per-dispute mutex in memory, row lock in Postgres) so the
// dual-decision and dual-signature races resolve deterministically.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	List(ctx context.Context, partyEmail string) ([]*Dispute, error)

	// Mutate loads the dispute, applies fn under the per-dispute lock and
	// persists the result. A non-nil error from fn aborts the mutation with
	// no partial write and is returned unchanged.
	Mutate(ctx context.Context, id string, fn func(d *Dispute) error) (*Dispute, error)

	// MutateWithMessage is Mutate plus an atomic message append: the message
	// fn returns is persisted in the same write as the dispute, so counters
	// kept on the dispute never run ahead of the history.
	MutateWithMessage(ctx context.Context, id string, fn func(d *Dispute) (*Message, error)) (*Message, error)

	ListMessages(ctx context.Context, disputeID string) ([]*Message, error)
}

// InMemoryStore is the non-durable Store used by tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	disputes map[string]*memEntry

	// messages has its own lock so MutateWithMessage can append while the
	// per-dispute lock is held without ordering against mu.
	msgMu    sync.RWMutex
	messages map[string][]*Message
}

type memEntry struct {
	mu sync.Mutex
	d  *Dispute
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		disputes: make(map[string]*memEntry),
		messages: make(map[string][]*Message),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.disputes[d.ID]; exists {
		return Conflictf("dispute %s already exists", d.ID)
	}
	cp := cloneDispute(d)
	s.disputes[d.ID] = &memEntry{d: cp}
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	s.mu.RLock()
	entry, ok := s.disputes[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneDispute(entry.d), nil
}

func (s *InMemoryStore) List(ctx context.Context, partyEmail string) ([]*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Dispute
	for _, entry := range s.disputes {
		entry.mu.Lock()
		d := entry.d
		if partyEmail == "" || emailsEqual(d.Plaintiff.Email, partyEmail) || emailsEqual(d.Respondent.Email, partyEmail) {
			out = append(out, cloneDispute(d))
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Mutate(ctx context.Context, id string, fn func(d *Dispute) error) (*Dispute, error) {
	s.mu.RLock()
	entry, ok := s.disputes[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := cloneDispute(entry.d)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	entry.d = working
	return cloneDispute(working), nil
}

func (s *InMemoryStore) MutateWithMessage(ctx context.Context, id string, fn func(d *Dispute) (*Message, error)) (*Message, error) {
	s.mu.RLock()
	entry, ok := s.disputes[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := cloneDispute(entry.d)
	msg, err := fn(working)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, Integrityf("message mutation returned no message")
	}
	working.UpdatedAt = time.Now().UTC()

	s.msgMu.Lock()
	cp := *msg
	s.messages[msg.DisputeID] = append(s.messages[msg.DisputeID], &cp)
	s.msgMu.Unlock()

	entry.d = working
	out := *msg
	return &out, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, disputeID string) ([]*Message, error) {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	msgs := s.messages[disputeID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func cloneDispute(d *Dispute) *Dispute {
	cp := *d
	if d.Solutions != nil {
		cp.Solutions = append([]Solution(nil), d.Solutions...)
	}
	if d.AnalysisStartedAt != nil {
		t := *d.AnalysisStartedAt
		cp.AnalysisStartedAt = &t
	}
	if d.Court != nil {
		c := *d.Court
		cp.Court = &c
	}
	return &cp
}
