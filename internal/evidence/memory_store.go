package evidence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is the non-durable evidence store for tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Evidence
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]*Evidence)}
}

func (s *InMemoryStore) Insert(ctx context.Context, e *Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.items[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemoryStore) ListByDispute(ctx context.Context, disputeID string) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Evidence
	for _, e := range s.items {
		if e.DisputeID == disputeID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.OCRStatus != OCRPending {
		return false, nil
	}
	e.OCRStatus = OCRProcessing
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *InMemoryStore) CompleteOCR(ctx context.Context, id string, extraction *Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	e.OCRStatus = OCRCompleted
	e.OCRText = extraction.Text
	e.OCRConfidence = extraction.Confidence
	e.OCRError = ""
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) FailOCR(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	e.OCRStatus = OCRFailed
	e.OCRError = reason
	e.UpdatedAt = time.Now().UTC()
	return nil
}
