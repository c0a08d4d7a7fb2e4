package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

type PayoutStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]domain.PayoutRequest
}

func NewPayoutStore() *PayoutStore {
	return &PayoutStore{requests: make(map[uuid.UUID]domain.PayoutRequest)}
}

func (s *PayoutStore) Create(_ context.Context, p domain.PayoutRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[p.ID] = p
	return nil
}

func (s *PayoutStore) Get(_ context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	if !ok {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *PayoutStore) Transition(_ context.Context, id uuid.UUID, from, to domain.PayoutStatus, notes, transferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from || !domain.CanTransition(from, to) {
		return domain.ErrBadTransition
	}
	p.Status = to
	if notes != "" {
		p.AdminNotes = notes
	}
	if transferID != "" {
		p.TransferID = transferID
	}
	switch to {
	case domain.PayoutCompleted, domain.PayoutRejected, domain.PayoutFailed:
		p.ResolvedAt = time.Now().UTC()
	}
	s.requests[id] = p
	return nil
}

func (s *PayoutStore) DueScheduled(_ context.Context, now time.Time, limit int) ([]domain.PayoutRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.PayoutRequest
	for _, p := range s.requests {
		scheduledDue := p.Status == domain.PayoutPending && !p.ScheduledAt.IsZero() && !p.ScheduledAt.After(now)
		if scheduledDue || p.Status == domain.PayoutApproved {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RequestedAt.Before(due[j].RequestedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
