package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

type EventStore struct {
	mu     sync.Mutex
	events map[domain.EventID]*domain.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[domain.EventID]*domain.Event)}
}

// Put stores an event, for seeding.
func (s *EventStore) Put(e *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = copyEvent(e)
}

func copyEvent(e *domain.Event) *domain.Event {
	c := *e
	c.TicketTypes = append([]domain.TicketType(nil), e.TicketTypes...)
	c.Participants = append([]domain.Participant(nil), e.Participants...)
	c.Waitlist = append([]domain.WaitlistEntry(nil), e.Waitlist...)
	c.Pending = append([]domain.PendingRegistration(nil), e.Pending...)
	return &c
}

func (s *EventStore) Find(_ context.Context, id domain.EventID) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyEvent(e), nil
}

func (s *EventStore) AddParticipant(_ context.Context, id domain.EventID, p domain.Participant, gateBySold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Cancelled {
		return domain.ErrEventCancelled
	}
	if e.HasParticipant(p.UserToken) {
		return domain.ErrAlreadyRegistered
	}
	if e.IsFull() {
		return domain.ErrEventFull
	}
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Name != p.TicketType {
			continue
		}
		if gateBySold && e.TicketTypes[i].Capacity > 0 && e.TicketTypes[i].Sold >= e.TicketTypes[i].Capacity {
			return domain.ErrTicketTypeSoldOut
		}
		e.TicketTypes[i].Sold++
	}
	s.dropMembership(e, p.UserToken)
	e.Participants = append(e.Participants, p)
	return nil
}

// dropMembership removes the token from waitlist and pending, keeping the
// one-set-membership invariant when a user is promoted.
func (s *EventStore) dropMembership(e *domain.Event, tok domain.UserToken) {
	for i := range e.Waitlist {
		if e.Waitlist[i].UserToken == tok {
			e.Waitlist = append(e.Waitlist[:i], e.Waitlist[i+1:]...)
			break
		}
	}
	for i := range e.Pending {
		if e.Pending[i].UserToken == tok {
			e.Pending = append(e.Pending[:i], e.Pending[i+1:]...)
			break
		}
	}
}

func (s *EventStore) AddToWaitlist(_ context.Context, id domain.EventID, w domain.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Cancelled {
		return domain.ErrEventCancelled
	}
	if e.HasParticipant(w.UserToken) {
		return domain.ErrAlreadyRegistered
	}
	if e.OnWaitlist(w.UserToken) {
		return domain.ErrAlreadyWaitlisted
	}
	e.Waitlist = append(e.Waitlist, w)
	return nil
}

func (s *EventStore) AddPending(_ context.Context, id domain.EventID, p domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Cancelled {
		return domain.ErrEventCancelled
	}
	if e.HasParticipant(p.UserToken) {
		return domain.ErrAlreadyRegistered
	}
	if e.IsPending(p.UserToken) {
		return domain.ErrAlreadyPending
	}
	e.Pending = append(e.Pending, p)
	return nil
}

func (s *EventStore) RemoveParticipant(_ context.Context, id domain.EventID, tok domain.UserToken, promoteWaitlist bool) (domain.Participant, *domain.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.Participant{}, nil, domain.ErrNotFound
	}
	idx := -1
	for i := range e.Participants {
		if e.Participants[i].UserToken == tok {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Participant{}, nil, domain.ErrNotFound
	}
	removed := e.Participants[idx]
	e.Participants = append(e.Participants[:idx], e.Participants[idx+1:]...)

	if promoteWaitlist && len(e.Waitlist) > 0 && !e.Cancelled {
		head := e.Waitlist[0]
		e.Waitlist = e.Waitlist[1:]
		e.Participants = append(e.Participants, domain.Participant{
			UserToken: head.UserToken,
			Name:      head.Name,
			Email:     head.Email,
			AddedAt:   time.Now().UTC(),
		})
		return removed, &head, nil
	}
	return removed, nil, nil
}

func (s *EventStore) TakePending(_ context.Context, id domain.EventID, tok domain.UserToken) (domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domain.PendingRegistration{}, domain.ErrNotFound
	}
	for i := range e.Pending {
		if e.Pending[i].UserToken == tok {
			p := e.Pending[i]
			e.Pending = append(e.Pending[:i], e.Pending[i+1:]...)
			return p, nil
		}
	}
	return domain.PendingRegistration{}, domain.ErrNotFound
}

func (s *EventStore) CheckIn(_ context.Context, id domain.EventID, tok domain.UserToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for i := range e.Participants {
		if e.Participants[i].UserToken == tok {
			if e.Participants[i].Entry {
				return false, nil
			}
			e.Participants[i].Entry = true
			return true, nil
		}
	}
	return false, nil
}

func (s *EventStore) Cancel(_ context.Context, id domain.EventID, reason string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.Cancelled {
		return nil, domain.ErrEventCancelled
	}
	e.Cancelled = true
	e.CancelledAt = time.Now().UTC()
	e.CancelReason = reason
	return copyEvent(e), nil
}
