// Package memstore provides in-memory implementations of the durable stores.
// They serialize mutation with a mutex and are used by the engine tests and
// for local development without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
)

type hold struct {
	amount   domain.Money
	unlockAt time.Time
}

type LedgerStore struct {
	mu      sync.Mutex
	ledgers map[domain.UserToken]domain.Ledger
	entries []domain.Entry
	holds   map[domain.UserToken]map[domain.EventID]hold
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		ledgers: make(map[domain.UserToken]domain.Ledger),
		holds:   make(map[domain.UserToken]map[domain.EventID]hold),
	}
}

// Seed sets a user's balances directly, for tests.
func (s *LedgerStore) Seed(user domain.UserToken, available, locked, pending domain.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[user] = domain.Ledger{
		UserToken: user,
		Available: available,
		Locked:    locked,
		Pending:   pending,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *LedgerStore) Get(_ context.Context, user domain.UserToken) (domain.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[user]
	if !ok {
		return domain.Ledger{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *LedgerStore) Apply(_ context.Context, m ledger.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ledgers[m.User]
	l.UserToken = m.User
	next := domain.Ledger{
		UserToken: m.User,
		Available: l.Available + m.AvailableDelta,
		Locked:    l.Locked + m.LockedDelta,
		Pending:   l.Pending + m.PendingDelta,
		UpdatedAt: time.Now().UTC(),
	}
	if next.Available < 0 || next.Locked < 0 || next.Pending < 0 {
		return errors.WithDetailf(domain.ErrInsufficientFunds,
			"user %s: available %d, locked %d, pending %d after mutation",
			m.User, next.Available, next.Locked, next.Pending)
	}

	s.ledgers[m.User] = next
	if m.Entry != nil {
		s.entries = append(s.entries, *m.Entry)
	}
	if m.Update != nil {
		for i := range s.entries {
			if s.entries[i].Reference == m.Update.Reference && s.entries[i].UserToken == m.User {
				s.entries[i].Status = m.Update.Status
			}
		}
	}
	if m.Hold != nil && m.LockedDelta > 0 {
		byEvent := s.holds[m.User]
		if byEvent == nil {
			byEvent = make(map[domain.EventID]hold)
			s.holds[m.User] = byEvent
		}
		h := byEvent[m.Hold.EventID]
		h.amount += m.LockedDelta
		h.unlockAt = m.Hold.UnlockAt
		byEvent[m.Hold.EventID] = h
	}
	return nil
}

func (s *LedgerStore) Entries(_ context.Context, user domain.UserToken, limit, offset int) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Entry
	for i := range s.entries {
		if s.entries[i].UserToken == user {
			out = append(out, s.entries[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LedgerStore) DueUnlocks(_ context.Context, now time.Time) ([]ledger.Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []ledger.Unlock
	for user, byEvent := range s.holds {
		for eventID, h := range byEvent {
			if !h.unlockAt.After(now) {
				due = append(due, ledger.Unlock{User: user, EventID: eventID, Amount: h.amount})
			}
		}
	}
	return due, nil
}

func (s *LedgerStore) ReleaseHold(_ context.Context, u ledger.Unlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byEvent := s.holds[u.User]
	h, ok := byEvent[u.EventID]
	if !ok {
		return nil // already released
	}
	l := s.ledgers[u.User]
	amount := h.amount
	if l.Locked < amount {
		// Refund debits may have drawn the locked bucket below the hold; only
		// what is actually left can thaw.
		amount = l.Locked
	}
	l.Locked -= amount
	l.Available += amount
	l.UpdatedAt = time.Now().UTC()
	s.ledgers[u.User] = l
	delete(byEvent, u.EventID)
	return nil
}

// AllEntries returns a copy of the full log, for test assertions.
func (s *LedgerStore) AllEntries() []domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
