// Package ledger is the single write path for user balance mutation. Every
// mutation of available/locked/pending funds goes through Engine.Apply, which
// pairs the balance change with its transaction-log entry so the two can
// never drift apart.
package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

// StatusUpdate flips the status of a previously appended entry, matched by
// reference. Used when a pending withdrawal resolves.
type StatusUpdate struct {
	Reference string
	Status    domain.EntryStatus
}

// Mutation is one atomic ledger change: bucket deltas plus either a new log
// entry or a status update for an existing one. A mutation that moves money
// in or out of the user (non-zero net) must carry one of the two; a pure
// bucket move (net zero, e.g. the earnings unlock) may omit both.
type Mutation struct {
	User           domain.UserToken
	AvailableDelta domain.Money
	LockedDelta    domain.Money
	PendingDelta   domain.Money
	Entry          *domain.Entry
	Update         *StatusUpdate
	// Hold must be set when LockedDelta > 0 credits sale earnings, so the
	// unlock sweep knows when the funds thaw.
	Hold *EarningsHold
}

// Net is the total flow in or out of the user's ledger.
func (m Mutation) Net() domain.Money {
	return m.AvailableDelta + m.LockedDelta + m.PendingDelta
}

func (m Mutation) validate() error {
	if m.User == "" {
		return errors.WithDetail(domain.ErrValidation, "mutation missing user token")
	}
	if m.AvailableDelta == 0 && m.LockedDelta == 0 && m.PendingDelta == 0 {
		return errors.WithDetail(domain.ErrValidation, "empty mutation")
	}
	if m.Net() != 0 && m.Entry == nil && m.Update == nil {
		return errors.WithDetail(domain.ErrValidation, "money flow without a log entry")
	}
	if m.Entry != nil {
		if m.Entry.UserToken != m.User {
			return errors.WithDetail(domain.ErrValidation, "entry user does not match mutation user")
		}
		if err := m.Entry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EarningsHold tags a locked credit with the event it came from and the time
// it becomes unlockable. The store keeps one hold per (user, event).
type EarningsHold struct {
	EventID  domain.EventID
	UnlockAt time.Time
}

// Unlock is one due hold found by the sweep.
type Unlock struct {
	User    domain.UserToken
	EventID domain.EventID
	Amount  domain.Money
}

// Store is the durable side of the ledger. Apply must be atomic: the balance
// row mutation and the entry append commit or fail together, and a delta that
// would take any bucket negative fails with domain.ErrInsufficientFunds
// without mutating anything.
type Store interface {
	Get(ctx context.Context, user domain.UserToken) (domain.Ledger, error)
	Apply(ctx context.Context, m Mutation) error
	Entries(ctx context.Context, user domain.UserToken, limit, offset int) ([]domain.Entry, error)
	// DueUnlocks returns earnings holds whose unlock time has passed.
	DueUnlocks(ctx context.Context, now time.Time) ([]Unlock, error)
	// ReleaseHold atomically moves a hold's remaining amount from locked to
	// available and consumes the hold. Releasing a hold that no longer exists
	// is a no-op, which makes the unlock sweep idempotent.
	ReleaseHold(ctx context.Context, u Unlock) error
}

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// Balance returns the current ledger for a user. A user that has never moved
// money gets a zeroed ledger, not ErrNotFound.
func (e *Engine) Balance(ctx context.Context, user domain.UserToken) (domain.Ledger, error) {
	l, err := e.store.Get(ctx, user)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Ledger{UserToken: user}, nil
	}
	return l, err
}

// History lists entries newest first.
func (e *Engine) History(ctx context.Context, user domain.UserToken, limit, offset int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.Entries(ctx, user, limit, offset)
}

// Apply validates and commits one mutation.
func (e *Engine) Apply(ctx context.Context, m Mutation) error {
	if err := m.validate(); err != nil {
		return err
	}
	return e.store.Apply(ctx, m)
}
