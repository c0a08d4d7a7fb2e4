// Package registration orchestrates event membership: confirmed participants,
// the waitlist and the pending-approval queue. The pure policy lives in
// domain.Decide; this package commits its terminal outcomes through the event
// store, which re-checks capacity and duplicates under a per-event lock so the
// capacity bound holds under concurrent requests.
package registration

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

// EventStore is the durable event tracker. Each method is atomic with respect
// to the event aggregate: implementations serialize mutation per event (a row
// lock in postgres, a mutex in memory) and re-validate cancelled/duplicate/
// capacity state before writing.
type EventStore interface {
	Find(ctx context.Context, id domain.EventID) (*domain.Event, error)
	// AddParticipant refuses cancelled events (domain.ErrEventCancelled),
	// duplicates (domain.ErrAlreadyRegistered), full events
	// (domain.ErrEventFull) and, when gateBySold is set, exhausted ticket
	// types (domain.ErrTicketTypeSoldOut). It increments the ticket type's
	// sold counter and drops the user from waitlist/pending in the same
	// transaction.
	AddParticipant(ctx context.Context, id domain.EventID, p domain.Participant, gateBySold bool) error
	AddToWaitlist(ctx context.Context, id domain.EventID, w domain.WaitlistEntry) error
	AddPending(ctx context.Context, id domain.EventID, p domain.PendingRegistration) error
	// RemoveParticipant removes a confirmed participant and, when
	// promoteWaitlist is set and a waitlist exists, promotes its head into
	// participants in the same transaction.
	RemoveParticipant(ctx context.Context, id domain.EventID, tok domain.UserToken, promoteWaitlist bool) (domain.Participant, *domain.WaitlistEntry, error)
	// TakePending removes and returns a pending registration.
	TakePending(ctx context.Context, id domain.EventID, tok domain.UserToken) (domain.PendingRegistration, error)
	// CheckIn flips the participant's entry flag, reporting whether this call
	// flipped it. Unknown tokens return (false, nil).
	CheckIn(ctx context.Context, id domain.EventID, tok domain.UserToken) (bool, error)
	// Cancel marks the event cancelled exactly once and returns the final
	// snapshot for the refund sweep. A second cancel returns
	// domain.ErrEventCancelled.
	Cancel(ctx context.Context, id domain.EventID, reason string) (*domain.Event, error)
}

// Notifier is the injected fan-out capability. Implementations never fail the
// caller; delivery problems are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, kind string, payload map[string]any)
}

type Service struct {
	events    EventStore
	notify    Notifier
	log       observability.Logger
	soldGates bool
}

func NewService(events EventStore, notify Notifier, log observability.Logger, soldGates bool) *Service {
	return &Service{events: events, notify: notify, log: log, soldGates: soldGates}
}

// Registrant identifies who is registering and how.
type Registrant struct {
	User       domain.UserToken
	Name       string
	Email      string
	Code       string
	TicketType string
	Answers    map[string]string
}

func (r Registrant) validate() error {
	if r.User == "" {
		return errors.WithDetail(domain.ErrValidation, "user token is required")
	}
	if r.Name == "" {
		return errors.WithDetail(domain.ErrValidation, "name is required")
	}
	if r.Email == "" {
		return errors.WithDetail(domain.ErrValidation, "email is required")
	}
	return nil
}

// Evaluate loads the event and runs the decision policy against a snapshot.
// No side effects.
func (s *Service) Evaluate(ctx context.Context, id domain.EventID, r Registrant) (*domain.Event, domain.Outcome, error) {
	if err := r.validate(); err != nil {
		return nil, "", err
	}
	e, err := s.events.Find(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if e.Cancelled {
		return nil, "", domain.ErrEventCancelled
	}
	if _, ok := e.TicketPrice(r.TicketType); !ok {
		return nil, "", errors.WithDetailf(domain.ErrValidation, "unknown ticket type %q", r.TicketType)
	}
	return e, domain.Decide(e, r.User, r.Code), nil
}

// Commit applies a terminal outcome from Evaluate. For OutcomeAccepted the
// amountPaid is recorded on the participant; payment itself is the settlement
// engine's business. Rejecting outcomes are returned as their sentinel errors
// without mutation.
func (s *Service) Commit(ctx context.Context, id domain.EventID, r Registrant, outcome domain.Outcome, amountPaid domain.Money) (*domain.Participant, error) {
	if err := outcome.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	switch outcome {
	case domain.OutcomeWaitlisted:
		w := domain.WaitlistEntry{UserToken: r.User, Name: r.Name, Email: r.Email, AddedAt: now}
		if err := s.events.AddToWaitlist(ctx, id, w); err != nil {
			return nil, err
		}
		s.notify.Notify(ctx, "registration.waitlisted", map[string]any{
			"event_id": id, "user": r.User, "email": r.Email,
		})
		return nil, nil

	case domain.OutcomePendingApproval:
		p := domain.PendingRegistration{
			UserToken: r.User, Name: r.Name, Email: r.Email,
			Answers: r.Answers, TicketType: r.TicketType, AddedAt: now,
		}
		if err := s.events.AddPending(ctx, id, p); err != nil {
			return nil, err
		}
		s.notify.Notify(ctx, "registration.pending", map[string]any{
			"event_id": id, "user": r.User, "email": r.Email,
		})
		return nil, nil

	case domain.OutcomeAccepted:
		p := domain.Participant{
			UserToken:  r.User,
			Name:       r.Name,
			Email:      r.Email,
			PassID:     "UH-" + uuid.NewString(),
			TicketType: r.TicketType,
			AmountPaid: amountPaid,
			AddedAt:    now,
		}
		if err := s.events.AddParticipant(ctx, id, p, s.soldGates); err != nil {
			return nil, err
		}
		s.notify.Notify(ctx, "ticket.issued", map[string]any{
			"event_id": id, "user": r.User, "email": r.Email,
			"pass_id": p.PassID, "ticket_type": r.TicketType, "amount_paid": amountPaid,
		})
		return &p, nil
	}
	return nil, errors.WithDetailf(domain.ErrValidation, "outcome %q cannot be committed", outcome)
}

// Approve promotes a pending registration into participants. Only zero-due
// registrations promote; a priced pending registration has no settled payment
// behind it and is refused.
func (s *Service) Approve(ctx context.Context, id domain.EventID, tok domain.UserToken) (*domain.Participant, error) {
	e, err := s.events.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Cancelled {
		return nil, domain.ErrEventCancelled
	}
	var ticketType string
	found := false
	for i := range e.Pending {
		if e.Pending[i].UserToken == tok {
			ticketType = e.Pending[i].TicketType
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	// Refuse before consuming the pending slot, so a refused approval leaves
	// the registration queued.
	if price, ok := e.TicketPrice(ticketType); !ok || price > 0 {
		return nil, errors.WithDetail(domain.ErrValidation, "priced registrations cannot be approved without settlement")
	}

	pending, err := s.events.TakePending(ctx, id, tok)
	if err != nil {
		return nil, err
	}

	p := domain.Participant{
		UserToken:  pending.UserToken,
		Name:       pending.Name,
		Email:      pending.Email,
		PassID:     "UH-" + uuid.NewString(),
		TicketType: pending.TicketType,
		AddedAt:    time.Now().UTC(),
	}
	if err := s.events.AddParticipant(ctx, id, p, s.soldGates); err != nil {
		// The event may have filled up since the approval started. Put the
		// registration back so a refused approval leaves it queued.
		if perr := s.events.AddPending(ctx, id, pending); perr != nil {
			observability.CompensationFailures.Inc()
			s.log.WithField("event", id.String()).WithField("user", tok.String()).
				Error("pending registration lost after refused approval: ", perr)
		}
		return nil, err
	}
	s.notify.Notify(ctx, "registration.approved", map[string]any{
		"event_id": id, "user": tok, "email": p.Email, "pass_id": p.PassID,
	})
	return &p, nil
}

// Remove drops a confirmed participant and promotes the waitlist head into
// the freed seat when one exists.
func (s *Service) Remove(ctx context.Context, id domain.EventID, tok domain.UserToken) (domain.Participant, error) {
	removed, promoted, err := s.events.RemoveParticipant(ctx, id, tok, true)
	if err != nil {
		return domain.Participant{}, err
	}
	if promoted != nil {
		s.log.WithField("event_id", id.String()).Info("promoted waitlist head into freed seat")
		s.notify.Notify(ctx, "waitlist.promoted", map[string]any{
			"event_id": id, "user": promoted.UserToken, "email": promoted.Email,
		})
	}
	return removed, nil
}

// CheckIn flips entry for each listed participant. Unknown tokens and repeat
// check-ins are harmless no-ops; the count of fresh flips is returned.
func (s *Service) CheckIn(ctx context.Context, id domain.EventID, toks []domain.UserToken) (int, error) {
	flipped := 0
	for _, tok := range toks {
		ok, err := s.events.CheckIn(ctx, id, tok)
		if err != nil {
			return flipped, err
		}
		if ok {
			flipped++
			s.notify.Notify(ctx, "participant.checked_in", map[string]any{
				"event_id": id, "user": tok,
			})
		}
	}
	observability.CheckinsTotal.Add(float64(flipped))
	return flipped, nil
}
