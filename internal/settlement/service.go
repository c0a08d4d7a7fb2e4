// Package settlement converts confirmed payments into ledger and registration
// state: the wallet debit path, the Paystack verification path, webhook wallet
// funding, and the cancellation refund sweep.
package settlement

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/registration"
)

// Gateway verifies externally collected charges.
type Gateway interface {
	Verify(ctx context.Context, reference string) (domain.Verification, error)
}

// RefChecker claims a reference exactly once, so a replayed webhook or a
// re-submitted gateway reference cannot settle twice. A claim whose settlement
// did not go through must be released so the caller can retry.
type RefChecker interface {
	// Claim returns false when the reference was already claimed.
	Claim(ctx context.Context, reference string) (bool, error)
	Release(ctx context.Context, reference string) error
}

// Auditor records money movements out of band, best-effort.
type Auditor interface {
	Record(ctx context.Context, action string, user domain.UserToken, data map[string]any)
}

type Notifier interface {
	Notify(ctx context.Context, kind string, payload map[string]any)
}

type Service struct {
	ledger       *ledger.Engine
	reg          *registration.Service
	events       registration.EventStore
	gateway      Gateway
	refs         RefChecker
	audit        Auditor
	notify       Notifier
	log          observability.Logger
	earningsLock time.Duration
}

func NewService(
	l *ledger.Engine,
	reg *registration.Service,
	events registration.EventStore,
	gateway Gateway,
	refs RefChecker,
	audit Auditor,
	notify Notifier,
	log observability.Logger,
	earningsLock time.Duration,
) *Service {
	return &Service{
		ledger:       l,
		reg:          reg,
		events:       events,
		gateway:      gateway,
		refs:         refs,
		audit:        audit,
		notify:       notify,
		log:          log,
		earningsLock: earningsLock,
	}
}

// PaymentMethod selects how a priced registration is paid.
type PaymentMethod string

const (
	PayWallet   PaymentMethod = "wallet"
	PayPaystack PaymentMethod = "paystack"
)

// RegisterRequest is one registration attempt, payment details included.
type RegisterRequest struct {
	EventID    domain.EventID
	Registrant registration.Registrant
	Method     PaymentMethod
	// Reference is the pre-obtained Paystack charge reference; required for
	// PayPaystack, ignored for wallet payments.
	Reference string
}

// RegisterResult reports what happened.
type RegisterResult struct {
	Outcome     domain.Outcome
	Participant *domain.Participant
	AmountPaid  domain.Money
}

// Register runs the full flow: decision policy, settlement for priced
// accepted registrations, then the registration commit. Waitlist and pending
// outcomes take no payment. Rejecting outcomes surface as sentinel errors
// with no mutation of any kind.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	event, outcome, err := s.reg.Evaluate(ctx, req.EventID, req.Registrant)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := outcome.Err(); err != nil {
		return RegisterResult{Outcome: outcome}, err
	}

	if outcome != domain.OutcomeAccepted {
		_, err := s.reg.Commit(ctx, req.EventID, req.Registrant, outcome, 0)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{Outcome: outcome}, nil
	}

	price, _ := event.TicketPrice(req.Registrant.TicketType)
	if price == 0 {
		p, err := s.reg.Commit(ctx, req.EventID, req.Registrant, outcome, 0)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{Outcome: outcome, Participant: p}, nil
	}

	var p *domain.Participant
	switch req.Method {
	case PayWallet:
		p, err = s.settleWallet(ctx, event, req, price)
	case PayPaystack:
		p, err = s.settlePaystack(ctx, event, req, price)
	default:
		return RegisterResult{}, errors.WithDetailf(domain.ErrValidation, "unknown payment method %q", req.Method)
	}
	if err != nil {
		observability.SettlementsTotal.WithLabelValues(string(req.Method), "failed").Inc()
		return RegisterResult{}, err
	}
	observability.SettlementsTotal.WithLabelValues(string(req.Method), "settled").Inc()

	s.creditSeller(ctx, event, price, req.Reference)
	s.audit.Record(ctx, "ticket.settled", req.Registrant.User, map[string]any{
		"event_id": req.EventID, "amount": price, "method": req.Method,
	})
	return RegisterResult{Outcome: outcome, Participant: p, AmountPaid: price}, nil
}

// settleWallet debits the buyer, then commits the seat. A commit failure
// past the debit is compensated with a reversal credit; if even the reversal
// fails the inconsistency is flagged for manual reconciliation.
func (s *Service) settleWallet(ctx context.Context, event *domain.Event, req RegisterRequest, price domain.Money) (*domain.Participant, error) {
	buyer := req.Registrant.User
	debit := ledger.Purchase(buyer, price, event.ID, "", "ticket: "+event.Name)
	if err := s.ledger.Apply(ctx, debit); err != nil {
		return nil, err
	}

	p, err := s.reg.Commit(ctx, event.ID, req.Registrant, domain.OutcomeAccepted, price)
	if err != nil {
		reversal := ledger.PurchaseReversal(buyer, price, event.ID, "")
		if rerr := s.ledger.Apply(ctx, reversal); rerr != nil {
			observability.CompensationFailures.Inc()
			s.log.WithField("user", buyer.String()).
				WithField("event_id", event.ID.String()).
				Error("debit reversal failed, manual reconciliation required: ", rerr)
		}
		return nil, err
	}
	return p, nil
}

// settlePaystack verifies the supplied charge reference with the gateway and
// commits only on an explicit success for at least the ticket price. The
// reference is claimed first so it cannot settle two seats.
func (s *Service) settlePaystack(ctx context.Context, event *domain.Event, req RegisterRequest, price domain.Money) (*domain.Participant, error) {
	if req.Reference == "" {
		return nil, errors.WithDetail(domain.ErrValidation, "paystack reference is required")
	}
	ok, err := s.refs.Claim(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrDuplicateRef
	}
	settled := false
	defer func() {
		if settled {
			return
		}
		// The charge did not turn into a seat; free the reference for retry.
		if rerr := s.refs.Release(ctx, req.Reference); rerr != nil {
			s.log.Warn("failed to release unsettled reference ", req.Reference, ": ", rerr)
		}
	}()

	v, err := s.gateway.Verify(ctx, req.Reference)
	if err != nil {
		return nil, errors.Wrap(domain.ErrProvider, err.Error())
	}
	if !v.Succeeded() {
		return nil, errors.WithDetailf(domain.ErrProvider, "charge %s not successful: %s", req.Reference, v.Status)
	}
	if v.Amount < price {
		return nil, errors.WithDetailf(domain.ErrProvider, "charge %s short-paid: got %d, want %d", req.Reference, v.Amount, price)
	}

	p, err := s.reg.Commit(ctx, event.ID, req.Registrant, domain.OutcomeAccepted, price)
	if err != nil {
		return nil, err
	}
	settled = true
	return p, nil
}

// creditSeller books the sale into the organizer's locked balance. Sale
// earnings stay locked until the unlock window after event end passes.
func (s *Service) creditSeller(ctx context.Context, event *domain.Event, price domain.Money, ref string) {
	unlockAt := event.EndsAt.Add(s.earningsLock)
	sale := ledger.SaleEarnings(event.OwnerToken, price, event.ID, ref, unlockAt)
	if err := s.ledger.Apply(ctx, sale); err != nil {
		// The buyer paid and holds a seat; a failed seller credit is an
		// accounting gap, not grounds to unwind the sale.
		observability.CompensationFailures.Inc()
		s.log.WithField("event_id", event.ID.String()).
			Error("seller earnings credit failed, manual reconciliation required: ", err)
		return
	}
	observability.LedgerEntriesTotal.WithLabelValues(string(domain.EntryTicketSale)).Inc()
}

// FundWallet handles a verified charge.success webhook event carrying a
// wallet deposit. Idempotent on reference.
func (s *Service) FundWallet(ctx context.Context, user domain.UserToken, amount domain.Money, reference string) error {
	if user == "" || reference == "" {
		return errors.WithDetail(domain.ErrValidation, "user and reference are required")
	}
	if amount <= 0 {
		return errors.WithDetail(domain.ErrValidation, "amount must be positive")
	}
	ok, err := s.refs.Claim(ctx, "deposit:"+reference)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDuplicateRef
	}

	if err := s.ledger.Apply(ctx, ledger.Deposit(user, amount, reference)); err != nil {
		if rerr := s.refs.Release(ctx, "deposit:"+reference); rerr != nil {
			s.log.Warn("failed to release unsettled deposit reference ", reference, ": ", rerr)
		}
		return err
	}
	observability.LedgerEntriesTotal.WithLabelValues(string(domain.EntryDeposit)).Inc()
	s.audit.Record(ctx, "wallet.funded", user, map[string]any{"amount": amount, "reference": reference})
	s.notify.Notify(ctx, "wallet.funded", map[string]any{"user": user, "amount": amount})
	return nil
}
