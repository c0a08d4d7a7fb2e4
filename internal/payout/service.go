// Package payout drives the withdrawal state machine. Funds are reserved out
// of the available balance the moment a request is accepted; every later
// transition either consumes the reservation (completed) or restores exactly
// the reserved amount (rejected, failed).
package payout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

// Store is the durable payout request log.
type Store interface {
	Create(ctx context.Context, p domain.PayoutRequest) error
	Get(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error)
	// Transition moves a request from one status to another, guarded: the
	// update applies only while the request still has the expected current
	// status, otherwise domain.ErrBadTransition.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.PayoutStatus, notes, transferID string) error
	// DueScheduled lists pending requests whose scheduled processing time has
	// passed, plus approved requests awaiting a deferred transfer.
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.PayoutRequest, error)
}

// Transferer initiates bank transfers through the payment gateway.
type Transferer interface {
	CreateTransferRecipient(ctx context.Context, account domain.BankAccount) (string, error)
	InitiateTransfer(ctx context.Context, recipientCode string, amount domain.Money, reference string) (domain.TransferResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, kind string, payload map[string]any)
}

type Auditor interface {
	Record(ctx context.Context, action string, user domain.UserToken, data map[string]any)
}

type Service struct {
	store     Store
	ledger    *ledger.Engine
	transfers Transferer
	notify    Notifier
	audit     Auditor
	log       observability.Logger
	minAmount domain.Money
}

func NewService(store Store, l *ledger.Engine, transfers Transferer, notify Notifier, audit Auditor, log observability.Logger, minAmount domain.Money) *Service {
	return &Service{
		store:     store,
		ledger:    l,
		transfers: transfers,
		notify:    notify,
		audit:     audit,
		log:       log,
		minAmount: minAmount,
	}
}

// Request validates and files a withdrawal, reserving the amount immediately.
// The reservation is the overdraft guard: a second concurrent request beyond
// the available balance fails at the ledger, not at a read-then-check.
func (s *Service) Request(ctx context.Context, user domain.UserToken, amount domain.Money, account domain.BankAccount, scheduledAt time.Time) (domain.PayoutRequest, error) {
	if amount < s.minAmount {
		return domain.PayoutRequest{}, errors.WithDetailf(domain.ErrValidation, "minimum payout is %d", s.minAmount)
	}
	if account.AccountNumber == "" || account.BankCode == "" || account.AccountName == "" {
		return domain.PayoutRequest{}, errors.WithDetail(domain.ErrValidation, "bank account details are required")
	}

	req := domain.NewPayoutRequest(user, amount, account, scheduledAt)
	if err := s.ledger.Apply(ctx, ledger.Reserve(user, amount, req.Reference)); err != nil {
		return domain.PayoutRequest{}, err
	}
	if err := s.store.Create(ctx, req); err != nil {
		// Reservation without a request record would strand funds; undo it.
		if rerr := s.ledger.Apply(ctx, ledger.ReleaseReservation(user, amount, req.Reference)); rerr != nil {
			observability.CompensationFailures.Inc()
			s.log.WithField("user", user.String()).Error("orphaned payout reservation: ", rerr)
		}
		return domain.PayoutRequest{}, err
	}

	observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutPending)).Inc()
	s.audit.Record(ctx, "payout.requested", user, map[string]any{"amount": amount, "reference": req.Reference})
	return req, nil
}

// Approve is the admin action. With immediate set the transfer runs
// synchronously: success completes the payout, failure restores the
// reservation. Without immediate the request is only marked approved and the
// sweep picks it up.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, immediate bool, notes string) (domain.PayoutRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if !domain.CanTransition(req.Status, domain.PayoutApproved) {
		return domain.PayoutRequest{}, errors.WithDetailf(domain.ErrBadTransition, "payout is %s", req.Status)
	}
	if err := s.store.Transition(ctx, id, req.Status, domain.PayoutApproved, notes, ""); err != nil {
		return domain.PayoutRequest{}, err
	}
	observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutApproved)).Inc()
	req.Status = domain.PayoutApproved

	if !immediate {
		return req, nil
	}
	return s.execute(ctx, req)
}

// Reject is the admin action for a pending request: the reserved amount goes
// back to available, with a compensating credit entry.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes string) error {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Transition(ctx, id, domain.PayoutPending, domain.PayoutRejected, notes, ""); err != nil {
		return err
	}
	if err := s.ledger.Apply(ctx, ledger.ReleaseReservation(req.UserToken, req.Amount, req.Reference)); err != nil {
		observability.CompensationFailures.Inc()
		s.log.WithField("payout", id.String()).Error("reservation release failed after reject: ", err)
		return err
	}
	observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutRejected)).Inc()
	s.notify.Notify(ctx, "payout.rejected", map[string]any{"user": req.UserToken, "amount": req.Amount, "notes": notes})
	s.audit.Record(ctx, "payout.rejected", req.UserToken, map[string]any{"amount": req.Amount})
	return nil
}

// Process runs one scheduled request: pending -> processing -> terminal.
// Called by the sweep for due scheduled requests and deferred approvals. The
// processing claim is the guard against two sweep instances paying twice.
func (s *Service) Process(ctx context.Context, req domain.PayoutRequest) error {
	if err := s.store.Transition(ctx, req.ID, req.Status, domain.PayoutProcessing, "", ""); err != nil {
		return err
	}
	observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutProcessing)).Inc()
	req.Status = domain.PayoutProcessing
	_, err := s.execute(ctx, req)
	return err
}

// execute performs the transfer and lands the request in a terminal state.
func (s *Service) execute(ctx context.Context, req domain.PayoutRequest) (domain.PayoutRequest, error) {
	result, err := s.transfer(ctx, req)
	if err != nil {
		if terr := s.store.Transition(ctx, req.ID, req.Status, domain.PayoutFailed, err.Error(), ""); terr != nil {
			return req, terr
		}
		observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutFailed)).Inc()
		if rerr := s.ledger.Apply(ctx, ledger.ReleaseReservation(req.UserToken, req.Amount, req.Reference)); rerr != nil {
			observability.CompensationFailures.Inc()
			s.log.WithField("payout", req.ID.String()).Error("reservation release failed after transfer failure: ", rerr)
		}
		s.notify.Notify(ctx, "payout.failed", map[string]any{"user": req.UserToken, "amount": req.Amount})
		req.Status = domain.PayoutFailed
		return req, errors.Wrap(domain.ErrProvider, err.Error())
	}

	if err := s.store.Transition(ctx, req.ID, req.Status, domain.PayoutCompleted, "", result.TransferID); err != nil {
		return req, err
	}
	observability.PayoutTransitionsTotal.WithLabelValues(string(domain.PayoutCompleted)).Inc()
	if err := s.ledger.Apply(ctx, ledger.SettleReservation(req.UserToken, req.Amount, req.Reference)); err != nil {
		observability.CompensationFailures.Inc()
		s.log.WithField("payout", req.ID.String()).Error("reservation settle failed after transfer: ", err)
	}
	s.notify.Notify(ctx, "payout.completed", map[string]any{"user": req.UserToken, "amount": req.Amount})
	s.audit.Record(ctx, "payout.completed", req.UserToken, map[string]any{"amount": req.Amount, "transfer_id": result.TransferID})
	req.Status = domain.PayoutCompleted
	req.TransferID = result.TransferID
	return req, nil
}

func (s *Service) transfer(ctx context.Context, req domain.PayoutRequest) (domain.TransferResult, error) {
	recipient, err := s.transfers.CreateTransferRecipient(ctx, req.Account)
	if err != nil {
		return domain.TransferResult{}, err
	}
	return s.transfers.InitiateTransfer(ctx, recipient, req.Amount, req.Reference)
}
