package settlement

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

// CancelResult summarises a refund sweep.
type CancelResult struct {
	Refunded       int
	TotalRefunded  domain.Money
	OrganizerDebit domain.Money
}

// Cancel marks the event cancelled and refunds every paid participant. For
// each refund the participant's credit is matched by an organizer debit of
// the same amount, drawn from available first and locked for the remainder,
// so total credits always equal total debits. Free tickets are skipped.
func (s *Service) Cancel(ctx context.Context, id domain.EventID, caller domain.UserToken, reason string) (CancelResult, error) {
	event, err := s.events.Find(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if caller != event.OwnerToken {
		return CancelResult{}, errors.WithDetail(domain.ErrUnauthorized, "only the organizer can cancel")
	}

	snapshot, err := s.events.Cancel(ctx, id, reason)
	if err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{}
	for i := range snapshot.Participants {
		p := snapshot.Participants[i]
		if p.AmountPaid <= 0 {
			continue
		}
		if err := s.refundOne(ctx, snapshot, p); err != nil {
			// Stop the sweep; what was refunded so far stands and is logged,
			// the remainder needs a re-run after the cause is fixed.
			s.log.WithField("event_id", id.String()).
				WithField("user", p.UserToken.String()).
				Error("refund sweep aborted: ", err)
			return res, err
		}
		res.Refunded++
		res.TotalRefunded += p.AmountPaid
		res.OrganizerDebit += p.AmountPaid
		observability.RefundsTotal.Inc()
	}

	s.audit.Record(ctx, "event.cancelled", event.OwnerToken, map[string]any{
		"event_id": id, "refunded": res.Refunded, "total": res.TotalRefunded,
	})
	s.notify.Notify(ctx, "event.cancelled", map[string]any{
		"event_id": id, "reason": reason, "refunded": res.Refunded,
	})
	return res, nil
}

// refundOne credits one participant and debits the organizer by the same
// amount. The organizer debit splits across available and locked when
// available alone cannot cover it.
func (s *Service) refundOne(ctx context.Context, event *domain.Event, p domain.Participant) error {
	orgLedger, err := s.ledger.Balance(ctx, event.OwnerToken)
	if err != nil {
		return err
	}
	fromAvailable := p.AmountPaid
	var fromLocked domain.Money
	if orgLedger.Available < fromAvailable {
		fromAvailable = orgLedger.Available
		fromLocked = p.AmountPaid - fromAvailable
	}

	if err := s.ledger.Apply(ctx, ledger.RefundSent(event.OwnerToken, fromAvailable, fromLocked, event.ID)); err != nil {
		return errors.Wrap(err, "organizer refund debit")
	}
	if err := s.ledger.Apply(ctx, ledger.RefundReceived(p.UserToken, p.AmountPaid, event.ID)); err != nil {
		// Money already left the organizer; put it back rather than strand it.
		restore := ledger.RefundReceived(event.OwnerToken, fromAvailable+fromLocked, event.ID)
		if rerr := s.ledger.Apply(ctx, restore); rerr != nil {
			observability.CompensationFailures.Inc()
			s.log.Error("organizer debit restore failed, manual reconciliation required: ", rerr)
		}
		return errors.Wrap(err, "participant refund credit")
	}

	s.notify.Notify(ctx, "refund.issued", map[string]any{
		"event_id": event.ID, "user": p.UserToken, "amount": p.AmountPaid,
	})
	return nil
}
