// Package sweep holds the schedule-triggered batch operations. Every sweep is
// idempotent: it claims work with guarded transitions or consume-once hold
// releases, so overlapping or repeated runs cannot double-apply.
package sweep

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/payout"
)

type Sweeper struct {
	ledgerStore ledger.Store
	payouts     payout.Store
	payoutSvc   *payout.Service
	log         observability.Logger
}

func New(store ledger.Store, payouts payout.Store, payoutSvc *payout.Service, log observability.Logger) *Sweeper {
	return &Sweeper{
		ledgerStore: store,
		payouts:     payouts,
		payoutSvc:   payoutSvc,
		log:         log,
	}
}

// UnlockEarnings releases every earnings hold whose unlock time has passed,
// moving the held amount from locked to available. Holds are consumed on
// release, so a re-run after a partial failure only touches the remainder.
func (s *Sweeper) UnlockEarnings(ctx context.Context, now time.Time) (int, error) {
	timer := prometheus.NewTimer(observability.SweepDuration.WithLabelValues("unlock"))
	defer timer.ObserveDuration()

	due, err := s.ledgerStore.DueUnlocks(ctx, now)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, u := range due {
		if err := s.ledgerStore.ReleaseHold(ctx, u); err != nil {
			s.log.WithField("user", u.User.String()).
				WithField("event_id", u.EventID.String()).
				Error("unlock failed: ", err)
			continue
		}
		released++
	}
	if released > 0 {
		s.log.WithField("released", released).Info("earnings unlock sweep done")
	}
	return released, nil
}

// ProcessScheduledPayouts pays out every pending request whose scheduled time
// has passed, and every approved request left to the deferred path. The
// transition into processing is the claim: a request already taken by another
// run fails its guard and is skipped.
func (s *Sweeper) ProcessScheduledPayouts(ctx context.Context, now time.Time) (int, error) {
	timer := prometheus.NewTimer(observability.SweepDuration.WithLabelValues("payouts"))
	defer timer.ObserveDuration()

	due, err := s.payouts.DueScheduled(ctx, now, 50)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, req := range due {
		if err := s.payoutSvc.Process(ctx, req); err != nil {
			if errors.Is(err, domain.ErrBadTransition) {
				continue // claimed by a concurrent run
			}
			s.log.WithField("payout", req.ID.String()).Error("scheduled payout failed: ", err)
			continue
		}
		processed++
	}
	return processed, nil
}
