package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

// PayoutStore implements payout.Store. Transition is the guarded UPDATE; a
// zero rows-affected result means the request moved on under a concurrent
// actor and surfaces as domain.ErrBadTransition.
type PayoutStore struct {
	repo *Repository
}

func NewPayoutStore(repo *Repository) *PayoutStore {
	return &PayoutStore{repo: repo}
}

func (s *PayoutStore) Create(ctx context.Context, p domain.PayoutRequest) error {
	_, err := s.repo.pool.Exec(ctx, `
		INSERT INTO payouts (id, user_token, amount, bank_name, bank_code, account_number, account_name,
		                     status, reference, admin_notes, scheduled_at, requested_at, transfer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.UserToken, p.Amount, p.Account.BankName, p.Account.BankCode, p.Account.AccountNumber,
		p.Account.AccountName, p.Status, p.Reference, p.AdminNotes, nullableTime(p.ScheduledAt),
		p.RequestedAt, p.TransferID)
	return err
}

func (s *PayoutStore) Get(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	err := s.repo.pool.QueryRow(ctx, `
		SELECT id, user_token, amount, bank_name, bank_code, account_number, account_name,
		       status, reference, admin_notes, COALESCE(scheduled_at, '0001-01-01'::timestamptz),
		       requested_at, COALESCE(resolved_at, '0001-01-01'::timestamptz), transfer_id
		FROM payouts WHERE id = $1
	`, id).Scan(&p.ID, &p.UserToken, &p.Amount, &p.Account.BankName, &p.Account.BankCode,
		&p.Account.AccountNumber, &p.Account.AccountName, &p.Status, &p.Reference, &p.AdminNotes,
		&p.ScheduledAt, &p.RequestedAt, &p.ResolvedAt, &p.TransferID)
	if err == pgx.ErrNoRows {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	return p, nil
}

func (s *PayoutStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.PayoutStatus, notes, transferID string) error {
	if !domain.CanTransition(from, to) {
		return errors.WithDetailf(domain.ErrBadTransition, "%s -> %s", from, to)
	}
	result, err := s.repo.pool.Exec(ctx, `
		UPDATE payouts
		SET status = $3,
		    admin_notes = CASE WHEN $4 = '' THEN admin_notes ELSE $4 END,
		    transfer_id = CASE WHEN $5 = '' THEN transfer_id ELSE $5 END,
		    resolved_at = CASE WHEN $3 IN ('completed', 'failed', 'rejected') THEN now() ELSE resolved_at END
		WHERE id = $1 AND status = $2
	`, id, from, to, notes, transferID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := s.repo.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return errors.WithDetailf(domain.ErrBadTransition, "payout no longer %s", from)
	}
	return nil
}

func (s *PayoutStore) DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.PayoutRequest, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT id, user_token, amount, bank_name, bank_code, account_number, account_name,
		       status, reference, admin_notes, COALESCE(scheduled_at, '0001-01-01'::timestamptz),
		       requested_at, COALESCE(resolved_at, '0001-01-01'::timestamptz), transfer_id
		FROM payouts
		WHERE (status = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= $1)
		   OR status = 'approved'
		ORDER BY requested_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.PayoutRequest
	for rows.Next() {
		var p domain.PayoutRequest
		if err := rows.Scan(&p.ID, &p.UserToken, &p.Amount, &p.Account.BankName, &p.Account.BankCode,
			&p.Account.AccountNumber, &p.Account.AccountName, &p.Status, &p.Reference, &p.AdminNotes,
			&p.ScheduledAt, &p.RequestedAt, &p.ResolvedAt, &p.TransferID); err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	return due, rows.Err()
}
