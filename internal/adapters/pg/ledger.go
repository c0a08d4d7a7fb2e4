package pg

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

// LedgerStore implements ledger.Store. The no-overdraft guard is the
// conditional UPDATE: the deltas apply only while every bucket stays
// non-negative, so two concurrent spends cannot both win.
type LedgerStore struct {
	repo *Repository
}

func NewLedgerStore(repo *Repository) *LedgerStore {
	return &LedgerStore{repo: repo}
}

func (s *LedgerStore) Get(ctx context.Context, user domain.UserToken) (domain.Ledger, error) {
	var l domain.Ledger
	err := s.repo.pool.QueryRow(ctx, `
		SELECT user_token, available, locked, pending, updated_at
		FROM ledgers WHERE user_token = $1
	`, user).Scan(&l.UserToken, &l.Available, &l.Locked, &l.Pending, &l.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Ledger{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ledger{}, err
	}
	return l, nil
}

func (s *LedgerStore) Apply(ctx context.Context, m ledger.Mutation) error {
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledgers (user_token) VALUES ($1)
			ON CONFLICT (user_token) DO NOTHING
		`, m.User)
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			UPDATE ledgers
			SET available = available + $2, locked = locked + $3, pending = pending + $4, updated_at = now()
			WHERE user_token = $1
			  AND available + $2 >= 0 AND locked + $3 >= 0 AND pending + $4 >= 0
		`, m.User, m.AvailableDelta, m.LockedDelta, m.PendingDelta)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return errors.WithDetail(domain.ErrInsufficientFunds, "balance cannot cover this mutation")
		}

		if m.Entry != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO ledger_entries (id, user_token, type, amount, description, event_id, status, reference, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, m.Entry.ID, m.Entry.UserToken, m.Entry.Type, m.Entry.Amount, m.Entry.Description,
				m.Entry.EventID, m.Entry.Status, m.Entry.Reference, m.Entry.CreatedAt)
			if err != nil {
				return err
			}
		}
		if m.Update != nil {
			_, err := tx.Exec(ctx, `
				UPDATE ledger_entries SET status = $3
				WHERE reference = $1 AND user_token = $2
			`, m.Update.Reference, m.User, m.Update.Status)
			if err != nil {
				return err
			}
		}
		if m.Hold != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO earnings_holds (user_token, event_id, amount, unlock_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_token, event_id)
				DO UPDATE SET amount = earnings_holds.amount + EXCLUDED.amount
			`, m.User, m.Hold.EventID, m.LockedDelta, m.Hold.UnlockAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil && m.Entry != nil {
		observability.LedgerEntriesTotal.WithLabelValues(string(m.Entry.Type)).Inc()
	}
	return err
}

func (s *LedgerStore) Entries(ctx context.Context, user domain.UserToken, limit, offset int) ([]domain.Entry, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT id, user_token, type, amount, description, event_id, status, reference, created_at
		FROM ledger_entries WHERE user_token = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, user, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.UserToken, &e.Type, &e.Amount, &e.Description, &e.EventID, &e.Status, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) DueUnlocks(ctx context.Context, now time.Time) ([]ledger.Unlock, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT user_token, event_id, amount FROM earnings_holds WHERE unlock_at <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []ledger.Unlock
	for rows.Next() {
		var u ledger.Unlock
		if err := rows.Scan(&u.User, &u.EventID, &u.Amount); err != nil {
			return nil, err
		}
		due = append(due, u)
	}
	return due, rows.Err()
}

func (s *LedgerStore) ReleaseHold(ctx context.Context, u ledger.Unlock) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var amount domain.Money
		err := tx.QueryRow(ctx, `
			DELETE FROM earnings_holds WHERE user_token = $1 AND event_id = $2
			RETURNING amount
		`, u.User, u.EventID).Scan(&amount)
		if err == pgx.ErrNoRows {
			return nil // already consumed
		}
		if err != nil {
			return err
		}

		// Refund debits may have drawn locked below the held amount; release
		// whatever of the hold is still locked.
		_, err = tx.Exec(ctx, `
			UPDATE ledgers
			SET available = available + LEAST($2, locked), locked = locked - LEAST($2, locked), updated_at = now()
			WHERE user_token = $1
		`, u.User, amount)
		return err
	})
}
