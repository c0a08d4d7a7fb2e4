package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/unihub-exe/unihub-core/internal/domain"
)

// EventStore implements registration.EventStore. Every composite write locks
// the event row with SELECT ... FOR UPDATE first, so membership checks and
// the capacity count are serialized per event.
type EventStore struct {
	repo *Repository
}

func NewEventStore(repo *Repository) *EventStore {
	return &EventStore{repo: repo}
}

// Put inserts or replaces an event with its ticket types and memberships.
func (s *EventStore) Put(ctx context.Context, e *domain.Event) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (id, owner_token, name, capacity, visibility, requires_approval, waitlist_enabled, registration_code, ends_at, cancelled, cancelled_at, cancel_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '0001-01-01T00:00:00Z'::timestamptz), $12)
			ON CONFLICT (id) DO UPDATE SET
				owner_token = EXCLUDED.owner_token, name = EXCLUDED.name, capacity = EXCLUDED.capacity,
				visibility = EXCLUDED.visibility, requires_approval = EXCLUDED.requires_approval,
				waitlist_enabled = EXCLUDED.waitlist_enabled, registration_code = EXCLUDED.registration_code,
				ends_at = EXCLUDED.ends_at
		`, e.ID, e.OwnerToken, e.Name, e.Capacity, e.Visibility, e.RequiresApproval,
			e.WaitlistEnabled, e.RegistrationCode, nullableTime(e.EndsAt), e.Cancelled, e.CancelledAt, e.CancelReason)
		if err != nil {
			return err
		}
		for _, tt := range e.TicketTypes {
			_, err := tx.Exec(ctx, `
				INSERT INTO ticket_types (event_id, name, price, capacity, sold)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (event_id, name) DO UPDATE SET price = EXCLUDED.price, capacity = EXCLUDED.capacity
			`, e.ID, tt.Name, tt.Price, tt.Capacity, tt.Sold)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *EventStore) Find(ctx context.Context, id domain.EventID) (*domain.Event, error) {
	return loadEvent(ctx, s.repo.pool, id)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadEvent(ctx context.Context, q querier, id domain.EventID) (*domain.Event, error) {
	var e domain.Event
	err := q.QueryRow(ctx, `
		SELECT id, owner_token, name, capacity, visibility, requires_approval, waitlist_enabled,
		       registration_code, COALESCE(ends_at, '0001-01-01'::timestamptz), cancelled,
		       COALESCE(cancelled_at, '0001-01-01'::timestamptz), cancel_reason
		FROM events WHERE id = $1`, id).Scan(
		&e.ID, &e.OwnerToken, &e.Name, &e.Capacity, &e.Visibility, &e.RequiresApproval,
		&e.WaitlistEnabled, &e.RegistrationCode, &e.EndsAt, &e.Cancelled, &e.CancelledAt, &e.CancelReason)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT name, price, capacity, sold FROM ticket_types WHERE event_id = $1 ORDER BY name
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var tt domain.TicketType
		if err := rows.Scan(&tt.Name, &tt.Price, &tt.Capacity, &tt.Sold); err != nil {
			rows.Close()
			return nil, err
		}
		e.TicketTypes = append(e.TicketTypes, tt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT user_token, name, email, pass_id, entry, ticket_type, amount_paid, added_at
		FROM participants WHERE event_id = $1 ORDER BY added_at
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserToken, &p.Name, &p.Email, &p.PassID, &p.Entry, &p.TicketType, &p.AmountPaid, &p.AddedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Participants = append(e.Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT user_token, name, email, added_at FROM waitlist WHERE event_id = $1 ORDER BY added_at
	`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var w domain.WaitlistEntry
		if err := rows.Scan(&w.UserToken, &w.Name, &w.Email, &w.AddedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.Waitlist = append(e.Waitlist, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT user_token, name, email, ticket_type, answers, added_at
		FROM pending_registrations WHERE event_id = $1 ORDER BY added_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.PendingRegistration
		var answers []byte
		if err := rows.Scan(&p.UserToken, &p.Name, &p.Email, &p.TicketType, &answers, &p.AddedAt); err != nil {
			return nil, err
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &p.Answers); err != nil {
				return nil, err
			}
		}
		e.Pending = append(e.Pending, p)
	}
	return &e, rows.Err()
}

// lockEvent takes the per-event write lock and returns the cancelled flag and
// capacity, the two fields every composite write re-checks.
func lockEvent(ctx context.Context, tx pgx.Tx, id domain.EventID) (cancelled bool, capacity int, err error) {
	err = tx.QueryRow(ctx, `
		SELECT cancelled, capacity FROM events WHERE id = $1 FOR UPDATE
	`, id).Scan(&cancelled, &capacity)
	if err == pgx.ErrNoRows {
		return false, 0, domain.ErrNotFound
	}
	return cancelled, capacity, err
}

func (s *EventStore) AddParticipant(ctx context.Context, id domain.EventID, p domain.Participant, gateBySold bool) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		cancelled, capacity, err := lockEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if cancelled {
			return domain.ErrEventCancelled
		}

		var dup bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM participants WHERE event_id = $1 AND user_token = $2)
		`, id, p.UserToken).Scan(&dup)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrAlreadyRegistered
		}

		if capacity > 0 {
			var count int
			err = tx.QueryRow(ctx, `
				SELECT count(*) FROM participants WHERE event_id = $1
			`, id).Scan(&count)
			if err != nil {
				return err
			}
			if count >= capacity {
				return domain.ErrEventFull
			}
		}

		if p.TicketType != "" {
			guard := ""
			if gateBySold {
				guard = " AND (capacity = 0 OR sold < capacity)"
			}
			result, err := tx.Exec(ctx, `
				UPDATE ticket_types SET sold = sold + 1 WHERE event_id = $1 AND name = $2`+guard,
				id, p.TicketType)
			if err != nil {
				return err
			}
			if result.RowsAffected() == 0 {
				if gateBySold {
					return domain.ErrTicketTypeSoldOut
				}
				return domain.ErrValidation
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO participants (event_id, user_token, name, email, pass_id, entry, ticket_type, amount_paid, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, p.UserToken, p.Name, p.Email, p.PassID, p.Entry, p.TicketType, p.AmountPaid, p.AddedAt)
		if err != nil {
			return err
		}
		return dropMembership(ctx, tx, id, p.UserToken)
	})
}

// dropMembership keeps the one-set-membership invariant when a user is
// promoted into participants.
func dropMembership(ctx context.Context, tx pgx.Tx, id domain.EventID, tok domain.UserToken) error {
	if _, err := tx.Exec(ctx, `DELETE FROM waitlist WHERE event_id = $1 AND user_token = $2`, id, tok); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `DELETE FROM pending_registrations WHERE event_id = $1 AND user_token = $2`, id, tok)
	return err
}

func (s *EventStore) AddToWaitlist(ctx context.Context, id domain.EventID, w domain.WaitlistEntry) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		cancelled, _, err := lockEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if cancelled {
			return domain.ErrEventCancelled
		}
		var dup bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM participants WHERE event_id = $1 AND user_token = $2)
		`, id, w.UserToken).Scan(&dup)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrAlreadyRegistered
		}
		result, err := tx.Exec(ctx, `
			INSERT INTO waitlist (event_id, user_token, name, email, added_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id, user_token) DO NOTHING
		`, id, w.UserToken, w.Name, w.Email, w.AddedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrAlreadyWaitlisted
		}
		return nil
	})
}

func (s *EventStore) AddPending(ctx context.Context, id domain.EventID, p domain.PendingRegistration) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		cancelled, _, err := lockEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if cancelled {
			return domain.ErrEventCancelled
		}
		var dup bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM participants WHERE event_id = $1 AND user_token = $2)
		`, id, p.UserToken).Scan(&dup)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrAlreadyRegistered
		}
		var answers []byte
		if p.Answers != nil {
			answers, err = json.Marshal(p.Answers)
			if err != nil {
				return err
			}
		}
		result, err := tx.Exec(ctx, `
			INSERT INTO pending_registrations (event_id, user_token, name, email, ticket_type, answers, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, user_token) DO NOTHING
		`, id, p.UserToken, p.Name, p.Email, p.TicketType, answers, p.AddedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrAlreadyPending
		}
		return nil
	})
}

func (s *EventStore) RemoveParticipant(ctx context.Context, id domain.EventID, tok domain.UserToken, promoteWaitlist bool) (domain.Participant, *domain.WaitlistEntry, error) {
	var removed domain.Participant
	var promoted *domain.WaitlistEntry
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		cancelled, _, err := lockEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			DELETE FROM participants WHERE event_id = $1 AND user_token = $2
			RETURNING user_token, name, email, pass_id, entry, ticket_type, amount_paid, added_at
		`, id, tok).Scan(&removed.UserToken, &removed.Name, &removed.Email, &removed.PassID,
			&removed.Entry, &removed.TicketType, &removed.AmountPaid, &removed.AddedAt)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if !promoteWaitlist || cancelled {
			return nil
		}
		var head domain.WaitlistEntry
		err = tx.QueryRow(ctx, `
			DELETE FROM waitlist WHERE event_id = $1 AND user_token = (
				SELECT user_token FROM waitlist WHERE event_id = $1 ORDER BY added_at LIMIT 1
			)
			RETURNING user_token, name, email, added_at
		`, id).Scan(&head.UserToken, &head.Name, &head.Email, &head.AddedAt)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (event_id, user_token, name, email, added_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, head.UserToken, head.Name, head.Email, time.Now().UTC())
		if err != nil {
			return err
		}
		promoted = &head
		return nil
	})
	if err != nil {
		return domain.Participant{}, nil, err
	}
	return removed, promoted, nil
}

func (s *EventStore) TakePending(ctx context.Context, id domain.EventID, tok domain.UserToken) (domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		if _, _, err := lockEvent(ctx, tx, id); err != nil {
			return err
		}
		var answers []byte
		err := tx.QueryRow(ctx, `
			DELETE FROM pending_registrations WHERE event_id = $1 AND user_token = $2
			RETURNING user_token, name, email, ticket_type, answers, added_at
		`, id, tok).Scan(&p.UserToken, &p.Name, &p.Email, &p.TicketType, &answers, &p.AddedAt)
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if len(answers) > 0 {
			return json.Unmarshal(answers, &p.Answers)
		}
		return nil
	})
	if err != nil {
		return domain.PendingRegistration{}, err
	}
	return p, nil
}

func (s *EventStore) CheckIn(ctx context.Context, id domain.EventID, tok domain.UserToken) (bool, error) {
	var exists bool
	err := s.repo.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	result, err := s.repo.pool.Exec(ctx, `
		UPDATE participants SET entry = TRUE
		WHERE event_id = $1 AND user_token = $2 AND entry = FALSE
	`, id, tok)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (s *EventStore) Cancel(ctx context.Context, id domain.EventID, reason string) (*domain.Event, error) {
	var snapshot *domain.Event
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE events SET cancelled = TRUE, cancelled_at = now(), cancel_reason = $2
			WHERE id = $1 AND cancelled = FALSE
		`, id, reason)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrEventCancelled
		}
		snapshot, err = loadEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
