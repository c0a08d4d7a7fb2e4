package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord is one notification waiting for the publisher.
type OutboxRecord struct {
	ID          uuid.UUID
	Kind        string
	Payload     []byte
	Status      string // NEW, PUBLISHED, FAILED
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func (r *Repository) InsertOutbox(ctx context.Context, rec OutboxRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox (id, kind, payload_json, status)
		VALUES ($1, $2, $3, 'NEW')
	`, rec.ID, rec.Kind, rec.Payload)
	return err
}

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, payload_json, status, created_at, published_at
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Payload, &rec.Status, &rec.CreatedAt, &rec.PublishedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'FAILED' WHERE id = $1
	`, id)
	return err
}
