// Package outbox decouples notification fan-out from the request path. The
// engines call Notify, which appends a row; the publisher binary drains rows
// into RabbitMQ. A notification is never allowed to fail its caller.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/unihub-exe/unihub-core/internal/adapters/pg"
	"github.com/unihub-exe/unihub-core/internal/adapters/rabbit"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

// Notifier implements the Notifier interfaces of the engine packages by
// writing outbox rows.
type Notifier struct {
	repo *pg.Repository
	log  observability.Logger
}

func NewNotifier(repo *pg.Repository, log observability.Logger) *Notifier {
	return &Notifier{repo: repo, log: log}
}

func (n *Notifier) Notify(ctx context.Context, kind string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.WithField("kind", kind).Error("notification payload: ", err)
		return
	}
	rec := pg.OutboxRecord{ID: uuid.New(), Kind: kind, Payload: body}
	if err := n.repo.InsertOutbox(ctx, rec); err != nil {
		n.log.WithField("kind", kind).Error("outbox insert: ", err)
	}
}

type Publisher struct {
	repo      *pg.Repository
	rabbitPub *rabbit.Publisher
	log       observability.Logger
}

func NewPublisher(repo *pg.Repository, rabbitPub *rabbit.Publisher, log observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, log: log}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := p.repo.GetUnpublishedOutbox(ctx, 10)
			if err != nil {
				p.log.Error("outbox fetch: ", err)
				continue
			}
			for _, rec := range records {
				msg := amqp.Publishing{
					MessageId:   rec.ID.String(),
					ContentType: "application/json",
					Body:        rec.Payload,
				}
				if err := p.rabbitPub.Publish(ctx, rec.Kind, msg); err != nil {
					p.log.WithField("kind", rec.Kind).Error("outbox publish: ", err)
					continue
				}
				p.repo.MarkPublished(ctx, rec.ID, time.Now())
			}
		}
	}
}
