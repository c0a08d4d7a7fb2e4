// Package mongo keeps the audit trail: one document per money-moving or
// membership-changing action. Best effort; an insert failure is logged and
// never fails the caller.
package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/observability"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserToken string    `bson:"user_token"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// Record implements the Auditor interface of the engine packages.
func (a *AuditLogger) Record(ctx context.Context, action string, user domain.UserToken, data map[string]any) {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserToken: user.String(),
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.Error("failed to insert audit log: ", err)
	}
}
