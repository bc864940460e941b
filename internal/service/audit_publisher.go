package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// AuditPublisher fans committed records out to downstream consumers.
type AuditPublisher interface {
	Publish(ctx context.Context, record models.AuditLog) error
}

type auditEvent struct {
	Source      string          `json:"source"`
	Record      models.AuditLog `json:"record"`
	PublishedAt time.Time       `json:"published_at"`
}

type natsAuditPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSAuditPublisher returns nil when no connection is configured.
func NewNATSAuditPublisher(conn *nats.Conn, subject string) AuditPublisher {
	if conn == nil || subject == "" {
		return nil
	}
	return &natsAuditPublisher{conn: conn, subject: subject}
}

func (p *natsAuditPublisher) Publish(ctx context.Context, record models.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Header snapshots stay in the store.
	record.RequestHeaders = nil

	payload, err := json.Marshal(auditEvent{
		Source:      "audit",
		Record:      record,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.conn.Publish(p.subject, payload)
}
