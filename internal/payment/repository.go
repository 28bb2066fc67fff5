package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"placemats-be/internal/logger"

	"go.uber.org/zap"
)

// EventLog records every verified webhook delivery. The unique event id
// gives duplicate detection across redeliveries, and the stored payload is
// the audit trail for manual reconciliation. A delivery is only a duplicate
// while its prior attempt is in flight or has been processed; a FAILED row
// is reopened so the gateway's redelivery gets another attempt.
type EventLog interface {
	Record(ctx context.Context, eventID, eventType string, payload json.RawMessage) (logID int64, isDuplicate bool, err error)
	MarkProcessed(ctx context.Context, logID int64) error
	MarkFailed(ctx context.Context, logID int64, reason string) error
}

type eventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) EventLog {
	return &eventLog{db: db}
}

func (l *eventLog) Record(
	ctx context.Context,
	eventID string,
	eventType string,
	payload json.RawMessage,
) (int64, bool, error) {

	const q = `
		INSERT INTO payment_webhooks (provider, event_id, event_type, payload, status)
		VALUES ('STRIPE', $1, $2, $3, 'RECEIVED')
		ON CONFLICT (event_id) DO UPDATE
		SET status = 'RECEIVED', failure_reason = NULL
		WHERE payment_webhooks.status = 'FAILED'
		RETURNING id
	`

	var id int64
	err := l.db.QueryRowContext(ctx, q, eventID, eventType, payload).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		logger.FromCtx(ctx).Info("duplicate webhook delivery",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
		)
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	return id, false, nil
}

func (l *eventLog) MarkProcessed(ctx context.Context, logID int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET status = 'PROCESSED', processed_at = NOW()
		WHERE id = $1
	`, logID)
	return err
}

func (l *eventLog) MarkFailed(ctx context.Context, logID int64, reason string) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET status = 'FAILED', failure_reason = $2, processed_at = NOW()
		WHERE id = $1
	`, logID, reason)
	return err
}
