package notification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the PG log uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGLog stores notifications in the notification_log table.
type PGLog struct {
	db Querier
}

// NewPGLog creates a Postgres-backed notification log.
func NewPGLog(db Querier) *PGLog {
	return &PGLog{db: db}
}

func (l *PGLog) Record(ctx context.Context, n *Notification) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO notification_log (id, template, order_id, patient_id, channel, recipient, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.TemplateID, n.OrderID, n.PatientID, string(n.Channel), n.Recipient, n.Subject, n.Body, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (l *PGLog) ListByOrder(ctx context.Context, orderID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `
		SELECT id, template, order_id, COALESCE(patient_id, ''), channel, COALESCE(recipient, ''), COALESCE(subject, ''), body, created_at
		FROM notification_log
		WHERE $1 = '' OR order_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{Status: StatusSimulated}
		var channel string
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.OrderID, &n.PatientID, &channel, &n.Recipient, &n.Subject, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Channel = Channel(channel)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
