package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Event is one processed payment notification.
type Event struct {
	EventID    string `db:"event_id"`
	EventType  string `db:"event_type"`
	UserID     string `db:"user_id"`
	Amount     int64  `db:"amount"`
	ReceivedAt int64  `db:"received_at"`
}

// EventRepo records payment event ids so each notification is applied once.
type EventRepo struct {
	db sqlx.ExtContext
}

func NewEventRepo(db sqlx.ExtContext) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS payment_events (
  event_id VARCHAR(255) PRIMARY KEY,
  event_type VARCHAR(64) NOT NULL,
  user_id VARCHAR(128) NOT NULL,
  amount BIGINT NOT NULL,
  received_at BIGINT NOT NULL
)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Record inserts the event and reports false when the id was already stored.
func (r *EventRepo) Record(ctx context.Context, ev *Event) (bool, error) {
	q := r.db.Rebind(`INSERT INTO payment_events (event_id, event_type, user_id, amount, received_at)
VALUES (?, ?, ?, ?, ?) ON CONFLICT (event_id) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, q, ev.EventID, ev.EventType, ev.UserID, ev.Amount, ev.ReceivedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
