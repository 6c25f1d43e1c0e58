package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry represents a record stored in audit_logs.
type Entry struct {
	Action  string
	ActorID string
	OrgID   string
	Message string
	Details map[string]any
	At      time.Time
}

// Notifier records audit entries. It is consumed either as a saga step,
// where a failure rolls the operation back, or fire-and-forget after a gate
// decision, where a failure is only logged.
type Notifier interface {
	Record(ctx context.Context, entry Entry) error
}

// Logger writes entries into audit_logs.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new audit Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record persists the entry.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.ActorID == "" || entry.OrgID == "" {
		return errors.New("audit entry requires action/actor/org")
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	var occurredAt any
	if !entry.At.IsZero() {
		occurredAt = entry.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (action, actor_id, org_id, message, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.Action, entry.ActorID, entry.OrgID, entry.Message, detailsJSON, occurredAt)
	return err
}
