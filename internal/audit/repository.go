package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit timeline from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a page of audit rows for the org, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, orgID string, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query := `SELECT occurred_at, actor_id, action, message FROM audit_logs WHERE org_id = $1`
	args := []any{orgID}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		query += condition(" AND occurred_at >= $%d", len(args))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		query += condition(" AND occurred_at <= $%d", len(args))
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		args = append(args, actor)
		query += condition(" AND actor_id = $%d", len(args))
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		args = append(args, action)
		query += condition(" AND action = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += condition(" ORDER BY occurred_at DESC LIMIT $%d", len(args)-1)
	query += condition(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var (
			row TimelineRow
			at  time.Time
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Message); err != nil {
			return nil, err
		}
		row.At = at
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func condition(format string, n int) string {
	return fmt.Sprintf(format, n)
}
