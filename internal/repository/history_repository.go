package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// HistoryRepository reads the append-only audit trail. Entries are written
// by the request transitions (via insertHistory) so they commit atomically
// with the state change they record; there is no update or delete path.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

type historyQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// insertHistory appends one entry. It takes any querier so transitions can
// call it on their transaction and it commits with them.
func insertHistory(ctx context.Context, q historyQuerier, entry *HistoryEntry) error {
	query := `
		INSERT INTO approval_request_history
		    (request_id, actor_id, actor_name, action, comment)
		VALUES ($1, $2, $3, $4::history_action, $5)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		entry.RequestID,
		entry.ActorID,
		entry.ActorName,
		entry.Action,
		entry.Comment,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append history entry")
	}
	return nil
}

// ListByRequestID returns the full audit trail for a request oldest-first.
func (r *HistoryRepository) ListByRequestID(ctx context.Context, requestID string) ([]*HistoryEntry, error) {
	query := `
		SELECT id, request_id, actor_id, actor_name, action, comment, created_at
		FROM approval_request_history
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request history")
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry := &HistoryEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Action,
			&entry.Comment,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan history entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
