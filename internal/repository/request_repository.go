package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

const requestColumns = `id, entity_id, requester_id, requester_name,
	       title, description, period, amount, priority, status,
	       current_step, times_submitted, version,
	       created_at, updated_at`

// RequestRepository owns the approval_requests table and every state
// transition on it. Transitions write the request row, the affected step and
// the history entry in a single transaction, guarded by the request's
// version counter: a stale version updates zero rows and surfaces as a
// conflict, so two approvers can never resolve the same step twice.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a draft request and its `created` history entry in one
// transaction.
func (r *RequestRepository) Create(ctx context.Context, req *Request, entry *HistoryEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_requests
			    (entity_id, requester_id, requester_name,
			     title, description, period, amount, priority,
			     status, current_step, times_submitted)
			VALUES ($1, $2, $3,
			        $4, $5, $6, $7, $8::request_priority,
			        $9::request_status, 0, 0)
			RETURNING id, version, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			req.EntityID,
			req.RequesterID,
			req.RequesterName,
			req.Title,
			req.Description,
			req.Period,
			req.Amount,
			req.Priority,
			req.Status,
		).Scan(&req.ID, &req.Version, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
		}

		entry.RequestID = req.ID
		return insertHistory(ctx, tx, entry)
	})
}

// GetByID retrieves a request by its primary key. Steps are not loaded;
// callers that need the chain read it through the steps repository.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("request", id)
	}
	return req, err
}

// Update persists draft edits (title, description, period, amount, priority,
// status) with a version precondition.
func (r *RequestRepository) Update(ctx context.Context, req *Request) error {
	query := `
		UPDATE approval_requests
		SET title       = $3,
		    description = $4,
		    period      = $5,
		    amount      = $6,
		    priority    = $7::request_priority,
		    status      = $8::request_status,
		    version     = version + 1,
		    updated_at  = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.Version,
		req.Title,
		req.Description,
		req.Period,
		req.Amount,
		req.Priority,
		req.Status,
	).Scan(&req.Version, &req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}
	return err
}

// Submit moves the request into the chain: status pending, pointer at step 1.
// The history entry (`submitted` or `resubmitted`) commits atomically with it.
func (r *RequestRepository) Submit(ctx context.Context, id string, version int64, entry *HistoryEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_requests
			SET status          = 'pending'::request_status,
			    current_step    = 1,
			    times_submitted = times_submitted + 1,
			    version         = version + 1,
			    updated_at      = NOW()
			WHERE id = $1 AND version = $2
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, id, version).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request was modified concurrently; retry with fresh state")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to submit request")
		}

		return insertHistory(ctx, tx, entry)
	})
}

// Withdraw cancels the request before any decision has been recorded.
func (r *RequestRepository) Withdraw(ctx context.Context, id string, version int64, entry *HistoryEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_requests
			SET status       = 'withdrawn'::request_status,
			    current_step = 0,
			    version      = version + 1,
			    updated_at   = NOW()
			WHERE id = $1 AND version = $2
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, query, id, version).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request was modified concurrently; retry with fresh state")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to withdraw request")
		}

		return insertHistory(ctx, tx, entry)
	})
}

// ApplyDecision commits one approver decision: request status and pointer,
// step outcome, and history entry, all or nothing. The step update carries
// its own `decision = 'pending'` guard so a replayed decision conflicts even
// if it raced past the version check.
func (r *RequestRepository) ApplyDecision(ctx context.Context, t *DecisionTransition, entry *HistoryEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		reqQuery := `
			UPDATE approval_requests
			SET status       = $3::request_status,
			    current_step = $4,
			    version      = version + 1,
			    updated_at   = NOW()
			WHERE id = $1 AND version = $2
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, reqQuery, t.RequestID, t.Version, t.NewStatus, t.NewCurrentStep).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request was modified concurrently; retry with fresh state")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request state")
		}

		stepQuery := `
			UPDATE approval_request_steps
			SET decision   = $2::step_decision,
			    comment    = $3,
			    decided_at = NOW(),
			    updated_at = NOW()
			WHERE id = $1
			  AND decision = 'pending'
			  AND superseded = FALSE
			RETURNING id
		`

		err = tx.QueryRow(ctx, stepQuery, t.StepID, t.Decision, t.Comment).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("step has already been resolved")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record step decision")
		}

		return insertHistory(ctx, tx, entry)
	})
}

// ListByRequester returns a page of the requester's own requests, newest
// first, with the unpaged total.
func (r *RequestRepository) ListByRequester(
	ctx context.Context,
	entityID, requesterID string,
	status *RequestStatus,
	limit, offset int,
) ([]*Request, int64, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE entity_id = $1 AND requester_id = $2
	`
	countQuery := `
		SELECT COUNT(*)
		FROM approval_requests
		WHERE entity_id = $1 AND requester_id = $2
	`
	args := []any{entityID, requesterID}
	if status != nil {
		query += " AND status = $3::request_status"
		countQuery += " AND status = $3::request_status"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count requests")
	}

	query += " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list requests")
	}
	defer rows.Close()

	reqs, err := r.scanRows(rows)
	return reqs, total, err
}

// ListPendingForApprover returns every request whose live step is waiting on
// the given approver, oldest first.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, entityID, approverID string) ([]*Request, error) {
	query := `
		SELECT r.id, r.entity_id, r.requester_id, r.requester_name,
		       r.title, r.description, r.period, r.amount, r.priority, r.status,
		       r.current_step, r.times_submitted, r.version,
		       r.created_at, r.updated_at
		FROM approval_requests r
		JOIN approval_request_steps s
		  ON s.request_id = r.id
		 AND s.step_order = r.current_step
		 AND s.superseded = FALSE
		WHERE r.entity_id = $1
		  AND s.approver_id = $2
		  AND s.decision = 'pending'
		  AND r.status IN ('pending', 'in_review')
		ORDER BY r.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, entityID, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending requests")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *RequestRepository) scanRequest(row requestScanner) (*Request, error) {
	req := &Request{}
	err := row.Scan(
		&req.ID,
		&req.EntityID,
		&req.RequesterID,
		&req.RequesterName,
		&req.Title,
		&req.Description,
		&req.Period,
		&req.Amount,
		&req.Priority,
		&req.Status,
		&req.CurrentStep,
		&req.TimesSubmitted,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) scanRows(rows pgx.Rows) ([]*Request, error) {
	var reqs []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request")
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
