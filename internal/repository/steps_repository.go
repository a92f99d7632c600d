package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

const stepColumns = `id, request_id, step_order,
	       approver_id, approver_name, approver_email, hierarchy_level,
	       decision, comment, decided_at, superseded,
	       created_at, updated_at`

// StepsRepository handles reads on approval steps and chain replacement.
// Step decisions are written by RequestRepository.ApplyDecision so they
// commit atomically with the request transition.
type StepsRepository struct {
	db *database.DB
}

// NewStepsRepository creates a new StepsRepository.
func NewStepsRepository(db *database.DB) *StepsRepository {
	return &StepsRepository{db: db}
}

// GetActiveByRequestID returns the request's live chain ordered by step_order.
// Superseded steps from earlier submission rounds are excluded.
func (r *StepsRepository) GetActiveByRequestID(ctx context.Context, requestID string) ([]*Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_request_steps
		WHERE request_id = $1 AND superseded = FALSE
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ReplaceChain installs a freshly resolved chain in one transaction:
// the request version is bumped (CAS on the supplied version), the previous
// active steps are marked superseded for audit retention, and the new steps
// are inserted with contiguous orders starting at 1.
func (r *StepsRepository) ReplaceChain(ctx context.Context, requestID string, version int64, steps []*Step) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		bumpQuery := `
			UPDATE approval_requests
			SET version    = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, bumpQuery, requestID, version).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("request was modified concurrently; retry with fresh state")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request for chain replacement")
		}

		supersedeQuery := `
			UPDATE approval_request_steps
			SET superseded = TRUE,
			    updated_at = NOW()
			WHERE request_id = $1 AND superseded = FALSE
		`
		if _, err := tx.Exec(ctx, supersedeQuery, requestID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to supersede previous chain")
		}

		insertQuery := `
			INSERT INTO approval_request_steps
			    (request_id, step_order,
			     approver_id, approver_name, approver_email, hierarchy_level,
			     decision, superseded)
			VALUES ($1, $2,
			        $3, $4, $5, $6,
			        $7::step_decision, FALSE)
			RETURNING id, created_at, updated_at
		`

		for _, step := range steps {
			step.RequestID = requestID
			err := tx.QueryRow(ctx, insertQuery,
				step.RequestID,
				step.StepOrder,
				step.ApproverID,
				step.ApproverName,
				step.ApproverEmail,
				step.HierarchyLevel,
				step.Decision,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert approval step")
			}
		}

		return nil
	})
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *StepsRepository) scanStep(row stepScanner) (*Step, error) {
	s := &Step{}
	err := row.Scan(
		&s.ID,
		&s.RequestID,
		&s.StepOrder,
		&s.ApproverID,
		&s.ApproverName,
		&s.ApproverEmail,
		&s.HierarchyLevel,
		&s.Decision,
		&s.Comment,
		&s.DecidedAt,
		&s.Superseded,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StepsRepository) scanRows(rows pgx.Rows) ([]*Step, error) {
	var steps []*Step
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		steps = append(steps, s)
	}
	return steps, nil
}
