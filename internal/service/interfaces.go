package service

import (
	"context"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// RequestStore is the durable source of truth for requests and their
// transitions. Mutations carry the request version as an optimistic
// precondition and fail with a conflict when it is stale.
type RequestStore interface {
	Create(ctx context.Context, req *repository.Request, entry *repository.HistoryEntry) error
	GetByID(ctx context.Context, id string) (*repository.Request, error)
	Update(ctx context.Context, req *repository.Request) error
	Submit(ctx context.Context, id string, version int64, entry *repository.HistoryEntry) error
	Withdraw(ctx context.Context, id string, version int64, entry *repository.HistoryEntry) error
	ApplyDecision(ctx context.Context, t *repository.DecisionTransition, entry *repository.HistoryEntry) error
	ListByRequester(ctx context.Context, entityID, requesterID string, status *repository.RequestStatus, limit, offset int) ([]*repository.Request, int64, error)
	ListPendingForApprover(ctx context.Context, entityID, approverID string) ([]*repository.Request, error)
}

// StepStore reads a request's active chain and replaces it wholesale.
type StepStore interface {
	GetActiveByRequestID(ctx context.Context, requestID string) ([]*repository.Step, error)
	ReplaceChain(ctx context.Context, requestID string, version int64, steps []*repository.Step) error
}

// HistoryStore reads the append-only audit trail. Writes happen inside the
// RequestStore transitions so they commit with the state change.
type HistoryStore interface {
	ListByRequestID(ctx context.Context, requestID string) ([]*repository.HistoryEntry, error)
}

// RosterClientInterface resolves the approval-eligible members of an
// organization from the identity service.
type RosterClientInterface interface {
	ListApprovalEligibleMembers(ctx context.Context, entityID, excludingUserID string) ([]client.Member, error)
}

// NotificationPublisherInterface emits fire-and-forget approval events.
// Implementations must never fail the calling transition.
type NotificationPublisherInterface interface {
	PublishRequestEvent(ctx context.Context, eventType, requestID, entityID, actorID string, recipients []string, payload map[string]interface{})
}
