package repository

import "time"

// ── Domain types for the approval workflow ───────────────────────────────────

// RequestStatus is the lifecycle state of an approval request.
type RequestStatus string

const (
	StatusDraft         RequestStatus = "draft"
	StatusPending       RequestStatus = "pending"
	StatusInReview      RequestStatus = "in_review"
	StatusApproved      RequestStatus = "approved"
	StatusRejected      RequestStatus = "rejected"
	StatusNeedsRevision RequestStatus = "needs_revision"
	StatusWithdrawn     RequestStatus = "withdrawn"
)

var validStatuses = map[RequestStatus]bool{
	StatusDraft:         true,
	StatusPending:       true,
	StatusInReview:      true,
	StatusApproved:      true,
	StatusRejected:      true,
	StatusNeedsRevision: true,
	StatusWithdrawn:     true,
}

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool { return validStatuses[s] }

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

// AwaitingDecision reports whether the request has a step waiting on an
// approver.
func (s RequestStatus) AwaitingDecision() bool {
	return s == StatusPending || s == StatusInReview
}

// StepDecision is the outcome recorded on a single approval step.
type StepDecision string

const (
	DecisionPending           StepDecision = "pending"
	DecisionApproved          StepDecision = "approved"
	DecisionRejected          StepDecision = "rejected"
	DecisionRevisionRequested StepDecision = "revision_requested"
)

// Priority orders requests in approver work queues.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool { return validPriorities[p] }

// HistoryAction identifies the state-changing action behind a history entry.
type HistoryAction string

const (
	ActionCreated           HistoryAction = "created"
	ActionSubmitted         HistoryAction = "submitted"
	ActionResubmitted       HistoryAction = "resubmitted"
	ActionApproved          HistoryAction = "approved"
	ActionRejected          HistoryAction = "rejected"
	ActionRevisionRequested HistoryAction = "revision_requested"
	ActionWithdrawn         HistoryAction = "withdrawn"
)

// Request is a unit of work requiring sequential sign-off.
// The requester identity is snapshotted at creation time and never changes.
type Request struct {
	ID             string
	EntityID       string
	RequesterID    string
	RequesterName  string
	Title          string
	Description    *string
	Period         string
	Amount         *int64 // cents; nil when the request has no monetary value
	Priority       Priority
	Status         RequestStatus
	CurrentStep    int // 1-based pointer into the active chain; 0 when no step is live
	TimesSubmitted int
	Version        int64 // optimistic concurrency counter, bumped on every mutation
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Steps holds the active chain when the caller asked for it; not
	// populated by list queries.
	Steps []*Step
}

// Step is one approver's slot in a request's chain. Approver identity and
// hierarchy level are snapshotted at chain-build time; later roster changes
// never reorder an in-flight chain.
type Step struct {
	ID             string
	RequestID      string
	StepOrder      int
	ApproverID     string
	ApproverName   string
	ApproverEmail  string
	HierarchyLevel int
	Decision       StepDecision
	Comment        *string
	DecidedAt      *time.Time
	Superseded     bool // true once a resubmission replaced this chain
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryEntry is one immutable record in a request's audit trail.
type HistoryEntry struct {
	ID        string
	RequestID string
	ActorID   string
	ActorName string
	Action    HistoryAction
	Comment   *string
	CreatedAt time.Time
}

// DecisionTransition describes the atomic state change applied when an
// approver decides the current step. Version is the optimistic-concurrency
// precondition: when it no longer matches the stored request the transition
// fails with a conflict and nothing is persisted.
type DecisionTransition struct {
	RequestID      string
	Version        int64
	NewStatus      RequestStatus
	NewCurrentStep int
	StepID         string
	Decision       StepDecision
	Comment        *string
}
