package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Notification event types published on approval transitions.
const (
	eventStepReady         = "step_ready"
	eventRequestApproved   = "request_approved"
	eventRequestRejected   = "request_rejected"
	eventRevisionRequested = "revision_requested"
	eventRequestWithdrawn  = "request_withdrawn"
)

// Actor identifies the authenticated user behind an operation, as supplied
// by the identity gateway. The engine trusts it as given.
type Actor struct {
	ID       string
	Name     string
	Email    string
	EntityID string
}

// CreateRequestInput carries the fields for a new draft request.
type CreateRequestInput struct {
	Title       string
	Period      string
	Description *string
	Amount      *int64
	Priority    string
}

// UpdateRequestInput carries draft edits; nil fields stay unchanged.
type UpdateRequestInput struct {
	Title       *string
	Period      *string
	Description *string
	Amount      *int64
	Priority    *string
}

// ApprovalService is the state machine governing a request's lifecycle.
// It is the only component that mutates requests and steps; every
// transition commits status, step and history atomically through the
// request store, and notifications go out only after the commit.
type ApprovalService struct {
	requests RequestStore
	steps    StepStore
	history  HistoryStore
	resolver *FlowResolver
	notifier NotificationPublisherInterface
	log      *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	requests RequestStore,
	steps StepStore,
	history HistoryStore,
	resolver *FlowResolver,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests: requests,
		steps:    steps,
		history:  history,
		resolver: resolver,
		notifier: notifier,
		log:      log,
	}
}

// ── Create / edit ─────────────────────────────────────────────────────────────

// CreateRequest creates a draft request owned by the actor. No steps exist
// yet; the requester selects approvers before submitting.
func (s *ApprovalService) CreateRequest(ctx context.Context, actor Actor, in *CreateRequestInput) (*repository.Request, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if strings.TrimSpace(in.Period) == "" {
		return nil, errors.InvalidInput("period", "period is required")
	}
	priority := repository.PriorityMedium
	if in.Priority != "" {
		priority = repository.Priority(strings.ToLower(in.Priority))
		if !priority.IsValid() {
			return nil, errors.InvalidInput("priority", "must be one of low, medium, high, urgent")
		}
	}
	if in.Amount != nil && *in.Amount < 0 {
		return nil, errors.InvalidInput("amount", "amount cannot be negative")
	}

	req := &repository.Request{
		EntityID:      actor.EntityID,
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Period:        strings.TrimSpace(in.Period),
		Amount:        in.Amount,
		Priority:      priority,
		Status:        repository.StatusDraft,
	}
	entry := &repository.HistoryEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    repository.ActionCreated,
	}

	if err := s.requests.Create(ctx, req, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("requester_id", actor.ID).
		Str("entity_id", actor.EntityID).
		Msg("Request created")

	return req, nil
}

// UpdateRequest applies draft edits. Editing a request that was returned
// for revision moves it back to draft.
func (s *ApprovalService) UpdateRequest(ctx context.Context, actor Actor, id string, in *UpdateRequestInput) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, errors.Unauthorized("only the requester can edit the request")
	}
	if req.Status != repository.StatusDraft && req.Status != repository.StatusNeedsRevision {
		return nil, errors.Conflict(fmt.Sprintf("cannot edit request with status '%s'", req.Status))
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, errors.InvalidInput("title", "title is required")
		}
		req.Title = strings.TrimSpace(*in.Title)
	}
	if in.Period != nil {
		if strings.TrimSpace(*in.Period) == "" {
			return nil, errors.InvalidInput("period", "period is required")
		}
		req.Period = strings.TrimSpace(*in.Period)
	}
	if in.Description != nil {
		req.Description = in.Description
	}
	if in.Amount != nil {
		if *in.Amount < 0 {
			return nil, errors.InvalidInput("amount", "amount cannot be negative")
		}
		req.Amount = in.Amount
	}
	if in.Priority != nil {
		priority := repository.Priority(strings.ToLower(*in.Priority))
		if !priority.IsValid() {
			return nil, errors.InvalidInput("priority", "must be one of low, medium, high, urgent")
		}
		req.Priority = priority
	}
	if req.Status == repository.StatusNeedsRevision {
		req.Status = repository.StatusDraft
	}

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", id).
		Str("requester_id", actor.ID).
		Msg("Request updated")

	return s.getWithSteps(ctx, id)
}

// ── Approver selection ────────────────────────────────────────────────────────

// SetApprovers resolves the selected approvers into an ordered chain and
// attaches it to the request, superseding any previous chain.
func (s *ApprovalService) SetApprovers(ctx context.Context, actor Actor, id string, approverIDs []string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, errors.Unauthorized("only the requester can select approvers")
	}
	if req.Status != repository.StatusDraft && req.Status != repository.StatusNeedsRevision {
		return nil, errors.New(errors.ErrCodeValidation,
			fmt.Sprintf("approvers can only be set while draft or needs_revision (status: %s)", req.Status))
	}

	chain, err := s.resolver.Resolve(ctx, req.EntityID, req.RequesterID, approverIDs)
	if err != nil {
		return nil, err
	}

	if err := s.steps.ReplaceChain(ctx, id, req.Version, chain); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", id).
		Int("chain_length", len(chain)).
		Msg("Approval chain attached")

	return s.getWithSteps(ctx, id)
}

// ── Submit ────────────────────────────────────────────────────────────────────

// SubmitRequest moves a draft or revised request into its approval chain.
// The first submission logs `submitted`; later ones log `resubmitted` and
// restart the chain from step 1, superseding the decided steps.
func (s *ApprovalService) SubmitRequest(ctx context.Context, actor Actor, id string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, errors.Unauthorized("only the requester can submit the request")
	}
	if req.Status != repository.StatusDraft && req.Status != repository.StatusNeedsRevision {
		return nil, errors.Conflict(fmt.Sprintf("cannot submit request with status '%s'", req.Status))
	}

	steps, err := s.steps.GetActiveByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "at least one approver required")
	}

	if anyDecided(steps) {
		// A revision round left decisions behind: rebuild a fresh pending
		// chain from the same approver snapshots, orders 1..N.
		fresh := cloneChain(steps)
		if err := s.steps.ReplaceChain(ctx, id, req.Version, fresh); err != nil {
			return nil, err
		}
		req, err = s.requests.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		steps = fresh
	}

	action := repository.ActionSubmitted
	if req.TimesSubmitted > 0 {
		action = repository.ActionResubmitted
	}
	entry := &repository.HistoryEntry{
		RequestID: id,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
	}

	if err := s.requests.Submit(ctx, id, req.Version, entry); err != nil {
		return nil, err
	}

	first := steps[0]
	s.notifier.PublishRequestEvent(ctx, eventStepReady, id, req.EntityID, actor.ID,
		[]string{first.ApproverID},
		map[string]interface{}{
			"title":          req.Title,
			"step_order":     first.StepOrder,
			"approver_email": first.ApproverEmail,
		})

	s.log.Info().
		Str("request_id", id).
		Str("action", string(action)).
		Int("chain_length", len(steps)).
		Msg("Request submitted")

	return s.getWithSteps(ctx, id)
}

// ── Decide ────────────────────────────────────────────────────────────────────

// DecideStep records the current approver's decision and advances the state
// machine: approve moves the pointer (or concludes the request on the last
// step), reject concludes it immediately, revision returns control to the
// requester. A replayed decision on a resolved step conflicts instead of
// double-applying.
func (s *ApprovalService) DecideStep(ctx context.Context, actor Actor, id string, stepOrder int, decision string, comment *string) (*repository.Request, error) {
	stepDecision := repository.StepDecision(decision)
	switch stepDecision {
	case repository.DecisionApproved, repository.DecisionRejected, repository.DecisionRevisionRequested:
	default:
		return nil, errors.InvalidInput("decision", "must be one of approved, rejected, revision_requested")
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.AwaitingDecision() {
		return nil, errors.Conflict(fmt.Sprintf("request is not awaiting a decision (status: %s)", req.Status))
	}
	if stepOrder != req.CurrentStep {
		return nil, errors.Conflict(fmt.Sprintf("step %d is not the current step (current: %d)", stepOrder, req.CurrentStep))
	}

	steps, err := s.steps.GetActiveByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	step := stepAt(steps, stepOrder)
	if step == nil {
		return nil, errors.NotFound("approval_step", fmt.Sprintf("%s/%d", id, stepOrder))
	}
	if step.Decision != repository.DecisionPending {
		return nil, errors.Conflict(fmt.Sprintf("step %d has already been resolved", stepOrder))
	}
	if step.ApproverID != actor.ID {
		return nil, errors.Unauthorized("actor is not the approver for the current step")
	}

	t := &repository.DecisionTransition{
		RequestID: id,
		Version:   req.Version,
		StepID:    step.ID,
		Decision:  stepDecision,
		Comment:   comment,
	}
	var action repository.HistoryAction
	switch stepDecision {
	case repository.DecisionApproved:
		action = repository.ActionApproved
		if stepOrder == len(steps) {
			t.NewStatus = repository.StatusApproved
			t.NewCurrentStep = 0
		} else {
			t.NewStatus = repository.StatusInReview
			t.NewCurrentStep = stepOrder + 1
		}
	case repository.DecisionRejected:
		if comment == nil || strings.TrimSpace(*comment) == "" {
			return nil, errors.InvalidInput("comment", "rejection reason is required")
		}
		action = repository.ActionRejected
		t.NewStatus = repository.StatusRejected
		t.NewCurrentStep = 0
	case repository.DecisionRevisionRequested:
		action = repository.ActionRevisionRequested
		t.NewStatus = repository.StatusNeedsRevision
		t.NewCurrentStep = 0
	}

	entry := &repository.HistoryEntry{
		RequestID: id,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Comment:   comment,
	}

	if err := s.requests.ApplyDecision(ctx, t, entry); err != nil {
		return nil, err
	}

	switch t.NewStatus {
	case repository.StatusInReview:
		next := stepAt(steps, stepOrder+1)
		s.notifier.PublishRequestEvent(ctx, eventStepReady, id, req.EntityID, actor.ID,
			[]string{next.ApproverID},
			map[string]interface{}{
				"title":          req.Title,
				"step_order":     next.StepOrder,
				"approver_email": next.ApproverEmail,
			})
	case repository.StatusApproved:
		s.notifier.PublishRequestEvent(ctx, eventRequestApproved, id, req.EntityID, actor.ID,
			[]string{req.RequesterID},
			map[string]interface{}{"title": req.Title})
	case repository.StatusRejected:
		s.notifier.PublishRequestEvent(ctx, eventRequestRejected, id, req.EntityID, actor.ID,
			[]string{req.RequesterID},
			map[string]interface{}{"title": req.Title, "reason": derefOrEmpty(comment)})
	case repository.StatusNeedsRevision:
		s.notifier.PublishRequestEvent(ctx, eventRevisionRequested, id, req.EntityID, actor.ID,
			[]string{req.RequesterID},
			map[string]interface{}{"title": req.Title, "comment": derefOrEmpty(comment)})
	}

	s.log.Info().
		Str("request_id", id).
		Int("step_order", stepOrder).
		Str("decision", decision).
		Str("acted_by", actor.ID).
		Str("new_status", string(t.NewStatus)).
		Msg("Step decided")

	return s.getWithSteps(ctx, id)
}

// ── Withdraw ──────────────────────────────────────────────────────────────────

// WithdrawRequest lets the requester cancel before any decision has been
// recorded. Withdrawn is terminal.
func (s *ApprovalService) WithdrawRequest(ctx context.Context, actor Actor, id string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, errors.Unauthorized("only the requester can withdraw the request")
	}
	if req.Status != repository.StatusDraft && req.Status != repository.StatusPending {
		return nil, errors.Conflict(fmt.Sprintf("cannot withdraw request with status '%s'", req.Status))
	}

	var steps []*repository.Step
	if req.Status == repository.StatusPending {
		steps, err = s.steps.GetActiveByRequestID(ctx, id)
		if err != nil {
			return nil, err
		}
		if anyDecided(steps) {
			return nil, errors.Conflict("cannot withdraw after a step has been decided")
		}
	}

	entry := &repository.HistoryEntry{
		RequestID: id,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    repository.ActionWithdrawn,
	}

	if err := s.requests.Withdraw(ctx, id, req.Version, entry); err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		current := stepAt(steps, req.CurrentStep)
		if current != nil {
			s.notifier.PublishRequestEvent(ctx, eventRequestWithdrawn, id, req.EntityID, actor.ID,
				[]string{current.ApproverID},
				map[string]interface{}{"title": req.Title})
		}
	}

	s.log.Info().
		Str("request_id", id).
		Str("requester_id", actor.ID).
		Msg("Request withdrawn")

	return s.getWithSteps(ctx, id)
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetRequest returns a request with its active chain.
func (s *ApprovalService) GetRequest(ctx context.Context, id string) (*repository.Request, error) {
	return s.getWithSteps(ctx, id)
}

// ListPendingForActor returns every request whose current step awaits the
// actor's decision.
func (s *ApprovalService) ListPendingForActor(ctx context.Context, actor Actor) ([]*repository.Request, error) {
	return s.requests.ListPendingForApprover(ctx, actor.EntityID, actor.ID)
}

// ListMyRequests returns a page of the actor's own requests.
func (s *ApprovalService) ListMyRequests(ctx context.Context, actor Actor, status *string, page, pageSize int) ([]*repository.Request, int64, error) {
	var st *repository.RequestStatus
	if status != nil && *status != "" {
		v := repository.RequestStatus(*status)
		if !v.IsValid() {
			return nil, 0, errors.InvalidInput("status", "unknown status filter")
		}
		st = &v
	}
	offset := (page - 1) * pageSize
	return s.requests.ListByRequester(ctx, actor.EntityID, actor.ID, st, pageSize, offset)
}

// GetHistory returns the request's audit trail in creation order.
func (s *ApprovalService) GetHistory(ctx context.Context, id string) ([]*repository.HistoryEntry, error) {
	if _, err := s.requests.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByRequestID(ctx, id)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *ApprovalService) getWithSteps(ctx context.Context, id string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.GetActiveByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Steps = steps
	return req, nil
}

func stepAt(steps []*repository.Step, order int) *repository.Step {
	for _, s := range steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

func anyDecided(steps []*repository.Step) bool {
	for _, s := range steps {
		if s.Decision != repository.DecisionPending {
			return true
		}
	}
	return false
}

func cloneChain(steps []*repository.Step) []*repository.Step {
	fresh := make([]*repository.Step, 0, len(steps))
	for _, s := range steps {
		fresh = append(fresh, &repository.Step{
			StepOrder:      s.StepOrder,
			ApproverID:     s.ApproverID,
			ApproverName:   s.ApproverName,
			ApproverEmail:  s.ApproverEmail,
			HierarchyLevel: s.HierarchyLevel,
			Decision:       repository.DecisionPending,
		})
	}
	return fresh
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
