package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. It
// mirrors their optimistic-concurrency behavior: every mutation checks the
// request version and fails with a conflict when stale.
type memStore struct {
	mu       sync.Mutex
	requests map[string]*repository.Request
	steps    map[string][]*repository.Step
	history  map[string][]*repository.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[string]*repository.Request),
		steps:    make(map[string][]*repository.Step),
		history:  make(map[string][]*repository.HistoryEntry),
	}
}

func (m *memStore) Create(_ context.Context, req *repository.Request, entry *repository.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	req.ID = uuid.NewString()
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	stored := *req
	m.requests[req.ID] = &stored

	entry.RequestID = req.ID
	m.appendHistoryLocked(entry)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*repository.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[id]
	if !ok {
		return nil, errors.NotFound("request", id)
	}
	req := *stored
	req.Steps = nil
	return &req, nil
}

func (m *memStore) Update(_ context.Context, req *repository.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[req.ID]
	if !ok || stored.Version != req.Version {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}
	stored.Title = req.Title
	stored.Description = req.Description
	stored.Period = req.Period
	stored.Amount = req.Amount
	stored.Priority = req.Priority
	stored.Status = req.Status
	stored.Version++
	stored.UpdatedAt = time.Now()
	req.Version = stored.Version
	return nil
}

func (m *memStore) Submit(_ context.Context, id string, version int64, entry *repository.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[id]
	if !ok || stored.Version != version {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}
	stored.Status = repository.StatusPending
	stored.CurrentStep = 1
	stored.TimesSubmitted++
	stored.Version++
	stored.UpdatedAt = time.Now()

	m.appendHistoryLocked(entry)
	return nil
}

func (m *memStore) Withdraw(_ context.Context, id string, version int64, entry *repository.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[id]
	if !ok || stored.Version != version {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}
	stored.Status = repository.StatusWithdrawn
	stored.CurrentStep = 0
	stored.Version++
	stored.UpdatedAt = time.Now()

	m.appendHistoryLocked(entry)
	return nil
}

func (m *memStore) ApplyDecision(_ context.Context, t *repository.DecisionTransition, entry *repository.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[t.RequestID]
	if !ok || stored.Version != t.Version {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}

	var step *repository.Step
	for _, s := range m.steps[t.RequestID] {
		if s.ID == t.StepID && !s.Superseded {
			step = s
			break
		}
	}
	if step == nil || step.Decision != repository.DecisionPending {
		return errors.Conflict("step has already been resolved")
	}

	now := time.Now()
	step.Decision = t.Decision
	step.Comment = t.Comment
	step.DecidedAt = &now
	step.UpdatedAt = now

	stored.Status = t.NewStatus
	stored.CurrentStep = t.NewCurrentStep
	stored.Version++
	stored.UpdatedAt = now

	m.appendHistoryLocked(entry)
	return nil
}

func (m *memStore) ListByRequester(_ context.Context, entityID, requesterID string, status *repository.RequestStatus, limit, offset int) ([]*repository.Request, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*repository.Request
	for _, stored := range m.requests {
		if stored.EntityID != entityID || stored.RequesterID != requesterID {
			continue
		}
		if status != nil && stored.Status != *status {
			continue
		}
		req := *stored
		all = append(all, &req)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memStore) ListPendingForApprover(_ context.Context, entityID, approverID string) ([]*repository.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Request
	for id, stored := range m.requests {
		if stored.EntityID != entityID || !stored.Status.AwaitingDecision() {
			continue
		}
		for _, s := range m.steps[id] {
			if s.Superseded || s.StepOrder != stored.CurrentStep {
				continue
			}
			if s.ApproverID == approverID && s.Decision == repository.DecisionPending {
				req := *stored
				out = append(out, &req)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetActiveByRequestID(_ context.Context, requestID string) ([]*repository.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.Step
	for _, s := range m.steps[requestID] {
		if s.Superseded {
			continue
		}
		step := *s
		out = append(out, &step)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (m *memStore) ReplaceChain(_ context.Context, requestID string, version int64, steps []*repository.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.requests[requestID]
	if !ok || stored.Version != version {
		return errors.Conflict("request was modified concurrently; retry with fresh state")
	}
	stored.Version++
	stored.UpdatedAt = time.Now()

	for _, s := range m.steps[requestID] {
		s.Superseded = true
	}
	now := time.Now()
	for _, s := range steps {
		s.ID = uuid.NewString()
		s.RequestID = requestID
		s.CreatedAt = now
		s.UpdatedAt = now
		step := *s
		m.steps[requestID] = append(m.steps[requestID], &step)
	}
	return nil
}

func (m *memStore) ListByRequestID(_ context.Context, requestID string) ([]*repository.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.history[requestID]
	out := make([]*repository.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		entry := *e
		out = append(out, &entry)
	}
	return out, nil
}

func (m *memStore) appendHistoryLocked(entry *repository.HistoryEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	stored := *entry
	m.history[entry.RequestID] = append(m.history[entry.RequestID], &stored)
}

// fakeRoster serves a fixed member list, excluding the requested id.
type fakeRoster struct {
	members []client.Member
	err     error
}

func (f *fakeRoster) ListApprovalEligibleMembers(_ context.Context, _, excludingUserID string) ([]client.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []client.Member
	for _, m := range f.members {
		if m.ID == excludingUserID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type publishedEvent struct {
	eventType  string
	requestID  string
	actorID    string
	recipients []string
	payload    map[string]interface{}
}

// fakeNotifier records published events for assertions.
type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeNotifier) PublishRequestEvent(_ context.Context, eventType, requestID, _ string, actorID string, recipients []string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{
		eventType:  eventType,
		requestID:  requestID,
		actorID:    actorID,
		recipients: recipients,
		payload:    payload,
	})
}

func (f *fakeNotifier) byType(eventType string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
