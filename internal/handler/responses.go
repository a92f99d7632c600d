package handler

import (
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// RequestResponse is the JSON shape for a request, with its active chain
// when loaded.
type RequestResponse struct {
	ID             string         `json:"id"`
	EntityID       string         `json:"entity_id"`
	RequesterID    string         `json:"requester_id"`
	RequesterName  string         `json:"requester_name"`
	Title          string         `json:"title"`
	Description    *string        `json:"description,omitempty"`
	Period         string         `json:"period"`
	Amount         *int64         `json:"amount,omitempty"`
	Priority       string         `json:"priority"`
	Status         string         `json:"status"`
	CurrentStep    int            `json:"current_step"`
	TimesSubmitted int            `json:"times_submitted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Steps          []StepResponse `json:"steps,omitempty"`
}

// StepResponse is the JSON shape for one step in the chain.
type StepResponse struct {
	ID             string     `json:"id"`
	StepOrder      int        `json:"step_order"`
	ApproverID     string     `json:"approver_id"`
	ApproverName   string     `json:"approver_name"`
	ApproverEmail  string     `json:"approver_email"`
	HierarchyLevel int        `json:"hierarchy_level"`
	Decision       string     `json:"decision"`
	Comment        *string    `json:"comment,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

// HistoryResponse is the JSON shape for one audit entry.
type HistoryResponse struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func requestToResponse(req *repository.Request) *RequestResponse {
	resp := &RequestResponse{
		ID:             req.ID,
		EntityID:       req.EntityID,
		RequesterID:    req.RequesterID,
		RequesterName:  req.RequesterName,
		Title:          req.Title,
		Description:    req.Description,
		Period:         req.Period,
		Amount:         req.Amount,
		Priority:       string(req.Priority),
		Status:         string(req.Status),
		CurrentStep:    req.CurrentStep,
		TimesSubmitted: req.TimesSubmitted,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	for _, s := range req.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			ID:             s.ID,
			StepOrder:      s.StepOrder,
			ApproverID:     s.ApproverID,
			ApproverName:   s.ApproverName,
			ApproverEmail:  s.ApproverEmail,
			HierarchyLevel: s.HierarchyLevel,
			Decision:       string(s.Decision),
			Comment:        s.Comment,
			DecidedAt:      s.DecidedAt,
		})
	}
	return resp
}

func requestsToResponse(reqs []*repository.Request) []*RequestResponse {
	out := make([]*RequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, requestToResponse(req))
	}
	return out
}

func historyToResponse(entries []*repository.HistoryEntry) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			Action:    string(e.Action),
			Comment:   e.Comment,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
