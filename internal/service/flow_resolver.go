package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// FlowResolver turns a requester's approver selection into a deterministic
// ordered chain. Ordering is hierarchy level descending (highest authority
// acts first); ties are broken by case-insensitive name, then id, so two
// resolutions of the same selection always produce the same chain.
type FlowResolver struct {
	roster RosterClientInterface
}

// NewFlowResolver creates a new FlowResolver.
func NewFlowResolver(roster RosterClientInterface) *FlowResolver {
	return &FlowResolver{roster: roster}
}

// Resolve validates the selected approver ids against the entity roster and
// returns the ordered chain as step snapshots with orders 1..N. An empty
// selection yields an empty chain; submission rejects it later.
func (f *FlowResolver) Resolve(ctx context.Context, entityID, requesterID string, approverIDs []string) ([]*repository.Step, error) {
	if len(approverIDs) == 0 {
		return nil, nil
	}

	members, err := f.roster.ListApprovalEligibleMembers(ctx, entityID, requesterID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]client.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	seen := make(map[string]bool, len(approverIDs))
	selected := make([]client.Member, 0, len(approverIDs))
	for _, id := range approverIDs {
		if id == requesterID {
			return nil, errors.InvalidInput("approver_ids", "requester cannot approve their own request")
		}
		if seen[id] {
			return nil, errors.InvalidInput("approver_ids", fmt.Sprintf("duplicate approver: %s", id))
		}
		seen[id] = true

		m, ok := byID[id]
		if !ok {
			return nil, errors.InvalidInput("approver_ids", fmt.Sprintf("unknown or ineligible approver: %s", id))
		}
		if !m.CanApprove {
			return nil, errors.InvalidInput("approver_ids", fmt.Sprintf("member %s is not allowed to approve", id))
		}
		selected = append(selected, m)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].HierarchyLevel != selected[j].HierarchyLevel {
			return selected[i].HierarchyLevel > selected[j].HierarchyLevel
		}
		ni, nj := strings.ToLower(selected[i].Name), strings.ToLower(selected[j].Name)
		if ni != nj {
			return ni < nj
		}
		return selected[i].ID < selected[j].ID
	})

	steps := make([]*repository.Step, 0, len(selected))
	for i, m := range selected {
		steps = append(steps, &repository.Step{
			StepOrder:      i + 1,
			ApproverID:     m.ID,
			ApproverName:   m.Name,
			ApproverEmail:  m.Email,
			HierarchyLevel: m.HierarchyLevel,
			Decision:       repository.DecisionPending,
		})
	}
	return steps, nil
}
