package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

func testRosterMembers() []client.Member {
	return []client.Member{
		{ID: "u-amira", Name: "Amira Hassan", Email: "amira@example.com", HierarchyLevel: 2, CanApprove: true},
		{ID: "u-bram", Name: "Bram de Vries", Email: "bram@example.com", HierarchyLevel: 2, CanApprove: true},
		{ID: "u-carla", Name: "Carla Ortiz", Email: "carla@example.com", HierarchyLevel: 3, CanApprove: true},
		{ID: "u-dmitri", Name: "Dmitri Volkov", Email: "dmitri@example.com", HierarchyLevel: 1, CanApprove: true},
		{ID: "u-intern", Name: "Ed Intern", Email: "ed@example.com", HierarchyLevel: 1, CanApprove: false},
	}
}

func TestFlowResolver_OrdersByHierarchyDescending(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	chain, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-dmitri", "u-carla", "u-bram"})
	require.NoError(t, err)
	require.Len(t, chain, 3)

	assert.Equal(t, "u-carla", chain[0].ApproverID)
	assert.Equal(t, "u-bram", chain[1].ApproverID)
	assert.Equal(t, "u-dmitri", chain[2].ApproverID)

	for i, step := range chain {
		assert.Equal(t, i+1, step.StepOrder)
		assert.Equal(t, repository.DecisionPending, step.Decision)
	}
	assert.Equal(t, "carla@example.com", chain[0].ApproverEmail)
	assert.Equal(t, 3, chain[0].HierarchyLevel)
}

func TestFlowResolver_TieBreaksByNameThenID(t *testing.T) {
	members := []client.Member{
		{ID: "u-2", Name: "zoe", HierarchyLevel: 2, CanApprove: true},
		{ID: "u-1", Name: "Zoe", HierarchyLevel: 2, CanApprove: true},
		{ID: "u-3", Name: "Adam", HierarchyLevel: 2, CanApprove: true},
	}
	resolver := NewFlowResolver(&fakeRoster{members: members})

	chain, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-2", "u-1", "u-3"})
	require.NoError(t, err)
	require.Len(t, chain, 3)

	// Same level throughout: name compares case-insensitively, equal names
	// fall back to id.
	assert.Equal(t, "u-3", chain[0].ApproverID)
	assert.Equal(t, "u-1", chain[1].ApproverID)
	assert.Equal(t, "u-2", chain[2].ApproverID)
}

func TestFlowResolver_DeterministicAcrossSelectionOrder(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	first, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-bram", "u-carla"})
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-carla", "u-bram"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ApproverID, second[0].ApproverID)
	assert.Equal(t, first[1].ApproverID, second[1].ApproverID)
}

func TestFlowResolver_EmptySelection(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	chain, err := resolver.Resolve(context.Background(), "ent-1", "u-req", nil)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestFlowResolver_RejectsRequesterSelfApproval(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	_, err := resolver.Resolve(context.Background(), "ent-1", "u-carla", []string{"u-carla"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestFlowResolver_RejectsDuplicateApprover(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	_, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-carla", "u-bram", "u-carla"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestFlowResolver_RejectsUnknownApprover(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	_, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-nobody"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestFlowResolver_RejectsIneligibleApprover(t *testing.T) {
	resolver := NewFlowResolver(&fakeRoster{members: testRosterMembers()})

	_, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-intern"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestFlowResolver_PropagatesRosterFailure(t *testing.T) {
	rosterErr := errors.External("roster", context.DeadlineExceeded)
	resolver := NewFlowResolver(&fakeRoster{err: rosterErr})

	_, err := resolver.Resolve(context.Background(), "ent-1", "u-req", []string{"u-carla"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExternal))
}
