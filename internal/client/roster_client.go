package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Member is one approval-eligible person in an organization's roster.
// Hierarchy level and approval capability come from the identity service;
// the approval engine snapshots them onto steps at chain-build time.
type Member struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	HierarchyLevel int    `json:"hierarchy_level"`
	CanApprove     bool   `json:"can_approve"`
}

type listMembersResponse struct {
	Members []Member `json:"members"`
}

// RosterHTTPClient fetches the approval-eligible roster from the platform
// identity service.
type RosterHTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewRosterHTTPClient creates a roster client against the given base URL.
func NewRosterHTTPClient(baseURL string, timeout time.Duration) *RosterHTTPClient {
	return &RosterHTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListApprovalEligibleMembers returns the members of an entity who may act
// as approvers, excluding the given user (a requester cannot approve their
// own request).
func (c *RosterHTTPClient) ListApprovalEligibleMembers(ctx context.Context, entityID, excludingUserID string) ([]Member, error) {
	endpoint := fmt.Sprintf("%s/api/v1/members/approval-eligible?entity_id=%s&exclude=%s",
		c.baseURL, url.QueryEscape(entityID), url.QueryEscape(excludingUserID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.External("roster", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.External("roster", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.External("roster", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body listMembersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.External("roster", err)
	}
	return body.Members, nil
}
