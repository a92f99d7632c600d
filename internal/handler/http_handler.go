package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// HTTPHandler exposes the approval service over HTTP JSON. The actor
// identity comes from gateway-injected headers and is trusted as given.
type HTTPHandler struct {
	service *service.ApprovalService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		log:     log,
	}
}

// actorFrom resolves the acting user from gateway headers.
func actorFrom(r *http.Request) (service.Actor, error) {
	actor := service.Actor{
		ID:       r.Header.Get("X-User-Id"),
		Name:     r.Header.Get("X-User-Name"),
		Email:    r.Header.Get("X-User-Email"),
		EntityID: r.Header.Get("X-Entity-Id"),
	}
	if actor.ID == "" || actor.EntityID == "" {
		return service.Actor{}, errors.Unauthorized("missing identity headers")
	}
	return actor, nil
}

// CreateRequest handles create request HTTP requests.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		Title       string  `json:"title"`
		Period      string  `json:"period"`
		Description *string `json:"description"`
		Amount      *int64  `json:"amount"`
		Priority    string  `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.CreateRequest(r.Context(), actor, &service.CreateRequestInput{
		Title:       body.Title,
		Period:      body.Period,
		Description: body.Description,
		Amount:      body.Amount,
		Priority:    body.Priority,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, requestToResponse(req))
}

// GetRequest handles get request HTTP requests.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// ListMyRequests handles listing the actor's own requests.
func (h *HTTPHandler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		status = &s
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	reqs, total, err := h.service.ListMyRequests(r.Context(), actor, status, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requestsToResponse(reqs),
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// UpdateRequest handles draft edits.
func (h *HTTPHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		ID          string  `json:"id"`
		Title       *string `json:"title"`
		Period      *string `json:"period"`
		Description *string `json:"description"`
		Amount      *int64  `json:"amount"`
		Priority    *string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.UpdateRequest(r.Context(), actor, body.ID, &service.UpdateRequestInput{
		Title:       body.Title,
		Period:      body.Period,
		Description: body.Description,
		Amount:      body.Amount,
		Priority:    body.Priority,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// SetApprovers handles approver selection.
func (h *HTTPHandler) SetApprovers(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		ID          string   `json:"id"`
		ApproverIDs []string `json:"approver_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.SetApprovers(r.Context(), actor, body.ID, body.ApproverIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// SubmitRequest handles submission into the approval chain.
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.SubmitRequest(r.Context(), actor, body.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// DecideStep handles an approver decision on the current step.
func (h *HTTPHandler) DecideStep(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		ID        string  `json:"id"`
		StepOrder int     `json:"step_order"`
		Decision  string  `json:"decision"`
		Comment   *string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.DecideStep(r.Context(), actor, body.ID, body.StepOrder, body.Decision, body.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// WithdrawRequest handles requester-initiated cancellation.
func (h *HTTPHandler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.service.WithdrawRequest(r.Context(), actor, body.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, requestToResponse(req))
}

// ListPendingForActor handles the approver work queue.
func (h *HTTPHandler) ListPendingForActor(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	reqs, err := h.service.ListPendingForActor(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requestsToResponse(reqs),
	})
}

// GetHistory handles reading a request's audit trail.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.service.GetHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": historyToResponse(entries),
	})
}

// ── response writing ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    string(errors.CodeOf(err)),
			"message": err.Error(),
		},
	})
}
