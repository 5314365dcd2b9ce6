package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/fikriaf/ordo-backend/pkg/agent"
	"github.com/fikriaf/ordo-backend/pkg/approval"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ApprovalsHandler handles the approval inbox: listing what is pending
// and deciding it. Approving runs the frozen invocation right away.
type ApprovalsHandler struct {
	gate  *approval.Gate
	agent *agent.Agent
}

// NewApprovalsHandler creates a new approvals handler
func NewApprovalsHandler(gate *approval.Gate, ag *agent.Agent) *ApprovalsHandler {
	return &ApprovalsHandler{
		gate:  gate,
		agent: ag,
	}
}

// Routes returns approval routes
func (h *ApprovalsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListApprovals)
	r.Get("/{id}", h.GetApproval)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)

	return r
}

// DecisionResponse is the wire form of a decided approval
type DecisionResponse struct {
	Approval models.ApprovalRequest `json:"approval"`
	Outcome  string                 `json:"outcome,omitempty"`
}

// ListApprovals returns the current user's approval requests, optionally
// filtered with ?status=pending
func (h *ApprovalsHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	status := models.ApprovalStatus(r.URL.Query().Get("status"))

	requests, err := h.gate.List(user.ID, status)
	if err != nil {
		logging.LogErrorf(err, "Failed to list approvals")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list approvals"})
		return
	}

	render.JSON(w, r, requests)
}

// GetApproval returns one approval request
func (h *ApprovalsHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	requestID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	request, err := h.gate.Get(user.ID, requestID)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Approval not found"})
		} else {
			logging.LogErrorf(err, "Failed to get approval")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get approval"})
		}
		return
	}

	render.JSON(w, r, request)
}

// Approve marks a pending request approved and executes its frozen
// invocation snapshot
func (h *ApprovalsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	requestID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	request, err := h.gate.Decide(user.ID, requestID, true)
	if err != nil {
		h.writeDecisionError(w, r, err)
		return
	}

	outcome, execErr := h.agent.ExecuteApproved(r.Context(), request)
	if execErr != nil {
		logging.LogErrorf(execErr, "Approved execution failed: %s", request.ToolName)
	}

	render.JSON(w, r, DecisionResponse{
		Approval: *request,
		Outcome:  outcome,
	})
}

// Reject marks a pending request rejected. Nothing executes.
func (h *ApprovalsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	requestID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	request, err := h.gate.Decide(user.ID, requestID, false)
	if err != nil {
		h.writeDecisionError(w, r, err)
		return
	}

	render.JSON(w, r, DecisionResponse{Approval: *request})
}

func (h *ApprovalsHandler) writeDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Approval not found"})
	case errors.Is(err, approval.ErrAlreadyFinal):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, map[string]string{"error": "Approval already decided"})
	case errors.Is(err, approval.ErrExpired):
		render.Status(r, http.StatusGone)
		render.JSON(w, r, map[string]string{"error": "Approval expired"})
	default:
		logging.LogErrorf(err, "Failed to decide approval")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to decide approval"})
	}
}
