package http

import (
	"log/slog"
	"net/http"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httputil"
)

// AssignmentHandler handles HTTP requests for the stock assignment workflow.
// The client carries the workflow state between calls.
type AssignmentHandler struct {
	service *service.AssignmentService
	logger  *slog.Logger
}

// NewAssignmentHandler creates a new assignment HTTP handler.
func NewAssignmentHandler(svc *service.AssignmentService, logger *slog.Logger) *AssignmentHandler {
	return &AssignmentHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// ValidateRequest is the JSON request body for checking a draft. An empty
// step checks every step.
type ValidateRequest struct {
	Step  domain.Step  `json:"step" validate:"omitempty,oneof=basic zonal division review"`
	Draft domain.Draft `json:"draft"`
}

// TransitionRequest is the JSON request body for moving through the workflow.
type TransitionRequest struct {
	Step   domain.Step  `json:"step" validate:"required,oneof=basic zonal division review"`
	Action string       `json:"action" validate:"required,oneof=next back goto"`
	Target domain.Step  `json:"target" validate:"omitempty,oneof=basic zonal division review"`
	Draft  domain.Draft `json:"draft"`
}

// SubmitRequest is the JSON request body for committing a draft.
type SubmitRequest struct {
	Step  domain.Step  `json:"step" validate:"omitempty,oneof=basic zonal division review"`
	Draft domain.Draft `json:"draft"`
}

// --- Handlers ---

// Validate handles POST /api/v1/assignments/validate
func (h *AssignmentHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	v, err := h.service.Validate(req.Step, req.Draft)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"valid":      v.OK(),
		"violations": v,
	}})
}

// Transition handles POST /api/v1/assignments/transition
func (h *AssignmentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.service.Transition(req.Step, req.Action, req.Target, req.Draft)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// Submit handles POST /api/v1/assignments
func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Step == "" {
		req.Step = domain.StepReview
	}

	res, err := h.service.Submit(r.Context(), req.Step, req.Draft)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if !res.Violations.OK() {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{Data: res})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: res})
}
