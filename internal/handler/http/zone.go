package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httputil"
)

// GeographyHandler handles HTTP requests for zones and pincodes.
type GeographyHandler struct {
	service *service.GeographyService
	logger  *slog.Logger
}

// NewGeographyHandler creates a new geography HTTP handler.
func NewGeographyHandler(svc *service.GeographyService, logger *slog.Logger) *GeographyHandler {
	return &GeographyHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// CreateZoneRequest is the JSON request body for creating a zone.
type CreateZoneRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
	Description string `json:"description" validate:"omitempty,max=512"`
}

// UpdateZoneRequest is the JSON request body for editing a zone.
type UpdateZoneRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
	IsActive    *bool   `json:"is_active"`
}

// AssignPincodesRequest is the JSON request body for adding pincodes to a zone.
type AssignPincodesRequest struct {
	Pincodes []string `json:"pincodes" validate:"required,min=1,unique,dive,pincode"`
}

// UpsertPincodeRequest is the JSON request body for writing a pincode record.
type UpsertPincodeRequest struct {
	City     string `json:"city" validate:"omitempty,max=128"`
	State    string `json:"state" validate:"omitempty,max=128"`
	IsActive *bool  `json:"is_active"`
}

// --- Handlers ---

// ListZones handles GET /api/v1/zones
func (h *GeographyHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	zones, err := h.service.ListZones(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: zones})
}

// CreateZone handles POST /api/v1/zones
func (h *GeographyHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req CreateZoneRequest
	if !decodeBody(w, r, &req) {
		return
	}

	zone, err := h.service.CreateZone(r.Context(), service.CreateZoneInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: zone})
}

// GetZone handles GET /api/v1/zones/{zoneId}
func (h *GeographyHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "zoneId", chi.URLParam(r, "zoneId"))
	if !ok {
		return
	}

	zone, err := h.service.GetZone(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: zone})
}

// UpdateZone handles PATCH /api/v1/zones/{zoneId}
func (h *GeographyHandler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "zoneId", chi.URLParam(r, "zoneId"))
	if !ok {
		return
	}
	var req UpdateZoneRequest
	if !decodeBody(w, r, &req) {
		return
	}

	zone, err := h.service.UpdateZone(r.Context(), id, service.UpdateZoneInput{
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: zone})
}

// ListZonePincodes handles GET /api/v1/zones/{zoneId}/pincodes
func (h *GeographyHandler) ListZonePincodes(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "zoneId", chi.URLParam(r, "zoneId"))
	if !ok {
		return
	}

	pins, err := h.service.PincodesOf(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pins})
}

// AssignPincodes handles POST /api/v1/zones/{zoneId}/pincodes
func (h *GeographyHandler) AssignPincodes(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "zoneId", chi.URLParam(r, "zoneId"))
	if !ok {
		return
	}
	var req AssignPincodesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.AssignPincodes(r.Context(), id, req.Pincodes); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"zone_id":  id,
		"pincodes": req.Pincodes,
	}})
}

// UpsertPincode handles PUT /api/v1/pincodes/{pincode}
func (h *GeographyHandler) UpsertPincode(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePincode(w, chi.URLParam(r, "pincode"))
	if !ok {
		return
	}
	var req UpsertPincodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := h.service.UpsertPincode(r.Context(), domain.Pincode{
		Code:     code,
		City:     req.City,
		State:    req.State,
		IsActive: active,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// ZoneOf handles GET /api/v1/pincodes/{pincode}/zone
func (h *GeographyHandler) ZoneOf(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePincode(w, chi.URLParam(r, "pincode"))
	if !ok {
		return
	}

	zone, err := h.service.ZoneOf(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: zone})
}

// UnassignPincode handles DELETE /api/v1/pincodes/{pincode}/zone
func (h *GeographyHandler) UnassignPincode(w http.ResponseWriter, r *http.Request) {
	code, ok := httputil.ParsePincode(w, chi.URLParam(r, "pincode"))
	if !ok {
		return
	}

	if err := h.service.UnassignPincode(r.Context(), code); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
