package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httputil"
	"github.com/bigandbest/admin-deployed-sub000/pkg/pagination"
)

// WarehouseHandler handles HTTP requests for the warehouse hierarchy.
type WarehouseHandler struct {
	service *service.HierarchyService
	logger  *slog.Logger
}

// NewWarehouseHandler creates a new warehouse HTTP handler.
func NewWarehouseHandler(svc *service.HierarchyService, logger *slog.Logger) *WarehouseHandler {
	return &WarehouseHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// CreateZonalRequest is the JSON request body for creating a zonal warehouse.
type CreateZonalRequest struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Address string  `json:"address" validate:"omitempty,max=512"`
	Pincode string  `json:"pincode" validate:"omitempty,pincode"`
	ZoneIDs []int64 `json:"zone_ids" validate:"required,min=1,dive,gt=0"`
}

// CreateDivisionRequest is the JSON request body for creating a division warehouse.
type CreateDivisionRequest struct {
	Name              string   `json:"name" validate:"required,max=255"`
	Address           string   `json:"address" validate:"omitempty,max=512"`
	Pincode           string   `json:"pincode" validate:"omitempty,pincode"`
	ParentWarehouseID int64    `json:"parent_warehouse_id" validate:"required,gt=0"`
	Pincodes          []string `json:"pincodes" validate:"required,min=1,dive,pincode"`
}

// UpdateZonesRequest is the JSON request body for replacing a zonal warehouse's zones.
type UpdateZonesRequest struct {
	ZoneIDs []int64 `json:"zone_ids" validate:"required,min=1,dive,gt=0"`
}

// UpdatePincodesRequest is the JSON request body for replacing a division's pincodes.
type UpdatePincodesRequest struct {
	Pincodes []string `json:"pincodes" validate:"required,min=1,dive,pincode"`
}

// SetActiveRequest is the JSON request body for enabling or disabling a warehouse.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// --- Handlers ---

// List handles GET /api/v1/warehouses
func (h *WarehouseHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	parentID, ok := httputil.ParseOptionalID(w, "parent_id", r.URL.Query().Get("parent_id"))
	if !ok {
		return
	}

	items, total, err := h.service.ListWarehouses(r.Context(), domain.WarehouseFilter{
		Type:     domain.WarehouseType(r.URL.Query().Get("type")),
		ParentID: parentID,
		Page:     p.Page,
		PerPage:  p.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(items, total, p.Page, p.PerPage))
}

// CreateZonal handles POST /api/v1/warehouses/zonal
func (h *WarehouseHandler) CreateZonal(w http.ResponseWriter, r *http.Request) {
	var req CreateZonalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wh, err := h.service.CreateZonal(r.Context(), service.CreateZonalInput{
		Name:    req.Name,
		Address: req.Address,
		Pincode: req.Pincode,
		ZoneIDs: req.ZoneIDs,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: wh})
}

// CreateDivision handles POST /api/v1/warehouses/division
func (h *WarehouseHandler) CreateDivision(w http.ResponseWriter, r *http.Request) {
	var req CreateDivisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wh, err := h.service.CreateDivision(r.Context(), service.CreateDivisionInput{
		Name:     req.Name,
		Address:  req.Address,
		Pincode:  req.Pincode,
		ParentID: req.ParentWarehouseID,
		Pincodes: req.Pincodes,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: wh})
}

func (h *WarehouseHandler) warehouseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return httputil.ParseID(w, "warehouseId", chi.URLParam(r, "warehouseId"))
}

// Get handles GET /api/v1/warehouses/{warehouseId}
func (h *WarehouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}

	wh, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wh})
}

// SetActive handles PATCH /api/v1/warehouses/{warehouseId}
func (h *WarehouseHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}
	var req SetActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wh, err := h.service.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wh})
}

// Delete handles DELETE /api/v1/warehouses/{warehouseId}
func (h *WarehouseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateZones handles PUT /api/v1/warehouses/{warehouseId}/zones
func (h *WarehouseHandler) UpdateZones(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}
	var req UpdateZonesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wh, err := h.service.UpdateZonalZones(r.Context(), id, req.ZoneIDs)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wh})
}

// UpdatePincodes handles PUT /api/v1/warehouses/{warehouseId}/pincodes
func (h *WarehouseHandler) UpdatePincodes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}
	var req UpdatePincodesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wh, err := h.service.UpdateDivisionPincodes(r.Context(), id, req.Pincodes)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wh})
}

// Divisions handles GET /api/v1/warehouses/{warehouseId}/divisions
func (h *WarehouseHandler) Divisions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}

	divisions, err := h.service.DivisionsOf(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: divisions})
}

// Coverage handles GET /api/v1/warehouses/{warehouseId}/coverage
func (h *WarehouseHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}

	codes, err := h.service.CoverageOf(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: codes})
}

// AvailablePincodes handles GET /api/v1/warehouses/{warehouseId}/available-pincodes
func (h *WarehouseHandler) AvailablePincodes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}
	excluding, ok := httputil.ParseOptionalID(w, "exclude", r.URL.Query().Get("exclude"))
	if !ok {
		return
	}

	avail, err := h.service.AvailablePincodesFor(r.Context(), id, excluding)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: avail})
}

// Siblings handles GET /api/v1/warehouses/{warehouseId}/siblings?pincode=
func (h *WarehouseHandler) Siblings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.warehouseID(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePincode(w, r.URL.Query().Get("pincode"))
	if !ok {
		return
	}

	siblings, err := h.service.SiblingsCovering(r.Context(), code, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: siblings})
}
