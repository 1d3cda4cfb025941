package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httputil"
	"github.com/bigandbest/admin-deployed-sub000/pkg/pagination"
)

// StockHandler handles HTTP requests for the stock ledger.
type StockHandler struct {
	service *service.LedgerService
	logger  *slog.Logger
}

// NewStockHandler creates a new stock HTTP handler.
func NewStockHandler(svc *service.LedgerService, logger *slog.Logger) *StockHandler {
	return &StockHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SetStockRequest is the JSON request body for writing a ledger row. A
// quantity at or below zero removes the row.
type SetStockRequest struct {
	ProductID        int64           `json:"product_id" validate:"required,gt=0"`
	VariantID        *int64          `json:"variant_id" validate:"omitempty,gt=0"`
	Quantity         int             `json:"quantity"`
	MinimumThreshold int             `json:"minimum_threshold" validate:"gte=0"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
}

// AggregateStockRequest is the JSON request body for reading stock across warehouses.
type AggregateStockRequest struct {
	WarehouseIDs []int64 `json:"warehouse_ids" validate:"required,min=1,max=500,dive,gt=0"`
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	VariantID    *int64  `json:"variant_id" validate:"omitempty,gt=0"`
}

// StockLevel is the response body of a single stock read.
type StockLevel struct {
	domain.StockKey
	Quantity int `json:"quantity"`
}

// DeletedStock is the response body of a write that removed the row.
type DeletedStock struct {
	domain.StockKey
	Deleted bool `json:"deleted"`
}

// --- Handlers ---

// SetStock handles PUT /api/v1/warehouses/{warehouseId}/stock
func (h *StockHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := httputil.ParseID(w, "warehouseId", chi.URLParam(r, "warehouseId"))
	if !ok {
		return
	}
	var req SetStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := domain.StockKey{WarehouseID: warehouseID, ProductID: req.ProductID, VariantID: req.VariantID}
	row, err := h.service.SetStock(r.Context(), domain.StockAssignment{
		StockKey:         key,
		Quantity:         req.Quantity,
		MinimumThreshold: req.MinimumThreshold,
		CostPerUnit:      req.CostPerUnit,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if row == nil {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: DeletedStock{StockKey: key, Deleted: true}})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: row})
}

// GetStock handles GET /api/v1/warehouses/{warehouseId}/stock?product_id=&variant_id=
func (h *StockHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := httputil.ParseID(w, "warehouseId", chi.URLParam(r, "warehouseId"))
	if !ok {
		return
	}
	productID, ok := httputil.ParseID(w, "product_id", r.URL.Query().Get("product_id"))
	if !ok {
		return
	}
	variantID, ok := httputil.ParseOptionalID(w, "variant_id", r.URL.Query().Get("variant_id"))
	if !ok {
		return
	}

	key := domain.StockKey{WarehouseID: warehouseID, ProductID: productID, VariantID: variantID}
	qty, err := h.service.GetStock(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: StockLevel{StockKey: key, Quantity: qty}})
}

// ListWarehouseStock handles GET /api/v1/warehouses/{warehouseId}/stock/items
func (h *StockHandler) ListWarehouseStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := httputil.ParseID(w, "warehouseId", chi.URLParam(r, "warehouseId"))
	if !ok {
		return
	}
	p, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rows, total, err := h.service.ListWarehouseStock(r.Context(), warehouseID, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(rows, total, p.Page, p.PerPage))
}

// ListMovements handles GET /api/v1/warehouses/{warehouseId}/stock/movements
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := httputil.ParseID(w, "warehouseId", chi.URLParam(r, "warehouseId"))
	if !ok {
		return
	}
	p, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	moves, total, err := h.service.ListMovements(r.Context(), warehouseID, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(moves, total, p.Page, p.PerPage))
}

// Aggregate handles POST /api/v1/stock/aggregate
func (h *StockHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	quantities, err := h.service.AggregateStock(r.Context(), req.WarehouseIDs, req.ProductID, req.VariantID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"product_id": req.ProductID,
		"variant_id": req.VariantID,
		"quantities": quantities,
	}})
}

// ListLowStock handles GET /api/v1/stock/low
func (h *StockHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	p, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rows, total, err := h.service.ListLowStock(r.Context(), p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(rows, total, p.Page, p.PerPage))
}
