package http

import (
	"log/slog"
	"net/http"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httputil"
)

// AvailabilityHandler handles availability resolution requests.
type AvailabilityHandler struct {
	resolver *service.Resolver
	logger   *slog.Logger
}

// NewAvailabilityHandler creates a new availability HTTP handler.
func NewAvailabilityHandler(resolver *service.Resolver, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{resolver: resolver, logger: logger}
}

// ResolveBatchRequest is the JSON request body for resolving several products
// for one destination.
type ResolveBatchRequest struct {
	Pincode string               `json:"pincode" validate:"required,pincode"`
	Items   []ResolveItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

// ResolveItemRequest is one product in a batch resolution.
type ResolveItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id" validate:"omitempty,gt=0"`
}

// Resolve handles GET /api/v1/availability?pincode=&product_id=&variant_id=
func (h *AvailabilityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, ok := httputil.ParsePincode(w, q.Get("pincode"))
	if !ok {
		return
	}
	productID, ok := httputil.ParseID(w, "product_id", q.Get("product_id"))
	if !ok {
		return
	}
	variantID, ok := httputil.ParseOptionalID(w, "variant_id", q.Get("variant_id"))
	if !ok {
		return
	}

	res, err := h.resolver.Resolve(r.Context(), code, productID, variantID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// ResolveBatch handles POST /api/v1/availability/batch
func (h *AvailabilityHandler) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req ResolveBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]domain.ResolveItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.ResolveItem{ProductID: item.ProductID, VariantID: item.VariantID}
	}

	results, err := h.resolver.ResolveBatch(r.Context(), req.Pincode, items)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"pincode": req.Pincode,
		"results": results,
	}})
}
