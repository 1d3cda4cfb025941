package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigandbest/admin-deployed-sub000/docs"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/pkg/health"
	"github.com/bigandbest/admin-deployed-sub000/pkg/middleware"
)

// Services bundles the business services exposed over HTTP.
type Services struct {
	Geography   *service.GeographyService
	Hierarchy   *service.HierarchyService
	Ledger      *service.LedgerService
	Assignments *service.AssignmentService
	Resolver    *service.Resolver
}

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all fulfillment service routes registered.
func NewRouter(
	svc Services,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("fulfillment"))
	r.Use(middleware.Tracing("fulfillment"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// API documentation
	r.Get("/swagger/doc.json", docs.ServeSpec)
	r.Get("/swagger/", docs.ServeUI)

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	zones := NewGeographyHandler(svc.Geography, logger)
	warehouses := NewWarehouseHandler(svc.Hierarchy, logger)
	stock := NewStockHandler(svc.Ledger, logger)
	assignments := NewAssignmentHandler(svc.Assignments, logger)
	availability := NewAvailabilityHandler(svc.Resolver, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/zones", func(r chi.Router) {
			r.Get("/", zones.ListZones)
			r.Post("/", zones.CreateZone)
			r.Get("/{zoneId}", zones.GetZone)
			r.Patch("/{zoneId}", zones.UpdateZone)
			r.Get("/{zoneId}/pincodes", zones.ListZonePincodes)
			r.Post("/{zoneId}/pincodes", zones.AssignPincodes)
		})

		r.Route("/pincodes/{pincode}", func(r chi.Router) {
			r.Put("/", zones.UpsertPincode)
			r.Get("/zone", zones.ZoneOf)
			r.Delete("/zone", zones.UnassignPincode)
		})

		r.Route("/warehouses", func(r chi.Router) {
			r.Get("/", warehouses.List)
			r.Post("/zonal", warehouses.CreateZonal)
			r.Post("/division", warehouses.CreateDivision)

			r.Route("/{warehouseId}", func(r chi.Router) {
				r.Get("/", warehouses.Get)
				r.Patch("/", warehouses.SetActive)
				r.Delete("/", warehouses.Delete)
				r.Put("/zones", warehouses.UpdateZones)
				r.Put("/pincodes", warehouses.UpdatePincodes)
				r.Get("/divisions", warehouses.Divisions)
				r.Get("/coverage", warehouses.Coverage)
				r.Get("/available-pincodes", warehouses.AvailablePincodes)
				r.Get("/siblings", warehouses.Siblings)

				r.Put("/stock", stock.SetStock)
				r.Get("/stock", stock.GetStock)
				r.Get("/stock/items", stock.ListWarehouseStock)
				r.Get("/stock/movements", stock.ListMovements)
			})
		})

		r.Post("/stock/aggregate", stock.Aggregate)
		r.Get("/stock/low", stock.ListLowStock)

		r.Post("/assignments/validate", assignments.Validate)
		r.Post("/assignments/transition", assignments.Transition)
		r.Post("/assignments", assignments.Submit)

		r.Get("/availability", availability.Resolve)
		r.Post("/availability/batch", availability.ResolveBatch)
	})

	return r
}
