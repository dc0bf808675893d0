package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonlabs/cardvault/api/controllers"
	"github.com/halcyonlabs/cardvault/api/middleware"
	"github.com/halcyonlabs/cardvault/internal/audit"
	"github.com/halcyonlabs/cardvault/internal/cron"
	"github.com/halcyonlabs/cardvault/internal/delivery"
	"github.com/halcyonlabs/cardvault/pkg/config"
	"github.com/halcyonlabs/cardvault/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Delivery delivery.Service
	Audit    audit.Service

	PendingSweep *cron.PendingDeliveriesJob
	RetrySweep   *cron.RetryJob
	StockSweep   *cron.StockLevelsJob
}

// NewRouter assembles the HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.DB, deps.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", controllers.PaymentsWebhook(deps.Delivery, deps.Logger))
	})

	r.Route("/api/admin/v1/delivery", func(r chi.Router) {
		r.Post("/orders/{orderID}/process", controllers.ProcessOrder(deps.Delivery, deps.Logger))

		r.Route("/sweeps", func(r chi.Router) {
			r.Post("/pending", controllers.TriggerPendingSweep(deps.PendingSweep, deps.Logger))
			r.Post("/retries", controllers.TriggerRetrySweep(deps.RetrySweep, deps.Logger))
			r.Post("/stock", controllers.TriggerStockSweep(deps.StockSweep, deps.Logger))
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", controllers.ListAuditEvents(deps.Audit, deps.Logger))
			r.Get("/stats", controllers.AuditStats(deps.Audit, deps.Logger))
			r.Post("/{eventID}/resolve", controllers.ResolveAuditEvent(deps.Audit, deps.Logger))
		})
	})

	return r
}
