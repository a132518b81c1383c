package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/api/handler"
	apimw "github.com/promohub/channel-dispatch/internal/api/middleware"
	"github.com/promohub/channel-dispatch/internal/batchgen"
	"github.com/promohub/channel-dispatch/internal/scheduler"
	"github.com/promohub/channel-dispatch/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.PromotionService,
	sched *scheduler.Scheduler,
	gen *batchgen.Generator,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	dh := handler.NewDraftHandler(svc, logger)
	bh := handler.NewBatchHandler(svc, gen, logger)
	sh := handler.NewSchedulerHandler(svc, sched, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Drafts
		r.Post("/drafts", dh.Create)
		r.Get("/drafts", dh.List)
		r.Get("/drafts/{id}", dh.GetByID)
		r.Get("/drafts/{id}/deliveries", dh.GetDeliveries)
		r.Post("/drafts/{id}/approve", dh.Approve)
		r.Post("/drafts/{id}/reject", dh.Reject)
		r.Post("/drafts/{id}/error", dh.MarkError)
		r.Post("/drafts/{id}/dispatch", dh.Dispatch)

		// Batches — note: /generate must be registered before /{id}
		// so chi does not treat the literal string "generate" as an ID.
		r.Post("/batches/generate", bh.Generate)
		r.Get("/batches", bh.List)
		r.Get("/batches/{id}", bh.GetByID)
		r.Post("/batches/{id}/lock", bh.Lock)
		r.Post("/batches/{id}/close", bh.Close)
		r.Post("/batches/{id}/dispatch-approved", bh.DispatchApproved)

		// Scheduler control surface
		r.Get("/scheduler/status", sh.Status)
		r.Get("/scheduler/rules", sh.Rules)
		r.Post("/scheduler/run", sh.Run)
		r.Post("/scheduler/run/{channel}", sh.RunChannel)
		r.Get("/scheduler/executions", sh.Executions)
		r.Get("/scheduler/errors", sh.Errors)
		r.Post("/scheduler/errors/{deliveryID}/retry", sh.Retry)
	})

	return r
}
