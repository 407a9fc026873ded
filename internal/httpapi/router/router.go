// Package router assembles the settlement engine's chi router: the
// middleware chain followed by the ingestion, query, workflow, recalculate,
// and health routes (C11, §6 HTTP API).
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/httpapi/handler"
	engwmw "github.com/colinzhu/limit-monitoring-sub001/internal/httpapi/middleware"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/query"
)

// Ingestor accepts a validated settlement request and returns its
// server-assigned ref_id.
type Ingestor interface {
	ProcessSettlement(ctx context.Context, req domain.SettlementRequest) (int64, error)
}

// Dependencies bundles everything the router needs to mount routes. Every
// field is already wired by cmd/server/main.go.
type Dependencies struct {
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Ingestor     Ingestor
	Query        *query.API
	Workflow     handler.WorkflowActions
	Recalculator handler.Recalculator
	MaxBodyBytes int64
	AdminAPIKey  string
}

// New builds the fully configured router.
func New(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(engwmw.CORS)
	r.Use(engwmw.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(engwmw.RequestLogger(deps.Logger))
	r.Use(engwmw.MaxBodySize(deps.MaxBodyBytes))

	r.Get("/health", handler.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	settlementHandler := handler.NewSettlementHandler(
		func(r *http.Request, req domain.SettlementRequest) (int64, error) {
			return deps.Ingestor.ProcessSettlement(r.Context(), req)
		},
		deps.Query,
	)
	workflowHandler := handler.NewWorkflowHandler(deps.Workflow)
	recalculateHandler := handler.NewRecalculateHandler(deps.Recalculator)

	r.Route("/api", func(r chi.Router) {
		r.Post("/settlements", settlementHandler.Ingest)
		r.Get("/settlements", settlementHandler.Search)
		r.Get("/settlements/{id}", settlementHandler.Get)
		r.With(engwmw.AdminOnly(deps.AdminAPIKey)).Post("/recalculate", recalculateHandler.Recalculate)
		r.Post("/workflow/request-release", workflowHandler.RequestRelease)
		r.Post("/workflow/authorize", workflowHandler.Authorize)
		r.Post("/workflow/reject", workflowHandler.Reject)
	})

	return r
}
