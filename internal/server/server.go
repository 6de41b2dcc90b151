package server

import (
	"log/slog"
	"net/http"

	"salesiq/internal/agent"
	"salesiq/internal/config"
	"salesiq/internal/dataset"
	"salesiq/internal/handlers"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
}

func NewServer(store *dataset.Store, loader *dataset.Loader, queryAgent *agent.Agent, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(store, loader, queryAgent, cfg, logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// Agent
	s.mux.HandleFunc("POST /api/query", s.apiHandlers.HandleQuery)

	// Descriptive
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/time-series", s.apiHandlers.HandleTimeSeries)
	s.mux.HandleFunc("GET /api/categories", s.apiHandlers.HandleCategories)
	s.mux.HandleFunc("GET /api/regions", s.apiHandlers.HandleRegions)
	s.mux.HandleFunc("GET /api/segments", s.apiHandlers.HandleSegments)
	s.mux.HandleFunc("GET /api/products", s.apiHandlers.HandleProducts)

	// Diagnostic
	s.mux.HandleFunc("GET /api/anomalies", s.apiHandlers.HandleAnomalies)
	s.mux.HandleFunc("GET /api/correlations", s.apiHandlers.HandleCorrelations)
	s.mux.HandleFunc("GET /api/variance", s.apiHandlers.HandleVariance)
	s.mux.HandleFunc("GET /api/seasonality", s.apiHandlers.HandleSeasonality)
	s.mux.HandleFunc("GET /api/discount-impact", s.apiHandlers.HandleDiscountImpact)
	s.mux.HandleFunc("GET /api/customer-behavior", s.apiHandlers.HandleCustomerBehavior)
	s.mux.HandleFunc("GET /api/root-cause", s.apiHandlers.HandleRootCause)

	// Predictive
	s.mux.HandleFunc("POST /api/forecast", s.apiHandlers.HandleForecast)
	s.mux.HandleFunc("GET /api/churn", s.apiHandlers.HandleChurn)
	s.mux.HandleFunc("GET /api/demand", s.apiHandlers.HandleDemand)
	s.mux.HandleFunc("GET /api/revenue", s.apiHandlers.HandleRevenue)
	s.mux.HandleFunc("GET /api/opportunities", s.apiHandlers.HandleOpportunities)

	// Prescriptive
	s.mux.HandleFunc("GET /api/inventory", s.apiHandlers.HandleInventory)
	s.mux.HandleFunc("GET /api/pricing", s.apiHandlers.HandlePricing)
	s.mux.HandleFunc("GET /api/marketing", s.apiHandlers.HandleMarketing)
	s.mux.HandleFunc("GET /api/retention", s.apiHandlers.HandleRetention)
	s.mux.HandleFunc("GET /api/bundles", s.apiHandlers.HandleBundles)
	s.mux.HandleFunc("GET /api/action-plan", s.apiHandlers.HandleActionPlan)

	// Per-family reports
	s.mux.HandleFunc("GET /api/analytics/descriptive", s.apiHandlers.HandleDescriptiveReport)
	s.mux.HandleFunc("GET /api/analytics/diagnostic", s.apiHandlers.HandleDiagnosticReport)
	s.mux.HandleFunc("GET /api/analytics/predictive", s.apiHandlers.HandlePredictiveReport)
	s.mux.HandleFunc("GET /api/analytics/prescriptive", s.apiHandlers.HandlePrescriptiveReport)

	// Admin
	s.mux.HandleFunc("POST /api/data/reload", s.apiHandlers.HandleReload)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
