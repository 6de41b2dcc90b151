package handlers

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"salesiq/internal/agent"
	"salesiq/internal/analytics"
	"salesiq/internal/config"
	"salesiq/internal/dataset"
	"salesiq/internal/errors"
	"salesiq/internal/models"
	"salesiq/internal/observability"
)

const apiVersion = "1.0.0"

// APIHandlers serves the analytics endpoints. Every request reads one table
// snapshot from the store, so a concurrent reload never changes the data
// mid-computation.
type APIHandlers struct {
	store  *dataset.Store
	loader *dataset.Loader
	agent  *agent.Agent
	cfg    *config.Config
	logger *slog.Logger
}

func NewAPIHandlers(store *dataset.Store, loader *dataset.Loader, queryAgent *agent.Agent, cfg *config.Config, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		store:  store,
		loader: loader,
		agent:  queryAgent,
		cfg:    cfg,
		logger: logger,
	}
}

// table returns the current snapshot, or nil plus a written 503 when no
// dataset is loaded.
func (h *APIHandlers) table(w http.ResponseWriter, r *http.Request) *dataset.Table {
	t := h.store.Table()
	if t == nil || t.Len() == 0 {
		requestID := observability.GetRequestID(r.Context())
		errors.WriteError(w, h.logger, errors.ServiceUnavailable("No dataset loaded"), requestID)
		return nil
	}
	return t
}

// writeAnalysis sends the result unless the analysis reported itself
// unavailable, in which case the zero-valued payload still goes out with a
// warning in the log. Anything else is a real failure.
func (h *APIHandlers) writeAnalysis(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		var ua *analytics.UnavailableError
		if !stderrors.As(err, &ua) {
			requestID := observability.GetRequestID(r.Context())
			errors.WriteError(w, h.logger, err, requestID)
			return
		}
		h.logger.Warn("analysis unavailable",
			"analysis", ua.Analysis,
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
	}
	errors.WriteSuccess(w, data)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func queryString(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	t := h.store.Table()
	health := models.HealthResponse{
		Status:     "healthy",
		Version:    apiVersion,
		DataLoaded: t != nil && t.Len() > 0,
	}
	if t != nil {
		health.RowCount = t.Len()
	}
	errors.WriteSuccess(w, health)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	errors.WriteSuccess(w, t.Metadata())
}

func (h *APIHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Invalid request body"), requestID)
		return
	}
	if req.Query == "" {
		errors.WriteError(w, h.logger, errors.Validation("Query cannot be empty"), requestID)
		return
	}

	resp, err := h.agent.Answer(r.Context(), req.Query)
	if err != nil {
		errors.WriteError(w, h.logger, errors.InternalWrap(err, "Query processing failed"), requestID)
		return
	}
	errors.WriteSuccess(w, resp)
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDescriptive(t, h.logger).Summary()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	metric := queryString(r, "metric", "Sales")
	frequency := queryString(r, "frequency", "M")
	data, err := analytics.NewDescriptive(t, h.logger).TimeSeries(metric, frequency)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDescriptive(t, h.logger).ByCategory()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleRegions(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDescriptive(t, h.logger).ByRegion()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleSegments(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDescriptive(t, h.logger).BySegment()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	n := queryInt(r, "n", h.cfg.Analytics.TopProducts)
	data, err := analytics.NewDescriptive(t, h.logger).TopProducts(n)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	metric := queryString(r, "metric", "Sales")
	method := queryString(r, "method", "zscore")
	threshold := queryFloat(r, "threshold", h.cfg.Analytics.AnomalyThreshold)
	data, err := analytics.NewDiagnostic(t, h.logger).FindAnomalies(metric, method, threshold)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleCorrelations(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDiagnostic(t, h.logger).Correlations(nil)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleVariance(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	dimension := queryString(r, "dimension", "Category")
	metric := queryString(r, "metric", "Sales")
	data, err := analytics.NewDiagnostic(t, h.logger).VarianceAnalysis(dimension, metric)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleSeasonality(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	metric := queryString(r, "metric", "Sales")
	data, err := analytics.NewDiagnostic(t, h.logger).Seasonality(metric)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleDiscountImpact(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDiagnostic(t, h.logger).DiscountImpact()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleCustomerBehavior(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewDiagnostic(t, h.logger).CustomerBehavior()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleRootCause(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	metric := queryString(r, "metric", "Sales")
	period := queryString(r, "period", "")
	data, err := analytics.NewDiagnostic(t, h.logger).RootCause(metric, period)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	requestID := observability.GetRequestID(r.Context())

	var req models.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Invalid request body"), requestID)
		return
	}
	if req.Periods <= 0 {
		req.Periods = h.cfg.Analytics.ForecastPeriods
	}
	if req.Frequency == "" {
		req.Frequency = "M"
	}
	data, err := analytics.NewPredictive(t, h.logger).ForecastSales(req.Periods, req.Frequency)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleChurn(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPredictive(t, h.logger).PredictCustomerChurn()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleDemand(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPredictive(t, h.logger).PredictProductDemand(r.URL.Query().Get("category"))
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	months := queryInt(r, "months", 3)
	data, err := analytics.NewPredictive(t, h.logger).PredictRevenue(months)
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPredictive(t, h.logger).IdentifyGrowthOpportunities()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleInventory(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).OptimizeInventory()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandlePricing(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).OptimizePricing()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleMarketing(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).OptimizeMarketingSpend()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleRetention(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).RecommendRetentionStrategy()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleBundles(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).RecommendProductBundle()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleActionPlan(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	data, err := analytics.NewPrescriptive(t, h.logger).GenerateActionPlan()
	h.writeAnalysis(w, r, data, err)
}

func (h *APIHandlers) HandleDescriptiveReport(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	errors.WriteSuccess(w, analytics.NewDescriptive(t, h.logger).Report(r.Context()))
}

func (h *APIHandlers) HandleDiagnosticReport(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	errors.WriteSuccess(w, analytics.NewDiagnostic(t, h.logger).Report(r.Context()))
}

func (h *APIHandlers) HandlePredictiveReport(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	errors.WriteSuccess(w, analytics.NewPredictive(t, h.logger).Report(r.Context()))
}

func (h *APIHandlers) HandlePrescriptiveReport(w http.ResponseWriter, r *http.Request) {
	t := h.table(w, r)
	if t == nil {
		return
	}
	errors.WriteSuccess(w, analytics.NewPrescriptive(t, h.logger).Report(r.Context()))
}

// HandleReload reparses the CSV and swaps the store only on success; a
// failed parse leaves the previous table serving.
func (h *APIHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	prev := 0
	if t := h.store.Table(); t != nil {
		prev = t.Len()
	}

	table, err := h.loader.Load(r.Context(), h.cfg.Dataset.CSVFile)
	if err != nil {
		errors.WriteError(w, h.logger, errors.InternalWrap(err, "Dataset reload failed"), requestID)
		return
	}
	h.store.Swap(table)
	skipped := h.loader.Skipped()

	h.logger.Info("dataset reloaded",
		"rows", table.Len(),
		"skipped", skipped,
		"previous_rows", prev,
		"request_id", requestID,
	)
	errors.WriteSuccess(w, models.ReloadResponse{
		Rows:     table.Len(),
		Skipped:  skipped,
		PrevRows: prev,
	})
}
