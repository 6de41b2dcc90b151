package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"salesiq/internal/agent"
	"salesiq/internal/config"
	"salesiq/internal/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Dataset: config.DatasetConfig{CSVFile: "sales_data.csv"},
		Analytics: config.AnalyticsConfig{
			ForecastPeriods:  12,
			AnomalyThreshold: 3.0,
			TopProducts:      20,
		},
	}
}

func testRows() []dataset.Row {
	var rows []dataset.Row
	for m := 1; m <= 6; m++ {
		date := time.Date(2023, time.Month(m), 10, 0, 0, 0, 0, time.UTC)
		rows = append(rows,
			dataset.Row{
				OrderID: "A" + string(rune('0'+m)), OrderDate: date, ShipDate: date.AddDate(0, 0, 3),
				CustomerID: "C1", ProductID: "P1", ProductName: "Laptop",
				Category: "Technology", Segment: "Consumer", Region: "East", Country: "United States",
				Sales: float64(100 * m), Quantity: 2, Discount: 0.1, Profit: float64(20 * m), ShippingCost: 5,
			},
			dataset.Row{
				OrderID: "B" + string(rune('0'+m)), OrderDate: date, ShipDate: date.AddDate(0, 0, 5),
				CustomerID: "C2", ProductID: "P2", ProductName: "Chair",
				Category: "Furniture", Segment: "Corporate", Region: "West", Country: "Canada",
				Sales: 150, Quantity: 1, Discount: 0.2, Profit: 15, ShippingCost: 10,
			},
		)
	}
	return rows
}

func newTestHandlers(store *dataset.Store, cfg *config.Config) *APIHandlers {
	logger := testLogger()
	loader := dataset.NewLoader(logger)
	queryAgent := agent.New(store, logger)
	return NewAPIHandlers(store, loader, queryAgent, cfg, logger)
}

func loadedHandlers() *APIHandlers {
	return newTestHandlers(dataset.NewStore(dataset.NewTable(testRows())), testConfig())
}

func emptyHandlers() *APIHandlers {
	return newTestHandlers(dataset.NewStore(nil), testConfig())
}

// envelope is the JSON wrapper every endpoint responds with.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, target string, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v\n%s", err, rec.Body.String())
	}
	return rec, env
}

func TestHandleHealth(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleHealth, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var health struct {
		Status     string `json:"status"`
		DataLoaded bool   `json:"data_loaded"`
		RowCount   int    `json:"row_count"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || !health.DataLoaded || health.RowCount != 12 {
		t.Errorf("health = %+v", health)
	}
}

func TestHandleHealth_NoDataset(t *testing.T) {
	rec, env := doRequest(t, emptyHandlers().HandleHealth, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health must stay 200 without data, got %d", rec.Code)
	}
	var health struct {
		DataLoaded bool `json:"data_loaded"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.DataLoaded {
		t.Error("DataLoaded should be false before the first load")
	}
}

func TestHandleStats(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleStats, http.MethodGet, "/admin/stats", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var meta struct {
		TotalRows int `json:"total_rows"`
		Customers int `json:"customers"`
	}
	if err := json.Unmarshal(env.Data, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.TotalRows != 12 || meta.Customers != 2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestHandleSummary_NoDataset(t *testing.T) {
	rec, env := doRequest(t, emptyHandlers().HandleSummary, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if env.Success || env.Error == nil || env.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHandleSummary(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleSummary, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var summary struct {
		Overview struct {
			TotalSales  float64 `json:"total_sales"`
			TotalOrders int     `json:"total_orders"`
		} `json:"overview"`
	}
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Overview.TotalOrders != 12 {
		t.Errorf("TotalOrders = %d, want 12", summary.Overview.TotalOrders)
	}
	if summary.Overview.TotalSales != 3000 {
		t.Errorf("TotalSales = %v, want 3000", summary.Overview.TotalSales)
	}
}

func TestHandleQuery(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleQuery, http.MethodPost, "/api/query",
		`{"query": "show me the sales summary"}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var resp struct {
		Answer        string   `json:"answer"`
		AnalyticsType string   `json:"analytics_type"`
		ToolsUsed     []string `json:"tools_used"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer == "" || resp.AnalyticsType != "descriptive" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.ToolsUsed) == 0 {
		t.Error("expected at least one tool used")
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleQuery, http.MethodPost, "/api/query", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Success || env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleQuery, http.MethodPost, "/api/query", `{"query": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHandleAnomalies(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleAnomalies, http.MethodGet,
		"/api/anomalies?metric=Profit&method=iqr&threshold=2.5", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var result struct {
		Metric    string  `json:"metric"`
		Method    string  `json:"method"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Metric != "Profit" || result.Method != "iqr" || result.Threshold != 2.5 {
		t.Errorf("params not honored: %+v", result)
	}
}

func TestHandleVariance_UnknownDimension(t *testing.T) {
	// An unavailable analysis degrades to a zero-valued payload, not an error.
	rec, env := doRequest(t, loadedHandlers().HandleVariance, http.MethodGet,
		"/api/variance?dimension=Planet", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.Success {
		t.Errorf("envelope = %+v, want success with empty payload", env)
	}
}

func TestHandleRootCause(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleRootCause, http.MethodGet,
		"/api/root-cause?metric=Sales", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var result struct {
		ContributingFactors []struct {
			Factor string `json:"factor"`
		} `json:"contributing_factors"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.ContributingFactors) != 2 {
		t.Errorf("contributing factors = %d, want 2", len(result.ContributingFactors))
	}
}

func TestHandleProducts(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleProducts, http.MethodGet, "/api/products?n=1", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var result struct {
		TopProducts []struct {
			ProductName string `json:"product_name"`
		} `json:"top_products"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.TopProducts) != 1 || result.TopProducts[0].ProductName != "Laptop" {
		t.Errorf("top products = %+v", result.TopProducts)
	}
}

func TestHandleForecast(t *testing.T) {
	rec, env := doRequest(t, loadedHandlers().HandleForecast, http.MethodPost, "/api/forecast",
		`{"periods": 4, "frequency": "M"}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var result struct {
		Forecasts []struct {
			Date string `json:"date"`
		} `json:"forecasts"`
		Periods int `json:"periods"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Periods != 4 || len(result.Forecasts) != 4 {
		t.Errorf("forecast = %+v", result)
	}
}

func TestHandleForecast_Defaults(t *testing.T) {
	_, env := doRequest(t, loadedHandlers().HandleForecast, http.MethodPost, "/api/forecast", `{}`)
	var result struct {
		Periods   int    `json:"periods"`
		Frequency string `json:"frequency"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Periods != 12 || result.Frequency != "M" {
		t.Errorf("defaults = %+v, want 12 periods monthly", result)
	}
}

func TestHandleReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	csv := "Order ID,Order Date,Ship Date,Customer ID,Product ID,Product Name,Category,Segment,Region,Country,Sales,Quantity,Discount,Profit,Shipping Cost\n" +
		"O1,2023-01-15,2023-01-18,C9,P9,Monitor,Technology,Consumer,East,United States,500,1,0,100,10\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := testConfig()
	cfg.Dataset.CSVFile = path
	store := dataset.NewStore(dataset.NewTable(testRows()))
	h := newTestHandlers(store, cfg)

	rec, env := doRequest(t, h.HandleReload, http.MethodPost, "/api/data/reload", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	var result struct {
		Rows     int `json:"rows"`
		PrevRows int `json:"previous_rows"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Rows != 1 || result.PrevRows != 12 {
		t.Errorf("reload = %+v", result)
	}
	if store.Table().Len() != 1 {
		t.Errorf("store rows = %d after reload, want 1", store.Table().Len())
	}
}

func TestHandleReload_FailureKeepsOldTable(t *testing.T) {
	cfg := testConfig()
	cfg.Dataset.CSVFile = filepath.Join(t.TempDir(), "absent.csv")
	store := dataset.NewStore(dataset.NewTable(testRows()))
	h := newTestHandlers(store, cfg)

	rec, env := doRequest(t, h.HandleReload, http.MethodPost, "/api/data/reload", "")
	if rec.Code != http.StatusInternalServerError || env.Success {
		t.Fatalf("status = %d, success = %v", rec.Code, env.Success)
	}
	if store.Table().Len() != 12 {
		t.Errorf("failed reload must not touch the store: rows = %d", store.Table().Len())
	}
}
