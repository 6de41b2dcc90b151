package models

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

// ForecastRequest is the body of POST /api/forecast.
type ForecastRequest struct {
	Periods   int    `json:"periods"`
	Frequency string `json:"frequency"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	DataLoaded bool   `json:"data_loaded"`
	RowCount   int    `json:"row_count"`
}

// ReloadResponse is the body of POST /api/data/reload.
type ReloadResponse struct {
	Rows     int `json:"rows"`
	Skipped  int `json:"skipped_rows"`
	PrevRows int `json:"previous_rows"`
}
