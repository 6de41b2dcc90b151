// Package agent routes natural-language questions about the sales dataset to
// the analytics engines. Routing is a deterministic keyword table: the query
// is classified into an analytics family, matching tools run against the
// current table snapshot, and the answer is assembled from their summaries.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"salesiq/internal/analytics"
	"salesiq/internal/dataset"
)

// Response is the assembled answer for one query. Data carries each tool's
// structured result keyed by tool name.
type Response struct {
	Answer          string         `json:"answer"`
	AnalyticsType   string         `json:"analytics_type"`
	ToolsUsed       []string       `json:"tools_used"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	Data            map[string]any `json:"data,omitempty"`
	ExecutionTime   float64        `json:"execution_time"`
}

// At most this many tools contribute to one answer.
const maxToolsPerQuery = 3

type Agent struct {
	store  *dataset.Store
	logger *slog.Logger
	tools  []Tool
	now    func() time.Time
}

type Option func(*Agent)

// WithClock overrides the wall clock used for execution timing and passed
// through to the recency-based engines.
func WithClock(clock func() time.Time) Option {
	return func(a *Agent) { a.now = clock }
}

func New(store *dataset.Store, logger *slog.Logger, opts ...Option) *Agent {
	a := &Agent{
		store:  store,
		logger: logger,
		tools:  registry(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tools lists the registered tools.
func (a *Agent) Tools() []Tool {
	out := make([]Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// Answer classifies the query, runs the matching tools against the current
// table snapshot and assembles their summaries. A query that matches no tool
// falls back to the sales summary rather than failing.
func (a *Agent) Answer(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, errors.New("empty query")
	}

	start := a.now()
	table := a.store.Table()
	if table == nil || table.Len() == 0 {
		return Response{}, errors.New("no dataset loaded")
	}

	e := &engines{
		descriptive:  analytics.NewDescriptive(table, a.logger),
		diagnostic:   analytics.NewDiagnostic(table, a.logger),
		predictive:   analytics.NewPredictive(table, a.logger, analytics.WithPredictiveClock(a.now)),
		prescriptive: analytics.NewPrescriptive(table, a.logger, analytics.WithPrescriptiveClock(a.now)),
	}

	family := Classify(query)
	selected := a.selectTools(strings.ToLower(query), family)

	var (
		summaries       []string
		insights        []string
		recommendations []string
		used            []string
	)
	data := make(map[string]any, len(selected))
	for _, tool := range selected {
		out, err := tool.run(ctx, e, strings.ToLower(query))
		if err != nil {
			var ua *analytics.UnavailableError
			if errors.As(err, &ua) {
				a.logger.Warn("tool skipped", "tool", tool.Name, "analysis", ua.Analysis, "error", err)
				continue
			}
			return Response{}, err
		}
		used = append(used, tool.Name)
		summaries = append(summaries, out.summary)
		insights = append(insights, out.insights...)
		recommendations = append(recommendations, out.recommendations...)
		if out.payload != nil {
			data[tool.Name] = out.payload
		}
	}
	if len(summaries) == 0 {
		return Response{}, errors.New("no analysis produced a result")
	}

	elapsed := a.now().Sub(start).Seconds()
	return Response{
		Answer:          strings.Join(summaries, " "),
		AnalyticsType:   family,
		ToolsUsed:       used,
		Insights:        insights,
		Recommendations: recommendations,
		Data:            analytics.Clean(data).(map[string]any),
		ExecutionTime:   math.Round(elapsed*100) / 100,
	}, nil
}

// selectTools picks tools whose keywords match, preferring the classified
// family, then falls back to the sales summary when nothing matches.
func (a *Agent) selectTools(query, family string) []Tool {
	var inFamily, outOfFamily []Tool
	for _, t := range a.tools {
		if !t.matches(query) {
			continue
		}
		if t.Family == family {
			inFamily = append(inFamily, t)
		} else {
			outOfFamily = append(outOfFamily, t)
		}
	}

	selected := append(inFamily, outOfFamily...)
	if len(selected) > maxToolsPerQuery {
		selected = selected[:maxToolsPerQuery]
	}
	if len(selected) == 0 {
		selected = []Tool{a.tools[0]} // get_sales_summary
	}
	return selected
}
