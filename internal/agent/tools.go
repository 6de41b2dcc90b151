package agent

import (
	"context"
	"fmt"
	"strings"

	"salesiq/internal/analytics"
)

// engines bundles the four analytics engines built against one table
// snapshot, so every tool in a single query run sees the same data.
type engines struct {
	descriptive  *analytics.Descriptive
	diagnostic   *analytics.Diagnostic
	predictive   *analytics.Predictive
	prescriptive *analytics.Prescriptive
}

// toolOutput is what a tool contributes to the assembled answer. Insights
// and recommendations are produced by rules over the computed values, never
// by scanning the summary text.
type toolOutput struct {
	summary         string
	insights        []string
	recommendations []string
	payload         any
}

// Tool is one registered analysis a query can trigger.
type Tool struct {
	Name        string
	Description string
	Family      string
	keywords    []string
	run         func(ctx context.Context, e *engines, q string) (toolOutput, error)
}

func (t Tool) matches(query string) bool {
	for _, kw := range t.keywords {
		if strings.Contains(query, kw) {
			return true
		}
	}
	return false
}

// queryFrequency maps cadence words in the query onto a resample frequency.
func queryFrequency(q string) string {
	switch {
	case strings.Contains(q, "daily"):
		return "D"
	case strings.Contains(q, "weekly"):
		return "W"
	case strings.Contains(q, "quarterly"):
		return "Q"
	case strings.Contains(q, "yearly"), strings.Contains(q, "annual"):
		return "Y"
	default:
		return "M"
	}
}

func registry() []Tool {
	return []Tool{
		{
			Name:        "get_sales_summary",
			Description: "Comprehensive summary of sales, profit, orders and key metrics",
			Family:      FamilyDescriptive,
			keywords:    []string{"summary", "overview", "total", "how much", "performance"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				s, err := e.descriptive.Summary()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf(
						"Total sales are %.2f with %.2f profit (%.1f%% margin) across %d orders from %d customers; average order value is %.2f.",
						s.Overview.TotalSales, s.Overview.TotalProfit, s.Overview.ProfitMargin,
						s.Overview.TotalOrders, s.Overview.TotalCustomers, s.Overview.AvgOrderValue),
					payload: s,
				}
				if s.Overview.ProfitMargin < 10 {
					out.insights = append(out.insights,
						fmt.Sprintf("Overall profit margin is thin at %.1f%%", s.Overview.ProfitMargin))
					out.recommendations = append(out.recommendations,
						"Review cost structure and discount policy to lift overall margin")
				}
				return out, nil
			},
		},
		{
			Name:        "analyze_time_trends",
			Description: "Time series trend of a metric at a chosen frequency",
			Family:      FamilyDescriptive,
			keywords:    []string{"trend", "over time", "time series", "monthly", "growth"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ts, err := e.descriptive.TimeSeries("Sales", queryFrequency(q))
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf(
						"Sales show a %s trend with %.2f%% average growth; the peak period was %s and the lowest %s.",
						ts.Trend, ts.AverageGrowthRate, ts.PeakPeriod, ts.LowestPeriod),
					payload: ts,
				}
				switch ts.Trend {
				case "decreasing":
					out.insights = append(out.insights, "Sales are on a declining trajectory")
					out.recommendations = append(out.recommendations,
						"Investigate the decline drivers before committing next-period targets")
				case "increasing":
					out.insights = append(out.insights, "Sales are on a rising trajectory")
				}
				return out, nil
			},
		},
		{
			Name:        "analyze_by_category",
			Description: "Sales performance by product category",
			Family:      FamilyDescriptive,
			keywords:    []string{"category", "categories"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ca, err := e.descriptive.ByCategory()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("%s leads %d categories by total sales.", ca.TopCategory, ca.TotalCategories),
					payload: ca,
				}
				for _, c := range ca.Categories {
					if c.ProfitMargin < 0 {
						out.insights = append(out.insights,
							fmt.Sprintf("%s is unprofitable at %.1f%% margin", c.Category, c.ProfitMargin))
						out.recommendations = append(out.recommendations,
							fmt.Sprintf("Reassess pricing and discounts in %s", c.Category))
					}
				}
				return out, nil
			},
		},
		{
			Name:        "analyze_by_region",
			Description: "Sales performance by geographic region",
			Family:      FamilyDescriptive,
			keywords:    []string{"region", "regions", "geographic", "country", "where"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ra, err := e.descriptive.ByRegion()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("%s leads %d regions by total sales.", ra.TopRegion, ra.TotalRegions),
					payload: ra,
				}
				if n := len(ra.Regions); n >= 2 {
					top, bottom := ra.Regions[0], ra.Regions[n-1]
					if bottom.TotalSales > 0 && top.TotalSales/bottom.TotalSales > 5 {
						out.insights = append(out.insights,
							fmt.Sprintf("Sales are heavily concentrated: %s outsells %s more than 5x", top.Region, bottom.Region))
					}
				}
				return out, nil
			},
		},
		{
			Name:        "detect_anomalies",
			Description: "Outlier detection on a sales metric",
			Family:      FamilyDiagnostic,
			keywords:    []string{"anomaly", "anomalies", "outlier", "unusual", "spike"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ar, err := e.diagnostic.FindAnomalies("Sales", "zscore", 3)
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Found %d anomalous orders (%.2f%% of the dataset).",
						ar.TotalAnomalies, ar.AnomalyPercentage),
					payload: ar,
				}
				if ar.AnomalyPercentage > 5 {
					out.insights = append(out.insights,
						fmt.Sprintf("Anomaly rate of %.2f%% is unusually high", ar.AnomalyPercentage))
					out.recommendations = append(out.recommendations,
						"Audit the flagged orders for data-entry or fulfillment issues")
				}
				return out, nil
			},
		},
		{
			Name:        "analyze_correlations",
			Description: "Pairwise relationships between sales metrics",
			Family:      FamilyDiagnostic,
			keywords:    []string{"correlation", "correlate", "relationship", "related"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				cr, err := e.diagnostic.Correlations(nil)
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Analyzed %d metrics; %d strong correlations found.",
						len(cr.MetricsAnalyzed), len(cr.StrongCorrelations)),
					payload: cr,
				}
				for _, p := range cr.StrongCorrelations {
					out.insights = append(out.insights,
						fmt.Sprintf("%s and %s are %s correlated (r=%.2f)", p.Metric1, p.Metric2, p.Strength, p.Correlation))
					if p.Metric1 == "Discount" || p.Metric2 == "Discount" {
						if p.Correlation < 0 {
							out.recommendations = append(out.recommendations,
								"Discounting correlates negatively; tighten discount policy")
						}
					}
				}
				return out, nil
			},
		},
		{
			Name:        "analyze_discount_impact",
			Description: "Effect of discount levels on sales and profitability",
			Family:      FamilyDiagnostic,
			keywords:    []string{"discount", "discounts", "markdown"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				di, err := e.diagnostic.DiscountImpact()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: di.Recommendation + ".",
					payload: di,
				}
				for _, b := range di.DiscountImpact {
					if b.ProfitMargin < 0 {
						out.insights = append(out.insights,
							fmt.Sprintf("The %s discount band loses money (%.1f%% margin)", b.Bin, b.ProfitMargin))
						out.recommendations = append(out.recommendations,
							fmt.Sprintf("Phase out discounts in the %s band", b.Bin))
					}
				}
				return out, nil
			},
		},
		{
			Name:        "forecast_sales",
			Description: "Forecast of future sales periods",
			Family:      FamilyPredictive,
			keywords:    []string{"forecast", "project", "next month", "next quarter", "next year"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				fr, err := e.predictive.ForecastSales(12, queryFrequency(q))
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("The %d-period forecast shows an %s trend (model fit R²=%.2f).",
						fr.Periods, fr.Trend, fr.ModelScore),
					payload: fr,
				}
				if fr.Trend == "decreasing" {
					out.insights = append(out.insights, "Projected sales decline over the forecast horizon")
					out.recommendations = append(out.recommendations,
						"Plan demand-generation activity to counter the projected decline")
				}
				if fr.ModelScore < 0.3 && len(fr.Forecasts) > 0 {
					out.insights = append(out.insights,
						fmt.Sprintf("Forecast confidence is low (R²=%.2f); treat the band, not the line", fr.ModelScore))
				}
				return out, nil
			},
		},
		{
			Name:        "predict_customer_churn",
			Description: "Customers at risk of churning by purchase recency",
			Family:      FamilyPredictive,
			keywords:    []string{"churn", "at risk", "losing customers", "lapse"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				cr, err := e.predictive.PredictCustomerChurn()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("%d of %d customers (%.1f%%) are at high churn risk.",
						cr.ChurnSummary["High"], cr.TotalCustomers, cr.ChurnRate),
					payload: cr,
				}
				if cr.ChurnRate > 20 {
					out.insights = append(out.insights,
						fmt.Sprintf("Churn risk is elevated at %.1f%%", cr.ChurnRate))
					out.recommendations = append(out.recommendations,
						"Prioritize win-back outreach to the highest-value at-risk customers")
				}
				return out, nil
			},
		},
		{
			Name:        "identify_growth_opportunities",
			Description: "Growth opportunities in categories and regions",
			Family:      FamilyPredictive,
			keywords:    []string{"opportunity", "opportunities", "grow", "expand", "potential"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				or, err := e.predictive.IdentifyGrowthOpportunities()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Identified %d growth opportunities across categories and regions.",
						or.TotalOpportunities),
					payload: or,
				}
				for _, o := range or.Opportunities {
					if o.Type == "Category" && o.GrowthRate > 0 {
						out.insights = append(out.insights,
							fmt.Sprintf("%s is growing at %.1f%% year over year", o.Name, o.GrowthRate))
					}
					if o.Recommendation != "" {
						out.recommendations = append(out.recommendations, o.Recommendation)
					}
				}
				return out, nil
			},
		},
		{
			Name:        "optimize_pricing",
			Description: "Pricing recommendations from category margin posture",
			Family:      FamilyPrescriptive,
			keywords:    []string{"pricing", "price", "margin"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				pr, err := e.prescriptive.OptimizePricing()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Reviewed pricing posture for %d categories.", pr.TotalCategories),
					payload: pr,
				}
				for _, r := range pr.Recommendations {
					if r.Action != "Maintain Current Strategy" {
						out.recommendations = append(out.recommendations,
							fmt.Sprintf("%s: %s (%s)", r.Category, r.Action, r.Rationale))
					}
				}
				return out, nil
			},
		},
		{
			Name:        "optimize_inventory",
			Description: "Stocking recommendations from sales velocity",
			Family:      FamilyPrescriptive,
			keywords:    []string{"inventory", "stock", "stocking", "restock"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ir, err := e.prescriptive.OptimizeInventory()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Classified %d products: %d to increase, %d to reduce.",
						ir.TotalProducts, ir.Summary["Increase Stock"], ir.Summary["Reduce Stock"]),
					payload: ir,
				}
				for _, p := range ir.PriorityActions {
					out.recommendations = append(out.recommendations,
						fmt.Sprintf("Increase stock of %s (velocity %.2f/day)", p.ProductName, p.DailyVelocity))
					if len(out.recommendations) == 3 {
						break
					}
				}
				return out, nil
			},
		},
		{
			Name:        "recommend_marketing_strategy",
			Description: "Marketing budget allocation by regional ROI",
			Family:      FamilyPrescriptive,
			keywords:    []string{"marketing", "budget", "advertising", "spend", "campaign"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				mr, err := e.prescriptive.OptimizeMarketingSpend()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("%s delivers the highest marketing ROI across %d regions.",
						mr.TopRegion, len(mr.Allocations)),
					payload: mr,
				}
				for _, a := range mr.Allocations {
					if a.Priority == "High" {
						out.recommendations = append(out.recommendations,
							fmt.Sprintf("Allocate %.1f%% of budget to %s", a.BudgetAllocation, a.Region))
					}
				}
				return out, nil
			},
		},
		{
			Name:        "recommend_retention_strategy",
			Description: "Retention playbook from customer segmentation",
			Family:      FamilyPrescriptive,
			keywords:    []string{"retention", "retain", "loyalty", "keep customers"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				rr, err := e.prescriptive.RecommendRetentionStrategy()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Segmented %d customers into %d retention groups.",
						rr.TotalCustomers, len(rr.Segments)),
					payload: rr,
				}
				for _, s := range rr.Segments {
					for _, p := range rr.PrioritySegments {
						if s.Segment == p && s.CustomerCount > 0 {
							out.insights = append(out.insights,
								fmt.Sprintf("%d customers in the %s segment hold %.2f in historical sales",
									s.CustomerCount, s.Segment, s.TotalSales))
							out.recommendations = append(out.recommendations, s.Strategy+": "+s.Actions[0])
						}
					}
				}
				return out, nil
			},
		},
		{
			Name:        "get_action_plan",
			Description: "Prioritized operational action plan",
			Family:      FamilyPrescriptive,
			keywords:    []string{"action plan", "plan", "what should we do", "priorities"},
			run: func(ctx context.Context, e *engines, q string) (toolOutput, error) {
				ap, err := e.prescriptive.GenerateActionPlan()
				if err != nil {
					return toolOutput{}, err
				}
				out := toolOutput{
					summary: fmt.Sprintf("Prepared a %s action plan with %d prioritized items.",
						ap.Horizon, len(ap.ActionPlan)),
					payload: ap,
				}
				for _, item := range ap.ActionPlan {
					out.recommendations = append(out.recommendations,
						fmt.Sprintf("[%s, %s] %s", item.Area, item.Timeline, item.Action))
				}
				return out, nil
			},
		},
	}
}
