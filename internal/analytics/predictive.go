package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"salesiq/internal/dataset"
)

// Predictive answers "what is likely to happen": forecasts, churn scoring,
// demand ranking and growth opportunities. Recency-based scoring measures
// against an injectable clock so results are reproducible under test.
type Predictive struct {
	table  *dataset.Table
	logger *slog.Logger
	now    func() time.Time
}

type PredictiveOption func(*Predictive)

// WithPredictiveClock overrides the wall clock used for recency windows.
func WithPredictiveClock(clock func() time.Time) PredictiveOption {
	return func(p *Predictive) { p.now = clock }
}

func NewPredictive(t *dataset.Table, logger *slog.Logger, opts ...PredictiveOption) *Predictive {
	p := &Predictive{table: t, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ForecastPoint struct {
	Date       string  `json:"date"`
	Forecast   float64 `json:"forecast"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

type ForecastResult struct {
	Forecasts        []ForecastPoint `json:"forecasts"`
	Trend            string          `json:"trend"`
	TrendCoefficient float64         `json:"trend_coefficient"`
	ModelScore       float64         `json:"model_score"`
	Periods          int             `json:"periods"`
	Frequency        string          `json:"frequency"`
}

func emptyForecast(periods int, frequency string) ForecastResult {
	return ForecastResult{
		Forecasts:        []ForecastPoint{},
		Trend:            "unknown",
		TrendCoefficient: 0,
		ModelScore:       0,
		Periods:          periods,
		Frequency:        frequency,
	}
}

// ForecastSales fits an ordinary least-squares trend to the bucketed sales
// sums and extrapolates it, with a ±1.96·σ residual band of constant width.
// Any failure degrades to a structurally valid empty result.
func (p *Predictive) ForecastSales(periods int, frequency string) (ForecastResult, error) {
	if periods <= 0 {
		periods = 12
	}
	buckets, err := bucketize(p.table.Rows(), "Sales", frequency)
	if err != nil || len(buckets) < 2 {
		p.logger.Error("sales forecast unavailable", "frequency", frequency, "buckets", len(buckets), "error", err)
		return emptyForecast(periods, frequency), nil
	}

	sums := bucketSums(buckets)
	alpha, beta := linregress(sums)

	residuals := make([]float64, len(sums))
	for i, y := range sums {
		residuals[i] = y - (alpha + beta*float64(i))
	}
	stdErr := stdPop(residuals)

	points := make([]ForecastPoint, 0, periods)
	date := buckets[len(buckets)-1].end
	for i := 0; i < periods; i++ {
		date = nextPeriodEnd(date, frequency)
		forecast := alpha + beta*float64(len(sums)+i)
		points = append(points, ForecastPoint{
			Date:       date.Format("2006-01-02"),
			Forecast:   finite(forecast),
			LowerBound: finite(forecast - 1.96*stdErr),
			UpperBound: finite(forecast + 1.96*stdErr),
		})
	}

	trend := "decreasing"
	if beta > 0 {
		trend = "increasing"
	}

	return ForecastResult{
		Forecasts:        points,
		Trend:            trend,
		TrendCoefficient: finite(beta),
		ModelScore:       rSquared(sums, alpha, beta),
		Periods:          periods,
		Frequency:        frequency,
	}, nil
}

type ChurnRiskCustomer struct {
	CustomerID    string  `json:"customer_id"`
	OrderCount    int     `json:"order_count"`
	TotalSales    float64 `json:"total_sales"`
	DaysSinceLast int     `json:"days_since_last"`
	ChurnRisk     string  `json:"churn_risk"`
}

type ChurnResult struct {
	ChurnSummary      map[string]int      `json:"churn_summary"`
	HighRiskCustomers []ChurnRiskCustomer `json:"high_risk_customers"`
	TotalCustomers    int                 `json:"total_customers"`
	ChurnRate         float64             `json:"churn_rate"`
}

// churnRisk partitions days-since-last-purchase: exactly 180 days is still
// Medium, 181 is High.
func churnRisk(daysSinceLast int) string {
	switch {
	case daysSinceLast > 180:
		return "High"
	case daysSinceLast > 90:
		return "Medium"
	default:
		return "Low"
	}
}

// PredictCustomerChurn scores every customer's churn risk from purchase
// recency relative to the engine clock.
func (p *Predictive) PredictCustomerChurn() (ChurnResult, error) {
	customers := customerProfiles(p.table.Rows())
	now := p.now()

	summary := map[string]int{"Low": 0, "Medium": 0, "High": 0}
	var highRisk []ChurnRiskCustomer
	for _, c := range customers {
		days := int(now.Sub(c.last).Hours() / 24)
		risk := churnRisk(days)
		summary[risk]++
		if risk == "High" {
			highRisk = append(highRisk, ChurnRiskCustomer{
				CustomerID:    c.id,
				OrderCount:    c.orders,
				TotalSales:    round2(c.sales),
				DaysSinceLast: days,
				ChurnRisk:     risk,
			})
		}
	}

	sort.Slice(highRisk, func(i, j int) bool { return highRisk[i].TotalSales > highRisk[j].TotalSales })
	if len(highRisk) > 20 {
		highRisk = highRisk[:20]
	}
	if highRisk == nil {
		highRisk = []ChurnRiskCustomer{}
	}

	return ChurnResult{
		ChurnSummary:      summary,
		HighRiskCustomers: highRisk,
		TotalCustomers:    len(customers),
		ChurnRate:         ratio(float64(summary["High"]), float64(len(customers)), 100),
	}, nil
}

type ProductDemand struct {
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	TotalQuantity float64 `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
	TotalSales    float64 `json:"total_sales"`
	Velocity      float64 `json:"velocity"`
}

type DemandResult struct {
	HighDemandProducts []ProductDemand `json:"high_demand_products"`
	LowDemandProducts  []ProductDemand `json:"low_demand_products"`
	Category           string          `json:"category"`
}

// PredictProductDemand ranks products by total sales, optionally within one
// category, reporting the per-order quantity velocity.
func (p *Predictive) PredictProductDemand(category string) (DemandResult, error) {
	type key struct{ id, name string }
	type agg struct {
		quantity, sales float64
		orders          int
	}
	groups := make(map[key]*agg)
	for _, r := range p.table.Rows() {
		if category != "" && r.Category != category {
			continue
		}
		k := key{r.ProductID, r.ProductName}
		g := groups[k]
		if g == nil {
			g = &agg{}
			groups[k] = g
		}
		g.quantity += float64(r.Quantity)
		g.sales += r.Sales
		g.orders++
	}

	records := make([]ProductDemand, 0, len(groups))
	for k, g := range groups {
		records = append(records, ProductDemand{
			ProductID:     k.id,
			ProductName:   k.name,
			TotalQuantity: g.quantity,
			OrderCount:    g.orders,
			TotalSales:    round2(g.sales),
			Velocity:      round2(ratio(g.quantity, float64(g.orders), 1)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TotalSales > records[j].TotalSales })

	high := records
	if len(high) > 20 {
		high = high[:20]
	}
	low := records
	if len(low) > 10 {
		low = low[len(low)-10:]
	}

	label := category
	if label == "" {
		label = "All"
	}
	return DemandResult{HighDemandProducts: high, LowDemandProducts: low, Category: label}, nil
}

type RevenuePrediction struct {
	Month            int     `json:"month"`
	PredictedRevenue float64 `json:"predicted_revenue"`
	GrowthAssumption float64 `json:"growth_assumption"`
}

type RevenueResult struct {
	RevenuePredictions []RevenuePrediction `json:"revenue_predictions"`
	BaselineRevenue    float64             `json:"baseline_revenue"`
	AssumedGrowthRate  float64             `json:"assumed_growth_rate"`
	Confidence         string              `json:"confidence"`
}

// PredictRevenue projects monthly revenue by compounding the recent average
// month-over-month growth onto a trailing moving-average baseline.
func (p *Predictive) PredictRevenue(monthsAhead int) (RevenueResult, error) {
	if monthsAhead <= 0 {
		monthsAhead = 3
	}
	buckets, err := bucketize(p.table.Rows(), "Sales", "M")
	if err != nil || len(buckets) == 0 {
		p.logger.Error("revenue prediction unavailable", "error", err)
		return RevenueResult{}, unavailable("predict_revenue", err)
	}

	sums := bucketSums(buckets)
	window := 6
	if len(sums) < window {
		window = len(sums)
	}
	baseline := mean(sums[len(sums)-window:])

	// Mean of the last up-to-6 month-over-month changes.
	var changes []float64
	for i := 1; i < len(sums); i++ {
		if sums[i-1] != 0 {
			changes = append(changes, finite((sums[i]-sums[i-1])/sums[i-1]))
		} else {
			changes = append(changes, 0)
		}
	}
	if len(changes) > 6 {
		changes = changes[len(changes)-6:]
	}
	growth := mean(changes)

	predictions := make([]RevenuePrediction, 0, monthsAhead)
	current := baseline
	for month := 1; month <= monthsAhead; month++ {
		current = current * (1 + growth)
		predictions = append(predictions, RevenuePrediction{
			Month:            month,
			PredictedRevenue: finite(current),
			GrowthAssumption: finite(growth * 100),
		})
	}

	return RevenueResult{
		RevenuePredictions: predictions,
		BaselineRevenue:    finite(baseline),
		AssumedGrowthRate:  finite(growth * 100),
		Confidence:         "medium",
	}, nil
}

type GrowthOpportunity struct {
	Type           string  `json:"type"`
	Name           string  `json:"name"`
	GrowthRate     float64 `json:"growth_rate,omitempty"`
	Potential      string  `json:"potential,omitempty"`
	CurrentSales   float64 `json:"current_sales,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
}

type OpportunityResult struct {
	Opportunities      []GrowthOpportunity `json:"opportunities"`
	TotalOpportunities int                 `json:"total_opportunities"`
}

// IdentifyGrowthOpportunities surfaces the fastest-growing categories by
// average year-over-year growth and the two least-penetrated regions.
func (p *Predictive) IdentifyGrowthOpportunities() (OpportunityResult, error) {
	type catYear struct {
		category string
		year     int
	}
	yearly := make(map[catYear]float64)
	regionSales := make(map[string]float64)
	for _, r := range p.table.Rows() {
		yearly[catYear{r.Category, r.Year}] += r.Sales
		regionSales[r.Region] += r.Sales
	}

	// Average YoY growth per category.
	byCategory := make(map[string]map[int]float64)
	for k, v := range yearly {
		if byCategory[k.category] == nil {
			byCategory[k.category] = make(map[int]float64)
		}
		byCategory[k.category][k.year] = v
	}
	type catGrowth struct {
		name string
		rate float64
	}
	var growths []catGrowth
	for name, years := range byCategory {
		keys := make([]int, 0, len(years))
		for y := range years {
			keys = append(keys, y)
		}
		sort.Ints(keys)
		var changes []float64
		for i := 1; i < len(keys); i++ {
			prev := years[keys[i-1]]
			if prev != 0 {
				changes = append(changes, (years[keys[i]]-prev)/prev)
			}
		}
		if len(changes) > 0 {
			growths = append(growths, catGrowth{name: name, rate: mean(changes)})
		}
	}
	sort.Slice(growths, func(i, j int) bool { return growths[i].rate > growths[j].rate })
	if len(growths) > 3 {
		growths = growths[:3]
	}

	opportunities := make([]GrowthOpportunity, 0, len(growths)+2)
	for _, g := range growths {
		opportunities = append(opportunities, GrowthOpportunity{
			Type:           "Category",
			Name:           g.name,
			GrowthRate:     finite(g.rate * 100),
			Recommendation: "Expand product line in " + g.name,
		})
	}

	type regionTotal struct {
		name  string
		sales float64
	}
	regions := make([]regionTotal, 0, len(regionSales))
	for name, sales := range regionSales {
		regions = append(regions, regionTotal{name, sales})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].sales < regions[j].sales })
	if len(regions) > 2 {
		regions = regions[:2]
	}
	for _, r := range regions {
		opportunities = append(opportunities, GrowthOpportunity{
			Type:         "Region",
			Name:         r.name,
			Potential:    "Increase market penetration",
			CurrentSales: round2(r.sales),
		})
	}

	return OpportunityResult{
		Opportunities:      opportunities,
		TotalOpportunities: len(opportunities),
	}, nil
}

type PredictiveReport struct {
	SalesForecast       ForecastResult    `json:"sales_forecast"`
	ChurnPrediction     ChurnResult       `json:"churn_prediction"`
	DemandPrediction    DemandResult      `json:"demand_prediction"`
	RevenuePrediction   RevenueResult     `json:"revenue_prediction"`
	GrowthOpportunities OpportunityResult `json:"growth_opportunities"`
}

// Report runs every predictive analysis concurrently. Individual failures
// are absorbed into empty sections; the report itself always returns.
func (p *Predictive) Report(ctx context.Context) PredictiveReport {
	var report PredictiveReport
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error { report.SalesForecast, _ = p.ForecastSales(12, "M"); return nil })
	g.Go(func() error { report.ChurnPrediction, _ = p.PredictCustomerChurn(); return nil })
	g.Go(func() error { report.DemandPrediction, _ = p.PredictProductDemand(""); return nil })
	g.Go(func() error { report.RevenuePrediction, _ = p.PredictRevenue(3); return nil })
	g.Go(func() error { report.GrowthOpportunities, _ = p.IdentifyGrowthOpportunities(); return nil })

	g.Wait()
	return report
}
