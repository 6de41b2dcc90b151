package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"salesiq/internal/dataset"
)

// Diagnostic answers "why did it happen": outliers, correlations, variance
// decomposition, seasonality and root-cause heuristics.
type Diagnostic struct {
	table  *dataset.Table
	logger *slog.Logger
}

func NewDiagnostic(t *dataset.Table, logger *slog.Logger) *Diagnostic {
	return &Diagnostic{table: t, logger: logger}
}

type Anomaly struct {
	OrderID      string  `json:"order_id"`
	OrderDate    string  `json:"order_date"`
	CustomerID   string  `json:"customer_id"`
	ProductName  string  `json:"product_name"`
	Category     string  `json:"category"`
	Region       string  `json:"region"`
	Value        float64 `json:"value"`
	AnomalyScore float64 `json:"anomaly_score"`
}

type AnomalyResult struct {
	TotalAnomalies    int       `json:"total_anomalies"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
	Anomalies         []Anomaly `json:"anomalies"`
	Metric            string    `json:"metric"`
	Method            string    `json:"method"`
	Threshold         float64   `json:"threshold"`
}

const anomalyCap = 20

// FindAnomalies flags outlier rows with either the z-score or the IQR
// detector, re-scores the flagged set by z-score magnitude and returns the
// top rows, capped.
func (d *Diagnostic) FindAnomalies(metric, method string, threshold float64) (AnomalyResult, error) {
	values, err := d.table.Column(metric)
	if err != nil {
		d.logger.Error("anomaly detection failed", "metric", metric, "error", err)
		return AnomalyResult{}, unavailable("find_anomalies", err)
	}

	var flagged []int
	switch method {
	case "zscore":
		scores := zscores(values)
		for i, z := range scores {
			if math.Abs(z) > threshold {
				flagged = append(flagged, i)
			}
		}
	case "iqr":
		q1 := percentile(values, 25)
		q3 := percentile(values, 75)
		iqr := q3 - q1
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr
		for i, v := range values {
			if v < lower || v > upper {
				flagged = append(flagged, i)
			}
		}
	default:
		return AnomalyResult{}, unavailable("find_anomalies", fmt.Errorf("unknown method %q", method))
	}

	result := AnomalyResult{
		TotalAnomalies:    len(flagged),
		AnomalyPercentage: ratio(float64(len(flagged)), float64(len(values)), 100),
		Anomalies:         []Anomaly{},
		Metric:            metric,
		Method:            method,
		Threshold:         threshold,
	}
	if len(flagged) == 0 {
		return result, nil
	}

	// Re-score within the flagged subset so ordering reflects severity
	// relative to the other outliers.
	subset := make([]float64, len(flagged))
	for i, idx := range flagged {
		subset[i] = values[idx]
	}
	subsetScores := zscores(subset)

	rows := d.table.Rows()
	anomalies := make([]Anomaly, len(flagged))
	for i, idx := range flagged {
		r := rows[idx]
		anomalies[i] = Anomaly{
			OrderID:      r.OrderID,
			OrderDate:    r.OrderDate.Format("2006-01-02"),
			CustomerID:   r.CustomerID,
			ProductName:  r.ProductName,
			Category:     r.Category,
			Region:       r.Region,
			Value:        finite(values[idx]),
			AnomalyScore: finite(math.Abs(subsetScores[i])),
		}
	}
	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].AnomalyScore > anomalies[j].AnomalyScore
	})
	if len(anomalies) > anomalyCap {
		anomalies = anomalies[:anomalyCap]
	}
	result.Anomalies = anomalies
	return result, nil
}

type CorrelationPair struct {
	Metric1     string  `json:"metric1"`
	Metric2     string  `json:"metric2"`
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
}

type CorrelationResult struct {
	CorrelationMatrix  map[string]map[string]float64 `json:"correlation_matrix"`
	StrongCorrelations []CorrelationPair             `json:"strong_correlations"`
	MetricsAnalyzed    []string                      `json:"metrics_analyzed"`
}

var defaultCorrelationMetrics = []string{"Sales", "Profit", "Quantity", "Discount", "Shipping Cost"}

// Correlations builds the pairwise Pearson matrix over the requested metrics
// and surfaces pairs with |r| > 0.5.
func (d *Diagnostic) Correlations(metrics []string) (CorrelationResult, error) {
	if len(metrics) == 0 {
		metrics = defaultCorrelationMetrics
	}

	columns := make(map[string][]float64, len(metrics))
	for _, m := range metrics {
		col, err := d.table.Column(m)
		if err != nil {
			d.logger.Error("correlation analysis failed", "metric", m, "error", err)
			return CorrelationResult{}, unavailable("correlations", err)
		}
		columns[m] = col
	}

	matrix := make(map[string]map[string]float64, len(metrics))
	var strong []CorrelationPair
	for i, a := range metrics {
		matrix[a] = make(map[string]float64, len(metrics))
		for j, b := range metrics {
			var r float64
			if a == b {
				r = 1.0
			} else {
				r = pearson(columns[a], columns[b])
			}
			matrix[a][b] = r
			if j > i && math.Abs(r) > 0.5 {
				strong = append(strong, CorrelationPair{
					Metric1:     a,
					Metric2:     b,
					Correlation: r,
					Strength:    correlationStrength(r),
				})
			}
		}
	}
	sort.Slice(strong, func(i, j int) bool {
		return math.Abs(strong[i].Correlation) > math.Abs(strong[j].Correlation)
	})

	return CorrelationResult{
		CorrelationMatrix:  matrix,
		StrongCorrelations: strong,
		MetricsAnalyzed:    metrics,
	}, nil
}

func correlationStrength(r float64) string {
	switch {
	case r > 0.7:
		return "strong positive"
	case r < -0.7:
		return "strong negative"
	default:
		return "moderate"
	}
}

type GroupVariance struct {
	Group            string  `json:"group"`
	Mean             float64 `json:"mean"`
	Std              float64 `json:"std"`
	Count            int     `json:"count"`
	Variance         float64 `json:"variance"`
	VarianceFromMean float64 `json:"variance_from_mean"`
}

type ANOVAResult struct {
	FStatistic  float64 `json:"f_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

type VarianceResult struct {
	VarianceAnalysis []GroupVariance `json:"variance_analysis"`
	OverallMean      float64         `json:"overall_mean"`
	ANOVA            ANOVAResult     `json:"anova_results"`
	Dimension        string          `json:"dimension"`
	Metric           string          `json:"metric"`
}

// VarianceAnalysis reports per-group deviation from the global mean along
// with a one-way ANOVA across the dimension's groups. Fewer than two groups
// degrades to a zeroed, non-significant ANOVA rather than an error.
func (d *Diagnostic) VarianceAnalysis(dimension, metric string) (VarianceResult, error) {
	dimValue, err := dimensionGetter(dimension)
	if err != nil {
		d.logger.Error("variance analysis failed", "dimension", dimension, "error", err)
		return VarianceResult{}, unavailable("variance_analysis", err)
	}
	values, err := d.table.Column(metric)
	if err != nil {
		d.logger.Error("variance analysis failed", "metric", metric, "error", err)
		return VarianceResult{}, unavailable("variance_analysis", err)
	}

	rows := d.table.Rows()
	groups := make(map[string][]float64)
	for i := range rows {
		key := dimValue(&rows[i])
		groups[key] = append(groups[key], values[i])
	}

	overall := mean(values)
	records := make([]GroupVariance, 0, len(groups))
	for name, xs := range groups {
		sd := stdSample(xs)
		records = append(records, GroupVariance{
			Group:            name,
			Mean:             mean(xs),
			Std:              sd,
			Count:            len(xs),
			Variance:         finite(sd * sd),
			VarianceFromMean: round2(ratio(mean(xs)-overall, overall, 100)),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].VarianceFromMean > records[j].VarianceFromMean
	})

	samples := make([][]float64, 0, len(groups))
	for _, xs := range groups {
		samples = append(samples, xs)
	}

	return VarianceResult{
		VarianceAnalysis: records,
		OverallMean:      overall,
		ANOVA:            oneWayANOVA(samples),
		Dimension:        dimension,
		Metric:           metric,
	}, nil
}

// oneWayANOVA computes the F statistic and p-value across the group samples.
// Degenerate designs (a single group, no residual degrees of freedom) return
// the zeroed non-significant fallback.
func oneWayANOVA(groups [][]float64) ANOVAResult {
	k := len(groups)
	n := 0
	var grand float64
	for _, g := range groups {
		n += len(g)
		grand += sum(g)
	}
	if k < 2 || n <= k {
		return ANOVAResult{FStatistic: 0, PValue: 1, Significant: false}
	}
	grandMean := grand / float64(n)

	var ssBetween, ssWithin float64
	for _, g := range groups {
		gm := mean(g)
		ssBetween += float64(len(g)) * (gm - grandMean) * (gm - grandMean)
		for _, v := range g {
			ssWithin += (v - gm) * (v - gm)
		}
	}

	dfBetween := float64(k - 1)
	dfWithin := float64(n - k)
	if ssWithin == 0 {
		return ANOVAResult{FStatistic: 0, PValue: 1, Significant: false}
	}

	f := (ssBetween / dfBetween) / (ssWithin / dfWithin)
	dist := distuv.F{D1: dfBetween, D2: dfWithin}
	p := 1 - dist.CDF(f)

	return ANOVAResult{
		FStatistic:  finite(f),
		PValue:      finite(p),
		Significant: p < 0.05,
	}
}

func dimensionGetter(dimension string) (func(*dataset.Row) string, error) {
	switch dimension {
	case "Category":
		return func(r *dataset.Row) string { return r.Category }, nil
	case "Region":
		return func(r *dataset.Row) string { return r.Region }, nil
	case "Segment":
		return func(r *dataset.Row) string { return r.Segment }, nil
	case "Country":
		return func(r *dataset.Row) string { return r.Country }, nil
	case "Month_Name":
		return func(r *dataset.Row) string { return r.MonthName }, nil
	default:
		return nil, fmt.Errorf("unsupported dimension %q", dimension)
	}
}

type SeasonalPattern struct {
	Period string  `json:"period"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	CV     float64 `json:"cv,omitempty"`
}

type SeasonalityResult struct {
	MonthlyPattern   []SeasonalPattern `json:"monthly_pattern"`
	QuarterlyPattern []SeasonalPattern `json:"quarterly_pattern"`
	DayOfWeekPattern []SeasonalPattern `json:"day_of_week_pattern"`
	HasSeasonality   bool              `json:"has_seasonality"`
}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Seasonality summarizes the metric by calendar month, quarter and weekday.
// Seasonality is flagged when the spread of monthly means exceeds 10% of
// their overall mean.
func (d *Diagnostic) Seasonality(metric string) (SeasonalityResult, error) {
	values, err := d.table.Column(metric)
	if err != nil {
		d.logger.Error("seasonality analysis failed", "metric", metric, "error", err)
		return SeasonalityResult{}, unavailable("seasonality", err)
	}

	rows := d.table.Rows()
	monthly := make(map[int][]float64)
	quarterly := make(map[int][]float64)
	weekday := make(map[int][]float64)
	for i := range rows {
		monthly[rows[i].Month] = append(monthly[rows[i].Month], values[i])
		quarterly[rows[i].Quarter] = append(quarterly[rows[i].Quarter], values[i])
		weekday[rows[i].DayOfWeek] = append(weekday[rows[i].DayOfWeek], values[i])
	}

	result := SeasonalityResult{}
	var monthlyMeans []float64
	for m := 1; m <= 12; m++ {
		xs, found := monthly[m]
		if !found {
			continue
		}
		gm := mean(xs)
		monthlyMeans = append(monthlyMeans, gm)
		result.MonthlyPattern = append(result.MonthlyPattern, SeasonalPattern{
			Period: fmt.Sprintf("%d", m),
			Mean:   gm,
			Std:    stdSample(xs),
			CV:     round2(ratio(stdSample(xs), gm, 100)),
		})
	}
	for q := 1; q <= 4; q++ {
		xs, found := quarterly[q]
		if !found {
			continue
		}
		result.QuarterlyPattern = append(result.QuarterlyPattern, SeasonalPattern{
			Period: fmt.Sprintf("Q%d", q),
			Mean:   mean(xs),
			Std:    stdSample(xs),
		})
	}
	for dow := 0; dow < 7; dow++ {
		xs, found := weekday[dow]
		if !found {
			continue
		}
		result.DayOfWeekPattern = append(result.DayOfWeekPattern, SeasonalPattern{
			Period: weekdayNames[dow],
			Mean:   mean(xs),
			Std:    stdSample(xs),
		})
	}

	result.HasSeasonality = stdSample(monthlyMeans) > mean(monthlyMeans)*0.1
	return result, nil
}

type DiscountBin struct {
	Bin          string  `json:"bin"`
	SalesSum     float64 `json:"sales_sum"`
	SalesMean    float64 `json:"sales_mean"`
	SalesCount   int     `json:"sales_count"`
	ProfitSum    float64 `json:"profit_sum"`
	ProfitMean   float64 `json:"profit_mean"`
	QuantitySum  float64 `json:"quantity_sum"`
	ProfitMargin float64 `json:"profit_margin"`
	ROI          float64 `json:"roi"`
}

type DiscountImpactResult struct {
	DiscountImpact []DiscountBin `json:"discount_impact"`
	Recommendation string        `json:"recommendation"`
}

var discountBinLabels = []string{"No Discount", "0-10%", "10-20%", "20-30%", "30%+"}

// discountBinLabel classifies a discount into the fixed bin boundaries
// (-0.01, 0], (0, 0.1], (0.1, 0.2], (0.2, 0.3], (0.3, 1.0].
func discountBinLabel(d float64) string {
	switch {
	case d <= 0:
		return "No Discount"
	case d <= 0.1:
		return "0-10%"
	case d <= 0.2:
		return "10-20%"
	case d <= 0.3:
		return "20-30%"
	default:
		return "30%+"
	}
}

// DiscountImpact aggregates sales, profit and quantity per discount bin. The
// binning is computed locally per call; the shared table is never touched.
func (d *Diagnostic) DiscountImpact() (DiscountImpactResult, error) {
	type agg struct {
		sales, profit, quantity float64
		count                   int
	}
	bins := make(map[string]*agg, len(discountBinLabels))

	for _, r := range d.table.Rows() {
		label := discountBinLabel(r.Discount)
		b := bins[label]
		if b == nil {
			b = &agg{}
			bins[label] = b
		}
		b.sales += r.Sales
		b.profit += r.Profit
		b.quantity += float64(r.Quantity)
		b.count++
	}

	var records []DiscountBin
	for _, label := range discountBinLabels {
		b, found := bins[label]
		if !found {
			continue
		}
		n := float64(b.count)
		records = append(records, DiscountBin{
			Bin:          label,
			SalesSum:     round2(b.sales),
			SalesMean:    round2(b.sales / n),
			SalesCount:   b.count,
			ProfitSum:    round2(b.profit),
			ProfitMean:   round2(b.profit / n),
			QuantitySum:  b.quantity,
			ProfitMargin: round2(ratio(b.profit, b.sales, 100)),
			ROI:          round4(ratio(b.profit, b.sales, 1)),
		})
	}

	recommendation := "Unable to determine optimal discount strategy"
	if len(records) > 0 {
		best := records[0]
		for _, r := range records[1:] {
			if r.ProfitMargin > best.ProfitMargin {
				best = r
			}
		}
		recommendation = fmt.Sprintf("Optimal discount range: %s with %.1f%% profit margin", best.Bin, best.ProfitMargin)
	}

	return DiscountImpactResult{DiscountImpact: records, Recommendation: recommendation}, nil
}

type CustomerMetrics struct {
	CustomerID       string  `json:"customer_id"`
	OrderCount       int     `json:"order_count"`
	TotalSales       float64 `json:"total_sales"`
	TotalProfit      float64 `json:"total_profit"`
	FirstPurchase    string  `json:"first_purchase"`
	LastPurchase     string  `json:"last_purchase"`
	LifetimeDays     int     `json:"customer_lifetime_days"`
	AvgOrderValue    float64 `json:"avg_order_value"`
	ActivitySegment  string  `json:"segment"`
}

type ActivitySegmentSummary struct {
	Segment       string  `json:"segment"`
	CustomerCount int     `json:"customer_count"`
	TotalSales    float64 `json:"total_sales"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

type CustomerBehaviorResult struct {
	CustomerSegments     []ActivitySegmentSummary `json:"customer_segments"`
	TopCustomers         []CustomerMetrics        `json:"top_customers"`
	AverageLifetimeValue float64                  `json:"average_lifetime_value"`
	AverageOrderCount    float64                  `json:"average_order_count"`
}

var activitySegments = []string{"Occasional", "Regular", "Frequent", "VIP"}

func activitySegment(orders int) string {
	switch {
	case orders <= 2:
		return "Occasional"
	case orders <= 5:
		return "Regular"
	case orders <= 10:
		return "Frequent"
	default:
		return "VIP"
	}
}

// CustomerBehavior profiles each customer's purchasing activity and rolls the
// profiles up into Occasional/Regular/Frequent/VIP segments.
func (d *Diagnostic) CustomerBehavior() (CustomerBehaviorResult, error) {
	customers := customerProfiles(d.table.Rows())

	metrics := make([]CustomerMetrics, 0, len(customers))
	var totalSales, totalOrders float64
	for _, c := range customers {
		aov := ratio(c.sales, float64(c.orders), 1)
		metrics = append(metrics, CustomerMetrics{
			CustomerID:      c.id,
			OrderCount:      c.orders,
			TotalSales:      round2(c.sales),
			TotalProfit:     round2(c.profit),
			FirstPurchase:   c.first.Format("2006-01-02"),
			LastPurchase:    c.last.Format("2006-01-02"),
			LifetimeDays:    int(c.last.Sub(c.first).Hours() / 24),
			AvgOrderValue:   round2(aov),
			ActivitySegment: activitySegment(c.orders),
		})
		totalSales += c.sales
		totalOrders += float64(c.orders)
	}

	summaries := make(map[string]*ActivitySegmentSummary, len(activitySegments))
	aovSums := make(map[string]float64)
	for _, m := range metrics {
		s := summaries[m.ActivitySegment]
		if s == nil {
			s = &ActivitySegmentSummary{Segment: m.ActivitySegment}
			summaries[m.ActivitySegment] = s
		}
		s.CustomerCount++
		s.TotalSales += m.TotalSales
		aovSums[m.ActivitySegment] += m.AvgOrderValue
	}
	var segmentRecords []ActivitySegmentSummary
	for _, name := range activitySegments {
		s, found := summaries[name]
		if !found {
			continue
		}
		s.TotalSales = round2(s.TotalSales)
		s.AvgOrderValue = round2(aovSums[name] / float64(s.CustomerCount))
		segmentRecords = append(segmentRecords, *s)
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].TotalSales > metrics[j].TotalSales })
	top := metrics
	if len(top) > 10 {
		top = top[:10]
	}

	n := float64(len(metrics))
	return CustomerBehaviorResult{
		CustomerSegments:     segmentRecords,
		TopCustomers:         top,
		AverageLifetimeValue: ratio(totalSales, n, 1),
		AverageOrderCount:    ratio(totalOrders, n, 1),
	}, nil
}

type ContributingFactor struct {
	Factor      string  `json:"factor"`
	Correlation float64 `json:"correlation"`
	Impact      string  `json:"impact"`
}

type RootCauseResult struct {
	Insights            []string             `json:"insights"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Recommendations     []string             `json:"recommendations"`
}

// rootCauseRule pairs a trigger condition with its insight and optional
// recommendation. The table form keeps trigger conditions explicit instead
// of pattern-matching generated prose.
type rootCauseRule struct {
	triggered      func(f rootCauseFacts) bool
	insight        func(f rootCauseFacts) string
	recommendation string
}

type rootCauseFacts struct {
	metric             string
	period             string
	periodFlagged      bool
	periodDeltaPct     float64
	lowestCategory     string
	highDiscountOrders int
	regionalCV         float64
}

var rootCauseRules = []rootCauseRule{
	{
		triggered: func(f rootCauseFacts) bool { return f.periodFlagged },
		insight: func(f rootCauseFacts) string {
			return fmt.Sprintf("The %s in %s was %.1f%% below average", f.metric, f.period, f.periodDeltaPct)
		},
		recommendation: "Investigate marketing and sales strategies for underperforming periods",
	},
	{
		triggered: func(f rootCauseFacts) bool { return f.lowestCategory != "" },
		insight: func(f rootCauseFacts) string {
			return fmt.Sprintf("Category '%s' has the lowest average %s", f.lowestCategory, f.metric)
		},
	},
	{
		triggered: func(f rootCauseFacts) bool { return f.highDiscountOrders > 0 },
		insight: func(f rootCauseFacts) string {
			return fmt.Sprintf("High discounts (>20%%) applied to %d orders", f.highDiscountOrders)
		},
		recommendation: "Review discount strategy to optimize profit margins",
	},
	{
		triggered: func(f rootCauseFacts) bool { return f.regionalCV > 20 },
		insight: func(f rootCauseFacts) string {
			return fmt.Sprintf("High regional variation detected (CV: %.1f%%)", f.regionalCV)
		},
		recommendation: "Standardize operations across regions to reduce variation",
	},
}

// RootCause evaluates the diagnostic rule table for the metric, optionally
// focusing on one "2006-01"-style period.
func (d *Diagnostic) RootCause(metric, period string) (RootCauseResult, error) {
	values, err := d.table.Column(metric)
	if err != nil {
		d.logger.Error("root cause analysis failed", "metric", metric, "error", err)
		return RootCauseResult{}, unavailable("root_cause", err)
	}

	rows := d.table.Rows()
	facts := rootCauseFacts{metric: metric, period: period}

	if period != "" {
		var periodValues []float64
		for i := range rows {
			if rows[i].OrderDate.Format("2006-01") == period {
				periodValues = append(periodValues, values[i])
			}
		}
		overall := mean(values)
		periodMean := mean(periodValues)
		if len(periodValues) > 0 && overall != 0 && periodMean < overall*0.9 {
			facts.periodFlagged = true
			facts.periodDeltaPct = (periodMean/overall - 1) * 100
		}
	}

	categoryGroups := make(map[string][]float64)
	regionGroups := make(map[string][]float64)
	for i := range rows {
		categoryGroups[rows[i].Category] = append(categoryGroups[rows[i].Category], values[i])
		regionGroups[rows[i].Region] = append(regionGroups[rows[i].Region], values[i])
		if rows[i].Discount > 0.2 {
			facts.highDiscountOrders++
		}
	}

	lowest := math.Inf(1)
	for name, xs := range categoryGroups {
		if m := mean(xs); m < lowest || (m == lowest && name < facts.lowestCategory) {
			lowest = m
			facts.lowestCategory = name
		}
	}

	var regionalMeans []float64
	for _, xs := range regionGroups {
		regionalMeans = append(regionalMeans, mean(xs))
	}
	facts.regionalCV = ratio(stdSample(regionalMeans), mean(regionalMeans), 100)

	result := RootCauseResult{
		Insights:        []string{},
		Recommendations: []string{},
	}
	for _, rule := range rootCauseRules {
		if !rule.triggered(facts) {
			continue
		}
		result.Insights = append(result.Insights, rule.insight(facts))
		if rule.recommendation != "" {
			result.Recommendations = append(result.Recommendations, rule.recommendation)
		}
	}

	discount, _ := d.table.Column("Discount")
	quantity, _ := d.table.Column("Quantity")
	discountCorr := pearson(values, discount)
	quantityCorr := pearson(values, quantity)
	result.ContributingFactors = []ContributingFactor{
		{Factor: "Discount", Correlation: discountCorr, Impact: impactLabel(discountCorr, false)},
		{Factor: "Quantity", Correlation: quantityCorr, Impact: impactLabel(quantityCorr, true)},
	}

	return result, nil
}

func impactLabel(corr float64, positive bool) string {
	if positive {
		if corr > 0.3 {
			return "positive"
		}
		return "neutral"
	}
	if corr < -0.3 {
		return "negative"
	}
	return "neutral"
}

// customerProfile aggregates one customer's activity; shared by the
// diagnostic behavior analysis and the predictive churn scoring.
type customerProfile struct {
	id            string
	orders        int
	sales, profit float64
	first, last   time.Time
}

func customerProfiles(rows []dataset.Row) []customerProfile {
	byID := make(map[string]*customerProfile)
	for _, r := range rows {
		c := byID[r.CustomerID]
		if c == nil {
			c = &customerProfile{id: r.CustomerID, first: r.OrderDate, last: r.OrderDate}
			byID[r.CustomerID] = c
		}
		c.orders++
		c.sales += r.Sales
		c.profit += r.Profit
		if r.OrderDate.Before(c.first) {
			c.first = r.OrderDate
		}
		if r.OrderDate.After(c.last) {
			c.last = r.OrderDate
		}
	}
	out := make([]customerProfile, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

type DiagnosticReport struct {
	AnomalyDetection    AnomalyResult          `json:"anomaly_detection"`
	CorrelationAnalysis CorrelationResult      `json:"correlation_analysis"`
	VarianceAnalysis    VarianceResult         `json:"variance_analysis"`
	SeasonalityAnalysis SeasonalityResult      `json:"seasonality_analysis"`
	DiscountImpact      DiscountImpactResult   `json:"discount_impact"`
	CustomerBehavior    CustomerBehaviorResult `json:"customer_behavior"`
}

// Report runs every diagnostic analysis concurrently. Individual failures
// are absorbed into empty sections; the report itself always returns.
func (d *Diagnostic) Report(ctx context.Context) DiagnosticReport {
	var report DiagnosticReport
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error { report.AnomalyDetection, _ = d.FindAnomalies("Sales", "zscore", 3); return nil })
	g.Go(func() error { report.CorrelationAnalysis, _ = d.Correlations(nil); return nil })
	g.Go(func() error { report.VarianceAnalysis, _ = d.VarianceAnalysis("Category", "Sales"); return nil })
	g.Go(func() error { report.SeasonalityAnalysis, _ = d.Seasonality("Sales"); return nil })
	g.Go(func() error { report.DiscountImpact, _ = d.DiscountImpact(); return nil })
	g.Go(func() error { report.CustomerBehavior, _ = d.CustomerBehavior(); return nil })

	g.Wait()
	return report
}
