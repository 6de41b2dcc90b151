package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"salesiq/internal/dataset"
)

// Descriptive answers "what has happened": aggregate statistics, time-series
// resampling and group-by breakdowns.
type Descriptive struct {
	table  *dataset.Table
	logger *slog.Logger
}

func NewDescriptive(t *dataset.Table, logger *slog.Logger) *Descriptive {
	return &Descriptive{table: t, logger: logger}
}

type MetricStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

type Overview struct {
	TotalSales     float64 `json:"total_sales"`
	TotalProfit    float64 `json:"total_profit"`
	TotalOrders    int     `json:"total_orders"`
	TotalCustomers int     `json:"total_customers"`
	TotalProducts  int     `json:"total_products"`
	AvgOrderValue  float64 `json:"avg_order_value"`
	ProfitMargin   float64 `json:"profit_margin"`
}

type Summary struct {
	Overview         Overview    `json:"overview"`
	SalesStatistics  MetricStats `json:"sales_statistics"`
	ProfitStatistics MetricStats `json:"profit_statistics"`
}

// Summary computes the dataset overview plus distribution statistics for
// Sales and Profit. A zero total-sales dataset yields a 0 margin, not an
// error.
func (d *Descriptive) Summary() (Summary, error) {
	if d.table.Len() == 0 {
		return Summary{}, unavailable("summary", errors.New("empty dataset"))
	}

	sales, _ := d.table.Column("Sales")
	profit, _ := d.table.Column("Profit")
	meta := d.table.Metadata()

	totalSales := sum(sales)
	totalProfit := sum(profit)

	return Summary{
		Overview: Overview{
			TotalSales:     finite(totalSales),
			TotalProfit:    finite(totalProfit),
			TotalOrders:    d.table.Len(),
			TotalCustomers: meta.Customers,
			TotalProducts:  meta.Products,
			AvgOrderValue:  mean(sales),
			ProfitMargin:   ratio(totalProfit, totalSales, 100),
		},
		SalesStatistics:  distribution(sales),
		ProfitStatistics: distribution(profit),
	}, nil
}

func distribution(xs []float64) MetricStats {
	return MetricStats{
		Mean:   mean(xs),
		Median: median(xs),
		Std:    stdSample(xs),
		Min:    minOf(xs),
		Max:    maxOf(xs),
		Q1:     percentile(xs, 25),
		Q3:     percentile(xs, 75),
	}
}

type TimeSeriesPoint struct {
	Date       string  `json:"date"`
	Sum        float64 `json:"sum"`
	Mean       float64 `json:"mean"`
	Count      int     `json:"count"`
	GrowthRate float64 `json:"growth_rate"`
	Cumulative float64 `json:"cumulative"`
	MA3        float64 `json:"ma_3"`
	MA6        float64 `json:"ma_6"`
}

type TimeSeriesResult struct {
	TimeSeries        []TimeSeriesPoint `json:"time_series"`
	Trend             string            `json:"trend"`
	AverageGrowthRate float64           `json:"average_growth_rate"`
	Volatility        float64           `json:"volatility"`
	PeakPeriod        string            `json:"peak_period"`
	LowestPeriod      string            `json:"lowest_period"`
}

// TimeSeries resamples the metric into calendar buckets and derives growth
// rates, cumulative sums and trailing moving averages.
func (d *Descriptive) TimeSeries(metric, frequency string) (TimeSeriesResult, error) {
	buckets, err := bucketize(d.table.Rows(), metric, frequency)
	if err != nil {
		d.logger.Error("time series analysis failed", "metric", metric, "frequency", frequency, "error", err)
		return TimeSeriesResult{}, unavailable("time_series", err)
	}

	sums := bucketSums(buckets)
	rates := growthRates(sums)

	points := make([]TimeSeriesPoint, len(buckets))
	var cumulative float64
	peak, lowest := 0, 0
	for i, b := range buckets {
		cumulative += sums[i]
		points[i] = TimeSeriesPoint{
			Date:       b.end.Format("2006-01-02"),
			Sum:        finite(sums[i]),
			Mean:       mean(b.values),
			Count:      len(b.values),
			GrowthRate: rates[i],
			Cumulative: finite(cumulative),
			MA3:        movingAverage(sums, 3, i),
			MA6:        movingAverage(sums, 6, i),
		}
		if sums[i] > sums[peak] {
			peak = i
		}
		if sums[i] < sums[lowest] {
			lowest = i
		}
	}

	result := TimeSeriesResult{
		TimeSeries:        points,
		Trend:             trendLabel(sums),
		AverageGrowthRate: mean(rates),
		Volatility:        stdSample(sums),
		PeakPeriod:        "N/A",
		LowestPeriod:      "N/A",
	}
	if len(buckets) > 0 {
		result.PeakPeriod = buckets[peak].end.Format("2006-01")
		result.LowestPeriod = buckets[lowest].end.Format("2006-01")
	}
	return result, nil
}

type CategoryStats struct {
	Category     string  `json:"category"`
	SalesSum     float64 `json:"sales_sum"`
	SalesMean    float64 `json:"sales_mean"`
	SalesCount   int     `json:"sales_count"`
	ProfitSum    float64 `json:"profit_sum"`
	ProfitMean   float64 `json:"profit_mean"`
	QuantitySum  float64 `json:"quantity_sum"`
	DiscountMean float64 `json:"discount_mean"`
	ProfitMargin float64 `json:"profit_margin"`
}

type CategoryAnalysis struct {
	Categories      []CategoryStats `json:"categories"`
	TopCategory     string          `json:"top_category"`
	TotalCategories int             `json:"total_categories"`
}

// ByCategory aggregates performance per product category, sorted by total
// sales descending.
func (d *Descriptive) ByCategory() (CategoryAnalysis, error) {
	type agg struct {
		sales, profit, quantity, discount float64
		count                             int
	}
	groups := make(map[string]*agg)
	for _, r := range d.table.Rows() {
		g := groups[r.Category]
		if g == nil {
			g = &agg{}
			groups[r.Category] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.quantity += float64(r.Quantity)
		g.discount += r.Discount
		g.count++
	}

	records := make([]CategoryStats, 0, len(groups))
	for name, g := range groups {
		n := float64(g.count)
		records = append(records, CategoryStats{
			Category:     name,
			SalesSum:     round2(g.sales),
			SalesMean:    round2(g.sales / n),
			SalesCount:   g.count,
			ProfitSum:    round2(g.profit),
			ProfitMean:   round2(g.profit / n),
			QuantitySum:  g.quantity,
			DiscountMean: round2(g.discount / n),
			ProfitMargin: round2(ratio(g.profit, g.sales, 100)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SalesSum > records[j].SalesSum })

	result := CategoryAnalysis{
		Categories:      records,
		TopCategory:     "N/A",
		TotalCategories: len(records),
	}
	if len(records) > 0 {
		result.TopCategory = records[0].Category
	}
	return result, nil
}

type RegionStats struct {
	Region           string  `json:"region"`
	TotalSales       float64 `json:"total_sales"`
	AvgSales         float64 `json:"avg_sales"`
	TotalProfit      float64 `json:"total_profit"`
	AvgProfit        float64 `json:"avg_profit"`
	OrderCount       int     `json:"order_count"`
	CustomerCount    int     `json:"customer_count"`
	ProfitMargin     float64 `json:"profit_margin"`
	SalesPerCustomer float64 `json:"sales_per_customer"`
}

type RegionAnalysis struct {
	Regions      []RegionStats `json:"regions"`
	TopRegion    string        `json:"top_region"`
	TotalRegions int           `json:"total_regions"`
}

// ByRegion aggregates performance per region, including distinct-customer
// metrics, sorted by total sales descending.
func (d *Descriptive) ByRegion() (RegionAnalysis, error) {
	type agg struct {
		sales, profit float64
		count         int
		customers     map[string]struct{}
	}
	groups := make(map[string]*agg)
	for _, r := range d.table.Rows() {
		g := groups[r.Region]
		if g == nil {
			g = &agg{customers: make(map[string]struct{})}
			groups[r.Region] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.count++
		g.customers[r.CustomerID] = struct{}{}
	}

	records := make([]RegionStats, 0, len(groups))
	for name, g := range groups {
		n := float64(g.count)
		records = append(records, RegionStats{
			Region:           name,
			TotalSales:       round2(g.sales),
			AvgSales:         round2(g.sales / n),
			TotalProfit:      round2(g.profit),
			AvgProfit:        round2(g.profit / n),
			OrderCount:       g.count,
			CustomerCount:    len(g.customers),
			ProfitMargin:     round2(ratio(g.profit, g.sales, 100)),
			SalesPerCustomer: round2(ratio(g.sales, float64(len(g.customers)), 1)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TotalSales > records[j].TotalSales })

	result := RegionAnalysis{
		Regions:      records,
		TopRegion:    "N/A",
		TotalRegions: len(records),
	}
	if len(records) > 0 {
		result.TopRegion = records[0].Region
	}
	return result, nil
}

type SegmentStats struct {
	Segment       string  `json:"segment"`
	SalesSum      float64 `json:"sales_sum"`
	SalesMean     float64 `json:"sales_mean"`
	ProfitSum     float64 `json:"profit_sum"`
	ProfitMean    float64 `json:"profit_mean"`
	OrderCount    int     `json:"order_count"`
	CustomerCount int     `json:"customer_count"`
	ProfitMargin  float64 `json:"profit_margin"`
}

type SegmentAnalysis struct {
	Segments      []SegmentStats `json:"segments"`
	TotalSegments int            `json:"total_segments"`
}

// BySegment aggregates performance per customer segment.
func (d *Descriptive) BySegment() (SegmentAnalysis, error) {
	type agg struct {
		sales, profit float64
		count         int
		customers     map[string]struct{}
	}
	groups := make(map[string]*agg)
	for _, r := range d.table.Rows() {
		g := groups[r.Segment]
		if g == nil {
			g = &agg{customers: make(map[string]struct{})}
			groups[r.Segment] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.count++
		g.customers[r.CustomerID] = struct{}{}
	}

	records := make([]SegmentStats, 0, len(groups))
	for name, g := range groups {
		n := float64(g.count)
		records = append(records, SegmentStats{
			Segment:       name,
			SalesSum:      round2(g.sales),
			SalesMean:     round2(g.sales / n),
			ProfitSum:     round2(g.profit),
			ProfitMean:    round2(g.profit / n),
			OrderCount:    g.count,
			CustomerCount: len(g.customers),
			ProfitMargin:  round2(ratio(g.profit, g.sales, 100)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SalesSum > records[j].SalesSum })

	return SegmentAnalysis{Segments: records, TotalSegments: len(records)}, nil
}

type ProductStats struct {
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	Category      string  `json:"category"`
	TotalSales    float64 `json:"total_sales"`
	TotalProfit   float64 `json:"total_profit"`
	TotalQuantity float64 `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
	ProfitMargin  float64 `json:"profit_margin"`
}

type ProductAnalysis struct {
	TopProducts    []ProductStats `json:"top_products"`
	BottomProducts []ProductStats `json:"bottom_products"`
	TotalProducts  int            `json:"total_products"`
}

// TopProducts returns the n largest and n smallest products by total sales.
func (d *Descriptive) TopProducts(n int) (ProductAnalysis, error) {
	if n <= 0 {
		n = 20
	}
	type key struct{ id, name, category string }
	type agg struct {
		sales, profit, quantity float64
		count                   int
	}
	groups := make(map[key]*agg)
	for _, r := range d.table.Rows() {
		k := key{r.ProductID, r.ProductName, r.Category}
		g := groups[k]
		if g == nil {
			g = &agg{}
			groups[k] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.quantity += float64(r.Quantity)
		g.count++
	}

	records := make([]ProductStats, 0, len(groups))
	for k, g := range groups {
		records = append(records, ProductStats{
			ProductID:     k.id,
			ProductName:   k.name,
			Category:      k.category,
			TotalSales:    round2(g.sales),
			TotalProfit:   round2(g.profit),
			TotalQuantity: g.quantity,
			OrderCount:    g.count,
			ProfitMargin:  round2(ratio(g.profit, g.sales, 100)),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TotalSales > records[j].TotalSales })

	top := records
	if len(top) > n {
		top = top[:n]
	}
	bottom := make([]ProductStats, 0, n)
	for i := len(records) - 1; i >= 0 && len(bottom) < n; i-- {
		bottom = append(bottom, records[i])
	}

	return ProductAnalysis{
		TopProducts:    top,
		BottomProducts: bottom,
		TotalProducts:  len(records),
	}, nil
}

type DescriptiveReport struct {
	SummaryStatistics       Summary          `json:"summary_statistics"`
	TimeSeriesAnalysis      TimeSeriesResult `json:"time_series_analysis"`
	CategoryAnalysis        CategoryAnalysis `json:"category_analysis"`
	RegionalAnalysis        RegionAnalysis   `json:"regional_analysis"`
	CustomerSegmentAnalysis SegmentAnalysis  `json:"customer_segment_analysis"`
	ProductAnalysis         ProductAnalysis  `json:"product_analysis"`
}

// Report runs every descriptive analysis concurrently. Individual failures
// are absorbed into empty sections; the report itself always returns.
func (d *Descriptive) Report(ctx context.Context) DescriptiveReport {
	var report DescriptiveReport
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error { report.SummaryStatistics, _ = d.Summary(); return nil })
	g.Go(func() error { report.TimeSeriesAnalysis, _ = d.TimeSeries("Sales", "M"); return nil })
	g.Go(func() error { report.CategoryAnalysis, _ = d.ByCategory(); return nil })
	g.Go(func() error { report.RegionalAnalysis, _ = d.ByRegion(); return nil })
	g.Go(func() error { report.CustomerSegmentAnalysis, _ = d.BySegment(); return nil })
	g.Go(func() error { report.ProductAnalysis, _ = d.TopProducts(20); return nil })

	g.Wait()
	return report
}
