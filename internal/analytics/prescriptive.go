package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"salesiq/internal/dataset"
)

// Prescriptive answers "what should be done": stocking, pricing, marketing
// budget, retention and bundling recommendations. RFM segmentation measures
// recency against an injectable clock.
type Prescriptive struct {
	table  *dataset.Table
	logger *slog.Logger
	now    func() time.Time
}

type PrescriptiveOption func(*Prescriptive)

// WithPrescriptiveClock overrides the wall clock used for recency windows.
func WithPrescriptiveClock(clock func() time.Time) PrescriptiveOption {
	return func(p *Prescriptive) { p.now = clock }
}

func NewPrescriptive(t *dataset.Table, logger *slog.Logger, opts ...PrescriptiveOption) *Prescriptive {
	p := &Prescriptive{table: t, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type InventoryRecommendation struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	TotalQuantity  float64 `json:"total_quantity"`
	TotalSales     float64 `json:"total_sales"`
	DailyVelocity  float64 `json:"daily_velocity"`
	Recommendation string  `json:"recommendation"`
}

type InventoryResult struct {
	Recommendations []InventoryRecommendation `json:"recommendations"`
	Summary         map[string]int            `json:"summary"`
	PriorityActions []InventoryRecommendation `json:"priority_actions"`
	TotalProducts   int                       `json:"total_products"`
}

// OptimizeInventory classifies products by daily sales velocity against the
// 75th and 25th percentiles of the whole catalog.
func (p *Prescriptive) OptimizeInventory() (InventoryResult, error) {
	type key struct{ id, name string }
	type agg struct {
		quantity, sales float64
		first, last     time.Time
	}
	groups := make(map[key]*agg)
	for _, r := range p.table.Rows() {
		k := key{r.ProductID, r.ProductName}
		g := groups[k]
		if g == nil {
			g = &agg{first: r.OrderDate, last: r.OrderDate}
			groups[k] = g
		}
		g.quantity += float64(r.Quantity)
		g.sales += r.Sales
		if r.OrderDate.Before(g.first) {
			g.first = r.OrderDate
		}
		if r.OrderDate.After(g.last) {
			g.last = r.OrderDate
		}
	}
	if len(groups) == 0 {
		return InventoryResult{}, unavailable("optimize_inventory", nil)
	}

	recs := make([]InventoryRecommendation, 0, len(groups))
	velocities := make([]float64, 0, len(groups))
	for k, g := range groups {
		days := g.last.Sub(g.first).Hours() / 24
		if days < 1 {
			days = 1
		}
		velocity := g.quantity / days
		velocities = append(velocities, velocity)
		recs = append(recs, InventoryRecommendation{
			ProductID:     k.id,
			ProductName:   k.name,
			TotalQuantity: g.quantity,
			TotalSales:    round2(g.sales),
			DailyVelocity: round4(velocity),
		})
	}

	p75 := percentile(velocities, 75)
	p25 := percentile(velocities, 25)
	summary := map[string]int{"Increase Stock": 0, "Reduce Stock": 0, "Maintain Current Level": 0}
	for i := range recs {
		switch {
		case recs[i].DailyVelocity > p75:
			recs[i].Recommendation = "Increase Stock"
		case recs[i].DailyVelocity < p25:
			recs[i].Recommendation = "Reduce Stock"
		default:
			recs[i].Recommendation = "Maintain Current Level"
		}
		summary[recs[i].Recommendation]++
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].TotalSales > recs[j].TotalSales })

	var priority []InventoryRecommendation
	for _, r := range recs {
		if r.Recommendation == "Increase Stock" {
			priority = append(priority, r)
			if len(priority) == 10 {
				break
			}
		}
	}
	if priority == nil {
		priority = []InventoryRecommendation{}
	}

	return InventoryResult{
		Recommendations: recs,
		Summary:         summary,
		PriorityActions: priority,
		TotalProducts:   len(recs),
	}, nil
}

type categoryPricing struct {
	category                string
	sales, profit           float64
	margin, discount, price float64
}

// pricingRules maps category economics to an action. Rules are evaluated in
// order; the first match wins.
var pricingRules = []struct {
	applies        func(categoryPricing) bool
	action         string
	rationale      string
	expectedImpact func(categoryPricing) float64
}{
	{
		applies:        func(c categoryPricing) bool { return c.margin < 20 && c.discount > 0.15 },
		action:         "Reduce Discounts",
		rationale:      "Low margin with high discounting is eroding profitability",
		expectedImpact: func(c categoryPricing) float64 { return c.sales * 0.05 },
	},
	{
		applies:        func(c categoryPricing) bool { return c.margin > 40 },
		action:         "Consider Price Reduction",
		rationale:      "High margin suggests headroom to grow volume through pricing",
		expectedImpact: func(c categoryPricing) float64 { return 0 },
	},
}

type PricingRecommendation struct {
	Category       string  `json:"category"`
	CurrentMargin  float64 `json:"current_margin"`
	AvgDiscount    float64 `json:"avg_discount"`
	AvgPrice       float64 `json:"avg_price"`
	Action         string  `json:"action"`
	Rationale      string  `json:"rationale"`
	ExpectedImpact float64 `json:"expected_impact"`
	TargetDiscount string  `json:"target_discount,omitempty"`
}

type PricingResult struct {
	Recommendations []PricingRecommendation `json:"recommendations"`
	TotalCategories int                     `json:"total_categories"`
}

// OptimizePricing evaluates each category's margin and discount posture
// against the pricing rule table.
func (p *Prescriptive) OptimizePricing() (PricingResult, error) {
	type agg struct {
		sales, profit, discount, price float64
		count                          int
	}
	groups := make(map[string]*agg)
	for _, r := range p.table.Rows() {
		g := groups[r.Category]
		if g == nil {
			g = &agg{}
			groups[r.Category] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.discount += r.Discount
		g.price += r.RevenuePerQuantity
		g.count++
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	recs := make([]PricingRecommendation, 0, len(names))
	for _, name := range names {
		g := groups[name]
		c := categoryPricing{
			category: name,
			sales:    g.sales,
			profit:   g.profit,
			margin:   ratio(g.profit, g.sales, 100),
			discount: ratio(g.discount, float64(g.count), 1),
			price:    ratio(g.price, float64(g.count), 1),
		}
		rec := PricingRecommendation{
			Category:       name,
			CurrentMargin:  round2(c.margin),
			AvgDiscount:    round4(c.discount),
			AvgPrice:       round2(c.price),
			Action:         "Maintain Current Strategy",
			Rationale:      "Margin and discount levels are balanced",
			ExpectedImpact: 0,
		}
		for _, rule := range pricingRules {
			if rule.applies(c) {
				rec.Action = rule.action
				rec.Rationale = rule.rationale
				rec.ExpectedImpact = round2(rule.expectedImpact(c))
				if rule.action == "Reduce Discounts" {
					rec.TargetDiscount = "10-12%"
				}
				break
			}
		}
		recs = append(recs, rec)
	}

	return PricingResult{Recommendations: recs, TotalCategories: len(recs)}, nil
}

type MarketingAllocation struct {
	Region           string  `json:"region"`
	TotalSales       float64 `json:"total_sales"`
	ProfitMargin     float64 `json:"profit_margin"`
	CustomerCount    int     `json:"customer_count"`
	SalesPerCustomer float64 `json:"sales_per_customer"`
	ROIScore         float64 `json:"roi_score"`
	BudgetAllocation float64 `json:"budget_allocation_pct"`
	Priority         string  `json:"priority"`
}

type MarketingResult struct {
	Allocations []MarketingAllocation `json:"allocations"`
	TopRegion   string                `json:"top_region"`
	Strategy    string                `json:"strategy"`
}

// OptimizeMarketingSpend allocates a proportional budget by regional ROI,
// scored as margin times sales-per-customer.
func (p *Prescriptive) OptimizeMarketingSpend() (MarketingResult, error) {
	type agg struct {
		sales, profit float64
		customers     map[string]struct{}
	}
	groups := make(map[string]*agg)
	for _, r := range p.table.Rows() {
		g := groups[r.Region]
		if g == nil {
			g = &agg{customers: make(map[string]struct{})}
			groups[r.Region] = g
		}
		g.sales += r.Sales
		g.profit += r.Profit
		g.customers[r.CustomerID] = struct{}{}
	}
	if len(groups) == 0 {
		return MarketingResult{}, unavailable("optimize_marketing_spend", nil)
	}

	allocations := make([]MarketingAllocation, 0, len(groups))
	scores := make([]float64, 0, len(groups))
	var totalScore float64
	for region, g := range groups {
		margin := ratio(g.profit, g.sales, 100)
		spc := ratio(g.sales, float64(len(g.customers)), 1)
		score := margin * spc / 100
		scores = append(scores, score)
		totalScore += score
		allocations = append(allocations, MarketingAllocation{
			Region:           region,
			TotalSales:       round2(g.sales),
			ProfitMargin:     round2(margin),
			CustomerCount:    len(g.customers),
			SalesPerCustomer: round2(spc),
			ROIScore:         round2(score),
		})
	}

	med := median(scores)
	for i := range allocations {
		allocations[i].BudgetAllocation = round2(ratio(allocations[i].ROIScore, totalScore, 100))
		if allocations[i].ROIScore > med {
			allocations[i].Priority = "High"
		} else {
			allocations[i].Priority = "Medium"
		}
	}
	sort.Slice(allocations, func(i, j int) bool { return allocations[i].ROIScore > allocations[j].ROIScore })

	return MarketingResult{
		Allocations: allocations,
		TopRegion:   allocations[0].Region,
		Strategy:    "Allocate marketing budget proportionally to regional ROI scores",
	}, nil
}

type retentionSegmentPlan struct {
	strategy string
	actions  []string
}

var retentionPlans = map[string]retentionSegmentPlan{
	"Champions": {
		strategy: "Reward and retain",
		actions:  []string{"Offer loyalty program benefits", "Provide early access to new products", "Request referrals and reviews"},
	},
	"Promising": {
		strategy: "Nurture into loyalty",
		actions:  []string{"Send personalized product recommendations", "Offer a second-purchase incentive"},
	},
	"At Risk": {
		strategy: "Re-engage before they lapse",
		actions:  []string{"Send win-back campaign with targeted discount", "Survey for dissatisfaction signals"},
	},
	"Lost": {
		strategy: "Win back selectively",
		actions:  []string{"Run a reactivation offer for high historical spenders", "Remove chronic non-responders from paid channels"},
	},
}

// rfmSegment buckets a customer by recency and frequency. Exactly 180 days
// is Lost; 179 is still At Risk.
func rfmSegment(daysSinceLast, orders int) string {
	switch {
	case daysSinceLast < 90 && orders >= 5:
		return "Champions"
	case daysSinceLast < 90:
		return "Promising"
	case daysSinceLast < 180:
		return "At Risk"
	default:
		return "Lost"
	}
}

type RetentionSegment struct {
	Segment       string   `json:"segment"`
	CustomerCount int      `json:"customer_count"`
	TotalSales    float64  `json:"total_sales"`
	Strategy      string   `json:"strategy"`
	Actions       []string `json:"actions"`
}

type RetentionResult struct {
	Segments         []RetentionSegment `json:"segments"`
	PrioritySegments []string           `json:"priority_segments"`
	TotalCustomers   int                `json:"total_customers"`
}

// RecommendRetentionStrategy segments customers by recency and frequency and
// attaches the fixed strategy plan for each segment.
func (p *Prescriptive) RecommendRetentionStrategy() (RetentionResult, error) {
	customers := customerProfiles(p.table.Rows())
	now := p.now()

	type agg struct {
		count int
		sales float64
	}
	segments := make(map[string]*agg)
	for _, c := range customers {
		days := int(now.Sub(c.last).Hours() / 24)
		name := rfmSegment(days, c.orders)
		g := segments[name]
		if g == nil {
			g = &agg{}
			segments[name] = g
		}
		g.count++
		g.sales += c.sales
	}

	order := []string{"Champions", "Promising", "At Risk", "Lost"}
	out := make([]RetentionSegment, 0, len(order))
	for _, name := range order {
		g := segments[name]
		if g == nil {
			continue
		}
		plan := retentionPlans[name]
		out = append(out, RetentionSegment{
			Segment:       name,
			CustomerCount: g.count,
			TotalSales:    round2(g.sales),
			Strategy:      plan.strategy,
			Actions:       plan.actions,
		})
	}

	return RetentionResult{
		Segments:         out,
		PrioritySegments: []string{"At Risk", "Lost"},
		TotalCustomers:   len(customers),
	}, nil
}

type BundleRecommendation struct {
	Bundle     string    `json:"bundle"`
	Frequency  int       `json:"frequency"`
	ProductIDs [2]string `json:"product_ids"`
}

type BundleResult struct {
	Bundles      []BundleRecommendation `json:"bundles"`
	TotalBundles int                    `json:"total_bundles"`
	Basis        string                 `json:"basis"`
}

// RecommendProductBundle counts unordered product pairs co-purchased on the
// same order and surfaces the ten most frequent.
func (p *Prescriptive) RecommendProductBundle() (BundleResult, error) {
	type product struct{ id, name string }
	orders := make(map[string][]product)
	for _, r := range p.table.Rows() {
		orders[r.OrderID] = append(orders[r.OrderID], product{r.ProductID, r.ProductName})
	}

	type pairKey struct{ a, b string }
	counts := make(map[pairKey]int)
	names := make(map[pairKey][2]string)
	for _, products := range orders {
		if len(products) < 2 {
			continue
		}
		seen := make(map[string]product, len(products))
		for _, pr := range products {
			seen[pr.id] = pr
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				k := pairKey{ids[i], ids[j]}
				counts[k]++
				names[k] = [2]string{seen[ids[i]].name, seen[ids[j]].name}
			}
		}
	}

	bundles := make([]BundleRecommendation, 0, len(counts))
	for k, freq := range counts {
		n := names[k]
		bundles = append(bundles, BundleRecommendation{
			Bundle:     fmt.Sprintf("%s + %s", truncate(n[0], 20), truncate(n[1], 20)),
			Frequency:  freq,
			ProductIDs: [2]string{k.a, k.b},
		})
	}
	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].Frequency != bundles[j].Frequency {
			return bundles[i].Frequency > bundles[j].Frequency
		}
		return bundles[i].Bundle < bundles[j].Bundle
	})
	if len(bundles) > 10 {
		bundles = bundles[:10]
	}

	return BundleResult{
		Bundles:      bundles,
		TotalBundles: len(bundles),
		Basis:        "Co-purchase frequency within the same order",
	}, nil
}

type ActionItem struct {
	Priority  int    `json:"priority"`
	Area      string `json:"area"`
	Action    string `json:"action"`
	Timeline  string `json:"timeline"`
	Rationale string `json:"rationale"`
}

type ActionPlanResult struct {
	ActionPlan []ActionItem `json:"action_plan"`
	Horizon    string       `json:"horizon"`
}

// GenerateActionPlan returns the standing operational checklist. It does not
// depend on the dataset.
func (p *Prescriptive) GenerateActionPlan() (ActionPlanResult, error) {
	return ActionPlanResult{
		ActionPlan: []ActionItem{
			{Priority: 1, Area: "Inventory", Action: "Rebalance stock toward high-velocity products", Timeline: "2 weeks", Rationale: "Stockouts on fast movers cost more than overstock on slow movers"},
			{Priority: 2, Area: "Pricing", Action: "Review discount policy in low-margin categories", Timeline: "1 month", Rationale: "Deep discounts in thin-margin categories compound losses"},
			{Priority: 3, Area: "Retention", Action: "Launch win-back campaign for at-risk customers", Timeline: "2 weeks", Rationale: "Re-engaging a lapsing customer is cheaper than acquiring a new one"},
			{Priority: 4, Area: "Marketing", Action: "Shift budget toward highest-ROI regions", Timeline: "1 quarter", Rationale: "Regional ROI spread justifies reallocation"},
			{Priority: 5, Area: "Merchandising", Action: "Pilot top co-purchase bundles", Timeline: "1 month", Rationale: "Frequently co-purchased products lift average order value when bundled"},
		},
		Horizon: "90 days",
	}, nil
}

type PrescriptiveReport struct {
	InventoryOptimization InventoryResult  `json:"inventory_optimization"`
	PricingOptimization   PricingResult    `json:"pricing_optimization"`
	MarketingOptimization MarketingResult  `json:"marketing_optimization"`
	RetentionStrategy     RetentionResult  `json:"retention_strategy"`
	ProductBundles        BundleResult     `json:"product_bundles"`
	ActionPlan            ActionPlanResult `json:"action_plan"`
}

// Report runs every prescriptive analysis concurrently. Individual failures
// are absorbed into empty sections; the report itself always returns.
func (p *Prescriptive) Report(ctx context.Context) PrescriptiveReport {
	var report PrescriptiveReport
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error { report.InventoryOptimization, _ = p.OptimizeInventory(); return nil })
	g.Go(func() error { report.PricingOptimization, _ = p.OptimizePricing(); return nil })
	g.Go(func() error { report.MarketingOptimization, _ = p.OptimizeMarketingSpend(); return nil })
	g.Go(func() error { report.RetentionStrategy, _ = p.RecommendRetentionStrategy(); return nil })
	g.Go(func() error { report.ProductBundles, _ = p.RecommendProductBundle(); return nil })
	g.Go(func() error { report.ActionPlan, _ = p.GenerateActionPlan(); return nil })

	g.Wait()
	return report
}
