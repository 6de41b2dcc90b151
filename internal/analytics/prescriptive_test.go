package analytics

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"salesiq/internal/dataset"
)

func TestRFMSegment(t *testing.T) {
	tests := []struct {
		days   int
		orders int
		want   string
	}{
		{10, 5, "Champions"},
		{89, 8, "Champions"},
		{10, 4, "Promising"},
		{89, 1, "Promising"},
		{90, 10, "At Risk"},
		{179, 2, "At Risk"},
		{180, 10, "Lost"},
		{400, 1, "Lost"},
	}
	for _, tt := range tests {
		if got := rfmSegment(tt.days, tt.orders); got != tt.want {
			t.Errorf("rfmSegment(%d, %d) = %q, want %q", tt.days, tt.orders, got, tt.want)
		}
	}
}

func TestRecommendRetentionStrategy(t *testing.T) {
	now := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	rows := []dataset.Row{}
	// Champion: five recent orders.
	for i := 0; i < 5; i++ {
		rows = append(rows, testRow("CH"+string(rune('a'+i)), "CHAMP", "P1", now.AddDate(0, 0, -10-i), 100, 10))
	}
	// Promising: one recent order.
	rows = append(rows, testRow("PR1", "PROM", "P2", now.AddDate(0, 0, -30), 50, 5))
	// At Risk: last seen 100 days ago.
	rows = append(rows, testRow("AR1", "RISK", "P3", now.AddDate(0, 0, -100), 80, 8))
	// Lost: last seen 200 days ago.
	rows = append(rows, testRow("LO1", "LOST", "P4", now.AddDate(0, 0, -200), 60, 6))

	p := NewPrescriptive(dataset.NewTable(rows), testLogger(), WithPrescriptiveClock(fixedClock(now)))
	rr, err := p.RecommendRetentionStrategy()
	if err != nil {
		t.Fatalf("RecommendRetentionStrategy() error = %v", err)
	}

	if rr.TotalCustomers != 4 {
		t.Fatalf("TotalCustomers = %d, want 4", rr.TotalCustomers)
	}
	if len(rr.Segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(rr.Segments))
	}
	wantOrder := []string{"Champions", "Promising", "At Risk", "Lost"}
	for i, seg := range rr.Segments {
		if seg.Segment != wantOrder[i] {
			t.Errorf("segment %d = %q, want %q", i, seg.Segment, wantOrder[i])
		}
		if seg.CustomerCount != 1 {
			t.Errorf("%s count = %d, want 1", seg.Segment, seg.CustomerCount)
		}
		if seg.Strategy == "" || len(seg.Actions) == 0 {
			t.Errorf("%s missing strategy plan", seg.Segment)
		}
	}
	if len(rr.PrioritySegments) != 2 {
		t.Errorf("PrioritySegments = %v, want At Risk and Lost", rr.PrioritySegments)
	}
}

func TestOptimizeInventory(t *testing.T) {
	// Eight products sold on a single day, so daily velocity equals the
	// ordered quantity. One clear fast mover and one clear slow mover.
	day := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	quantities := map[string]int{
		"Slowest": 1, "Slow": 2, "P3": 3, "P4": 4,
		"P5": 5, "P6": 6, "P7": 7, "Fastest": 40,
	}
	rows := []dataset.Row{}
	for name, q := range quantities {
		r := testRow("O-"+name, "C1", name, day, float64(q)*100, float64(q)*10)
		r.ProductID = "ID-" + name
		r.Quantity = q
		rows = append(rows, r)
	}

	ir, err := NewPrescriptive(dataset.NewTable(rows), testLogger()).OptimizeInventory()
	if err != nil {
		t.Fatalf("OptimizeInventory() error = %v", err)
	}

	if ir.TotalProducts != 8 {
		t.Fatalf("TotalProducts = %d, want 8", ir.TotalProducts)
	}
	byName := map[string]InventoryRecommendation{}
	for _, r := range ir.Recommendations {
		byName[r.ProductName] = r
	}
	if got := byName["Fastest"].Recommendation; got != "Increase Stock" {
		t.Errorf("Fastest = %q, want Increase Stock", got)
	}
	if got := byName["Slowest"].Recommendation; got != "Reduce Stock" {
		t.Errorf("Slowest = %q, want Reduce Stock", got)
	}
	if got := byName["P5"].Recommendation; got != "Maintain Current Level" {
		t.Errorf("P5 = %q, want Maintain Current Level", got)
	}
	if len(ir.PriorityActions) == 0 || ir.PriorityActions[0].ProductName != "Fastest" {
		t.Errorf("PriorityActions = %+v, want Fastest first", ir.PriorityActions)
	}
	total := 0
	for _, n := range ir.Summary {
		total += n
	}
	if total != 8 {
		t.Errorf("summary counts sum to %d, want 8", total)
	}
}

func TestOptimizeInventory_EmptyTable(t *testing.T) {
	if _, err := NewPrescriptive(dataset.NewTable(nil), testLogger()).OptimizeInventory(); err == nil {
		t.Fatal("expected error for empty table")
	}
}

// pricingRow builds an order whose margin and discount are fully controlled.
func pricingRow(order, category string, sales, margin, discount float64) dataset.Row {
	r := testRow(order, "C1", "P-"+category, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), sales, sales*margin/100)
	r.Category = category
	r.Discount = discount
	return r
}

func TestOptimizePricing(t *testing.T) {
	rows := []dataset.Row{
		pricingRow("O1", "Technology", 1000, 10, 0.25),
		pricingRow("O2", "Furniture", 1000, 50, 0.05),
		pricingRow("O3", "Office Supplies", 1000, 30, 0.05),
	}

	pr, err := NewPrescriptive(dataset.NewTable(rows), testLogger()).OptimizePricing()
	if err != nil {
		t.Fatalf("OptimizePricing() error = %v", err)
	}
	if pr.TotalCategories != 3 {
		t.Fatalf("TotalCategories = %d, want 3", pr.TotalCategories)
	}

	byCategory := map[string]PricingRecommendation{}
	for _, r := range pr.Recommendations {
		byCategory[r.Category] = r
	}

	tech := byCategory["Technology"]
	if tech.Action != "Reduce Discounts" {
		t.Errorf("Technology action = %q, want Reduce Discounts", tech.Action)
	}
	if tech.TargetDiscount != "10-12%" {
		t.Errorf("Technology target discount = %q, want 10-12%%", tech.TargetDiscount)
	}
	if math.Abs(tech.ExpectedImpact-50) > 1e-9 {
		t.Errorf("Technology expected impact = %v, want 50", tech.ExpectedImpact)
	}

	if got := byCategory["Furniture"].Action; got != "Consider Price Reduction" {
		t.Errorf("Furniture action = %q, want Consider Price Reduction", got)
	}
	if got := byCategory["Office Supplies"].Action; got != "Maintain Current Strategy" {
		t.Errorf("Office Supplies action = %q, want Maintain Current Strategy", got)
	}
}

func TestOptimizeMarketingSpend(t *testing.T) {
	rows := []dataset.Row{
		testRow("E1", "CE1", "P1", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1000, 400),
		testRow("E2", "CE2", "P1", time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), 1000, 400),
	}
	west1 := testRow("W1", "CW1", "P2", time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), 200, 10)
	west1.Region = "West"
	rows = append(rows, west1)

	mr, err := NewPrescriptive(dataset.NewTable(rows), testLogger()).OptimizeMarketingSpend()
	if err != nil {
		t.Fatalf("OptimizeMarketingSpend() error = %v", err)
	}

	if mr.TopRegion != "East" {
		t.Errorf("TopRegion = %q, want East", mr.TopRegion)
	}
	var totalBudget float64
	for _, a := range mr.Allocations {
		totalBudget += a.BudgetAllocation
		if a.ROIScore < 0 {
			t.Errorf("region %s has negative ROI score %v", a.Region, a.ROIScore)
		}
	}
	// Allocations are proportional shares; rounding keeps them near 100.
	if math.Abs(totalBudget-100) > 0.1 {
		t.Errorf("budget allocations sum to %v, want ~100", totalBudget)
	}
	if mr.Allocations[0].CustomerCount != 2 {
		t.Errorf("East customer count = %d, want 2", mr.Allocations[0].CustomerCount)
	}
}

func TestRecommendProductBundle(t *testing.T) {
	day := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	mkRow := func(order, productID, productName string) dataset.Row {
		r := testRow(order, "C1", productName, day, 100, 10)
		r.ProductID = productID
		return r
	}
	rows := []dataset.Row{
		// A+B bought together twice, B+C once.
		mkRow("O1", "PA", "Alpha"),
		mkRow("O1", "PB", "Beta"),
		mkRow("O2", "PA", "Alpha"),
		mkRow("O2", "PB", "Beta"),
		// Duplicate line item for the same product must not inflate counts.
		mkRow("O2", "PB", "Beta"),
		mkRow("O3", "PB", "Beta"),
		mkRow("O3", "PC", "An Exceedingly Long Product Name"),
		// Single-product order contributes nothing.
		mkRow("O4", "PA", "Alpha"),
	}

	br, err := NewPrescriptive(dataset.NewTable(rows), testLogger()).RecommendProductBundle()
	if err != nil {
		t.Fatalf("RecommendProductBundle() error = %v", err)
	}

	if br.TotalBundles != 2 {
		t.Fatalf("TotalBundles = %d, want 2", br.TotalBundles)
	}
	top := br.Bundles[0]
	if top.Frequency != 2 {
		t.Errorf("top bundle frequency = %d, want 2", top.Frequency)
	}
	if top.ProductIDs != [2]string{"PA", "PB"} {
		t.Errorf("top bundle ids = %v, want [PA PB]", top.ProductIDs)
	}
	if top.Bundle != "Alpha + Beta" {
		t.Errorf("top bundle = %q, want Alpha + Beta", top.Bundle)
	}

	second := br.Bundles[1]
	for _, part := range strings.Split(second.Bundle, " + ") {
		if len(part) > 20 {
			t.Errorf("bundle part %q exceeds 20 characters", part)
		}
	}
}

func TestGenerateActionPlan(t *testing.T) {
	ap, err := NewPrescriptive(dataset.NewTable(nil), testLogger()).GenerateActionPlan()
	if err != nil {
		t.Fatalf("GenerateActionPlan() error = %v", err)
	}
	if len(ap.ActionPlan) == 0 {
		t.Fatal("action plan should not be empty")
	}
	for i, item := range ap.ActionPlan {
		if item.Priority != i+1 {
			t.Errorf("item %d priority = %d, want %d", i, item.Priority, i+1)
		}
		if item.Action == "" || item.Timeline == "" {
			t.Errorf("item %d incomplete: %+v", i, item)
		}
	}
}

func TestPrescriptiveReport(t *testing.T) {
	now := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	table := monthlySales(100, 200, 300)
	p := NewPrescriptive(table, testLogger(), WithPrescriptiveClock(fixedClock(now)))

	report := p.Report(context.Background())

	if report.RetentionStrategy.TotalCustomers == 0 {
		t.Error("retention section should cover the fixture customers")
	}
	if report.PricingOptimization.TotalCategories == 0 {
		t.Error("pricing section should cover the fixture categories")
	}
	if len(report.ActionPlan.ActionPlan) == 0 {
		t.Error("action plan section should be populated")
	}
}
