package analytics

import (
	"math"
	"testing"
	"time"

	"salesiq/internal/dataset"
)

// outlierTable has many baseline orders plus one far outlier.
func outlierTable() *dataset.Table {
	rows := make([]dataset.Row, 0, 31)
	for i := 0; i < 30; i++ {
		date := time.Date(2023, 1, 1+i%28, 0, 0, 0, 0, time.UTC)
		rows = append(rows, testRow("O"+string(rune('a'+i%26)), "C1", "P1", date, 100, 10))
	}
	rows = append(rows, testRow("OUT", "C2", "P2", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), 10000, 1000))
	return dataset.NewTable(rows)
}

func TestFindAnomalies_ZScore(t *testing.T) {
	ar, err := NewDiagnostic(outlierTable(), testLogger()).FindAnomalies("Sales", "zscore", 3)
	if err != nil {
		t.Fatalf("FindAnomalies() error = %v", err)
	}

	if ar.TotalAnomalies != 1 {
		t.Fatalf("TotalAnomalies = %d, want 1", ar.TotalAnomalies)
	}
	if ar.Anomalies[0].OrderID != "OUT" {
		t.Errorf("anomaly order = %q, want OUT", ar.Anomalies[0].OrderID)
	}
	if ar.Anomalies[0].Value != 10000 {
		t.Errorf("anomaly value = %v, want 10000", ar.Anomalies[0].Value)
	}
}

func TestFindAnomalies_ThresholdMonotonicity(t *testing.T) {
	d := NewDiagnostic(outlierTable(), testLogger())

	loose, err := d.FindAnomalies("Sales", "zscore", 1)
	if err != nil {
		t.Fatalf("FindAnomalies() error = %v", err)
	}
	strict, err := d.FindAnomalies("Sales", "zscore", 5)
	if err != nil {
		t.Fatalf("FindAnomalies() error = %v", err)
	}
	if strict.TotalAnomalies > loose.TotalAnomalies {
		t.Errorf("raising the threshold grew the anomaly set: %d > %d",
			strict.TotalAnomalies, loose.TotalAnomalies)
	}
}

func TestFindAnomalies_IQR(t *testing.T) {
	ar, err := NewDiagnostic(outlierTable(), testLogger()).FindAnomalies("Sales", "iqr", 0)
	if err != nil {
		t.Fatalf("FindAnomalies() error = %v", err)
	}
	if ar.TotalAnomalies < 1 {
		t.Error("IQR detector should flag the planted outlier")
	}
}

func TestFindAnomalies_BadInputs(t *testing.T) {
	d := NewDiagnostic(outlierTable(), testLogger())
	if _, err := d.FindAnomalies("Nope", "zscore", 3); err == nil {
		t.Error("expected error for unknown metric")
	}
	if _, err := d.FindAnomalies("Sales", "magic", 3); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestFindAnomalies_ConstantSeries(t *testing.T) {
	ar, err := NewDiagnostic(monthlySales(100, 100, 100), testLogger()).FindAnomalies("Sales", "zscore", 3)
	if err != nil {
		t.Fatalf("FindAnomalies() error = %v", err)
	}
	if ar.TotalAnomalies != 0 {
		t.Errorf("constant series flagged %d anomalies, want 0", ar.TotalAnomalies)
	}
}

func TestCorrelations_MatrixProperties(t *testing.T) {
	rows := make([]dataset.Row, 0, 20)
	for i := 0; i < 20; i++ {
		date := time.Date(2023, 1, 1+i, 0, 0, 0, 0, time.UTC)
		r := testRow("O"+string(rune('a'+i)), "C1", "P1", date, float64(100+i*10), float64(10+i))
		r.Quantity = 1 + i%5
		r.Discount = float64(i%4) * 0.1
		rows = append(rows, r)
	}

	cr, err := NewDiagnostic(dataset.NewTable(rows), testLogger()).Correlations(nil)
	if err != nil {
		t.Fatalf("Correlations() error = %v", err)
	}

	for _, m := range cr.MetricsAnalyzed {
		if got := cr.CorrelationMatrix[m][m]; got != 1.0 {
			t.Errorf("diagonal [%s][%s] = %v, want 1.0", m, m, got)
		}
	}
	for _, m1 := range cr.MetricsAnalyzed {
		for _, m2 := range cr.MetricsAnalyzed {
			a, b := cr.CorrelationMatrix[m1][m2], cr.CorrelationMatrix[m2][m1]
			if math.Abs(a-b) > 1e-9 {
				t.Errorf("matrix not symmetric: [%s][%s]=%v, [%s][%s]=%v", m1, m2, a, m2, m1, b)
			}
			if math.IsNaN(a) || math.IsInf(a, 0) {
				t.Errorf("non-finite correlation at [%s][%s]", m1, m2)
			}
		}
	}
	for _, p := range cr.StrongCorrelations {
		if math.Abs(p.Correlation) <= 0.5 {
			t.Errorf("pair %s/%s has |r|=%v, should exceed 0.5", p.Metric1, p.Metric2, math.Abs(p.Correlation))
		}
	}
}

func TestVarianceAnalysis(t *testing.T) {
	rows := []dataset.Row{}
	for i := 0; i < 10; i++ {
		date := time.Date(2023, 1, 1+i, 0, 0, 0, 0, time.UTC)
		low := testRow("L"+string(rune('a'+i)), "C1", "P1", date, float64(90+i), 5)
		high := testRow("H"+string(rune('a'+i)), "C2", "P2", date, float64(900+i*10), 50)
		high.Category = "Furniture"
		rows = append(rows, low, high)
	}

	vr, err := NewDiagnostic(dataset.NewTable(rows), testLogger()).VarianceAnalysis("Category", "Sales")
	if err != nil {
		t.Fatalf("VarianceAnalysis() error = %v", err)
	}

	if len(vr.VarianceAnalysis) != 2 {
		t.Fatalf("groups = %d, want 2", len(vr.VarianceAnalysis))
	}
	if vr.ANOVA.FStatistic <= 0 {
		t.Errorf("F statistic = %v, want > 0", vr.ANOVA.FStatistic)
	}
	if vr.ANOVA.PValue < 0 || vr.ANOVA.PValue > 1 {
		t.Errorf("p-value = %v, out of [0,1]", vr.ANOVA.PValue)
	}
	if !vr.ANOVA.Significant {
		t.Error("widely separated groups should be significant")
	}
}

func TestVarianceAnalysis_SingleGroup(t *testing.T) {
	vr, err := NewDiagnostic(monthlySales(100, 200, 300), testLogger()).VarianceAnalysis("Category", "Sales")
	if err != nil {
		t.Fatalf("VarianceAnalysis() error = %v", err)
	}
	if vr.ANOVA.FStatistic != 0 || vr.ANOVA.PValue != 1 || vr.ANOVA.Significant {
		t.Errorf("single group ANOVA = %+v, want degenerate {0, 1, false}", vr.ANOVA)
	}
}

func TestVarianceAnalysis_UnknownDimension(t *testing.T) {
	if _, err := NewDiagnostic(monthlySales(100), testLogger()).VarianceAnalysis("Planet", "Sales"); err == nil {
		t.Error("expected error for unknown dimension")
	}
}

func TestDiscountBinLabel(t *testing.T) {
	tests := []struct {
		discount float64
		want     string
	}{
		{0, "No Discount"},
		{0.05, "0-10%"},
		{0.1, "0-10%"},
		{0.15, "10-20%"},
		{0.2, "10-20%"},
		{0.25, "20-30%"},
		{0.3, "20-30%"},
		{0.31, "30%+"},
		{0.5, "30%+"},
	}
	for _, tt := range tests {
		if got := discountBinLabel(tt.discount); got != tt.want {
			t.Errorf("discountBinLabel(%v) = %q, want %q", tt.discount, got, tt.want)
		}
	}
}

func TestDiscountImpact_Idempotent(t *testing.T) {
	rows := []dataset.Row{
		testRow("O1", "C1", "P1", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), 100, 40),
		testRow("O2", "C2", "P2", time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC), 200, 20),
		testRow("O3", "C3", "P3", time.Date(2023, 1, 12, 0, 0, 0, 0, time.UTC), 300, 30),
	}
	rows[0].Discount = 0
	rows[1].Discount = 0.15
	rows[2].Discount = 0.4
	table := dataset.NewTable(rows)
	d := NewDiagnostic(table, testLogger())

	first, err := d.DiscountImpact()
	if err != nil {
		t.Fatalf("DiscountImpact() error = %v", err)
	}
	second, err := d.DiscountImpact()
	if err != nil {
		t.Fatalf("DiscountImpact() second run error = %v", err)
	}

	if len(first.DiscountImpact) != len(second.DiscountImpact) {
		t.Fatal("repeated runs produced different bin counts")
	}
	for i := range first.DiscountImpact {
		if first.DiscountImpact[i] != second.DiscountImpact[i] {
			t.Errorf("bin %d differs between runs: %+v vs %+v",
				i, first.DiscountImpact[i], second.DiscountImpact[i])
		}
	}

	// The shared table must come through unchanged.
	if table.Rows()[0].Discount != 0 || table.Rows()[2].Discount != 0.4 {
		t.Error("analysis mutated the shared table")
	}

	bins := map[string]bool{}
	for _, b := range first.DiscountImpact {
		bins[b.Bin] = true
	}
	for _, want := range []string{"No Discount", "10-20%", "30%+"} {
		if !bins[want] {
			t.Errorf("missing bin %q in %v", want, bins)
		}
	}
}

func TestActivitySegment(t *testing.T) {
	tests := []struct {
		orders int
		want   string
	}{
		{1, "Occasional"},
		{2, "Occasional"},
		{3, "Regular"},
		{5, "Regular"},
		{6, "Frequent"},
		{10, "Frequent"},
		{11, "VIP"},
	}
	for _, tt := range tests {
		if got := activitySegment(tt.orders); got != tt.want {
			t.Errorf("activitySegment(%d) = %q, want %q", tt.orders, got, tt.want)
		}
	}
}

func TestCustomerBehavior(t *testing.T) {
	rows := []dataset.Row{}
	for i := 0; i < 12; i++ {
		date := time.Date(2023, time.Month(1+i%12), 5, 0, 0, 0, 0, time.UTC)
		rows = append(rows, testRow("V"+string(rune('a'+i)), "VIP1", "P1", date, 100, 10))
	}
	rows = append(rows, testRow("O1", "OCC1", "P2", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 50, 5))

	cb, err := NewDiagnostic(dataset.NewTable(rows), testLogger()).CustomerBehavior()
	if err != nil {
		t.Fatalf("CustomerBehavior() error = %v", err)
	}

	if len(cb.TopCustomers) != 2 {
		t.Fatalf("TopCustomers = %d, want 2", len(cb.TopCustomers))
	}
	if cb.TopCustomers[0].CustomerID != "VIP1" {
		t.Error("top customer should be VIP1")
	}
	segments := map[string]string{}
	for _, s := range cb.CustomerSegments {
		segments[s.Segment] = s.Segment
	}
	if _, found := segments["VIP"]; !found {
		t.Errorf("segments = %v, want VIP present", segments)
	}
	if _, found := segments["Occasional"]; !found {
		t.Errorf("segments = %v, want Occasional present", segments)
	}
	if got := cb.AverageOrderCount; math.Abs(got-6.5) > 1e-9 {
		t.Errorf("AverageOrderCount = %v, want 6.5", got)
	}
}

func TestSeasonality(t *testing.T) {
	// Strong winter/summer split across two years.
	rows := []dataset.Row{}
	for year := 2022; year <= 2023; year++ {
		for m := 1; m <= 12; m++ {
			sales := 100.0
			if m == 12 {
				sales = 1000
			}
			date := time.Date(year, time.Month(m), 10, 0, 0, 0, 0, time.UTC)
			rows = append(rows, testRow("O"+string(rune('a'+m))+string(rune('0'+year-2022)), "C1", "P1", date, sales, 10))
		}
	}

	sr, err := NewDiagnostic(dataset.NewTable(rows), testLogger()).Seasonality("Sales")
	if err != nil {
		t.Fatalf("Seasonality() error = %v", err)
	}

	if !sr.HasSeasonality {
		t.Error("December spike should flag seasonality")
	}
	if len(sr.MonthlyPattern) != 12 {
		t.Errorf("monthly patterns = %d, want 12", len(sr.MonthlyPattern))
	}
	if len(sr.QuarterlyPattern) != 4 {
		t.Errorf("quarterly patterns = %d, want 4", len(sr.QuarterlyPattern))
	}
}

func TestRootCause(t *testing.T) {
	// January is far below the rest of the year.
	rows := []dataset.Row{}
	for m := 1; m <= 6; m++ {
		sales := 1000.0
		if m == 1 {
			sales = 100
		}
		r := testRow("O"+string(rune('a'+m)), "C1", "P1", time.Date(2023, time.Month(m), 10, 0, 0, 0, 0, time.UTC), sales, sales*0.1)
		r.Discount = 0.25
		rows = append(rows, r)
	}

	rc, err := NewDiagnostic(dataset.NewTable(rows), testLogger()).RootCause("Sales", "2023-01")
	if err != nil {
		t.Fatalf("RootCause() error = %v", err)
	}

	if len(rc.Insights) == 0 {
		t.Error("a clearly depressed period should surface at least one insight")
	}
	if len(rc.Recommendations) == 0 {
		t.Error("triggered rules should emit recommendations")
	}
	if len(rc.ContributingFactors) != 2 {
		t.Errorf("contributing factors = %d, want 2", len(rc.ContributingFactors))
	}
}
