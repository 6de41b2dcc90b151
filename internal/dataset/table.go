package dataset

import (
	"fmt"
	"time"
)

// Row is one sales transaction plus the derived features computed at load.
// Rows are never modified after the table is built.
type Row struct {
	OrderID      string
	OrderDate    time.Time
	ShipDate     time.Time
	CustomerID   string
	ProductID    string
	ProductName  string
	Category     string
	Segment      string
	Region       string
	Country      string
	Sales        float64
	Quantity     int
	Discount     float64
	Profit       float64
	ShippingCost float64

	// Derived at load time.
	Year               int
	Month              int
	Quarter            int
	DayOfWeek          int // 0=Monday .. 6=Sunday
	Week               int
	MonthName          string
	Revenue            float64
	Cost               float64
	ProfitMargin       float64
	DiscountAmount     float64
	DaysToShip         int
	RevenuePerQuantity float64
}

// Metadata describes the loaded dataset.
type Metadata struct {
	TotalRows     int       `json:"total_rows"`
	DateStart     time.Time `json:"date_start"`
	DateEnd       time.Time `json:"date_end"`
	Customers     int       `json:"customers"`
	Products      int       `json:"products"`
	Categories    int       `json:"categories"`
	Regions       int       `json:"regions"`
	Countries     int       `json:"countries"`
	TotalSales    float64   `json:"total_sales"`
	TotalProfit   float64   `json:"total_profit"`
	LoadedAt      time.Time `json:"loaded_at"`
	SkippedRows   int64     `json:"skipped_rows"`
	ColumnNames   []string  `json:"columns"`
}

// Table is an immutable in-memory view of the sales dataset. All analytics
// engines share one instance read-only; a reload builds a fresh Table and
// swaps it in through the Store.
type Table struct {
	rows []Row
	meta Metadata
}

// NewTable derives per-row features, computes metadata and freezes the result.
func NewTable(rows []Row) *Table {
	for i := range rows {
		deriveFeatures(&rows[i])
	}
	return &Table{rows: rows, meta: buildMetadata(rows)}
}

func deriveFeatures(r *Row) {
	r.Year = r.OrderDate.Year()
	r.Month = int(r.OrderDate.Month())
	r.Quarter = (r.Month-1)/3 + 1
	r.DayOfWeek = (int(r.OrderDate.Weekday()) + 6) % 7
	_, r.Week = r.OrderDate.ISOWeek()
	r.MonthName = r.OrderDate.Month().String()

	r.Revenue = r.Sales
	r.Cost = r.Sales - r.Profit
	if r.Sales != 0 {
		r.ProfitMargin = r.Profit / r.Sales * 100
	}
	r.DiscountAmount = r.Sales * r.Discount
	r.DaysToShip = int(r.ShipDate.Sub(r.OrderDate).Hours() / 24)
	if r.Quantity != 0 {
		r.RevenuePerQuantity = r.Sales / float64(r.Quantity)
	}
}

func buildMetadata(rows []Row) Metadata {
	meta := Metadata{
		TotalRows:   len(rows),
		LoadedAt:    time.Now().UTC(),
		ColumnNames: NumericColumns(),
	}

	customers := make(map[string]struct{})
	products := make(map[string]struct{})
	categories := make(map[string]struct{})
	regions := make(map[string]struct{})
	countries := make(map[string]struct{})

	for i, r := range rows {
		if i == 0 || r.OrderDate.Before(meta.DateStart) {
			meta.DateStart = r.OrderDate
		}
		if i == 0 || r.OrderDate.After(meta.DateEnd) {
			meta.DateEnd = r.OrderDate
		}
		customers[r.CustomerID] = struct{}{}
		products[r.ProductID] = struct{}{}
		categories[r.Category] = struct{}{}
		regions[r.Region] = struct{}{}
		countries[r.Country] = struct{}{}
		meta.TotalSales += r.Sales
		meta.TotalProfit += r.Profit
	}

	meta.Customers = len(customers)
	meta.Products = len(products)
	meta.Categories = len(categories)
	meta.Regions = len(regions)
	meta.Countries = len(countries)
	return meta
}

// Len reports the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows exposes the backing rows. Callers must treat the slice as read-only.
func (t *Table) Rows() []Row { return t.rows }

// Metadata returns dataset-level metadata captured at load time.
func (t *Table) Metadata() Metadata { return t.meta }

// ErrUnknownColumn reports a metric name outside the schema contract. Metric
// names are validated here once instead of failing silently deep inside an
// engine method.
type ErrUnknownColumn struct {
	Name string
}

func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// NumericColumns lists every metric name Column accepts.
func NumericColumns() []string {
	return []string{
		"Sales", "Profit", "Quantity", "Discount", "Shipping Cost",
		"Revenue", "Cost", "Profit_Margin", "Discount_Amount",
		"Days_to_Ship", "Revenue_per_Quantity",
	}
}

// Column extracts a numeric column by its schema name.
func (t *Table) Column(name string) ([]float64, error) {
	get, err := columnGetter(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.rows))
	for i := range t.rows {
		out[i] = get(&t.rows[i])
	}
	return out, nil
}

// NumericValue reads a single row's value for a schema metric name.
func NumericValue(r *Row, name string) (float64, error) {
	get, err := columnGetter(name)
	if err != nil {
		return 0, err
	}
	return get(r), nil
}

func columnGetter(name string) (func(*Row) float64, error) {
	switch name {
	case "Sales":
		return func(r *Row) float64 { return r.Sales }, nil
	case "Profit":
		return func(r *Row) float64 { return r.Profit }, nil
	case "Quantity":
		return func(r *Row) float64 { return float64(r.Quantity) }, nil
	case "Discount":
		return func(r *Row) float64 { return r.Discount }, nil
	case "Shipping Cost":
		return func(r *Row) float64 { return r.ShippingCost }, nil
	case "Revenue":
		return func(r *Row) float64 { return r.Revenue }, nil
	case "Cost":
		return func(r *Row) float64 { return r.Cost }, nil
	case "Profit_Margin":
		return func(r *Row) float64 { return r.ProfitMargin }, nil
	case "Discount_Amount":
		return func(r *Row) float64 { return r.DiscountAmount }, nil
	case "Days_to_Ship":
		return func(r *Row) float64 { return float64(r.DaysToShip) }, nil
	case "Revenue_per_Quantity":
		return func(r *Row) float64 { return r.RevenuePerQuantity }, nil
	default:
		return nil, &ErrUnknownColumn{Name: name}
	}
}
