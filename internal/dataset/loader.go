package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

var requiredColumns = []string{
	"Order ID", "Order Date", "Ship Date", "Customer ID", "Product ID",
	"Product Name", "Category", "Segment", "Region", "Country",
	"Sales", "Quantity", "Discount", "Profit", "Shipping Cost",
}

var dateLayouts = []string{"2006-01-02", "1/2/2006", "2006-01-02 15:04:05"}

// Loader parses the sales CSV into an immutable Table.
type Loader struct {
	logger  *slog.Logger
	skipped atomic.Int64
}

func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Skipped reports how many malformed rows the most recent Load discarded.
func (l *Loader) Skipped() int {
	return int(l.skipped.Load())
}

// Load reads and parses the CSV at path. The header is validated against the
// schema contract up front so a missing column fails here with a clear error
// instead of surfacing as an empty analysis later.
func (l *Loader) Load(ctx context.Context, path string) (*Table, error) {
	start := time.Now()
	l.skipped.Store(0)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx, err := schemaIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		rows []Row
		mu   sync.Mutex
	)

	batch := make([][]string, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		parsed, err := l.parseBatch(ctx, batch, idx)
		if err != nil {
			return err
		}
		mu.Lock()
		rows = append(rows, parsed...)
		mu.Unlock()
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// A malformed record is skipped like any other bad row; the
			// reader resumes at the next line.
			l.skipped.Add(1)
			l.logger.Warn("skipping malformed csv record", "line", parseErr.Line, "error", parseErr.Err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		batch = append(batch, record)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", path)
	}

	table := NewTable(rows)
	table.meta.SkippedRows = l.skipped.Load()

	l.logger.Info("dataset loaded",
		"path", path,
		"rows", table.Len(),
		"skipped", l.skipped.Load(),
		"duration", time.Since(start),
	)

	return table, nil
}

func (l *Loader) parseBatch(ctx context.Context, batch [][]string, idx map[string]int) ([]Row, error) {
	var wg errgroup.Group
	wg.SetLimit(maxWorkers)

	out := make([]Row, len(batch))
	ok := make([]bool, len(batch))

	for i, record := range batch {
		wg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			row, err := parseRow(record, idx)
			if err != nil {
				l.skipped.Add(1)
				return nil // malformed rows are skipped, not fatal
			}
			out[i] = row
			ok[i] = true
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(batch))
	for i := range out {
		if ok[i] {
			rows = append(rows, out[i])
		}
	}
	return rows, nil
}

func schemaIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, found := idx[col]; !found {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("schema violation: missing columns %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRow(record []string, idx map[string]int) (Row, error) {
	field := func(name string) (string, error) {
		i := idx[name]
		if i >= len(record) {
			return "", fmt.Errorf("record too short for %q", name)
		}
		return strings.TrimSpace(record[i]), nil
	}

	var row Row
	var err error

	strFields := []struct {
		name string
		dst  *string
	}{
		{"Order ID", &row.OrderID},
		{"Customer ID", &row.CustomerID},
		{"Product ID", &row.ProductID},
		{"Product Name", &row.ProductName},
		{"Category", &row.Category},
		{"Segment", &row.Segment},
		{"Region", &row.Region},
		{"Country", &row.Country},
	}
	for _, f := range strFields {
		if *f.dst, err = field(f.name); err != nil {
			return Row{}, err
		}
	}

	if row.OrderDate, err = parseDate(record, idx, "Order Date"); err != nil {
		return Row{}, err
	}
	if row.ShipDate, err = parseDate(record, idx, "Ship Date"); err != nil {
		return Row{}, err
	}

	floatFields := []struct {
		name string
		dst  *float64
	}{
		{"Sales", &row.Sales},
		{"Discount", &row.Discount},
		{"Profit", &row.Profit},
		{"Shipping Cost", &row.ShippingCost},
	}
	for _, f := range floatFields {
		raw, err := field(f.name)
		if err != nil {
			return Row{}, err
		}
		if *f.dst, err = strconv.ParseFloat(raw, 64); err != nil {
			return Row{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
	}

	qty, err := field("Quantity")
	if err != nil {
		return Row{}, err
	}
	if row.Quantity, err = strconv.Atoi(qty); err != nil {
		return Row{}, fmt.Errorf("parse Quantity: %w", err)
	}

	return row, nil
}

func parseDate(record []string, idx map[string]int, name string) (time.Time, error) {
	i := idx[name]
	if i >= len(record) {
		return time.Time{}, fmt.Errorf("record too short for %q", name)
	}
	raw := strings.TrimSpace(record[i])
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse %s: unrecognized date %q", name, raw)
}
