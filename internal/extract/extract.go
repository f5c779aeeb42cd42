package extract

import (
	"log/slog"
	"strings"

	"royalty/internal/logging"
)

// reservedMarkers are first-cell values of footer rows interleaved with data.
var reservedMarkers = map[string]struct{}{
	"실지급액": {},
	"합계":   {},
}

// Entry is one lenient row; every value is trimmed text.
type Entry struct {
	Author           string `json:"작가명"`
	Title            string `json:"작품명"`
	Publisher        string `json:"출판사"`
	SalesMonth       string `json:"판매월"`
	GrossRevenue     string `json:"총매출"`
	NetRevenue       string `json:"순매출"`
	SettlementAmount string `json:"정산액"`
}

// Value returns the entry's value for field.
func (e Entry) Value(field Field) string {
	switch field {
	case Author:
		return e.Author
	case Title:
		return e.Title
	case Publisher:
		return e.Publisher
	case SalesMonth:
		return e.SalesMonth
	case GrossRevenue:
		return e.GrossRevenue
	case NetRevenue:
		return e.NetRevenue
	case SettlementAmount:
		return e.SettlementAmount
	default:
		return ""
	}
}

func (e *Entry) set(field Field, value string) {
	switch field {
	case Author:
		e.Author = value
	case Title:
		e.Title = value
	case Publisher:
		e.Publisher = value
	case SalesMonth:
		e.SalesMonth = value
	case GrossRevenue:
		e.GrossRevenue = value
	case NetRevenue:
		e.NetRevenue = value
	case SettlementAmount:
		e.SettlementAmount = value
	}
}

// Extractor runs the extraction passes and logs skipped rows.
type Extractor struct {
	logger *slog.Logger
}

// New returns an Extractor. A nil logger discards output.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.NewComponentLogger(logger, "extract")}
}

// ExtractTableData runs the lenient pass without logging.
func ExtractTableData(grid Grid) []Entry {
	return New(nil).Table(grid)
}

// Table returns one Entry per data row below the header. It stops at the
// first absent or blank row, or a row whose cell count differs from the
// header's. Footer rows are skipped, as are rows with any blank field.
func (x *Extractor) Table(grid Grid) []Entry {
	headerIndex, mapping, ok := findHeader(grid)
	if !ok {
		x.logger.Info("no header row found", logging.Int("rows", len(grid)))
		return nil
	}
	headerLength := len(grid[headerIndex])

	var entries []Entry
	for i := headerIndex + 1; i < len(grid); i++ {
		row := grid[i]
		if row == nil || row.IsBlank() {
			break
		}
		if len(row) != headerLength {
			break
		}
		if isReservedRow(row) {
			continue
		}
		var entry Entry
		blank := false
		for _, field := range Fields {
			value := strings.TrimSpace(cellAt(row, mapping, field).String())
			if value == "" {
				blank = true
				break
			}
			entry.set(field, value)
		}
		if blank {
			x.logger.Debug("row skipped: blank field", logging.Int("row", i+1))
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func cellAt(row Row, mapping HeaderMapping, field Field) Cell {
	column, ok := mapping.Column(field)
	if !ok || column >= len(row) {
		return Null()
	}
	return row[column]
}

func isReservedRow(row Row) bool {
	if len(row) == 0 {
		return false
	}
	_, reserved := reservedMarkers[strings.TrimSpace(row[0].String())]
	return reserved
}
