package extract

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"royalty/internal/ledger"
	"royalty/internal/logging"
)

// TypedEntry is one strictly extracted row with numeric revenue fields and a
// YYYY-MM sales month.
type TypedEntry struct {
	Author           string          `json:"작가명"`
	Title            string          `json:"작품명"`
	Publisher        string          `json:"출판사"`
	SalesMonth       string          `json:"판매월"`
	GrossRevenue     decimal.Decimal `json:"총매출"`
	NetRevenue       decimal.Decimal `json:"순매출"`
	SettlementAmount decimal.Decimal `json:"정산액"`
}

var (
	amountNoise  = regexp.MustCompile(`[^0-9.\-]`)
	amountPrefix = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)`)
	nonDigits    = regexp.MustCompile(`[^0-9]`)
	monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	serialEpoch  = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	// 9999-12-31, the last date a spreadsheet serial can hold.
	maxSerial = 2958465.0
)

// ParseAmount strips everything except digits, dots and minus signs and
// parses the longest numeric prefix. Unparsable text yields zero and ok=false.
func ParseAmount(text string) (decimal.Decimal, bool) {
	cleaned := amountNoise.ReplaceAllString(text, "")
	prefix := amountPrefix.FindString(cleaned)
	if prefix == "" || prefix == "-" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(strings.TrimSuffix(prefix, "."))
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// CellAmount converts a revenue cell: numbers pass through, text goes
// through ParseAmount, anything else is zero.
func CellAmount(cell Cell) decimal.Decimal {
	if value, ok := cell.Float(); ok {
		return decimal.NewFromFloat(value)
	}
	if cell.IsNull() {
		return decimal.Zero
	}
	value, _ := ParseAmount(cell.String())
	return value
}

// CoerceSalesMonth converts a sales month cell. Numbers greater than one are
// spreadsheet date serials counted in days from 1899-12-30, up to the serial
// for 9999-12-31. Otherwise six remaining digits become YYYY-MM, and anything
// else is returned trimmed.
func CoerceSalesMonth(cell Cell) string {
	if value, ok := cell.Float(); ok && value > 1 && value <= maxSerial {
		days := math.Floor(value)
		date := serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration((value - days) * float64(24*time.Hour)))
		return fmt.Sprintf("%04d-%02d", date.Year(), int(date.Month()))
	}
	digits := nonDigits.ReplaceAllString(cell.String(), "")
	if len(digits) == 6 {
		return digits[:4] + "-" + digits[4:]
	}
	return strings.TrimSpace(cell.String())
}

// ExtractStrict runs the strict pass without logging.
func ExtractStrict(grid Grid) []TypedEntry {
	return New(nil).Strict(grid)
}

// Strict extracts rows for the single-file upload path. It stops only at an
// absent or blank row. Author, title and a YYYY-MM sales month are required;
// revenue fields coerce to numbers with zero for unparsable text.
func (x *Extractor) Strict(grid Grid) []TypedEntry {
	headerIndex, mapping, ok := findHeader(grid)
	if !ok {
		x.logger.Info("no header row found", logging.Int("rows", len(grid)))
		return nil
	}

	var entries []TypedEntry
	for i := headerIndex + 1; i < len(grid); i++ {
		row := grid[i]
		if row == nil || row.IsBlank() {
			break
		}
		if isReservedRow(row) {
			continue
		}
		entry := TypedEntry{
			Author:           strings.TrimSpace(cellAt(row, mapping, Author).String()),
			Title:            strings.TrimSpace(cellAt(row, mapping, Title).String()),
			Publisher:        strings.TrimSpace(cellAt(row, mapping, Publisher).String()),
			SalesMonth:       CoerceSalesMonth(cellAt(row, mapping, SalesMonth)),
			GrossRevenue:     CellAmount(cellAt(row, mapping, GrossRevenue)),
			NetRevenue:       CellAmount(cellAt(row, mapping, NetRevenue)),
			SettlementAmount: CellAmount(cellAt(row, mapping, SettlementAmount)),
		}
		if reason := entry.invalidReason(); reason != "" {
			logging.WarnWithContext(x.logger, "row skipped", "extract_row_invalid",
				logging.Int("row", i+1),
				logging.String("reason", reason),
				logging.String(logging.FieldImpact, "row not imported"),
				logging.String(logging.FieldErrorHint, "check the author, title and sales month cells"),
			)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (e TypedEntry) invalidReason() string {
	switch {
	case !monthPattern.MatchString(e.SalesMonth):
		return fmt.Sprintf("sales month %q is not YYYY-MM", e.SalesMonth)
	case e.Author == "":
		return "author is blank"
	case e.Title == "":
		return "title is blank"
	default:
		return ""
	}
}

// ToSettlementRecords maps strict entries onto ledger records for periodKey,
// using the settlement amount rounded to whole currency units.
func ToSettlementRecords(entries []TypedEntry, periodKey string) []ledger.Record {
	records := make([]ledger.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, ledger.Record{
			PeriodKey: periodKey,
			Title:     entry.Title,
			Amount:    entry.SettlementAmount.Round(0).IntPart(),
		})
	}
	return records
}
