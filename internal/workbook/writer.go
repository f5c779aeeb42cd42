package workbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"royalty/internal/aggregate"
	"royalty/internal/extract"
)

const (
	aggregatedSheet = "AggregatedData"
	summarySheet    = "Summary"
	thousandsFormat = 3 // #,##0
	totalFillColor  = "#FFFFCC"
)

var (
	aggregatedWidths = []float64{10, 20, 10, 8, 11, 11, 11}
	summaryHeaders   = []string{"출판사", "건수", "총매출", "순매출", "정산액"}
	summaryWidths    = []float64{10, 8, 11, 11, 11}
)

// Export writes the aggregated workbook to w.
func Export(w io.Writer, entries []extract.Entry, summaries []aggregate.PublisherSummary) error {
	f, err := build(entries, summaries)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportFile writes the aggregated workbook to path, creating parent directories.
func ExportFile(path string, entries []extract.Entry, summaries []aggregate.PublisherSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Export(file, entries, summaries); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func build(entries []extract.Entry, summaries []aggregate.PublisherSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), aggregatedSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeAggregated(f, styles, entries); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSummary(f, styles, summaries); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

type styleSet struct {
	header int
	amount int
	total  int
	totalN int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center}); err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	if s.amount, err = f.NewStyle(&excelize.Style{NumFmt: thousandsFormat}); err != nil {
		return s, fmt.Errorf("amount style: %w", err)
	}
	fill := excelize.Fill{Type: "pattern", Color: []string{totalFillColor}, Pattern: 1}
	if s.total, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center, Fill: fill}); err != nil {
		return s, fmt.Errorf("total style: %w", err)
	}
	if s.totalN, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center, Fill: fill, NumFmt: thousandsFormat}); err != nil {
		return s, fmt.Errorf("total amount style: %w", err)
	}
	return s, nil
}

func writeAggregated(f *excelize.File, styles styleSet, entries []extract.Entry) error {
	if err := writeHeader(f, aggregatedSheet, extract.StandardHeaders(), aggregatedWidths, styles.header); err != nil {
		return err
	}
	for i, entry := range entries {
		values := []any{
			entry.Author,
			entry.Title,
			entry.Publisher,
			entry.SalesMonth,
			amountValue(entry.GrossRevenue),
			amountValue(entry.NetRevenue),
			amountValue(entry.SettlementAmount),
		}
		if err := setRow(f, aggregatedSheet, i+2, values); err != nil {
			return err
		}
	}
	last := len(entries) + 1
	if len(entries) > 0 {
		if err := f.SetCellStyle(aggregatedSheet, "E2", fmt.Sprintf("G%d", last), styles.amount); err != nil {
			return fmt.Errorf("amount format: %w", err)
		}
	}
	if err := f.AutoFilter(aggregatedSheet, fmt.Sprintf("A1:G%d", last), nil); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, styles styleSet, summaries []aggregate.PublisherSummary) error {
	if err := writeHeader(f, summarySheet, summaryHeaders, summaryWidths, styles.header); err != nil {
		return err
	}
	for i, summary := range summaries {
		values := []any{
			summary.Publisher,
			summary.Count,
			summary.GrossRevenue.InexactFloat64(),
			summary.NetRevenue.InexactFloat64(),
			summary.SettlementAmount.InexactFloat64(),
		}
		if err := setRow(f, summarySheet, i+2, values); err != nil {
			return err
		}
	}
	totalRow := len(summaries) + 2
	total := aggregate.Totals(summaries)
	if err := setRow(f, summarySheet, totalRow, []any{
		total.Publisher,
		"",
		total.GrossRevenue.InexactFloat64(),
		total.NetRevenue.InexactFloat64(),
		total.SettlementAmount.InexactFloat64(),
	}); err != nil {
		return err
	}
	if len(summaries) > 0 {
		if err := f.SetCellStyle(summarySheet, "C2", fmt.Sprintf("E%d", totalRow-1), styles.amount); err != nil {
			return fmt.Errorf("amount format: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("B%d", totalRow), styles.total); err != nil {
		return fmt.Errorf("total style: %w", err)
	}
	if err := f.SetCellStyle(summarySheet, fmt.Sprintf("C%d", totalRow), fmt.Sprintf("E%d", totalRow), styles.totalN); err != nil {
		return fmt.Errorf("total style: %w", err)
	}
	if err := f.AutoFilter(summarySheet, fmt.Sprintf("A1:E%d", totalRow), nil); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// amountValue writes parseable amounts as numbers and keeps anything else as text.
func amountValue(text string) any {
	if value, ok := extract.ParseAmount(text); ok {
		return value.InexactFloat64()
	}
	return text
}
