package workbook

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"royalty/internal/extract"
)

// ReadGrid loads the first sheet of an .xlsx document.
func ReadGrid(r io.Reader) (extract.Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return firstSheetGrid(f)
}

// ReadFile loads the first sheet of the workbook at path.
func ReadFile(path string) (extract.Grid, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	grid, err := ReadGrid(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grid, nil
}

func firstSheetGrid(f *excelize.File) (extract.Grid, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make(extract.Grid, len(rows))
	for r, values := range rows {
		row := make(extract.Row, len(values))
		for c, raw := range values {
			row[c] = typedCell(f, sheet, c, r, raw)
		}
		grid[r] = row
	}
	return grid, nil
}

// typedCell keeps numeric cells numeric. Cells without an explicit type are
// numbers in OOXML.
func typedCell(f *excelize.File, sheet string, col, row int, raw string) extract.Cell {
	if raw == "" {
		return extract.Null()
	}
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return extract.Text(raw)
	}
	cellType, err := f.GetCellType(sheet, name)
	if err != nil {
		return extract.Text(raw)
	}
	switch cellType {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return extract.Number(value)
		}
	}
	return extract.Text(raw)
}
