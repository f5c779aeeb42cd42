package extract

import (
	"strconv"
	"strings"
)

type cellKind uint8

const (
	kindNull cellKind = iota
	kindText
	kindNumber
)

// Cell is one spreadsheet value: text, a number, or null.
type Cell struct {
	kind cellKind
	text string
	num  float64
}

// Text returns a text cell.
func Text(value string) Cell { return Cell{kind: kindText, text: value} }

// Number returns a numeric cell.
func Number(value float64) Cell { return Cell{kind: kindNumber, num: value} }

// Null returns an empty cell.
func Null() Cell { return Cell{} }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.kind == kindNull }

// IsNumber reports whether the cell holds a number.
func (c Cell) IsNumber() bool { return c.kind == kindNumber }

// Float returns the numeric value; ok is false for non-numeric cells.
func (c Cell) Float() (float64, bool) {
	if c.kind != kindNumber {
		return 0, false
	}
	return c.num, true
}

// String renders the cell the way a spreadsheet shows an unformatted value.
func (c Cell) String() string {
	switch c.kind {
	case kindText:
		return c.text
	case kindNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// IsBlank reports whether the cell is null or whitespace only.
func (c Cell) IsBlank() bool {
	return strings.TrimSpace(c.String()) == ""
}

// Row is one spreadsheet row. Trailing empty cells may be absent.
type Row []Cell

// Grid is one sheet, top to bottom.
type Grid []Row

// IsBlank reports whether every cell of the row is blank. An empty row is blank.
func (r Row) IsBlank() bool {
	for _, cell := range r {
		if !cell.IsBlank() {
			return false
		}
	}
	return true
}

// TextRow builds a row of text cells. Empty strings become null cells.
func TextRow(values ...string) Row {
	row := make(Row, len(values))
	for i, value := range values {
		if value == "" {
			row[i] = Null()
			continue
		}
		row[i] = Text(value)
	}
	return row
}

// GridFromStrings builds a grid of text cells.
func GridFromStrings(rows [][]string) Grid {
	grid := make(Grid, len(rows))
	for i, values := range rows {
		grid[i] = TextRow(values...)
	}
	return grid
}
