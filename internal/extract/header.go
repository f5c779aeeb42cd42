package extract

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Field is one of the seven canonical settlement columns.
type Field int

const (
	Author Field = iota
	Title
	Publisher
	SalesMonth
	GrossRevenue
	NetRevenue
	SettlementAmount
)

// Fields lists the canonical fields in precedence order.
var Fields = []Field{Author, Title, Publisher, SalesMonth, GrossRevenue, NetRevenue, SettlementAmount}

// Label returns the standard Korean header for the field.
func (f Field) Label() string {
	switch f {
	case Author:
		return "작가명"
	case Title:
		return "작품명"
	case Publisher:
		return "출판사"
	case SalesMonth:
		return "판매월"
	case GrossRevenue:
		return "총매출"
	case NetRevenue:
		return "순매출"
	case SettlementAmount:
		return "정산액"
	default:
		return ""
	}
}

// StandardHeaders returns the labels of Fields in order.
func StandardHeaders() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = f.Label()
	}
	return out
}

type synonymSet struct {
	field    Field
	synonyms []string
}

// synonymTable is tested in order; the first field with a matching synonym
// claims the column.
var synonymTable = []synonymSet{
	{Author, []string{"작가명", "작가", "필명", "저자명", "저자"}},
	{Title, []string{"작품명", "작품", "컨텐츠", "제목", "상품명"}},
	{Publisher, []string{"출판사"}},
	{SalesMonth, []string{"판매월", "월", "판매출"}},
	{GrossRevenue, []string{"총매출", "총매출액", "총판매", "총매술"}},
	{NetRevenue, []string{"순매출", "순매출액"}},
	{SettlementAmount, []string{"정산액", "정산", "지급액", "정산금", "금액"}},
}

// Synonyms returns the synonyms recognized for field.
func Synonyms(field Field) []string {
	for _, set := range synonymTable {
		if set.field == field {
			return append([]string(nil), set.synonyms...)
		}
	}
	return nil
}

// MatchField returns the canonical field whose synonym occurs in text.
func MatchField(text string) (Field, bool) {
	text = normalizeText(text)
	if text == "" {
		return 0, false
	}
	for _, set := range synonymTable {
		for _, synonym := range set.synonyms {
			if strings.Contains(text, synonym) {
				return set.field, true
			}
		}
	}
	return 0, false
}

func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// HeaderMapping maps column index to canonical field. Unmatched columns are absent.
type HeaderMapping map[int]Field

// MapHeaderRow builds the mapping for one candidate header row.
func MapHeaderRow(row Row) HeaderMapping {
	mapping := make(HeaderMapping)
	for index, cell := range row {
		if field, ok := MatchField(cell.String()); ok {
			mapping[index] = field
		}
	}
	return mapping
}

// Covers reports whether every field appears in the mapping.
func (m HeaderMapping) Covers(fields ...Field) bool {
	seen := make(map[Field]bool, len(m))
	for _, field := range m {
		seen[field] = true
	}
	for _, field := range fields {
		if !seen[field] {
			return false
		}
	}
	return true
}

// Complete reports whether all seven canonical fields are mapped.
func (m HeaderMapping) Complete() bool {
	return m.Covers(Fields...)
}

// Column returns the lowest column index mapped to field.
func (m HeaderMapping) Column(field Field) (int, bool) {
	columns := make([]int, 0, 1)
	for index, mapped := range m {
		if mapped == field {
			columns = append(columns, index)
		}
	}
	if len(columns) == 0 {
		return 0, false
	}
	sort.Ints(columns)
	return columns[0], true
}

// findHeader returns the index and mapping of the first complete header row.
func findHeader(grid Grid) (int, HeaderMapping, bool) {
	for i, row := range grid {
		if len(row) == 0 {
			continue
		}
		mapping := MapHeaderRow(row)
		if mapping.Complete() {
			return i, mapping, true
		}
	}
	return -1, nil, false
}
