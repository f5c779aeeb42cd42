package portal

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	tableSelector = "table[class*='calculates']"
	rowSelector   = "tbody tr.item"
	titleCell     = 1
	amountCell    = 6
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// NovelData is one title's settlement amount for the requested month.
type NovelData struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
}

// ParseMonthlyPage extracts title and amount pairs from the monthly
// calculation table. A page without the table yields no rows and no error.
// Rows whose title link or amount cell is missing are dropped.
func ParseMonthlyPage(r io.Reader) ([]NovelData, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse monthly page: %w", err)
	}
	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, nil
	}

	var rows []NovelData
	table.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= amountCell {
			return
		}
		link := cells.Eq(titleCell).Find("a").First()
		if link.Length() == 0 {
			return
		}
		title := strings.TrimSpace(link.Text())
		amountText := cells.Eq(amountCell).Text()
		if title == "" || strings.TrimSpace(amountText) == "" {
			return
		}
		rows = append(rows, NovelData{Title: title, Amount: parseDigits(amountText)})
	})
	return rows, nil
}

// parseDigits keeps only the digits of text; anything unparsable is zero.
func parseDigits(text string) int64 {
	digits := nonDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return value
}
