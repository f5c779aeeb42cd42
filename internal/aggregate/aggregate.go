// Package aggregate groups extracted settlement rows by publisher and sums
// their revenue columns with exact decimal arithmetic.
package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"

	"royalty/internal/extract"
)

const (
	// UnspecifiedPublisher labels rows without a publisher.
	UnspecifiedPublisher = "미지정"
	// TotalLabel labels the totals row.
	TotalLabel = "합계"
)

// PublisherSummary accumulates one publisher's rows.
type PublisherSummary struct {
	Publisher        string          `json:"출판사" yaml:"publisher"`
	Count            int             `json:"건수" yaml:"count"`
	GrossRevenue     decimal.Decimal `json:"총매출" yaml:"grossRevenue"`
	NetRevenue       decimal.Decimal `json:"순매출" yaml:"netRevenue"`
	SettlementAmount decimal.Decimal `json:"정산액" yaml:"settlementAmount"`
}

// TitleSum is the settlement total of one title.
type TitleSum struct {
	Title            string          `json:"title" yaml:"title"`
	SettlementAmount decimal.Decimal `json:"settlementAmount" yaml:"settlementAmount"`
}

// ComputeSummary groups entries by publisher in order of first occurrence.
// Revenue text that does not parse contributes zero.
func ComputeSummary(entries []extract.Entry) []PublisherSummary {
	index := make(map[string]int)
	var summaries []PublisherSummary
	for _, entry := range entries {
		publisher := strings.TrimSpace(entry.Publisher)
		if publisher == "" {
			publisher = UnspecifiedPublisher
		}
		pos, ok := index[publisher]
		if !ok {
			pos = len(summaries)
			index[publisher] = pos
			summaries = append(summaries, PublisherSummary{Publisher: publisher})
		}
		summary := &summaries[pos]
		summary.Count++
		summary.GrossRevenue = summary.GrossRevenue.Add(amount(entry.GrossRevenue))
		summary.NetRevenue = summary.NetRevenue.Add(amount(entry.NetRevenue))
		summary.SettlementAmount = summary.SettlementAmount.Add(amount(entry.SettlementAmount))
	}
	return summaries
}

// ComputeTypedSummary is ComputeSummary for strictly extracted entries.
func ComputeTypedSummary(entries []extract.TypedEntry) []PublisherSummary {
	converted := make([]extract.Entry, 0, len(entries))
	for _, entry := range entries {
		converted = append(converted, extract.Entry{
			Author:           entry.Author,
			Title:            entry.Title,
			Publisher:        entry.Publisher,
			SalesMonth:       entry.SalesMonth,
			GrossRevenue:     entry.GrossRevenue.String(),
			NetRevenue:       entry.NetRevenue.String(),
			SettlementAmount: entry.SettlementAmount.String(),
		})
	}
	return ComputeSummary(converted)
}

// Totals sums every summary into one row labelled TotalLabel.
func Totals(summaries []PublisherSummary) PublisherSummary {
	total := PublisherSummary{Publisher: TotalLabel}
	for _, summary := range summaries {
		total.Count += summary.Count
		total.GrossRevenue = total.GrossRevenue.Add(summary.GrossRevenue)
		total.NetRevenue = total.NetRevenue.Add(summary.NetRevenue)
		total.SettlementAmount = total.SettlementAmount.Add(summary.SettlementAmount)
	}
	return total
}

// SumByTitle totals the settlement amount per title in order of first occurrence.
func SumByTitle(entries []extract.Entry) []TitleSum {
	index := make(map[string]int)
	var sums []TitleSum
	for _, entry := range entries {
		pos, ok := index[entry.Title]
		if !ok {
			pos = len(sums)
			index[entry.Title] = pos
			sums = append(sums, TitleSum{Title: entry.Title})
		}
		sums[pos].SettlementAmount = sums[pos].SettlementAmount.Add(amount(entry.SettlementAmount))
	}
	return sums
}

func amount(text string) decimal.Decimal {
	value, _ := extract.ParseAmount(text)
	return value
}
