package aggregate_test

import (
	"testing"

	"royalty/internal/aggregate"
	"royalty/internal/extract"
)

func TestComputeSummaryGroupsInFirstOccurrenceOrder(t *testing.T) {
	entries := []extract.Entry{
		{Title: "A", Publisher: "Q사", GrossRevenue: "1,000", NetRevenue: "900", SettlementAmount: "100"},
		{Title: "B", Publisher: "P사", GrossRevenue: "500", NetRevenue: "450", SettlementAmount: "50.5"},
		{Title: "C", Publisher: "Q사", GrossRevenue: "n/a", NetRevenue: "10원", SettlementAmount: "1"},
		{Title: "D", Publisher: "  ", GrossRevenue: "1", NetRevenue: "1", SettlementAmount: "1"},
	}

	summaries := aggregate.ComputeSummary(entries)
	if len(summaries) != 3 {
		t.Fatalf("expected 3 publishers, got %d", len(summaries))
	}
	if summaries[0].Publisher != "Q사" || summaries[1].Publisher != "P사" || summaries[2].Publisher != aggregate.UnspecifiedPublisher {
		t.Fatalf("unexpected order: %+v", summaries)
	}
	q := summaries[0]
	if q.Count != 2 || q.GrossRevenue.String() != "1000" || q.NetRevenue.String() != "910" || q.SettlementAmount.String() != "101" {
		t.Fatalf("unexpected Q사 summary: %+v", q)
	}

	total := aggregate.Totals(summaries)
	if total.Publisher != aggregate.TotalLabel || total.Count != 4 || total.SettlementAmount.String() != "152.5" {
		t.Fatalf("unexpected totals: %+v", total)
	}
}

func TestComputeTypedSummaryAndTitleSums(t *testing.T) {
	typed := extract.ExtractStrict(extract.GridFromStrings([][]string{
		{"작가명", "작품명", "출판사", "판매월", "총매출", "순매출", "정산액"},
		{"김", "소설A", "P사", "2024-01", "1000", "900", "100"},
		{"김", "소설A", "P사", "2024-02", "2000", "1800", "200"},
	}))
	summaries := aggregate.ComputeTypedSummary(typed)
	if len(summaries) != 1 || summaries[0].SettlementAmount.String() != "300" {
		t.Fatalf("unexpected typed summary: %+v", summaries)
	}

	sums := aggregate.SumByTitle([]extract.Entry{
		{Title: "소설A", SettlementAmount: "100"},
		{Title: "소설B", SettlementAmount: "7"},
		{Title: "소설A", SettlementAmount: "bad"},
	})
	if len(sums) != 2 || sums[0].SettlementAmount.String() != "100" || sums[1].Title != "소설B" {
		t.Fatalf("unexpected title sums: %+v", sums)
	}
}
