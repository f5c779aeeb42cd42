// Package extract turns a raw spreadsheet grid into canonical settlement
// rows.
//
// The header row is located by fuzzy matching cell text against an ordered
// synonym table; the first row that covers all seven standard fields wins.
// ExtractTableData is the lenient path used for bulk aggregation and keeps
// values as text. ExtractStrict is the single-file upload path: it coerces
// the sales month to YYYY-MM and revenue fields to numbers, dropping rows
// that fail. Bad rows are logged and skipped; they never abort a file.
package extract
