// Package workbook reads spreadsheet grids and writes the aggregated
// settlement workbook with excelize.
//
// ReadGrid returns the first sheet as an extract.Grid, keeping numeric cells
// numeric so date serials survive. Export writes two sheets: AggregatedData
// with one row per extracted entry, and Summary with one row per publisher
// followed by a highlighted total row.
package workbook
