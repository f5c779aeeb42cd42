// Package inbox imports settlement spreadsheets dropped into a watched
// directory.
//
// A file named after its settlement month (2024.03-문피아.xlsx or
// 202403.xlsx) is read with the workbook package, run through the strict
// extractor, and replaces that month in the manual partition. Imported files
// move to processed/ and files that cannot be imported move to failed/ so the
// directory only ever holds pending work.
package inbox
