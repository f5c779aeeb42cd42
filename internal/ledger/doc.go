// Package ledger persists settlement records in two partitions, synced and
// manual, behind database/sql.
//
// SQLite (modernc) is the default backend; PostgreSQL and MySQL are selected
// with store.driver. Every record belongs to a period key (YYYY.MM) and a
// period is the unit of replacement: ReplacePeriod swaps all of a period's
// rows inside one transaction. Aggregates (totals, per-title sums, monthly
// sums) are computed per query and never cached.
//
// Schema changes bump schemaVersion in schema.go; an existing database with
// another version fails to open with ErrSchemaMismatch.
package ledger
