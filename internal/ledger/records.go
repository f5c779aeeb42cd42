package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"royalty/internal/logging"
)

const recordColumns = "id, period_key, title, amount, created_at"

// Count returns the number of records in the partition.
func (s *Store) Count(ctx context.Context, partition Partition) (int64, error) {
	table, err := partition.table()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM "+table).Scan(&count); err != nil {
		return 0, unavailable("count", partition, err)
	}
	return count, nil
}

// ScanAll returns every record in the partition ordered by period then id.
func (s *Store) ScanAll(ctx context.Context, partition Partition) ([]Record, error) {
	table, err := partition.table()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+recordColumns+" FROM "+table+" ORDER BY period_key, id")
	if err != nil {
		return nil, unavailable("scan", partition, err)
	}
	return collectRecords(rows, partition)
}

// ScanPeriod returns the records stored for one period key.
func (s *Store) ScanPeriod(ctx context.Context, partition Partition, periodKey string) ([]Record, error) {
	table, err := partition.table()
	if err != nil {
		return nil, err
	}
	key, err := NormalizePeriodKey(periodKey)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		s.q("SELECT "+recordColumns+" FROM "+table+" WHERE period_key = ? ORDER BY id"), key)
	if err != nil {
		return nil, unavailable("scan_period", partition, err)
	}
	return collectRecords(rows, partition)
}

func collectRecords(rows *sql.Rows, partition Partition) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var (
			rec       Record
			createdAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.PeriodKey, &rec.Title, &rec.Amount, &createdAt); err != nil {
			return nil, unavailable("scan", partition, err)
		}
		if ts, err := parseTimeString(createdAt.String); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", partition, err)
	}
	return records, nil
}

// DeleteByPeriod removes every record with the given period key and returns
// how many were removed. Zero matches is not an error.
func (s *Store) DeleteByPeriod(ctx context.Context, partition Partition, periodKey string) (int64, error) {
	table, err := partition.table()
	if err != nil {
		return 0, err
	}
	key, err := NormalizePeriodKey(periodKey)
	if err != nil {
		return 0, err
	}
	started := time.Now()
	defer s.observeWrite("delete", partition, started)

	var deleted int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM "+table+" WHERE period_key = ?"), key)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable("delete", partition, err)
	}
	return deleted, nil
}

// InsertMany appends records to the partition. Invalid records are skipped
// and logged; they never abort the batch. An empty batch succeeds with zero
// saved.
func (s *Store) InsertMany(ctx context.Context, partition Partition, records []Record) (InsertResult, error) {
	table, err := partition.table()
	if err != nil {
		return InsertResult{}, err
	}
	valid, skipped := s.validRecords(ctx, partition, "", records)
	result := InsertResult{Skipped: skipped}
	if len(valid) == 0 {
		return result, nil
	}

	started := time.Now()
	defer s.observeWrite("insert", partition, started)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertTx(ctx, tx, table, valid)
	})
	if err != nil {
		return result, unavailable("insert", partition, err)
	}
	result.SavedCount = len(valid)
	return result, nil
}

// ReplacePeriod deletes every record for periodKey and inserts records in
// their place. Records are forced onto periodKey. Both steps share one
// transaction: a failed insert leaves the previous rows untouched.
func (s *Store) ReplacePeriod(ctx context.Context, partition Partition, periodKey string, records []Record) (ReplaceResult, error) {
	table, err := partition.table()
	if err != nil {
		return ReplaceResult{}, err
	}
	key, err := NormalizePeriodKey(periodKey)
	if err != nil {
		return ReplaceResult{}, err
	}
	ctx = ensureContext(ctx)
	valid, skipped := s.validRecords(ctx, partition, key, records)
	result := ReplaceResult{PeriodKey: key, Skipped: skipped}

	started := time.Now()
	defer s.observeWrite("replace", partition, started)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM "+table+" WHERE period_key = ?"), key)
		if err != nil {
			return fmt.Errorf("delete period: %w", err)
		}
		if result.Deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		if err := s.insertTx(ctx, tx, table, valid); err != nil {
			return fmt.Errorf("insert period: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReplaceResult{PeriodKey: key}, unavailable("replace", partition, err)
	}
	result.SavedCount = len(valid)
	s.logger.Debug("period replaced",
		logging.Partition(string(partition)),
		logging.Period(key),
		logging.Int64("deleted", result.Deleted),
		logging.Int("saved", result.SavedCount),
		logging.String(logging.FieldEventType, "store_replace"),
	)
	return result, nil
}

func (s *Store) insertTx(ctx context.Context, tx *sql.Tx, table string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.q("INSERT INTO "+table+" (period_key, title, amount, created_at) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return err
	}
	defer stmt.Close()
	created := s.now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.PeriodKey, rec.Title, rec.Amount, created); err != nil {
			return err
		}
	}
	return nil
}

// validRecords normalizes period keys (forcing forcedKey when set) and drops
// records that fail validation.
func (s *Store) validRecords(ctx context.Context, partition Partition, forcedKey string, records []Record) ([]Record, int) {
	valid := make([]Record, 0, len(records))
	skipped := 0
	for i, rec := range records {
		if forcedKey != "" {
			rec.PeriodKey = forcedKey
		}
		if err := rec.Validate(); err != nil {
			skipped++
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "record skipped", "record_invalid",
				logging.Partition(string(partition)),
				logging.Int("index", i),
				logging.String("title", rec.Title),
				logging.Error(err),
				logging.String(logging.FieldImpact, "record not stored"),
				logging.String(logging.FieldErrorHint, "check the source row for a blank title or bad month"),
			)
			continue
		}
		rec.PeriodKey, _ = NormalizePeriodKey(rec.PeriodKey)
		valid = append(valid, rec)
	}
	return valid, skipped
}

