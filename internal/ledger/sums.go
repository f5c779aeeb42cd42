package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"royalty/internal/logging"
	"royalty/internal/services"
)

// SumAmount returns the settlement total of the partition. Rows with a blank
// title or a NULL amount are excluded and logged.
func (s *Store) SumAmount(ctx context.Context, partition Partition) (int64, error) {
	var total int64
	err := s.scanAmounts(ctx, partition, func(_ string, amount int64) {
		total += amount
	})
	return total, err
}

// SumAmountByTitle returns the settlement total per title.
func (s *Store) SumAmountByTitle(ctx context.Context, partition Partition) (map[string]int64, error) {
	sums := make(map[string]int64)
	err := s.scanAmounts(ctx, partition, func(title string, amount int64) {
		sums[title] += amount
	})
	if err != nil {
		return nil, err
	}
	return sums, nil
}

func (s *Store) scanAmounts(ctx context.Context, partition Partition, fn func(title string, amount int64)) error {
	table, err := partition.table()
	if err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, amount FROM "+table)
	if err != nil {
		return unavailable("sum", partition, err)
	}
	defer rows.Close()

	excluded := 0
	for rows.Next() {
		var (
			id     int64
			title  sql.NullString
			amount sql.NullInt64
		)
		if err := rows.Scan(&id, &title, &amount); err != nil {
			return unavailable("sum", partition, err)
		}
		if !amount.Valid || strings.TrimSpace(title.String) == "" {
			excluded++
			logging.WarnWithContext(s.logger, "record excluded from sum", "sum_record_invalid",
				logging.Partition(string(partition)),
				logging.Int64("id", id),
				logging.String(logging.FieldImpact, "record does not contribute to totals"),
				logging.String(logging.FieldErrorHint, "inspect the row; it has a blank title or missing amount"),
			)
			continue
		}
		fn(title.String, amount.Int64)
	}
	if err := rows.Err(); err != nil {
		return unavailable("sum", partition, err)
	}
	return nil
}

// MonthlySums returns the settlement total per month of year, keyed YYYY-MM.
// Months without records are absent.
func (s *Store) MonthlySums(ctx context.Context, partition Partition, year int) (map[string]int64, error) {
	table, err := partition.table()
	if err != nil {
		return nil, err
	}
	if year < 1900 || year > 9999 {
		return nil, services.Wrap(services.ErrValidation, "ledger", "monthly_sums", fmt.Sprintf("invalid year %d", year), nil)
	}
	from := fmt.Sprintf("%04d.01", year)
	to := fmt.Sprintf("%04d.12", year)
	rows, err := s.db.QueryContext(ensureContext(ctx),
		s.q("SELECT period_key, SUM(amount) FROM "+table+" WHERE period_key BETWEEN ? AND ? GROUP BY period_key ORDER BY period_key"),
		from, to)
	if err != nil {
		return nil, unavailable("monthly_sums", partition, err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			total sql.NullInt64
		)
		if err := rows.Scan(&key, &total); err != nil {
			return nil, unavailable("monthly_sums", partition, err)
		}
		sums[DisplayMonth(key)] = total.Int64
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("monthly_sums", partition, err)
	}
	return sums, nil
}

// ListPeriods returns one summary per stored period in ascending order.
func (s *Store) ListPeriods(ctx context.Context, partition Partition) ([]PeriodSummary, error) {
	table, err := partition.table()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT period_key, COUNT(1), SUM(amount) FROM "+table+" GROUP BY period_key ORDER BY period_key")
	if err != nil {
		return nil, unavailable("list_periods", partition, err)
	}
	defer rows.Close()

	var periods []PeriodSummary
	for rows.Next() {
		var (
			summary PeriodSummary
			total   sql.NullInt64
		)
		if err := rows.Scan(&summary.PeriodKey, &summary.Count, &total); err != nil {
			return nil, unavailable("list_periods", partition, err)
		}
		summary.Total = total.Int64
		periods = append(periods, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list_periods", partition, err)
	}
	return periods, nil
}
