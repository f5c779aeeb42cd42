package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status returns the record count and settlement total of the partition.
func (s *Store) Status(ctx context.Context, partition Partition) (Status, error) {
	count, err := s.Count(ctx, partition)
	if err != nil {
		return Status{}, err
	}
	total, err := s.SumAmount(ctx, partition)
	if err != nil {
		return Status{}, err
	}
	return Status{Partition: partition, RecordCount: count, TotalSum: total}, nil
}

// Clear removes every record in the partition and returns how many were removed.
func (s *Store) Clear(ctx context.Context, partition Partition) (int64, error) {
	table, err := partition.table()
	if err != nil {
		return 0, err
	}
	started := time.Now()
	defer s.observeWrite("clear", partition, started)

	var removed int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ensureContext(ctx), "DELETE FROM "+table)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable("clear", partition, err)
	}
	return removed, nil
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Driver:       s.dialect.name,
		Path:         s.path,
		RecordCounts: make(map[string]int64),
	}
	if s.db == nil {
		return health, errors.New("ledger database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping ledger database: %w", err)
	}
	health.Reachable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	for _, partition := range Partitions {
		table, _ := partition.table()
		exists, err := s.tableExists(connCtx, table)
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		health.TablesPresent = append(health.TablesPresent, table)
		var count int64
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM "+table).Scan(&count); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count %s: %w", table, err)
		}
		health.RecordCounts[string(partition)] = count
	}

	if s.dialect.name == "sqlite" {
		if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&health.IntegrityCheck); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("integrity check: %w", err)
		}
	}
	return health, nil
}
