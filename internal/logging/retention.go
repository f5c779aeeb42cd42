package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const archivePattern = "royalty-*.log"

// RotateStale renames royalty.log to royalty-YYYYMMDD.log when it was last
// written on an earlier day than now, so a new day starts with a fresh file.
func RotateStale(dir string, now time.Time) (string, error) {
	current := filepath.Join(dir, LogFileName)
	info, err := os.Stat(current)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat log file: %w", err)
	}
	modDay := info.ModTime().In(now.Location()).Format("20060102")
	if modDay == now.Format("20060102") {
		return "", nil
	}
	target := filepath.Join(dir, "royalty-"+modDay+".log")
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, fmt.Sprintf("royalty-%s-%d.log", modDay, now.Unix()))
	}
	if err := os.Rename(current, target); err != nil {
		return "", fmt.Errorf("rotate log file: %w", err)
	}
	return target, nil
}

// CleanupOldLogs removes rotated log files in dir older than retentionDays.
// A retentionDays value of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, dir string, now time.Time) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if matched, err := filepath.Match(archivePattern, name); err != nil || !matched {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		fullPath := filepath.Join(dir, name)
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Info("log pruned", String("path", fullPath), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
