package workbook

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"royalty/internal/aggregate"
	"royalty/internal/extract"
	"royalty/internal/logging"
)

// DirectoryResult holds the combined entries of every readable workbook in a
// directory and the per-publisher summary computed over them.
type DirectoryResult struct {
	Files     []string
	Skipped   []string
	Entries   []extract.Entry
	Summaries []aggregate.PublisherSummary
}

// IsWorkbook reports whether name has a spreadsheet extension excelize can open.
func IsWorkbook(name string) bool {
	if strings.HasPrefix(filepath.Base(name), "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return true
	default:
		return false
	}
}

// AggregateDirectory extracts every workbook in dir in name order. Files that
// cannot be read are logged and skipped.
func AggregateDirectory(dir string, logger *slog.Logger) (DirectoryResult, error) {
	logger = logging.NewComponentLogger(logger, "workbook")
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return DirectoryResult{}, fmt.Errorf("read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() || !IsWorkbook(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	extractor := extract.New(logger)
	var result DirectoryResult
	for _, name := range names {
		path := filepath.Join(dir, name)
		grid, err := ReadFile(path)
		if err != nil {
			logging.WarnWithContext(logger, "workbook skipped", "workbook_unreadable",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-save the file as .xlsx"),
				logging.String(logging.FieldImpact, "rows from this file are not aggregated"),
			)
			result.Skipped = append(result.Skipped, name)
			continue
		}
		entries := extractor.Table(grid)
		logger.Debug("workbook extracted", logging.String("file", name), logging.Int("entries", len(entries)))
		result.Files = append(result.Files, name)
		result.Entries = append(result.Entries, entries...)
	}
	result.Summaries = aggregate.ComputeSummary(result.Entries)
	logger.Info("directory aggregated",
		logging.Int("files", len(result.Files)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("entries", len(result.Entries)),
		logging.Int("publishers", len(result.Summaries)),
	)
	return result, nil
}
