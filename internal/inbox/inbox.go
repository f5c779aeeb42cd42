package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"royalty/internal/config"
	"royalty/internal/extract"
	"royalty/internal/fileutil"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/services"
	"royalty/internal/workbook"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	defaultSettle = 750 * time.Millisecond
)

// Store is the ledger surface the importer writes to.
type Store interface {
	ReplacePeriod(ctx context.Context, partition ledger.Partition, periodKey string, records []ledger.Record) (ledger.ReplaceResult, error)
}

// Result describes one imported file.
type Result struct {
	File       string `json:"file"`
	BatchID    string `json:"batchId"`
	PeriodKey  string `json:"periodKey"`
	Rows       int    `json:"rows"`
	SavedCount int    `json:"savedCount"`
	Skipped    int    `json:"skipped"`
	Deleted    int64  `json:"deleted"`
	Err        error  `json:"-"`
}

// Watcher imports spreadsheets from a directory.
type Watcher struct {
	dir      string
	store    Store
	logger   *slog.Logger
	settle   time.Duration
	onResult func(Result)

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithSettleDelay sets how long a file must stay quiet before it is imported.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithResultHandler registers a callback invoked after every import attempt.
func WithResultHandler(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New builds a watcher for cfg.Paths.InboxDir.
func New(cfg *config.Config, store Store, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     cfg.Paths.InboxDir,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "inbox"),
		settle:  defaultSettle,
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var periodPrefix = regexp.MustCompile(`^(\d{4})[.\-_]?(0[1-9]|1[0-2])`)

// PeriodFromName extracts the settlement month from a file name.
func PeriodFromName(name string) (string, bool) {
	match := periodPrefix.FindStringSubmatch(filepath.Base(name))
	if match == nil {
		return "", false
	}
	key, err := ledger.NormalizePeriodKey(match[1] + "." + match[2])
	if err != nil {
		return "", false
	}
	return key, true
}

// Run imports files already present in the directory, then watches for new
// ones until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("inbox watching",
		logging.String("dir", w.dir),
		logging.String(logging.FieldEventType, "inbox_started"),
	)

	w.ScanExisting(ctx)

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some dropped files may not be imported until restart"),
				logging.String(logging.FieldErrorHint, "check the inbox directory permissions"),
			)
		}
	}
}

// ScanExisting imports every eligible file currently in the directory.
func (w *Watcher) ScanExisting(ctx context.Context) []Result {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "inbox scan failed", "inbox_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "existing files were not imported"),
			logging.String(logging.FieldErrorHint, "check paths.inbox_dir"),
		)
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !workbook.IsWorkbook(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		results = append(results, w.handle(ctx, filepath.Join(w.dir, name)))
	}
	return results
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if filepath.Dir(path) != filepath.Clean(w.dir) || !workbook.IsWorkbook(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok && timer.Stop() {
		timer.Reset(w.settle)
		return
	}
	var timer *time.Timer
	w.wg.Add(1)
	timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		w.handle(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	for path, timer := range w.pending {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) handle(ctx context.Context, path string) Result {
	result, err := w.Import(ctx, path)
	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		result.Err = err
		logging.WarnWithContext(w.logger, "inbox import failed", "inbox_import_failed",
			logging.String("file", filepath.Base(path)),
			logging.String(logging.FieldCorrelationID, result.BatchID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file moved to failed/ without saving"),
			logging.String(logging.FieldErrorHint, "name the file YYYY.MM*.xlsx and include author, title, month and settlement columns"),
		)
	}
	if _, moveErr := fileutil.MoveInto(path, filepath.Join(w.dir, dest)); moveErr != nil {
		logging.WarnWithContext(w.logger, "inbox move failed", "inbox_move_failed",
			logging.String("file", filepath.Base(path)),
			logging.Error(moveErr),
			logging.String(logging.FieldImpact, "file will be imported again on next start"),
			logging.String(logging.FieldErrorHint, "check inbox directory permissions"),
		)
	}
	if w.onResult != nil {
		w.onResult(result)
	}
	return result
}

// Import reads one spreadsheet and replaces its month in the manual
// partition. The file is left where it is.
func (w *Watcher) Import(ctx context.Context, path string) (Result, error) {
	result := Result{File: filepath.Base(path), BatchID: uuid.NewString()}
	key, ok := PeriodFromName(path)
	if !ok {
		return result, services.Wrap(services.ErrValidation, "inbox", "import", fmt.Sprintf("no settlement month in file name %q", result.File), nil)
	}
	result.PeriodKey = key

	grid, err := workbook.ReadFile(path)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "inbox", "import", "read workbook", err)
	}
	entries := extract.New(w.logger).Strict(grid)
	result.Rows = len(entries)
	if len(entries) == 0 {
		return result, services.Wrap(services.ErrValidation, "inbox", "import", "no settlement rows found", nil)
	}

	replaced, err := w.store.ReplacePeriod(ctx, ledger.Manual, key, extract.ToSettlementRecords(entries, key))
	if err != nil {
		return result, err
	}
	result.SavedCount = replaced.SavedCount
	result.Skipped = replaced.Skipped
	result.Deleted = replaced.Deleted
	w.logger.Info("inbox file imported",
		logging.String("file", result.File),
		logging.Period(key),
		logging.String(logging.FieldCorrelationID, result.BatchID),
		logging.Int("saved", result.SavedCount),
		logging.Int64("replaced", result.Deleted),
		logging.String(logging.FieldEventType, "inbox_imported"),
	)
	return result, nil
}
