package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"royalty/internal/config"
	"royalty/internal/logging"
	"royalty/internal/services"
)

var unitPattern = regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)

// Report is the single outcome of one session: parsed rows for the month, or
// an error when the page could not be fetched.
type Report struct {
	SessionID       uint64
	Unit            string
	SettlementMonth string
	NovelData       []NovelData
	Err             error
}

type session struct {
	id     uint64
	unit   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager opens fetch sessions against the portal, one at a time.
type Manager struct {
	client    *http.Client
	baseURL   string
	cookie    string
	userAgent string
	logger    *slog.Logger

	nextID  atomic.Uint64
	reports chan Report

	mu     sync.Mutex
	active *session
}

// NewManager builds a Manager from the portal section of cfg.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		client:    &http.Client{Timeout: cfg.PortalTimeout()},
		baseURL:   cfg.Portal.BaseURL,
		cookie:    cfg.Portal.Cookie,
		userAgent: cfg.Portal.UserAgent,
		logger:    logging.NewComponentLogger(logger, "portal"),
		reports:   make(chan Report, 1),
	}
}

// Reports delivers session outcomes. Only the active session's report is
// authoritative; callers compare SessionID against the id Open returned.
func (m *Manager) Reports() <-chan Report {
	return m.reports
}

// MonthlyURL returns the page a session fetches for unit.
func (m *Manager) MonthlyURL(unit string) string {
	query := url.Values{}
	query.Set("tab", "monthly")
	query.Set("blogUrl", "")
	query.Set("searchDate", unit)
	query.Set("fetch", "true")
	return m.baseURL + config.PortalMonthlyEndpoint() + "?" + query.Encode()
}

// Open starts a session for unit (YYYYMM) and returns its id.
func (m *Manager) Open(ctx context.Context, unit string) (uint64, error) {
	if !unitPattern.MatchString(unit) {
		return 0, services.Wrap(services.ErrSessionOpenFailed, "portal", "open", fmt.Sprintf("invalid unit %q", unit), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return 0, services.Wrap(services.ErrSessionOpenFailed, "portal", "open",
			fmt.Sprintf("session %d for %s already active", m.active.id, m.active.unit), nil)
	}

	id := m.nextID.Add(1)
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{id: id, unit: unit, cancel: cancel, done: make(chan struct{})}
	m.active = s

	go m.run(fetchCtx, s)
	m.logger.Debug("session opened", logging.Int64("session_id", int64(id)), logging.String("unit", unit))
	return id, nil
}

// Close releases the session with the given id. Unknown or already closed
// ids are ignored.
func (m *Manager) Close(id uint64) {
	m.mu.Lock()
	s := m.active
	if s == nil || s.id != id {
		m.mu.Unlock()
		return
	}
	m.active = nil
	m.mu.Unlock()

	s.cancel()
	<-s.done
	m.logger.Debug("session closed", logging.Int64("session_id", int64(id)), logging.String("unit", s.unit))
}

// Active returns the id of the open session, if any.
func (m *Manager) Active() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	return m.active.id, true
}

func (m *Manager) run(ctx context.Context, s *session) {
	defer close(s.done)

	report := Report{
		SessionID:       s.id,
		Unit:            s.unit,
		SettlementMonth: s.unit[:4] + "." + s.unit[4:],
	}
	report.NovelData, report.Err = m.fetch(ctx, s.unit)
	if report.Err != nil && errors.Is(report.Err, context.Canceled) {
		return
	}

	select {
	case m.reports <- report:
	case <-ctx.Done():
	}
}

func (m *Manager) fetch(ctx context.Context, unit string) ([]NovelData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.MonthlyURL(unit), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	if m.cookie != "" {
		req.Header.Set("Cookie", m.cookie)
	}
	req.Header.Set("Accept", "text/html")

	started := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", unit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("portal returned %d for %s: %s", resp.StatusCode, unit, strings.TrimSpace(string(body)))
	}

	rows, err := ParseMonthlyPage(resp.Body)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("monthly page parsed",
		logging.String("unit", unit),
		logging.Int("rows", len(rows)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return rows, nil
}
