package portal_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"royalty/internal/portal"
	"royalty/internal/services"
	"royalty/internal/testsupport"
)

const monthlyPage = `<html><body>
<table class="table-module_calculates-zfkCU">
<thead><tr><th>No</th><th>작품명</th><th></th><th></th><th></th><th></th><th>정산금액</th></tr></thead>
<tbody>
<tr class="item"><td>1</td><td><a href="/n/1"> 검의 길 </a></td><td></td><td></td><td></td><td></td><td>12,300원</td></tr>
<tr class="item"><td>2</td><td><a href="/n/2">별의 노래</a></td><td></td><td></td><td></td><td></td><td>700</td></tr>
<tr class="item"><td>3</td><td>링크 없음</td><td></td><td></td><td></td><td></td><td>900</td></tr>
<tr class="item"><td>4</td><td><a>짧은 행</a></td></tr>
<tr><td>5</td><td><a>헤더 아님</a></td><td></td><td></td><td></td><td></td><td>1</td></tr>
</tbody>
</table>
</body></html>`

func TestParseMonthlyPage(t *testing.T) {
	rows, err := portal.ParseMonthlyPage(strings.NewReader(monthlyPage))
	if err != nil {
		t.Fatalf("ParseMonthlyPage: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Title != "검의 길" || rows[0].Amount != 12300 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Amount != 700 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestParseMonthlyPageWithoutTable(t *testing.T) {
	rows, err := portal.ParseMonthlyPage(strings.NewReader("<html><body><p>정산 내역이 없습니다</p></body></html>"))
	if err != nil {
		t.Fatalf("ParseMonthlyPage: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}

func awaitReport(t *testing.T, m *portal.Manager) portal.Report {
	t.Helper()
	select {
	case report := <-m.Reports():
		return report
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for report")
	}
	return portal.Report{}
}

func TestManagerFetchesAndReportsOnce(t *testing.T) {
	var gotQuery, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotCookie = r.Header.Get("Cookie")
		if r.URL.Path != "/manage/calculate" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(monthlyPage))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithPortalBaseURL(server.URL))
	cfg.Portal.Cookie = "session=abc"
	m := portal.NewManager(cfg, nil)

	id, err := m.Open(context.Background(), "202403")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	report := awaitReport(t, m)
	m.Close(id)

	if report.SessionID != id || report.Err != nil {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.SettlementMonth != "2024.03" || len(report.NovelData) != 2 {
		t.Fatalf("unexpected report payload: %+v", report)
	}
	if !strings.Contains(gotQuery, "searchDate=202403") || !strings.Contains(gotQuery, "tab=monthly") {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if gotCookie != "session=abc" {
		t.Fatalf("expected cookie header, got %q", gotCookie)
	}
	if _, ok := m.Active(); ok {
		t.Fatal("expected no active session after close")
	}
	m.Close(id)
}

func TestManagerReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "login required", http.StatusForbidden)
	}))
	defer server.Close()

	m := portal.NewManager(testsupport.NewConfig(t, testsupport.WithPortalBaseURL(server.URL)), nil)
	id, err := m.Open(context.Background(), "202401")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close(id)

	report := awaitReport(t, m)
	if report.Err == nil || !strings.Contains(report.Err.Error(), "403") {
		t.Fatalf("expected 403 failure, got %+v", report)
	}
}

func TestManagerAllowsOneSessionAtATime(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	m := portal.NewManager(testsupport.NewConfig(t, testsupport.WithPortalBaseURL(server.URL)), nil)
	id, err := m.Open(context.Background(), "202401")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open(context.Background(), "202402"); !errors.Is(err, services.ErrSessionOpenFailed) {
		t.Fatalf("expected ErrSessionOpenFailed, got %v", err)
	}

	m.Close(id)
	select {
	case report := <-m.Reports():
		t.Fatalf("closed session must not report, got %+v", report)
	case <-time.After(50 * time.Millisecond):
	}

	next, err := m.Open(context.Background(), "202402")
	if err != nil {
		t.Fatalf("Open after close: %v", err)
	}
	if next == id {
		t.Fatal("expected a fresh session id")
	}
	m.Close(next)
}

func TestManagerRejectsInvalidUnit(t *testing.T) {
	m := portal.NewManager(testsupport.NewConfig(t), nil)
	if _, err := m.Open(context.Background(), "2024-03"); !errors.Is(err, services.ErrSessionOpenFailed) {
		t.Fatalf("expected ErrSessionOpenFailed, got %v", err)
	}
}
