package analytics

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.now = func() time.Time { return now }
	t.Cleanup(func() { s.Close() })
	return s
}

var day = time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)

func TestSchemaVersionRecorded(t *testing.T) {
	s := newTestStore(t, day)
	v, err := s.GetSetting("schema_version")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "1" {
		t.Fatalf("schema_version = %q, want 1", v)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t, day)
	if v, err := s.GetSetting("missing"); err != nil || v != "" {
		t.Fatalf("GetSetting(missing) = %q, %v", v, err)
	}
	if err := s.SetSetting("k", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("k", "b"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetSetting("k"); v != "b" {
		t.Fatalf("upsert failed, got %q", v)
	}
}

func TestInitSaltPersistsAndHashes(t *testing.T) {
	s := newTestStore(t, day)
	if err := InitSalt(s); err != nil {
		t.Fatalf("InitSalt: %v", err)
	}
	h1 := HashIP("198.51.100.7")
	h2 := HashIP("198.51.100.7")
	if h1 != h2 || len(h1) != 16 {
		t.Fatalf("hash not stable or wrong length: %q %q", h1, h2)
	}
	if HashIP("198.51.100.8") == h1 {
		t.Fatalf("different IPs hashed equal")
	}
}

func TestRecordReadDeduplicatesPerDay(t *testing.T) {
	s := newTestStore(t, day)

	counted, err := s.RecordRead("spin-glasses", "visitor-a")
	if err != nil || !counted {
		t.Fatalf("first read: counted=%v err=%v", counted, err)
	}
	counted, err = s.RecordRead("spin-glasses", "visitor-a")
	if err != nil || counted {
		t.Fatalf("repeat read same day: counted=%v err=%v", counted, err)
	}
	if counted, _ := s.RecordRead("spin-glasses", "visitor-b"); !counted {
		t.Fatalf("other visitor should count")
	}

	s.now = func() time.Time { return day.AddDate(0, 0, 1) }
	if counted, _ := s.RecordRead("spin-glasses", "visitor-a"); !counted {
		t.Fatalf("same visitor next day should count")
	}

	n, err := s.ReadsForPost("spin-glasses")
	if err != nil || n != 3 {
		t.Fatalf("ReadsForPost = %d, %v; want 3", n, err)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t, day.AddDate(0, 0, -2))
	s.RecordRead("a", "v1")
	s.RecordRead("b", "v1")
	s.now = func() time.Time { return day }
	s.RecordRead("a", "v2")
	s.RecordRead("a", "v3")
	s.now = func() time.Time { return day.AddDate(0, 0, -40) }
	s.RecordRead("old", "v1")
	s.now = func() time.Time { return day }

	stats, err := s.GetStats("week", 10)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Period != "week" || stats.From != "2025-06-09" || stats.To != "2025-06-15" {
		t.Fatalf("unexpected range: %+v", stats)
	}
	if stats.TotalReads != 4 {
		t.Fatalf("TotalReads = %d, want 4", stats.TotalReads)
	}
	if len(stats.TopPosts) != 2 || stats.TopPosts[0] != (PostStat{Slug: "a", Reads: 3}) {
		t.Fatalf("TopPosts = %+v", stats.TopPosts)
	}
	if len(stats.Daily) != 7 {
		t.Fatalf("Daily has %d entries, want 7", len(stats.Daily))
	}
	if stats.Daily[4] != (DailyReads{Date: "2025-06-13", Reads: 2}) || stats.Daily[6].Reads != 2 || stats.Daily[0].Reads != 0 {
		t.Fatalf("Daily = %+v", stats.Daily)
	}

	today, _ := s.GetStats("today", 1)
	if today.TotalReads != 2 || len(today.TopPosts) != 1 {
		t.Fatalf("today stats = %+v", today)
	}

	unknown, _ := s.GetStats("decade", 10)
	if unknown.Period != "week" {
		t.Fatalf("unknown period should fall back to week, got %q", unknown.Period)
	}
}

func TestCleanupOldReads(t *testing.T) {
	s := newTestStore(t, day.AddDate(0, 0, -400))
	s.RecordRead("ancient", "v")
	s.now = func() time.Time { return day }
	s.RecordRead("fresh", "v")

	n, err := s.CleanupOldReads(365)
	if err != nil || n != 1 {
		t.Fatalf("CleanupOldReads = %d, %v; want 1", n, err)
	}
	if left, _ := s.ReadsForPost("fresh"); left != 1 {
		t.Fatalf("fresh read was removed")
	}
}

func TestCleanupSchedulerStops(t *testing.T) {
	s := newTestStore(t, day)
	stop := s.StartCleanupScheduler(365, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
}

func TestIsBot(t *testing.T) {
	tests := map[string]bool{
		"":    true,
		"   ": true,
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)": true,
		"curl/8.4.0":             true,
		"Go-http-client/1.1":     true,
		"python-requests/2.31.0": true,
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36": false,
	}
	for ua, want := range tests {
		if got := IsBot(ua); got != want {
			t.Errorf("IsBot(%q) = %v, want %v", ua, got, want)
		}
	}
}

func TestFillDays(t *testing.T) {
	got := fillDays([]DailyReads{{Date: "2025-01-02", Reads: 5}}, "2025-01-01", "2025-01-03")
	want := []DailyReads{{"2025-01-01", 0}, {"2025-01-02", 5}, {"2025-01-03", 0}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("day %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"

func recordRequest(t *testing.T, h *Handler, body string, headers map[string]string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/analytics/read", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", browserUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	if err := h.Record(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return rec.Code
}

func TestRecordHandler(t *testing.T) {
	s := newTestStore(t, day)
	h := NewHandler(s, func(slug string) bool { return slug == "known" })
	defer h.Close()

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		code    int
	}{
		{"counted", `{"slug":"known"}`, nil, http.StatusNoContent},
		{"repeat is silent", `{"slug":"known"}`, nil, http.StatusNoContent},
		{"unknown slug", `{"slug":"nope"}`, nil, http.StatusNoContent},
		{"do not track", `{"slug":"known"}`, map[string]string{"DNT": "1"}, http.StatusNoContent},
		{"bot", `{"slug":"known"}`, map[string]string{"User-Agent": "curl/8.0"}, http.StatusNoContent},
		{"empty slug", `{"slug":""}`, nil, http.StatusBadRequest},
		{"long slug", `{"slug":"` + strings.Repeat("x", 201) + `"}`, nil, http.StatusBadRequest},
		{"malformed", `{"slug":`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := recordRequest(t, h, tt.body, tt.headers); code != tt.code {
				t.Fatalf("status = %d, want %d", code, tt.code)
			}
		})
	}

	if n, _ := s.ReadsForPost("known"); n != 1 {
		t.Fatalf("reads of known = %d, want 1", n)
	}
	if n, _ := s.ReadsForPost("nope"); n != 0 {
		t.Fatalf("unknown slug was recorded")
	}
}

func TestRecordHandlerRateLimit(t *testing.T) {
	s := newTestStore(t, day)
	h := NewHandler(s, nil)
	defer h.Close()

	for i := 0; i < 60; i++ {
		recordRequest(t, h, `{"slug":"x"}`, nil)
	}
	if code := recordRequest(t, h, `{"slug":"x"}`, nil); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", code)
	}
}

func TestGetStatsHandler(t *testing.T) {
	s := newTestStore(t, day)
	s.RecordRead("a", "v1")
	h := NewHandler(s, nil)
	defer h.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics?period=month&top=500", nil)
	rec := httptest.NewRecorder()
	if err := h.GetStats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"period":"month"`) || !strings.Contains(body, `"totalReads":1`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.close()
	now := day
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Fatal("third request in the window should be rejected")
	}
	if !rl.allow("b") {
		t.Fatal("keys are limited independently")
	}

	now = now.Add(59 * time.Second)
	if rl.allow("a") {
		t.Fatal("window still open")
	}
	now = now.Add(time.Second)
	if !rl.allow("a") {
		t.Fatal("a new window should open after a minute")
	}

	now = now.Add(2 * time.Minute)
	rl.expire()
	rl.mu.Lock()
	n := len(rl.windows)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expire left %d windows", n)
	}
}
