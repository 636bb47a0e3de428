package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"

	"attendance_service/internal/logger"
	"attendance_service/internal/scan"
)

type stubScanner struct {
	mu    sync.Mutex
	calls []string
	out   map[string]scan.Outcome
}

func (s *stubScanner) HandleScan(raw string) scan.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, raw)
	if out, ok := s.out[raw]; ok {
		return out
	}
	return scan.Outcome{Status: scan.StatusRejected, Reason: scan.ReasonNotRegistered, Message: "User not found! Please register first."}
}

type stubPage struct{ err error }

func (p stubPage) Render(w io.Writer, event string) error {
	if p.err != nil {
		return p.err
	}
	_, err := io.WriteString(w, "<h2>"+event+" Attendance</h2>")
	return err
}

type stubSession struct {
	name string
	open bool
}

func (s stubSession) Current() (string, bool) { return s.name, s.open }

func newTestHandler(sc Scanner, p PageRenderer, s EventSource) *Handler {
	return &Handler{Scanner: sc, Page: p, Session: s, Logger: logger.Discard()}
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) scan.Outcome {
	t.Helper()
	var out scan.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestScanRouteStatusCodes(t *testing.T) {
	sc := &stubScanner{out: map[string]scan.Outcome{
		"U1":   {Status: scan.StatusSuccess, Success: true, Message: "Attendance recorded for Alice at 2026-10-04 09:30:00"},
		"BAD":  {Status: scan.StatusError, Message: "Attendance could not be saved."},
		"SOON": {Status: scan.StatusRejected, Reason: scan.ReasonTooSoon, Message: "Alice was already recorded"},
	}}
	h := New(newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true}), RouteOptions{})

	cases := []struct {
		data    string
		status  int
		success bool
	}{
		{"U1", http.StatusOK, true},
		{"U9", http.StatusNotFound, false},
		{"BAD", http.StatusInternalServerError, false},
		{"SOON", http.StatusConflict, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan?data="+tc.data, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.data, tc.status, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: unexpected content type %q", tc.data, ct)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id", tc.data)
		}
		out := decodeOutcome(t, rec)
		if out.Success != tc.success || out.Message == "" {
			t.Fatalf("%s: unexpected body %+v", tc.data, out)
		}
	}
}

func TestScanRoutePassesRawData(t *testing.T) {
	sc := &stubScanner{}
	h := New(newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true}), RouteOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan?data=%20U1%2B", nil))
	if len(sc.calls) != 1 || sc.calls[0] != " U1+" {
		t.Fatalf("expected decoded raw data, got %q", sc.calls)
	}
}

func TestScanRouteUsesPool(t *testing.T) {
	pool, err := ants.NewPool(2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Release()

	sc := &stubScanner{out: map[string]scan.Outcome{"U1": {Status: scan.StatusSuccess, Success: true, Message: "ok"}}}
	handler := newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true})
	handler.Pool = pool
	h := New(handler, RouteOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan?data=U1", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		}()
	}
	wg.Wait()
	if len(sc.calls) != 10 {
		t.Fatalf("expected 10 scans, got %d", len(sc.calls))
	}
}

// slowScanner records the scan only after a delay.
type slowScanner struct {
	delay   time.Duration
	written atomic.Int32
}

func (s *slowScanner) HandleScan(raw string) scan.Outcome {
	time.Sleep(s.delay)
	s.written.Add(1)
	return scan.Outcome{Status: scan.StatusSuccess, Success: true, Message: "Attendance recorded for Alice"}
}

func TestScanStartedPastTimeoutReportsOutcome(t *testing.T) {
	pool, err := ants.NewPool(1)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Release()

	sc := &slowScanner{delay: 200 * time.Millisecond}
	handler := newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true})
	handler.Pool = pool
	handler.ScanTimeout = 50 * time.Millisecond
	h := New(handler, RouteOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan?data=U1", nil))
	if sc.written.Load() != 1 {
		t.Fatalf("expected one record, got %d", sc.written.Load())
	}
	out := decodeOutcome(t, rec)
	if rec.Code != http.StatusOK || !out.Success {
		t.Fatalf("written scan must be reported as recorded: %d %+v", rec.Code, out)
	}
}

func TestScanQueuedPastTimeoutIsRefused(t *testing.T) {
	pool, err := ants.NewPool(1)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Release()

	release := make(chan struct{})
	if err := pool.Submit(func() { <-release }); err != nil {
		t.Fatalf("occupy worker: %v", err)
	}
	time.AfterFunc(150*time.Millisecond, func() { close(release) })

	sc := &slowScanner{}
	handler := newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true})
	handler.Pool = pool
	handler.ScanTimeout = 50 * time.Millisecond
	h := New(handler, RouteOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan?data=U1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if sc.written.Load() != 0 {
		t.Fatalf("refused scan must not be recorded")
	}
	out := decodeOutcome(t, rec)
	if out.Success || out.Status != scan.StatusError || !strings.Contains(out.Message, "scan again") {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestIndexRendersCurrentEvent(t *testing.T) {
	h := New(newTestHandler(&stubScanner{}, stubPage{}, stubSession{name: "Prayer Meeting", open: true}), RouteOptions{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Prayer Meeting Attendance") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestIndexWithoutSession(t *testing.T) {
	h := New(newTestHandler(&stubScanner{}, stubPage{}, stubSession{}), RouteOptions{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestIndexRenderFailure(t *testing.T) {
	h := New(newTestHandler(&stubScanner{}, stubPage{err: errors.New("boom")}, stubSession{name: "Worship", open: true}), RouteOptions{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHealthAndMethods(t *testing.T) {
	h := New(newTestHandler(&stubScanner{}, stubPage{}, stubSession{name: "Worship", open: true}), RouteOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["event"] != "Worship" || body["open"] != true {
		t.Fatalf("unexpected health %v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scan?data=U1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "attendance_http_requests_total") {
		t.Fatalf("metrics not exposed: %d", rec.Code)
	}
}

func TestScanRateLimit(t *testing.T) {
	sc := &stubScanner{}
	h := New(newTestHandler(sc, stubPage{}, stubSession{name: "Worship", open: true}), RouteOptions{
		ScanRatePerMinute: 1,
		ScanBurst:         2,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/scan?data=U9", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third scan to be limited, got %v", codes)
	}
	if len(sc.calls) != 2 {
		t.Fatalf("limited scan must not reach the scanner, got %d calls", len(sc.calls))
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scan?data=U9", nil)
	req.RemoteAddr = "192.0.2.11:5000"
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusTooManyRequests {
		t.Fatalf("other clients have their own bucket")
	}
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	for _, ip := range []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"} {
		rl.getLimiter(ip).Allow()
	}

	rl.mu.Lock()
	rl.limiters["192.0.2.3"].lastSeen = time.Now().Add(time.Hour)
	rl.prune(time.Now().Add(time.Hour))
	n := len(rl.limiters)
	_, kept := rl.limiters["192.0.2.3"]
	rl.mu.Unlock()

	if n != 1 || !kept {
		t.Fatalf("expected only the recent client to remain, got %d (kept=%v)", n, kept)
	}
}
