package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"

	"attendance_service/internal/metrics"
	"attendance_service/internal/scan"
)

type Scanner interface {
	HandleScan(raw string) scan.Outcome
}

type PageRenderer interface {
	Render(w io.Writer, event string) error
}

type EventSource interface {
	Current() (string, bool)
}

const (
	msgBusy    = "Scanner is busy, please scan again."
	msgUnknown = "Scan result unknown. Please check with the operator before scanning again."
)

type Handler struct {
	Scanner     Scanner
	Page        PageRenderer
	Session     EventSource
	Pool        *ants.Pool
	ScanTimeout time.Duration
	Logger      *slog.Logger
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	event, open := h.Session.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"open":  open,
		"event": event,
	})
}

// Index serves the scan page for the open event.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	event, open := h.Session.Current()
	if !open {
		http.Error(w, "no event is open for attendance", http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := h.Page.Render(&buf, event); err != nil {
		h.Logger.Error("render scan page", "event", event, "err", err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Scan resolves the data query parameter and answers with the outcome.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("data")

	ctx := r.Context()
	if h.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ScanTimeout)
		defer cancel()
	}

	out, err := h.run(ctx, raw)
	if err != nil {
		h.Logger.Warn("scan not processed", "err", err)
		out = scan.Outcome{Status: scan.StatusError, Message: msgBusy}
		metrics.ScansTotal.WithLabelValues(string(out.Status)).Inc()
		writeJSON(w, http.StatusServiceUnavailable, out)
		return
	}
	metrics.ScansTotal.WithLabelValues(string(out.Status)).Inc()
	writeJSON(w, statusFor(out), out)
}

// run hands the scan to the worker pool so the number of scans touching the
// roster and log at once stays bounded. A scan still queued when ctx expires
// is refused without running. Once a scan has started its outcome is always
// returned, because it may already have been written.
func (h *Handler) run(ctx context.Context, raw string) (scan.Outcome, error) {
	if h.Pool == nil {
		return h.Scanner.HandleScan(raw), nil
	}
	type result struct {
		out scan.Outcome
		err error
	}
	done := make(chan result, 1)
	err := h.Pool.Submit(func() {
		if err := ctx.Err(); err != nil {
			done <- result{err: err}
			return
		}
		defer func() {
			if p := recover(); p != nil {
				h.Logger.Error("scan handler panic", "panic", fmt.Sprint(p))
				done <- result{out: scan.Outcome{Status: scan.StatusError, Message: msgUnknown}}
			}
		}()
		done <- result{out: h.Scanner.HandleScan(raw)}
	})
	if err != nil {
		return scan.Outcome{}, err
	}
	res := <-done
	return res.out, res.err
}

func statusFor(out scan.Outcome) int {
	switch out.Status {
	case scan.StatusSuccess:
		return http.StatusOK
	case scan.StatusRejected:
		switch out.Reason {
		case scan.ReasonNotRegistered:
			return http.StatusNotFound
		case scan.ReasonNoSession:
			return http.StatusServiceUnavailable
		case scan.ReasonEmpty:
			return http.StatusBadRequest
		default:
			return http.StatusConflict
		}
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
