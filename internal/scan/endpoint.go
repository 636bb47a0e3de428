package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attendance_service/internal/attendance"
	"attendance_service/internal/roster"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
)

// Rejection reasons, useful to map outcomes onto transport status codes.
const (
	ReasonNotRegistered = "not_registered"
	ReasonNoSession     = "no_session"
	ReasonTooSoon       = "too_soon"
	ReasonEmpty         = "empty"
)

const (
	msgNotRegistered = "User not found! Please register first."
	msgNoSession     = "No event is open for attendance."
	msgEmpty         = "No code was scanned."
	msgWriteFailed   = "Attendance could not be saved. Please tell the operator."
)

// Outcome is the result of one scan.
type Outcome struct {
	Status  Status             `json:"status"`
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Reason  string             `json:"reason,omitempty"`
	Record  *attendance.Record `json:"record,omitempty"`
}

type Lookuper interface {
	Lookup(id string) (roster.Profile, error)
}

type Appender interface {
	Append(rec attendance.Record) error
}

type EventSource interface {
	Current() (string, bool)
}

type Options struct {
	// RescanInterval rejects a repeat scan of the same user for the same
	// event inside the window. Zero records every scan.
	RescanInterval time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// Endpoint resolves scanned codes against the roster and records attendance.
type Endpoint struct {
	roster  Lookuper
	log     Appender
	session EventSource
	now     func() time.Time
	logger  *slog.Logger
	rescan  time.Duration

	mu        sync.Mutex
	lastSeen  map[seenKey]time.Time
	lastPrune time.Time
}

type seenKey struct {
	event string
	id    string
}

func NewEndpoint(r Lookuper, l Appender, s EventSource, opts Options) *Endpoint {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Endpoint{
		roster:   r,
		log:      l,
		session:  s,
		now:      opts.Now,
		logger:   opts.Logger,
		rescan:   opts.RescanInterval,
		lastSeen: map[seenKey]time.Time{},
	}
}

// HandleScan matches raw exactly against roster ids. The caller does any
// trimming.
func (e *Endpoint) HandleScan(raw string) Outcome {
	event, open := e.session.Current()
	if !open {
		return rejected(ReasonNoSession, msgNoSession)
	}
	if raw == "" {
		return rejected(ReasonEmpty, msgEmpty)
	}

	user, err := e.roster.Lookup(raw)
	if errors.Is(err, roster.ErrNotFound) {
		e.logger.Info("scan rejected", "event", event, "reason", ReasonNotRegistered)
		return rejected(ReasonNotRegistered, msgNotRegistered)
	}
	if err != nil {
		e.logger.Error("roster lookup failed", "event", event, "err", err)
		return Outcome{Status: StatusError, Message: msgWriteFailed}
	}

	now := e.now()
	if prev, ok := e.claim(event, user.ID, now); !ok {
		msg := fmt.Sprintf("%s was already recorded at %s", user.DisplayName, prev.Format(attendance.TimeLayout))
		return rejected(ReasonTooSoon, msg)
	}

	rec := attendance.Record{
		Timestamp:   now,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		EventName:   event,
	}
	if err := e.log.Append(rec); err != nil {
		e.release(event, user.ID, now)
		e.logger.Error("attendance append failed", "event", event, "user_id", user.ID, "err", err)
		return Outcome{Status: StatusError, Message: msgWriteFailed}
	}

	e.logger.Info("attendance recorded", "event", event, "user_id", user.ID)
	return Outcome{
		Status:  StatusSuccess,
		Success: true,
		Message: fmt.Sprintf("Attendance recorded for %s at %s", user.DisplayName, now.Format(attendance.TimeLayout)),
		Record:  &rec,
	}
}

// claim reserves (event, id) at now when the rescan window allows it and
// returns the previous scan time otherwise.
func (e *Endpoint) claim(event, id string, now time.Time) (time.Time, bool) {
	if e.rescan <= 0 {
		return time.Time{}, true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if now.Sub(e.lastPrune) >= e.rescan {
		e.prune(now)
	}
	key := seenKey{event: event, id: id}
	if prev, ok := e.lastSeen[key]; ok && now.Sub(prev) < e.rescan {
		return prev, false
	}
	e.lastSeen[key] = now
	return time.Time{}, true
}

// prune drops scans that fell out of the rescan window. Callers hold e.mu.
func (e *Endpoint) prune(now time.Time) {
	for key, at := range e.lastSeen {
		if now.Sub(at) >= e.rescan {
			delete(e.lastSeen, key)
		}
	}
	e.lastPrune = now
}

func (e *Endpoint) release(event, id string, at time.Time) {
	if e.rescan <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := seenKey{event: event, id: id}
	if e.lastSeen[key].Equal(at) {
		delete(e.lastSeen, key)
	}
}

func rejected(reason, msg string) Outcome {
	return Outcome{Status: StatusRejected, Message: msg, Reason: reason}
}
