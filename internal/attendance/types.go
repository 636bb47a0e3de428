package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp layout used in log lines and scan messages.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrNoRecords = errors.New("no attendance records found")
	ErrBadLine   = errors.New("malformed attendance line")
)

// Record is one attendance entry. It is written once and never rewritten.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"name"`
	EventName   string    `json:"event"`
}

// Line renders the record in the on-disk format, without a trailing newline.
func (r Record) Line() string {
	return fmt.Sprintf("%s | ID: %s | Name: %s | Event: %s",
		r.Timestamp.Format(TimeLayout), r.UserID, r.DisplayName, r.EventName)
}

// ParseLine is the inverse of Record.Line. Timestamps are read in local time.
func ParseLine(line string) (Record, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " | ", 4)
	if len(parts) != 4 {
		return Record{}, ErrBadLine
	}
	ts, err := time.ParseInLocation(TimeLayout, parts[0], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBadLine, err)
	}
	fields := [3]string{}
	for i, prefix := range []string{"ID: ", "Name: ", "Event: "} {
		if !strings.HasPrefix(parts[i+1], prefix) {
			return Record{}, ErrBadLine
		}
		fields[i] = strings.TrimPrefix(parts[i+1], prefix)
	}
	return Record{Timestamp: ts, UserID: fields[0], DisplayName: fields[1], EventName: fields[2]}, nil
}

// WriteError reports a failed append to one of the attendance files.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("append %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Report summarizes a consistency check between the aggregate log and the
// per-event logs.
type Report struct {
	OK       bool           `json:"ok"`
	Total    int            `json:"total"`
	PerEvent map[string]int `json:"per_event"`
	Errors   []string       `json:"errors"`
}
