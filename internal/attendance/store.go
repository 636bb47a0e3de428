package attendance

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AggregateFile is the cross-event log inside the data directory.
const AggregateFile = "all_attendance.txt"

// Log appends records to a per-event file and to the aggregate file.
// Appends are serialized so concurrent scans never interleave lines.
type Log struct {
	mu            sync.Mutex
	dataDir       string
	aggregatePath string
}

func NewLog(dataDir string) (*Log, error) {
	if dataDir == "" {
		dataDir = "./attendance_records"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &Log{
		dataDir:       dataDir,
		aggregatePath: filepath.Join(dataDir, AggregateFile),
	}, nil
}

// EventFile maps an event name to its log file name: lower-cased, spaces
// replaced with underscores.
func EventFile(eventName string) string {
	return strings.ReplaceAll(strings.ToLower(eventName), " ", "_") + ".txt"
}

func (l *Log) EventPath(eventName string) string {
	return filepath.Join(l.dataDir, EventFile(eventName))
}

func (l *Log) AggregatePath() string {
	return l.aggregatePath
}

// Append writes rec to the event file, then to the aggregate file. If the
// second write fails the first is not undone and the two logs diverge.
func (l *Log) Append(rec Record) error {
	line := rec.Line() + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := appendLine(l.EventPath(rec.EventName), line); err != nil {
		return err
	}
	return appendLine(l.aggregatePath, line)
}

// ReadEvent returns the raw contents of an event's log.
func (l *Log) ReadEvent(eventName string) (string, error) {
	return readRaw(l.EventPath(eventName))
}

// ReadAll returns the raw contents of the aggregate log.
func (l *Log) ReadAll() (string, error) {
	return readRaw(l.aggregatePath)
}

func appendLine(path, line string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	_, werr := file.WriteString(line)
	cerr := file.Close()
	if werr != nil {
		return &WriteError{Path: path, Err: werr}
	}
	if cerr != nil {
		return &WriteError{Path: path, Err: cerr}
	}
	return nil
}

func readRaw(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoRecords
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNoRecords
	}
	return string(data), nil
}
