package attendance

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Reconcile checks that every line of the aggregate log appears in the
// matching event log and the other way round. Appends are not transactional,
// so a failed second write leaves the two sides out of step.
func (l *Log) Reconcile() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := Report{OK: true, PerEvent: map[string]int{}}
	fail := func(format string, args ...interface{}) {
		report.OK = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	aggregate := map[string]map[string]int{}
	lines, err := readLines(l.aggregatePath)
	if err != nil {
		fail("read aggregate: %v", err)
		return report
	}
	for i, line := range lines {
		rec, err := ParseLine(line)
		if err != nil {
			fail("aggregate line %d: %v", i+1, err)
			continue
		}
		file := EventFile(rec.EventName)
		if aggregate[file] == nil {
			aggregate[file] = map[string]int{}
		}
		aggregate[file][line]++
		report.Total++
		report.PerEvent[rec.EventName]++
	}

	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		fail("read data dir: %v", err)
		return report
	}
	seen := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == AggregateFile || !strings.HasSuffix(name, ".txt") {
			continue
		}
		seen[name] = true
		eventLines, err := readLines(filepath.Join(l.dataDir, name))
		if err != nil {
			fail("read %s: %v", name, err)
			continue
		}
		counts := map[string]int{}
		for _, line := range eventLines {
			counts[line]++
		}
		if n := missing(counts, aggregate[name]); n > 0 {
			fail("%s: %d line(s) missing from %s", name, n, AggregateFile)
		}
		if n := missing(aggregate[name], counts); n > 0 {
			fail("%s: %d line(s) missing from event log", name, n)
		}
	}
	for name, counts := range aggregate {
		if seen[name] {
			continue
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		fail("%s: event log missing, %d line(s) only in %s", name, total, AggregateFile)
	}

	sort.Strings(report.Errors)
	return report
}

// missing counts lines present in want more often than in have.
func missing(want, have map[string]int) int {
	n := 0
	for line, count := range want {
		if diff := count - have[line]; diff > 0 {
			n += diff
		}
	}
	return n
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 5*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}
