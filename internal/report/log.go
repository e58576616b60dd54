// Package report writes the per-session governance log: a plain text file
// of time-stamped lines, one file per check.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/leapstack-labs/qmgov/internal/governance"
)

const (
	fileTimeLayout = "20060102_150405"
	lineTimeLayout = "2006-01-02 15:04:05"
)

// Log is an open session log.
type Log struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// FileName returns the log file name for a project area opened at t, e.g.
// "Braking_Systems_20240301_093000.txt".
func FileName(areaName string, t time.Time) string {
	return sanitize(areaName) + "_" + t.Format(fileTimeLayout) + ".txt"
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"/\|?*`, r), r < 0x20:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "session"
	}
	return s
}

// Open creates dir if needed and a new log file in it for areaName. now
// supplies line time stamps; the file name uses its value at open time.
func Open(dir, areaName string, now func() time.Time) (*Log, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create report directory")
	}

	path := filepath.Join(dir, FileName(areaName, now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path is built from the configured report directory
	if err != nil {
		return nil, errors.Wrap(err, "create session log")
	}
	return &Log{path: path, now: now, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Println writes one time-stamped line.
func (l *Log) Println(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return errors.New("session log is closed")
	}
	_, err := fmt.Fprintf(l.w, "%s - %s\n", l.now().Format(lineTimeLayout), msg)
	return err
}

// Printf formats and writes one time-stamped line.
func (l *Log) Printf(format string, args ...any) error {
	return l.Println(fmt.Sprintf(format, args...))
}

// WriteReport logs the header, the messages of every result and every
// incident of a governance report.
func (l *Log) WriteReport(r *governance.Report) error {
	lines := []string{
		"Session: " + r.SessionID,
		fmt.Sprintf("Project Area: %s (%s)", r.ProjectArea.Name, r.ProjectArea.ID),
		fmt.Sprintf("Stream: %s (%s)", r.Stream.Name, r.Stream.OSLCID),
	}
	if r.Server != "" {
		lines = append([]string{"Server: " + r.Server}, lines...)
	}
	for _, res := range r.Results {
		lines = append(lines, res.Messages()...)
	}
	for _, inc := range r.Incidents {
		lines = append(lines, "Error: "+inc.Message())
	}

	for _, line := range lines {
		if err := l.Println(line); err != nil {
			return errors.Wrap(err, "write session log")
		}
	}

	var err error
	switch {
	case !r.AllWithinLimit():
		err = l.Printf("%d of %d counts exceed their governance limits.", len(r.Exceeded()), len(r.Results))
	case r.Incomplete():
		err = l.Printf("All %d counts are within their governance limits, but some requests failed.", len(r.Results))
	default:
		err = l.Printf("All %d counts are within their governance limits.", len(r.Results))
	}
	if err != nil {
		return errors.Wrap(err, "write session log")
	}
	return nil
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	l.w, l.f = nil, nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush session log")
	}
	return closeErr
}
