// Package logsink buffers log lines in memory and appends them to one dated
// file per day under a directory.
package logsink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// DefaultMaxLines is the buffer size used when WithMaxLines is not given.
	DefaultMaxLines = 100

	dateLayout = "2006-01-02"
)

// FlushError reports a failed append. No line is dropped: Lines were not
// written to Path and Kept is the total still buffered for a later flush.
type FlushError struct {
	Path  string
	Lines int
	Kept  int
	Err   error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("logsink: flush %d lines to %s (%d kept buffered): %v", e.Lines, e.Path, e.Kept, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Option configures a Sink.
type Option func(*Sink)

// WithMaxLines sets the number of buffered lines that triggers a flush.
func WithMaxLines(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxLines = n
		}
	}
}

// WithMaxAge flushes on the next write once the last flush is older than d.
// Zero disables the age trigger.
func WithMaxAge(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone used to pick the dated file name.
func WithLocation(loc *time.Location) Option {
	return func(s *Sink) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// batch holds the lines buffered on one calendar day.
type batch struct {
	day   string
	lines []string
}

// Sink accumulates lines and appends them to <dir>/<YYYY-MM-DD>.log.
// Lines buffered on one day are always written to that day's file.
type Sink struct {
	mu        sync.Mutex
	dir       string
	pending   []batch // oldest day first
	buffered  int
	maxLines  int
	maxAge    time.Duration
	lastFlush time.Time
	flushes   int
	now       func() time.Time
	loc       *time.Location
}

// New creates a sink writing under dir, creating the directory when missing.
// An unusable directory is reported as an error.
func New(dir string, opts ...Option) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("logsink: directory is empty")
	}

	s := &Sink{
		maxLines: DefaultMaxLines,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}

	dir = strings.TrimSpace(dir)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("logsink: mkdir %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("logsink: resolve %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("logsink: stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("logsink: %s is not a directory", abs)
	}
	if err := checkWritable(abs); err != nil {
		return nil, fmt.Errorf("logsink: %s is not writable: %w", abs, err)
	}

	s.dir = abs
	s.lastFlush = s.now()
	return s, nil
}

// Write buffers one line. Buffered lines from an earlier day are flushed to
// their own file first; if that fails they stay in their own day's group and
// the new line is still buffered. The buffer is flushed once it holds the
// configured maximum, or when the age trigger has elapsed.
func (s *Sink) Write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	day := now.In(s.loc).Format(dateLayout)

	var rollErr error
	if n := len(s.pending); n > 0 && s.pending[n-1].day != day {
		rollErr = s.flushLocked()
	}

	if n := len(s.pending); n == 0 || s.pending[n-1].day != day {
		s.pending = append(s.pending, batch{day: day, lines: make([]string, 0, s.maxLines)})
	}
	last := &s.pending[len(s.pending)-1]
	last.lines = append(last.lines, line)
	s.buffered++

	if rollErr != nil {
		return rollErr
	}

	if s.buffered >= s.maxLines || (s.maxAge > 0 && now.Sub(s.lastFlush) >= s.maxAge) {
		return s.flushLocked()
	}
	return nil
}

// Flush appends every buffered line to the file for the day it was
// buffered on, oldest day first, under an exclusive file lock. A day's lines
// are cleared only when their write succeeds.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Sink) flushLocked() error {
	if s.buffered == 0 {
		return nil
	}

	for len(s.pending) > 0 {
		b := s.pending[0]
		path := filepath.Join(s.dir, b.day+".log")

		var sb strings.Builder
		for _, line := range b.lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if err := appendLocked(path, []byte(sb.String())); err != nil {
			return &FlushError{Path: path, Lines: len(b.lines), Kept: s.buffered, Err: err}
		}

		s.pending = s.pending[1:]
		s.buffered -= len(b.lines)
	}

	s.pending = nil
	s.lastFlush = s.now()
	s.flushes++
	return nil
}

// Buffered returns the number of lines waiting to be flushed.
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// Dir returns the absolute directory the sink writes to.
func (s *Sink) Dir() string { return s.dir }

// Flushes returns how many successful flushes the sink has performed.
func (s *Sink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// LastFlush returns when the buffer was last written out (or created).
func (s *Sink) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}

// FileFor returns the file path lines buffered at t are written to.
func (s *Sink) FileFor(t time.Time) string {
	return filepath.Join(s.dir, t.In(s.loc).Format(dateLayout)+".log")
}
