package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/logserver/internal/syslog"
)

// Record queues a parsed message and inserts the batch once it is full.
func (s *Store) Record(ctx context.Context, source string, received time.Time, msg syslog.Message) error {
	entry := s.entryFor(source, received, msg)

	s.pendingMu.Lock()
	s.pending = append(s.pending, entry)
	if len(s.pending) < s.batchSize {
		s.pendingMu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make([]Entry, 0, s.batchSize)
	s.pendingMu.Unlock()

	return s.InsertBatch(ctx, batch)
}

// Flush inserts all pending messages.
func (s *Store) Flush() error {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = make([]Entry, 0, s.batchSize)
	s.pendingMu.Unlock()

	return s.InsertBatch(context.Background(), batch)
}

// Pending returns the number of queued, uninserted messages.
func (s *Store) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *Store) entryFor(source string, received time.Time, msg syslog.Message) Entry {
	e := Entry{
		Received:        received,
		Source:          source,
		Hostname:        msg.Hostname,
		Process:         msg.Process,
		PID:             msg.PID,
		Level:           "INFO",
		Format:          msg.Format.String(),
		Body:            msg.Body,
		Raw:             msg.Raw,
		DeviceTimestamp: msg.DeviceTimestamp,
	}
	if t, ok := msg.Time(s.loc, s.clock()); ok {
		e.DeviceTime = &t
	}
	if p := msg.Priority; p != nil {
		v := p.Value
		e.Priority = &v
		e.Facility = p.Facility.String()
		e.Severity = p.Severity.String()
		e.Level = p.Severity.Level()
	}
	return e
}

// InsertBatch writes entries in one transaction. When the batch fails it is
// retried entry by entry so one bad row does not drop the rest.
func (s *Store) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("archive: store closed")
	}

	err := s.insertBatchTx(ctx, entries)
	if err == nil {
		return nil
	}

	var failed int
	for _, e := range entries {
		if rerr := s.insertBatchTx(ctx, []Entry{e}); rerr != nil {
			failed++
			log.Printf("archive: dropping message (source=%s body=%.80s): %v", e.Source, e.Body, rerr)
		}
	}
	if failed > 0 {
		return fmt.Errorf("archive: %d/%d messages dropped: %w", failed, len(entries), err)
	}
	return nil
}

func (s *Store) insertBatchTx(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (received, device_time, source, hostname, process, pid, priority, facility, severity, level, format, body, raw, device_timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		var deviceTime, pid, priority, facility, severity, deviceTS any
		if e.DeviceTime != nil {
			deviceTime = *e.DeviceTime
		}
		if e.PID != nil {
			pid = *e.PID
		}
		if e.Priority != nil {
			priority = *e.Priority
			facility = e.Facility
			severity = e.Severity
		}
		if e.DeviceTimestamp != nil {
			deviceTS = *e.DeviceTimestamp
		}
		if _, err := stmt.ExecContext(ctx,
			e.Received, deviceTime, e.Source, e.Hostname, e.Process,
			pid, priority, facility, severity, e.Level,
			e.Format, e.Body, e.Raw, deviceTS,
		); err != nil {
			return fmt.Errorf("message insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
