package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

const entryColumns = "received, device_time, source, hostname, process, pid, priority, facility, severity, level, format, body, raw, device_timestamp"

func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func whereClause(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any
	if opts.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, "received >= ?")
		args = append(args, opts.Since)
	}
	if len(opts.Levels) > 0 {
		placeholders := make([]string, len(opts.Levels))
		for i, lvl := range opts.Levels {
			placeholders[i] = "?"
			args = append(args, strings.ToUpper(lvl))
		}
		conditions = append(conditions, "level IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Recent returns up to limit of the newest archived messages in
// chronological order.
func (s *Store) Recent(ctx context.Context, limit int, opts QueryOpts) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(opts)
	inner := "SELECT " + entryColumns + " FROM messages" + where + " ORDER BY received DESC LIMIT ?"
	args = append(args, limit)
	query := "SELECT * FROM (" + inner + ") ORDER BY received ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var (
			e                            Entry
			deviceTime                   sql.NullTime
			pid, priority                sql.NullInt64
			facility, severity, deviceTS sql.NullString
		)
		if err := rows.Scan(&e.Received, &deviceTime, &e.Source, &e.Hostname, &e.Process,
			&pid, &priority, &facility, &severity, &e.Level,
			&e.Format, &e.Body, &e.Raw, &deviceTS); err != nil {
			log.Printf("archive: scan error (Recent): %v", err)
			continue
		}
		if deviceTime.Valid {
			t := deviceTime.Time
			e.DeviceTime = &t
		}
		if pid.Valid {
			v := int(pid.Int64)
			e.PID = &v
		}
		if priority.Valid {
			v := int(priority.Int64)
			e.Priority = &v
		}
		e.Facility = facility.String
		e.Severity = severity.String
		if deviceTS.Valid {
			v := deviceTS.String
			e.DeviceTimestamp = &v
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// SeverityCounts returns the number of archived messages per level.
func (s *Store) SeverityCounts(ctx context.Context, opts QueryOpts) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(opts)
	rows, err := s.db.QueryContext(ctx, "SELECT level, COUNT(*) FROM messages"+where+" GROUP BY level", args...)
	if err != nil {
		return nil, fmt.Errorf("archive: severity counts: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			log.Printf("archive: scan error (SeverityCounts): %v", err)
			continue
		}
		result[level] = count
	}
	return result, rows.Err()
}

// Count returns the number of archived messages matching opts.
func (s *Store) Count(ctx context.Context, opts QueryOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	where, args := whereClause(opts)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}
