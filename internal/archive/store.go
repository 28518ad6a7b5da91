// Package archive keeps parsed syslog messages in a DuckDB database so the
// status API can answer queries over recent traffic.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/logserver/internal/archive/migrate"
)

const (
	// DefaultBatchSize is the number of messages buffered before an insert.
	DefaultBatchSize = 100

	// DefaultQueryTimeout bounds every insert and query.
	DefaultQueryTimeout = 30 * time.Second
)

// StoreConfig holds tunable parameters for the archive.
type StoreConfig struct {
	BatchSize    int
	QueryTimeout time.Duration
	// Location interprets BSD timestamps, which carry no zone.
	Location *time.Location
	Clock    func() time.Time
}

// Store manages the DuckDB connection and the pending insert batch.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	pendingMu sync.Mutex
	pending   []Entry
	batchSize int

	queryTimeout time.Duration
	loc          *time.Location
	clock        func() time.Time
	closed       bool
}

// NewStore opens or creates the archive database and applies migrations.
// An empty dbPath opens an in-memory database.
func NewStore(dbPath string, conf ...StoreConfig) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("archive: create directory: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open %q: %w", dbPath, err)
	}
	applied, err := migrate.NewRunner(db).Run(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, m := range applied {
		log.Printf("archive: applied migration %s", m.Name)
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		batchSize:    DefaultBatchSize,
		queryTimeout: DefaultQueryTimeout,
		loc:          time.UTC,
		clock:        time.Now,
	}
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			s.batchSize = conf[0].BatchSize
		}
		if conf[0].QueryTimeout > 0 {
			s.queryTimeout = conf[0].QueryTimeout
		}
		if conf[0].Location != nil {
			s.loc = conf[0].Location
		}
		if conf[0].Clock != nil {
			s.clock = conf[0].Clock
		}
	}
	s.pending = make([]Entry, 0, s.batchSize)
	return s, nil
}

// SchemaVersion returns the newest applied schema migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.New("archive: store closed")
	}
	ms, err := migrate.NewRunner(s.db).Status(ctx)
	if err != nil {
		return 0, err
	}
	v := 0
	for _, m := range ms {
		if m.Applied && m.Version > v {
			v = m.Version
		}
	}
	return v, nil
}

// Path returns the database file, or "" for an in-memory archive.
func (s *Store) Path() string { return s.dbPath }

// Close inserts any pending messages and closes the database.
func (s *Store) Close() error {
	flushErr := s.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flushErr
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("archive: close: %w", err)
	}
	return flushErr
}
