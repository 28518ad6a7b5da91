// Package dispatch routes received datagrams to per-sender log sinks and the
// server journal, and owns graceful shutdown.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logserver/internal/console"
	"github.com/tinytelemetry/logserver/internal/inetaddr"
	"github.com/tinytelemetry/logserver/internal/logsink"
	"github.com/tinytelemetry/logserver/internal/metrics"
	"github.com/tinytelemetry/logserver/internal/model"
	"github.com/tinytelemetry/logserver/internal/syslog"
)

var (
	ErrMissingAddress   = errors.New("dispatch: source has no address")
	ErrMissingPath      = errors.New("dispatch: source has no path")
	ErrUnresolvable     = errors.New("dispatch: source address does not resolve")
	ErrDuplicateAddress = errors.New("dispatch: duplicate source address")
)

const journalSinkName = "journal"

// State is the dispatcher lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
)

func (s State) String() string {
	if s == StateShuttingDown {
		return "shutting-down"
	}
	return "running"
}

// Sink is the buffered writer behind one log stream. *logsink.Sink satisfies it.
type Sink interface {
	Write(line string) error
	Flush() error
	Buffered() int
	Dir() string
}

// Recorder receives every successfully parsed message.
type Recorder interface {
	Record(ctx context.Context, source string, received time.Time, msg syslog.Message) error
	Close() error
}

// Closer releases the listener socket.
type Closer interface {
	Close() error
}

// SinkFactory builds the sink for dir.
type SinkFactory func(dir string, maxLines int) (Sink, error)

// Config describes the dispatcher's sources and collaborators.
type Config struct {
	Sources    []model.SourceConfig
	JournalDir string
	Resolver   *inetaddr.Resolver
	Listener   Closer
	Console    *console.Console
	Metrics    *metrics.Metrics
	Recorders  []Recorder
	Location   *time.Location

	SourceMaxLines  int
	JournalMaxLines int
	// FlushInterval flushes a sink on write once its last flush is older
	// than this. Zero disables the age trigger.
	FlushInterval time.Duration
	NewSink       SinkFactory
}

type source struct {
	addr  inetaddr.Address
	key   string // unmapped literal senders are matched on
	path  string
	parse bool
	sink  Sink

	received atomic.Int64
	parsed   atomic.Int64
	failed   atomic.Int64
}

// Dispatcher owns the address to sink mapping for one collector instance.
type Dispatcher struct {
	sources   map[string]*source
	order     []*source
	journal   Sink
	listener  Closer
	console   *console.Console
	metrics   *metrics.Metrics
	recorders []Recorder

	state    atomic.Int32
	shutdown sync.Once
}

// New validates and resolves every configured source and opens its sink.
// Any failure is a fatal startup error.
func New(ctx context.Context, cfg Config) (*Dispatcher, error) {
	if cfg.JournalDir == "" {
		return nil, fmt.Errorf("dispatch: journal: %w", ErrMissingPath)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = inetaddr.NewResolver(nil)
	}
	if cfg.Console == nil {
		cfg.Console = console.New(nil)
	}
	if cfg.SourceMaxLines <= 0 {
		cfg.SourceMaxLines = model.DefaultSourceMaxLines
	}
	if cfg.JournalMaxLines <= 0 {
		cfg.JournalMaxLines = model.DefaultJournalMaxLines
	}
	if cfg.NewSink == nil {
		cfg.NewSink = fileSinkFactory(cfg.Location, cfg.FlushInterval)
	}

	d := &Dispatcher{
		sources:   make(map[string]*source, len(cfg.Sources)),
		listener:  cfg.Listener,
		console:   cfg.Console,
		metrics:   cfg.Metrics,
		recorders: cfg.Recorders,
	}

	for i, sc := range cfg.Sources {
		if sc.Address == "" {
			return nil, fmt.Errorf("%w (source %d)", ErrMissingAddress, i)
		}
		if sc.Path == "" {
			return nil, fmt.Errorf("%w (source %s)", ErrMissingPath, sc.Address)
		}
		addr, ok := cfg.Resolver.ResolveInput(ctx, sc.Address)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvable, sc.Address)
		}
		// Senders are matched unmapped, so key ::ffff:a.b.c.d as a.b.c.d.
		key, _ := inetaddr.FromAddr(addr.Addr())
		if _, dup := d.sources[key.Literal()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, key.Literal())
		}
		sink, err := cfg.NewSink(sc.Path, cfg.SourceMaxLines)
		if err != nil {
			return nil, fmt.Errorf("dispatch: sink for %s: %w", sc.Address, err)
		}
		src := &source{addr: addr, key: key.Literal(), path: sc.Path, parse: sc.ParseEnabled(), sink: sink}
		d.sources[key.Literal()] = src
		d.order = append(d.order, src)
	}

	journal, err := cfg.NewSink(cfg.JournalDir, cfg.JournalMaxLines)
	if err != nil {
		return nil, fmt.Errorf("dispatch: journal sink: %w", err)
	}
	d.journal = journal
	return d, nil
}

func fileSinkFactory(loc *time.Location, maxAge time.Duration) SinkFactory {
	return func(dir string, maxLines int) (Sink, error) {
		opts := []logsink.Option{logsink.WithMaxLines(maxLines), logsink.WithMaxAge(maxAge)}
		if loc != nil {
			opts = append(opts, logsink.WithLocation(loc))
		}
		return logsink.New(dir, opts...)
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Handle journals the datagram and, for a configured sender, persists it to
// that sender's sink. It never returns replies and never fails: every
// problem is reported and the receive loop continues.
func (d *Dispatcher) Handle(ctx context.Context, dg model.Datagram) ([][]byte, error) {
	if d.State() != StateRunning {
		return nil, nil
	}

	sender, _ := inetaddr.FromAddr(dg.Addr.Addr().WithZone(""))
	ip := sender.Literal()
	src := d.sources[ip]
	d.metrics.SenderClassified(src != nil)
	if src == nil {
		d.event(console.LevelWarn, fmt.Sprintf("Received %d bytes from unknown host %s:%d", len(dg.Payload), ip, dg.Addr.Port()))
		return nil, nil
	}
	d.event(console.LevelInfo, fmt.Sprintf("Received %d bytes from %s:%d", len(dg.Payload), ip, dg.Addr.Port()))
	src.received.Add(1)

	text := dg.Text()
	line := text
	if src.parse {
		msg, err := syslog.Parse(text)
		if err != nil {
			src.failed.Add(1)
			d.metrics.ParseResult(metrics.ParseFailed)
			d.event(console.LevelWarn, fmt.Sprintf("Unable to parse message from %s: %q", ip, text))
		} else {
			src.parsed.Add(1)
			d.metrics.ParseResult(metrics.ParseOK)
			line = msg.Line()
			d.record(ctx, ip, dg.Received, msg)
		}
	} else {
		d.metrics.ParseResult(metrics.ParseSkipped)
	}

	if err := src.sink.Write(line); err != nil {
		d.metrics.SinkWriteFailed(ip)
		d.event(console.LevelError, fmt.Sprintf("Unable to flush log for %s, %d lines kept buffered: %v", ip, src.sink.Buffered(), err))
	}
	d.metrics.SinkBuffered(ip, src.sink.Buffered())
	return nil, nil
}

func (d *Dispatcher) record(ctx context.Context, from string, received time.Time, msg syslog.Message) {
	for _, r := range d.recorders {
		if err := r.Record(ctx, from, received, msg); err != nil {
			log.Printf("dispatch: record message from %s: %v", from, err)
		}
	}
}

// event prints text on the console and mirrors it into the journal.
func (d *Dispatcher) event(level console.Level, text string) {
	line := d.console.Print(level, text)
	if err := d.journal.Write(line); err != nil {
		d.metrics.SinkWriteFailed(journalSinkName)
		log.Printf("dispatch: journal write: %v", err)
	}
	d.metrics.SinkBuffered(journalSinkName, d.journal.Buffered())
}

// Shutdown stops handling, flushes the journal and every sink holding
// buffered lines, closes recorders and releases the listener. Only the first
// call has any effect; it returns the number of sinks flushed.
func (d *Dispatcher) Shutdown() (int, error) {
	flushed := 0
	var errs []error

	d.shutdown.Do(func() {
		d.state.Store(int32(StateShuttingDown))
		d.event(console.LevelInfo, "Shutting down")

		flush := func(name string, s Sink) {
			if s.Buffered() == 0 {
				return
			}
			if err := s.Flush(); err != nil {
				d.metrics.SinkWriteFailed(name)
				d.console.Print(console.LevelError, fmt.Sprintf("Unable to flush %s: %v", s.Dir(), err))
				errs = append(errs, err)
				return
			}
			flushed++
		}

		for _, src := range d.order {
			flush(src.key, src.sink)
		}
		for _, r := range d.recorders {
			if err := r.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispatch: close recorder: %w", err))
			}
		}
		if d.listener != nil {
			if err := d.listener.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispatch: close listener: %w", err))
			}
		}
		d.event(console.LevelInfo, fmt.Sprintf("Flushed %d log buffers", flushed))
		flush(journalSinkName, d.journal)
	})

	return flushed, errors.Join(errs...)
}

// Sources returns a snapshot of every configured sender, in config order.
func (d *Dispatcher) Sources() []model.SourceStatus {
	out := make([]model.SourceStatus, 0, len(d.order))
	for _, src := range d.order {
		out = append(out, model.SourceStatus{
			Address:  src.addr.Literal(),
			Hostname: src.addr.Hostname(),
			Dir:      src.sink.Dir(),
			Parse:    src.parse,
			Buffered: src.sink.Buffered(),
			Received: src.received.Load(),
			Parsed:   src.parsed.Load(),
			Failed:   src.failed.Load(),
		})
	}
	return out
}

// JournalBuffered returns the number of journal lines not yet on disk.
func (d *Dispatcher) JournalBuffered() int {
	return d.journal.Buffered()
}

// Running reports whether the dispatcher still accepts datagrams.
func (d *Dispatcher) Running() bool {
	return d.State() == StateRunning
}
