package dispatch

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/logserver/internal/console"
	"github.com/tinytelemetry/logserver/internal/inetaddr"
	"github.com/tinytelemetry/logserver/internal/model"
	"github.com/tinytelemetry/logserver/internal/syslog"
)

type fakeSink struct {
	mu      sync.Mutex
	dir     string
	lines   []string
	flushed []string
	flushes int
	failing bool
}

func (s *fakeSink) Write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	if s.failing {
		return errors.New("disk full")
	}
	return nil
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("disk full")
	}
	if len(s.lines) == 0 {
		return nil
	}
	s.flushes++
	s.flushed = append(s.flushed, s.lines...)
	s.lines = nil
	return nil
}

func (s *fakeSink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func (s *fakeSink) Dir() string { return s.dir }

func (s *fakeSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(append([]string(nil), s.flushed...), s.lines...)
}

type fakeSinks struct {
	mu    sync.Mutex
	byDir map[string]*fakeSink
}

func (f *fakeSinks) factory(dir string, _ int) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byDir == nil {
		f.byDir = make(map[string]*fakeSink)
	}
	s := &fakeSink{dir: dir}
	f.byDir[dir] = s
	return s, nil
}

func (f *fakeSinks) get(dir string) *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDir[dir]
}

type fakeListener struct{ closes int }

func (l *fakeListener) Close() error {
	l.closes++
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	messages []syslog.Message
	sources  []string
	closed   bool
}

func (r *fakeRecorder) Record(_ context.Context, source string, _ time.Time, msg syslog.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.sources = append(r.sources, source)
	return nil
}

func (r *fakeRecorder) Close() error {
	r.closed = true
	return nil
}

type noLookup struct{}

func (noLookup) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return nil, errors.New("no such host")
}

func boolPtr(b bool) *bool { return &b }

func datagram(from string, payload string) model.Datagram {
	return model.Datagram{
		Payload:  []byte(payload),
		Addr:     netip.MustParseAddrPort(from),
		Received: time.Date(2024, 10, 12, 8, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	d        *Dispatcher
	sinks    *fakeSinks
	listener *fakeListener
	recorder *fakeRecorder
	out      *bytes.Buffer
}

func newHarness(t *testing.T, sources ...model.SourceConfig) *harness {
	t.Helper()
	h := &harness{
		sinks:    &fakeSinks{},
		listener: &fakeListener{},
		recorder: &fakeRecorder{},
		out:      &bytes.Buffer{},
	}
	d, err := New(context.Background(), Config{
		Sources:    sources,
		JournalDir: "journal",
		Resolver:   inetaddr.NewResolver(noLookup{}),
		Listener:   h.listener,
		Console:    console.New(h.out),
		Recorders:  []Recorder{h.recorder},
		NewSink:    h.sinks.factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.d = d
	return h
}

const authCrit = "<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick on /dev/pts/8"

func TestNew_ValidatesSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sources []model.SourceConfig
		want    error
	}{
		{"missing address", []model.SourceConfig{{Path: "a"}}, ErrMissingAddress},
		{"missing path", []model.SourceConfig{{Address: "10.0.0.1"}}, ErrMissingPath},
		{"unresolvable", []model.SourceConfig{{Address: "no.such.host", Path: "a"}}, ErrUnresolvable},
		{"duplicate", []model.SourceConfig{{Address: "10.0.0.1", Path: "a"}, {Address: " 10.0.0.1 ", Path: "b"}}, ErrDuplicateAddress},
		{"duplicate mapped", []model.SourceConfig{{Address: "10.0.0.1", Path: "a"}, {Address: "::ffff:10.0.0.1", Path: "b"}}, ErrDuplicateAddress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sinks := &fakeSinks{}
			_, err := New(context.Background(), Config{
				Sources:    tc.sources,
				JournalDir: "journal",
				Resolver:   inetaddr.NewResolver(noLookup{}),
				NewSink:    sinks.factory,
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("New error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNew_SinkFailureIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("read-only file system")
	_, err := New(context.Background(), Config{
		Sources:    []model.SourceConfig{{Address: "10.0.0.1", Path: "a"}},
		JournalDir: "journal",
		NewSink:    func(string, int) (Sink, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("New error = %v, want %v", err, boom)
	}
}

func TestHandle_UnknownSenderOnlyJournaled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1"})
	replies, err := h.d.Handle(context.Background(), datagram("10.9.9.9:5140", authCrit))
	if err != nil || replies != nil {
		t.Fatalf("Handle = %v, %v; want nil, nil", replies, err)
	}

	if got := h.sinks.get("src1").all(); len(got) != 0 {
		t.Fatalf("source sink received %q from unknown sender", got)
	}
	journal := h.sinks.get("journal").all()
	if len(journal) != 1 || !strings.Contains(journal[0], "Received 76 bytes from unknown host 10.9.9.9:5140") {
		t.Fatalf("journal = %q", journal)
	}
	if !strings.Contains(h.out.String(), "unknown host 10.9.9.9") {
		t.Fatalf("console = %q", h.out.String())
	}
	if len(h.recorder.messages) != 0 {
		t.Fatal("recorder saw a message from an unknown sender")
	}
}

func TestHandle_ParseDisabledPersistsRawText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1", Parse: boolPtr(false)})
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "  "+authCrit+"\n"))
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "not syslog at all"))

	got := h.sinks.get("src1").all()
	want := []string{authCrit, "not syslog at all"}
	if len(got) != len(want) {
		t.Fatalf("sink lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if len(h.recorder.messages) != 0 {
		t.Fatal("recorder should not see unparsed messages")
	}
}

func TestHandle_ParsesKnownSender(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1"})
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", authCrit))

	if len(h.recorder.messages) != 1 {
		t.Fatalf("recorder got %d messages, want 1", len(h.recorder.messages))
	}
	msg := h.recorder.messages[0]
	if msg.Priority == nil || msg.Priority.Facility != syslog.FacilityAuth || msg.Priority.Severity != syslog.SeverityCrit {
		t.Fatalf("priority = %+v, want AUTH/CRIT", msg.Priority)
	}
	if msg.Hostname != "mymachine" || msg.Process != "su" || msg.Body != "'su root' failed for lonvick on /dev/pts/8" {
		t.Fatalf("message = %+v", msg)
	}
	if h.recorder.sources[0] != "10.0.0.1" {
		t.Fatalf("recorded source = %q", h.recorder.sources[0])
	}

	lines := h.sinks.get("src1").all()
	if len(lines) != 1 || lines[0] != msg.Line() {
		t.Fatalf("sink lines = %q, want [%q]", lines, msg.Line())
	}

	st := h.d.Sources()
	if len(st) != 1 || st[0].Received != 1 || st[0].Parsed != 1 || st[0].Buffered != 1 || !st[0].Parse {
		t.Fatalf("Sources() = %+v", st)
	}
}

func TestHandle_ParseFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1"})
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "garbage payload"))

	lines := h.sinks.get("src1").all()
	if len(lines) != 1 || lines[0] != "garbage payload" {
		t.Fatalf("sink lines = %q", lines)
	}
	journal := strings.Join(h.sinks.get("journal").all(), "\n")
	if !strings.Contains(journal, "Unable to parse message from 10.0.0.1") {
		t.Fatalf("journal missing parse warning: %q", journal)
	}
	if st := h.d.Sources(); st[0].Failed != 1 || st[0].Parsed != 0 {
		t.Fatalf("Sources() = %+v", st)
	}
}

func TestHandle_SinkFailureReportsKeptLines(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1", Parse: boolPtr(false)})
	h.sinks.get("src1").failing = true
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "one"))
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "two"))

	if got := h.sinks.get("src1").Buffered(); got != 2 {
		t.Fatalf("src1 buffered = %d, want 2", got)
	}
	journal := strings.Join(h.sinks.get("journal").all(), "\n")
	if !strings.Contains(journal, "Unable to flush log for 10.0.0.1, 2 lines kept buffered: disk full") {
		t.Fatalf("journal missing flush failure: %q", journal)
	}
}

func TestHandle_IPv4MappedSender(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1", Parse: boolPtr(false)})
	h.d.Handle(context.Background(), datagram("[::ffff:10.0.0.1]:514", "hello"))

	if got := h.sinks.get("src1").all(); len(got) != 1 {
		t.Fatalf("mapped sender not matched: %q", got)
	}
}

func TestHandle_MappedSourceLiteral(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "::ffff:10.0.0.1", Path: "src1", Parse: boolPtr(false)})
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "plain"))
	h.d.Handle(context.Background(), datagram("[::ffff:10.0.0.1]:514", "mapped"))

	if got := h.sinks.get("src1").all(); strings.Join(got, "|") != "plain|mapped" {
		t.Fatalf("src1 lines = %q, want both datagrams", got)
	}
}

func TestShutdown_FlushesBufferedSinksOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		model.SourceConfig{Address: "10.0.0.1", Path: "src1", Parse: boolPtr(false)},
		model.SourceConfig{Address: "10.0.0.2", Path: "src2", Parse: boolPtr(false)},
		model.SourceConfig{Address: "fe80::1", Path: "src3", Parse: boolPtr(false)},
		model.SourceConfig{Address: "10.0.0.4", Path: "idle"},
	)
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "one"))
	h.d.Handle(context.Background(), datagram("10.0.0.2:514", "two"))
	h.d.Handle(context.Background(), datagram("[fe80::1]:514", "three"))

	flushed, err := h.d.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if flushed != 4 {
		t.Fatalf("Shutdown flushed %d sinks, want 3 sources + journal", flushed)
	}
	for _, dir := range []string{"src1", "src2", "src3"} {
		if got := h.sinks.get(dir).flushes; got != 1 {
			t.Fatalf("%s flushed %d times, want 1", dir, got)
		}
	}
	if got := h.sinks.get("idle").flushes; got != 0 {
		t.Fatalf("idle sink flushed %d times, want 0", got)
	}
	if h.listener.closes != 1 {
		t.Fatalf("listener closed %d times, want 1", h.listener.closes)
	}
	if !h.recorder.closed {
		t.Fatal("recorder not closed")
	}
	if h.d.State() != StateShuttingDown {
		t.Fatalf("State() = %v, want shutting-down", h.d.State())
	}

	flushed, err = h.d.Shutdown()
	if flushed != 0 || err != nil {
		t.Fatalf("second Shutdown = %d, %v; want 0, nil", flushed, err)
	}
	for _, dir := range []string{"src1", "src2", "src3", "journal"} {
		if got := h.sinks.get(dir).flushes; got != 1 {
			t.Fatalf("%s flushed %d times after second Shutdown, want 1", dir, got)
		}
	}
	if h.listener.closes != 1 {
		t.Fatalf("listener closed %d times, want 1", h.listener.closes)
	}

	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "late"))
	if got := h.sinks.get("src1").Buffered(); got != 0 {
		t.Fatal("Handle after Shutdown buffered a line")
	}
}

func TestShutdown_ReportsFlushFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.SourceConfig{Address: "10.0.0.1", Path: "src1", Parse: boolPtr(false)})
	h.d.Handle(context.Background(), datagram("10.0.0.1:514", "kept"))
	h.sinks.get("src1").failing = true

	if _, err := h.d.Shutdown(); err == nil {
		t.Fatal("Shutdown should report the flush failure")
	}
	if got := h.sinks.get("src1").Buffered(); got != 1 {
		t.Fatalf("failed sink buffered = %d, want 1 retained", got)
	}
}

func TestEndToEnd_FileSinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d, err := New(context.Background(), Config{
		Sources: []model.SourceConfig{
			{Address: "10.0.0.1", Path: filepath.Join(root, "remote")},
		},
		JournalDir:     filepath.Join(root, "server"),
		Resolver:       inetaddr.NewResolver(noLookup{}),
		Location:       time.UTC,
		SourceMaxLines: 1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.Handle(context.Background(), datagram("10.0.0.1:514", authCrit))
	d.Handle(context.Background(), datagram("10.0.0.7:514", "stranger"))
	if _, err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	remote := readDir(t, filepath.Join(root, "remote"))
	if !strings.Contains(remote, "host=mymachine proc=su") || !strings.Contains(remote, "facility=AUTH severity=CRIT") {
		t.Fatalf("remote log = %q", remote)
	}
	if strings.Contains(remote, "stranger") {
		t.Fatal("unknown sender leaked into remote log")
	}
	journal := readDir(t, filepath.Join(root, "server"))
	if !strings.Contains(journal, "Received 76 bytes from 10.0.0.1:514") || !strings.Contains(journal, "unknown host 10.0.0.7") {
		t.Fatalf("journal = %q", journal)
	}
}

func readDir(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	var b strings.Builder
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		b.Write(data)
	}
	return b.String()
}
