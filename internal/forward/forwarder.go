// Package forward exports parsed syslog messages to an OTLP/gRPC log
// collector. Delivery is best effort: a failed export is logged and its
// batch dropped.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/tinytelemetry/logserver/internal/syslog"
)

const (
	DefaultBatchSize   = 50
	DefaultTimeout     = 5 * time.Second
	DefaultServiceName = "logserver"
	scopeName          = "github.com/tinytelemetry/logserver/internal/forward"
)

// ForwarderConfig holds tunable parameters for the forwarder.
type ForwarderConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ServiceName string
	Location    *time.Location
	// DialOptions replace the default insecure transport credentials.
	DialOptions []grpc.DialOption
}

type pending struct {
	source string
	record *logspb.LogRecord
}

// Stats reports forwarder totals.
type Stats struct {
	Exported  int64 `json:"exported"`
	Rejected  int64 `json:"rejected"`
	Dropped   int64 `json:"dropped"`
	SentBytes int64 `json:"sent_bytes"`
}

// Forwarder batches messages and exports them over one gRPC connection.
type Forwarder struct {
	conn    *grpc.ClientConn
	client  collogspb.LogsServiceClient
	target  string
	service string
	loc     *time.Location
	timeout time.Duration

	mu        sync.Mutex
	batch     []pending
	batchSize int
	closed    bool

	exported  atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
	sentBytes atomic.Int64
}

// New creates a forwarder for the collector at target ("host:port").
// The connection is established lazily on the first export.
func New(target string, conf ...ForwarderConfig) (*Forwarder, error) {
	if target == "" {
		return nil, errors.New("forward: empty endpoint")
	}
	f := &Forwarder{
		target:    target,
		service:   DefaultServiceName,
		loc:       time.UTC,
		timeout:   DefaultTimeout,
		batchSize: DefaultBatchSize,
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if len(conf) > 0 {
		c := conf[0]
		if c.BatchSize > 0 {
			f.batchSize = c.BatchSize
		}
		if c.Timeout > 0 {
			f.timeout = c.Timeout
		}
		if c.ServiceName != "" {
			f.service = c.ServiceName
		}
		if c.Location != nil {
			f.loc = c.Location
		}
		if len(c.DialOptions) > 0 {
			opts = c.DialOptions
		}
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("forward: dial %s: %w", target, err)
	}
	f.conn = conn
	f.client = collogspb.NewLogsServiceClient(conn)
	f.batch = make([]pending, 0, f.batchSize)
	return f, nil
}

// Record queues msg and exports the batch once it is full.
func (f *Forwarder) Record(ctx context.Context, source string, received time.Time, msg syslog.Message) error {
	rec := f.logRecord(received, msg)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("forward: forwarder closed")
	}
	f.batch = append(f.batch, pending{source: source, record: rec})
	if len(f.batch) < f.batchSize {
		f.mu.Unlock()
		return nil
	}
	batch := f.batch
	f.batch = make([]pending, 0, f.batchSize)
	f.mu.Unlock()

	return f.export(ctx, batch)
}

// Flush exports whatever is queued.
func (f *Forwarder) Flush(ctx context.Context) error {
	f.mu.Lock()
	batch := f.batch
	f.batch = make([]pending, 0, f.batchSize)
	f.mu.Unlock()
	return f.export(ctx, batch)
}

// Close flushes the queue and closes the connection.
func (f *Forwarder) Close() error {
	flushErr := f.Flush(context.Background())

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return flushErr
	}
	f.closed = true
	if err := f.conn.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("forward: close: %w", err))
	}
	return flushErr
}

// Stats returns a snapshot of the export totals.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Exported:  f.exported.Load(),
		Rejected:  f.rejected.Load(),
		Dropped:   f.dropped.Load(),
		SentBytes: f.sentBytes.Load(),
	}
}

func (f *Forwarder) export(ctx context.Context, batch []pending) error {
	if len(batch) == 0 {
		return nil
	}
	req := f.request(batch)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Export(ctx, req)
	if err != nil {
		f.dropped.Add(int64(len(batch)))
		log.Printf("forward: export %d records to %s: %v", len(batch), f.target, err)
		return fmt.Errorf("forward: export: %w", err)
	}
	f.sentBytes.Add(int64(proto.Size(req)))

	rejected := int64(0)
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedLogRecords() > 0 {
		rejected = ps.GetRejectedLogRecords()
		log.Printf("forward: collector rejected %d records: %s", rejected, ps.GetErrorMessage())
	}
	f.rejected.Add(rejected)
	f.exported.Add(int64(len(batch)) - rejected)
	return nil
}

// request groups the batch into one ResourceLogs per source, in first-seen
// order.
func (f *Forwarder) request(batch []pending) *collogspb.ExportLogsServiceRequest {
	bySource := make(map[string]*logspb.ScopeLogs)
	var resources []*logspb.ResourceLogs

	for _, p := range batch {
		scope, ok := bySource[p.source]
		if !ok {
			scope = &logspb.ScopeLogs{
				Scope: &commonpb.InstrumentationScope{Name: scopeName},
			}
			bySource[p.source] = scope
			resources = append(resources, &logspb.ResourceLogs{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						stringAttr("service.name", f.service),
						stringAttr("net.peer.ip", p.source),
					},
				},
				ScopeLogs: []*logspb.ScopeLogs{scope},
			})
		}
		scope.LogRecords = append(scope.LogRecords, p.record)
	}
	return &collogspb.ExportLogsServiceRequest{ResourceLogs: resources}
}

func (f *Forwarder) logRecord(received time.Time, msg syslog.Message) *logspb.LogRecord {
	rec := &logspb.LogRecord{
		ObservedTimeUnixNano: uint64(received.UnixNano()),
		SeverityNumber:       logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED,
		Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: msg.Body}},
		Attributes: []*commonpb.KeyValue{
			stringAttr("host.name", msg.Hostname),
			stringAttr("process.executable.name", msg.Process),
			stringAttr("syslog.format", msg.Format.String()),
		},
	}
	if t, ok := msg.Time(f.loc, received); ok {
		rec.TimeUnixNano = uint64(t.UnixNano())
	}
	if sev, ok := msg.Severity(); ok {
		rec.SeverityText = sev.String()
		rec.SeverityNumber = severityNumber(sev)
		rec.Attributes = append(rec.Attributes,
			stringAttr("syslog.facility", msg.Priority.Facility.String()),
			intAttr("syslog.priority", int64(msg.Priority.Value)),
		)
	}
	if msg.PID != nil {
		rec.Attributes = append(rec.Attributes, intAttr("process.pid", int64(*msg.PID)))
	}
	if msg.DeviceTimestamp != nil {
		rec.Attributes = append(rec.Attributes, stringAttr("syslog.device_timestamp", *msg.DeviceTimestamp))
	}
	return rec
}

func severityNumber(s syslog.Severity) logspb.SeverityNumber {
	switch s.Level() {
	case "FATAL":
		return logspb.SeverityNumber_SEVERITY_NUMBER_FATAL
	case "ERROR":
		return logspb.SeverityNumber_SEVERITY_NUMBER_ERROR
	case "WARN":
		return logspb.SeverityNumber_SEVERITY_NUMBER_WARN
	case "DEBUG":
		return logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG
	default:
		return logspb.SeverityNumber_SEVERITY_NUMBER_INFO
	}
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}}
}
