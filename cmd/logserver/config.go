package main

import (
	"time"

	"github.com/tinytelemetry/logserver/internal/archive"
	"github.com/tinytelemetry/logserver/internal/forward"
	"github.com/tinytelemetry/logserver/internal/model"
)

const (
	defaultServerAddress    = "0.0.0.0"
	defaultServerPort       = model.DefaultServerPort
	defaultServerLogDir     = "/var/log/messages/server"
	defaultTimezone         = model.DefaultTimezone
	defaultBufferSize       = model.DefaultBufferSize
	defaultReceiveTimeout   = model.DefaultReceiveTimeout
	defaultSourceMaxLines   = model.DefaultSourceMaxLines
	defaultJournalMaxLines  = model.DefaultJournalMaxLines
	defaultAPIAddr          = "127.0.0.1:3000"
	defaultArchiveBatchSize = archive.DefaultBatchSize
	defaultForwardBatchSize = forward.DefaultBatchSize
	defaultForwardTimeout   = forward.DefaultTimeout
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	ServerAddress        string               `mapstructure:"server-address" yaml:"server-address"`
	ServerPort           int                  `mapstructure:"server-port" yaml:"server-port"`
	ServerLogDir         string               `mapstructure:"server-log-dir" yaml:"server-log-dir"`
	Timezone             string               `mapstructure:"timezone" yaml:"timezone"`
	BufferSize           int                  `mapstructure:"buffer-size" yaml:"buffer-size"`
	ReceiveTimeout       time.Duration        `mapstructure:"receive-timeout" yaml:"receive-timeout"`
	NonBlocking          bool                 `mapstructure:"non-blocking" yaml:"non-blocking"`
	ReadBuffer           int                  `mapstructure:"read-buffer" yaml:"read-buffer"`
	SourceMaxLines       int                  `mapstructure:"source-max-lines" yaml:"source-max-lines"`
	JournalMaxLines      int                  `mapstructure:"journal-max-lines" yaml:"journal-max-lines"`
	FlushInterval        time.Duration        `mapstructure:"flush-interval" yaml:"flush-interval"`
	Sources              []model.SourceConfig `mapstructure:"sources" yaml:"sources"`
	APIEnabled           bool                 `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIAddr              string               `mapstructure:"api-addr" yaml:"api-addr"`
	ArchiveEnabled       bool                 `mapstructure:"archive-enabled" yaml:"archive-enabled"`
	ArchivePath          string               `mapstructure:"archive-path" yaml:"archive-path"`
	ArchiveBatchSize     int                  `mapstructure:"archive-batch-size" yaml:"archive-batch-size"`
	ArchiveRetentionDays int                  `mapstructure:"archive-retention-days" yaml:"archive-retention-days"`
	ForwardEnabled       bool                 `mapstructure:"forward-enabled" yaml:"forward-enabled"`
	ForwardEndpoint      string               `mapstructure:"forward-endpoint" yaml:"forward-endpoint"`
	ForwardBatchSize     int                  `mapstructure:"forward-batch-size" yaml:"forward-batch-size"`
	ForwardTimeout       time.Duration        `mapstructure:"forward-timeout" yaml:"forward-timeout"`
	RuntimeLog           string               `mapstructure:"runtime-log" yaml:"runtime-log"`
	ConfigPath           string               `mapstructure:"-" yaml:"-"` // not from config file

	location *time.Location
}
