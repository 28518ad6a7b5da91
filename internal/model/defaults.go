package model

import "time"

// Shared defaults used by the server binary and its packages.
const (
	DefaultServerPort      = 514
	DefaultBufferSize      = 1024
	DefaultReceiveTimeout  = 2 * time.Second
	DefaultSourceMaxLines  = 1000
	DefaultJournalMaxLines = 10000
	DefaultParseEnabled    = true
	DefaultTimezone        = "GMT"
)
