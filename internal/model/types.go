package model

import "strings"

// SourceConfig describes one remote sender as written in the config file.
// Parse is a pointer so an omitted key can default to true.
type SourceConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Path    string `mapstructure:"path" yaml:"path"`
	Parse   *bool  `mapstructure:"parse" yaml:"parse,omitempty"`
}

// ParseEnabled reports whether datagrams from this source should be parsed.
func (c SourceConfig) ParseEnabled() bool {
	if c.Parse == nil {
		return DefaultParseEnabled
	}
	return *c.Parse
}

// SourceStatus is a point-in-time view of one configured sender.
// It is the read contract for status surfaces (HTTP API, banner).
type SourceStatus struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname,omitempty"`
	Dir      string `json:"dir"`
	Parse    bool   `json:"parse"`
	Buffered int    `json:"buffered"`
	Received int64  `json:"received"`
	Parsed   int64  `json:"parsed"`
	Failed   int64  `json:"parse_failures"`
}

func trimLine(s string) string {
	return strings.TrimSpace(s)
}
