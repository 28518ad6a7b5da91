// Package httpserver serves the collector's read-only status API: health,
// configured sources, archived messages and Prometheus metrics.
package httpserver
