// Package syslog decodes the BSD-style and ISO-timestamped syslog lines
// emitted by home routers, modems and embedded Linux devices.
package syslog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparsable is wrapped by every ParseError.
var ErrUnparsable = errors.New("syslog: message matches no known format")

// ParseError reports a datagram that matched none of the known formats.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syslog: unparsable message %.80q", e.Input)
}

func (e *ParseError) Unwrap() error { return ErrUnparsable }

// Format identifies which wire format a message was decoded from.
type Format int

const (
	FormatUnknown Format = iota
	FormatBSDKernel
	FormatBSDKernelUntagged
	FormatBSD
	FormatBSDUntagged
	FormatISO
)

func (f Format) String() string {
	switch f {
	case FormatBSDKernel:
		return "bsd-kernel"
	case FormatBSDKernelUntagged:
		return "bsd-kernel-untagged"
	case FormatBSD:
		return "bsd"
	case FormatBSDUntagged:
		return "bsd-untagged"
	case FormatISO:
		return "iso"
	default:
		return "unknown"
	}
}

const (
	bsdStamp = `(?P<ts>\w+\s+\d+\s\d+:\d+:\d+)`
	isoStamp = `(?P<ts>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+(?:Z|[+-]\d{2}:\d{2}))`
	pri      = `<(?P<pri>\d+)>`
	host     = `(?P<host>[\w.-]+)`
	proc     = `(?P<proc>[\w.-]+)`
	body     = `(?P<body>(?s:.+))`
)

// variant pairs one wire format with its anchored pattern.
type variant struct {
	format  Format
	pattern *regexp.Regexp
}

// variants are tried in order; the first full match wins.
var variants = []variant{
	{FormatBSDKernel, regexp.MustCompile(`^` + pri + bsdStamp + `\s` + host + `\s` + proc + `:\s\[(?P<field>\s*\d+\.\d+)\]\s` + body + `$`)},
	{FormatBSDKernelUntagged, regexp.MustCompile(`^` + bsdStamp + `\s` + host + `\s` + proc + `:\s\[(?P<field>\s*\d+\.\d+)\]\s` + body + `$`)},
	{FormatBSD, regexp.MustCompile(`^` + pri + bsdStamp + `\s` + host + `\s` + proc + `:\s` + body + `$`)},
	{FormatBSDUntagged, regexp.MustCompile(`^` + bsdStamp + `\s` + host + `\s` + proc + `:\s` + body + `$`)},
	{FormatISO, regexp.MustCompile(`^` + isoStamp + `\s` + host + `\s` + proc + `\[(?P<field>\d+)\]:\s` + body + `$`)},
}

// Parse decodes raw into a Message. It returns a *ParseError when no known
// format matches; partial results are never returned.
func Parse(raw string) (Message, error) {
	text := strings.TrimSpace(raw)
	for _, v := range variants {
		m := v.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return v.extract(text, m), nil
	}
	return Message{}, &ParseError{Input: text}
}

func (v variant) extract(text string, m []string) Message {
	group := func(name string) (string, bool) {
		i := v.pattern.SubexpIndex(name)
		if i < 0 || i >= len(m) {
			return "", false
		}
		return m[i], true
	}

	msg := Message{Raw: text, Format: v.format}
	msg.Timestamp, _ = group("ts")
	msg.Hostname, _ = group("host")
	msg.Process, _ = group("proc")
	msg.Body, _ = group("body")

	if token, ok := group("pri"); ok {
		// An undecodable priority leaves the field unset; the message is kept.
		if n, err := strconv.Atoi(token); err == nil {
			if p, err := PriorityFromValue(n); err == nil {
				msg.Priority = &p
			}
		}
	}

	if field, ok := group("field"); ok {
		if isDigits(field) {
			if pid, err := strconv.Atoi(field); err == nil {
				msg.PID = &pid
			}
		} else {
			ts := strings.TrimSpace(field)
			msg.DeviceTimestamp = &ts
		}
	}
	return msg
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
