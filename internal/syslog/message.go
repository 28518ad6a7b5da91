package syslog

import (
	"strconv"
	"strings"
	"time"
)

// Message is one decoded syslog line. It is immutable once returned by Parse.
type Message struct {
	// Raw is the trimmed datagram text the message was decoded from.
	Raw string
	// Timestamp is the sender's timestamp exactly as written: either
	// "Mmm dd hh:mm:ss" or an ISO-8601 instant.
	Timestamp string
	Hostname  string
	Process   string
	Body      string
	Format    Format

	Priority        *Priority
	PID             *int
	DeviceTimestamp *string
}

const bsdLayout = "Jan 2 15:04:05"

// Time interprets Timestamp. BSD timestamps carry no year or zone, so they
// are read in loc and given now's year, stepping back a year when the result
// would land more than a day in the future (December lines read in January).
func (m Message) Time(loc *time.Location, now time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if m.Format == FormatISO {
		t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	stamp := strings.Join(strings.Fields(m.Timestamp), " ")
	t, err := time.ParseInLocation(bsdLayout, stamp, loc)
	if err != nil {
		return time.Time{}, false
	}
	now = now.In(loc)
	t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
	if t.After(now.Add(24 * time.Hour)) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}

// Severity returns the message severity, or false when no priority was sent.
func (m Message) Severity() (Severity, bool) {
	if m.Priority == nil {
		return 0, false
	}
	return m.Priority.Severity, true
}

// Line renders the message as one logfmt-style line for the sink files.
func (m Message) Line() string {
	var b strings.Builder
	b.Grow(len(m.Raw) + 96)

	b.WriteString("ts=")
	b.WriteString(strconv.Quote(m.Timestamp))
	b.WriteString(" host=")
	b.WriteString(m.Hostname)
	b.WriteString(" proc=")
	b.WriteString(m.Process)

	b.WriteString(" pid=")
	if m.PID != nil {
		b.WriteString(strconv.Itoa(*m.PID))
	} else {
		b.WriteString("unknown")
	}

	if m.Priority != nil {
		b.WriteString(" pri=")
		b.WriteString(strconv.Itoa(m.Priority.Value))
		b.WriteString(" facility=")
		b.WriteString(m.Priority.Facility.String())
		b.WriteString(" severity=")
		b.WriteString(m.Priority.Severity.String())
	} else {
		b.WriteString(" pri=unknown")
	}

	if m.DeviceTimestamp != nil {
		b.WriteString(" devts=")
		b.WriteString(*m.DeviceTimestamp)
	}

	b.WriteString(" msg=")
	b.WriteString(strconv.Quote(m.Body))
	return b.String()
}
