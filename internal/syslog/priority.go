package syslog

import (
	"errors"
	"fmt"
)

// Facility is the syslog source category (RFC 3164 §4.1.1).
type Facility int

const (
	FacilityKern Facility = iota
	FacilityUser
	FacilityMail
	FacilityDaemon
	FacilityAuth
	FacilitySyslog
	FacilityLPR
	FacilityNews
	FacilityUUCP
	FacilityCron
	FacilityAuthPriv
	FacilityFTP
	FacilityNTP
	FacilitySecurity
	FacilityConsole
	FacilitySolarisCron
	FacilityLocal0
	FacilityLocal1
	FacilityLocal2
	FacilityLocal3
	FacilityLocal4
	FacilityLocal5
	FacilityLocal6
	FacilityLocal7
)

var facilityNames = [...]string{
	"KERN", "USER", "MAIL", "DAEMON", "AUTH", "SYSLOG", "LPR", "NEWS",
	"UUCP", "CRON", "AUTHPRIV", "FTP", "NTP", "SECURITY", "CONSOLE", "SOLARIS_CRON",
	"LOCAL0", "LOCAL1", "LOCAL2", "LOCAL3", "LOCAL4", "LOCAL5", "LOCAL6", "LOCAL7",
}

// Valid reports whether f is one of the 24 defined facilities.
func (f Facility) Valid() bool {
	return f >= FacilityKern && f <= FacilityLocal7
}

func (f Facility) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Facility(%d)", int(f))
	}
	return facilityNames[f]
}

// Description returns a human-readable category name.
func (f Facility) Description() string {
	switch f {
	case FacilityKern:
		return "Kernel"
	case FacilityUser:
		return "User-level"
	case FacilityMail:
		return "Mail"
	case FacilityDaemon:
		return "System"
	case FacilityAuth, FacilityAuthPriv:
		return "Security/authentication"
	case FacilitySyslog:
		return "Syslog"
	case FacilityLPR:
		return "Printer"
	case FacilityNews:
		return "News"
	case FacilityUUCP:
		return "UUCP"
	case FacilityCron:
		return "Cron"
	case FacilityFTP:
		return "FTP"
	case FacilityNTP:
		return "NTP"
	case FacilitySecurity:
		return "Log audit"
	case FacilityConsole:
		return "Log alert"
	case FacilitySolarisCron:
		return "Scheduling"
	}
	if f >= FacilityLocal0 && f <= FacilityLocal7 {
		return "Local"
	}
	return "Unknown"
}

// Severity is the syslog urgency level, 0 (emergency) to 7 (debug).
type Severity int

const (
	SeverityEmerg Severity = iota
	SeverityAlert
	SeverityCrit
	SeverityErr
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

var severityNames = [...]string{"EMERG", "ALERT", "CRIT", "ERR", "WARNING", "NOTICE", "INFO", "DEBUG"}

// Valid reports whether s is in 0-7.
func (s Severity) Valid() bool {
	return s >= SeverityEmerg && s <= SeverityDebug
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Description returns a human-readable level name.
func (s Severity) Description() string {
	switch s {
	case SeverityEmerg:
		return "Emergency"
	case SeverityAlert:
		return "Alert"
	case SeverityCrit:
		return "Critical"
	case SeverityErr:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityNotice:
		return "Notice"
	case SeverityInfo:
		return "Informational"
	case SeverityDebug:
		return "Debug"
	default:
		return "Unknown"
	}
}

// Level maps the severity onto the short level names used by the archive and
// the forwarder: FATAL, ERROR, WARN, INFO or DEBUG.
func (s Severity) Level() string {
	switch s {
	case SeverityEmerg, SeverityAlert, SeverityCrit:
		return "FATAL"
	case SeverityErr:
		return "ERROR"
	case SeverityWarning:
		return "WARN"
	case SeverityNotice, SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// ErrInvalidPriority is returned when a numeric priority does not decode to a
// defined facility/severity pair.
var ErrInvalidPriority = errors.New("syslog: invalid priority")

// MaxPriority is the highest valid numeric priority (LOCAL7.DEBUG).
const MaxPriority = int(FacilityLocal7)*8 + int(SeverityDebug)

// Priority is the combined facility/severity encoding. Value is always
// Facility*8 + Severity.
type Priority struct {
	Value    int
	Facility Facility
	Severity Severity
}

// PriorityFromValue decodes a numeric priority.
func PriorityFromValue(value int) (Priority, error) {
	if value < 0 || value > MaxPriority {
		return Priority{}, fmt.Errorf("%w: %d", ErrInvalidPriority, value)
	}
	return Priority{
		Value:    value,
		Facility: Facility(value / 8),
		Severity: Severity(value % 8),
	}, nil
}

// NewPriority encodes a facility and severity.
func NewPriority(facility Facility, severity Severity) (Priority, error) {
	if !facility.Valid() || !severity.Valid() {
		return Priority{}, fmt.Errorf("%w: facility=%d severity=%d", ErrInvalidPriority, int(facility), int(severity))
	}
	return Priority{
		Value:    int(facility)*8 + int(severity),
		Facility: facility,
		Severity: severity,
	}, nil
}

func (p Priority) String() string {
	return fmt.Sprintf("%d (%s[%d] %s[%d])", p.Value, p.Facility, int(p.Facility), p.Severity, int(p.Severity))
}
