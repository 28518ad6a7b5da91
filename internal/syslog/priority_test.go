package syslog

import (
	"errors"
	"testing"
)

func TestPriorityRoundTrip(t *testing.T) {
	t.Parallel()

	for f := FacilityKern; f <= FacilityLocal7; f++ {
		for s := SeverityEmerg; s <= SeverityDebug; s++ {
			p, err := PriorityFromValue(int(f)*8 + int(s))
			if err != nil {
				t.Fatalf("PriorityFromValue(%d): %v", int(f)*8+int(s), err)
			}
			if p.Facility != f || p.Severity != s {
				t.Fatalf("PriorityFromValue(%d) = %v/%v, want %v/%v", p.Value, p.Facility, p.Severity, f, s)
			}

			built, err := NewPriority(f, s)
			if err != nil {
				t.Fatalf("NewPriority(%v, %v): %v", f, s, err)
			}
			if built != p {
				t.Fatalf("NewPriority(%v, %v) = %+v, want %+v", f, s, built, p)
			}
		}
	}
}

func TestPriorityFromValueRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, v := range []int{-1, MaxPriority + 1, 1000} {
		if _, err := PriorityFromValue(v); !errors.Is(err, ErrInvalidPriority) {
			t.Errorf("PriorityFromValue(%d) err = %v, want ErrInvalidPriority", v, err)
		}
	}
	if _, err := NewPriority(Facility(24), SeverityInfo); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("NewPriority(24, INFO) err = %v, want ErrInvalidPriority", err)
	}
	if _, err := NewPriority(FacilityUser, Severity(8)); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("NewPriority(USER, 8) err = %v, want ErrInvalidPriority", err)
	}
}

func TestFacilityAndSeverityNames(t *testing.T) {
	t.Parallel()

	if got := FacilityAuth.String(); got != "AUTH" {
		t.Errorf("FacilityAuth.String() = %q, want AUTH", got)
	}
	if got := FacilityAuthPriv.Description(); got != "Security/authentication" {
		t.Errorf("FacilityAuthPriv.Description() = %q", got)
	}
	if got := FacilityLocal5.Description(); got != "Local" {
		t.Errorf("FacilityLocal5.Description() = %q, want Local", got)
	}
	if got := SeverityCrit.String(); got != "CRIT" {
		t.Errorf("SeverityCrit.String() = %q, want CRIT", got)
	}
	if got := Severity(9).Description(); got != "Unknown" {
		t.Errorf("Severity(9).Description() = %q, want Unknown", got)
	}
}

func TestSeverityLevel(t *testing.T) {
	t.Parallel()

	want := map[Severity]string{
		SeverityEmerg:   "FATAL",
		SeverityAlert:   "FATAL",
		SeverityCrit:    "FATAL",
		SeverityErr:     "ERROR",
		SeverityWarning: "WARN",
		SeverityNotice:  "INFO",
		SeverityInfo:    "INFO",
		SeverityDebug:   "DEBUG",
	}
	for s, level := range want {
		if got := s.Level(); got != level {
			t.Errorf("%v.Level() = %q, want %q", s, got, level)
		}
	}
}
