package console

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func fixedConsole(buf *bytes.Buffer) *Console {
	return New(buf, Config{
		Location: time.UTC,
		Clock: func() time.Time {
			return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
		},
	})
}

func TestPrint_ReturnsPlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := fixedConsole(&buf)

	got := c.Info("Received %d bytes from %s", 12, "10.0.0.1:514")
	want := "Sat, 09 Mar 2024 14:05:06 +0000 | Received 12 bytes from 10.0.0.1:514"
	if got != want {
		t.Fatalf("Info() = %q, want %q", got, want)
	}
	if !strings.Contains(buf.String(), "Received 12 bytes from 10.0.0.1:514") {
		t.Fatalf("console output missing event text: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("console output not newline terminated: %q", buf.String())
	}
}

func TestPrint_AllLevelsWrite(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := fixedConsole(&buf)
	c.Info("one")
	c.Warn("two")
	c.Error("three")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	for i, want := range []string{"one", "two", "three"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
}

func TestNew_NilWriterDiscards(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if got := c.Warn("x"); !strings.HasSuffix(got, " | x") {
		t.Fatalf("Warn() = %q", got)
	}
}
