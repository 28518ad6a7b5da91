// Package console mirrors collector events to the operator's terminal.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level selects the colour of a console line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cyanStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Config holds optional console settings.
type Config struct {
	Location *time.Location
	Clock    func() time.Time
}

// Console writes timestamped, coloured event lines.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	loc   *time.Location
	clock func() time.Time
}

// New returns a console writing to w. A nil w discards output.
func New(w io.Writer, conf ...Config) *Console {
	if w == nil {
		w = io.Discard
	}
	c := &Console{w: w, loc: time.Local, clock: time.Now}
	if len(conf) > 0 {
		if conf[0].Location != nil {
			c.loc = conf[0].Location
		}
		if conf[0].Clock != nil {
			c.clock = conf[0].Clock
		}
	}
	return c
}

// Print writes text at the given level and returns the uncoloured line,
// prefixed with an RFC 2822 timestamp, for mirroring into the journal.
func (c *Console) Print(level Level, text string) string {
	stamp := c.clock().In(c.loc).Format(time.RFC1123Z)
	plain := stamp + " | " + text

	var style lipgloss.Style
	switch level {
	case LevelWarn:
		style = yellowStyle
	case LevelError:
		style = redStyle
	default:
		style = cyanStyle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, dimStyle.Render(stamp)+" "+style.Render(text))
	return plain
}

// Info prints an accepted event.
func (c *Console) Info(format string, args ...any) string {
	return c.Print(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn prints an unknown sender or parse failure.
func (c *Console) Warn(format string, args ...any) string {
	return c.Print(LevelWarn, fmt.Sprintf(format, args...))
}

// Error prints a failure the operator must act on.
func (c *Console) Error(format string, args ...any) string {
	return c.Print(LevelError, fmt.Sprintf(format, args...))
}
