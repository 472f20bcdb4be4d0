// Package logging sets up the two outputs of the installer: the
// append-only log file and the styled console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "2006-01-02 15:04:05"

// Open opens (or creates) the log file in append mode and returns a logger
// writing into it. The caller must close the returned file.
func Open(path string) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open log file %s: %w", path, err)
	}
	return New(f), f, nil
}

// New returns a logger writing timestamped lines to w.
func New(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		Level:           log.InfoLevel,
	})
}

// Discard returns a logger dropping everything. Useful in tests.
func Discard() *log.Logger {
	return New(io.Discard)
}

// Critical logs an unrecoverable failure.
// charmbracelet/log has no level above Error, so the severity is kept as a field.
func Critical(logger *log.Logger, msg string, keyvals ...interface{}) {
	logger.Error(msg, append([]interface{}{"severity", "critical"}, keyvals...)...)
}

// Console prints operator-facing status lines.
type Console struct {
	out io.Writer

	header lipgloss.Style
	info   lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
}

// NewConsole styles output for w. Colors are only emitted when w is a terminal.
func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		out:    w,
		header: r.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		info:   r.NewStyle().Foreground(lipgloss.Color("12")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Writer exposes the underlying output (ex: for progress bars).
func (c *Console) Writer() io.Writer {
	return c.out
}

func (c *Console) Banner(title string) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(c.out, c.header.Render(rule))
	fmt.Fprintln(c.out, c.header.Render("  "+title))
	fmt.Fprintln(c.out, c.header.Render(rule))
	fmt.Fprintln(c.out)
}

func (c *Console) Header(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.header.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Info(label, format string, args ...interface{}) {
	fmt.Fprintf(c.out, "%s %s\n", c.info.Render(label), fmt.Sprintf(format, args...))
}

func (c *Console) OK(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.ok.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.warn.Render(fmt.Sprintf(format, args...)))
}

// Fail prints a short failure message followed by its detail.
func (c *Console) Fail(label string, err error) {
	fmt.Fprintf(c.out, "%s %v\n", c.fail.Render(label), err)
}

func (c *Console) Println(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Prompt prints a question without a trailing newline.
func (c *Console) Prompt(question string) {
	fmt.Fprint(c.out, c.header.Render(question)+" ")
}
