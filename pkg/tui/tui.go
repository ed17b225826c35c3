// Package tui renders terminal output for the tabflow CLI.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// Result is the outcome of validating one location.
type Result struct {
	Location string
	Rows     int
	Duration time.Duration
	Err      error
}

// OK reports whether the location validated.
func (r Result) OK() bool { return r.Err == nil }

// Summary counts results.
type Summary struct {
	Valid   int
	Invalid int
	Rows    int
}

// Summarize totals a set of results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Rows += r.Rows
		if r.OK() {
			s.Valid++
		} else {
			s.Invalid++
		}
	}
	return s
}

// PrintHeader prints the tool banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  TABFLOW")+mutedStyle.Render(" "+version))
	fmt.Fprintln(w)
}

// PrintResults prints one line per result followed by the totals.
func PrintResults(w io.Writer, results []Result) Summary {
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(w, "  %s %s %s\n",
				successStyle.Render("✓"),
				titleStyle.Render(r.Location),
				mutedStyle.Render(fmt.Sprintf("(%s rows, %s)", FormatNumber(int64(r.Rows)), FormatDuration(r.Duration))))
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			accentStyle.Render("✗"),
			titleStyle.Render(r.Location),
			mutedStyle.Render(fmt.Sprintf("(failed after %s rows)", FormatNumber(int64(r.Rows)))))
		fmt.Fprintf(w, "    %s\n", describe(r.Err))
	}

	s := Summarize(results)
	fmt.Fprintln(w, mutedStyle.Render("  ─────────────────────────────────────"))
	if s.Invalid == 0 {
		fmt.Fprintf(w, "  %s %s\n", successStyle.Render("VALID"),
			mutedStyle.Render(fmt.Sprintf("%d table(s), %s rows", s.Valid, FormatNumber(int64(s.Rows)))))
	} else {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("INVALID"),
			mutedStyle.Render(fmt.Sprintf("%d of %d table(s) failed", s.Invalid, s.Valid+s.Invalid)))
	}
	return s
}

func describe(err error) string {
	code := tferrors.GetCode(err)
	msg := err.Error()
	if code != tferrors.CodeUnknown {
		msg = strings.TrimPrefix(msg, "["+string(code)+"] ")
		return accentStyle.Render(string(code)) + " " + msg
	}
	return msg
}

// ShowProgress creates a row counter. A total of -1 renders a spinner.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatNumber abbreviates large counts.
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
