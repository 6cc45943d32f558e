package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"starload/internal/pipeline"
)

var (
	// Check if output supports colors
	supportsColor = IsTerminal()

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(style string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, style)
		}
		return text
	}
}

// IsTerminal reports whether stdout is an interactive terminal
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// SetColor forces colors on or off, e.g. for --no-color or when piping
func SetColor(enabled bool) {
	supportsColor = enabled
	color.NoColor = !enabled
}

// ShowError displays a formatted error message
func ShowError(err error) {
	fmt.Printf("\n%s\n", ColorError("ERROR:"))

	message := err.Error()
	for i, line := range strings.Split(message, "\n") {
		if i == 0 {
			fmt.Printf("  %s\n", line)
		} else {
			fmt.Printf("  %s\n", ColorDim(line))
		}
	}

	if suggestion := getSuggestion(message); suggestion != "" {
		fmt.Printf("\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
	}
}

// FormatRows renders a row count with thousands separators. Drivers that
// cannot report a count give -1, shown as "n/a".
func FormatRows(n int64) string {
	if n < 0 {
		return ColorDim("n/a")
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatState colors a pipeline state
func FormatState(s pipeline.State) string {
	switch s {
	case pipeline.StateComplete:
		return color.GreenString(s.String())
	case pipeline.StateFailed:
		return color.RedString(s.String())
	case pipeline.StateIdle:
		return s.String()
	default:
		return color.YellowString(s.String())
	}
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "password authentication failed"), strings.Contains(lower, "authentication failed"):
		return "Check the warehouse user and password, or run 'starload secret set'"
	case strings.Contains(lower, "connection refused"):
		return "Verify the cluster endpoint is reachable and the port is open to your address"
	case strings.Contains(lower, "stl_load_errors"):
		return "Query STL_LOAD_ERRORS on the cluster for the failing file and column"
	case strings.Contains(lower, "region"):
		return "The bucket region must match the configured s3.region"
	case strings.Contains(lower, "does not exist"), strings.Contains(lower, "no such table"):
		return "Run 'starload create-tables' before 'starload etl'"
	default:
		return ""
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
