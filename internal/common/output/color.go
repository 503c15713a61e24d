// Package output holds the terminal color palette used by the commands.
package output

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	Success = color.New(color.FgHiGreen)
	Failed  = color.New(color.FgHiRed)
	Warning = color.New(color.FgYellow)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	Header  = color.New(color.FgWhite, color.Bold)
	Project = color.New(color.FgBlue, color.Bold)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// Outcome classifies a project report.
type Outcome int

const (
	OutcomeUpToDate Outcome = iota
	OutcomeNewVersion
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFailed
)

// Color returns the palette entry of the outcome.
func (o Outcome) Color() *color.Color {
	switch o {
	case OutcomeUpToDate, OutcomeUpdated:
		return Success
	case OutcomeNewVersion:
		return Warning
	case OutcomeSkipped:
		return Dim
	case OutcomeFailed:
		return Failed
	default:
		return color.New(color.Reset)
	}
}

// Sprintf formats in the color of the outcome.
func (o Outcome) Sprintf(format string, args ...interface{}) string {
	return o.Color().Sprintf(format, args...)
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...interface{}) {
	Failed.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatProject formats a project path with color
func FormatProject(path string) string {
	return Project.Sprint(path)
}

// Versions renders "current → latest" with the latest version highlighted.
func Versions(current, latest string) string {
	return fmt.Sprintf("%s → %s", current, Success.Sprint(latest))
}
