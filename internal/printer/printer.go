// Package printer writes colored status lines for the nomadlabs CLI.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Out is where non-error output goes. Tests replace it.
var Out io.Writer = os.Stdout

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Fprintf(Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format+"\n", a...)
}

// Step prints a progress line in cyan.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "! %s\n", fmt.Sprintf(format, a...))
}

// Error prints title and explanation to stderr and returns an error carrying
// the title, for Cobra to exit non-zero with.
func Error(title, explanation string) error {
	red.Fprintf(os.Stderr, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}
	return fmt.Errorf("%s", title)
}
