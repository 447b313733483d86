package cli

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Color schemes
var (
	colorSuccess = color.New(color.FgGreen)
	colorError   = color.New(color.FgRed)
	colorWarning = color.New(color.FgYellow)
	colorHeader  = color.New(color.Bold)
)

func disableColors() {
	color.NoColor = true
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// statusColor picks the color of a validation status.
func statusColor(status string) *color.Color {
	switch status {
	case "VALID":
		return colorSuccess
	case "INVALID":
		return colorError
	default:
		return colorWarning
	}
}

// getStatusIcon returns an icon for the status.
func getStatusIcon(status string) string {
	switch status {
	case "VALID":
		return "[OK]"
	case "INVALID":
		return "[FAIL]"
	case "WARNING":
		return "[WARN]"
	default:
		return "[?]"
	}
}

// boolToStatus converts a boolean to a status string.
func boolToStatus(b bool) string {
	if b {
		return "OK"
	}
	return "FAILED"
}
