package lilac

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// cPrintf prints with a colored style or falls back to fmt.Printf when nil
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// styleFor returns p when stdout is a terminal, nil otherwise, so output
// degrades to plain text in cron logs.
func styleFor(p colorPrinter) colorPrinter {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return p
	}
	return nil
}

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}
