package lilac

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gookit/color"
)

// Global variables
var (
	Debug      bool
	Verbose    bool
	version    = "dev" //default version; overridden at build time
	buildDate  = "unknown" // overridden at build time
	ConfigFile = "/etc/lilac/lilac.ini"

	errPackageNotFound = errors.New("package not found")
	errWrongBranch     = errors.New("working tree is not on the primary branch")

	// set to 1 while a build is in its publish step; the interrupt
	// handler delays cancellation until it drops back to 0
	publishingAtomic atomic.Int32
)

// InCriticalSection reports whether a publish step is in flight. The
// interrupt handler delays cancellation while it returns true so a
// half-signed artifact set never lands in the repository.
func InCriticalSection() bool {
	return publishingAtomic.Load() != 0
}

// Version returns the human version string printed by --version.
func Version() string {
	return fmt.Sprintf("lilac %s (built %s)", version, buildDate)
}

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
