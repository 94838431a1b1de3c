// Package debug carries trace-level output for the HTTP clients. It is off
// unless TRACKBRIDGE_DEBUG is set or the command runs with --verbose.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	fromEnv = os.Getenv("TRACKBRIDGE_DEBUG") != ""
	verbose atomic.Bool

	mu  sync.Mutex
	out io.Writer = os.Stderr
)

func Enabled() bool {
	return fromEnv || verbose.Load()
}

// SetVerbose turns output on for --verbose.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// SetOutput redirects output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// Logf writes one formatted trace line when enabled.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, format, args...)
}
