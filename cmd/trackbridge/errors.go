package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// exit is swapped out in tests.
var exit = os.Exit

// FatalError prints "Error: ..." to stderr and exits 1.
func FatalError(format string, args ...any) {
	fail(os.Stderr, fmt.Sprintf(format, args...), "")
}

// FatalErrorWithHint adds a "Hint:" line telling the user what to change.
func FatalErrorWithHint(message, hint string) {
	fail(os.Stderr, message, hint)
}

func fail(w io.Writer, message, hint string) {
	fmt.Fprintf(w, "Error: %s\n", message)
	if hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
	exit(1)
}

func WarnError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// outputJSON writes v to stdout, indented, for --json.
func outputJSON(v any) {
	if err := writeJSON(os.Stdout, v); err != nil {
		FatalError("encoding JSON: %v", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
