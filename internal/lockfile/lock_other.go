//go:build !unix && !windows

package lockfile

import "os"

// Platforms without file locking (js/wasm) run a single process anyway.
func flockExclusive(*os.File) error { return nil }

func flockUnlock(*os.File) error { return nil }
