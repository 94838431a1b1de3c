// Package lockfile serializes migrations into the same repository on one
// host. Issue numbers are allocated by the target in request order, so two
// concurrent runs would interleave and break the number alignment.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrLockBusy is returned by the flock helpers when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// LockInfo is written into the lock file so a blocked run can say who holds it.
type LockInfo struct {
	PID       int       `json:"pid"`
	Repo      string    `json:"repo"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// HeldError reports a lock owned by another run.
type HeldError struct {
	Path   string
	Holder *LockInfo // nil when the file could not be read
}

func (e *HeldError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("another migration holds %s", e.Path)
	}
	return fmt.Sprintf("another migration into %s is running (pid %d, started %s)",
		e.Holder.Repo, e.Holder.PID, e.Holder.StartedAt.Local().Format(time.DateTime))
}

func (e *HeldError) Unwrap() error { return ErrLockBusy }

// Lock is an acquired run lock.
type Lock struct {
	f    *os.File
	path string
}

// PathFor returns the lock path for repo ("owner/name") inside dir.
func PathFor(dir, repo string) string {
	name := strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(repo)
	return filepath.Join(dir, "trackbridge-"+name+".lock")
}

// Acquire takes the exclusive lock at path without blocking. The OS drops
// the lock when the process dies, so a leftover file from a crash never
// blocks the next run.
func Acquire(path string, info LockInfo) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - path built by PathFor
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			holder, _ := ReadLockInfo(path)
			return nil, &HeldError{Path: path, Holder: holder}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	data, err := json.Marshal(info)
	if err == nil {
		if err = f.Truncate(0); err == nil {
			_, err = f.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = flockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("failed to write lock info: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release clears the holder info and unlocks. It is safe to call twice.
// The file itself stays: unlinking it would let a process that already has
// the old inode open lock it while another locks a fresh file at the path.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := flockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

// ReadLockInfo reads the holder information from a lock file.
func ReadLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path built by PathFor
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	return &info, nil
}
