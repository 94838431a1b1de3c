package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestPathFor(t *testing.T) {
	got := PathFor("/tmp", "acme/widgets")
	want := filepath.Join("/tmp", "trackbridge-acme-widgets.lock")
	if got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}

func TestAcquireWritesInfo(t *testing.T) {
	path := PathFor(t.TempDir(), "acme/widgets")
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	lock, err := Acquire(path, LockInfo{Repo: "acme/widgets", Version: "1.2.3", StartedAt: started})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() { _ = lock.Release() }()

	info, err := ReadLockInfo(path)
	if err != nil {
		t.Fatalf("ReadLockInfo failed: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
	if info.Repo != "acme/widgets" || info.Version != "1.2.3" {
		t.Errorf("info = %+v", info)
	}
	if !info.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", info.StartedAt, started)
	}
}

func TestAcquireHeld(t *testing.T) {
	if runtime.GOOS == "js" || runtime.GOOS == "wasip1" {
		t.Skip("no file locking on this platform")
	}
	path := PathFor(t.TempDir(), "acme/widgets")

	first, err := Acquire(path, LockInfo{Repo: "acme/widgets", PID: 4242})
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer func() { _ = first.Release() }()

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts just like another process would.
	_, err = Acquire(path, LockInfo{Repo: "acme/widgets"})
	if err == nil {
		t.Fatal("second Acquire succeeded, want HeldError")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("error = %T %v, want *HeldError", err, err)
	}
	if !errors.Is(err, ErrLockBusy) {
		t.Error("HeldError should unwrap to ErrLockBusy")
	}
	// Windows locks block reads of the locked range too.
	if runtime.GOOS != "windows" && (held.Holder == nil || held.Holder.PID != 4242) {
		t.Errorf("Holder = %+v, want pid 4242", held.Holder)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := PathFor(t.TempDir(), "acme/widgets")

	lock, err := Acquire(path, LockInfo{Repo: "acme/widgets"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release = %v, want nil", err)
	}
	if _, err := ReadLockInfo(path); err == nil {
		t.Error("holder info survived Release")
	}

	again, err := Acquire(path, LockInfo{Repo: "acme/widgets"})
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	_ = again.Release()
}

func TestReadLockInfoInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.lock")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadLockInfo(path); err == nil {
		t.Error("expected error for invalid lock file")
	}
	if _, err := ReadLockInfo(filepath.Join(t.TempDir(), "missing.lock")); err == nil {
		t.Error("expected error for missing lock file")
	}
}

func TestReleaseKeepsSingleHolder(t *testing.T) {
	if runtime.GOOS == "js" || runtime.GOOS == "wasip1" || runtime.GOOS == "plan9" {
		t.Skip("no file locking on this platform")
	}
	path := PathFor(t.TempDir(), "acme/widgets")

	lock, err := Acquire(path, LockInfo{Repo: "acme/widgets"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	// A run that opened the path while the lock was held, then waits.
	waiter, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open waiter: %v", err)
	}
	defer func() { _ = waiter.Close() }()

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := flockExclusive(waiter); err != nil {
		t.Fatalf("waiter could not lock after Release: %v", err)
	}
	defer func() { _ = flockUnlock(waiter) }()

	_, err = Acquire(path, LockInfo{Repo: "acme/widgets"})
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("Acquire while waiter holds the lock = %v, want ErrLockBusy", err)
	}
}
