package scheduler

// lock.go — cross-process mutual exclusion (spec §5 layer 1): os.Mkdir on a
// fixed path is atomic on every platform this runs on, so "directory already
// exists" is an uncontested way to detect a second tick process starting
// while one is still running, with no external locking service required.
// The lock directory doubles as a heartbeat: its mtime is set when the lock
// is taken and again on each Touch (WithLock itself does not call Touch),
// and the watchdog (spec §4.9) reads that mtime to detect an invocation
// that has held the lock for too long.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileLock guards one tick/order-manager process against overlapping with
// another instance of itself.
type FileLock struct {
	dir string
}

// AcquireLock attempts to take the named lock under dir. ok is false without
// error when another process currently holds it.
func AcquireLock(dir, name string) (*FileLock, bool, error) {
	path := filepath.Join(dir, name+".lock")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("AcquireLock: mkdir %q: %w", dir, err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("AcquireLock: mkdir %q: %w", path, err)
	}
	pidPath := filepath.Join(path, "pid")
	_ = os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	return &FileLock{dir: path}, true, nil
}

// Touch refreshes the lock directory's mtime, signalling to the watchdog
// that the holding process is still alive and making progress.
func (l *FileLock) Touch() error {
	now := time.Now()
	if err := os.Chtimes(l.dir, now, now); err != nil {
		return fmt.Errorf("FileLock.Touch: %w", err)
	}
	return nil
}

// Release removes the lock directory, freeing it for the next process.
func (l *FileLock) Release() error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("FileLock.Release: %w", err)
	}
	return nil
}

// WithLock acquires the named lock, runs fn, and releases it, refusing to
// run fn at all when the lock is already held (the normal case when a
// previous tick is still finishing — spec §5 layer 1 is a skip, not a
// queue).
func WithLock(dir, name string, fn func() error) (ran bool, err error) {
	lock, ok, err := AcquireLock(dir, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer lock.Release()
	return true, fn()
}

// StaleSince reports the duration since the lock directory at dir/name.lock
// was last touched, for the watchdog's staleness check (spec §4.9). ok is
// false when no lock is currently held.
func StaleSince(dir, name string, now time.Time) (age time.Duration, ok bool, err error) {
	path := filepath.Join(dir, name+".lock")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("StaleSince: stat %q: %w", path, err)
	}
	return now.Sub(info.ModTime()), true, nil
}

// touchDuring refreshes a held lock on an interval until ctx is done, for
// long-running ticks that outlive a single heartbeat period.
func touchDuring(ctx context.Context, lock *FileLock, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = lock.Touch()
		}
	}
}
