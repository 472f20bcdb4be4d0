package installer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockFile is created in the download directory while an installation runs.
const LockFile = ".lock"

// ErrLocked is returned when another installer uses the same download directory.
var ErrLocked = errors.New("another installation is running in this directory")

// Lock is an exclusive advisory lock on a download directory.
type Lock struct {
	f *os.File
}

// AcquireLock locks dir without waiting.
func AcquireLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("unable to lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks the directory. The lock file is kept.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
