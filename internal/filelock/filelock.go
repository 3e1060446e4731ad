// Package filelock provides a small syscall.Flock-based advisory lock,
// used by the Operation Serializer (internal/oplock) and Template storage
// to coordinate with other processes touching the same repository.
package filelock

import (
	"os"
	"syscall"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// Lock is an advisory, exclusive file lock, held from TryAcquire until
// Release (spec §4.C).
type Lock struct {
	path string
	file *os.File
}

// TryAcquire attempts a non-blocking exclusive lock on path, creating the
// file if necessary. It returns (nil, nil) if the lock is currently held by
// someone else, rather than blocking.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, "filelock.try_acquire", "failed to open lock file", err).WithContext("path", path)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, nil
		}
		return nil, zerr.Wrap(zerr.IO, "filelock.try_acquire", "flock failed", err).WithContext("path", path)
	}
	return &Lock{path: path, file: f}, nil
}

// Release unlocks and closes the underlying file descriptor. Safe to call
// once; subsequent calls are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	cerr := l.file.Close()
	l.file = nil
	if err != nil {
		return zerr.Wrap(zerr.IO, "filelock.release", "unlock failed", err).WithContext("path", l.path)
	}
	if cerr != nil {
		return zerr.Wrap(zerr.IO, "filelock.release", "close failed", cerr).WithContext("path", l.path)
	}
	return nil
}
