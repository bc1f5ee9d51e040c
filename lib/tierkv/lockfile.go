// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tierkv

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockfile is an exclusive, non-blocking advisory lock over a single
// file descriptor, held for the lifetime of an Open facade. It closes
// §9's O5: two processes opening the same store directory would
// otherwise silently corrupt each other's image.
type lockfile struct {
	file *os.File
}

// acquireLockfile opens (creating if needed) the lockfile at path and
// takes an exclusive, non-blocking flock on it. It returns
// ErrAlreadyLocked if another process already holds the lock.
func acquireLockfile(path string) (*lockfile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tierkv: opening lockfile %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("tierkv: locking %s: %w", path, err)
	}

	return &lockfile{file: file}, nil
}

// release drops the flock and closes the underlying file descriptor.
func (l *lockfile) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("tierkv: unlocking: %w", err)
	}
	return l.file.Close()
}
