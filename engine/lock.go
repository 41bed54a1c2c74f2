package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"typedtables/models"
)

// lockFileName is the well-known advisory lock file within a data
// directory, enforcing "exactly one engine instance is live for a given
// data directory at a time" (§5 "Shared resources").
const lockFileName = "_lock"

// lockFile holds an exclusive flock(2) on a data directory's lock file for
// the lifetime of one Database. Grounded on the same golang.org/x/sys/unix
// package the Record File uses for mmap (§4.1), applied here to flock
// instead — an advisory, crash-safe alternative to the teacher's
// sharded in-process lock manager (storage/binary/locks.go), which exists
// to arbitrate many concurrent in-process writers, a Non-goal here (§5
// "Scheduling": single-threaded, synchronous, one instance per directory).
type lockFile struct {
	f     *os.File
	token string
}

// acquireLock takes a non-blocking exclusive flock on dir's lock file. A
// second instance attempting to open the same directory observes
// models.ErrLocked immediately rather than blocking (§5 "Shared
// resources": "Opening a second instance on the same directory is
// undefined" — rejecting it outright is the safer rendering of that
// freedom).
func acquireLock(dir string) (*lockFile, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("engine: opening lock file %q: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("engine: %w: %q", models.ErrLocked, dir)
	}

	token := uuid.New().String()
	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("engine: resetting lock file %q: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("pid=%d token=%s\n", os.Getpid(), token)), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("engine: writing lock file %q: %w", path, err)
	}

	return &lockFile{f: f, token: token}, nil
}

// release drops the flock and closes the lock file. The file itself is
// left on disk; flock's advisory lock state, not the file's existence, is
// what the next acquireLock call tests.
func (l *lockFile) release() error {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
