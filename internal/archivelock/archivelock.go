// Package archivelock provides the advisory file lock spec.md's
// "Archive extraction" shared-resource policy calls for, without itself
// performing any extraction. It is a narrow port of lnav's archive_lock
// (original_source/src/archive_manager.cc): one process extracting a
// compressed archive into a staging directory takes an exclusive lock
// on a sibling ".lck" file so a second process asking for the same
// archive blocks until the first is done, then finds a ".done" sentinel
// and skips extracting again.
//
// lnav uses POSIX lockf(3) on the lock file descriptor; Go's equivalent
// primitive is flock(2) via golang.org/x/sys/unix, which this package
// uses directly rather than reimplementing byte-range locking lnav
// never needed (lockf here always locks the whole file).
package archivelock

import (
	"os"

	"golang.org/x/sys/unix"

	derrors "github.com/mimecast/lnavcore/internal/errors"
)

// Guard holds an acquired lock; Release must be called exactly once.
type Guard struct {
	f *os.File
}

// Acquire blocks until it holds an exclusive lock on path+".lck",
// creating the lock file if needed. The caller must call Release when
// done with the staging area the lock protects.
func Acquire(path string) (*Guard, error) {
	lockPath := path + ".lck"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, derrors.Wrapf(err, "archivelock: open %s", lockPath)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, derrors.Wrapf(err, "archivelock: flock %s", lockPath)
	}
	return &Guard{f: f}, nil
}

// Release unlocks and closes the lock file.
func (g *Guard) Release() error {
	if g.f == nil {
		return nil
	}
	unix.Flock(int(g.f.Fd()), unix.LOCK_UN)
	err := g.f.Close()
	g.f = nil
	return err
}

// MarkDone creates path+".done" so a future IsDone check can skip
// re-extracting the same archive. Call this while still holding the
// Guard for path.
func MarkDone(path string) error {
	donePath := path + ".done"
	f, err := os.OpenFile(donePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return derrors.Wrapf(err, "archivelock: mark done %s", donePath)
	}
	return f.Close()
}

// IsDone reports whether path+".done" exists, meaning a previous holder
// of the lock already finished extracting. Callers should check this
// after Acquire returns, since another process may have raced them.
func IsDone(path string) bool {
	_, err := os.Stat(path + ".done")
	return err == nil
}
