//go:build linux

package filesystem

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ofdRangeLocker uses Linux open file description locks. Unlike classic POSIX record
// locks they belong to the open file rather than the process, so two descriptors opened by
// goroutines of the same process exclude each other, and closing one descriptor does not
// drop locks held through another.
//
// Kernels or filesystems without OFD support make the locker switch to the in-process table.
type ofdRangeLocker struct {
	fallback    *memRangeLocker
	unsupported atomic.Bool
	warnOnce    sync.Once
}

func newPlatformRangeLocker() rangeLocker {
	return &ofdRangeLocker{fallback: newMemRangeLocker()}
}

func (l *ofdRangeLocker) lock(f *os.File, path string, offset, length int64) (func(), error) {
	if l.unsupported.Load() {
		return l.fallback.lock(f, path, offset, length)
	}

	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
		Start:  offset,
		Len:    length,
	}

	for {
		err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLKW, &lk)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.ENOLCK) {
			l.unsupported.Store(true)
			l.warnOnce.Do(func() {
				slog.Warn("OFD range locks unavailable, using in-process range locks",
					"path", path,
					"error", err,
				)
			})
			return l.fallback.lock(f, path, offset, length)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlk := unix.Flock_t{
				Type:   unix.F_UNLCK,
				Whence: io.SeekStart,
				Start:  offset,
				Len:    length,
			}
			if err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, &unlk); err != nil {
				// Closing the descriptor releases the lock regardless.
				slog.Debug("failed to release range lock",
					"path", path,
					"offset", offset,
					"length", length,
					"error", err,
				)
			}
		})
	}, nil
}
