package filesystem

import (
	"os"
	"sync"
)

// rangeLocker grants exclusive access to a byte range of a staging file.
// Overlapping ranges serialize; disjoint ranges of the same file proceed in parallel.
type rangeLocker interface {
	lock(f *os.File, path string, offset, length int64) (unlock func(), err error)
}

type byteRange struct {
	start int64 // inclusive
	end   int64 // exclusive
}

func (r byteRange) overlaps(o byteRange) bool {
	return r.start < o.end && o.start < r.end
}

// memRangeLocker is an in-process range lock table keyed by file path.
// It only excludes writers inside this process, so a deployment relying on it must run a
// single server process per storage root.
type memRangeLocker struct {
	mu   sync.Mutex
	cond *sync.Cond
	held map[string][]byteRange
}

func newMemRangeLocker() *memRangeLocker {
	m := &memRangeLocker{held: make(map[string][]byteRange)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *memRangeLocker) lock(_ *os.File, path string, offset, length int64) (func(), error) {
	want := byteRange{start: offset, end: offset + length}

	m.mu.Lock()
	for m.conflicts(path, want) {
		m.cond.Wait()
	}
	m.held[path] = append(m.held[path], want)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			ranges := m.held[path]
			for i, r := range ranges {
				if r == want {
					ranges = append(ranges[:i], ranges[i+1:]...)
					break
				}
			}
			if len(ranges) == 0 {
				delete(m.held, path)
			} else {
				m.held[path] = ranges
			}
			m.mu.Unlock()
			m.cond.Broadcast()
		})
	}, nil
}

func (m *memRangeLocker) conflicts(path string, want byteRange) bool {
	for _, r := range m.held[path] {
		if r.overlaps(want) {
			return true
		}
	}
	return false
}

// activeRanges returns the number of ranges currently held for path.
func (m *memRangeLocker) activeRanges(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held[path])
}
