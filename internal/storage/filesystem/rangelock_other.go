//go:build !linux

package filesystem

func newPlatformRangeLocker() rangeLocker {
	return newMemRangeLocker()
}
