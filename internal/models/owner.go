package models

import "time"

// Owner represents a storage tenant and its quota account.
// UsedBytes never goes negative and never exceeds LimitBytes through a promotion.
type Owner struct {
	ID         string
	UsedBytes  int64
	LimitBytes int64
	CreatedAt  time.Time
}

// AvailableBytes returns the remaining quota, never less than zero.
func (o *Owner) AvailableBytes() int64 {
	if o.UsedBytes >= o.LimitBytes {
		return 0
	}
	return o.LimitBytes - o.UsedBytes
}

// CanStore reports whether size more bytes fit within the quota.
// The comparison is written to avoid overflow on large values.
func (o *Owner) CanStore(size int64) bool {
	if size < 0 {
		return false
	}
	return o.UsedBytes <= o.LimitBytes && size <= o.LimitBytes-o.UsedBytes
}
