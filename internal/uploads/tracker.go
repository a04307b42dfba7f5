package uploads

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// writeTracker counts in-flight chunk requests so shutdown can wait for them.
type writeTracker struct {
	mu           sync.RWMutex
	active       map[uint64]*activeWrite
	nextID       uint64
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
	shutdownCh   chan struct{}
}

type activeWrite struct {
	key       Key
	index     int
	startTime time.Time
}

func newWriteTracker() *writeTracker {
	return &writeTracker{
		active:     make(map[uint64]*activeWrite),
		shutdownCh: make(chan struct{}),
	}
}

// start registers a chunk request. It returns false once shutdown has begun.
func (t *writeTracker) start(key Key, index int) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Checked under the lock so no request slips past a concurrent beginShutdown.
	if t.shuttingDown.Load() {
		return 0, false
	}

	t.nextID++
	id := t.nextID
	t.active[id] = &activeWrite{key: key, index: index, startTime: time.Now()}
	t.wg.Add(1)
	return id, true
}

func (t *writeTracker) finish(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		delete(t.active, id)
		t.wg.Done()
	}
}

func (t *writeTracker) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

func (t *writeTracker) beginShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shuttingDown.CompareAndSwap(false, true) {
		close(t.shutdownCh)
		slog.Info("upload service: shutdown initiated, rejecting new chunks",
			"active_writes", len(t.active),
		)
	}
}

// wait blocks until every registered request has finished or ctx is done.
func (t *writeTracker) wait(ctx context.Context) error {
	t.beginShutdown()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("upload service: all chunk writes completed")
		return nil
	case <-ctx.Done():
		t.mu.RLock()
		for _, w := range t.active {
			slog.Warn("upload service: abandoned chunk write",
				"owner", w.key.Owner,
				"upload_id", w.key.UploadID,
				"chunk_index", w.index,
				"duration", time.Since(w.startTime),
			)
		}
		t.mu.RUnlock()
		return ctx.Err()
	}
}
