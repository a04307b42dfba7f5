package uploads

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"
)

// Key identifies an upload session. Upload ids are scoped to their owner.
type Key struct {
	Owner    string
	UploadID string
}

func (k Key) String() string {
	return k.Owner + "/" + k.UploadID
}

// Session tracks which chunks of one upload have been written to its staging file.
type Session struct {
	Key         Key
	TotalChunks int
	FileName    string
	FolderID    string
	CreatedAt   time.Time

	mu       sync.Mutex
	received []uint64
	count    int

	// gate is held for reading by chunk writes and for writing by promotion and eviction.
	// Once closed is set no further writes are accepted.
	gate   sync.RWMutex
	closed bool

	promoting atomic.Bool
}

func newSession(key Key, totalChunks int, fileName, folderID string, now time.Time) *Session {
	return &Session{
		Key:         key,
		TotalChunks: totalChunks,
		FileName:    fileName,
		FolderID:    folderID,
		CreatedAt:   now,
		received:    make([]uint64, (totalChunks+63)/64),
	}
}

// MarkReceived records chunk idx. It returns false when the chunk was already recorded.
func (s *Session) MarkReceived(idx int) bool {
	if idx < 0 || idx >= s.TotalChunks {
		return false
	}
	word, bit := idx/64, uint64(1)<<(idx%64)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.received[word]&bit != 0 {
		return false
	}
	s.received[word] |= bit
	s.count++
	return true
}

// Received returns the number of distinct chunks recorded.
func (s *Session) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// IsComplete reports whether every chunk has been recorded.
func (s *Session) IsComplete() bool {
	return s.Received() == s.TotalChunks
}

// Missing returns the indices not yet recorded, in ascending order.
func (s *Session) Missing() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := make([]int, 0, s.TotalChunks-s.count)
	for w, word := range s.received {
		inverted := ^word
		for inverted != 0 {
			idx := w*64 + bits.TrailingZeros64(inverted)
			if idx >= s.TotalChunks {
				break
			}
			missing = append(missing, idx)
			inverted &= inverted - 1
		}
	}
	return missing
}

// beginWrite admits a chunk write. It returns false once the session is closed.
// A true result must be paired with endWrite.
func (s *Session) beginWrite() bool {
	s.gate.RLock()
	if s.closed {
		s.gate.RUnlock()
		return false
	}
	return true
}

func (s *Session) endWrite() {
	s.gate.RUnlock()
}

// Registry holds the live upload sessions of one Service. Finished keys are remembered
// so a chunk re-delivered after promotion cannot start a new session. Keys whose staging
// file is being reclaimed are refused the same way until the file is gone.
type Registry struct {
	mu         sync.Mutex
	sessions   map[Key]*Session
	finished   map[Key]time.Time
	reclaiming map[Key]struct{}
	now        func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[Key]*Session),
		finished:   make(map[Key]time.Time),
		reclaiming: make(map[Key]struct{}),
		now:        time.Now,
	}
}

// GetOrCreate returns the session for key, creating it on first use. Later callers must
// agree with the parameters the session was created with.
func (r *Registry) GetOrCreate(key Key, totalChunks int, fileName, folderID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.finished[key]; done {
		return nil, ErrUnknownUpload
	}
	if _, busy := r.reclaiming[key]; busy {
		return nil, ErrUnknownUpload
	}

	if s, ok := r.sessions[key]; ok {
		switch {
		case s.TotalChunks != totalChunks:
			return nil, fmt.Errorf("%w: upload started with %d total chunks, got %d",
				ErrInvalidChunk, s.TotalChunks, totalChunks)
		case s.FileName != fileName:
			return nil, fmt.Errorf("%w: upload started with file name %q", ErrInvalidChunk, s.FileName)
		case s.FolderID != folderID:
			return nil, fmt.Errorf("%w: upload started for folder %q", ErrInvalidChunk, s.FolderID)
		}
		return s, nil
	}

	s := newSession(key, totalChunks, fileName, folderID, r.now())
	r.sessions[key] = s
	return s, nil
}

// Get returns the live session for key, or nil.
func (r *Registry) Get(key Key) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

// IsFinished reports whether key belongs to a promoted or discarded upload.
func (r *Registry) IsFinished(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.finished[key]
	return ok
}

// Remove forgets the session for key without remembering it as finished.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Reclaim detaches the session for key while remove deletes its staging file.
// For the whole call GetOrCreate refuses key, and remove only runs once in-flight
// writes and any promotion of the session have finished. remove reports whether the
// file was deleted; when it was kept the session is registered again unchanged.
// A concurrent Reclaim of the same key returns false without calling remove.
func (r *Registry) Reclaim(key Key, remove func() (bool, error)) (bool, error) {
	r.mu.Lock()
	if _, busy := r.reclaiming[key]; busy {
		r.mu.Unlock()
		return false, nil
	}
	r.reclaiming[key] = struct{}{}
	s := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if s != nil {
		s.gate.Lock()
		defer s.gate.Unlock()
	}

	removed, err := remove()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reclaiming, key)
	if s != nil {
		if removed || s.closed {
			s.closed = true
		} else if _, done := r.finished[key]; !done {
			r.sessions[key] = s
		}
	}
	return removed, err
}

// Finish removes the session for key and remembers the key as finished.
func (r *Registry) Finish(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
	r.finished[key] = r.now()
}

// PruneFinished forgets finished keys recorded before cutoff and returns how many were dropped.
func (r *Registry) PruneFinished(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for k, at := range r.finished {
		if at.Before(cutoff) {
			delete(r.finished, k)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
