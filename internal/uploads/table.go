// Package uploads implements the in-flight chunked-upload accumulator
// table described by spec.md §4.6 — the upload session table, C6 in the
// component design. The bounded-map-guarded-by-one-mutex shape mirrors
// presence and convindex; the sweep-of-idle-entries goroutine is grounded
// on the retrieval pack's purgeExpiredData/runWithBackoff idiom
// (other_examples/manifests/uncord-chat-uncord-server's main.go), adapted
// here to satisfy SPEC_FULL.md §9's resolution of open question 3 (an
// orphaned upload sweep, which the distilled source itself does not have).
package uploads

import (
	"fmt"
	"sync"
	"time"
)

// Session is the per-request_id accumulator state.
type Session struct {
	RequestID         string
	Sender            string
	Receiver          string
	FilePath          string
	UniqueFileName    string
	OriginalFileName  string
	Kind              string // "file", "image", or "video"
	ExpectedTotalSize int64
	ReceivedSize      int64
	LastWriteAt       time.Time
}

// ErrAlreadyTracked is returned by Start when request_id is already in
// flight.
var ErrAlreadyTracked = fmt.Errorf("upload session already tracked")

// ErrNotTracked is returned when an operation references an unknown
// request_id.
var ErrNotTracked = fmt.Errorf("upload session not tracked")

// Table is the upload session table.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns an empty upload session table.
func New() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Start begins tracking a new upload, triggered by the first chunk for a
// given request_id (spec.md §4.6).
func (t *Table) Start(s Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.RequestID]; exists {
		return ErrAlreadyTracked
	}
	s.LastWriteAt = time.Now()
	t.sessions[s.RequestID] = &s
	return nil
}

// Get returns a copy of the session for requestID, if tracked.
func (t *Table) Get(requestID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[requestID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// AppendReceived records that n more bytes were written to requestID's
// accumulator file.
func (t *Table) AppendReceived(requestID string, n int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[requestID]
	if !ok {
		return ErrNotTracked
	}
	s.ReceivedSize += n
	s.LastWriteAt = time.Now()
	return nil
}

// Remove stops tracking requestID — called on the terminator chunk
// (spec.md §4.6) or on connection teardown.
func (t *Table) Remove(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, requestID)
}

// Count reports how many uploads are currently in flight, for the
// ambient health/status surface.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// SweepIdle removes and returns every session whose last write is older
// than maxIdle, for the caller to clean up the abandoned partial file
// (SPEC_FULL.md §9 Q3 resolution).
func (t *Table) SweepIdle(maxIdle time.Duration) []Session {
	cutoff := time.Now().Add(-maxIdle)
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []Session
	for id, s := range t.sessions {
		if s.LastWriteAt.Before(cutoff) {
			evicted = append(evicted, *s)
			delete(t.sessions, id)
		}
	}
	return evicted
}

// RemoveAllForConnection removes and returns every session started on a
// connection that has just torn down, identified by the caller-supplied
// request ids it tracked (spec.md §4.6: "abandoned on connection
// teardown").
func (t *Table) RemoveAllForConnection(requestIDs []string) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []Session
	for _, id := range requestIDs {
		if s, ok := t.sessions[id]; ok {
			removed = append(removed, *s)
			delete(t.sessions, id)
		}
	}
	return removed
}
