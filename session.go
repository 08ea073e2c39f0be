package main

import (
	"sync"

	"relaychat/server/internal/frame"
)

// Session is the per-connection LiveSession spec.md §3 describes:
// {username?, frame_writer, write_mutex}. The write mutex lives inside
// *frame.Codec itself (WriteFrame serializes concurrent writers), matching
// client.go's ctrlMu/sendRaw discipline. Session itself guards its mutable
// username (mu), set once at authenticate time and read by every handler
// that requires login, and the set of upload request ids this connection
// started (uploadMu).
type Session struct {
	codec *frame.Codec

	mu       sync.Mutex
	username string

	uploadMu   sync.Mutex
	uploadIDs  map[string]struct{}
}

// NewSession wraps codec in a Session with no bound username yet.
func NewSession(codec *frame.Codec) *Session {
	return &Session{codec: codec, uploadIDs: make(map[string]struct{})}
}

// WriteFrame implements presence.FrameWriter.
func (s *Session) WriteFrame(payload []byte) error {
	return s.codec.WriteFrame(payload)
}

func (s *Session) setUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

func (s *Session) getUsername() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// trackUpload records that this connection originated requestID, so it can
// be cleaned up on teardown (spec.md §4.6).
func (s *Session) trackUpload(requestID string) {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()
	s.uploadIDs[requestID] = struct{}{}
}

func (s *Session) untrackUpload(requestID string) {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()
	delete(s.uploadIDs, requestID)
}

// uploadRequestIDs returns every in-flight request_id this connection
// started, for teardown cleanup.
func (s *Session) uploadRequestIDs() []string {
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()
	ids := make([]string, 0, len(s.uploadIDs))
	for id := range s.uploadIDs {
		ids = append(ids, id)
	}
	return ids
}
