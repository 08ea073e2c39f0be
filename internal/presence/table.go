// Package presence implements the process-wide username → LiveSession
// mapping described by spec.md §4.4 — the presence table, C4 in the
// component design. The map+mutex shape is grounded on the teacher's
// internal/core/channel_state.go; the synchronous write-mutex-guarded push
// (rather than a buffered channel) matches client.go's ctrlMu/sendRaw
// discipline, since spec.md requires "writes an encrypted frame through
// the session's write mutex", not async delivery.
package presence

import (
	"fmt"
	"log/slog"
	"sync"
)

// FrameWriter is the minimal capability a LiveSession needs: writing one
// already-serialized frame. *frame.Codec satisfies this; the interface
// lives here (rather than importing package frame) to avoid a cycle and
// to keep presence testable with a fake writer.
type FrameWriter interface {
	WriteFrame(payload []byte) error
}

// ErrAlreadyBound is returned by Bind when username already has a live
// session — spec.md §4.9: "a second binding attempt ... returns fail".
var ErrAlreadyBound = fmt.Errorf("already logged in")

// Table is the presence table: one mutex guarding one map.
type Table struct {
	mu       sync.Mutex
	sessions map[string]FrameWriter
}

// New returns an empty presence table.
func New() *Table {
	return &Table{sessions: make(map[string]FrameWriter)}
}

// Bind records username → writer. It fails with ErrAlreadyBound if
// username is already bound to any session, including writer itself.
func (t *Table) Bind(username string, writer FrameWriter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[username]; exists {
		return ErrAlreadyBound
	}
	t.sessions[username] = writer
	return nil
}

// Unbind removes username's binding, but only if it is still exactly
// writer — spec.md §4.4: "prevents racing logouts from evicting a newer
// session".
func (t *Table) Unbind(username string, writer FrameWriter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.sessions[username]; ok && current == writer {
		delete(t.sessions, username)
	}
}

// IsOnline reports whether username currently has a bound session.
func (t *Table) IsOnline(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[username]
	return ok
}

// OnlineCount reports how many sessions are currently bound, for the
// ambient health/status surface.
func (t *Table) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Push looks up username and, if bound, writes payload through its frame
// writer. Per spec.md §4.4, push errors are logged and swallowed here —
// they never propagate to the caller (the originating handler). The
// returned bool reports only whether a session was found, not whether the
// write succeeded.
func (t *Table) Push(username string, payload []byte) bool {
	t.mu.Lock()
	writer, ok := t.sessions[username]
	t.mu.Unlock()
	if !ok {
		return false
	}
	if err := writer.WriteFrame(payload); err != nil {
		slog.Warn("presence push failed", "username", username, "err", err)
	}
	return true
}
