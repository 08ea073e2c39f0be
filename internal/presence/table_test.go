package presence

import "testing"

type fakeWriter struct {
	id   int
	sent [][]byte
	fail bool
}

func (w *fakeWriter) WriteFrame(payload []byte) error {
	if w.fail {
		return errFail
	}
	w.sent = append(w.sent, payload)
	return nil
}

var errFail = errWrap("write failed")

type errWrap string

func (e errWrap) Error() string { return string(e) }

func TestBindRejectsSecondBinding(t *testing.T) {
	table := New()
	a := &fakeWriter{id: 1}
	b := &fakeWriter{id: 2}

	if err := table.Bind("alice", a); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := table.Bind("alice", b); err != ErrAlreadyBound {
		t.Fatalf("got %v, want ErrAlreadyBound", err)
	}
}

func TestUnbindIsNoOpForStaleSession(t *testing.T) {
	table := New()
	a := &fakeWriter{id: 1}
	b := &fakeWriter{id: 2}

	table.Bind("alice", a)
	table.Unbind("alice", a) // a logs out
	if err := table.Bind("alice", b); err != nil {
		t.Fatalf("rebind after clean unbind: %v", err)
	}

	// a's (stale) unbind must not evict b's newer session.
	table.Unbind("alice", a)
	if !table.IsOnline("alice") {
		t.Fatal("stale unbind evicted the newer session")
	}
}

func TestPushDeliversToOnlineUser(t *testing.T) {
	table := New()
	w := &fakeWriter{}
	table.Bind("alice", w)

	delivered := table.Push("alice", []byte("hi"))
	if !delivered {
		t.Fatal("expected delivery")
	}
	if len(w.sent) != 1 || string(w.sent[0]) != "hi" {
		t.Fatalf("got sent %v", w.sent)
	}
}

func TestPushToOfflineUserReturnsFalse(t *testing.T) {
	table := New()
	if table.Push("nobody", []byte("hi")) {
		t.Fatal("expected no delivery for offline user")
	}
}

func TestPushSwallowsWriterError(t *testing.T) {
	table := New()
	w := &fakeWriter{fail: true}
	table.Bind("alice", w)

	delivered := table.Push("alice", []byte("hi"))
	if !delivered {
		t.Fatal("Push should report delivery attempted even if the write failed")
	}
}
