package uploads

import (
	"testing"
	"time"
)

func TestStartRejectsDuplicateRequestID(t *testing.T) {
	table := New()
	if err := table.Start(Session{RequestID: "r1"}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := table.Start(Session{RequestID: "r1"}); err != ErrAlreadyTracked {
		t.Fatalf("got %v, want ErrAlreadyTracked", err)
	}
}

func TestAppendReceivedAccumulates(t *testing.T) {
	table := New()
	table.Start(Session{RequestID: "r1", ExpectedTotalSize: 1024})
	table.AppendReceived("r1", 512)
	table.AppendReceived("r1", 512)

	s, ok := table.Get("r1")
	if !ok {
		t.Fatal("session not found")
	}
	if s.ReceivedSize != 1024 {
		t.Fatalf("got received %d, want 1024", s.ReceivedSize)
	}
}

func TestRemoveDiscardsSession(t *testing.T) {
	table := New()
	table.Start(Session{RequestID: "r1"})
	table.Remove("r1")

	if _, ok := table.Get("r1"); ok {
		t.Fatal("session should be gone after Remove")
	}
}

func TestSweepIdleEvictsOnlyStaleSessions(t *testing.T) {
	table := New()
	table.Start(Session{RequestID: "stale"})
	table.sessions["stale"].LastWriteAt = time.Now().Add(-time.Hour)
	table.Start(Session{RequestID: "fresh"})

	evicted := table.SweepIdle(time.Minute)
	if len(evicted) != 1 || evicted[0].RequestID != "stale" {
		t.Fatalf("got evicted %v, want only 'stale'", evicted)
	}
	if _, ok := table.Get("fresh"); !ok {
		t.Fatal("fresh session should survive the sweep")
	}
}
