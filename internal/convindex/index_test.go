package convindex

import (
	"database/sql"
	"testing"

	"relaychat/server/store"
)

func TestUpdateThenGetReturnsHead(t *testing.T) {
	idx := New()
	pair := store.CanonicalPair("alice", "bob")

	idx.Update(pair, 42, "2026-01-01 00:00:00")

	h, ok := idx.Get(pair)
	if !ok {
		t.Fatal("expected head to be present")
	}
	if h.LastMessageID == nil || *h.LastMessageID != 42 {
		t.Fatalf("got %+v, want LastMessageID=42", h)
	}
	if h.LastUpdateTime != "2026-01-01 00:00:00" {
		t.Fatalf("got update time %q", h.LastUpdateTime)
	}
}

func TestNullClearsLastMessageID(t *testing.T) {
	idx := New()
	pair := store.CanonicalPair("alice", "bob")

	idx.Update(pair, 42, "2026-01-01 00:00:00")
	idx.Null(pair, "2026-01-02 00:00:00")

	h, ok := idx.Get(pair)
	if !ok {
		t.Fatal("expected head to still be present after Null")
	}
	if h.LastMessageID != nil {
		t.Fatalf("expected nil LastMessageID after Null, got %d", *h.LastMessageID)
	}
	if h.LastUpdateTime != "2026-01-02 00:00:00" {
		t.Fatalf("got update time %q", h.LastUpdateTime)
	}
}

func TestGetMissingPairReturnsFalse(t *testing.T) {
	idx := New()
	if _, ok := idx.Get(store.CanonicalPair("alice", "bob")); ok {
		t.Fatal("expected no head for an untouched pair")
	}
}

func TestHydrateReplacesContents(t *testing.T) {
	idx := New()
	idx.Update(store.CanonicalPair("stale", "pair"), 1, "2025-01-01 00:00:00")

	rows := []store.ConversationHead{
		{Pair: store.CanonicalPair("alice", "bob"), LastMessageID: sql.NullInt64{Int64: 7, Valid: true}, LastUpdateTime: "2026-01-01 00:00:00"},
		{Pair: store.CanonicalPair("carol", "dave"), LastMessageID: sql.NullInt64{}, LastUpdateTime: "2026-01-02 00:00:00"},
	}
	idx.Hydrate(rows)

	if _, ok := idx.Get(store.CanonicalPair("stale", "pair")); ok {
		t.Fatal("expected Hydrate to discard prior contents")
	}

	h, ok := idx.Get(store.CanonicalPair("alice", "bob"))
	if !ok || h.LastMessageID == nil || *h.LastMessageID != 7 {
		t.Fatalf("got %+v ok=%v, want LastMessageID=7", h, ok)
	}

	h2, ok := idx.Get(store.CanonicalPair("carol", "dave"))
	if !ok || h2.LastMessageID != nil {
		t.Fatalf("got %+v ok=%v, want null head", h2, ok)
	}
}
