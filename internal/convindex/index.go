// Package convindex implements the in-memory conversation-head cache
// described by spec.md §4.5 — the conversation index, C5 in the component
// design. It is hydrated once at startup from the store and kept
// write-through on every accepted send or delete, inside the same handler
// call, before the handler's response is produced. The bounded-map +
// write-through-before-response idiom is grounded on the teacher's
// room.go (msgOwners/msgOwnerKeys eviction and callback-wiring patterns).
package convindex

import (
	"sync"

	"relaychat/server/store"
)

// Head mirrors store.ConversationHead for the in-memory cache. A nil
// LastMessageID represents the "null head" state spec.md §4.5 requires
// when no message survives between the pair.
type Head struct {
	LastMessageID  *int64
	LastUpdateTime string
}

// Index is the in-memory + persistent head-of-conversation cache.
type Index struct {
	mu    sync.RWMutex
	heads map[store.Pair]Head
}

// New returns an empty index. Call Hydrate to load persisted heads.
func New() *Index {
	return &Index{heads: make(map[store.Pair]Head)}
}

// Hydrate replaces the index contents with rows loaded from the store at
// startup (spec.md §2: "C5 is lazily populated at startup").
func (idx *Index) Hydrate(rows []store.ConversationHead) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.heads = make(map[store.Pair]Head, len(rows))
	for _, r := range rows {
		h := Head{LastUpdateTime: r.LastUpdateTime}
		if r.LastMessageID.Valid {
			id := r.LastMessageID.Int64
			h.LastMessageID = &id
		}
		idx.heads[r.Pair] = h
	}
}

// Update records pair → messageID at updateTime, replacing any prior
// entry (spec.md §4.5 invariant (i): "the head always references the most
// recent surviving message").
func (idx *Index) Update(pair store.Pair, messageID int64, updateTime string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id := messageID
	idx.heads[pair] = Head{LastMessageID: &id, LastUpdateTime: updateTime}
}

// Null marks pair as having no surviving message.
func (idx *Index) Null(pair store.Pair, updateTime string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.heads[pair] = Head{LastMessageID: nil, LastUpdateTime: updateTime}
}

// Get returns the cached head for pair, if present.
func (idx *Index) Get(pair store.Pair) (Head, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.heads[pair]
	return h, ok
}
