package store

import (
	"database/sql"
	"fmt"
)

// Pair is the canonical (lexicographically sorted) key for a conversation
// head, per spec.md's glossary entry for "Canonical pair".
type Pair struct {
	A, B string
}

// CanonicalPair sorts a and b so the same two usernames always produce the
// same Pair regardless of argument order.
func CanonicalPair(a, b string) Pair {
	if a <= b {
		return Pair{A: a, B: b}
	}
	return Pair{A: b, B: a}
}

// ConversationHead is the row a Pair resolves to: the last surviving
// message id (or null) and its write time.
type ConversationHead struct {
	Pair           Pair
	LastMessageID  sql.NullInt64
	LastUpdateTime string
}

// UpsertHead writes the conversation head for pair, referencing
// messageID at updateTime.
func (s *Store) UpsertHead(pair Pair, messageID int64, updateTime string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations(username, friend, lastmessageid, lastupdatetime)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(username, friend) DO UPDATE SET
		   lastmessageid = excluded.lastmessageid,
		   lastupdatetime = excluded.lastupdatetime`,
		pair.A, pair.B, messageID, updateTime,
	)
	if err != nil {
		return fmt.Errorf("upsert head: %w", err)
	}
	return nil
}

// NullHead writes the conversation head for pair as having no surviving
// message — spec.md §4.5 "a null head is represented as the pair row
// existing with last_message_id = NULL".
func (s *Store) NullHead(pair Pair, updateTime string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations(username, friend, lastmessageid, lastupdatetime)
		 VALUES(?, ?, NULL, ?)
		 ON CONFLICT(username, friend) DO UPDATE SET
		   lastmessageid = NULL,
		   lastupdatetime = excluded.lastupdatetime`,
		pair.A, pair.B, updateTime,
	)
	if err != nil {
		return fmt.Errorf("null head: %w", err)
	}
	return nil
}

// GetHead returns the conversation head for pair, if one exists.
func (s *Store) GetHead(pair Pair) (ConversationHead, bool, error) {
	var h ConversationHead
	h.Pair = pair
	err := s.db.QueryRow(
		`SELECT lastmessageid, lastupdatetime FROM conversations WHERE username = ? AND friend = ?`,
		pair.A, pair.B,
	).Scan(&h.LastMessageID, &h.LastUpdateTime)
	if err == sql.ErrNoRows {
		return ConversationHead{}, false, nil
	}
	if err != nil {
		return ConversationHead{}, false, fmt.Errorf("get head: %w", err)
	}
	return h, true, nil
}

// LoadAllHeads bulk-loads every conversation head, for startup hydration of
// the in-memory conversation index (C5).
func (s *Store) LoadAllHeads() ([]ConversationHead, error) {
	rows, err := s.db.Query(`SELECT username, friend, lastmessageid, lastupdatetime FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("load all heads: %w", err)
	}
	defer rows.Close()

	var out []ConversationHead
	for rows.Next() {
		var h ConversationHead
		if err := rows.Scan(&h.Pair.A, &h.Pair.B, &h.LastMessageID, &h.LastUpdateTime); err != nil {
			return nil, fmt.Errorf("scan head: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
