package store

import (
	"database/sql"
	"fmt"
)

// FriendEdge is one directed row of the friends table.
type FriendEdge struct {
	Username string
	Friend   string
	Remark   string
}

// ErrAlreadyFriends is returned when an edge already exists in either direction.
var ErrAlreadyFriends = fmt.Errorf("already friend")

// ErrNotFriends is returned when an update targets a nonexistent edge.
var ErrNotFriends = fmt.Errorf("not friend")

// IsFriend reports whether an edge (a,b) already exists.
func (s *Store) IsFriend(a, b string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM friends WHERE username = ? AND friend = ?`, a, b,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is friend: %w", err)
	}
	return true, nil
}

// AddFriendPair inserts both (a,b) and (b,a) edges in one transaction,
// enforcing the symmetric-closure invariant (spec.md §8 invariant 1). It
// fails with ErrAlreadyFriends if either direction already exists.
func (s *Store) AddFriendPair(a, b string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow(
		`SELECT 1 FROM friends WHERE (username = ? AND friend = ?) OR (username = ? AND friend = ?) LIMIT 1`,
		a, b, b, a,
	).Scan(&one)
	if err == nil {
		return ErrAlreadyFriends
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check existing edge: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO friends(username, friend) VALUES(?, ?)`, a, b); err != nil {
		return fmt.Errorf("insert edge a->b: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO friends(username, friend) VALUES(?, ?)`, b, a); err != nil {
		return fmt.Errorf("insert edge b->a: %w", err)
	}
	return tx.Commit()
}

// UpdateRemark sets the owner-local remark on edge (owner, other). Remarks
// do not propagate to the reverse edge.
func (s *Store) UpdateRemark(owner, other, remark string) error {
	res, err := s.db.Exec(
		`UPDATE friends SET remark = ? WHERE username = ? AND friend = ?`,
		remark, owner, other,
	)
	if err != nil {
		return fmt.Errorf("update remark: %w", err)
	}
	return requireOneRowAffected(res, ErrNotFriends)
}

// ListFriends returns every edge owned by username.
func (s *Store) ListFriends(username string) ([]FriendEdge, error) {
	rows, err := s.db.Query(
		`SELECT username, friend, remark FROM friends WHERE username = ? ORDER BY friend`, username,
	)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var out []FriendEdge
	for rows.Next() {
		var e FriendEdge
		if err := rows.Scan(&e.Username, &e.Friend, &e.Remark); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
