package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// User is a row in the users table. Password holds the argon2id hash, not
// the plaintext credential (see SPEC_FULL.md §9 open-question resolution).
type User struct {
	Username   string
	Password   string
	Nickname   string
	Signature  string
	AvatarID   string
	AvatarPath string
}

// ErrUserExists is returned by CreateUser when the username is already taken.
var ErrUserExists = fmt.Errorf("username already exists")

// ErrUserNotFound is returned when a lookup finds no matching row.
var ErrUserNotFound = fmt.Errorf("user not found")

// CreateUser inserts a new user row. passwordHash must already be hashed.
func (s *Store) CreateUser(username, passwordHash string) error {
	_, err := s.db.Exec(
		`INSERT INTO users(username, password) VALUES(?, ?)`,
		username, passwordHash,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser returns the user row for username, or ErrUserNotFound.
func (s *Store) GetUser(username string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT username, password, nickname, signature, avatar_id, avatar_path
		 FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.Password, &u.Nickname, &u.Signature, &u.AvatarID, &u.AvatarPath)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserExists reports whether username has a row, without fetching it.
func (s *Store) UserExists(username string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM users WHERE username = ?`, username).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return true, nil
}

// UpdateNickname sets the nickname column for username.
func (s *Store) UpdateNickname(username, nickname string) error {
	return s.updateUserColumn(username, "nickname", nickname)
}

// UpdateSignature sets the signature column for username.
func (s *Store) UpdateSignature(username, signature string) error {
	return s.updateUserColumn(username, "signature", signature)
}

// UpdateAvatar sets the avatar_id and avatar_path columns for username.
func (s *Store) UpdateAvatar(username, avatarID, avatarPath string) error {
	res, err := s.db.Exec(
		`UPDATE users SET avatar_id = ?, avatar_path = ? WHERE username = ?`,
		avatarID, avatarPath, username,
	)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return requireOneRowAffected(res, ErrUserNotFound)
}

// GetUserByAvatarID resolves a user by its avatar_id (used by
// download_media for download_type=avatar).
func (s *Store) GetUserByAvatarID(avatarID string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT username, password, nickname, signature, avatar_id, avatar_path
		 FROM users WHERE avatar_id = ?`, avatarID,
	).Scan(&u.Username, &u.Password, &u.Nickname, &u.Signature, &u.AvatarID, &u.AvatarPath)
	if err == sql.ErrNoRows {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by avatar id: %w", err)
	}
	return u, nil
}

func (s *Store) updateUserColumn(username, column, value string) error {
	// column is always a compile-time literal from this file, never
	// request-controlled, so building the statement with fmt.Sprintf here
	// does not admit injection.
	stmt := fmt.Sprintf(`UPDATE users SET %s = ? WHERE username = ?`, column)
	res, err := s.db.Exec(stmt, value, username)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return requireOneRowAffected(res, ErrUserNotFound)
}

func requireOneRowAffected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// isUniqueConstraintErr reports whether err looks like a SQLite UNIQUE or
// PRIMARY KEY constraint violation. modernc.org/sqlite does not export a
// typed error for this, so the check is on the message text, matching the
// pattern other stores in the pack use for driver-specific error sniffing.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}
