package store

import (
	"database/sql"
	"fmt"
)

// TimeLayout is the wall-clock format mandated by spec.md §6: local time,
// second precision.
const TimeLayout = "2006-01-02 15:04:05"

// Message is a row in the messages table.
type Message struct {
	ID               int64
	Sender           string
	Receiver         string
	Text             string
	WriteTime        string
	AttachmentType   string
	AttachmentPath   string
	OriginalFileName string
	ThumbnailPath    string
	FileSize         int64
	Duration         float64
	ReplyTo          sql.NullInt64
	ReplyPreview     string
	FileID           string
}

// ErrMessageNotFound is returned when a lookup finds no matching row.
var ErrMessageNotFound = fmt.Errorf("message not found")

// ErrNoPermission is returned when a delete targets an id the caller does
// not own (neither sender nor receiver).
var ErrNoPermission = fmt.Errorf("no permission")

const messageColumns = `id, sender, receiver, message, write_time, attachment_type,
	attachment_path, original_file_name, thumbnail_path, file_size, duration,
	reply_to, reply_preview, file_id`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.Sender, &m.Receiver, &m.Text, &m.WriteTime, &m.AttachmentType,
		&m.AttachmentPath, &m.OriginalFileName, &m.ThumbnailPath, &m.FileSize, &m.Duration,
		&m.ReplyTo, &m.ReplyPreview, &m.FileID,
	)
	return m, err
}

// InsertMessage inserts m and returns the assigned id (C2's "insert message
// returning assigned id").
func (s *Store) InsertMessage(m Message) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO messages(sender, receiver, message, write_time, attachment_type,
			attachment_path, original_file_name, thumbnail_path, file_size, duration,
			reply_to, reply_preview, file_id)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Sender, m.Receiver, m.Text, m.WriteTime, m.AttachmentType,
		m.AttachmentPath, m.OriginalFileName, m.ThumbnailPath, m.FileSize, m.Duration,
		m.ReplyTo, m.ReplyPreview, m.FileID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// GetMessage returns the message row for id.
func (s *Store) GetMessage(id int64) (Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// GetMessageByFileID resolves a message by its file_id and attachment type,
// used by download_media for image/video/file resolution.
func (s *Store) GetMessageByFileID(fileID, attachmentType string) (Message, error) {
	row := s.db.QueryRow(
		`SELECT `+messageColumns+` FROM messages WHERE file_id = ? AND attachment_type = ?`,
		fileID, attachmentType,
	)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message by file id: %w", err)
	}
	return m, nil
}

// GetMessageByFileIDAny resolves a message by file_id regardless of
// attachment type, used by download_media for thumbnail resolution.
func (s *Store) GetMessageByFileIDAny(fileID string) (Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE file_id = ?`, fileID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message by file id: %w", err)
	}
	return m, nil
}

// GetMessagesPaginated returns messages between a and b ordered
// (write_time DESC, id DESC), offset (page-1)*pageSize.
func (s *Store) GetMessagesPaginated(a, b string, page, pageSize int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.db.Query(
		`SELECT `+messageColumns+` FROM messages
		 WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		 ORDER BY write_time DESC, id DESC
		 LIMIT ? OFFSET ?`,
		a, b, b, a, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages paginated: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestMessage returns the single most recent surviving message between a
// and b, used to recompute a conversation head after a delete.
func (s *Store) LatestMessage(a, b string) (Message, bool, error) {
	row := s.db.QueryRow(
		`SELECT `+messageColumns+` FROM messages
		 WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		 ORDER BY write_time DESC, id DESC LIMIT 1`,
		a, b, b, a,
	)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("latest message: %w", err)
	}
	return m, true, nil
}

// DeleteMessages deletes the rows in ids, restricted to rows the caller
// owns (sender or receiver). The entire delete is aborted if any id is not
// owned by caller or does not exist — spec.md §4.8 "unauthorized ids are
// rejected atomically". Returns the set of distinct canonical pairs
// affected, for conversation-head recomputation by the caller.
func (s *Store) DeleteMessages(caller string, ids []int64) ([]Pair, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	pairSet := map[Pair]struct{}{}
	for _, id := range ids {
		var sender, receiver string
		err := tx.QueryRow(`SELECT sender, receiver FROM messages WHERE id = ?`, id).Scan(&sender, &receiver)
		if err == sql.ErrNoRows {
			return nil, ErrMessageNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lookup message %d: %w", id, err)
		}
		if sender != caller && receiver != caller {
			return nil, ErrNoPermission
		}
		pairSet[CanonicalPair(sender, receiver)] = struct{}{}
	}

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("delete message %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	pairs := make([]Pair, 0, len(pairSet))
	for p := range pairSet {
		pairs = append(pairs, p)
	}
	return pairs, nil
}
