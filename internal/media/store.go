// Package media implements the filesystem layout for original uploads and
// derived thumbnails described by spec.md §4.3 — the media store, C3 in
// the component design. Atomic writes follow the teacher's
// internal/blob/store.go pattern: write to a temp file in the target
// directory, then rename into place.
package media

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Kind enumerates the attachment categories spec.md §3/§4.3 distinguish.
type Kind string

const (
	KindFile  Kind = "file"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ThumbSize is the fit-within box used for both image and video thumbnails
// (spec.md §4.3/§4.8: "scale-to-fit 350×350").
const ThumbSize = 350

// ReadWindowSize is the size of one download window read by ReadWindow
// (spec.md §6: "1 MiB per base64 chunk, both directions"). Upload chunks
// are appended as received and are not checked against it.
const ReadWindowSize = 1 << 20

// Store roots the directory layout:
//
//	<base>/files/<unique>
//	<base>/images/<unique>
//	<base>/videos/<unique>
//	<base>/images/thumb_<unique>
//	<base>/videos/thumb_<unique>.jpg
//	<base>/avatars/<username>_avatar_<ts>.jpg
type Store struct {
	base string
}

// NewStore creates (if absent) the four subdirectories under base and
// returns a Store rooted there.
func NewStore(base string) (*Store, error) {
	for _, sub := range []string{"files", "images", "videos", "avatars"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create media dir %q: %w", sub, err)
		}
	}
	return &Store{base: base}, nil
}

func (s *Store) dirFor(kind Kind) string {
	switch kind {
	case KindImage:
		return filepath.Join(s.base, "images")
	case KindVideo:
		return filepath.Join(s.base, "videos")
	default:
		return filepath.Join(s.base, "files")
	}
}

// PathFor returns the path where uniqueName's original upload of kind is
// stored, without creating anything — used by the chunked-upload
// accumulator (C6) to compute a stable destination before any bytes have
// arrived.
func (s *Store) PathFor(kind Kind, uniqueName string) string {
	return filepath.Join(s.dirFor(kind), uniqueName)
}

// UniqueName builds the `<timestamp-with-microseconds>_<original_name>`
// basename spec.md §4.3 mandates for `<unique>`.
func UniqueName(now time.Time, originalName string) string {
	return fmt.Sprintf("%d_%s", now.UnixMicro(), originalName)
}

// SaveOriginal atomically writes r's bytes as the original upload for the
// given kind under uniqueName, returning its path on disk and the number
// of bytes written.
func (s *Store) SaveOriginal(kind Kind, uniqueName string, r io.Reader) (path string, size int64, err error) {
	dir := s.dirFor(kind)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("write upload bytes: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("close upload file: %w", closeErr)
	}

	finalPath := filepath.Join(dir, uniqueName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("move upload into place: %w", err)
	}
	return finalPath, size, nil
}

// AppendChunk appends data to the file at path, creating it if absent.
// Used by the upload-session accumulator (C6) for each non-terminal chunk.
func AppendChunk(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	return nil
}

// AvatarPath builds the avatar destination path for username at time ts.
func (s *Store) AvatarPath(username string, ts time.Time) string {
	return filepath.Join(s.base, "avatars", fmt.Sprintf("%s_avatar_%d.jpg", username, ts.Unix()))
}

// SaveAvatar atomically writes data to the computed avatar path, replacing
// an existing file at that same path. Avatar files written for username
// at other timestamps are left in place.
func (s *Store) SaveAvatar(username string, ts time.Time, data []byte) (string, error) {
	path := s.AvatarPath(username, ts)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".avatar-*")
	if err != nil {
		return "", fmt.Errorf("create temp avatar file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close avatar file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("move avatar into place: %w", err)
	}
	return path, nil
}

// ReadWindow reads up to ReadWindowSize bytes at offset from path, for
// download_media's chunked response. isComplete is true when this window
// reaches end-of-file (offset plus the bytes read is at least the file
// size), which includes an empty read at or past end-of-file.
func ReadWindow(path string, offset int64) (data []byte, fileSize int64, isComplete bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open for download: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, false, fmt.Errorf("stat: %w", err)
	}
	fileSize = info.Size()

	if offset >= fileSize {
		return nil, fileSize, true, nil
	}

	buf := make([]byte, ReadWindowSize)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fileSize, false, fmt.Errorf("read window: %w", err)
	}
	data = buf[:n]
	isComplete = offset+int64(n) >= fileSize
	return data, fileSize, isComplete, nil
}

// RemoveAbandoned deletes a partially-written upload file. Called by the
// upload session sweep (SPEC_FULL.md §9 resolution for Q3).
func RemoveAbandoned(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove abandoned upload", "path", path, "err", err)
	}
}
