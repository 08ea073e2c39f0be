// Package frame implements the wire framing described by the session
// gateway: a 4-byte big-endian length prefix followed by an AEAD-sealed
// JSON payload. The AEAD construction embeds its own nonce and
// authentication tag in the ciphertext, so the wire format carries no
// separate nonce field.
package frame

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// MaxFrameSize bounds a single ciphertext frame. Media chunks are 1 MiB of
// raw bytes, base64-encoded to roughly 1.37 MiB, plus JSON envelope
// overhead; 2 MiB leaves ample headroom.
const MaxFrameSize = 2 << 20

// ErrShortRead is returned when a frame header or body is truncated. Per
// the design decision recorded in SPEC_FULL.md §9 Q2, any short read is a
// hard connection error — the codec never proceeds on partial framing.
var ErrShortRead = errors.New("frame: short read")

// ErrFrameTooLarge is returned when a declared frame length exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame: length exceeds maximum")

// ErrInvalidLength is returned for a zero or negative declared length.
var ErrInvalidLength = errors.New("frame: invalid length")

// NewAEAD builds the shared AEAD cipher from a 32-byte pre-shared key.
// Both ends of a connection must be configured with the same key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("frame: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return chacha20poly1305.New(key)
}

// Codec reads and writes frames on one connection. Writes are serialized
// by writeMu so that interleaved handler pushes and handler responses
// never tear a frame — the mutex is held only for the duration of a
// single frame's write, matching the teacher's ctrlMu/sendRaw discipline.
type Codec struct {
	rw      io.ReadWriter
	aead    cipher.AEAD
	writeMu sync.Mutex
	readBuf []byte
}

// New wraps rw with the given AEAD for framed reads and writes.
func New(rw io.ReadWriter, aead cipher.AEAD) *Codec {
	return &Codec{rw: rw, aead: aead}
}

// ReadFrame blocks until one full frame has been read and decrypted,
// returning the plaintext JSON bytes. Any short read, oversized length, or
// decryption failure is returned as an error; the caller decides whether
// the error is protocol-recoverable (malformed ciphertext/JSON) or fatal
// (short read, per §9 Q2).
func (c *Codec) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: header: %v", ErrShortRead, err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrInvalidLength
	}
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	cipherText := make([]byte, n)
	if _, err := io.ReadFull(c.rw, cipherText); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrShortRead, err)
	}

	if len(cipherText) < c.aead.NonceSize() {
		return nil, fmt.Errorf("frame: ciphertext shorter than nonce")
	}
	nonce := cipherText[:c.aead.NonceSize()]
	sealed := cipherText[c.aead.NonceSize():]

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("frame: decrypt: %w", err)
	}
	return plain, nil
}

// WriteFrame encrypts plain and writes it as one length-prefixed frame.
// Safe for concurrent use; at most one frame is ever mid-write at a time.
func (c *Codec) WriteFrame(plain []byte) error {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("frame: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plain, nil)
	cipherText := append(nonce, sealed...)
	if len(cipherText) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(cipherText)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if _, err := c.rw.Write(cipherText); err != nil {
		return fmt.Errorf("frame: write body: %w", err)
	}
	return nil
}
