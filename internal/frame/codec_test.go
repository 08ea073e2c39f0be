package frame

import (
	"bytes"
	"testing"
)

func testAEAD(t *testing.T) (key []byte) {
	t.Helper()
	key = bytes.Repeat([]byte{0x11}, 32)
	return key
}

func TestRoundTrip(t *testing.T) {
	key := testAEAD(t)
	aead, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	buf := &bytes.Buffer{}
	codec := New(buf, aead)

	want := []byte(`{"type":"ping","request_id":"r1"}`)
	if err := codec.WriteFrame(want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadFrameShortHeaderIsHardError(t *testing.T) {
	key := testAEAD(t)
	aead, _ := NewAEAD(key)
	buf := bytes.NewBuffer([]byte{0x00, 0x01})
	codec := New(buf, aead)

	if _, err := codec.ReadFrame(); err == nil {
		t.Fatal("expected error on truncated header")
	}
}

func TestReadFrameShortBodyIsHardError(t *testing.T) {
	key := testAEAD(t)
	aead, _ := NewAEAD(key)

	buf := &bytes.Buffer{}
	buf.Write([]byte{0x00, 0x00, 0x10, 0x00}) // declares 4096 bytes
	buf.Write([]byte{0x01, 0x02, 0x03})       // but only 3 follow
	codec := New(buf, aead)

	if _, err := codec.ReadFrame(); err == nil {
		t.Fatal("expected error on truncated body")
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	key := testAEAD(t)
	aead, _ := NewAEAD(key)

	buf := &bytes.Buffer{}
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff})
	codec := New(buf, aead)

	if _, err := codec.ReadFrame(); err != ErrFrameTooLarge {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	key := testAEAD(t)
	aead, _ := NewAEAD(key)

	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00, 0x00})
	codec := New(buf, aead)

	if _, err := codec.ReadFrame(); err != ErrInvalidLength {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
}

func TestDecryptFailureIsAnError(t *testing.T) {
	keyA := bytes.Repeat([]byte{0x11}, 32)
	keyB := bytes.Repeat([]byte{0x22}, 32)
	aeadA, _ := NewAEAD(keyA)
	aeadB, _ := NewAEAD(keyB)

	buf := &bytes.Buffer{}
	writer := New(buf, aeadA)
	if err := writer.WriteFrame([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	reader := New(buf, aeadB)
	if _, err := reader.ReadFrame(); err == nil {
		t.Fatal("expected decrypt failure with mismatched key")
	}
}

func TestConcurrentWritesDoNotTearFrames(t *testing.T) {
	key := testAEAD(t)
	aead, _ := NewAEAD(key)
	buf := &bytes.Buffer{}
	codec := New(buf, aead)

	const n = 50
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			done <- codec.WriteFrame([]byte(`{"type":"push"}`))
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	reader := New(buf, aead)
	for i := 0; i < n; i++ {
		if _, err := reader.ReadFrame(); err != nil {
			t.Fatalf("ReadFrame %d: %v (frame interleaving corrupted the stream)", i, err)
		}
	}
}
