package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"relaychat/server/internal/captcha"
	"relaychat/server/internal/convindex"
	"relaychat/server/internal/frame"
	"relaychat/server/internal/media"
	"relaychat/server/internal/presence"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mediaStore, err := media.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("media.NewStore: %v", err)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aead, err := frame.NewAEAD(key)
	if err != nil {
		t.Fatalf("frame.NewAEAD: %v", err)
	}

	return &Deps{
		Store:             st,
		Media:             mediaStore,
		Presence:          presence.New(),
		ConvIndex:         convindex.New(),
		Uploads:           uploads.New(),
		Captcha:           captcha.NewMachine(captcha.BasicFontRenderer{}),
		Thumbnailer:       media.ImagingThumbnailer{},
		VideoProbe:        media.FFmpegProbe{},
		AEAD:              aead,
		UploadIdleTimeout: time.Minute,
		RateLimit:         1000,
		RateBurst:         1000,
	}
}

func startTestServer(t *testing.T, deps *Deps) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleConnection(ctx, conn, deps)
		}
	}()
	t.Cleanup(func() { ln.Close() })

	return addr
}

// dialTestClient connects to addr and returns a frame codec sharing deps's
// AEAD key, for sending/receiving requests as a client would.
func dialTestClient(t *testing.T, addr string, deps *Deps) *frame.Codec {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return frame.New(conn, deps.AEAD)
}

func sendRequest(t *testing.T, codec *frame.Codec, req Request) Response {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := codec.WriteFrame(data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	payload, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func createTestUser(t *testing.T, deps *Deps, username, password string) {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := deps.Store.CreateUser(username, hash); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func TestServerAuthenticateRoundTrip(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	addr := startTestServer(t, deps)

	codec := dialTestClient(t, addr, deps)
	resp := sendRequest(t, codec, Request{Type: TypeAuthenticate, RequestID: "r1", Username: "alice", Password: "Password1"})

	if resp.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestServerAuthenticateWrongPasswordFails(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	addr := startTestServer(t, deps)

	codec := dialTestClient(t, addr, deps)
	resp := sendRequest(t, codec, Request{Type: TypeAuthenticate, RequestID: "r1", Username: "alice", Password: "wrong"})

	if resp.Status != StatusFail {
		t.Fatalf("expected fail, got %+v", resp)
	}
	if resp.Message != "账号或密码错误" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
}

func TestServerSendMessageEndToEnd(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	createTestUser(t, deps, "bob", "Password1")
	addr := startTestServer(t, deps)

	aliceCodec := dialTestClient(t, addr, deps)
	sendRequest(t, aliceCodec, Request{Type: TypeAuthenticate, RequestID: "a1", Username: "alice", Password: "Password1"})

	resp := sendRequest(t, aliceCodec, Request{Type: TypeSendMessage, RequestID: "a2", To: "bob", MessageText: "hi bob"})
	if resp.Status != StatusSuccess {
		t.Fatalf("send_message: expected success, got %+v", resp)
	}
	if resp.RowID == 0 {
		t.Error("expected a non-zero rowid")
	}
}

func TestServerUnknownTypeReturnsError(t *testing.T) {
	deps := testDeps(t)
	addr := startTestServer(t, deps)

	codec := dialTestClient(t, addr, deps)
	resp := sendRequest(t, codec, Request{Type: "not_a_real_type", RequestID: "x1"})

	if resp.Status != StatusError {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestServerExitTerminatesConnection(t *testing.T) {
	deps := testDeps(t)
	addr := startTestServer(t, deps)

	codec := dialTestClient(t, addr, deps)
	resp := sendRequest(t, codec, Request{Type: TypeExit, RequestID: "x1"})
	if resp.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", resp)
	}

	if _, err := codec.ReadFrame(); err == nil {
		t.Error("expected connection to be closed after exit")
	}
}

func TestServerMalformedFrameDoesNotCloseConnection(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	addr := startTestServer(t, deps)

	codec := dialTestClient(t, addr, deps)
	if err := codec.WriteFrame([]byte("not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	payload, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("expected an error response, not a closed connection: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != StatusError {
		t.Fatalf("expected error status, got %+v", resp)
	}

	resp2 := sendRequest(t, codec, Request{Type: TypeAuthenticate, RequestID: "r2", Username: "alice", Password: "Password1"})
	if resp2.Status != StatusSuccess {
		t.Fatalf("connection should still be usable, got %+v", resp2)
	}
}

// dialRawTestClient connects without going through frame.New for the write
// side, so a test can plant an invalid length prefix or undecryptable body
// directly on the wire while still reading responses through a real codec.
func dialRawTestClient(t *testing.T, addr string, deps *Deps) (net.Conn, *frame.Codec) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, frame.New(conn, deps.AEAD)
}

func TestServerZeroLengthFrameDoesNotCloseConnection(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	addr := startTestServer(t, deps)

	conn, codec := dialRawTestClient(t, addr, deps)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 0)
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write zero-length header: %v", err)
	}

	payload, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("expected an error response, not a closed connection: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != StatusError || resp.Message != "invalid request format" {
		t.Fatalf("got %+v, want status=error message=invalid request format", resp)
	}

	resp2 := sendRequest(t, codec, Request{Type: TypeAuthenticate, RequestID: "r2", Username: "alice", Password: "Password1"})
	if resp2.Status != StatusSuccess {
		t.Fatalf("connection should still be usable, got %+v", resp2)
	}
}

func TestServerUndecryptableFrameDoesNotCloseConnection(t *testing.T) {
	deps := testDeps(t)
	createTestUser(t, deps, "alice", "Password1")
	addr := startTestServer(t, deps)

	conn, codec := dialRawTestClient(t, addr, deps)

	garbage := make([]byte, 32)
	for i := range garbage {
		garbage[i] = byte(i + 1)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(garbage)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := conn.Write(garbage); err != nil {
		t.Fatalf("write garbage body: %v", err)
	}

	payload, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("expected an error response, not a closed connection: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != StatusError || resp.Message != "invalid request format" {
		t.Fatalf("got %+v, want status=error message=invalid request format", resp)
	}

	resp2 := sendRequest(t, codec, Request{Type: TypeAuthenticate, RequestID: "r2", Username: "alice", Password: "Password1"})
	if resp2.Status != StatusSuccess {
		t.Fatalf("connection should still be usable, got %+v", resp2)
	}
}

func TestServerShortReadClosesConnection(t *testing.T) {
	deps := testDeps(t)
	addr := startTestServer(t, deps)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A declared length with no body at all: the listener sees only a
	// truncated header/body and must hang up, per SPEC_FULL.md §9 Q2.
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 16)
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected connection to be closed after a short read, got data instead")
	}
}
