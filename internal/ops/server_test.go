package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaychat/server/internal/presence"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

type fakeWriter struct{}

func (fakeWriter) WriteFrame([]byte) error { return nil }

func TestHealthzAndMetrics(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	if err := st.CreateUser("alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	pres := presence.New()
	pres.Bind("alice", fakeWriter{})

	up := uploads.New()
	up.Start(uploads.Session{RequestID: "r1"})

	s := New(st, pres, up)
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	healthResp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", healthResp.StatusCode)
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", metricsResp.StatusCode)
	}
	var m metricsResponse
	if err := json.NewDecoder(metricsResp.Body).Decode(&m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if m.OnlineSessions != 1 {
		t.Fatalf("got online_sessions %d, want 1", m.OnlineSessions)
	}
	if m.UploadsInFlight != 1 {
		t.Fatalf("got uploads_in_flight %d, want 1", m.UploadsInFlight)
	}
	if m.Users != 1 {
		t.Fatalf("got users %d, want 1", m.Users)
	}
}
