package main

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRequestRoundTripsUnknownFieldsOmitted(t *testing.T) {
	req := Request{Type: TypeAuthenticate, RequestID: "r1", Username: "alice", Password: "secret1A"}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if _, present := raw["rowids"]; present {
		t.Fatalf("expected omitempty to drop unset rowids field, got %v", raw)
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, req) {
		t.Fatalf("got %+v, want %+v", decoded, req)
	}
}

func TestReplyPreviewPayloadRoundTrip(t *testing.T) {
	p := ReplyPreviewPayload{Sender: "alice", Content: "hi"}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ReplyPreviewPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != p {
		t.Fatalf("got %+v, want %+v", decoded, p)
	}
}

func TestResponseEchoesRequestIDAndOmitsUnsetFields(t *testing.T) {
	resp := Response{Type: TypeSendMessage, RequestID: "r4", Status: StatusSuccess, RowID: 100}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if raw["request_id"] != "r4" {
		t.Fatalf("got request_id %v, want r4", raw["request_id"])
	}
	if _, present := raw["deleted_rowids"]; present {
		t.Fatalf("expected omitempty to drop unset deleted_rowids, got %v", raw)
	}
}
