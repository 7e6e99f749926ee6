package protocol_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/biosso/facegate/internal/protocol"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestDecode_ImageSubmission(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"type":"image","payload":"` + b64("jpeg-bytes") + `","userId":"u1","mode":"login","step":2}`)
	msg, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	sub, ok := msg.(protocol.ImageSubmission)
	if !ok {
		t.Fatalf("decoded %T, want ImageSubmission", msg)
	}
	if sub.Identity != "u1" || sub.Mode != protocol.ModeLogin || sub.Step != 2 {
		t.Errorf("unexpected fields: %+v", sub)
	}
	if string(sub.Image) != "jpeg-bytes" {
		t.Errorf("Image = %q, want %q", sub.Image, "jpeg-bytes")
	}
}

func TestDecode_BulkRegistration(t *testing.T) {
	t.Parallel()

	frame := []byte(`{
		"type": "register",
		"userId": "u2",
		"images": ["` + b64("img-1") + `", "` + b64("img-2") + `"],
		"userData": {"name": "Ada", "department": "R&D"}
	}`)
	msg, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	bulk, ok := msg.(protocol.BulkRegistration)
	if !ok {
		t.Fatalf("decoded %T, want BulkRegistration", msg)
	}
	if bulk.Identity != "u2" {
		t.Errorf("Identity = %q, want u2", bulk.Identity)
	}
	if len(bulk.Images) != 2 || string(bulk.Images[0]) != "img-1" {
		t.Errorf("Images = %v", bulk.Images)
	}
	if bulk.ProfileMetadata["name"] != "Ada" {
		t.Errorf("ProfileMetadata = %v", bulk.ProfileMetadata)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame string
	}{
		{"unknown type", `{"type":"selfie","userId":"u1"}`},
		{"unknown mode", `{"type":"image","payload":"` + b64("x") + `","userId":"u1","mode":"enroll"}`},
		{"missing userId", `{"type":"image","payload":"` + b64("x") + `","mode":"login"}`},
		{"bad base64 payload", `{"type":"image","payload":"!!!","userId":"u1","mode":"login"}`},
		{"empty payload", `{"type":"image","payload":"","userId":"u1","mode":"login"}`},
		{"bulk without images", `{"type":"register","userId":"u1","images":[]}`},
		{"bulk bad base64", `{"type":"register","userId":"u1","images":["!!!"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := protocol.Decode([]byte(tt.frame))
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Errorf("Decode error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecode_NotJSON(t *testing.T) {
	t.Parallel()

	_, err := protocol.Decode([]byte("\x00\x01 binary noise"))
	if !errors.Is(err, protocol.ErrNotJSON) {
		t.Fatalf("Decode error = %v, want ErrNotJSON", err)
	}
}

func TestResponse_Encode(t *testing.T) {
	t.Parallel()

	sim := 0.91
	count := 3
	resp := protocol.Response{
		Type:        protocol.TypeResult,
		Status:      protocol.StatusVerified,
		Similarity:  &sim,
		UserIDField: "u1",
		Count:       &count,
	}
	data, err := resp.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if decoded["type"] != "result" || decoded["status"] != "verified" {
		t.Errorf("decoded = %v", decoded)
	}
	if decoded["similarity"].(float64) != 0.91 {
		t.Errorf("similarity = %v, want 0.91", decoded["similarity"])
	}
	if _, present := decoded["reason"]; present {
		t.Error("empty reason should be omitted")
	}
}
