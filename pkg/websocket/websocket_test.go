package websocket

import (
	"bytes"
	"testing"
)

func TestAcceptKeyMatchesRFC6455Example(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestWriteAndParseUnmaskedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, OpText, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	frames, leftover, err := ParseFrames(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseFrames failed: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("expected no leftover bytes, got %d", len(leftover))
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Opcode != OpText || string(frames[0].Payload) != "hello" {
		t.Fatalf("unexpected frame: %+v", frames[0])
	}
}

func TestParseMaskedClientFrame(t *testing.T) {
	payload := []byte("ping-pong")
	mask := [4]byte{0x01, 0x02, 0x03, 0x04}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}
	raw := []byte{0x80 | byte(OpBinary), 0x80 | byte(len(payload))}
	raw = append(raw, mask[:]...)
	raw = append(raw, masked...)

	frames, _, err := ParseFrames(raw)
	if err != nil {
		t.Fatalf("ParseFrames failed: %v", err)
	}
	if len(frames) != 1 || string(frames[0].Payload) != string(payload) {
		t.Fatalf("expected unmasked payload %q, got %+v", payload, frames)
	}
}

func TestParseFramesReportsLeftoverOnPartialFrame(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, OpText, []byte("ab"))
	full := buf.Bytes()
	partial := full[:len(full)-1]

	frames, leftover, err := ParseFrames(partial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no complete frames yet, got %d", len(frames))
	}
	if len(leftover) != len(partial) {
		t.Fatalf("expected the whole partial frame to be returned as leftover")
	}
}

func TestWriteClose(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteClose(&buf, 1000); err != nil {
		t.Fatalf("WriteClose failed: %v", err)
	}
	frames, _, err := ParseFrames(buf.Bytes())
	if err != nil || len(frames) != 1 || frames[0].Opcode != OpClose {
		t.Fatalf("expected a single close frame, got %+v, err=%v", frames, err)
	}
	code := int(frames[0].Payload[0])<<8 | int(frames[0].Payload[1])
	if code != 1000 {
		t.Fatalf("expected close code 1000, got %d", code)
	}
}
