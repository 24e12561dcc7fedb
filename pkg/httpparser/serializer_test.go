package httpparser

import (
	"bytes"
	"strings"
	"testing"

	"oakserve/oakhttpd/pkg/message"
)

func TestSerializerBuildsCompleteResponse(t *testing.T) {
	resp := message.New(64, 2, 4, 4)
	resp.Version = message.HTTP11
	resp.Result = 200
	resp.AddContent("text/plain", []byte("hi"))

	s := NewSerializer()
	s.BuildResult(resp)
	s.BuildHeader(resp, true, int64(len(resp.Content())), false)
	s.BuildSeparator(resp)
	s.Finish(resp)

	var out bytes.Buffer
	buf := make([]byte, 8)
	for {
		n, done := s.Drain(resp, buf)
		out.Write(buf[:n])
		if done {
			break
		}
	}

	wire := out.String()
	if !strings.HasPrefix(wire, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("expected a status line, got %q", wire)
	}
	if !strings.Contains(wire, "Content-Length: 2\r\n") {
		t.Fatalf("expected a synthesized Content-Length, got %q", wire)
	}
	if !strings.Contains(wire, "Connection: Keep-Alive\r\n") {
		t.Fatalf("expected Connection: Keep-Alive, got %q", wire)
	}
	if !strings.HasSuffix(wire, "\r\n\r\nhi") {
		t.Fatalf("expected the body to follow the blank separator line, got %q", wire)
	}
}

func TestSerializerForcesCloseOnErrorStatus(t *testing.T) {
	resp := message.New(64, 2, 4, 4)
	resp.Version = message.HTTP11
	resp.Result = 404
	s := NewSerializer()
	s.BuildResult(resp)
	s.BuildHeader(resp, true, 0, false) // caller asked for keepalive...
	wire := string(resp.HeadersBuffer().Get(0))
	if !strings.Contains(wire, "Connection: Close\r\n") {
		t.Fatalf("expected a >=400 status to force Connection: Close regardless of the keepalive arg, got %q", wire)
	}
}

func TestStatusTextUnknownCodeFallsBackToZeros(t *testing.T) {
	if got := StatusText(499); got != "000" {
		t.Fatalf("expected the fallback reason phrase for an unlisted code, got %q", got)
	}
}
