package httpparser

import (
	"strconv"
	"testing"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/message"
)

func newTestParser() *Parser {
	return New(Config{MaxURIChunks: 2, MaxHdrChunks: 4})
}

func parseRequest(t *testing.T, raw string) (*message.Message, buffer.Result) {
	t.Helper()
	p := newTestParser()
	msg := message.New(64, 2, 4, 4)
	recv := buffer.New(64, 64)
	recv.Append([]byte(raw))
	res := p.Parse(msg, recv)
	return msg, res
}

func TestParseMinimalGET(t *testing.T) {
	msg, res := parseRequest(t, "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if msg.URI() != "/index.html" {
		t.Fatalf("expected /index.html, got %q", msg.URI())
	}
	if msg.Version != message.HTTP11 {
		t.Fatalf("expected HTTP/1.1, got %v", msg.Version)
	}
	if v, ok := msg.Header("Host"); !ok || v != "example.com" {
		t.Fatalf("expected Host: example.com, got %q, %v", v, ok)
	}
}

func TestParseKeepAliveHeader(t *testing.T) {
	msg, res := parseRequest(t, "GET / HTTP/1.1\r\nHost: a\r\nConnection: keep-alive\r\n\r\n")
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if !msg.Flags.KeepAlive {
		t.Fatalf("expected KeepAlive flag set")
	}
}

func TestParseRejectsOversizedURI(t *testing.T) {
	p := New(Config{MaxURIChunks: 1, MaxHdrChunks: 4}) // 64-byte URI ceiling
	msg := message.New(64, 1, 4, 4)
	recv := buffer.New(64, 64)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	recv.Append([]byte("GET /" + string(long) + " HTTP/1.1\r\n\r\n"))
	res := p.Parse(msg, recv)
	if res != buffer.Reject {
		t.Fatalf("expected Reject for an oversized URI, got %v", res)
	}
	if msg.Result != 414 {
		t.Fatalf("expected 414, got %d", msg.Result)
	}
}

func TestParseRejectsPathTraversalEscapingRoot(t *testing.T) {
	msg, res := parseRequest(t, "GET /%2e%2e/%2e%2e/etc/passwd HTTP/1.1\r\n\r\n")
	if res != buffer.Reject {
		t.Fatalf("expected Reject, got %v (uri=%q)", res, msg.URI())
	}
	if msg.Result != 400 {
		t.Fatalf("expected 400, got %d", msg.Result)
	}
}

func TestParseRejectsPercentDecodedDotDotEscapingLeadingSegment(t *testing.T) {
	// spec §8 scenario 4: /x/%2e%2e/y must REJECT 400, not collapse to /y.
	msg, res := parseRequest(t, "GET /x/%2e%2e/y HTTP/1.1\r\n\r\n")
	if res != buffer.Reject {
		t.Fatalf("expected Reject, got %v (uri=%q)", res, msg.URI())
	}
	if msg.Result != 400 {
		t.Fatalf("expected 400, got %d", msg.Result)
	}
}

func TestParseCollapsesDotDotWithinRoot(t *testing.T) {
	msg, res := parseRequest(t, "GET /a/b/../c HTTP/1.1\r\n\r\n")
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if msg.URI() != "/a/c" {
		t.Fatalf("expected /a/c, got %q", msg.URI())
	}
}

func TestParseFormURLEncodedBody(t *testing.T) {
	body := "name=ok&flag"
	raw := "POST /submit HTTP/1.1\r\nHost: a\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body
	msg, res := parseRequest(t, raw)
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if v, ok := msg.Parameter("name"); !ok || v != "ok" {
		t.Fatalf("expected name=ok, got %q, %v", v, ok)
	}
	if v, ok := msg.Parameter("flag"); !ok || v != "true" {
		t.Fatalf("expected flag=true, got %q, %v", v, ok)
	}
}

func TestParsePostWithoutContentLengthFlagsUndeclaredBodyAndKeepsBytes(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: a\r\n\r\nleftover-body"
	msg, res := parseRequest(t, raw)
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if !msg.Flags.UndeclaredBody {
		t.Fatalf("expected UndeclaredBody to be set for a bodied method with no Content-Length")
	}
	if string(msg.Content()) != "leftover-body" {
		t.Fatalf("expected the buffered body bytes to be captured rather than discarded, got %q", msg.Content())
	}
}

func TestParseGETWithoutContentLengthDoesNotFlagUndeclaredBody(t *testing.T) {
	msg, res := parseRequest(t, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if msg.Flags.UndeclaredBody {
		t.Fatalf("expected an ordinary GET with no Content-Length to leave UndeclaredBody unset")
	}
}

func TestParseHTTP09HasNoHeaders(t *testing.T) {
	msg, res := parseRequest(t, "GET /old\r\n")
	if res != buffer.Success {
		t.Fatalf("expected Success, got %v", res)
	}
	if msg.Version != message.HTTP09 {
		t.Fatalf("expected HTTP/0.9, got %v", msg.Version)
	}
	if msg.URI() != "/old" {
		t.Fatalf("expected /old, got %q", msg.URI())
	}
}

func TestParseUnknownMethodRejected(t *testing.T) {
	msg, res := parseRequest(t, "TRACE / HTTP/1.1\r\n\r\n")
	if res != buffer.Reject {
		t.Fatalf("expected Reject for an unregistered method, got %v", res)
	}
	if msg.Result != 405 {
		t.Fatalf("expected 405, got %d", msg.Result)
	}
}
