package httpparser

import (
	"fmt"
	"strconv"

	"oakserve/oakhttpd/pkg/message"
)

// statusText is the global, read-only status-code table (spec §9 "global
// error table"). Codes not listed here serialize with a " 000" suffix,
// per §4.3.
var statusText = map[int]string{
	100: "Continue", 101: "Switching Protocols",
	200: "OK", 201: "Created", 202: "Accepted", 203: "Non-Authoritative Information",
	204: "No Content", 205: "Reset Content", 206: "Partial Content",
	300: "Multiple Choices", 301: "Moved Permanently", 302: "Found", 303: "See Other",
	304: "Not Modified", 305: "Use Proxy", 307: "Temporary Redirect",
	400: "Bad Request", 401: "Unauthorized", 402: "Payment Required", 403: "Forbidden",
	404: "Not Found", 405: "Method Not Allowed", 406: "Not Acceptable",
	407: "Proxy Authentication Required", 408: "Request Timeout", 409: "Conflict",
	410: "Gone", 411: "Length Required", 412: "Precondition Failed",
	413: "Payload Too Large", 414: "URI Too Long", 415: "Unsupported Media Type",
	416: "Range Not Satisfiable", 417: "Expectation Failed", 431: "Request Header Fields Too Large",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 504: "Gateway Timeout", 505: "HTTP Version Not Supported",
	511: "Network Authentication Required",
}

// StatusText looks up the reason phrase for a status code.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "000"
}

// Serializer drives the response-side state machine over a response
// Message, writing into the response's own content/headers buffers and
// draining them via Drain into a caller-supplied wire buffer.
type Serializer struct{}

// NewSerializer constructs a Serializer. It holds no state of its own;
// all state lives on the Message being generated.
func NewSerializer() *Serializer { return &Serializer{} }

// BuildResult emits the status line into resp's headers buffer, ahead of
// any header lines a handler already added with AddHeader, and advances
// GenerateState from INIT/NONE to RESULT.
func (s *Serializer) BuildResult(resp *message.Message) {
	line := fmt.Sprintf("%s %d %s\r\n", resp.Version.String(), resp.Result, StatusText(resp.Result))
	hdr := resp.HeadersBuffer()
	handlerHeaders := hdr.Slice(0, hdr.Len())
	hdr.Reset(0)
	hdr.Append([]byte(line))
	hdr.Append(handlerHeaders)
	resp.GenerateState = message.GenerateResult
}

// BuildHeader appends synthetic Content-Length/Connection header lines to
// resp's headers buffer, after the lines the handler added with AddHeader,
// then advances to HEADER. keepalive is the final keepalive decision
// computed by pkg/client's predicate; contentKnownLen is the body length
// if known.
func (s *Serializer) BuildHeader(resp *message.Message, keepalive bool, contentKnownLen int64, hasContentLengthHeader bool) {
	if !hasContentLengthHeader && contentKnownLen >= 0 {
		resp.AddHeader("Content-Length", strconv.FormatInt(contentKnownLen, 10))
	}
	if resp.Result >= 400 {
		keepalive = false
	}
	if keepalive {
		resp.AddHeader("Connection", "Keep-Alive")
	} else {
		resp.AddHeader("Connection", "Close")
	}
	resp.GenerateState = message.GenerateHeader
}

// BuildSeparator appends the blank line ending the header block.
func (s *Serializer) BuildSeparator(resp *message.Message) {
	resp.HeadersBuffer().Append([]byte("\r\n"))
	resp.GenerateState = message.GenerateSeparator
}

// Drain copies up to len(dst) unsent bytes from resp's headers-then-content
// buffers into dst, in RESULT->HEADER->SEPARATOR->CONTENT order, advancing
// an internal send cursor. Returns the number of bytes copied and whether
// the response has been fully drained (END).
//
// The headers buffer and content buffer are logically concatenated: the
// headers buffer already holds the status line, header lines, and blank
// separator appended in sequence by BuildResult/BuildHeader/BuildSeparator
// above, so draining is just "headers buffer then content buffer", each
// read via its own Buffer cursor.
func (s *Serializer) Drain(resp *message.Message, dst []byte) (int, bool) {
	hdr := resp.HeadersBuffer()
	n := 0
	if hdr.Cursor() < hdr.Len() {
		chunk := hdr.Unread()
		c := copy(dst, chunk)
		hdr.Advance(c)
		n += c
		if n == len(dst) {
			return n, false
		}
	}
	content := resp.ContentBuffer()
	if content.Cursor() < content.Len() {
		chunk := content.Unread()
		c := copy(dst[n:], chunk)
		content.Advance(c)
		n += c
	}
	done := hdr.Cursor() >= hdr.Len() && content.Cursor() >= content.Len()
	if done && resp.GenerateState != message.GenerateEnd {
		resp.GenerateState = message.GenerateContent
	}
	return n, done
}

// Finish marks the response fully sent. The caller shrinks its receive
// buffer only once this is reached — never mid-SENDING — and never shrinks
// the response's buffers, per SPEC_FULL.md's resolution of the
// PARSE_CONTINUE/GENERATE_CONTENT open question.
func (s *Serializer) Finish(resp *message.Message) {
	resp.GenerateState = message.GenerateEnd
}
