// Package httpparser implements the incremental HTTP/0.9-1.1 request
// parser and its mirror response serializer. It is grounded on the
// ouistiti libhttpserver httpmessage.c state machine (INIT -> URI ->
// QUERY/URIFRAG -> VERSION -> PREHEADER -> HEADER -> POSTHEADER ->
// PRECONTENT -> CONTENT/POSTCONTENT -> END), adapted so every
// header/query/cookie slice is recorded as a (buffer, offset, length)
// reference instead of the C string-patching the original relies on.
package httpparser

import (
	"golang.org/x/text/unicode/norm"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/kvdb"
	"oakserve/oakhttpd/pkg/message"
)

// Config bundles the parser's static, server-wide configuration: the
// registered method table and the multi-valued-header allow-list
// (SPEC_FULL.md resolves the spec's open question about this list by
// making it configurable rather than hard-coded).
type Config struct {
	Methods       []*message.Method
	MultiValue    kvdb.MultiValueFunc
	MaxURIChunks  int
	MaxHdrChunks  int
}

// DefaultMethods is the stock method table: GET/HEAD/OPTIONS/DELETE take
// no body, POST/PUT do.
func DefaultMethods() []*message.Method {
	return []*message.Method{
		{Name: "GET", ID: 0, AllowsBody: false},
		{Name: "HEAD", ID: 1, AllowsBody: false},
		{Name: "POST", ID: 2, AllowsBody: true},
		{Name: "PUT", ID: 3, AllowsBody: true},
		{Name: "DELETE", ID: 4, AllowsBody: false},
		{Name: "OPTIONS", ID: 5, AllowsBody: false},
		{Name: "PATCH", ID: 6, AllowsBody: true},
	}
}

// DefaultMultiValue allows only Set-Cookie to repeat, per spec §4.2's
// documented default; server.Config can override this.
func DefaultMultiValue(key string) bool {
	return equalFold(key, "Set-Cookie")
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 32
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Parser drives the request-side state machine.
type Parser struct {
	cfg Config
}

// New builds a Parser over the given config, filling in defaults for any
// zero-valued fields.
func New(cfg Config) *Parser {
	if cfg.Methods == nil {
		cfg.Methods = DefaultMethods()
	}
	if cfg.MultiValue == nil {
		cfg.MultiValue = DefaultMultiValue
	}
	if cfg.MaxURIChunks <= 0 {
		cfg.MaxURIChunks = 2
	}
	if cfg.MaxHdrChunks <= 0 {
		cfg.MaxHdrChunks = 12
	}
	return &Parser{cfg: cfg}
}

// Parse consumes as many bytes as available from buf's unread tail,
// advancing msg's parse state, and returns Success once msg reaches END,
// Continue/Incomplete if more bytes are needed, or Reject if the request
// is malformed (msg.Result is set to the appropriate 4xx/5xx in that
// case). Safe to call repeatedly as more bytes arrive on the socket.
func (p *Parser) Parse(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	for {
		switch msg.ParseState {
		case message.ParseInit:
			if r := p.parseInit(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseURI:
			if r := p.parseURI(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseURIFrag:
			if r := p.parseURIFrag(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseQuery:
			if r := p.parseQuery(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseVersion:
			if r := p.parseVersion(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParsePreHeader:
			if msg.URI() == "" {
				msg.Result = 400
				return buffer.Reject
			}
			if msg.Version == message.HTTP09 {
				// HTTP/0.9 requests carry no header block
				msg.ParseState = message.ParsePostHeader
			} else {
				msg.ParseState = message.ParseHeader
			}
		case message.ParseHeader:
			if r := p.parseHeaderLine(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParsePostHeader:
			p.finishHeaders(msg)
			msg.ParseState = message.ParsePreContent
		case message.ParsePreContent:
			if r := p.choosePreContent(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseContent:
			if r := p.parseContent(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParsePostContent:
			if r := p.parsePostContent(msg, buf); r != buffer.Success {
				return r
			}
		case message.ParseEnd:
			return buffer.Success
		}
	}
}

// parseInit matches a "METHOD " prefix against the method table.
func (p *Parser) parseInit(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	for _, m := range p.cfg.Methods {
		name := m.Name
		if len(data) < len(name)+1 {
			if matchesPrefix(data, name) {
				return buffer.Incomplete // could still match, need more bytes
			}
			continue
		}
		if string(data[:len(name)]) == name && data[len(name)] == ' ' {
			msg.Method = m
			buf.Advance(len(name) + 1)
			msg.ParseState = message.ParseURI
			return buffer.Success
		}
	}
	if len(data) == 0 {
		return buffer.Incomplete
	}
	msg.Result = 405
	return buffer.Reject
}

func matchesPrefix(data []byte, name string) bool {
	n := len(data)
	if n > len(name) {
		n = len(name)
	}
	return string(data[:n]) == name[:n]
}

// parseURI accumulates percent-decoded path bytes until a terminator,
// then finalizes '..'/'//' collapsing over the accumulated path.
func (p *Parser) parseURI(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	uriBuf := msg.URIBuffer()
	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case ' ':
			buf.Advance(i + 1)
			if !collapsePath(msg) {
				msg.Result = 400
				return buffer.Reject
			}
			msg.ParseState = message.ParseVersion
			return buffer.Success
		case '?':
			buf.Advance(i + 1)
			if !collapsePath(msg) {
				msg.Result = 400
				return buffer.Reject
			}
			msg.ParseState = message.ParseQuery
			return buffer.Success
		case '#':
			buf.Advance(i + 1)
			if !collapsePath(msg) {
				msg.Result = 400
				return buffer.Reject
			}
			msg.ParseState = message.ParseURIFrag
			return buffer.Success
		case '\r':
			if i+1 >= len(data) {
				buf.Advance(i)
				return buffer.Incomplete
			}
			if data[i+1] != '\n' {
				msg.Result = 400
				return buffer.Reject
			}
			buf.Advance(i + 2)
			if !collapsePath(msg) {
				msg.Result = 400
				return buffer.Reject
			}
			msg.Version = message.HTTP09
			msg.ParseState = message.ParsePreHeader
			return buffer.Success
		case '%':
			if i+2 >= len(data) {
				buf.Advance(i)
				return buffer.Incomplete
			}
			hv, ok := decodeHex(data[i+1], data[i+2])
			if !ok {
				msg.Result = 400
				return buffer.Reject
			}
			if hv < 0x20 {
				msg.Result = 400
				return buffer.Reject
			}
			off, r := uriBuf.Append([]byte{hv})
			if r != buffer.Success {
				msg.Result = 414
				return buffer.Reject
			}
			msg.MarkURIByteDecoded(off)
			i += 3
			continue
		default:
			if c < 0x20 {
				msg.Result = 400
				return buffer.Reject
			}
			if _, r := uriBuf.Append([]byte{c}); r != buffer.Success {
				msg.Result = 414
				return buffer.Reject
			}
			i++
		}
	}
	buf.Advance(i)
	return buffer.Incomplete
}

func (p *Parser) parseURIFrag(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	for i, c := range data {
		if c == ' ' {
			buf.Advance(i + 1)
			msg.ParseState = message.ParseVersion
			return buffer.Success
		}
		if c == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			buf.Advance(i + 2)
			msg.Version = message.HTTP09
			msg.ParseState = message.ParsePreHeader
			return buffer.Success
		}
	}
	buf.Advance(len(data))
	return buffer.Incomplete
}

func decodeHex(a, b byte) (byte, bool) {
	hv1, ok1 := hexVal(a)
	hv2, ok2 := hexVal(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	return hv1<<4 | hv2, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// collapsePath rewrites the path accumulated in msg's URI buffer in
// place, collapsing consecutive slashes and resolving ".." segments.
// Grounded on _buffer_rewindto: each ".." pops the buffer back to the
// previous '/', failing the request if it would escape the root.
//
// A ".." segment built entirely from literal bytes collapses normally.
// A ".." segment containing even one %XX-decoded byte is rejected
// outright instead of collapsed: the raw-byte traversal check a literal
// ".." goes through never sees a percent-encoded one (it is decoded one
// %XX at a time, independently of its neighbor), so spec §8 scenario 4
// treats any decoded ".." as escaping the leading segment rather than
// trust a post-hoc collapse to reproduce the raw-byte defense exactly.
func collapsePath(msg *message.Message) bool {
	uriBuf := msg.URIBuffer()
	raw := append([]byte(nil), uriBuf.Get(0)...)
	if len(raw) == 0 {
		return true
	}
	var segs [][]byte
	start := 0
	flush := func(end int) bool {
		seg := raw[start:end]
		switch {
		case len(seg) == 0:
			// collapse consecutive slashes
		case len(seg) == 1 && seg[0] == '.':
			// "." segment: no-op
		case len(seg) == 2 && seg[0] == '.' && seg[1] == '.':
			if msg.URIByteDecoded(start) || msg.URIByteDecoded(start+1) {
				return false
			}
			if len(segs) == 0 {
				return false
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
		return true
	}
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '/' {
			if !flush(i) {
				return false
			}
			start = i + 1
		}
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, '/')
	for i, s := range segs {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, s...)
	}
	// NFC-normalize the decoded path: percent-decoding can expose a
	// combining-mark sequence that renders identically to its precomposed
	// form but compares unequal byte-for-byte, letting two connectors
	// disagree on whether two requests named the same resource.
	out = norm.NFC.Bytes(out)
	uriBuf.Reset(0)
	uriBuf.Append(out)
	return true
}

func (p *Parser) parseQuery(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	queryBuf := msg.QueryBuffer()
	for i, c := range data {
		switch c {
		case ' ':
			buf.Advance(i + 1)
			msg.ParseState = message.ParseVersion
			return buffer.Success
		case '#':
			buf.Advance(i + 1)
			msg.ParseState = message.ParseURIFrag
			return buffer.Success
		case '\r':
			if i+1 < len(data) && data[i+1] == '\n' {
				buf.Advance(i + 2)
				msg.Version = message.HTTP09
				msg.ParseState = message.ParsePreHeader
				return buffer.Success
			}
		}
		if _, r := queryBuf.Append([]byte{c}); r != buffer.Success {
			msg.Result = 414
			return buffer.Reject
		}
	}
	buf.Advance(len(data))
	return buffer.Incomplete
}

// parseVersion collects the "HTTP/x.y" token, buffering a partial token
// across calls via the message's scratch accumulator.
func (p *Parser) parseVersion(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\r' {
			if i+1 >= len(data) {
				for j := 0; j < i; j++ {
					msg.AppendScratch(data[j])
				}
				buf.Advance(i)
				return buffer.Incomplete
			}
			if data[i+1] != '\n' {
				msg.Result = 400
				return buffer.Reject
			}
			for j := 0; j < i; j++ {
				msg.AppendScratch(data[j])
			}
			tok := string(msg.Scratch())
			msg.ResetScratch()
			ver, ok := matchVersion(tok)
			if !ok {
				msg.Result = 400
				return buffer.Reject
			}
			msg.Version = ver
			buf.Advance(i + 2)
			msg.ParseState = message.ParsePreHeader
			return buffer.Success
		}
	}
	for _, c := range data {
		msg.AppendScratch(c)
	}
	buf.Advance(len(data))
	return buffer.Incomplete
}

func matchVersion(tok string) (message.Version, bool) {
	switch tok {
	case "HTTP/0.9":
		return message.HTTP09, true
	case "HTTP/1.0":
		return message.HTTP10, true
	case "HTTP/1.1":
		return message.HTTP11, true
	default:
		return message.HTTP11, false
	}
}

// parseHeaderLine reads one "K: V\r\n" line, or the empty line ending the
// header block, appending raw bytes (CR kept; FillDB trims it later) to
// headersBuf.
func (p *Parser) parseHeaderLine(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	data := buf.Unread()
	hdrBuf := msg.HeadersBuffer()
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' && i > 0 && data[i-1] == '\r' {
			line := data[:i+1]
			if len(line) == 2 { // bare CRLF: end of headers
				buf.Advance(i + 1)
				hdrBuf.Append([]byte{0})
				msg.ParseState = message.ParsePostHeader
				return buffer.Success
			}
			if _, r := hdrBuf.Append(line); r != buffer.Success {
				msg.Result = 431
				return buffer.Reject
			}
			buf.Advance(i + 1)
			return buffer.Success
		}
		if data[i] == '\n' && (i == 0 || data[i-1] != '\r') {
			// tolerate bare LF line endings
			line := data[:i+1]
			if len(line) == 1 {
				buf.Advance(i + 1)
				hdrBuf.Append([]byte{0})
				msg.ParseState = message.ParsePostHeader
				return buffer.Success
			}
			if _, r := hdrBuf.Append(line); r != buffer.Success {
				msg.Result = 431
				return buffer.Reject
			}
			buf.Advance(i + 1)
			return buffer.Success
		}
	}
	buf.Advance(0)
	return buffer.Incomplete
}

// finishHeaders materializes the headers DB and extracts
// Content-Length/Connection/Cookie.
func (p *Parser) finishHeaders(msg *message.Message) {
	msg.BuildHeadersDB(p.cfg.MultiValue)
	if v, ok := msg.Header("Content-Length"); ok {
		n, ok := parseUint(v)
		if ok {
			msg.ContentLength = n
		}
	}
	if v, ok := msg.Header("Connection"); ok {
		if containsFold(v, "Keep-Alive") {
			msg.Keepalive()
		}
		if containsFold(v, "Upgrade") {
			msg.Lock()
		}
	}
	if v, ok := msg.Header("Cookie"); ok {
		scratch := msg.HeadersBuffer()
		off, r := scratch.Append([]byte(v))
		if r == buffer.Success {
			cookieSlice := scratch.Slice(off, len(v))
			cookieStorage := bufferFromBytes(cookieSlice)
			msg.BuildCookiesDB(cookieStorage)
		}
	}
}

// bufferFromBytes wraps a standalone byte slice in a Buffer so
// FillDB's storage-oriented API can run over it without touching the
// headers buffer it was copied from.
func bufferFromBytes(b []byte) *buffer.Buffer {
	buf := buffer.New(len(b)+1, 1)
	buf.Append(b)
	return buf
}

func containsFold(s, substr string) bool {
	ls := len(s)
	lsub := len(substr)
	if lsub == 0 || lsub > ls {
		return false
	}
	for i := 0; i+lsub <= ls; i++ {
		if equalFold(s[i:i+lsub], substr) {
			return true
		}
	}
	return false
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

// choosePreContent routes PRECONTENT to CONTENT, POSTCONTENT, or END.
func (p *Parser) choosePreContent(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	bodied := msg.Method != nil && msg.Method.AllowsBody
	if msg.ContentLength == message.UnsetContentLength {
		if !bodied {
			// GET/HEAD/etc. with no Content-Length is the ordinary
			// no-body case; nothing to drain, keepalive unaffected.
			msg.ParseState = message.ParseEnd
			return buffer.Success
		}
		// A bodied method (POST/PUT/PATCH) with no declared length:
		// spec §4.2 calls for read-until-close semantics, which a
		// non-blocking incremental parser can't honor on its own (no
		// more bytes are coming on a connection this core will keep
		// open). Drain whatever is already buffered into the content
		// buffer instead of discarding it, so those bytes never survive
		// to be misparsed as the next pipelined request line, and flag
		// the request so the connection layer forces the connection
		// closed rather than reusing this socket.
		if data := buf.Unread(); len(data) > 0 {
			if r := msg.AppendContent(data); r != buffer.Success {
				msg.Result = 500
				return buffer.Reject
			}
			buf.Advance(len(data))
		}
		msg.Flags.UndeclaredBody = true
		msg.ParseState = message.ParseEnd
		return buffer.Success
	}
	if msg.ContentLength == 0 {
		msg.ParseState = message.ParseEnd
		return buffer.Success
	}
	ctype, _ := msg.Header("Content-Type")
	if bodied && startsWithFold(ctype, "application/x-www-form-urlencoded") {
		msg.ParseState = message.ParsePostContent
		return buffer.Success
	}
	msg.ParseState = message.ParseContent
	return buffer.Success
}

func startsWithFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return equalFold(s[:len(prefix)], prefix)
}

// parseContent copies up to ContentLength bytes into msg's content
// buffer, leaving any excess (pipelined next request) in buf.
func (p *Parser) parseContent(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	remaining := msg.ContentLength - msg.ContentReceived()
	data := buf.Unread()
	if uint64(len(data)) > remaining {
		data = data[:remaining]
	}
	if len(data) > 0 {
		if r := msg.AppendContent(data); r != buffer.Success {
			msg.Result = 500
			return buffer.Reject
		}
		buf.Advance(len(data))
	}
	if msg.ContentReceived() >= msg.ContentLength {
		msg.ParseState = message.ParseEnd
		return buffer.Success
	}
	return buffer.Incomplete
}

// parsePostContent streams the urlencoded body into the query buffer
// (shared dictionary with the URI query string) until Content-Length is
// reached, then builds the combined query/form DB.
func (p *Parser) parsePostContent(msg *message.Message, buf *buffer.Buffer) buffer.Result {
	remaining := msg.ContentLength - msg.ContentReceived()
	data := buf.Unread()
	if uint64(len(data)) > remaining {
		data = data[:remaining]
	}
	queryBuf := msg.QueryBuffer()
	if len(data) > 0 {
		if !queryBuf.Empty() {
			queryBuf.Append([]byte{'&'})
		}
		if _, r := queryBuf.Append(data); r != buffer.Success {
			msg.Result = 413
			return buffer.Reject
		}
		msg.SetContentReceived(msg.ContentReceived() + uint64(len(data)))
		buf.Advance(len(data))
	}
	if msg.ContentReceived() >= msg.ContentLength {
		msg.BuildQueryDB()
		msg.ParseState = message.ParseEnd
		return buffer.Success
	}
	return buffer.Incomplete
}
