// Package message defines the parsed/constructed HTTP request-or-response
// value the parser populates and the serializer drains. It is grounded on
// the ouistiti libhttpserver _httpmessage.h design: a message carries its
// own URI/headers/content Buffers plus a packed parse/generate state, and
// resolves every header or query lookup through slices into those Buffers
// rather than ad-hoc strings.
package message

import (
	"strconv"
	"strings"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/kvdb"
)

// ParseState is the incremental parser's position in the request grammar.
type ParseState int

const (
	ParseInit ParseState = iota
	ParseURI
	ParseURIFrag
	ParseQuery
	ParseVersion
	ParseStatus
	ParsePreHeader
	ParseHeader
	ParsePostHeader
	ParsePreContent
	ParseContent
	ParsePostContent
	ParseEnd
)

// GenerateState is the serializer's position in the response grammar.
type GenerateState int

const (
	GenerateNone GenerateState = iota
	GenerateInit
	GenerateResult
	GenerateHeader
	GenerateSeparator
	GenerateContent
	GenerateEnd
	GenerateError
)

// Version enumerates the supported HTTP wire versions.
type Version int

const (
	HTTP09 Version = iota
	HTTP10
	HTTP11
)

func (v Version) String() string {
	switch v {
	case HTTP09:
		return "HTTP/0.9"
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return "HTTP/1.1"
	}
}

// Method is an entry in the server-wide method table.
type Method struct {
	Name       string
	ID         int
	AllowsBody bool // whether a request body / Content-Length is expected
}

// Flags carries the auxiliary bits packed alongside parse/generate state
// in the original C message_t's state word.
type Flags struct {
	ParseContinue  bool // parser suspended mid-phase, resume on next call
	KeepAlive      bool // Connection: Keep-Alive was requested/granted
	Locked         bool // socket handed off to a protocol upgrade; core stops touching it
	UndeclaredBody bool // bodied method arrived with no Content-Length; connection must close, never reused
}

// UnsetContentLength is the sentinel distinguishing "no Content-Length
// header" from an explicit "Content-Length: 0".
const UnsetContentLength = ^uint64(0)

// Message represents one HTTP request or response half of a transaction.
type Message struct {
	Result  int // HTTP status code
	Version Version
	Method  *Method

	uriBuf   *buffer.Buffer
	uriLen   int
	queryBuf *buffer.Buffer

	headersBuf *buffer.Buffer
	headersDB  *kvdb.DB
	cookiesDB  *kvdb.DB
	queryDB    *kvdb.DB

	contentBuf      *buffer.Buffer
	ContentLength   uint64 // declared length, UnsetContentLength if absent
	contentReceived uint64
	ContentPacket   int // size of the most recent chunk handed to a handler

	ParseState    ParseState
	GenerateState GenerateState
	Flags         Flags

	// Response is the response half linked to this request, or nil if
	// this Message itself is a response.
	Response *Message

	Connector string // name of the connector that captured this request
	Private   any    // handler-private data pointer

	Next *Message // request-queue link

	// Peer/server identity, filled in by the client/server layers at
	// creation time so REQUEST(key)/SERVER(key) can answer without
	// reaching back into the transport.
	RemoteAddr string
	Scheme     string
	ServerAddr string
	ServerPort int

	// session is the per-client mutable dictionary SESSION(key, val)
	// reads/writes. It outlives a single request (shared across every
	// Message on one Client) but never the connection itself.
	session map[string]string

	// owner is the *client.Client this Message belongs to, stashed as
	// any to avoid message importing client (which imports message). Used
	// by server.ChangeProtocol to reach back into the connection for a
	// protocol-upgrade hand-off.
	owner any

	// scratch accumulates a partial token (version string, header line)
	// across successive Parse calls when a phase straddles two recv()s.
	scratch []byte

	// uriDecoded marks the uriBuf offsets that were written by %XX
	// decoding rather than copied verbatim from the wire, so collapsePath
	// can tell a percent-encoded ".." from a literal one (see spec §8
	// scenario 4: a percent-decoded ".." is rejected outright, never
	// collapsed, because it bypasses the raw-byte traversal check a
	// literal ".." goes through).
	uriDecoded map[int]bool
}

// Scratch returns the parser's cross-call token accumulator.
func (m *Message) Scratch() []byte { return m.scratch }

// AppendScratch grows the scratch token accumulator.
func (m *Message) AppendScratch(b byte) { m.scratch = append(m.scratch, b) }

// ResetScratch clears the scratch token accumulator.
func (m *Message) ResetScratch() { m.scratch = m.scratch[:0] }

// New allocates a Message with Buffers sized per the server's chunk
// configuration (uriChunks/headerChunks/contentChunks, chunkSize).
func New(chunkSize, uriChunks, headerChunks, contentChunks int) *Message {
	return &Message{
		Result:        0,
		Version:       HTTP11,
		uriBuf:        buffer.New(chunkSize, uriChunks),
		queryBuf:      buffer.New(chunkSize, uriChunks),
		headersBuf:    buffer.New(chunkSize, headerChunks),
		contentBuf:    buffer.New(chunkSize, contentChunks),
		ContentLength: UnsetContentLength,
		ParseState:    ParseInit,
		GenerateState: GenerateNone,
	}
}

// URIBuffer exposes the raw URI buffer for the parser.
func (m *Message) URIBuffer() *buffer.Buffer { return m.uriBuf }

// MarkURIByteDecoded records that the byte at offset in the URI buffer
// was produced by %XX decoding rather than copied verbatim.
func (m *Message) MarkURIByteDecoded(offset int) {
	if m.uriDecoded == nil {
		m.uriDecoded = make(map[int]bool)
	}
	m.uriDecoded[offset] = true
}

// URIByteDecoded reports whether the byte at offset in the URI buffer
// arrived via %XX decoding.
func (m *Message) URIByteDecoded(offset int) bool {
	return m.uriDecoded[offset]
}

// QueryBuffer exposes the raw query buffer for the parser.
func (m *Message) QueryBuffer() *buffer.Buffer { return m.queryBuf }

// HeadersBuffer exposes the raw headers-storage buffer for the parser.
func (m *Message) HeadersBuffer() *buffer.Buffer { return m.headersBuf }

// ContentBuffer exposes the raw content buffer for the parser/serializer.
func (m *Message) ContentBuffer() *buffer.Buffer { return m.contentBuf }

// URI returns the decoded request path, excluding query and fragment.
func (m *Message) URI() string {
	return string(m.uriBuf.Get(0))
}

// RawQuery returns the raw query string (before '#').
func (m *Message) RawQuery() string {
	return string(m.queryBuf.Get(0))
}

// BuildHeadersDB materializes the headers dictionary from headersBuf,
// called once the parser reaches PostHeader. multiValue decides which
// header names may repeat (default: Set-Cookie).
func (m *Message) BuildHeadersDB(multiValue kvdb.MultiValueFunc) {
	m.headersDB = kvdb.FillDB(m.headersBuf, ':', '\n', multiValue)
}

// BuildQueryDB materializes the query/form dictionary from queryBuf
// (used both for the URI query string and a POSTed
// application/x-www-form-urlencoded body, per spec §4.2 PRECONTENT ->
// POSTCONTENT).
func (m *Message) BuildQueryDB() {
	m.queryDB = kvdb.FillDB(m.queryBuf, '=', '&', nil)
}

// BuildCookiesDB materializes the cookie dictionary from storage, a
// Buffer holding the raw Cookie header value (the parser passes a
// standalone copy); the entries resolve against that Buffer.
func (m *Message) BuildCookiesDB(storage *buffer.Buffer) {
	m.cookiesDB = kvdb.FillDB(storage, '=', ';', nil)
}

// Header returns the first value for name (case-insensitive), and
// whether it was present.
func (m *Message) Header(name string) (string, bool) {
	if m.headersDB == nil {
		return "", false
	}
	e := m.headersDB.Get(m.headersBuf, name)
	if e == nil {
		return "", false
	}
	return e.ValueString(), true
}

// Headers returns every value for name, in insertion order.
func (m *Message) Headers(name string) []string {
	if m.headersDB == nil {
		return nil
	}
	entries := m.headersDB.GetAll(m.headersBuf, name)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ValueString()
	}
	return out
}

// HeaderEntries exposes the full ordered header list for the serializer.
func (m *Message) HeaderEntries() *kvdb.Entry {
	if m.headersDB == nil {
		return nil
	}
	return m.headersDB.Entries()
}

// Parameter looks up a query-string or form field.
func (m *Message) Parameter(key string) (string, bool) {
	if m.queryDB == nil {
		return "", false
	}
	e := m.queryDB.Get(m.queryBuf, key)
	if e == nil {
		return "", false
	}
	return e.ValueString(), true
}

// Cookie looks up a cookie by name (case-insensitive, ignoring the space
// that follows each ';' in the Cookie header).
func (m *Message) Cookie(key string) (string, bool) {
	if m.cookiesDB == nil {
		return "", false
	}
	for e := m.cookiesDB.Entries(); e != nil; e = e.Next {
		if strings.EqualFold(strings.TrimLeft(e.KeyString(), " "), key) {
			return e.ValueString(), true
		}
	}
	return "", false
}

// AddHeader appends a header; duplicate detection happens only once the
// headers DB is built, so this is safe to call repeatedly during
// serialization of a response.
func (m *Message) AddHeader(key, value string) {
	line := key + ": " + value + "\r\n"
	m.headersBuf.Append([]byte(line))
}

// AddContent appends body bytes and sets Content-Type if ctype != "".
func (m *Message) AddContent(ctype string, data []byte) {
	if ctype != "" {
		m.AddHeader("Content-Type", ctype)
	}
	m.AppendContent(data)
}

// AppendContent streams more body bytes into the content buffer, used by
// a connector that returned CONTINUE to produce a response incrementally.
func (m *Message) AppendContent(data []byte) buffer.Result {
	_, r := m.contentBuf.Append(data)
	if r == buffer.Success {
		m.ContentPacket = len(data)
		m.contentReceived += uint64(len(data))
	}
	return r
}

// Content returns the bytes accumulated so far in the content buffer.
func (m *Message) Content() []byte {
	return m.contentBuf.Get(0)
}

// ContentReceived reports how many content bytes have been read/written
// so far, for comparing against ContentLength.
func (m *Message) ContentReceived() uint64 { return m.contentReceived }

// SetContentReceived lets the parser track partial reads directly against
// the buffer, independent of AppendContent's bookkeeping.
func (m *Message) SetContentReceived(n uint64) { m.contentReceived = n }

// Keepalive marks the message as eligible for connection reuse. The final
// decision is computed by the pure keepalive predicate in pkg/client.
func (m *Message) Keepalive() { m.Flags.KeepAlive = true }

// Lock marks the message LOCKED: the core must not touch the underlying
// socket again after the response is sent. Used by protocol-upgrade
// connectors (WebSocket) via the client's Lock() socket hand-off.
func (m *Message) Lock() { m.Flags.Locked = true }

// SetOwner stashes the owning *client.Client for later retrieval by
// server.ChangeProtocol.
func (m *Message) SetOwner(o any) { m.owner = o }

// Owner returns whatever SetOwner last stored.
func (m *Message) Owner() any { return m.owner }

// SetSession installs the per-client session dictionary this Message's
// SESSION(key, val) calls read and write. The client supervisor shares
// one map across every request/response pair on a connection.
func (m *Message) SetSession(s map[string]string) { m.session = s }

// Session reads a value from the per-client session dictionary.
func (m *Message) Session(key string) (string, bool) {
	if m.session == nil {
		return "", false
	}
	v, ok := m.session[key]
	return v, ok
}

// SetSessionValue writes a value into the per-client session dictionary,
// creating it lazily if the client supervisor hasn't installed one.
func (m *Message) SetSessionValue(key, val string) {
	if m.session == nil {
		m.session = make(map[string]string)
	}
	m.session[key] = val
}

// Request answers the REQUEST(key) virtual dictionary (spec §6): a
// handful of synthetic fields plus a fallback to the header table for
// any other key.
func (m *Message) Request(key string) (string, bool) {
	switch key {
	case "uri":
		return m.URI(), true
	case "query":
		return m.RawQuery(), true
	case "scheme":
		return m.Scheme, true
	case "version":
		return m.Version.String(), true
	case "method":
		if m.Method != nil {
			return m.Method.Name, true
		}
		return "", false
	case "result":
		return strconv.Itoa(m.Result), true
	case "content":
		return string(m.Content()), true
	case "remote_addr", "remote_host":
		return hostOnly(m.RemoteAddr), true
	case "remote_port":
		return portOnly(m.RemoteAddr), true
	default:
		return m.Header(key)
	}
}

// Server answers the SERVER(key) virtual dictionary (spec §6): the
// listening address/port this connection was accepted on.
func (m *Message) Server(key string) (string, bool) {
	switch key {
	case "addr":
		return m.ServerAddr, true
	case "port":
		return strconv.Itoa(m.ServerPort), true
	default:
		return "", false
	}
}

func hostOnly(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

func portOnly(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return ""
}
