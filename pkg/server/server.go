// Package server implements the listening socket, connector registry,
// method table, and Client supervisor described in spec §3 Server. It is
// grounded on the teacher's (WhileEndless/go-rawhttp) top-level
// rawhttp.go re-export idiom — a thin struct wrapping the lower packages
// with a flat Config/normalize step instead of functional options — now
// built around an accept loop instead of an outbound dialer.
package server

import (
	"net"
	"strconv"
	"sync"
	"time"

	"oakserve/oakhttpd/pkg/client"
	"oakserve/oakhttpd/pkg/connector"
	"oakserve/oakhttpd/pkg/constants"
	"oakserve/oakhttpd/pkg/errors"
	"oakserve/oakhttpd/pkg/httpparser"
	"oakserve/oakhttpd/pkg/kvdb"
	"oakserve/oakhttpd/pkg/message"
	"oakserve/oakhttpd/pkg/transport"
)

// Logger is the optional sink for diagnostic messages. The library is
// silent without one — see SPEC_FULL.md's AMBIENT STACK note on why no
// logging library is imported by default.
type Logger interface {
	Printf(format string, args ...any)
}

// Config is the server's flat configuration struct, normalized by
// applying documented defaults rather than via functional options.
type Config struct {
	Addr string
	Port int

	MaxClients       int
	ChunkSize        int
	MaxChunksURI     int
	MaxChunksHeader  int
	MaxChunksContent int
	MaxChunksSession int

	MaxVersion       message.Version
	KeepaliveTimeout time.Duration
	AllowKeepalive   bool

	// Methods overrides the default method table.
	Methods []*message.Method

	// MultiValueHeaders is the configurable allow-list resolving the
	// spec's §9 open question (b): which header names may repeat.
	// Defaults to {"Set-Cookie": true}.
	MultiValueHeaders map[string]bool

	// Transport selects the accept-side adapter factory; defaults to
	// plain TCP. Pass tlstransport.NewFactory(...) for HTTPS.
	Transport transport.Factory

	Logger Logger
}

func (c *Config) normalize() {
	if c.Addr == "" {
		c.Addr = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MaxClients <= 0 {
		c.MaxClients = constants.DefaultMaxClients
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = constants.DefaultChunkSize
	}
	if c.MaxChunksURI <= 0 {
		c.MaxChunksURI = constants.MaxChunksURI
	}
	if c.MaxChunksHeader <= 0 {
		c.MaxChunksHeader = constants.MaxChunksHeader
	}
	if c.MaxChunksContent <= 0 {
		c.MaxChunksContent = constants.MaxChunksContent
	}
	if c.MaxChunksSession <= 0 {
		c.MaxChunksSession = constants.MaxChunksSession
	}
	// MaxVersion's zero value coincides with HTTP09; since almost no
	// caller wants a server pinned to HTTP/0.9, treat unset as HTTP/1.1.
	// A caller that genuinely wants to cap at HTTP/0.9 has no way to
	// express that through this field's zero value — left as a known
	// limitation rather than adding a pointer/sentinel for a corner case
	// no connector in this tree exercises.
	if c.MaxVersion == message.HTTP09 {
		c.MaxVersion = message.HTTP11
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = constants.DefaultKeepaliveSeconds
	}
	if c.MultiValueHeaders == nil {
		c.MultiValueHeaders = map[string]bool{"Set-Cookie": true}
	}
	if c.Transport == nil {
		c.Transport = transport.NewTCPFactory()
	}
}

func (c *Config) multiValueFunc() kvdb.MultiValueFunc {
	return func(key string) bool {
		for k, v := range c.MultiValueHeaders {
			if v && equalFold(k, key) {
				return true
			}
		}
		return false
	}
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

// Server owns the listening socket, the connector registry, the method
// table, and the set of live clients.
type Server struct {
	cfg      Config
	parser   *httpparser.Parser
	registry *connector.Registry

	listener net.Listener

	mu      sync.Mutex
	clients map[*client.Client]struct{}
	stop    chan struct{}
	running bool
}

// New constructs a Server. Call AddConnector/AddMethod/AddOnHeaders
// before Run; the registry and method table are read-only once clients
// start (spec §5 "shared resources").
func New(cfg Config) *Server {
	cfg.normalize()
	return &Server{
		cfg:      cfg,
		registry: connector.NewRegistry(),
		clients:  make(map[*client.Client]struct{}),
		stop:     make(chan struct{}),
	}
}

// AddConnector registers a handler at the given priority (spec §4.5).
func (s *Server) AddConnector(priority int, name string, handler connector.Handler) {
	s.registry.Add(priority, name, handler)
}

// AddOnHeaders registers a header-completion callback.
func (s *Server) AddOnHeaders(fn connector.OnHeaders) {
	s.registry.AddOnHeaders(fn)
}

// AddMethod extends the method table with a custom HTTP method.
func (s *Server) AddMethod(name string, allowsBody bool) {
	s.cfg.Methods = append(s.cfg.Methods, &message.Method{
		Name:       name,
		ID:         len(s.cfg.Methods),
		AllowsBody: allowsBody,
	})
}

func (s *Server) buildParser() {
	methods := s.cfg.Methods
	if methods == nil {
		methods = httpparser.DefaultMethods()
	}
	s.parser = httpparser.New(httpparser.Config{
		Methods:      methods,
		MultiValue:   s.cfg.multiValueFunc(),
		MaxURIChunks: s.cfg.MaxChunksURI,
		MaxHdrChunks: s.cfg.MaxChunksHeader,
	})
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

// Run opens the listening socket and accepts connections until
// Shutdown is called; it returns an error only if the socket cannot be
// opened, and any other Accept error is logged and accepting continues.
// Each accepted connection
// spawns a goroutine driven by client.GoroutineDriver, the default
// thread-per-client scheduling model (spec §5).
func (s *Server) Run() error {
	s.buildParser()

	addr := net.JoinHostPort(s.cfg.Addr, portString(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewIOError("listen", addr, err)
	}
	s.listener = ln

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.dateHeaderHook() // built-in Date-header connector hook (mod_date.c analogue)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				s.logf("accept error: %v", err)
				continue
			}
		}
		if s.atCapacity() {
			_ = conn.Close()
			continue
		}
		go s.serve(conn)
	}
}

func (s *Server) atCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients) >= s.cfg.MaxClients
}

func (s *Server) serve(conn net.Conn) {
	adapter := s.cfg.Transport()
	if err := adapter.Create(conn); err != nil {
		_ = conn.Close()
		return
	}

	cc := client.Config{
		ChunkSize:        s.cfg.ChunkSize,
		MaxChunksURI:     s.cfg.MaxChunksURI,
		MaxChunksHeader:  s.cfg.MaxChunksHeader,
		MaxChunksContent: s.cfg.MaxChunksContent,
		MaxChunksSession: s.cfg.MaxChunksSession,
		KeepaliveTimeout: s.cfg.KeepaliveTimeout,
		MaxVersion:       s.cfg.MaxVersion,
		AllowKeepalive:   s.cfg.AllowKeepalive,
	}
	var logf func(string, ...any)
	if s.cfg.Logger != nil {
		logf = s.cfg.Logger.Printf
	}
	c := client.New(adapter, s.registry, s.parser, cc, conn.RemoteAddr().String(), logf)
	c.ServerAddr = s.cfg.Addr
	c.ServerPort = s.cfg.Port

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	(client.GoroutineDriver{}).Run(c, s.cfg.KeepaliveTimeout, s.stop)
}

// Shutdown sets the run flag false, causing Accept to stop; already
// running clients finish their current request then drain (spec §5
// Cancellation).
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.running {
		close(s.stop)
		s.running = false
	}
	s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// ChangeProtocol hands the connection's adapter off to run, per spec
// §6's changeProtocol(adapter, config): a connector (e.g. a
// WebSocket-upgrade handler) calls it while building the response that
// seals the HTTP exchange, then returns SUCCESS. req/resp are marked
// LOCKED, matching client.Client.Lock's contract, so the core sends that
// response and then never touches the socket again. run starts at once on
// its own goroutine and owns the adapter from then on, while the core is
// still to send the pending response. Reports false if req wasn't
// produced by a client.Client (e.g. a synthetic Message built outside the
// server).
func ChangeProtocol(req, resp *message.Message, run func(transport.Adapter)) bool {
	c, ok := req.Owner().(*client.Client)
	if !ok {
		return false
	}
	adapter := c.Lock(req, resp)
	go run(adapter)
	return true
}

// dateHeaderHook wires the built-in Date-header injection, grounded on
// ouistiti's mod_date.c — the only synthetic-header module the core
// itself carries, per SPEC_FULL.md's supplemented-features section.
func (s *Server) dateHeaderHook() {
	s.registry.AddOnHeaders(func(resp *message.Message) {
		resp.AddHeader("Date", time.Now().UTC().Format(http1123))
	})
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

func portString(p int) string {
	return strconv.Itoa(p)
}
