// Package client implements the per-connection request/response state
// machine: NEW|READING|WAITING|SENDING|EXIT|DEAD (spec §4.4). It is
// grounded on the teacher's (WhileEndless/go-rawhttp) pkg/client request
// driver idiom — incremental reads into a bounded buffer, a status-line/
// headers/body read loop — generalized from a one-shot client dial into a
// keep-alive-aware server connection that owns a FIFO queue of pending
// request/response pairs and drives them through the shared parser,
// connector registry, and serializer.
//
// The driver loop is expressed as a single Step method returning a
// StepOutcome, per spec §9's "thread models -> one interface" design
// note; GoroutineDriver/PoolDriver/SequentialDriver in driver.go adapt
// that single method to each pluggable scheduling model.
package client

import (
	"time"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/connector"
	"oakserve/oakhttpd/pkg/httpparser"
	"oakserve/oakhttpd/pkg/message"
	"oakserve/oakhttpd/pkg/timing"
	"oakserve/oakhttpd/pkg/transport"
)

// State is the client's machine state (spec §3 Client).
type State int

const (
	StateNew State = iota
	StateReading
	StateWaiting
	StateSending
	StateExit
	StateDead
)

// StepOutcome tells the driver what to do before calling Step again.
type StepOutcome int

const (
	// Yield means call Step again immediately; work remains to do without
	// blocking (e.g. more buffered bytes to parse).
	Yield StepOutcome = iota
	// NeedReadable means block/poll until the adapter is readable, then
	// call Step again.
	NeedReadable
	// NeedWritable means block/poll until the adapter is writable.
	NeedWritable
	// Dead means the client has reached DEAD; the driver should stop
	// calling Step and release its slot.
	Dead
)

// Config is the per-client slice of server.Config needed to size Buffers
// and compute the keepalive predicate.
type Config struct {
	ChunkSize        int
	MaxChunksURI     int
	MaxChunksHeader  int
	MaxChunksContent int
	MaxChunksSession int
	MaxRecvChunks    int
	KeepaliveTimeout time.Duration
	MaxVersion       message.Version
	AllowKeepalive   bool
}

// pending is one FIFO entry: a request and the response being built for
// it, plus bookkeeping for connector re-entry.
type pending struct {
	req           *message.Message
	resp          *message.Message
	connectorName string
	dispatched    bool
	headersBuilt  bool
	next          *pending
}

// Client owns one accepted connection and drives it to completion.
type Client struct {
	adapter    transport.Adapter
	recvBuf    *buffer.Buffer
	parser     *httpparser.Parser
	serializer *httpparser.Serializer
	registry   *connector.Registry
	cfg        Config

	state State

	curReq            *message.Message
	queueHead         *pending
	queueTail         *pending
	queueLen          int

	PeerAddr   string
	ServerAddr string
	ServerPort int
	Timer      *timing.Timer

	// session backs SESSION(key, val): shared by every request/response
	// pair processed on this connection, discarded with the Client.
	session map[string]string

	// locked records whether a protocol-upgrade connector took ownership
	// of the adapter via Lock, so cleanup leaves it alone.
	locked bool

	errorf func(format string, args ...any) // optional logger, may be nil
}

// New constructs a Client around an already-Create'd adapter.
func New(adapter transport.Adapter, registry *connector.Registry, parser *httpparser.Parser, cfg Config, peerAddr string, logf func(string, ...any)) *Client {
	recvChunks := cfg.MaxRecvChunks
	if recvChunks <= 0 {
		recvChunks = cfg.MaxChunksURI + cfg.MaxChunksHeader + cfg.MaxChunksContent
	}
	return &Client{
		adapter:    adapter,
		recvBuf:    buffer.New(cfg.ChunkSize, recvChunks),
		parser:     parser,
		serializer: httpparser.NewSerializer(),
		registry:   registry,
		cfg:        cfg,
		state:      StateNew,
		PeerAddr:   peerAddr,
		Timer:      timing.NewTimer(),
		session:    make(map[string]string),
		errorf:     logf,
	}
}

// identify stamps a freshly created request/response pair with the
// connection's peer/server identity and shares this client's session
// dictionary, so REQUEST/SERVER/SESSION resolve without reaching back
// into the client from a connector.
func (c *Client) identify(req, resp *message.Message) {
	scheme := "http"
	if c.adapter != nil {
		scheme = c.adapter.Scheme()
	}
	for _, m := range []*message.Message{req, resp} {
		m.RemoteAddr = c.PeerAddr
		m.Scheme = scheme
		m.ServerAddr = c.ServerAddr
		m.ServerPort = c.ServerPort
		m.SetSession(c.session)
		m.SetOwner(c)
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.errorf != nil {
		c.errorf(format, args...)
	}
}

// State returns the client's current machine state.
func (c *Client) State() State { return c.state }

// Step advances the client machine by one tick, matching spec §4.4's
// five-step run() description: wait/observe, recv, parse+queue,
// drive-response, decide-keepalive.
func (c *Client) Step(waitTimeout time.Duration) StepOutcome {
	switch c.state {
	case StateNew:
		c.state = StateReading
		return c.stepReading(waitTimeout)
	case StateReading:
		return c.stepReading(waitTimeout)
	case StateWaiting:
		return c.stepReading(waitTimeout)
	case StateSending:
		return c.stepDrive()
	case StateExit:
		c.cleanup()
		c.state = StateDead
		return Dead
	case StateDead:
		return Dead
	}
	return Dead
}

// stepReading implements steps 1-3: wait for readable, recv, parse and
// enqueue, then falls into driving the response queue.
func (c *Client) stepReading(waitTimeout time.Duration) StepOutcome {
	// If we already have unparsed bytes buffered, try the parser before
	// touching the socket again (pipelined requests, or a parse that
	// stopped mid-phase on a prior tick).
	if c.recvBuf.Cursor() < c.recvBuf.Len() {
		if outcome, handled := c.tryParse(); handled {
			return outcome
		}
	}

	c.Timer.StartAccept()
	waitRes := c.adapter.Wait(transport.WaitReadable, waitTimeout)
	c.Timer.EndAccept()
	if waitRes == buffer.Reject {
		c.state = StateExit
		return Yield
	}

	n, recvRes := c.adapter.Recv(c.recvBuf)
	switch recvRes {
	case buffer.Reject:
		c.state = StateExit
		return Yield
	case buffer.Incomplete:
		c.state = StateWaiting
		return NeedReadable
	case buffer.Space:
		// receive buffer is full but unparsed — the current phase
		// overflowed its chunk bound; let the parser surface the 4xx.
	}
	if n == 0 && recvRes == buffer.Success {
		c.state = StateWaiting
		return NeedReadable
	}

	if outcome, handled := c.tryParse(); handled {
		return outcome
	}
	c.state = StateWaiting
	return NeedReadable
}

// tryParse runs the parser over buffered bytes for the current (or a
// freshly created) request, queues it on completion or rejection, then
// hands off to stepDrive. handled is false only when there is genuinely
// nothing actionable yet (need more bytes, no response ready to drive).
func (c *Client) tryParse() (StepOutcome, bool) {
	if c.curReq == nil {
		c.curReq = message.New(c.cfg.ChunkSize, c.cfg.MaxChunksURI, c.cfg.MaxChunksHeader, c.cfg.MaxChunksContent)
	}
	c.Timer.StartParse()
	res := c.parser.Parse(c.curReq, c.recvBuf)
	c.Timer.EndParse()

	switch res {
	case buffer.Success:
		resp := message.New(c.cfg.ChunkSize, c.cfg.MaxChunksURI, c.cfg.MaxChunksHeader, c.cfg.MaxChunksContent)
		resp.Version = minVersion(c.curReq.Version, c.cfg.MaxVersion)
		c.identify(c.curReq, resp)
		c.enqueue(c.curReq, resp)
		c.curReq = nil
		c.state = StateSending
		return c.stepDrive(), true
	case buffer.Reject:
		resp := message.New(c.cfg.ChunkSize, c.cfg.MaxChunksURI, c.cfg.MaxChunksHeader, c.cfg.MaxChunksContent)
		resp.Result = c.curReq.Result
		if resp.Result == 0 {
			resp.Result = 400
		}
		resp.Version = minVersion(c.curReq.Version, c.cfg.MaxVersion)
		buildErrorBody(resp)
		c.identify(c.curReq, resp)
		p := c.enqueue(c.curReq, resp)
		p.dispatched = true
		p.connectorName = "<error>"
		c.curReq = nil
		c.state = StateSending
		return c.stepDrive(), true
	default: // Continue / Incomplete: need more bytes
		return Yield, c.queueHead != nil
	}
}

func minVersion(a, b message.Version) message.Version {
	if a < b {
		return a
	}
	return b
}

func (c *Client) enqueue(req, resp *message.Message) *pending {
	p := &pending{req: req, resp: resp}
	req.Response = resp
	if c.queueTail == nil {
		c.queueHead = p
		c.queueTail = p
	} else {
		c.queueTail.next = p
		c.queueTail = p
	}
	c.queueLen++
	return p
}

// buildErrorBody fills a rejected response with the plain-text status
// body the spec's error-handling design mandates: status string + CRLF,
// Content-Type text/plain, no stack traces.
func buildErrorBody(resp *message.Message) {
	body := httpparser.StatusText(resp.Result) + "\r\n"
	resp.AddContent("text/plain", []byte(body))
}

// stepDrive implements step 4-5: dispatch the FIFO head through
// connectors (honoring strict FIFO — the next request's response is
// never generated before the head reaches END), drive the response
// serializer, send bytes, and decide keepalive once END is reached.
func (c *Client) stepDrive() StepOutcome {
	if c.queueHead == nil {
		c.state = StateReading
		return Yield
	}
	head := c.queueHead

	if !head.dispatched && head.connectorName == "" {
		c.Timer.StartDispatch()
		result, name, matched := c.registry.Dispatch(head.req, head.resp, "")
		c.Timer.EndDispatch()
		if !matched {
			head.resp.Result = 404
			buildErrorBody(head.resp)
			head.dispatched = true
			head.connectorName = "<error>"
		} else {
			head.connectorName = name
			head.dispatched = result == buffer.Success
			// Continue/Incomplete: remember the connector so Resume can
			// re-enter it on a later tick instead of re-running Dispatch.
		}
	} else if head.connectorName != "" && head.connectorName != "<error>" && head.resp.GenerateState < message.GenerateContent {
		// Re-enter a connector that previously returned
		// Continue/Incomplete so it can stream more content.
		c.Timer.StartDispatch()
		result, _ := c.registry.Resume(head.connectorName, head.req, head.resp)
		c.Timer.EndDispatch()
		if result == buffer.Success {
			head.dispatched = true
		}
	}

	return c.stepSerialize(head)
}

// stepSerialize advances the response through RESULT -> HEADER ->
// SEPARATOR -> CONTENT -> END, sending bytes as they become available,
// and finalizes keepalive once END is reached.
func (c *Client) stepSerialize(head *pending) StepOutcome {
	resp := head.resp

	switch resp.GenerateState {
	case message.GenerateNone, message.GenerateInit:
		c.serializer.BuildResult(resp)
		fallthrough
	case message.GenerateResult:
		if resp.GenerateState == message.GenerateResult {
			keepalive := c.computeKeepalive(head)
			contentLen := int64(-1)
			if resp.GenerateState != message.GenerateEnd {
				contentLen = int64(len(resp.Content()))
			}
			_, hasCL := resp.Header("Content-Length")
			c.serializer.BuildHeader(resp, keepalive, contentLen, hasCL)
		}
		fallthrough
	case message.GenerateHeader:
		if resp.GenerateState == message.GenerateHeader {
			c.registry.RunOnHeaders(resp)
			c.serializer.BuildSeparator(resp)
		}
	}

	if !head.dispatched && resp.GenerateState < message.GenerateSeparator {
		// still waiting on the connector; nothing to send yet this tick
		c.state = StateSending
		return Yield
	}

	out := make([]byte, 4096)
	for {
		n, done := c.serializer.Drain(resp, out)
		if n > 0 {
			c.Timer.StartSend()
			_, sendRes := c.adapter.Send(out[:n])
			c.Timer.EndSend()
			if sendRes == buffer.Reject {
				c.state = StateExit
				return Yield
			}
			if sendRes == buffer.Incomplete {
				c.state = StateSending
				return NeedWritable
			}
		}
		if done {
			if !head.dispatched {
				c.state = StateSending
				return Yield
			}
			c.serializer.Finish(resp)
			return c.finishHead(head)
		}
		if n == 0 {
			c.state = StateSending
			return Yield
		}
	}
}

// finishHead pops the completed head, decides whether to keep the
// connection alive, and reclaims buffer space.
func (c *Client) finishHead(head *pending) StepOutcome {
	c.queueHead = head.next
	if c.queueHead == nil {
		c.queueTail = nil
	}
	c.queueLen--

	if head.req.Flags.Locked {
		// Protocol upgrade: the adapter now belongs to whatever Lock's
		// caller is driving it; cleanup must not Disconnect/Destroy out
		// from under that goroutine.
		c.locked = true
		c.state = StateExit
		return Yield
	}

	if !c.keepaliveDecision(head) {
		c.state = StateExit
		return Yield
	}

	c.recvBuf.Shrink()
	if c.queueHead != nil {
		c.state = StateSending
		return Yield
	}
	c.state = StateReading
	return Yield
}

// computeKeepalive is the pure predicate from spec §9 "KEEPALIVE
// computation": a function of server config, request flags, and response
// state, evaluated once header generation needs to decide the Connection
// header value.
func (c *Client) computeKeepalive(head *pending) bool {
	if !c.cfg.AllowKeepalive {
		return false
	}
	if !head.req.Flags.KeepAlive {
		return false
	}
	if head.req.Flags.UndeclaredBody {
		return false
	}
	if head.resp.Version < message.HTTP11 {
		return false
	}
	if head.req.Flags.Locked {
		return false
	}
	if head.resp.Result == 101 {
		return false
	}
	if head.resp.Result >= 400 {
		return false
	}
	return true
}

// keepaliveDecision re-checks the predicate once the response is fully
// known (Content-Length present), matching P5: no second keep-alive cycle
// for >=400 or missing Content-Length.
func (c *Client) keepaliveDecision(head *pending) bool {
	if !c.computeKeepalive(head) {
		return false
	}
	if _, ok := head.resp.Header("Content-Length"); !ok {
		return false
	}
	return true
}

// cleanup releases the adapter exclusively owned by this client, in a
// single sink function (spec §3 Client "Lifecycle"). A locked client has
// already handed the adapter to a protocol-upgrade handler, which owns
// its Disconnect/Destroy from here on.
func (c *Client) cleanup() {
	if c.locked {
		return
	}
	_ = c.adapter.Disconnect()
	_ = c.adapter.Destroy()
}

// Lock hands the raw connection off to a protocol-upgrade connector
// (e.g. WebSocket) and marks the request/response pair LOCKED, so the
// core never calls Recv/Send on the adapter again once the response
// finishes sending. The caller receives the adapter to drive directly.
func (c *Client) Lock(req, resp *message.Message) transport.Adapter {
	req.Lock()
	resp.Lock()
	return c.adapter
}
