// Package transport defines the pluggable Transport Adapter capability
// set that lets a stream cipher (TLS) or framing layer interpose between
// a raw socket and the HTTP parser without the parser knowing. It is
// grounded on the teacher's (WhileEndless/go-rawhttp) pkg/transport —
// kept here is the same error-wrapping via pkg/errors and the same
// struct-based connection-metadata idiom — but the dial-a-remote-host
// connection pool is replaced with the server's accept-side adapter
// interface, per the ouistiti httpserver.c "ops" table (create, connect,
// recv, send, wait, status, flush, disconnect, destroy, scheme,
// default_port).
package transport

import (
	"context"
	"net"
	"time"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/errors"
)

// WaitFlags selects which readiness conditions Wait should block for.
type WaitFlags int

const (
	WaitReadable WaitFlags = 1 << iota
	WaitWritable
)

// Status reports a non-blocking readiness probe.
type Status struct {
	Readable bool
	Writable bool
	Closed   bool
}

// Adapter is the capability set every transport (TCP, TLS, ...)
// implements. Adapters may stack: a TLS adapter holds another Adapter
// instance (usually TCP) and delegates Wait/Status to it.
type Adapter interface {
	// Create wraps an already-accepted net.Conn for server-mode use.
	Create(conn net.Conn) error

	// Connect dials a remote endpoint for client-mode use (e.g. an
	// optional forward-proxy connector tunneling a request upstream).
	Connect(ctx context.Context, network, addr string) error

	// Recv fills buf with newly available bytes. Returns the byte count
	// and Success, or Incomplete if the adapter would block, or Reject
	// on a fatal error/EOF.
	Recv(buf *buffer.Buffer) (int, buffer.Result)

	// Send writes data to the wire. Returns the byte count written and
	// Success/Incomplete/Reject as Recv does.
	Send(data []byte) (int, buffer.Result)

	// Wait bounds how long the next Recv/Send for the requested flags may
	// block, by arming the connection's read/write deadline to timeout;
	// a timeout <= 0 arms nothing and leaves any earlier deadline in
	// place. It does not block itself. Returns Reject if the connection is
	// closed or was never created.
	Wait(flags WaitFlags, timeout time.Duration) buffer.Result

	// Status performs a non-blocking readiness probe.
	Status() Status

	// Flush forces any adapter-internal buffering to the wire
	// (TCP_NODELAY-equivalent push).
	Flush() error

	// Disconnect initiates an orderly close.
	Disconnect() error

	// Destroy frees adapter state. Idempotent.
	Destroy() error

	// Scheme identifies the adapter for client-mode URL construction.
	Scheme() string

	// DefaultPort is the scheme's conventional port.
	DefaultPort() int
}

// Factory constructs a fresh, unconnected Adapter instance — the server
// calls this once per accepted connection (and the optional client path
// calls it once per outbound dial).
type Factory func() Adapter

// TCPAdapter is the leaf adapter: a plain net.Conn, no framing or
// encryption layered on top.
type TCPAdapter struct {
	conn   net.Conn
	closed bool
}

// NewTCPFactory returns a Factory producing TCPAdapter instances.
func NewTCPFactory() Factory {
	return func() Adapter { return &TCPAdapter{} }
}

func (a *TCPAdapter) Create(conn net.Conn) error {
	a.conn = conn
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return nil
}

func (a *TCPAdapter) Connect(ctx context.Context, network, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return errors.NewIOError("dial", addr, err)
	}
	return a.Create(conn)
}

func (a *TCPAdapter) Recv(buf *buffer.Buffer) (int, buffer.Result) {
	if a.conn == nil || a.closed {
		return 0, buffer.Reject
	}
	scratch := make([]byte, 4096)
	n, err := a.conn.Read(scratch)
	if n > 0 {
		if _, r := buf.Append(scratch[:n]); r != buffer.Success {
			return n, buffer.Space
		}
	}
	if err != nil {
		if isTimeout(err) {
			return n, buffer.Incomplete
		}
		return n, buffer.Reject
	}
	return n, buffer.Success
}

func (a *TCPAdapter) Send(data []byte) (int, buffer.Result) {
	if a.conn == nil || a.closed {
		return 0, buffer.Reject
	}
	n, err := a.conn.Write(data)
	if err != nil {
		if isTimeout(err) {
			return n, buffer.Incomplete
		}
		return n, buffer.Reject
	}
	return n, buffer.Success
}

func (a *TCPAdapter) Wait(flags WaitFlags, timeout time.Duration) buffer.Result {
	if a.conn == nil || a.closed {
		return buffer.Reject
	}
	if timeout <= 0 {
		return buffer.Success
	}
	deadline := time.Now().Add(timeout)
	if flags&WaitReadable != 0 {
		_ = a.conn.SetReadDeadline(deadline)
	}
	if flags&WaitWritable != 0 {
		_ = a.conn.SetWriteDeadline(deadline)
	}
	return buffer.Success
}

func (a *TCPAdapter) Status() Status {
	if a.conn == nil || a.closed {
		return Status{Closed: true}
	}
	return Status{Readable: true, Writable: true}
}

func (a *TCPAdapter) Flush() error { return nil }

func (a *TCPAdapter) Disconnect() error {
	if a.conn == nil || a.closed {
		return nil
	}
	if tc, ok := a.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return nil
}

func (a *TCPAdapter) Destroy() error {
	if a.conn == nil || a.closed {
		return nil
	}
	a.closed = true
	return a.conn.Close()
}

func (a *TCPAdapter) Scheme() string   { return "http" }
func (a *TCPAdapter) DefaultPort() int { return 80 }

// Conn exposes the underlying net.Conn.
func (a *TCPAdapter) Conn() net.Conn { return a.conn }

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
