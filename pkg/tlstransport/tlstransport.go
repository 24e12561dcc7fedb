// Package tlstransport implements the TLS transport adapter: it wraps
// another transport.Adapter (ordinarily the plain TCP one) and performs
// the handshake lazily on first Recv, translating crypto/tls's blocking
// model into the adapter's Recv/Send/Wait contract. Grounded on the
// spec's §4.6 description of stackable adapters and on the teacher's
// (WhileEndless/go-rawhttp) pkg/tlsconfig version/cipher-suite helpers,
// reused here nearly verbatim but now applied to the server's accept-side
// handshake instead of a client dial.
package tlstransport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/errors"
	"oakserve/oakhttpd/pkg/tlsconfig"
	"oakserve/oakhttpd/pkg/transport"
)

// Config controls the TLS adapter's handshake behavior.
type Config struct {
	// Certificates is the server certificate chain(s) offered to clients.
	Certificates []tls.Certificate

	// Profile selects the version range; defaults to tlsconfig.ProfileSecure.
	Profile tlsconfig.VersionProfile

	// ClientAuth enables and configures mutual TLS, left nil to disable it.
	ClientAuth *tls.Config
}

// Adapter is the TLS transport adapter. It holds the inner (usually TCP)
// adapter and delegates Wait/Status to it, translating TLS handshake and
// record-layer errors into the shared buffer.Result vocabulary.
type Adapter struct {
	inner *transport.TCPAdapter
	cfg   Config
	conn  *tls.Conn

	handshakeDone bool
}

// NewFactory returns a transport.Factory producing TLS adapters stacked
// over a fresh TCPAdapter, per cfg.
func NewFactory(cfg Config) transport.Factory {
	if cfg.Profile == (tlsconfig.VersionProfile{}) {
		cfg.Profile = tlsconfig.ProfileSecure
	}
	return func() transport.Adapter {
		return &Adapter{inner: &transport.TCPAdapter{}, cfg: cfg}
	}
}

func (a *Adapter) Create(conn net.Conn) error {
	if err := a.inner.Create(conn); err != nil {
		return err
	}
	tlsCfg := &tls.Config{Certificates: a.cfg.Certificates}
	tlsconfig.ApplyVersionProfile(tlsCfg, a.cfg.Profile)
	tlsconfig.ApplyCipherSuites(tlsCfg, a.cfg.Profile.Min)
	if a.cfg.ClientAuth != nil {
		tlsCfg.ClientAuth = a.cfg.ClientAuth.ClientAuth
		tlsCfg.ClientCAs = a.cfg.ClientAuth.ClientCAs
	}
	a.conn = tls.Server(conn, tlsCfg)
	return nil
}

func (a *Adapter) Connect(ctx context.Context, network, addr string) error {
	// TLS client-mode dialing has no consumer in this server-focused
	// module (the optional forward-proxy connector tunnels raw TCP, not
	// TLS-terminated traffic); Connect is implemented only to satisfy
	// transport.Adapter.
	return errors.NewValidationError("tlstransport: client-mode Connect is not implemented")
}

func (a *Adapter) ensureHandshake() buffer.Result {
	if a.handshakeDone {
		return buffer.Success
	}
	if err := a.conn.Handshake(); err != nil {
		if isTimeout(err) {
			return buffer.Incomplete
		}
		return buffer.Reject
	}
	a.handshakeDone = true
	return buffer.Success
}

func (a *Adapter) Recv(buf *buffer.Buffer) (int, buffer.Result) {
	if r := a.ensureHandshake(); r != buffer.Success {
		return 0, r
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

func (a *Adapter) Send(data []byte) (int, buffer.Result) {
	if r := a.ensureHandshake(); r != buffer.Success {
		return 0, r
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

func (a *Adapter) Wait(flags transport.WaitFlags, timeout time.Duration) buffer.Result {
	return a.inner.Wait(flags, timeout)
}

func (a *Adapter) Status() transport.Status {
	return a.inner.Status()
}

func (a *Adapter) Flush() error { return a.inner.Flush() }

func (a *Adapter) Disconnect() error {
	if a.conn != nil {
		_ = a.conn.CloseWrite()
	}
	return nil
}

func (a *Adapter) Destroy() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return a.inner.Destroy()
}

func (a *Adapter) Scheme() string   { return "https" }
func (a *Adapter) DefaultPort() int { return 443 }

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
