// Package proxyconnect is an optional example connector that tunnels a
// request to a fixed upstream host through a SOCKS5 proxy. It is grounded
// on the teacher's (WhileEndless/go-rawhttp) pkg/transport
// connectViaSOCKS5Proxy, which dials golang.org/x/net/proxy's SOCKS5
// client for outbound connections; here the same dialer serves a
// CONNECT-style forward-proxy connector instead of an outbound
// connection pool. It is not wired into Server by default — a host
// application opts in with AddConnector(connector.PriorityDocument, ...).
package proxyconnect

import (
	"net"
	"time"

	netproxy "golang.org/x/net/proxy"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/errors"
	"oakserve/oakhttpd/pkg/message"
)

// Config names the SOCKS5 proxy and the fixed upstream target every
// matching request is tunneled to.
type Config struct {
	ProxyAddr    string
	Username     string
	Password     string
	UpstreamAddr string
	DialTimeout  time.Duration
}

// Connector builds a connector.Handler that dials Config.UpstreamAddr
// through the SOCKS5 proxy, writes the request line (method, URI, query
// and version, followed by an empty header block) onto the tunnel, and
// copies the upstream's raw response bytes back as the connector's own
// response content. The request's headers and body are not forwarded.
//
// This is deliberately the simplest possible forward-proxy shape: it
// does not re-parse the upstream's response, so callers that need
// header-level control over the proxied response should read
// Response.Content and re-serialize it themselves.
func Connector(cfg Config) func(req, resp *message.Message) buffer.Result {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(req, resp *message.Message) buffer.Result {
		var auth *netproxy.Auth
		if cfg.Username != "" {
			auth = &netproxy.Auth{User: cfg.Username, Password: cfg.Password}
		}
		dialer, err := netproxy.SOCKS5("tcp", cfg.ProxyAddr, auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			resp.Result = 502
			return buffer.Reject
		}
		conn, err := dialer.Dial("tcp", cfg.UpstreamAddr)
		if err != nil {
			dialErr := errors.NewIOError("proxyconnect.dial", cfg.UpstreamAddr, err)
			resp.Result = 502
			resp.AppendContent([]byte(dialErr.Error()))
			return buffer.Reject
		}
		defer conn.Close()

		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			resp.Result = 502
			return buffer.Reject
		}

		if _, err := conn.Write(buildRequestLine(req)); err != nil {
			resp.Result = 502
			return buffer.Reject
		}

		body := make([]byte, 0, 4096)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				body = append(body, buf[:n]...)
			}
			if err != nil {
				break
			}
		}

		resp.Result = 200
		resp.AppendContent(body)
		return buffer.Success
	}
}

func buildRequestLine(req *message.Message) []byte {
	method := "GET"
	if req.Method != nil {
		method = req.Method.Name
	}
	line := method + " " + req.URI()
	if q := req.RawQuery(); q != "" {
		line += "?" + q
	}
	line += " " + req.Version.String() + "\r\n\r\n"
	return []byte(line)
}
