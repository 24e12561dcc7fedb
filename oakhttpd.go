// Package oakhttpd is an embeddable HTTP/1.x server library for
// small-footprint network services and embedded devices. It re-exports
// the types a host application needs to create a listener, register
// connectors, and plug transport-layer filters (TLS, WebSocket upgrade)
// that transparently wrap the accepted socket — the teacher's
// (WhileEndless/go-rawhttp) rawhttp.go convention of a thin root package
// that re-exports the working types from its pkg/ subpackages, now built
// around a Server instead of a client Sender.
package oakhttpd

import (
	"oakserve/oakhttpd/pkg/connector"
	"oakserve/oakhttpd/pkg/httpparser"
	"oakserve/oakhttpd/pkg/message"
	"oakserve/oakhttpd/pkg/server"
	"oakserve/oakhttpd/pkg/tlstransport"
	"oakserve/oakhttpd/pkg/transport"
)

// Version is the library's semantic version.
const Version = "1.0.0"

// Re-exported types so callers need only import this package for the
// common path.
type (
	Config    = server.Config
	Logger    = server.Logger
	Server    = server.Server
	Message   = message.Message
	Method    = message.Method
	Handler   = connector.Handler
	OnHeaders = connector.OnHeaders
	Adapter   = transport.Adapter
	TLSConfig = tlstransport.Config
)

// Standard connector priorities (spec §4.5).
const (
	PriorityFilter    = connector.PriorityFilter
	PriorityAuth      = connector.PriorityAuth
	PriorityDocFilter = connector.PriorityDocFilter
	PriorityDocument  = connector.PriorityDocument
	PriorityError     = connector.PriorityError
)

// New constructs a Server from cfg, ready for AddConnector/Run.
func New(cfg Config) *Server {
	return server.New(cfg)
}

// NewTLSTransport builds a transport.Factory suitable for Config.Transport
// that terminates TLS before handing bytes to the HTTP parser (spec
// §4.6's stackable TLS-over-TCP adapter).
func NewTLSTransport(cfg TLSConfig) transport.Factory {
	return tlstransport.NewFactory(cfg)
}

// DefaultMethods returns the stock HTTP method table (GET, HEAD, POST,
// PUT, DELETE, OPTIONS, PATCH).
func DefaultMethods() []*Method {
	return httpparser.DefaultMethods()
}
