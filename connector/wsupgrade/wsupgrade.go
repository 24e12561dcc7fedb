// Package wsupgrade is an example connector demonstrating spec §8
// scenario 6: a GET request carrying Upgrade: websocket completes the
// RFC 6455 handshake, then hands the raw socket to pkg/websocket's
// frame reader/writer via server.ChangeProtocol. It is grounded on the
// teacher's (WhileEndless/go-rawhttp) protocol-upgrade idiom of locking
// the connection and handing the adapter to a dedicated loop, generalized
// from its HTTP/2 upgrade path to a WebSocket one.
package wsupgrade

import (
	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/errors"
	"oakserve/oakhttpd/pkg/message"
	"oakserve/oakhttpd/pkg/server"
	"oakserve/oakhttpd/pkg/transport"
	"oakserve/oakhttpd/pkg/websocket"
)

// Handler is called once per accepted frame with its opcode and payload.
// Returning an error closes the connection.
type Handler func(opcode websocket.Opcode, payload []byte) error

// Connector builds a connector.Handler that upgrades any request whose
// Upgrade header says "websocket", and otherwise rejects so the next
// connector in priority order gets a chance. onFrame is invoked from the
// dedicated goroutine server.ChangeProtocol spawns — never from the
// connector call itself. logger may be nil; the frame loop has already
// handed the socket off by the time it can fail, so errors there have
// nowhere to go but a log sink.
func Connector(onFrame Handler, logger server.Logger) func(req, resp *message.Message) buffer.Result {
	return func(req, resp *message.Message) buffer.Result {
		upgrade, ok := req.Header("Upgrade")
		if !ok || !equalFold(upgrade, "websocket") {
			return buffer.Reject
		}
		key, ok := req.Header("Sec-WebSocket-Key")
		if !ok {
			resp.Result = 400
			return buffer.Reject
		}

		resp.Result = 101
		resp.AddHeader("Upgrade", "websocket")
		resp.AddHeader("Connection", "Upgrade")
		resp.AddHeader("Sec-WebSocket-Accept", websocket.AcceptKey(key))

		ok = server.ChangeProtocol(req, resp, func(adapter transport.Adapter) {
			runLoop(adapter, onFrame, logger)
		})
		if !ok {
			resp.Result = 500
			return buffer.Reject
		}
		return buffer.Success
	}
}

// runLoop owns the adapter from the moment server.ChangeProtocol starts
// it, which is before the core has sent the 101 response: it reads raw
// bytes, lets pkg/websocket carve out complete frames, and dispatches
// each to onFrame until a close frame, an error, or EOF.
func runLoop(adapter transport.Adapter, onFrame Handler, logger server.Logger) {
	defer adapter.Destroy()

	recv := buffer.New(4096, 8)
	var leftover []byte
	for {
		if _, r := adapter.Recv(recv); r != buffer.Success {
			return
		}
		chunk := append(leftover, recv.Get(0)...)
		recv.Reset(0)

		frames, rest, err := websocket.ParseFrames(chunk)
		leftover = rest
		if err != nil {
			if logger != nil {
				frameErr := errors.NewParseError("wsupgrade.frame", 400, err.Error())
				logger.Printf("%v", frameErr)
			}
			return
		}
		for _, f := range frames {
			switch f.Opcode {
			case websocket.OpClose:
				_, _ = adapter.Send(closeBytes(1000))
				return
			case websocket.OpPing:
				buf := pongBytes(f.Payload)
				if _, r := adapter.Send(buf); r != buffer.Success {
					return
				}
			default:
				if err := onFrame(f.Opcode, f.Payload); err != nil {
					return
				}
			}
		}
	}
}

func closeBytes(code uint16) []byte {
	var w byteSink
	_ = websocket.WriteClose(&w, code)
	return w.buf
}

func pongBytes(payload []byte) []byte {
	var w byteSink
	_ = websocket.WritePong(&w, payload)
	return w.buf
}

// byteSink is the minimal io.Writer WriteFrame needs, since
// transport.Adapter.Send takes a []byte rather than implementing
// io.Writer itself.
type byteSink struct{ buf []byte }

func (w *byteSink) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
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
