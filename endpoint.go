// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"time"
)

const (
	defaultReadBufferSize  = 4096
	defaultMaxFramePayload = 32 << 20
	defaultMaxMessageSize  = 32 << 20

	defaultHandshakeTimeout = 5 * time.Second
	defaultCloseTimeout     = time.Second
)

// Access log categories. Every access-level log line carries one of these
// under the "access" attribute.
const (
	accessHandshake  = "handshake"
	accessFrame      = "frame"
	accessControl    = "control"
	accessDisconnect = "disconnect"
)

// Handler receives session events. All callbacks run on the session's own
// goroutine; the session's methods may be called from inside them.
type Handler interface {
	// OnOpen is called once after the opening handshake completes.
	OnOpen(s *Session)

	// OnMessage is called once per delivered message with the whole
	// payload. messageType is TextMessage or BinaryMessage.
	OnMessage(s *Session, messageType int, data []byte)

	// OnClose is called exactly once after the session reaches the closed
	// state, and only if OnOpen was called earlier. The close record is
	// available through s.CloseInfo.
	OnClose(s *Session)
}

// Validator is implemented by handlers that vet the opening handshake. It
// runs after protocol validation and before the response is written; the
// session's handshake accessors and selection methods are usable. Returning
// a HandshakeError rejects with that status, any other error rejects with
// 500.
type Validator interface {
	Validate(s *Session) error
}

// PingHandler is implemented by handlers that want to observe PING frames.
// The automatic PONG reply is sent regardless.
type PingHandler interface {
	OnPing(s *Session, payload []byte)
}

// PongHandler is implemented by handlers that want to observe PONG frames.
type PongHandler interface {
	OnPong(s *Session, payload []byte)
}

// Config carries the endpoint-wide settings shared by every session the
// endpoint creates.
type Config struct {
	// ReadBufferSize is the size of the per-session read buffer. If zero, a
	// default is used. Smaller non-zero values are raised to 125 bytes, the
	// largest control frame payload.
	ReadBufferSize int

	// MaxFramePayload caps a single frame's payload. A longer length field
	// fails the frame with a 1009 close before any allocation.
	MaxFramePayload int64

	// MaxMessageSize caps a reassembled message across all of its frames.
	MaxMessageSize int64

	// HandshakeTimeout bounds the opening handshake. Expiry drops the
	// connection without a response. Defaults to 5 seconds.
	HandshakeTimeout time.Duration

	// CloseTimeout bounds the wait for the peer's close acknowledgement.
	// Expiry drops the connection and marks the close unclean. Defaults to
	// 1 second.
	CloseTimeout time.Duration

	// Subprotocols lists the server's supported subprotocols. When set, the
	// handshake selects the first client offer, in the client's order, that
	// appears in the list unless the handler already selected one.
	Subprotocols []string

	// ValidateHost accepts or rejects the request's Host header. A nil
	// function accepts every host.
	ValidateHost func(host string) bool

	// Rand is the random source used for client-side masking keys and
	// handshake challenge keys. Defaults to crypto/rand.
	Rand io.Reader

	// Logger receives session logs. A nil logger discards everything.
	Logger *slog.Logger
}

// Endpoint is the shared context sessions are created against: limits, host
// validation, the random source and the log sinks. An Endpoint is safe for
// use by any number of sessions.
type Endpoint struct {
	cfg Config
	log *slog.Logger
}

// NewEndpoint fills in defaults and returns a ready endpoint.
func NewEndpoint(cfg Config) *Endpoint {
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	} else if cfg.ReadBufferSize < maxControlFramePayloadSize {
		cfg.ReadBufferSize = maxControlFramePayloadSize
	}
	if cfg.MaxFramePayload == 0 {
		cfg.MaxFramePayload = defaultMaxFramePayload
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(discardHandler{})
	}
	return &Endpoint{cfg: cfg, log: log}
}

// Accept wraps an accepted transport connection in a server-role session.
// The session is in the connecting state; Run drives it through the
// handshake and the frame loop until it is closed.
func (e *Endpoint) Accept(conn net.Conn, h Handler) *Session {
	return newSession(e, conn, h, roleServer)
}

// discardHandler drops all records. It stands in for a logger when none is
// configured, so call sites never nil-check.
type discardHandler struct{}

func (discardHandler) Enabled(ctx context.Context, _ slog.Level) bool  { return false }
func (discardHandler) Handle(ctx context.Context, _ slog.Record) error { return nil }
func (d discardHandler) WithAttrs(_ []slog.Attr) slog.Handler          { return d }
func (d discardHandler) WithGroup(_ string) slog.Handler               { return d }
