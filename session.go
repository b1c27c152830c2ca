// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a session. States only move forward,
// except that a connecting session whose handshake fails goes straight to
// closed.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type role int

const (
	roleServer role = iota
	roleClient
)

// CloseInfo records how a session ended. WasClean is true only when both
// sides exchanged CLOSE frames before the transport went down.
type CloseInfo struct {
	LocalCode    int
	LocalReason  string
	RemoteCode   int
	RemoteReason string
	WasClean     bool
	ClosedByMe   bool
	DroppedByMe  bool
}

type headerField struct {
	name, value string
}

// Session is one WebSocket connection: the handshake record, the negotiated
// record, the frame codec, the in-progress message and the close state, all
// owned by a single goroutine that drives Run. The public methods are safe
// to call from handler callbacks, which run on that goroutine; calling them
// from elsewhere requires external coordination.
type Session struct {
	id       string
	endpoint *Endpoint
	handler  Handler
	conn     net.Conn
	br       *bufio.Reader
	fr       *frameReader
	fw       *frameWriter
	role     role
	state    State

	// Handshake record, immutable once the session leaves connecting.
	resource           string
	version            int
	origin             string
	clientHeaders      map[string]string
	clientSubprotocols []string
	clientExtensions   []map[string]string

	// Negotiated record, immutable once the session is open.
	subprotocol     string
	extensions      []string
	responseHeaders []headerField
	httpStatus      int
	httpReason      string

	closeInfo      CloseInfo
	openDelivered  bool
	closeDelivered bool

	// writing latches while a frame write is in flight. Writes are
	// serialized by the owning goroutine; the latch turns a violation of
	// that rule into a panic instead of interleaved frames.
	writing bool

	// Message in progress.
	fragmented    bool
	currentOpcode int
	message       []byte
	utf8          utf8Validator

	log *slog.Logger
}

func newSession(e *Endpoint, conn net.Conn, h Handler, r role) *Session {
	id := uuid.NewString()
	br := bufio.NewReaderSize(conn, e.cfg.ReadBufferSize)
	s := &Session{
		id:       id,
		endpoint: e,
		handler:  h,
		conn:     conn,
		br:       br,
		role:     r,
		state:    StateConnecting,
		log:      e.log.With(slog.String("session", id[:8])),
	}
	s.fr = &frameReader{br: br, server: r == roleServer, maxPayload: e.cfg.MaxFramePayload}
	s.fw = &frameWriter{w: conn, client: r == roleClient, rand: e.cfg.Rand}
	s.closeInfo.LocalCode = CloseNoStatusReceived
	s.closeInfo.RemoteCode = CloseNoStatusReceived
	return s
}

// Run drives the session until it is closed: the opening handshake for a
// server session, then the frame loop, then teardown. It blocks; callers
// that serve many connections run it on its own goroutine.
func (s *Session) Run() {
	switch s.role {
	case roleServer:
		if !s.runHandshake() {
			s.finalize()
			return
		}
	case roleClient:
		// The dialer completed the handshake synchronously; the loop only
		// needs to announce the open session.
		if s.state == StateOpen && !s.openDelivered {
			s.openDelivered = true
			s.handler.OnOpen(s)
		}
	}
	s.readLoop()
	s.finalize()
}

/*** handshake ***/

func (s *Session) runHandshake() bool {
	s.armDeadline(s.endpoint.cfg.HandshakeTimeout)

	raw, err := readHandshakeRequest(s.br)
	if err != nil {
		var he HandshakeError
		switch {
		case errors.As(err, &he):
			s.httpStatus = he.Status
			s.logAccess(accessHandshake, he.Reason)
			s.writeHandshakeResponse()
			s.dropTCP(true)
		case isTimeout(err):
			s.log.Debug("handshake timed out")
			s.dropTCP(true)
		default:
			s.log.Error("error reading handshake", slog.Any("error", err))
			s.dropTCP(true)
		}
		return false
	}

	req := parseHandshakeRequest(raw)
	s.logAccess(accessHandshake, req.requestLine)

	if err := s.processHandshake(req); err != nil {
		var he HandshakeError
		if !errors.As(err, &he) {
			he = HandshakeError{Reason: err.Error(), Status: http.StatusInternalServerError}
		}
		s.httpStatus = he.Status
		s.log.Error("handshake rejected", slog.String("reason", he.Reason), slog.Int("status", he.Status))
	}

	if !s.writeHandshakeResponse() {
		return false
	}
	s.logOpenResult()

	if s.httpStatus != http.StatusSwitchingProtocols {
		s.dropTCP(true)
		return false
	}

	s.cancelDeadline()
	s.state = StateOpen
	s.openDelivered = true
	s.handler.OnOpen(s)
	return true
}

func (s *Session) writeHandshakeResponse() bool {
	resp := s.buildHandshakeResponse()
	s.conn.SetWriteDeadline(time.Now().Add(s.endpoint.cfg.HandshakeTimeout))
	if _, err := s.conn.Write(resp); err != nil {
		s.log.Error("error writing handshake response", slog.Any("error", err))
		s.dropTCP(true)
		return false
	}
	s.conn.SetWriteDeadline(time.Time{})
	return true
}

/*** frame loop ***/

func (s *Session) readLoop() {
	for s.state == StateOpen || s.state == StateClosing {
		f, err := s.fr.readFrame()
		if err != nil {
			if !s.handleReadError(err) {
				return
			}
			continue
		}
		s.processFrame(f)
	}
}

// handleReadError translates a failed read or a failed frame into the close
// behavior its kind demands. It reports whether the loop should keep
// reading.
func (s *Session) handleReadError(err error) bool {
	var fe *frameError
	switch {
	case errors.As(err, &fe):
		switch fe.kind {
		case protocolViolation:
			s.logAccess(accessFrame, fe.text)
			s.sendClose(CloseProtocolError, fe.text)
			return true
		case payloadViolation:
			s.logAccess(accessFrame, fe.text)
			s.sendClose(CloseInvalidFramePayloadData, fe.text)
			return true
		case messageTooBig:
			s.logAccess(accessFrame, fe.text)
			s.sendClose(CloseMessageTooBig, fe.text)
			return true
		case internalEndpointError:
			s.sendClose(CloseAbnormalClosure, fe.text)
			return true
		case softSessionError:
			s.log.Warn(fe.text)
			return true
		default:
			s.log.Error("dropping connection on unrecoverable frame error", slog.String("error", fe.text))
			s.dropTCP(true)
			return false
		}
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		// The peer dropped the transport underneath us.
		s.log.Debug("received EOF")
		s.state = StateClosed
		return false
	case isTimeout(err):
		// Only one deadline can be armed here: the close acknowledgement.
		s.log.Debug("close acknowledgement timed out")
		s.dropTCP(true)
		return false
	default:
		s.log.Error("error reading frame", slog.Any("error", err))
		s.dropTCP(true)
		return false
	}
}

func (s *Session) processFrame(f *frame) {
	var err error

	if s.state == StateClosing {
		// Only the acknowledgement matters now.
		if f.opcode == OpClose {
			err = s.processClose(f)
		} else {
			s.log.Debug("ignoring frame in closing state", slog.Int("opcode", f.opcode))
		}
	} else {
		switch f.opcode {
		case OpText, OpBinary:
			err = s.processData(f)
		case OpContinuation:
			err = s.processContinuation(f)
		case OpClose:
			err = s.processClose(f)
		case OpPing:
			s.processPing(f)
		case OpPong:
			s.processPong(f)
		}
	}

	if err != nil {
		s.handleReadError(err)
	}
}

func (s *Session) processData(f *frame) error {
	if s.fragmented {
		return errProtocol("got a new message before the previous was finished")
	}
	if f.opcode == OpText && !s.utf8.consume(f.payload) {
		return errPayload("invalid utf8 in text message")
	}
	if int64(len(f.payload)) > s.endpoint.cfg.MaxMessageSize {
		return errTooBig("message exceeds size limit")
	}
	s.currentOpcode = f.opcode
	if f.fin {
		return s.deliverMessage(f.payload)
	}
	s.fragmented = true
	s.message = append(s.message, f.payload...)
	return nil
}

func (s *Session) processContinuation(f *frame) error {
	if !s.fragmented {
		return errProtocol("got a continuation frame without an outstanding message")
	}
	if s.currentOpcode == OpText && !s.utf8.consume(f.payload) {
		return errPayload("invalid utf8 in text message")
	}
	if int64(len(s.message))+int64(len(f.payload)) > s.endpoint.cfg.MaxMessageSize {
		return errTooBig("message exceeds size limit")
	}
	s.message = append(s.message, f.payload...)
	if f.fin {
		return s.deliverMessage(s.message)
	}
	return nil
}

// deliverMessage hands a completed message to the handler exactly once and
// resets the assembler for the next message.
func (s *Session) deliverMessage(payload []byte) error {
	if s.currentOpcode == OpText && !s.utf8.complete() {
		return errPayload("text message ends inside a codepoint")
	}
	s.handler.OnMessage(s, s.currentOpcode, payload)
	s.resetMessage()
	return nil
}

func (s *Session) resetMessage() {
	s.fragmented = false
	s.currentOpcode = 0
	s.message = nil
	s.utf8.reset()
}

func (s *Session) processPing(f *frame) {
	s.logAccess(accessControl, "ping")
	if h, ok := s.handler.(PingHandler); ok {
		h.OnPing(s, f.payload)
	}
	s.writeFrame(true, OpPong, f.payload)
}

func (s *Session) processPong(f *frame) {
	s.logAccess(accessControl, "pong")
	if h, ok := s.handler.(PongHandler); ok {
		h.OnPong(s, f.payload)
	}
}

func (s *Session) processClose(f *frame) error {
	code, reason, err := parseClosePayload(f.payload)
	if err != nil {
		return err
	}
	s.closeInfo.RemoteCode = code
	s.closeInfo.RemoteReason = reason

	switch s.state {
	case StateOpen:
		// The remote initiated the close; acknowledge by echoing.
		s.logAccess(accessControl, "close received, sending ack")
		s.sendClose(code, reason)
		s.closeInfo.ClosedByMe = false
		if s.state == StateClosing {
			// The ack went out, so both sides have exchanged closes.
			s.closeInfo.WasClean = true
			s.state = StateClosed
		}
	case StateClosing:
		s.logAccess(accessControl, "close ack received")
		s.closeInfo.WasClean = true
		s.state = StateClosed
	}
	return nil
}

/*** public send interface ***/

// SendText emits data as a single-frame TEXT message. The payload is not
// re-validated as UTF-8 on send; that is the application's contract.
func (s *Session) SendText(data []byte) {
	s.sendData(OpText, data)
}

// SendBinary emits data as a single-frame BINARY message.
func (s *Session) SendBinary(data []byte) {
	s.sendData(OpBinary, data)
}

func (s *Session) sendData(opcode int, data []byte) {
	if s.state != StateOpen {
		s.log.Warn("tried to send a message from a session that is not open", slog.String("state", s.state.String()))
		return
	}
	s.writeFrame(true, opcode, data)
}

// Ping emits a PING control frame. The payload is limited to 125 bytes.
func (s *Session) Ping(payload []byte) error {
	return s.sendControl(OpPing, payload)
}

// Pong emits an unsolicited PONG control frame.
func (s *Session) Pong(payload []byte) error {
	return s.sendControl(OpPong, payload)
}

func (s *Session) sendControl(opcode int, payload []byte) error {
	if s.state != StateOpen {
		s.log.Warn("tried to send a control frame from a session that is not open", slog.String("state", s.state.String()))
		return nil
	}
	if len(payload) > maxControlFramePayloadSize {
		return errInvalidControlFrame
	}
	return s.writeFrame(true, opcode, payload)
}

// Close starts the closing handshake: the session sends a CLOSE frame with
// the given status and waits up to the close timeout for the peer's
// acknowledgement. Codes the protocol forbids on the wire are replaced
// according to the close policy before sending.
func (s *Session) Close(code int, reason string) {
	s.sendClose(code, reason)
}

func (s *Session) sendClose(code int, reason string) {
	if s.state != StateOpen {
		s.log.Warn("tried to close a session that is not open", slog.String("state", s.state.String()))
		return
	}

	s.closeInfo.LocalCode = code
	s.closeInfo.LocalReason = reason
	s.closeInfo.ClosedByMe = true
	s.state = StateClosing
	s.armDeadline(s.endpoint.cfg.CloseTimeout)

	// Echo the requested value unless there is a good reason not to.
	wireCode, wireReason := code, reason
	switch {
	case code == CloseNoStatusReceived:
		wireCode, wireReason = CloseNormalClosure, ""
	case code == CloseAbnormalClosure:
		// Internal failure; there is no wire code for this.
		wireCode = ClosePolicyViolation
	case isInvalidCloseCode(code):
		wireCode, wireReason = CloseProtocolError, "Status code is invalid"
	case isReservedCloseCode(code):
		wireCode, wireReason = CloseProtocolError, "Status code is reserved"
	}

	s.writeFrame(true, OpClose, formatClosePayload(wireCode, wireReason))
}

func (s *Session) writeFrame(fin bool, opcode int, payload []byte) error {
	if s.writing {
		panic("websocket: concurrent write on session")
	}
	s.writing = true
	defer func() { s.writing = false }()

	if err := s.fw.writeFrame(fin, opcode, payload); err != nil {
		s.log.Error("error writing frame", slog.Any("error", err))
		s.dropTCP(false)
		return err
	}
	return nil
}

/*** deadlines and teardown ***/

// armDeadline puts the single session deadline on the connection. Arming
// replaces whatever deadline was set before, so at most one is ever active.
func (s *Session) armDeadline(d time.Duration) {
	s.conn.SetReadDeadline(time.Now().Add(d))
}

// cancelDeadline clears the armed deadline. A read that races with the
// cancellation surfaces a timeout error, which is distinguishable from data
// and handled as an expiry; a cancelled deadline simply never fires.
func (s *Session) cancelDeadline() {
	s.conn.SetReadDeadline(time.Time{})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// dropTCP forcibly tears down the transport and moves the session to
// closed. A close failure on an already-gone peer is expected and ignored.
func (s *Session) dropTCP(byMe bool) {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("error closing connection", slog.Any("error", err))
	}
	s.closeInfo.DroppedByMe = byMe
	s.state = StateClosed
}

// finalize runs once the session is closed: cancel the deadline, log the
// outcome, deliver OnClose if OnOpen was delivered, and shut the transport
// down if it is still up. A client that just finished a clean close
// exchange first gives the server a moment to drop the connection from its
// side.
func (s *Session) finalize() {
	s.conn.SetReadDeadline(time.Time{})
	s.logCloseResult()

	if s.openDelivered && !s.closeDelivered {
		s.closeDelivered = true
		s.handler.OnClose(s)
	}

	if s.role == roleClient && s.closeInfo.WasClean && !s.closeInfo.DroppedByMe {
		s.conn.SetReadDeadline(time.Now().Add(s.endpoint.cfg.CloseTimeout))
		io.Copy(io.Discard, s.conn)
	}

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("error closing connection", slog.Any("error", err))
	}
}

/*** logging ***/

func (s *Session) logAccess(category, msg string) {
	s.log.Debug(msg, slog.String("access", category))
}

func (s *Session) logOpenResult() {
	s.log.Info("handshake complete",
		slog.String("access", accessHandshake),
		slog.String("remote", s.conn.RemoteAddr().String()),
		slog.Int("version", s.version),
		slog.String("agent", s.clientHeaders["User-Agent"]),
		slog.String("resource", s.resource),
		slog.Int("status", s.httpStatus))
}

func (s *Session) logCloseResult() {
	outcome := "unclean"
	if s.closeInfo.WasClean {
		outcome = "clean"
	}
	s.log.Info("connection closed",
		slog.String("access", accessDisconnect),
		slog.String("outcome", outcome),
		slog.Int("local_code", s.closeInfo.LocalCode),
		slog.String("local_reason", s.closeInfo.LocalReason),
		slog.Int("remote_code", s.closeInfo.RemoteCode),
		slog.String("remote_reason", s.closeInfo.RemoteReason),
		slog.Bool("closed_by_me", s.closeInfo.ClosedByMe),
		slog.Bool("dropped_by_me", s.closeInfo.DroppedByMe))
}

/*** accessors ***/

// ID returns the session's unique identifier, as used in log lines.
func (s *Session) ID() string { return s.id }

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.state }

// Resource returns the request path from the opening handshake.
func (s *Session) Resource() string { return s.resource }

// Origin returns the client origin from the opening handshake, if any.
func (s *Session) Origin() string { return s.origin }

// Version returns the negotiated WebSocket protocol version.
func (s *Session) Version() int { return s.version }

// ClientHeader returns a header from the client's handshake request.
// Lookup is case-insensitive; duplicate headers were joined with ", ".
func (s *Session) ClientHeader(name string) string {
	return s.clientHeaders[textproto.CanonicalMIMEHeaderKey(name)]
}

// Subprotocols returns the subprotocols the client offered, in offer order.
func (s *Session) Subprotocols() []string { return s.clientSubprotocols }

// Extensions returns the extensions the client offered. Each entry maps the
// extension token (under the empty key) and its parameters.
func (s *Session) Extensions() []map[string]string { return s.clientExtensions }

// Subprotocol returns the subprotocol selected during the opening
// handshake, or the empty string if none was. It returns ErrNotOpen while
// the handshake is still in progress.
func (s *Session) Subprotocol() (string, error) {
	if s.state == StateConnecting {
		return "", ErrNotOpen
	}
	return s.subprotocol, nil
}

// SelectedExtensions returns the extensions selected during the handshake.
func (s *Session) SelectedExtensions() []string { return s.extensions }

// CloseInfo returns the session's close record. The record is complete once
// OnClose runs.
func (s *Session) CloseInfo() CloseInfo { return s.closeInfo }

// NetConn returns the underlying transport connection.
func (s *Session) NetConn() net.Conn { return s.conn }

// LocalAddr returns the local network address.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

/*** handshake-time interface ***/

var reservedResponseHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Accept":     true,
	"Sec-Websocket-Protocol":   true,
	"Sec-Websocket-Extensions": true,
	"Server":                   true,
}

// SetResponseHeader adds a header to the handshake response. It is only
// valid while the handshake is being validated, and the headers the
// handshake itself owns cannot be overridden.
func (s *Session) SetResponseHeader(name, value string) error {
	if s.state != StateConnecting {
		return errors.New("websocket: response headers can only be set during the handshake")
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	if reservedResponseHeaders[canonical] {
		return errors.New("websocket: " + canonical + " is a reserved response header")
	}
	for i := range s.responseHeaders {
		if s.responseHeaders[i].name == canonical {
			s.responseHeaders[i].value = value
			return nil
		}
	}
	s.responseHeaders = append(s.responseHeaders, headerField{name: canonical, value: value})
	return nil
}

// SelectSubprotocol chooses the subprotocol echoed in the handshake
// response. Choosing a value the client did not propose is an error.
func (s *Session) SelectSubprotocol(v string) error {
	if v == "" {
		s.subprotocol = ""
		return nil
	}
	for _, p := range s.clientSubprotocols {
		if p == v {
			s.subprotocol = v
			return nil
		}
	}
	return errors.New("websocket: subprotocol " + v + " was not proposed by the client")
}

// SelectExtension adds an extension to the handshake response. Choosing a
// value the client did not propose is an error.
func (s *Session) SelectExtension(v string) error {
	if v == "" {
		return nil
	}
	for _, ext := range s.clientExtensions {
		if ext[""] == v {
			s.extensions = append(s.extensions, v)
			return nil
		}
	}
	return errors.New("websocket: extension " + v + " was not proposed by the client")
}

// SetHandler swaps the session's callback object. A lobby handler can
// validate the handshake, pick a subprotocol, and pass the session on to a
// handler for that subprotocol. When the session is already open the new
// handler's OnOpen is invoked immediately.
func (s *Session) SetHandler(h Handler) {
	s.handler = h
	if s.state == StateOpen {
		h.OnOpen(s)
	}
}
