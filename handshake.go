// Copyright 2013 Gary Burd. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"bufio"
	"bytes"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// serverAgent is the Server header written on every handshake response.
const serverAgent = "endpointlab-websocket/1.0"

// maxHandshakeBytes bounds the raw request a session will buffer while
// looking for the end of the header block.
const maxHandshakeBytes = 16384

var crlfcrlf = []byte("\r\n\r\n")

// handshakeRequest is the client's upgrade request up to and including the
// first empty line, split into its request line and a case-insensitive
// header map. Duplicate headers are joined with ", ".
type handshakeRequest struct {
	requestLine string
	headers     map[string]string
}

func (r *handshakeRequest) header(name string) string {
	return r.headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// readHandshakeRequest consumes bytes through the CRLFCRLF terminator. The
// read parks on the connection until enough bytes arrive, so the handshake
// deadline armed by the caller bounds the whole exchange.
func readHandshakeRequest(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if len(buf) >= 4 && bytes.Equal(buf[len(buf)-4:], crlfcrlf) {
			return buf, nil
		}
		if len(buf) > maxHandshakeBytes {
			return nil, HandshakeError{Reason: "handshake request too large", Status: http.StatusBadRequest}
		}
	}
}

// parseHandshakeRequest splits the raw request on CRLF boundaries. Line 0 is
// the request line; every other line is a "Name: Value" header.
func parseHandshakeRequest(raw []byte) *handshakeRequest {
	req := &handshakeRequest{headers: make(map[string]string)}
	for i, line := range strings.Split(string(raw), "\r\n") {
		if i == 0 {
			req.requestLine = line
			continue
		}
		sep := strings.Index(line, ": ")
		if sep < 0 {
			continue
		}
		name := textproto.CanonicalMIMEHeaderKey(line[:sep])
		value := line[sep+2:]
		if prev, ok := req.headers[name]; ok {
			req.headers[name] = prev + ", " + value
		} else {
			req.headers[name] = value
		}
	}
	return req
}

// processHandshake validates req in the order the protocol prescribes and
// records the handshake state on the session. The returned error is always a
// HandshakeError; its status picks the error page.
func (s *Session) processHandshake(req *handshakeRequest) error {
	if !strings.HasPrefix(req.requestLine, "GET ") {
		return HandshakeError{Reason: "handshake has invalid method", Status: http.StatusBadRequest}
	}
	end := strings.Index(req.requestLine, " HTTP/1.1")
	if end < 4 {
		return HandshakeError{Reason: "handshake has invalid HTTP version", Status: http.StatusBadRequest}
	}
	s.resource = req.requestLine[4:end]

	host := req.header("Host")
	if host == "" {
		return HandshakeError{Reason: "required Host header is missing", Status: http.StatusBadRequest}
	}
	if validate := s.endpoint.cfg.ValidateHost; validate != nil && !validate(host) {
		return HandshakeError{Reason: "host " + host + " is not one of this server's names", Status: http.StatusBadRequest}
	}

	if h := req.header("Upgrade"); h == "" {
		return HandshakeError{Reason: "required Upgrade header is missing", Status: http.StatusBadRequest}
	} else if !equalASCIIFold(h, "websocket") {
		return HandshakeError{Reason: "Upgrade header was " + strconv.Quote(h) + " instead of \"websocket\"", Status: http.StatusBadRequest}
	}

	if h := req.header("Connection"); h == "" {
		return HandshakeError{Reason: "required Connection header is missing", Status: http.StatusBadRequest}
	} else if !tokenListContainsValue(h, "upgrade") {
		return HandshakeError{Reason: "Connection header " + strconv.Quote(h) + " does not contain token \"upgrade\"", Status: http.StatusBadRequest}
	}

	// The key is echoed into the accept hash verbatim; its length is not
	// policed here.
	if req.header("Sec-Websocket-Key") == "" {
		return HandshakeError{Reason: "required Sec-WebSocket-Key header is missing", Status: http.StatusBadRequest}
	}

	h := req.header("Sec-Websocket-Version")
	if h == "" {
		return HandshakeError{Reason: "required Sec-WebSocket-Version header is missing", Status: http.StatusBadRequest}
	}
	version, err := strconv.Atoi(h)
	if err != nil || (version != 7 && version != 8 && version != 13) {
		return HandshakeError{Reason: "unsupported WebSocket protocol version " + h, Status: http.StatusBadRequest}
	}
	s.version = version

	if version < 13 {
		s.origin = req.header("Sec-Websocket-Origin")
	} else {
		s.origin = req.header("Origin")
	}

	s.clientHeaders = req.headers
	s.clientSubprotocols = subprotocolList(req.header("Sec-Websocket-Protocol"))
	s.clientExtensions = parseExtensions(req.header("Sec-Websocket-Extensions"))

	// Optional application validation. The handler can reject with a
	// specific HTTP status by returning a HandshakeError.
	if v, ok := s.handler.(Validator); ok {
		if err := v.Validate(s); err != nil {
			if he, ok := err.(HandshakeError); ok {
				return he
			}
			return HandshakeError{Reason: err.Error(), Status: http.StatusInternalServerError}
		}
	}

	if s.subprotocol == "" {
		s.subprotocol = matchSubprotocol(s.clientSubprotocols, s.endpoint.cfg.Subprotocols)
	}

	s.httpStatus = http.StatusSwitchingProtocols
	return nil
}

// matchSubprotocol picks the first client offer the server supports.
func matchSubprotocol(offered, supported []string) string {
	for _, p := range offered {
		for _, q := range supported {
			if p == q {
				return p
			}
		}
	}
	return ""
}

// buildHandshakeResponse serializes the response recorded on the session,
// either the 101 acceptance or an error page.
func (s *Session) buildHandshakeResponse() []byte {
	var p []byte
	p = append(p, "HTTP/1.1 "...)
	p = strconv.AppendInt(p, int64(s.httpStatus), 10)
	p = append(p, ' ')
	p = append(p, reasonPhrase(s.httpStatus, s.httpReason)...)
	p = append(p, "\r\n"...)

	if s.httpStatus == http.StatusSwitchingProtocols {
		p = append(p, "Upgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: "...)
		p = append(p, computeAcceptKey(s.clientHeaders["Sec-Websocket-Key"])...)
		p = append(p, "\r\n"...)
		if s.subprotocol != "" {
			p = append(p, "Sec-WebSocket-Protocol: "...)
			p = append(p, s.subprotocol...)
			p = append(p, "\r\n"...)
		}
		if len(s.extensions) > 0 {
			p = append(p, "Sec-WebSocket-Extensions: "...)
			p = append(p, strings.Join(s.extensions, ", ")...)
			p = append(p, "\r\n"...)
		}
	}

	for _, f := range s.responseHeaders {
		p = append(p, f.name...)
		p = append(p, ": "...)
		for i := 0; i < len(f.value); i++ {
			b := f.value[i]
			if b <= 31 {
				// prevent response splitting.
				b = ' '
			}
			p = append(p, b)
		}
		p = append(p, "\r\n"...)
	}

	p = append(p, "Server: "...)
	p = append(p, serverAgent...)
	p = append(p, "\r\n\r\n"...)
	return p
}

// reasonPhrase prefers an application-supplied phrase, then the standard
// one, with a last-resort literal for codes the tables don't know.
func reasonPhrase(status int, override string) string {
	if override != "" {
		return override
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}
