// Copyright 2013 Gary Burd. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package websocket implements the WebSocket protocol defined in RFC 6455
// as a per-connection session engine.
//
// # Overview
//
// The Session type represents one WebSocket connection: it conducts the
// opening HTTP upgrade handshake, drives the framed message stream, and
// runs the closing handshake. Sessions are created against an Endpoint,
// which carries the settings shared by every connection (limits, timeouts,
// host validation, the random source and the logger).
//
// A server accepts a transport connection and hands it to the endpoint
// together with a Handler:
//
//	ep := websocket.NewEndpoint(websocket.Config{
//	    ValidateHost: func(host string) bool { return host == "example.org" },
//	})
//	for {
//	    conn, err := ln.Accept()
//	    if err != nil {
//	        return err
//	    }
//	    go ep.Accept(conn, handler).Run()
//	}
//
// Run blocks until the session is closed: it reads the handshake, validates
// it, writes the response, then decodes frames and dispatches messages
// until the close handshake completes or the connection fails.
//
// # Handlers
//
// A Handler receives the session's events:
//
//	type echo struct{}
//
//	func (echo) OnOpen(s *websocket.Session) {}
//
//	func (echo) OnMessage(s *websocket.Session, mt int, data []byte) {
//	    if mt == websocket.TextMessage {
//	        s.SendText(data)
//	    } else {
//	        s.SendBinary(data)
//	    }
//	}
//
//	func (echo) OnClose(s *websocket.Session) {}
//
// Messages are delivered whole: fragmented messages are reassembled and
// TEXT payloads are UTF-8 validated before OnMessage runs. OnClose is
// called exactly once for every session that received OnOpen, whether the
// close was clean or not; s.CloseInfo() reports which.
//
// A handler may additionally implement Validator to vet the handshake (and
// select a subprotocol or response headers) before the response is written,
// and PingHandler/PongHandler to observe control frames.
//
// # Clients
//
// A Dialer connects out and performs the client half of the handshake.
// The session it returns is open; Run starts its frame loop:
//
//	s, _, err := dialer.Dial("ws://example.org/chat", nil, handler)
//	if err != nil {
//	    return err
//	}
//	go s.Run()
//
// Client sessions mask outgoing frames and reject masked incoming frames,
// as the protocol requires of that role.
//
// # Concurrency
//
// Each session is owned by the goroutine running Run. Handler callbacks
// run on that goroutine, and the session's methods are intended to be
// called from inside them; there is no internal locking. Calling into a
// session from another goroutine requires coordination by the caller.
package websocket
