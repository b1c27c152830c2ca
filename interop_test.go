// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Interoperability tests against an independently developed protocol
// implementation, so wire compatibility is not self-certified by the
// package's own client and server halves agreeing with each other.

package websocket_test

import (
	"context"
	"net"
	"testing"
	"time"

	coder "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endpointlab/websocket"
)

type echoHandler struct{}

func (echoHandler) OnOpen(s *websocket.Session) {}

func (echoHandler) OnMessage(s *websocket.Session, mt int, data []byte) {
	if mt == websocket.TextMessage {
		s.SendText(data)
	} else {
		s.SendBinary(data)
	}
}

func (echoHandler) OnClose(s *websocket.Session) {}

func startServer(t *testing.T) string {
	t.Helper()
	ep := websocket.NewEndpoint(websocket.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go ep.Accept(conn, echoHandler{}).Run()
		}
	}()
	return ln.Addr().String()
}

func TestInteropEcho(t *testing.T) {
	addr := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := coder.Dial(ctx, "ws://"+addr+"/echo", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	require.NoError(t, c.Write(ctx, coder.MessageText, []byte("Hello")))
	mt, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, coder.MessageText, mt)
	assert.Equal(t, "Hello", string(data))

	require.NoError(t, c.Write(ctx, coder.MessageBinary, []byte{0x00, 0x01, 0x02}))
	mt, data, err = c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, coder.MessageBinary, mt)
	assert.Equal(t, []byte{0x00, 0x01, 0x02}, data)

	require.NoError(t, c.Close(coder.StatusNormalClosure, "done"))
}

func TestInteropLargeMessage(t *testing.T) {
	addr := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := coder.Dial(ctx, "ws://"+addr+"/echo", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	// Large enough to need the 64-bit extended length field.
	msg := make([]byte, 70000)
	for i := range msg {
		msg[i] = byte(i)
	}
	c.SetReadLimit(1 << 20)

	require.NoError(t, c.Write(ctx, coder.MessageBinary, msg))
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, data)

	require.NoError(t, c.Close(coder.StatusNormalClosure, ""))
}

func TestInteropPing(t *testing.T) {
	addr := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := coder.Dial(ctx, "ws://"+addr+"/echo", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	// Ping waits for the pong, which a concurrent reader must surface.
	readCtx := c.CloseRead(ctx)
	require.NoError(t, c.Ping(readCtx))

	require.NoError(t, c.Close(coder.StatusNormalClosure, ""))
}
