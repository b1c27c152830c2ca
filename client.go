// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// A Dialer contains options for connecting to a WebSocket server. Dialing
// performs the client side of the opening handshake and returns a session
// in the open state; Run must still be called to start its frame loop.
type Dialer struct {
	// Endpoint supplies limits, the random source and logging for sessions
	// the dialer creates. If nil, a default endpoint is used.
	Endpoint *Endpoint

	// NetDial specifies the dial function for creating TCP connections. If
	// NetDial is nil, net.Dial is used.
	NetDial func(network, addr string) (net.Conn, error)

	// Proxy specifies a proxy to dial through (http, https or socks5
	// URLs). If nil, the connection is direct.
	Proxy *url.URL

	// TLSClientConfig specifies the TLS configuration to use with
	// tls.Client. If nil, the default configuration is used.
	TLSClientConfig *tls.Config

	// HandshakeTimeout specifies the duration for the handshake to
	// complete. If zero, the endpoint's handshake timeout applies.
	HandshakeTimeout time.Duration

	// Subprotocols specifies the client's requested subprotocols.
	Subprotocols []string
}

func parseURL(u string) (useTLS bool, host, port, opaque string, err error) {
	// From the RFC:
	//
	// ws-URI = "ws:" "//" host [ ":" port ] path [ "?" query ]
	// wss-URI = "wss:" "//" host [ ":" port ] path [ "?" query ]
	//
	// The net/url parser is not used here because it percent-decodes the
	// path, and the request line must carry the resource verbatim.

	switch {
	case strings.HasPrefix(u, "ws://"):
		u = u[len("ws://"):]
	case strings.HasPrefix(u, "wss://"):
		u = u[len("wss://"):]
		useTLS = true
	default:
		return false, "", "", "", errMalformedURL
	}

	hostPort := u
	opaque = "/"
	if i := strings.Index(u, "/"); i >= 0 {
		hostPort = u[:i]
		opaque = u[i:]
	}

	host = hostPort
	port = ":80"
	if i := strings.LastIndex(hostPort, ":"); i > strings.LastIndex(hostPort, "]") {
		host = hostPort[:i]
		port = hostPort[i:]
	} else if useTLS {
		port = ":443"
	}

	return useTLS, host, port, opaque, nil
}

// Dial connects to the WebSocket server at urlStr and performs the opening
// handshake. Use requestHeader to specify the origin (Origin), cookies
// (Cookie) and other extra headers.
//
// If the handshake fails, ErrBadHandshake is returned along with a non-nil
// *http.Response so that callers can examine the server's refusal.
func (d *Dialer) Dial(urlStr string, requestHeader http.Header, h Handler) (*Session, *http.Response, error) {
	if d == nil {
		d = &Dialer{}
	}
	e := d.Endpoint
	if e == nil {
		e = NewEndpoint(Config{})
	}

	useTLS, host, port, opaque, err := parseURL(urlStr)
	if err != nil {
		return nil, nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = e.cfg.HandshakeTimeout
	}
	deadline := time.Now().Add(timeout)

	netDial := d.NetDial
	if netDial == nil {
		netDialer := &net.Dialer{Deadline: deadline}
		netDial = netDialer.Dial
	}
	if d.Proxy != nil {
		proxyDialer, err := proxy.FromURL(d.Proxy, dialerFunc(netDial))
		if err != nil {
			return nil, nil, err
		}
		netDial = proxyDialer.Dial
	}

	netConn, err := netDial("tcp", host+port)
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		if netConn != nil {
			netConn.Close()
		}
	}()

	if err := netConn.SetDeadline(deadline); err != nil {
		return nil, nil, err
	}

	if useTLS {
		cfg := d.TLSClientConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: host}
		} else if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = host
		}
		tlsConn := tls.Client(netConn, cfg)
		netConn = tlsConn
		if err := tlsConn.Handshake(); err != nil {
			return nil, nil, err
		}
	}

	s := newSession(e, netConn, h, roleClient)
	resp, err := s.clientHandshake(host+port, opaque, requestHeader, d.Subprotocols)
	if err != nil {
		return nil, resp, err
	}

	netConn.SetDeadline(time.Time{})
	netConn = nil // to avoid close in defer.
	return s, resp, nil
}

// clientHandshake writes the upgrade request and verifies the server's
// response. On success the session is open with its negotiated record
// filled in.
func (s *Session) clientHandshake(hostPort, resource string, requestHeader http.Header, subprotocols []string) (*http.Response, error) {
	challengeKey, err := generateChallengeKey(s.endpoint.cfg.Rand)
	if err != nil {
		return nil, err
	}
	acceptKey := computeAcceptKey(challengeKey)

	p := make([]byte, 0, 512)
	p = append(p, "GET "...)
	p = append(p, resource...)
	p = append(p, " HTTP/1.1\r\nHost: "...)
	p = append(p, hostPort...)
	// "Upgrade" is capitalized for servers that do not use case insensitive
	// comparisons on header tokens.
	p = append(p, "\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Key: "...)
	p = append(p, challengeKey...)
	p = append(p, "\r\n"...)
	if len(subprotocols) > 0 {
		p = append(p, "Sec-WebSocket-Protocol: "...)
		p = append(p, strings.Join(subprotocols, ", ")...)
		p = append(p, "\r\n"...)
	}
	for k, vs := range requestHeader {
		for _, v := range vs {
			p = append(p, k...)
			p = append(p, ": "...)
			p = append(p, v...)
			p = append(p, "\r\n"...)
		}
	}
	p = append(p, "\r\n"...)

	if _, err := s.conn.Write(p); err != nil {
		return nil, err
	}

	resp, err := http.ReadResponse(s.br, &http.Request{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	s.httpStatus = resp.StatusCode

	if resp.StatusCode != http.StatusSwitchingProtocols ||
		!strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") ||
		!tokenListContainsValue(resp.Header.Get("Connection"), "upgrade") ||
		resp.Header.Get("Sec-Websocket-Accept") != acceptKey {
		return resp, ErrBadHandshake
	}

	s.resource = resource
	s.version = 13
	s.origin = requestHeader.Get("Origin")
	s.clientSubprotocols = subprotocols
	s.subprotocol = resp.Header.Get("Sec-Websocket-Protocol")
	s.state = StateOpen
	s.logAccess(accessHandshake, "client handshake complete")
	return resp, nil
}

// dialerFunc adapts a dial function to the proxy package's Dialer.
type dialerFunc func(network, addr string) (net.Conn, error)

func (f dialerFunc) Dial(network, addr string) (net.Conn, error) {
	return f(network, addr)
}

func init() {
	proxy.RegisterDialerType("http", func(proxyURL *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return &httpProxyDialer{proxyURL: proxyURL, forward: forward}, nil
	})
	proxy.RegisterDialerType("https", func(proxyURL *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return &httpProxyDialer{proxyURL: proxyURL, forward: forward, useTLS: true}, nil
	})
}

// httpProxyDialer tunnels the connection through an HTTP proxy with a
// CONNECT request.
type httpProxyDialer struct {
	proxyURL *url.URL
	forward  proxy.Dialer
	useTLS   bool
}

func (d *httpProxyDialer) Dial(network string, addr string) (net.Conn, error) {
	hostPort, hostNoPort := hostPortNoPort(d.proxyURL)
	conn, err := d.forward.Dial(network, hostPort)
	if err != nil {
		return nil, err
	}

	if d.useTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: hostNoPort})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	connectHeader := make(http.Header)
	if user := d.proxyURL.User; user != nil {
		proxyUser := user.Username()
		if proxyPassword, passwordSet := user.Password(); passwordSet {
			credential := base64.StdEncoding.EncodeToString([]byte(proxyUser + ":" + proxyPassword))
			connectHeader.Set("Proxy-Authorization", "Basic "+credential)
		}
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: connectHeader,
	}

	if err := connectReq.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// It's OK to use and discard a buffered reader here because the remote
	// server does not speak until spoken to.
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		f := strings.SplitN(resp.Status, " ", 2)
		return nil, errors.New(f[1])
	}
	return conn, nil
}

// hostPortNoPort splits a proxy URL's host into dialable host:port and the
// bare host, defaulting the port from the scheme.
func hostPortNoPort(u *url.URL) (hostPort, hostNoPort string) {
	hostPort = u.Host
	hostNoPort = u.Host
	if i := strings.LastIndex(u.Host, ":"); i > strings.LastIndex(u.Host, "]") {
		hostNoPort = hostNoPort[:i]
	} else {
		switch u.Scheme {
		case "https":
			hostPort += ":443"
		default:
			hostPort += ":80"
		}
	}
	return hostPort, hostNoPort
}
