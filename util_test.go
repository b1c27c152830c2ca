// Copyright 2014 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import (
	"reflect"
	"testing"
)

func TestComputeAcceptKey(t *testing.T) {
	// The key and accept value from RFC 6455 section 1.3.
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got := computeAcceptKey(key); got != want {
		t.Errorf("computeAcceptKey(%q) = %q, want %q", key, got, want)
	}
}

var tokenListContainsValueTests = []struct {
	value string
	ok    bool
}{
	{"WebSocket", true},
	{"WEBSOCKET", true},
	{"websocket", true},
	{"websockets", false},
	{"x websocket", false},
	{"websocket x", false},
	{"other,websocket,more", true},
	{"other, websocket, more", true},
}

func TestTokenListContainsValue(t *testing.T) {
	for _, tt := range tokenListContainsValueTests {
		ok := tokenListContainsValue(tt.value, "websocket")
		if ok != tt.ok {
			t.Errorf("tokenListContainsValue(%q, websocket) = %v, want %v", tt.value, ok, tt.ok)
		}
	}
}

var subprotocolListTests = []struct {
	h         string
	protocols []string
}{
	{"", nil},
	{"foo", []string{"foo"}},
	{"foo,bar", []string{"foo", "bar"}},
	{"foo, bar", []string{"foo", "bar"}},
	{" foo, bar", []string{"foo", "bar"}},
	{" foo, bar ", []string{"foo", "bar"}},
}

func TestSubprotocolList(t *testing.T) {
	for _, tt := range subprotocolListTests {
		protocols := subprotocolList(tt.h)
		if !reflect.DeepEqual(tt.protocols, protocols) {
			t.Errorf("subprotocolList(%q) returned %#v, want %#v", tt.h, protocols, tt.protocols)
		}
	}
}

var parseExtensionTests = []struct {
	value      string
	extensions []map[string]string
}{
	{`foo`, []map[string]string{{"": "foo"}}},
	{`foo, bar; baz=2`, []map[string]string{
		{"": "foo"},
		{"": "bar", "baz": "2"}}},
	{`foo; bar="b,a;z"`, []map[string]string{
		{"": "foo", "bar": "b,a;z"}}},
}

func TestParseExtensions(t *testing.T) {
	for _, tt := range parseExtensionTests {
		extensions := parseExtensions(tt.value)
		if !reflect.DeepEqual(extensions, tt.extensions) {
			t.Errorf("parseExtensions(%q) returned %v, want %v", tt.value, extensions, tt.extensions)
		}
	}
}

var equalASCIIFoldTests = []struct {
	t, s string
	eq   bool
}{
	{"WebSocket", "websocket", true},
	{"websocket", "websocket", true},
	{"Öyster", "öyster", false},
	{"WebSocket", "websockets", false},
}

func TestEqualASCIIFold(t *testing.T) {
	for _, tt := range equalASCIIFoldTests {
		eq := equalASCIIFold(tt.s, tt.t)
		if eq != tt.eq {
			t.Errorf("equalASCIIFold(%q, %q) = %v, want %v", tt.s, tt.t, eq, tt.eq)
		}
	}
}
