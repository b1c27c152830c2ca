// Copyright 2016 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

import "testing"

var utf8ValidTests = []string{
	"",
	"Hello, World",
	"Hello-µ@ßöäüàá",
	"κόσμε",
	"\U0001f600", // 4-byte sequence
	"\x00",       // NUL is valid UTF-8
	"퟿",     // tight under the surrogate gap
	"\U0010ffff", // highest codepoint
}

var utf8InvalidTests = []struct {
	name  string
	bytes []byte
}{
	{"overlong slash", []byte{0xc0, 0xaf}},
	{"overlong nul", []byte{0xc0, 0x80}},
	{"overlong 3-byte", []byte{0xe0, 0x80, 0xaf}},
	{"surrogate low", []byte{0xed, 0xa0, 0x80}},
	{"surrogate high", []byte{0xed, 0xbf, 0xbf}},
	{"above U+10FFFF", []byte{0xf4, 0x90, 0x80, 0x80}},
	{"f5 lead byte", []byte{0xf5, 0x80, 0x80, 0x80}},
	{"fe", []byte{0xfe}},
	{"ff", []byte{0xff}},
	{"bare continuation", []byte{0x80}},
	{"lead then ascii", []byte{0xc2, 0x41}},
}

func TestUTF8ValidatorAccepts(t *testing.T) {
	for _, s := range utf8ValidTests {
		var v utf8Validator
		if !v.consume([]byte(s)) {
			t.Errorf("consume(%q) rejected valid input", s)
			continue
		}
		if !v.complete() {
			t.Errorf("complete() = false for valid input %q", s)
		}
	}
}

func TestUTF8ValidatorRejects(t *testing.T) {
	for _, tt := range utf8InvalidTests {
		var v utf8Validator
		if v.consume(tt.bytes) && v.complete() {
			t.Errorf("%s: validator accepted %x", tt.name, tt.bytes)
		}
	}
}

// A codepoint split across consume calls must validate the same as the
// whole sequence, since continuation frames arrive that way.
func TestUTF8ValidatorSplitInput(t *testing.T) {
	s := []byte("Heßllo \U0001f600 κ")
	for split := 0; split <= len(s); split++ {
		var v utf8Validator
		if !v.consume(s[:split]) || !v.consume(s[split:]) {
			t.Fatalf("split at %d rejected valid input", split)
		}
		if !v.complete() {
			t.Fatalf("split at %d: complete() = false", split)
		}
	}
}

func TestUTF8ValidatorIncompleteTail(t *testing.T) {
	var v utf8Validator
	if !v.consume([]byte{0xe2, 0x82}) {
		t.Fatal("prefix of a valid codepoint rejected early")
	}
	if v.complete() {
		t.Fatal("complete() = true with a codepoint half decoded")
	}
	if !v.consume([]byte{0xac}) || !v.complete() {
		t.Fatal("finishing the codepoint did not return to accept")
	}
}

func TestUTF8ValidatorReset(t *testing.T) {
	var v utf8Validator
	if v.consume([]byte{0xff}) {
		t.Fatal("0xff accepted")
	}
	v.reset()
	if !v.consume([]byte("ok")) || !v.complete() {
		t.Fatal("validator did not recover after reset")
	}
}
