// Copyright 2016 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

// Incremental UTF-8 validation for TEXT message payloads. Validation state
// is carried across the continuation frames of a message, so a codepoint
// split between two frames is still checked correctly and a malformed byte
// rejects the message as soon as it is decoded.
//
// The table-driven DFA is Bjoern Hoehrmann's "Flexible and Economical UTF-8
// Decoder" (bjoern.hoehrmann.de/utf-8/decoder/dfa, MIT licensed). It rejects
// surrogates (U+D800..U+DFFF), over-long encodings and codepoints above
// U+10FFFF directly from the byte classes.

const (
	utf8Accept = 0
	utf8Reject = 12
)

var utf8Table = [...]uint8{
	// Byte classes.
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x00..0x0f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x10..0x1f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x20..0x2f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x30..0x3f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x40..0x4f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x50..0x5f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x60..0x6f
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // 0x70..0x7f
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, // 0x80..0x8f
	9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, // 0x90..0x9f
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, // 0xa0..0xaf
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, // 0xb0..0xbf
	8, 8, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, // 0xc0..0xcf
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, // 0xd0..0xdf
	10, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 4, 3, 3, // 0xe0..0xef
	11, 6, 6, 6, 5, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, // 0xf0..0xff

	// Transitions, premultiplied by the row width.
	0, 12, 24, 36, 60, 96, 84, 12, 12, 12, 48, 72,
	12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
	12, 0, 12, 12, 12, 12, 12, 0, 12, 0, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 24, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 24, 12, 12, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 12, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
}

// utf8Validator checks a byte stream incrementally. The zero value is ready
// to use and equivalent to a reset validator in the accept state.
type utf8Validator struct {
	state     uint32
	codepoint uint32
}

func (v *utf8Validator) reset() {
	v.state = utf8Accept
	v.codepoint = 0
}

// consume feeds p to the validator. It returns false as soon as a byte makes
// the stream irrecoverably malformed; the validator stays in the reject
// state until reset.
func (v *utf8Validator) consume(p []byte) bool {
	for _, b := range p {
		t := uint32(utf8Table[b])
		if v.state != utf8Accept {
			v.codepoint = uint32(b)&0x3f | v.codepoint<<6
		} else {
			v.codepoint = (0xff >> t) & uint32(b)
		}
		v.state = uint32(utf8Table[256+v.state+t])
		if v.state == utf8Reject {
			return false
		}
	}
	return true
}

// complete reports whether the stream ends on a codepoint boundary. A
// message whose final byte leaves a codepoint half decoded is invalid even
// though every byte so far was acceptable.
func (v *utf8Validator) complete() bool {
	return v.state == utf8Accept
}
