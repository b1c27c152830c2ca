// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package websocket

// Close codes defined in RFC 6455, section 11.7.
const (
	CloseNormalClosure           = 1000
	CloseGoingAway               = 1001
	CloseProtocolError           = 1002
	CloseUnsupportedData         = 1003
	CloseNoStatusReceived        = 1005
	CloseAbnormalClosure         = 1006
	CloseInvalidFramePayloadData = 1007
	ClosePolicyViolation         = 1008
	CloseMessageTooBig           = 1009
	CloseMandatoryExtension      = 1010
	CloseInternalServerErr       = 1011
	CloseServiceRestart          = 1012
	CloseTryAgainLater           = 1013
	CloseTLSHandshake            = 1015
)

// validReceivedCloseCodes lists codes a peer may legitimately put on the
// wire. See http://www.iana.org/assignments/websocket/websocket.xhtml
var validReceivedCloseCodes = map[int]bool{
	CloseNormalClosure:           true,
	CloseGoingAway:               true,
	CloseProtocolError:           true,
	CloseUnsupportedData:         true,
	CloseNoStatusReceived:        false,
	CloseAbnormalClosure:         false,
	CloseInvalidFramePayloadData: true,
	ClosePolicyViolation:         true,
	CloseMessageTooBig:           true,
	CloseMandatoryExtension:      true,
	CloseInternalServerErr:       true,
	CloseServiceRestart:          true,
	CloseTryAgainLater:           true,
	CloseTLSHandshake:            false,
}

func isValidReceivedCloseCode(code int) bool {
	return validReceivedCloseCodes[code] || (code >= 3000 && code <= 4999)
}

// isInvalidCloseCode reports whether code must never appear on the wire at
// all: the sentinel codes 1005 and 1006 and anything that does not fit in
// the 16-bit status field.
func isInvalidCloseCode(code int) bool {
	return code == CloseNoStatusReceived || code == CloseAbnormalClosure ||
		code < 0 || code > 65535
}

// isReservedCloseCode reports whether code belongs to a range the protocol
// reserves away from endpoints: 0-999, the IANA-held 1012-1014 block, and
// 1015 through the start of the registered range.
func isReservedCloseCode(code int) bool {
	return code < 1000 || (code >= CloseServiceRestart && code < 3000)
}
