// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package protocol implements the host-side wire format of the bridge:
// ASCII packets delimited by '<' and '>' carrying a one-byte command tag.
//
// Host to bridge:
//
//	<R>          read the work order stored on the card
//	<W:1234567>  write a work order (code starts at payload offset 2)
//
// Bridge to host (reads only):
//
//	<D:1234567>\r\n
package protocol

import "fmt"

// Packet delimiters and separators
const (
	StartMarker = '<' // Start of packet
	EndMarker   = '>' // End of packet
	Separator   = ':' // Between tag and operand
)

// Command and response tags
const (
	TagRead  = 'R' // Host requests a read
	TagWrite = 'W' // Host requests a write
	TagData  = 'D' // Bridge reports read data
)

// Operand layout
const (
	// OperandOffset is where inline operands start: tag, separator, operand.
	OperandOffset = 2
	// CodeLength is the fixed width of a work order code on the wire.
	CodeLength = 7
	// ResponseLength is the size of an encoded read response including CR LF.
	ResponseLength = 1 + 1 + 1 + CodeLength + 1 + 2
)

// Packet is one fully received payload, without delimiters.
type Packet struct {
	payload []byte
	// Truncated reports that bytes past the assembler capacity were dropped.
	Truncated bool
}

// NewPacket wraps a payload. The slice is copied.
func NewPacket(payload []byte) Packet {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Packet{payload: p}
}

// Payload returns the bytes between the markers.
func (p Packet) Payload() []byte {
	return p.payload
}

// Len returns the payload length.
func (p Packet) Len() int {
	return len(p.payload)
}

// Tag returns the leading command byte. ok is false for an empty payload.
func (p Packet) Tag() (tag byte, ok bool) {
	if len(p.payload) == 0 {
		return 0, false
	}
	return p.payload[0], true
}

// Code extracts an inline work order operand: up to CodeLength bytes
// starting at OperandOffset, stopping early at a NUL byte. The separator
// byte at offset 1 is not checked.
func (p Packet) Code() []byte {
	if len(p.payload) <= OperandOffset {
		return []byte{}
	}

	end := OperandOffset + CodeLength
	if end > len(p.payload) {
		end = len(p.payload)
	}

	code := make([]byte, 0, CodeLength)
	for _, b := range p.payload[OperandOffset:end] {
		if b == 0x00 {
			break
		}
		code = append(code, b)
	}
	return code
}

func (p Packet) String() string {
	if p.Truncated {
		return fmt.Sprintf("<%s> (truncated)", p.payload)
	}
	return fmt.Sprintf("<%s>", p.payload)
}

// EncodeResponse builds the read response for a sanitized code:
// '<' 'D' ':' code '>' CR LF. code must be CodeLength bytes.
func EncodeResponse(code []byte) ([]byte, error) {
	if len(code) != CodeLength {
		return nil, fmt.Errorf("response code must be %d bytes, got %d", CodeLength, len(code))
	}

	out := make([]byte, 0, ResponseLength)
	out = append(out, StartMarker, TagData, Separator)
	out = append(out, code...)
	out = append(out, EndMarker, '\r', '\n')
	return out, nil
}

// EncodeCommand frames a host command. A nil operand produces "<T>",
// otherwise "<T:operand>".
func EncodeCommand(tag byte, operand []byte) []byte {
	out := make([]byte, 0, 4+len(operand))
	out = append(out, StartMarker, tag)
	if operand != nil {
		out = append(out, Separator)
		out = append(out, operand...)
	}
	return append(out, EndMarker)
}
