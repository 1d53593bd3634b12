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

package frame

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed before a frame can be parsed.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrNoStart means the buffer holds no start code.
	ErrNoStart     = errors.New("frame start code not found")
	ErrLenChecksum = errors.New("frame length checksum mismatch")
	ErrChecksum    = errors.New("frame data checksum mismatch")
	ErrTooLong     = errors.New("frame data too long")
)

// Checksum returns the byte sum of data (mod 256).
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Build wraps TFI and data in a normal information frame.
func Build(tfi byte, data []byte) ([]byte, error) {
	if len(data)+1 > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(data))
	}
	length := byte(len(data) + 1)
	out := make([]byte, 0, len(data)+overhead+1)
	out = append(out, Preamble, StartCode1, StartCode2, length, -length, tfi)
	out = append(out, data...)
	out = append(out, -(tfi + Checksum(data)), Postamble)
	return out, nil
}

// BuildCommand builds a host-to-PN532 frame for cmd with its parameters.
func BuildCommand(cmd byte, args []byte) ([]byte, error) {
	data := make([]byte, 0, len(args)+1)
	data = append(data, cmd)
	data = append(data, args...)
	return Build(HostToPN532, data)
}

// Frame is a decoded information frame.
type Frame struct {
	Data []byte // Bytes after TFI
	TFI  byte
}

// IsError reports whether this is an application level error frame.
func (f Frame) IsError() bool {
	return f.TFI == ErrorTFI
}

// IsAck reports whether buf starts with an ACK frame.
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(buf, AckFrame)
}

// IsNack reports whether buf starts with a NACK frame.
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(buf, NackFrame)
}

// FindStart returns the index of the 00 FF start code in buf, or -1.
func FindStart(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == StartCode1 && buf[i+1] == StartCode2 {
			return i
		}
	}
	return -1
}

// Parse decodes the first information frame in buf. It returns the frame
// and the number of bytes consumed, including any leading garbage and the
// postamble when present. ACK and NACK frames are not information frames;
// callers check for them first.
func Parse(buf []byte) (Frame, int, error) {
	start := FindStart(buf)
	if start < 0 {
		return Frame{}, 0, ErrNoStart
	}
	off := start + 2
	if len(buf) < off+2 {
		return Frame{}, 0, ErrIncomplete
	}

	length, lcs := buf[off], buf[off+1]
	if length+lcs != 0 {
		return Frame{}, off + 2, ErrLenChecksum
	}
	if length == 0 {
		return Frame{}, off + 2, fmt.Errorf("%w: empty frame", ErrLenChecksum)
	}

	body := off + 2
	end := body + int(length) // DCS index
	if len(buf) <= end {
		return Frame{}, 0, ErrIncomplete
	}
	if Checksum(buf[body:end+1]) != 0 {
		return Frame{}, end + 1, ErrChecksum
	}

	consumed := end + 1
	if consumed < len(buf) && buf[consumed] == Postamble {
		consumed++
	}

	data := make([]byte, int(length)-1)
	copy(data, buf[body+1:end])
	return Frame{TFI: buf[body], Data: data}, consumed, nil
}
