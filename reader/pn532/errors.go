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

package pn532

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-wobridge"
)

// Transport errors
var (
	ErrNoACK              = errors.New("PN532 did not acknowledge command")
	ErrTimeout            = errors.New("PN532 response timeout")
	ErrFrameCorrupted     = errors.New("PN532 frame corrupted")
	ErrNotReady           = errors.New("PN532 not ready")
	ErrTransportClosed    = errors.New("transport closed")
	ErrErrorFrame         = errors.New("PN532 rejected command frame")
	ErrUnexpectedResponse = errors.New("unexpected PN532 response")
)

// TransportError adds the operation and port to a transport failure.
type TransportError struct {
	Err  error
	Op   string
	Port string
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PN532Error is a non-zero status byte returned by a PN532 command.
type PN532Error struct {
	Command string
	Code    byte
}

func (e *PN532Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.Code, errorCodeMeaning(e.Code))
}

// Unwrap exposes the matching card status, so wobridge.StatusOf works on
// any error carrying a PN532Error.
func (e *PN532Error) Unwrap() error {
	return e.Status()
}

// Status maps the PN532 error code to a card status.
func (e *PN532Error) Status() wobridge.Status {
	switch e.Code {
	case 0x00:
		return wobridge.StatusOK
	case 0x01, 0x29, 0x2A, 0x2B:
		return wobridge.StatusTimeout
	case 0x02:
		return wobridge.StatusCRCWrong
	case 0x05, 0x14:
		return wobridge.StatusMIFARENack
	case 0x06:
		return wobridge.StatusCollision
	case 0x07, 0x09, 0x0E:
		return wobridge.StatusNoRoom
	case 0x10, 0x25, 0x26, 0x27, 0x81:
		return wobridge.StatusInvalid
	case 0x0A, 0x0D, 0x2D:
		return wobridge.StatusInternal
	default:
		return wobridge.StatusError
	}
}

// IsTimeout reports whether the card did not answer.
func (e *PN532Error) IsTimeout() bool {
	return e.Code == 0x01
}

// errorCodeMeaning returns the PN532 user manual description of an error
// code (section 7.1).
func errorCodeMeaning(code byte) string {
	if m, ok := errorMeanings[code]; ok {
		return m
	}
	return "unknown error"
}

var errorMeanings = map[byte]string{
	0x00: "success",
	0x01: "timeout",
	0x02: "CRC error",
	0x03: "parity error",
	0x04: "erroneous bit count during anti-collision",
	0x05: "framing error during mifare operation",
	0x06: "abnormal bit collision",
	0x07: "communication buffer size insufficient",
	0x09: "RF buffer overflow",
	0x0A: "RF field not activated in time",
	0x0B: "RF protocol error",
	0x0D: "overheating",
	0x0E: "internal buffer overflow",
	0x10: "invalid parameter",
	0x12: "DEP protocol not supported",
	0x13: "dataformat does not match",
	0x14: "authentication error",
	0x23: "UID check byte is wrong",
	0x25: "DEP invalid state",
	0x26: "operation not allowed",
	0x27: "wrong context for command",
	0x29: "target released by initiator",
	0x2A: "card ID mismatch",
	0x2B: "card disappeared",
	0x2C: "NFCID3 initiator/target mismatch",
	0x2D: "over-current event",
	0x2E: "NAD missing in DEP frame",
	0x81: "command not supported",
}
