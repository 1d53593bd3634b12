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

package wobridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MIFARE Classic memory layout
const (
	BlockSize      = 16 // Data bytes per block
	ReadBufferSize = 18 // Block plus 2-byte CRC, minimum read buffer
	KeySize        = 6  // Bytes per sector key
	SectorBlocks   = 4  // Blocks per sector (1K layout)

	// WorkOrderBlock holds the work order code in bytes 0-6.
	WorkOrderBlock uint8 = 1
)

// KeySlot selects which sector key to authenticate with.
type KeySlot byte

// Key slots
const (
	KeyA KeySlot = 0x00
	KeyB KeySlot = 0x01
)

func (k KeySlot) String() string {
	switch k {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("KeySlot(0x%02X)", byte(k))
	}
}

// Key is a 6-byte MIFARE Classic sector key.
type Key [KeySize]byte

// DefaultKey is the factory transport key (FFFFFFFFFFFFh) every card ships with.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// UID is a card serial number (4, 7 or 10 bytes).
type UID []byte

func (u UID) String() string {
	return strings.ToUpper(fmt.Sprintf("%x", []byte(u)))
}

// Status is the named outcome of a card primitive. Backends return nil on
// success and wrap a non-OK Status in their errors so the session can log
// it verbatim.
type Status byte

// Card primitive outcomes
const (
	StatusOK Status = iota
	StatusError
	StatusCollision
	StatusTimeout
	StatusNoRoom
	StatusInternal
	StatusInvalid
	StatusCRCWrong
	StatusMIFARENack
)

var statusNames = map[Status]string{
	StatusOK:         "ok",
	StatusError:      "error in communication",
	StatusCollision:  "collision detected",
	StatusTimeout:    "timeout in communication",
	StatusNoRoom:     "buffer not big enough",
	StatusInternal:   "internal error",
	StatusInvalid:    "invalid argument",
	StatusCRCWrong:   "CRC mismatch",
	StatusMIFARENack: "MIFARE NACK",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02X", byte(s))
}

func (s Status) Error() string {
	return s.String()
}

// StatusOf extracts the card status carried by err. A nil error is
// StatusOK; errors without a status report StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusError
}

// Card is the card-primitive layer the session drives. It mirrors the
// ISO 14443-A / MIFARE Classic operations of a proximity coupling device.
//
// Implementations are not required to be safe for concurrent use. All
// methods block until the reader answers or its own timeout expires.
type Card interface {
	// IsNewCardPresent reports whether a card in IDLE state answered a
	// request. Halted cards do not count.
	IsNewCardPresent(ctx context.Context) bool
	// ReadCardSerial runs anticollision and selection for the card found
	// by IsNewCardPresent and records its UID.
	ReadCardSerial(ctx context.Context) bool
	// Wakeup sends a wake-up request that also reaches halted cards and
	// returns the answer to request (ATQA).
	Wakeup(ctx context.Context) ([]byte, error)
	// Select selects the card with the given UID. An empty UID runs a
	// full anticollision loop.
	Select(ctx context.Context, uid UID) error
	// UID returns the UID of the most recently selected card.
	UID() UID
	// Authenticate starts a Crypto1 session for the sector holding block.
	Authenticate(ctx context.Context, slot KeySlot, block uint8, key Key, uid UID) error
	// ReadBlock returns ReadBufferSize bytes: the block data followed by
	// two CRC bytes (zero when the reader strips them).
	ReadBlock(ctx context.Context, block uint8) ([]byte, error)
	// WriteBlock writes exactly BlockSize bytes.
	WriteBlock(ctx context.Context, block uint8, data []byte) error
	// Halt puts the card into HALT state.
	Halt(ctx context.Context) error
	// StopCrypto leaves the authenticated state on the reader side.
	StopCrypto(ctx context.Context) error
}
