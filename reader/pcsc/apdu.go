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

package pcsc

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ebfe/scard"
)

// PC/SC part 3 pseudo-APDUs for contactless storage cards
const (
	claPseudo       = 0xFF
	insGetData      = 0xCA
	insLoadKey      = 0x82
	insGeneralAuth  = 0x86
	insReadBinary   = 0xB0
	insUpdateBinary = 0xD6

	keyTypeA = 0x60
	keyTypeB = 0x61

	// Volatile key location used for LOAD KEY and GENERAL AUTHENTICATE
	keySlot = 0x00
)

// ErrShortResponse means the reader answered with less than a status word.
var ErrShortResponse = errors.New("response shorter than status word")

// APDUError is a status word other than 90 00.
type APDUError struct {
	Command string
	SW1     byte
	SW2     byte
}

func (e *APDUError) Error() string {
	return fmt.Sprintf("%s: SW %02X %02X", e.Command, e.SW1, e.SW2)
}

// Unwrap exposes the matching card status.
func (e *APDUError) Unwrap() error {
	return e.Status()
}

// Status maps the status word to a card status.
func (e *APDUError) Status() wobridge.Status {
	switch {
	case e.SW1 == 0x90 && e.SW2 == 0x00:
		return wobridge.StatusOK
	case e.SW1 == 0x63, e.SW1 == 0x69:
		// 63 00 operation failed, 69 82/83/86 security status
		return wobridge.StatusMIFARENack
	case e.SW1 == 0x6A, e.SW1 == 0x67, e.SW1 == 0x6B:
		return wobridge.StatusInvalid
	case e.SW1 == 0x6C:
		return wobridge.StatusNoRoom
	default:
		return wobridge.StatusError
	}
}

func getUID() []byte {
	return []byte{claPseudo, insGetData, 0x00, 0x00, 0x00}
}

func loadKey(key wobridge.Key) []byte {
	apdu := []byte{claPseudo, insLoadKey, 0x00, keySlot, wobridge.KeySize}
	return append(apdu, key[:]...)
}

func generalAuthenticate(slot wobridge.KeySlot, block uint8) []byte {
	keyType := byte(keyTypeA)
	if slot == wobridge.KeyB {
		keyType = keyTypeB
	}
	return []byte{claPseudo, insGeneralAuth, 0x00, 0x00, 0x05, 0x01, 0x00, block, keyType, keySlot}
}

func readBinary(block uint8) []byte {
	return []byte{claPseudo, insReadBinary, 0x00, block, wobridge.BlockSize}
}

func updateBinary(block uint8, data []byte) []byte {
	apdu := []byte{claPseudo, insUpdateBinary, 0x00, block, byte(len(data))}
	return append(apdu, data...)
}

// linkError marks PC/SC errors that mean the card left the field.
func linkError(err error) error {
	if errors.Is(err, scard.ErrRemovedCard) || errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrResetCard) {
		return fmt.Errorf("%w: %w", err, wobridge.StatusTimeout)
	}
	return err
}
