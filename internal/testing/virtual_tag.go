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

// Package testing provides in-memory doubles for the bridge: a MIFARE
// Classic 1K tag model, a Card built on it, a host link and a PN532
// simulator that speaks the wire protocol.
package testing

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
)

// MIFARE Classic 1K geometry
const (
	mifare1KBlocks  = 64
	blocksPerSector = 4
	blockSize       = 16
	keySize         = 6
)

// ISO 14443-3 card states as seen by the reader.
type TagState int

const (
	StateIdle TagState = iota
	StateReady
	StateActive
	StateHalt
)

func (s TagState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	case StateHalt:
		return "HALT"
	default:
		return fmt.Sprintf("TagState(%d)", int(s))
	}
}

var (
	ErrTagAbsent        = errors.New("tag not in field")
	ErrTagState         = errors.New("tag in wrong state")
	ErrTagAuth          = errors.New("tag authentication failed")
	ErrTagNotAuthorized = errors.New("sector not authenticated")
	ErrTagBlockRange    = errors.New("block out of range")
	ErrTagReadOnly      = errors.New("block is read-only")
	ErrTagDataLength    = errors.New("block data must be 16 bytes")
)

// Test UIDs
var (
	TestUID4 = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	TestUID7 = []byte{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
)

// DefaultTagKey is the factory key on every sector.
var DefaultTagKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// VirtualTag models a MIFARE Classic 1K card: its memory, sector keys and
// the IDLE/READY/ACTIVE/HALT state machine that decides which requests it
// answers.
type VirtualTag struct {
	uid        []byte
	memory     [mifare1KBlocks][blockSize]byte
	keysA      [mifare1KBlocks / blocksPerSector][keySize]byte
	keysB      [mifare1KBlocks / blocksPerSector][keySize]byte
	authSector int
	state      TagState
	mu         syncutil.Mutex
	present    bool
}

// NewVirtualMIFARE1K returns a blank card in the field, in IDLE state, with
// the default key on every sector. A nil uid uses TestUID4.
func NewVirtualMIFARE1K(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestUID4
	}
	t := &VirtualTag{
		uid:        append([]byte(nil), uid...),
		present:    true,
		authSector: -1,
	}
	for s := range t.keysA {
		copy(t.keysA[s][:], DefaultTagKey)
		copy(t.keysB[s][:], DefaultTagKey)
		// Transport configuration access bits
		trailer := &t.memory[s*blocksPerSector+blocksPerSector-1]
		copy(trailer[0:6], DefaultTagKey)
		copy(trailer[6:10], []byte{0xFF, 0x07, 0x80, 0x69})
		copy(trailer[10:16], DefaultTagKey)
	}
	// Manufacturer block: UID, BCC (4-byte UIDs), SAK, ATQA
	n := copy(t.memory[0][:], uid)
	if len(uid) == 4 {
		t.memory[0][n] = uid[0] ^ uid[1] ^ uid[2] ^ uid[3]
		n++
	}
	if n+3 <= blockSize {
		t.memory[0][n] = t.SAK()
		copy(t.memory[0][n+1:n+3], t.ATQA())
	}
	return t
}

// UID returns a copy of the card serial number.
func (t *VirtualTag) UID() []byte {
	return append([]byte(nil), t.uid...)
}

// ATQA is the answer to request for a 1K card.
func (t *VirtualTag) ATQA() []byte {
	if len(t.uid) == 7 {
		return []byte{0x44, 0x00}
	}
	return []byte{0x04, 0x00}
}

// SAK is the select acknowledge for a 1K card.
func (*VirtualTag) SAK() byte {
	return 0x08
}

// State returns the current state machine position.
func (t *VirtualTag) State() TagState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Present reports whether the tag is in the field.
func (t *VirtualTag) Present() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present
}

// Remove takes the tag out of the field.
func (t *VirtualTag) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = false
	t.state = StateIdle
	t.authSector = -1
}

// Place puts the tag back in the field. Power-up leaves it IDLE.
func (t *VirtualTag) Place() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = true
	t.state = StateIdle
	t.authSector = -1
}

// Request models REQA: only IDLE cards answer.
func (t *VirtualTag) Request() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present || t.state != StateIdle {
		return false
	}
	t.state = StateReady
	return true
}

// Wakeup models WUPA: IDLE and HALT cards answer.
func (t *VirtualTag) Wakeup() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present {
		return false
	}
	switch t.state {
	case StateIdle, StateHalt:
		t.state = StateReady
		return true
	case StateReady, StateActive:
		// Already awake; answer again from READY
		t.state = StateReady
		t.authSector = -1
		return true
	}
	return false
}

// Select moves a READY card to ACTIVE. An empty uid matches any card, as a
// full anticollision loop would; otherwise the UID must match exactly.
func (t *VirtualTag) Select(uid []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present || t.state != StateReady {
		return false
	}
	if len(uid) > 0 && !bytes.Equal(uid, t.uid) {
		return false
	}
	t.state = StateActive
	return true
}

// Halt models HLTA. Only an ACTIVE card is affected.
func (t *VirtualTag) Halt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateActive {
		t.state = StateHalt
	}
	t.authSector = -1
}

// ResetAuthentication drops the Crypto1 session.
func (t *VirtualTag) ResetAuthentication() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authSector = -1
}

// Authenticated reports whether a Crypto1 session is open.
func (t *VirtualTag) Authenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authSector >= 0
}

// Authenticate opens a Crypto1 session for the sector holding block.
// A wrong key drops the card back to IDLE, like real hardware.
func (t *VirtualTag) Authenticate(block int, keyB bool, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present {
		return ErrTagAbsent
	}
	if t.state != StateActive {
		return fmt.Errorf("%w: %s", ErrTagState, t.state)
	}
	if block < 0 || block >= mifare1KBlocks {
		return fmt.Errorf("%w: %d", ErrTagBlockRange, block)
	}
	sector := block / blocksPerSector
	want := t.keysA[sector][:]
	if keyB {
		want = t.keysB[sector][:]
	}
	if !bytes.Equal(key, want) {
		t.state = StateIdle
		t.authSector = -1
		return fmt.Errorf("%w: sector %d", ErrTagAuth, sector)
	}
	t.authSector = sector
	return nil
}

func (t *VirtualTag) checkAccess(block int) error {
	if !t.present {
		return ErrTagAbsent
	}
	if t.state != StateActive {
		return fmt.Errorf("%w: %s", ErrTagState, t.state)
	}
	if block < 0 || block >= mifare1KBlocks {
		return fmt.Errorf("%w: %d", ErrTagBlockRange, block)
	}
	if t.authSector != block/blocksPerSector {
		return fmt.Errorf("%w: block %d", ErrTagNotAuthorized, block)
	}
	return nil
}

// ReadBlock returns the 16 bytes of an authenticated block.
func (t *VirtualTag) ReadBlock(block int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(block); err != nil {
		return nil, err
	}
	data := make([]byte, blockSize)
	copy(data, t.memory[block][:])
	return data, nil
}

// WriteBlock stores 16 bytes into an authenticated block. The
// manufacturer block is read-only.
func (t *VirtualTag) WriteBlock(block int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(block); err != nil {
		return err
	}
	if len(data) != blockSize {
		return fmt.Errorf("%w: got %d", ErrTagDataLength, len(data))
	}
	if block == 0 {
		return ErrTagReadOnly
	}
	copy(t.memory[block][:], data)
	return nil
}

// Block returns a block without authentication, for test assertions.
func (t *VirtualTag) Block(block int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.memory[block][:]...)
}

// SetBlock stores a block without authentication, for test setup. Short
// data is zero-filled.
func (t *VirtualTag) SetBlock(block int, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.memory[block] = [blockSize]byte{}
	copy(t.memory[block][:], data)
}

// SetSectorKey changes a sector key, for testing authentication failures.
func (t *VirtualTag) SetSectorKey(sector int, keyB bool, key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if keyB {
		copy(t.keysB[sector][:], key)
		return
	}
	copy(t.keysA[sector][:], key)
}
