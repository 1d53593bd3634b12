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

package testing

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
)

// Card primitive names, as recorded in the call log
const (
	CallIsNewCardPresent = "IsNewCardPresent"
	CallReadCardSerial   = "ReadCardSerial"
	CallWakeup           = "Wakeup"
	CallSelect           = "Select"
	CallAuthenticate     = "Authenticate"
	CallReadBlock        = "ReadBlock"
	CallWriteBlock       = "WriteBlock"
	CallHalt             = "Halt"
	CallStopCrypto       = "StopCrypto"
)

// VirtualCard implements wobridge.Card on top of a VirtualTag, the way a
// proximity coupling device would drive it. It records every primitive
// call and can inject one-shot failures per primitive.
type VirtualCard struct {
	tag      *VirtualTag
	faults   map[string]fault
	calls    []string
	uid      wobridge.UID
	mu       syncutil.Mutex
	cryptoOn bool
}

// NewVirtualCard creates a reader with tag in its field. A nil tag means an
// empty field.
func NewVirtualCard(tag *VirtualTag) *VirtualCard {
	return &VirtualCard{
		tag:    tag,
		faults: make(map[string]fault),
	}
}

// SetTag swaps the tag in the field. nil empties the field.
func (c *VirtualCard) SetTag(tag *VirtualTag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tag = tag
}

// Tag returns the tag currently in the field.
func (c *VirtualCard) Tag() *VirtualTag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

type fault struct {
	status wobridge.Status
	skip   int
}

// FailNext makes the next call to the named primitive fail with status.
// Boolean primitives report false instead.
func (c *VirtualCard) FailNext(call string, status wobridge.Status) {
	c.FailOn(call, 1, status)
}

// FailOn makes the nth call (counting from 1) to the named primitive fail
// with status. Calls before it succeed.
func (c *VirtualCard) FailOn(call string, nth int, status wobridge.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[call] = fault{status: status, skip: nth - 1}
}

// Calls returns the primitive call log.
func (c *VirtualCard) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CallCount returns how many times the named primitive was called.
func (c *VirtualCard) CallCount(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.calls {
		if got == call {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (c *VirtualCard) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// CryptoActive reports whether the reader side holds a Crypto1 session.
func (c *VirtualCard) CryptoActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cryptoOn
}

// enter logs the call and returns the injected fault, if any.
// Callers hold c.mu.
func (c *VirtualCard) enter(call string) (wobridge.Status, bool) {
	c.calls = append(c.calls, call)
	f, ok := c.faults[call]
	if !ok {
		return wobridge.StatusOK, false
	}
	if f.skip > 0 {
		f.skip--
		c.faults[call] = f
		return wobridge.StatusOK, false
	}
	delete(c.faults, call)
	return f.status, true
}

func statusErr(call string, status wobridge.Status) error {
	return fmt.Errorf("virtual card %s: %w", call, status)
}

func (c *VirtualCard) present() bool {
	return c.tag != nil && c.tag.Present()
}

func (c *VirtualCard) IsNewCardPresent(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, fail := c.enter(CallIsNewCardPresent); fail {
		return false
	}
	return c.present() && c.tag.Request()
}

func (c *VirtualCard) ReadCardSerial(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, fail := c.enter(CallReadCardSerial); fail {
		return false
	}
	if !c.present() || !c.tag.Select(nil) {
		return false
	}
	c.uid = c.tag.UID()
	return true
}

func (c *VirtualCard) Wakeup(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallWakeup); fail {
		return nil, statusErr(CallWakeup, status)
	}
	if !c.present() || !c.tag.Wakeup() {
		return nil, statusErr(CallWakeup, wobridge.StatusTimeout)
	}
	return c.tag.ATQA(), nil
}

func (c *VirtualCard) Select(_ context.Context, uid wobridge.UID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallSelect); fail {
		return statusErr(CallSelect, status)
	}
	if !c.present() || !c.tag.Select(uid) {
		return statusErr(CallSelect, wobridge.StatusTimeout)
	}
	c.uid = c.tag.UID()
	return nil
}

func (c *VirtualCard) UID() wobridge.UID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(wobridge.UID(nil), c.uid...)
}

func (c *VirtualCard) Authenticate(
	_ context.Context, slot wobridge.KeySlot, block uint8, key wobridge.Key, _ wobridge.UID,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallAuthenticate); fail {
		return statusErr(CallAuthenticate, status)
	}
	if !c.present() {
		return statusErr(CallAuthenticate, wobridge.StatusTimeout)
	}
	if err := c.tag.Authenticate(int(block), slot == wobridge.KeyB, key[:]); err != nil {
		// A card rejecting the key simply stops answering
		return fmt.Errorf("virtual card %s: %w: %w", CallAuthenticate, wobridge.StatusTimeout, err)
	}
	c.cryptoOn = true
	return nil
}

func (c *VirtualCard) ReadBlock(_ context.Context, block uint8) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallReadBlock); fail {
		return nil, statusErr(CallReadBlock, status)
	}
	if !c.present() {
		return nil, statusErr(CallReadBlock, wobridge.StatusTimeout)
	}
	data, err := c.tag.ReadBlock(int(block))
	if err != nil {
		return nil, fmt.Errorf("virtual card %s: %w: %w", CallReadBlock, wobridge.StatusMIFARENack, err)
	}
	crc := CRCA(data)
	return append(data, crc[0], crc[1]), nil
}

func (c *VirtualCard) WriteBlock(_ context.Context, block uint8, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallWriteBlock); fail {
		return statusErr(CallWriteBlock, status)
	}
	if len(data) != blockSize {
		return statusErr(CallWriteBlock, wobridge.StatusInvalid)
	}
	if !c.present() {
		return statusErr(CallWriteBlock, wobridge.StatusTimeout)
	}
	if err := c.tag.WriteBlock(int(block), data); err != nil {
		return fmt.Errorf("virtual card %s: %w: %w", CallWriteBlock, wobridge.StatusMIFARENack, err)
	}
	return nil
}

func (c *VirtualCard) Halt(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallHalt); fail {
		return statusErr(CallHalt, status)
	}
	if c.tag != nil {
		c.tag.Halt()
	}
	return nil
}

func (c *VirtualCard) StopCrypto(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, fail := c.enter(CallStopCrypto); fail {
		return statusErr(CallStopCrypto, status)
	}
	c.cryptoOn = false
	if c.tag != nil {
		c.tag.ResetAuthentication()
	}
	return nil
}

// CRCA computes the ISO 14443-A CRC, low byte first.
func CRCA(data []byte) [2]byte {
	crc := uint16(0x6363)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		crc = (crc >> 8) ^ (uint16(b) << 8) ^ (uint16(b) << 3) ^ (uint16(b) >> 4)
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

var _ wobridge.Card = (*VirtualCard)(nil)
