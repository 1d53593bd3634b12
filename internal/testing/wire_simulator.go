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
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-wobridge/internal/frame"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
)

// PN532 commands handled by the simulator
const (
	cmdGetFirmwareVersion  = 0x02
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
)

// PN532 status bytes returned by the simulator
const (
	errTimeout         = 0x01
	errMifare          = 0x05
	errInvalidParam    = 0x10
	errMifareAuth      = 0x14
	errTarget          = 0x29
	errCardDisappeared = 0x2B
)

// Registers the host touches
const (
	RegBitFraming  = 0x633D
	RegCIUStatus2  = 0x6338
	RegTxMode      = 0x6302
	RegRxMode      = 0x6303
	bitMFCrypto1On = 0x08
)

// MIFARE and ISO 14443-A commands seen through InDataExchange or
// InCommunicateThru
const (
	piccWUPA     = 0x52
	piccHLTA     = 0x50
	piccRead     = 0x30
	piccWrite    = 0xA0
	piccAuthKeyA = 0x60
	piccAuthKeyB = 0x61
)

// SimulatorState is the externally visible simulator state.
type SimulatorState struct {
	Registers      map[uint16]byte
	SelectedTarget int // 0 = none, 1 = the tag
	SAMConfigured  bool
	RFFieldOn      bool
}

// VirtualPN532 is a wire-level PN532 simulator. Host frames written to it
// are acknowledged and answered in the read buffer, exactly as a PN532 on
// a UART would. It drives at most one VirtualTag.
type VirtualPN532 struct {
	tag          *VirtualTag
	registers    map[uint16]byte
	lastResponse []byte
	rxBuffer     bytes.Buffer
	txBuffer     bytes.Buffer
	commandLog   []byte
	selected     int
	mu           syncutil.Mutex
	samOK        bool
	rfOn         bool
	injectNACK   bool
	dropNextACK  bool
	corruptNext  bool
}

// NewVirtualPN532 returns a simulator with an empty field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{
		registers: map[uint16]byte{
			RegTxMode: 0x80,
			RegRxMode: 0x80,
		},
	}
}

// SetTag places a tag in the field. nil empties the field.
func (v *VirtualPN532) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.selected = 0
}

// Write accepts host bytes and processes every complete frame.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read returns pending ACK and response bytes. It never blocks; an empty
// buffer reads as zero bytes, like a serial port after its read timeout.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// DropNextACK suppresses the ACK for the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// CorruptNextResponse flips the checksum of the next response frame.
func (v *VirtualPN532) CorruptNextResponse() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = true
}

// State returns a snapshot of the simulator state.
func (v *VirtualPN532) State() SimulatorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	regs := make(map[uint16]byte, len(v.registers))
	for k, val := range v.registers {
		regs[k] = val
	}
	return SimulatorState{
		Registers:      regs,
		SelectedTarget: v.selected,
		SAMConfigured:  v.samOK,
		RFFieldOn:      v.rfOn,
	}
}

// Commands returns the command codes received, in order.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commandLog...)
}

// HasPendingResponse reports whether unread bytes are waiting.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

func (v *VirtualPN532) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()
		if len(data) < frame.MinFrameLength {
			return
		}
		if frame.IsAck(data) {
			v.rxBuffer.Next(len(frame.AckFrame))
			continue
		}
		if frame.IsNack(data) {
			v.rxBuffer.Next(len(frame.NackFrame))
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		f, n, err := frame.Parse(data)
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return
		case errors.Is(err, frame.ErrNoStart):
			// Wake-up preamble and line noise
			v.rxBuffer.Reset()
			return
		case err != nil:
			v.rxBuffer.Next(max(n, 1))
			v.sendErrorFrame()
			continue
		}
		v.rxBuffer.Next(n)
		v.processCommand(f)
	}
}

func (v *VirtualPN532) processCommand(f frame.Frame) {
	if f.TFI != frame.HostToPN532 || len(f.Data) == 0 {
		v.sendErrorFrame()
		return
	}

	if !v.dropNextACK {
		v.txBuffer.Write(frame.AckFrame)
	}
	v.dropNextACK = false

	cmd, params := f.Data[0], f.Data[1:]
	v.commandLog = append(v.commandLog, cmd)

	var resp []byte
	switch cmd {
	case cmdGetFirmwareVersion:
		resp = []byte{0x32, 0x01, 0x06, 0x07}
	case cmdSAMConfiguration:
		v.samOK = len(params) > 0 && params[0] == 0x01
		resp = []byte{}
	case cmdRFConfiguration:
		if len(params) >= 2 && params[0] == 0x01 {
			v.rfOn = params[1]&0x01 != 0
		}
		resp = []byte{}
	case cmdReadRegister:
		resp = v.handleReadRegister(params)
	case cmdWriteRegister:
		resp = v.handleWriteRegister(params)
	case cmdInListPassiveTarget:
		resp = v.handleInListPassiveTarget(params)
	case cmdInSelect:
		resp = v.handleInSelect(params)
	case cmdInRelease:
		v.selected = 0
		if v.tag != nil {
			v.tag.ResetAuthentication()
		}
		resp = []byte{0x00}
	case cmdInDataExchange:
		resp = v.handleInDataExchange(params)
	case cmdInCommunicateThru:
		resp = v.handleInCommunicateThru(params)
	default:
		v.sendErrorFrame()
		return
	}
	v.sendResponse(cmd, resp)
}

func (v *VirtualPN532) sendResponse(cmd byte, data []byte) {
	payload := append([]byte{cmd + 1}, data...)
	out, err := frame.Build(frame.PN532ToHost, payload)
	if err != nil {
		v.sendErrorFrame()
		return
	}
	v.lastResponse = out
	if v.corruptNext {
		// Only this copy is damaged; a NACK gets the intact frame
		v.corruptNext = false
		bad := append([]byte(nil), out...)
		bad[len(bad)-2] ^= 0xFF
		v.txBuffer.Write(bad)
		return
	}
	v.txBuffer.Write(out)
}

func (v *VirtualPN532) sendErrorFrame() {
	out, _ := frame.Build(frame.ErrorTFI, nil)
	v.lastResponse = out
	v.txBuffer.Write(out)
}

func (v *VirtualPN532) handleReadRegister(params []byte) []byte {
	if len(params)%2 != 0 {
		return []byte{errInvalidParam}
	}
	resp := make([]byte, 0, len(params)/2)
	for i := 0; i < len(params); i += 2 {
		addr := uint16(params[i])<<8 | uint16(params[i+1])
		resp = append(resp, v.readRegister(addr))
	}
	return resp
}

func (v *VirtualPN532) readRegister(addr uint16) byte {
	if addr == RegCIUStatus2 {
		if v.tag != nil && v.tag.Authenticated() {
			return v.registers[addr] | bitMFCrypto1On
		}
		return v.registers[addr] &^ bitMFCrypto1On
	}
	return v.registers[addr]
}

func (v *VirtualPN532) handleWriteRegister(params []byte) []byte {
	if len(params)%3 != 0 {
		return []byte{errInvalidParam}
	}
	for i := 0; i < len(params); i += 3 {
		addr := uint16(params[i])<<8 | uint16(params[i+1])
		val := params[i+2]
		v.registers[addr] = val
		if addr == RegCIUStatus2 && val&bitMFCrypto1On == 0 && v.tag != nil {
			v.tag.ResetAuthentication()
		}
	}
	return []byte{}
}

// InListPassiveTarget for 106 kbps type A. The PN532 runs the whole
// activation, so a listed tag ends up ACTIVE. Initiator data restricts the
// search to one UID, and a freshly woken (READY) tag is listed as well.
func (v *VirtualPN532) handleInListPassiveTarget(params []byte) []byte {
	if len(params) < 2 || params[0] == 0 || params[0] > 2 || params[1] != 0x00 {
		return []byte{errInvalidParam}
	}
	v.rfOn = true
	uid := params[2:]

	tag := v.tag
	if tag == nil || !tag.Present() {
		return []byte{0x00}
	}
	switch tag.State() {
	case StateIdle:
		if !tag.Request() {
			return []byte{0x00}
		}
	case StateReady:
	default:
		return []byte{0x00}
	}
	if !tag.Select(uid) {
		return []byte{0x00}
	}

	v.selected = 1
	tagUID := tag.UID()
	resp := []byte{0x01, 0x01}
	resp = append(resp, tag.ATQA()...)
	resp = append(resp, tag.SAK(), byte(len(tagUID)))
	return append(resp, tagUID...)
}

func (v *VirtualPN532) handleInSelect(params []byte) []byte {
	if len(params) < 1 || params[0] != 1 || v.tag == nil {
		return []byte{errTarget}
	}
	if !v.tag.Present() {
		return []byte{errCardDisappeared}
	}
	v.selected = 1
	return []byte{0x00}
}

func (v *VirtualPN532) handleInDataExchange(params []byte) []byte {
	if len(params) < 2 {
		return []byte{errInvalidParam}
	}
	if v.selected == 0 || int(params[0]) != v.selected || v.tag == nil {
		return []byte{errTarget}
	}
	if !v.tag.Present() {
		return []byte{errCardDisappeared}
	}

	cmd := params[1:]
	switch cmd[0] {
	case piccAuthKeyA, piccAuthKeyB:
		if len(cmd) < 12 {
			return []byte{errInvalidParam}
		}
		uid := v.tag.UID()
		if !bytes.Equal(cmd[8:12], uid[len(uid)-4:]) {
			return []byte{errMifareAuth}
		}
		if err := v.tag.Authenticate(int(cmd[1]), cmd[0] == piccAuthKeyB, cmd[2:8]); err != nil {
			return []byte{errMifareAuth}
		}
		return []byte{0x00}
	case piccRead:
		if len(cmd) < 2 {
			return []byte{errInvalidParam}
		}
		data, err := v.tag.ReadBlock(int(cmd[1]))
		if err != nil {
			return []byte{errMifareAuth}
		}
		return append([]byte{0x00}, data...)
	case piccWrite:
		if len(cmd) != 2+blockSize {
			return []byte{errInvalidParam}
		}
		if err := v.tag.WriteBlock(int(cmd[1]), cmd[2:]); err != nil {
			return []byte{errMifare}
		}
		return []byte{0x00}
	default:
		return []byte{errMifare}
	}
}

// InCommunicateThru handles the two raw frames the host sends: WUPA as a
// 7-bit short frame and HLTA. A card never answers HLTA, so the PN532
// reports a timeout.
func (v *VirtualPN532) handleInCommunicateThru(params []byte) []byte {
	if len(params) == 0 {
		return []byte{errInvalidParam}
	}
	switch params[0] {
	case piccWUPA:
		if v.registers[RegBitFraming]&0x07 != 0x07 {
			return []byte{errTimeout}
		}
		if v.tag == nil || !v.tag.Wakeup() {
			return []byte{errTimeout}
		}
		return append([]byte{0x00}, v.tag.ATQA()...)
	case piccHLTA:
		if v.tag != nil {
			v.tag.Halt()
		}
		return []byte{errTimeout}
	default:
		return []byte{errMifare}
	}
}
