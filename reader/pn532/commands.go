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

// PN532 commands (user manual chapter 7)
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

// CIU registers (PN532 user manual 8.6.22, PN512 register map)
const (
	regTxMode     uint16 = 0x6302
	regRxMode     uint16 = 0x6303
	regCIUStatus2 uint16 = 0x6338
	regBitFraming uint16 = 0x633D

	crcEnable      = 0x80 // TxMode/RxMode: CRC on, 106 kbps
	bitMFCrypto1On = 0x08 // CIU_Status2
	shortFrameBits = 0x07 // BitFraming TxLastBits for a 7-bit frame
)

// ISO 14443-A and MIFARE Classic commands
const (
	piccWUPA     = 0x52
	piccHLTA     = 0x50
	piccRead     = 0x30
	piccWrite    = 0xA0
	piccAuthKeyA = 0x60
)

const (
	brTy106kTypeA = 0x00
	statusMask    = 0x3F // Status byte: bits 0-5 error code, 6 MI, 7 NAD
	errorFrameTFI = 0x7F
)

var commandNames = map[byte]string{
	cmdGetFirmwareVersion:  "GetFirmwareVersion",
	cmdReadRegister:        "ReadRegister",
	cmdWriteRegister:       "WriteRegister",
	cmdSAMConfiguration:    "SAMConfiguration",
	cmdRFConfiguration:     "RFConfiguration",
	cmdInDataExchange:      "InDataExchange",
	cmdInCommunicateThru:   "InCommunicateThru",
	cmdInListPassiveTarget: "InListPassiveTarget",
	cmdInRelease:           "InRelease",
	cmdInSelect:            "InSelect",
}

func commandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "command"
}
