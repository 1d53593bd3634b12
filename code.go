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

import "github.com/ZaparooProject/go-wobridge/protocol"

// Work order code layout
const (
	CodeLength = protocol.CodeLength

	// Sentinel replaces blank (space) and NUL bytes in reported codes so the
	// host can tell unused positions from data.
	Sentinel byte = '#'
	// PadByte fills the rest of the block after the code on write.
	PadByte byte = ' '
)

// Code is a work order as reported to the host.
type Code [CodeLength]byte

// Bytes returns the code as a slice.
func (c Code) Bytes() []byte {
	return c[:]
}

func (c Code) String() string {
	return string(c[:])
}

// Blank reports whether every position is the sentinel.
func (c Code) Blank() bool {
	for _, b := range c {
		if b != Sentinel {
			return false
		}
	}
	return true
}

// Sanitize builds a Code from the first CodeLength bytes of block data.
// Only 0x20 and 0x00 are replaced by Sentinel; every other byte passes
// through untouched. Missing bytes count as NUL.
func Sanitize(data []byte) Code {
	var code Code
	for i := range code {
		if i >= len(data) || data[i] == ' ' || data[i] == 0x00 {
			code[i] = Sentinel
			continue
		}
		code[i] = data[i]
	}
	return code
}

// PadBlock lays out a code for writing: up to CodeLength bytes of code at
// the start of a block, PadByte in every remaining position.
func PadBlock(code []byte) []byte {
	block := make([]byte, BlockSize)
	n := copy(block[:CodeLength], code)
	for i := n; i < BlockSize; i++ {
		block[i] = PadByte
	}
	return block
}
