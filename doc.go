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

// Package wobridge bridges a host computer and a contactless card reader.
//
// The host sends framed ASCII commands over a serial link. The bridge
// reassembles them, drives the reader to read or write a 7-character work
// order code kept in block 1 of a MIFARE Classic card, and answers reads
// with a framed response on the same link.
//
// # Components
//
//   - [protocol.Assembler] turns the byte stream into packets.
//   - [Dispatcher] interprets the command tag of a packet.
//   - [Session] runs the wake/select/authenticate/read-or-write/halt
//     sequence against a [Card].
//   - [Bridge] is the single-goroutine idle loop tying them together. It
//     halts the card and stops the crypto session after every iteration,
//     whether or not a command was processed.
//
// # Card backends
//
// [Card] is implemented by the PN532 driver in reader/pn532 (UART or I2C)
// and by the PC/SC driver in reader/pcsc. Tests use the virtual card in
// internal/testing.
//
// # Basic usage
//
//	port, err := serial.Open("/dev/ttyACM0", serial.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer port.Close()
//
//	session := wobridge.NewSession(card, nil)
//	bridge := wobridge.NewBridge(port, session, nil)
//	return bridge.Run(ctx)
//
// # Debugging
//
// Set WOBRIDGE_DEBUG=1 (or DEBUG=1) to enable [Debugf] output, or attach a
// zap logger with [SetLogger].
package wobridge
