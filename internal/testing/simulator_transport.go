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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-wobridge/internal/frame"
)

// CommandLogEntry records a command sent through SimulatorTransport.
type CommandLogEntry struct {
	Timestamp time.Time
	Args      []byte
	Cmd       byte
}

// SimulatorTransport sends PN532 commands to a VirtualPN532 through the
// real frame codec. It satisfies the PN532 backend's transport interface:
// SendCommand returns the response code followed by the response data, or
// a lone 0x7F for an error frame.
type SimulatorTransport struct {
	sim        *VirtualPN532
	CommandLog []CommandLogEntry
	closed     bool
}

// NewSimulatorTransport wraps sim.
func NewSimulatorTransport(sim *VirtualPN532) *SimulatorTransport {
	return &SimulatorTransport{sim: sim}
}

// SendCommand writes one command frame and parses the answer.
func (t *SimulatorTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.closed {
		return nil, errors.New("simulator transport closed")
	}

	t.CommandLog = append(t.CommandLog, CommandLogEntry{
		Cmd:       cmd,
		Args:      append([]byte(nil), args...),
		Timestamp: time.Now(),
	})

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	if _, err := t.sim.Write(out); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	buf := make([]byte, 512)
	n, err := t.sim.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	resp := buf[:n]
	if !frame.IsAck(resp) {
		return nil, errors.New("expected ACK frame")
	}
	resp = resp[len(frame.AckFrame):]

	f, _, err := frame.Parse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if f.IsError() {
		return []byte{frame.ErrorTFI}, nil
	}
	return f.Data, nil
}

// Close marks the transport closed.
func (t *SimulatorTransport) Close() error {
	t.closed = true
	return nil
}

// Simulator returns the wrapped simulator.
func (t *SimulatorTransport) Simulator() *VirtualPN532 {
	return t.sim
}

// CommandCount returns how many times cmd was sent.
func (t *SimulatorTransport) CommandCount(cmd byte) int {
	n := 0
	for _, e := range t.CommandLog {
		if e.Cmd == cmd {
			n++
		}
	}
	return n
}

// ClearCommandLog empties the command log.
func (t *SimulatorTransport) ClearCommandLog() {
	t.CommandLog = t.CommandLog[:0]
}
