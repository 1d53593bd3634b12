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
	"io"

	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
)

// MemTransport is an in-memory host link. Bytes injected with Send become
// visible to the bridge immediately; everything the bridge writes is kept
// for inspection.
type MemTransport struct {
	readErr  error
	writeErr error
	in       bytes.Buffer
	out      bytes.Buffer
	mu       syncutil.Mutex
}

// NewMemTransport returns an empty link.
func NewMemTransport() *MemTransport {
	return &MemTransport{}
}

// Send queues bytes from the host.
func (m *MemTransport) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in.Write(data)
}

// SendString queues a string from the host.
func (m *MemTransport) SendString(s string) {
	m.Send([]byte(s))
}

// FailReads makes every ReadByte fail with err. nil restores reads.
func (m *MemTransport) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every WriteByte fail with err. nil restores writes.
func (m *MemTransport) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Buffered returns the number of host bytes not yet read.
func (m *MemTransport) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.in.Len()
}

func (m *MemTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	b, err := m.in.ReadByte()
	if err != nil {
		return 0, io.EOF
	}
	return b, nil
}

func (m *MemTransport) WriteByte(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	return m.out.WriteByte(b)
}

// Output returns everything written so far.
func (m *MemTransport) Output() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.out.Bytes()...)
}

// TakeOutput returns and clears everything written so far.
func (m *MemTransport) TakeOutput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.out.String()
	m.out.Reset()
	return s
}
