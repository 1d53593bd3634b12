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

// Package serial is the host link: the serial port the host computer
// sends framed commands on. It adapts go.bug.st/serial to the byte-wise,
// non-blocking interface the bridge polls.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
	"go.bug.st/serial"
)

// Defaults for the host link
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 5 * time.Millisecond
)

// ErrNotCharDevice means the configured path is not a terminal device.
var ErrNotCharDevice = errors.New("not a character device")

// Config configures a host link.
type Config struct {
	BaudRate int
	// ReadTimeout bounds how long Buffered waits for the device when
	// nothing is pending. It sets the idle loop latency.
	ReadTimeout time.Duration
}

// DefaultConfig returns 9600 8N1 with a short read timeout.
func DefaultConfig() *Config {
	return &Config{
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
	}
}

// device is the part of serial.Port the link uses.
type device interface {
	io.ReadWriter
	Close() error
}

// Port is a host link on a serial port. It implements wobridge.Transport.
type Port struct {
	dev     device
	err     error
	name    string
	pending []byte
	buf     [64]byte
	mu      syncutil.Mutex
}

var _ wobridge.Transport = (*Port)(nil)

// Open opens the serial port at name.
func Open(name string, cfg *Config) (*Port, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := checkDevice(name); err != nil {
		return nil, err
	}
	dev, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open host link %s: %w", name, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := dev.SetReadTimeout(timeout); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return newPort(dev, name), nil
}

func newPort(dev device, name string) *Port {
	return &Port{dev: dev, name: name}
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Buffered returns the number of bytes ready to read. When nothing is
// pending it polls the device once, waiting at most the read timeout. A
// device error is reported as one readable byte so that the next ReadByte
// returns it.
func (p *Port) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return 1
	}
	if len(p.pending) == 0 {
		p.fill()
	}
	if p.err != nil && len(p.pending) == 0 {
		return 1
	}
	return len(p.pending)
}

func (p *Port) fill() {
	n, err := p.dev.Read(p.buf[:])
	p.pending = append(p.pending, p.buf[:n]...)
	if err != nil {
		p.err = fmt.Errorf("read host link %s: %w", p.name, err)
	}
}

// ReadByte returns the next pending byte. It returns io.EOF when nothing
// is pending.
func (p *Port) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, io.EOF
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	return b, nil
}

// WriteByte sends one byte to the host.
func (p *Port) WriteByte(b byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.dev.Write([]byte{b})
	if err != nil {
		return fmt.Errorf("write host link %s: %w", p.name, err)
	}
	if n != 1 {
		return fmt.Errorf("write host link %s: %w", p.name, io.ErrShortWrite)
	}
	return nil
}

// Close closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.Close(); err != nil {
		return fmt.Errorf("close host link %s: %w", p.name, err)
	}
	return nil
}
