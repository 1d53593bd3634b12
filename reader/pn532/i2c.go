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

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-wobridge/internal/frame"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// 7-bit address. The datasheet lists 0x48, the 8-bit write address.
	i2cAddr      = 0x24
	i2cClock     = 400 * physic.KiloHertz
	i2cReady     = 0x01
	i2cPollDelay = time.Millisecond
	i2cFrameSize = 8 + frame.MaxDataLength
)

// i2cConn is the part of i2c.Dev the transport uses.
type i2cConn interface {
	Tx(w, r []byte) error
}

// I2C is a PN532 transport on an I2C bus. Every read from the PN532
// starts with a status byte that is 0x01 once a frame is ready.
type I2C struct {
	dev     i2cConn
	bus     i2c.BusCloser
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
	closed  bool
}

var _ Transport = (*I2C)(nil)

// OpenI2C opens the named I2C bus ("" for the first one). A zero timeout
// means DefaultTimeout.
func OpenI2C(busName string, timeout time.Duration) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, &TransportError{Op: "open", Port: busName, Err: err}
	}
	// Not every adapter supports changing speed; the default works too.
	_ = bus.SetSpeed(i2cClock)

	t := newI2C(&i2c.Dev{Addr: i2cAddr, Bus: bus}, busName, timeout)
	t.bus = bus
	return t, nil
}

func newI2C(dev i2cConn, busName string, timeout time.Duration) *I2C {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &I2C{dev: dev, busName: busName, timeout: timeout}
}

// SendCommand implements Transport.
func (t *I2C) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("build %s frame: %w", commandName(cmd), err)
	}
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := t.dev.Tx(out, nil); err != nil {
		return nil, &TransportError{Op: "send frame", Port: t.busName, Err: err}
	}
	if err := t.waitAck(ctx, deadline); err != nil {
		return nil, err
	}
	data, err := t.receive(ctx, deadline)
	if err != nil {
		return nil, err
	}
	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		return nil, &TransportError{Op: "send ACK", Port: t.busName, Err: err}
	}
	return data, nil
}

// Close closes the bus.
func (t *I2C) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus == nil {
		return nil
	}
	if err := t.bus.Close(); err != nil {
		return &TransportError{Op: "close", Port: t.busName, Err: err}
	}
	return nil
}

// waitReady polls the status byte until the PN532 has a frame.
func (t *I2C) waitReady(ctx context.Context, deadline time.Time) error {
	var status [1]byte
	for {
		if err := t.dev.Tx(nil, status[:]); err != nil {
			return &TransportError{Op: "ready check", Port: t.busName, Err: err}
		}
		if status[0] == i2cReady {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		if err := sleepCtx(ctx, i2cPollDelay); err != nil {
			return err
		}
	}
}

// read reads n bytes after the status byte.
func (t *I2C) read(n int) ([]byte, error) {
	buf := make([]byte, n+1)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, &TransportError{Op: "read", Port: t.busName, Err: err}
	}
	if buf[0] != i2cReady {
		return nil, ErrNotReady
	}
	return buf[1:], nil
}

func (t *I2C) waitAck(ctx context.Context, deadline time.Time) error {
	if err := t.waitReady(ctx, deadline); err != nil {
		if errors.Is(err, ErrTimeout) {
			return &TransportError{Op: "wait ACK", Port: t.busName, Err: ErrNoACK}
		}
		return err
	}
	buf, err := t.read(len(frame.AckFrame))
	if err != nil {
		return err
	}
	if !frame.IsAck(buf) {
		return &TransportError{Op: "wait ACK", Port: t.busName, Err: fmt.Errorf("%w: got % X", ErrNoACK, buf)}
	}
	return nil
}

func (t *I2C) receive(ctx context.Context, deadline time.Time) ([]byte, error) {
	for retries := 0; ; retries++ {
		if err := t.waitReady(ctx, deadline); err != nil {
			return nil, err
		}
		buf, err := t.read(i2cFrameSize)
		if err != nil {
			return nil, err
		}
		f, _, err := frame.Parse(buf)
		if err == nil {
			if f.IsError() {
				return []byte{frame.ErrorTFI}, nil
			}
			if f.TFI != frame.PN532ToHost {
				return nil, fmt.Errorf("%w: TFI 0x%02X", ErrUnexpectedResponse, f.TFI)
			}
			return f.Data, nil
		}
		if retries >= maxFrameRetries {
			return nil, &TransportError{Op: "receive", Port: t.busName, Err: fmt.Errorf("%w: %w", ErrFrameCorrupted, err)}
		}
		if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
			return nil, &TransportError{Op: "send NACK", Port: t.busName, Err: err}
		}
	}
}
