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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/go-wobridge/internal/frame"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
	"go.bug.st/serial"
)

const (
	uartBaudRate    = 115200
	uartReadTimeout = 20 * time.Millisecond
	maxFrameRetries = 3
)

// uartWakeup is sent before every frame. 0x55 brings the PN532 out of
// power-down; the trailing zeros give it time to start its oscillator.
var uartWakeup = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// serialPort is the part of serial.Port the transport uses.
type serialPort interface {
	io.ReadWriter
	Drain() error
	ResetInputBuffer() error
	Close() error
}

// UART is a PN532 transport on a serial port (HSU, 115200 8N1).
type UART struct {
	port     serialPort
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
	closed   bool
}

var _ Transport = (*UART)(nil)

// OpenUART opens portName. A zero timeout means DefaultTimeout.
func OpenUART(portName string, timeout time.Duration) (*UART, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: uartBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &TransportError{Op: "open", Port: portName, Err: err}
	}
	if err := port.SetReadTimeout(uartReadTimeout); err != nil {
		_ = port.Close()
		return nil, &TransportError{Op: "set read timeout", Port: portName, Err: err}
	}
	return newUART(port, portName, timeout), nil
}

func newUART(port serialPort, portName string, timeout time.Duration) *UART {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UART{port: port, portName: portName, timeout: timeout}
}

// SendCommand implements Transport.
func (t *UART) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
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

	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, &TransportError{Op: "reset input", Port: t.portName, Err: err}
	}
	if err := t.write("wake up", uartWakeup); err != nil {
		return nil, err
	}
	if err := t.write("send frame", out); err != nil {
		return nil, err
	}

	rest, err := t.waitAck(ctx, deadline)
	if err != nil {
		return nil, err
	}
	data, err := t.receive(ctx, deadline, rest)
	if err != nil {
		return nil, err
	}
	if err := t.write("send ACK", frame.AckFrame); err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the port.
func (t *UART) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return &TransportError{Op: "close", Port: t.portName, Err: err}
	}
	return nil
}

func (t *UART) write(op string, data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		return &TransportError{Op: op, Port: t.portName, Err: err}
	}
	if n != len(data) {
		return &TransportError{Op: op, Port: t.portName, Err: io.ErrShortWrite}
	}
	return t.drainWithRetry(op)
}

func isInterruptedSystemCall(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

// drainWithRetry waits for the output to be sent, retrying when a signal
// interrupts the system call.
func (t *UART) drainWithRetry(op string) error {
	delay := 2 * time.Millisecond
	var err error
	for range 3 {
		if err = t.port.Drain(); err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return &TransportError{Op: op + " drain", Port: t.portName, Err: err}
}

// readMore appends whatever the port delivers within one read timeout.
func (t *UART) readMore(ctx context.Context, deadline time.Time, buf []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return buf, err
	}
	if time.Now().After(deadline) {
		return buf, ErrTimeout
	}
	var tmp [64]byte
	n, err := t.port.Read(tmp[:])
	if err != nil {
		return buf, &TransportError{Op: "read", Port: t.portName, Err: err}
	}
	return append(buf, tmp[:n]...), nil
}

// waitAck reads until the ACK frame arrives and returns the bytes that
// followed it.
func (t *UART) waitAck(ctx context.Context, deadline time.Time) ([]byte, error) {
	var buf []byte
	for {
		if i := bytes.Index(buf, frame.AckFrame); i >= 0 {
			return buf[i+len(frame.AckFrame):], nil
		}
		if bytes.Contains(buf, frame.NackFrame) {
			return nil, &TransportError{Op: "wait ACK", Port: t.portName, Err: ErrNoACK}
		}

		var err error
		buf, err = t.readMore(ctx, deadline, buf)
		if errors.Is(err, ErrTimeout) {
			return nil, &TransportError{Op: "wait ACK", Port: t.portName, Err: ErrNoACK}
		}
		if err != nil {
			return nil, err
		}
	}
}

// receive reads the response frame. A corrupted frame is NACKed so the
// PN532 sends it again.
func (t *UART) receive(ctx context.Context, deadline time.Time, buf []byte) ([]byte, error) {
	retries := 0
	for {
		f, _, err := frame.Parse(buf)
		switch {
		case err == nil:
			if f.IsError() {
				return []byte{frame.ErrorTFI}, nil
			}
			if f.TFI != frame.PN532ToHost {
				return nil, fmt.Errorf("%w: TFI 0x%02X", ErrUnexpectedResponse, f.TFI)
			}
			return f.Data, nil
		case errors.Is(err, frame.ErrIncomplete), errors.Is(err, frame.ErrNoStart):
			buf, err = t.readMore(ctx, deadline, buf)
			if err != nil {
				return nil, err
			}
		default:
			retries++
			if retries > maxFrameRetries {
				return nil, &TransportError{Op: "receive", Port: t.portName, Err: fmt.Errorf("%w: %w", ErrFrameCorrupted, err)}
			}
			if err := t.write("send NACK", frame.NackFrame); err != nil {
				return nil, err
			}
			buf = nil
		}
	}
}
