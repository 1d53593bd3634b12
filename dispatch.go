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

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ZaparooProject/go-wobridge/protocol"
	"go.uber.org/zap"
)

// UnknownCommandPolicy decides what happens to packets without a known
// command tag.
type UnknownCommandPolicy int

const (
	// UnknownIgnore drops them silently.
	UnknownIgnore UnknownCommandPolicy = iota
	// UnknownLog drops them with a debug log entry. Nothing is written to
	// the host either way.
	UnknownLog
)

func (p UnknownCommandPolicy) String() string {
	if p == UnknownLog {
		return "log"
	}
	return "ignore"
}

// ParseUnknownCommandPolicy parses "ignore" or "log". Empty means ignore.
func ParseUnknownCommandPolicy(s string) (UnknownCommandPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return UnknownIgnore, nil
	case "log":
		return UnknownLog, nil
	default:
		return UnknownIgnore, fmt.Errorf("unknown command policy %q: want ignore or log", s)
	}
}

// Operator performs the card side of a command.
type Operator interface {
	Read(ctx context.Context) (Code, error)
	Write(ctx context.Context, code []byte) error
}

// DispatcherConfig configures command handling.
type DispatcherConfig struct {
	Logger      *zap.Logger
	Unknown     UnknownCommandPolicy
	Diagnostics bool // write diagnostic lines to the host
}

// DefaultDispatcherConfig ignores unknown commands and reports card
// failures to the host.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Unknown:     UnknownIgnore,
		Diagnostics: true,
	}
}

// Result is the outcome of one dispatched packet.
type Result struct {
	// Err is the session or transmit error. It never stops the loop.
	Err  error
	Code Code // Code read, for successful reads
	Tag  byte // Command tag, 0 for an empty packet
	// Handled is false when the packet was ignored as unknown.
	Handled bool
}

// Dispatcher maps packets to card operations and writes replies.
type Dispatcher struct {
	op      Operator
	out     io.ByteWriter
	diag    *Diagnostics
	log     *zap.Logger
	unknown UnknownCommandPolicy
}

// NewDispatcher creates a dispatcher replying on out. A nil config uses
// DefaultDispatcherConfig.
func NewDispatcher(op Operator, out io.ByteWriter, cfg *DispatcherConfig) *Dispatcher {
	if cfg == nil {
		cfg = DefaultDispatcherConfig()
	}
	return &Dispatcher{
		op:      op,
		out:     out,
		diag:    NewDiagnostics(out, cfg.Diagnostics),
		log:     loggerOr(cfg.Logger),
		unknown: cfg.Unknown,
	}
}

// Dispatch handles one packet. Only the first payload byte is
// interpreted; for W the code is taken inline from offset 2.
func (d *Dispatcher) Dispatch(ctx context.Context, pkt protocol.Packet) Result {
	tag, ok := pkt.Tag()
	if ok {
		switch tag {
		case protocol.TagRead:
			return d.read(ctx)
		case protocol.TagWrite:
			return d.write(ctx, pkt.Code())
		}
	}

	if d.unknown == UnknownLog {
		d.log.Debug("unknown command ignored", zap.Stringer("packet", pkt))
	}
	return Result{Tag: tag}
}

func (d *Dispatcher) read(ctx context.Context) Result {
	res := Result{Tag: protocol.TagRead, Handled: true}

	code, err := d.op.Read(ctx)
	if err != nil {
		res.Err = err
		d.report(err)
		return res
	}
	res.Code = code

	resp, err := protocol.EncodeResponse(code.Bytes())
	if err != nil {
		res.Err = err
		return res
	}
	if err := writeBytes(d.out, resp); err != nil {
		res.Err = fmt.Errorf("transmit response: %w", err)
		d.log.Warn("response not sent", zap.Error(err))
	}
	return res
}

func (d *Dispatcher) write(ctx context.Context, code []byte) Result {
	res := Result{Tag: protocol.TagWrite, Handled: true}
	if err := d.op.Write(ctx, code); err != nil {
		res.Err = err
		d.report(err)
	}
	return res
}

func (d *Dispatcher) report(err error) {
	if werr := d.diag.Report(err); werr != nil {
		d.log.Debug("diagnostic not sent", zap.Error(werr))
	}
}
