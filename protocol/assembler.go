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

package protocol

import "fmt"

// Buffer sizes seen in deployed firmware
const (
	DefaultBufferSize = 20 // Sized for 9600 baud hosts
	LargeBufferSize   = 80 // Later revision
	MinBufferSize     = 2  // Tag plus terminator slot
)

// TruncatePolicy decides what happens to bytes that arrive after the
// reassembly buffer is full.
type TruncatePolicy int

const (
	// TruncateDrop silently drops overflow bytes and still emits the
	// retained prefix when the end marker arrives.
	TruncateDrop TruncatePolicy = iota
	// TruncateDiscard drops the whole packet if it overflowed.
	TruncateDiscard
)

func (p TruncatePolicy) String() string {
	switch p {
	case TruncateDrop:
		return "drop"
	case TruncateDiscard:
		return "discard"
	default:
		return fmt.Sprintf("TruncatePolicy(%d)", int(p))
	}
}

// ParseTruncatePolicy maps a config string to a policy.
func ParseTruncatePolicy(s string) (TruncatePolicy, error) {
	switch s {
	case "", "drop":
		return TruncateDrop, nil
	case "discard":
		return TruncateDiscard, nil
	default:
		return TruncateDrop, fmt.Errorf("unknown truncate policy %q", s)
	}
}

// AssemblerConfig configures packet reassembly
type AssemblerConfig struct {
	// BufferSize is the reassembly buffer size. The payload is always
	// strictly shorter: at most BufferSize-1 bytes are kept.
	BufferSize int
	Truncate   TruncatePolicy
}

// DefaultAssemblerConfig returns a 20 byte buffer that drops overflow.
func DefaultAssemblerConfig() *AssemblerConfig {
	return &AssemblerConfig{
		BufferSize: DefaultBufferSize,
		Truncate:   TruncateDrop,
	}
}

// ByteSource is the read half of the host transport.
type ByteSource interface {
	Buffered() int
	ReadByte() (byte, error)
}

// Assembler reassembles delimited packets from a byte stream, one byte at
// a time. It is not safe for concurrent use; the bridge loop owns it.
type Assembler struct {
	buf      []byte
	limit    int
	policy   TruncatePolicy
	started  bool
	ended    bool
	overflow bool
}

// NewAssembler creates an assembler. A nil config uses the defaults.
func NewAssembler(cfg *AssemblerConfig) *Assembler {
	if cfg == nil {
		cfg = DefaultAssemblerConfig()
	}
	size := cfg.BufferSize
	if size < MinBufferSize {
		size = MinBufferSize
	}
	return &Assembler{
		buf:    make([]byte, 0, size-1),
		limit:  size - 1,
		policy: cfg.Truncate,
	}
}

// Capacity is the maximum number of payload bytes retained per packet.
func (a *Assembler) Capacity() int {
	return a.limit
}

// Open reports whether a start marker has been seen and the packet is
// still being received.
func (a *Assembler) Open() bool {
	return a.started && !a.ended
}

// Pending returns the number of payload bytes buffered so far.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Feed consumes one byte. It returns the completed packet when b is an end
// marker closing an open packet; the assembler is reset before returning,
// so nothing from this packet leaks into the next one. Callers scanning a
// stream must stop after a completed packet and dispatch it first.
func (a *Assembler) Feed(b byte) (Packet, bool) {
	switch b {
	case StartMarker:
		a.Reset()
		a.started = true
		return Packet{}, false
	case EndMarker:
		if !a.started {
			return Packet{}, false
		}
		a.ended = true
		return a.Take()
	}

	if !a.started {
		return Packet{}, false
	}

	if len(a.buf) < a.limit {
		a.buf = append(a.buf, b)
	} else {
		a.overflow = true
	}
	return Packet{}, false
}

// Take returns the completed packet, if any, and resets the assembler.
func (a *Assembler) Take() (Packet, bool) {
	if !a.started || !a.ended {
		return Packet{}, false
	}
	defer a.Reset()

	if a.overflow && a.policy == TruncateDiscard {
		return Packet{}, false
	}

	pkt := NewPacket(a.buf)
	pkt.Truncated = a.overflow
	return pkt, true
}

// Reset discards any partial packet and clears all flags.
func (a *Assembler) Reset() {
	clear(a.buf[:cap(a.buf)])
	a.buf = a.buf[:0]
	a.started = false
	a.ended = false
	a.overflow = false
}

// Drain feeds every byte currently buffered by src until a packet
// completes. It stops right after the end marker so that a following
// start marker stays in src for the next call.
// The returned count is the number of bytes consumed.
func (a *Assembler) Drain(src ByteSource) (Packet, bool, int, error) {
	consumed := 0
	for src.Buffered() > 0 {
		b, err := src.ReadByte()
		if err != nil {
			return Packet{}, false, consumed, fmt.Errorf("read packet byte: %w", err)
		}
		consumed++
		if pkt, done := a.Feed(b); done {
			return pkt, true, consumed, nil
		}
	}
	return Packet{}, false, consumed, nil
}
