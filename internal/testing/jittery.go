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
	"math/rand/v2"

	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
)

// JitterConfig configures a JitteryLink.
type JitterConfig struct {
	FragmentMinBytes int
	FragmentMaxBytes int

	// StallAfterBytes makes the link report nothing buffered for
	// StallPolls polls once that many bytes were read. 0 disables stalls.
	StallAfterBytes int
	StallPolls      int
	Seed            uint64
}

// DefaultJitterConfig delivers host bytes in fragments of 1 to 4 bytes.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentMinBytes: 1,
		FragmentMaxBytes: 4,
	}
}

// JitteryLink wraps a MemTransport so host bytes show up in small random
// fragments, the way a USB-UART bridge delivers them. Each fragment is
// visible to one drain of the link; the link then reports an empty buffer
// once before the next fragment arrives.
type JitteryLink struct {
	*MemTransport
	rng       *rand.Rand
	config    JitterConfig
	allow     int
	read      int
	stallLeft int
	stalled   bool
	cut       bool
	mu        syncutil.Mutex
}

// NewJitteryLink wraps link.
func NewJitteryLink(link *MemTransport, config JitterConfig) *JitteryLink {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	if config.FragmentMaxBytes < config.FragmentMinBytes {
		config.FragmentMaxBytes = config.FragmentMinBytes
	}
	return &JitteryLink{
		MemTransport: link,
		config:       config,
		rng:          rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
	}
}

// Buffered reports at most the rest of the current fragment.
func (j *JitteryLink) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := j.MemTransport.Buffered()
	if n == 0 {
		return 0
	}
	if j.cut {
		j.cut = false
		return 0
	}
	if j.stallLeft > 0 {
		j.stallLeft--
		return 0
	}
	if j.allow == 0 {
		span := j.config.FragmentMaxBytes - j.config.FragmentMinBytes + 1
		j.allow = j.config.FragmentMinBytes + j.rng.IntN(span)
	}
	return min(n, j.allow)
}

// ReadByte reads from the current fragment.
func (j *JitteryLink) ReadByte() (byte, error) {
	b, err := j.MemTransport.ReadByte()
	if err != nil {
		return b, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.read++
	if j.allow > 0 {
		j.allow--
		if j.allow == 0 {
			j.cut = true
		}
	}
	if j.config.StallAfterBytes > 0 && !j.stalled && j.read >= j.config.StallAfterBytes {
		j.stalled = true
		j.stallLeft = j.config.StallPolls
		j.allow = 0
		j.cut = true
	}
	return b, nil
}

// BytesRead returns how many bytes went through the link.
func (j *JitteryLink) BytesRead() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read
}
