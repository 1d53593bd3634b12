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
	"errors"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
	"github.com/ZaparooProject/go-wobridge/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPollRate paces the idle loop. Each iteration quiesces the card,
// so unpaced polling only burns CPU and reader bandwidth.
const DefaultPollRate = rate.Limit(200)

// CardSession is the card side of the bridge.
type CardSession interface {
	Operator
	Quiesce(ctx context.Context)
}

// Observer receives loop events, typically to feed metrics. Calls happen
// on the loop goroutine and must not block.
type Observer interface {
	BytesReceived(n int)
	PacketAssembled(pkt protocol.Packet)
	CommandDispatched(res Result)
}

type nopObserver struct{}

func (nopObserver) BytesReceived(int)               {}
func (nopObserver) PacketAssembled(protocol.Packet) {}
func (nopObserver) CommandDispatched(Result)        {}

// BridgeConfig configures the idle loop.
type BridgeConfig struct {
	Logger     *zap.Logger
	Observer   Observer
	Assembler  *protocol.AssemblerConfig
	Dispatcher *DispatcherConfig
	// PollRate limits loop iterations per second. Zero or less runs
	// unpaced.
	PollRate rate.Limit
}

// DefaultBridgeConfig returns the default loop configuration.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		Assembler:  protocol.DefaultAssemblerConfig(),
		Dispatcher: DefaultDispatcherConfig(),
		PollRate:   DefaultPollRate,
	}
}

// BridgeStatus is a point-in-time view of the loop for the admin server.
type BridgeStatus struct {
	StartedAt    time.Time `json:"startedAt"`
	LastPacketAt time.Time `json:"lastPacketAt"`
	LastReadAt   time.Time `json:"lastReadAt"`
	LastCommand  string    `json:"lastCommand,omitempty"`
	LastCode     string    `json:"lastCode,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	Iterations   uint64    `json:"iterations"`
	Packets      uint64    `json:"packets"`
	Reads        uint64    `json:"reads"`
	Writes       uint64    `json:"writes"`
	Failures     uint64    `json:"failures"`
	Running      bool      `json:"running"`
}

// Bridge is the idle loop: drain the host link, dispatch a completed
// packet, quiesce the card. Assembler, session and transport are owned by
// the goroutine running the loop.
type Bridge struct {
	transport Transport
	session   CardSession
	observer  Observer
	asm       *protocol.Assembler
	disp      *Dispatcher
	limiter   *rate.Limiter
	log       *zap.Logger
	status    BridgeStatus
	mu        syncutil.RWMutex
	running   atomic.Bool
}

// NewBridge wires a loop. A nil config uses DefaultBridgeConfig.
func NewBridge(t Transport, s CardSession, cfg *BridgeConfig) *Bridge {
	if cfg == nil {
		cfg = DefaultBridgeConfig()
	}
	log := loggerOr(cfg.Logger)

	dcfg := cfg.Dispatcher
	if dcfg == nil {
		dcfg = DefaultDispatcherConfig()
	}
	if dcfg.Logger == nil {
		c := *dcfg
		c.Logger = log
		dcfg = &c
	}

	b := &Bridge{
		transport: t,
		session:   s,
		observer:  cfg.Observer,
		asm:       protocol.NewAssembler(cfg.Assembler),
		disp:      NewDispatcher(s, t, dcfg),
		log:       log,
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	if cfg.PollRate > 0 {
		b.limiter = rate.NewLimiter(cfg.PollRate, 1)
	}
	return b
}

// Step runs one loop iteration. dispatched reports whether a packet was
// completed and handled. The error is a transport read failure; card
// failures are carried in the Result only. The card is quiesced on every
// path.
func (b *Bridge) Step(ctx context.Context) (res Result, dispatched bool, err error) {
	defer b.session.Quiesce(ctx)

	pkt, ok, n, err := b.asm.Drain(b.transport)
	if n > 0 {
		b.observer.BytesReceived(n)
	}
	if err != nil {
		b.record(func(st *BridgeStatus) { st.LastError = err.Error() })
		return Result{}, false, err
	}
	if !ok {
		b.record(nil)
		return Result{}, false, nil
	}

	b.observer.PacketAssembled(pkt)
	if pkt.Truncated {
		b.log.Debug("packet truncated", zap.Stringer("packet", pkt), zap.Int("capacity", b.asm.Capacity()))
	}

	res = b.disp.Dispatch(ctx, pkt)
	b.observer.CommandDispatched(res)
	b.record(func(st *BridgeStatus) { st.apply(pkt, res) })
	return res, true, nil
}

// Run loops until ctx is done or the transport fails. It returns
// ctx.Err() on cancellation.
func (b *Bridge) Run(ctx context.Context) error {
	b.running.Store(true)
	defer b.running.Store(false)
	b.record(func(st *BridgeStatus) { st.StartedAt = time.Now() })
	b.log.Info("bridge loop started")

	for {
		if err := ctx.Err(); err != nil {
			b.log.Info("bridge loop stopped")
			return err
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					b.log.Info("bridge loop stopped")
					return ctxErr
				}
				return err
			}
		}
		if _, _, err := b.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			b.log.Error("host link failed", zap.Error(err))
			return err
		}
	}
}

// Running reports whether Run is active.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Status returns a snapshot of loop activity. Safe for concurrent use.
func (b *Bridge) Status() BridgeStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := b.status
	st.Running = b.running.Load()
	return st
}

func (b *Bridge) record(update func(*BridgeStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Iterations++
	if update != nil {
		update(&b.status)
	}
}

func (st *BridgeStatus) apply(pkt protocol.Packet, res Result) {
	now := time.Now()
	st.Packets++
	st.LastPacketAt = now
	st.LastCommand = pkt.String()
	if !res.Handled {
		return
	}
	if res.Err != nil {
		st.Failures++
		st.LastError = res.Err.Error()
		return
	}
	switch res.Tag {
	case protocol.TagRead:
		st.Reads++
		st.LastReadAt = now
		st.LastCode = res.Code.String()
	case protocol.TagWrite:
		st.Writes++
	}
}
