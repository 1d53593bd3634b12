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
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionConfig selects the key and block used for the work order.
type SessionConfig struct {
	// Logger receives session events. nil uses the package logger.
	Logger *zap.Logger
	// Key authenticates every block the session touches.
	Key Key
	// KeySlot picks key A or key B.
	KeySlot KeySlot
	// Block is the first block of the work order area.
	Block uint8
}

// DefaultSessionConfig returns key A FFFFFFFFFFFFh on block 1, which is
// how every deployed card is laid out.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Key:     DefaultKey,
		KeySlot: KeyA,
		Block:   WorkOrderBlock,
	}
}

// Session runs one card operation at a time against a Card. It holds no
// state between operations; every Read and Write starts with card
// detection.
type Session struct {
	card Card
	log  *zap.Logger
	cfg  SessionConfig
}

// NewSession creates a session. A nil config uses DefaultSessionConfig.
func NewSession(card Card, cfg *SessionConfig) *Session {
	if cfg == nil {
		cfg = DefaultSessionConfig()
	}
	return &Session{
		card: card,
		cfg:  *cfg,
		log:  loggerOr(cfg.Logger),
	}
}

// attempt carries per-operation state.
type attempt struct {
	log     *zap.Logger
	op      string
	id      string
	uid     UID
	viaWake bool
}

func (s *Session) begin(op string) *attempt {
	id := uuid.NewString()
	return &attempt{
		op:  op,
		id:  id,
		log: s.log.With(zap.String("op", op), zap.String("session", id)),
	}
}

func (s *Session) fail(a *attempt, kind error, block int, cause error) *SessionError {
	err := &SessionError{
		Kind:  kind,
		Err:   cause,
		Op:    a.op,
		ID:    a.id,
		Block: block,
	}
	if kind == ErrNoCard {
		a.log.Info("no card present")
	} else {
		fields := []zap.Field{
			zap.Error(err),
			zap.Stringer("status", StatusOf(cause)),
			zap.Stringer("uid", a.uid),
		}
		if block >= 0 {
			fields = append(fields, zap.Int("block", block))
		}
		a.log.Warn("card operation failed", fields...)
	}
	return err
}

// connect finds a card. A card left in HALT by an earlier operation does
// not answer the normal request, so when nothing answers the session
// sends a wake-up and re-selects the last known UID.
func (s *Session) connect(ctx context.Context, a *attempt) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", a.op, err)
	}

	if s.card.IsNewCardPresent(ctx) {
		if !s.card.ReadCardSerial(ctx) {
			return s.fail(a, ErrSelect, -1, nil)
		}
	} else {
		atqa, err := s.card.Wakeup(ctx)
		if err != nil {
			return s.fail(a, ErrNoCard, -1, err)
		}
		Debugf("wake-up answered, ATQA % X", atqa)
		if err := s.card.Select(ctx, s.card.UID()); err != nil {
			return s.fail(a, ErrWakeSelect, -1, err)
		}
		a.viaWake = true
	}

	a.uid = s.card.UID()
	a.log = a.log.With(zap.Stringer("uid", a.uid), zap.Bool("woken", a.viaWake))
	a.log.Debug("card selected")
	return nil
}

func (s *Session) authenticate(ctx context.Context, a *attempt, block uint8) error {
	if err := s.card.Authenticate(ctx, s.cfg.KeySlot, block, s.cfg.Key, a.uid); err != nil {
		return s.fail(a, ErrAuth, int(block), err)
	}
	return nil
}

// Read returns the work order code stored on the card in the field.
// Blank (space) and NUL positions are reported as Sentinel.
func (s *Session) Read(ctx context.Context) (Code, error) {
	a := s.begin(OpRead)
	if err := s.connect(ctx, a); err != nil {
		return Code{}, err
	}
	defer s.Quiesce(ctx)

	block := s.cfg.Block
	if err := s.authenticate(ctx, a, block); err != nil {
		return Code{}, err
	}

	data, err := s.card.ReadBlock(ctx, block)
	if err != nil {
		return Code{}, s.fail(a, ErrRead, int(block), err)
	}
	if len(data) < BlockSize {
		return Code{}, s.fail(a, ErrRead, int(block),
			fmt.Errorf("%w: got %d bytes", StatusNoRoom, len(data)))
	}

	code := Sanitize(data)
	a.log.Info("work order read", zap.Stringer("code", code))
	return code, nil
}

// Write stores code, padded with spaces to a full block, in the work
// order block. At most CodeLength bytes of code are used.
func (s *Session) Write(ctx context.Context, code []byte) error {
	if len(code) > CodeLength {
		code = code[:CodeLength]
	}
	a, err := s.writeBlocks(ctx, PadBlock(code))
	if err != nil {
		return err
	}
	a.log.Info("work order written", zap.ByteString("code", code))
	return nil
}

// WriteBlocks writes whole blocks starting at the configured block,
// authenticating before each one. There is no rollback: if block n fails
// after earlier blocks were written, the error wraps ErrPartialWrite.
// The manufacturer block and sector trailers are refused.
func (s *Session) WriteBlocks(ctx context.Context, data []byte) error {
	a, err := s.writeBlocks(ctx, data)
	if err != nil {
		return err
	}
	a.log.Info("blocks written", zap.Uint8("first", s.cfg.Block), zap.Int("count", len(data)/BlockSize))
	return nil
}

func (s *Session) writeBlocks(ctx context.Context, data []byte) (*attempt, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of blocks", ErrInvalidData, len(data))
	}
	count := len(data) / BlockSize
	first := int(s.cfg.Block)
	for i := range count {
		if b := first + i; !writable(b) {
			return nil, fmt.Errorf("%w: block %d", ErrProtectedBlock, b)
		}
	}

	a := s.begin(OpWrite)
	if err := s.connect(ctx, a); err != nil {
		return nil, err
	}
	defer s.Quiesce(ctx)

	for i := range count {
		block := uint8(first + i)
		if err := s.authenticate(ctx, a, block); err != nil {
			return nil, partial(err, i)
		}
		chunk := data[i*BlockSize : (i+1)*BlockSize]
		if err := s.card.WriteBlock(ctx, block, chunk); err != nil {
			return nil, partial(s.fail(a, ErrWrite, int(block), err), i)
		}
	}
	return a, nil
}

func partial(err error, written int) error {
	var se *SessionError
	if written > 0 && errors.As(err, &se) {
		se.Partial = true
	}
	return err
}

// writable excludes the manufacturer block and every sector trailer.
func writable(block int) bool {
	return block > 0 && block < 256 && block%SectorBlocks != SectorBlocks-1
}

// Quiesce halts the card and stops the crypto session. Failures are
// logged at debug level only: with no card in the field both primitives
// are expected to have nothing to do.
func (s *Session) Quiesce(ctx context.Context) {
	// Quiesce must reach the card even when the loop is shutting down
	ctx = context.WithoutCancel(ctx)
	if err := s.card.Halt(ctx); err != nil {
		Debugf("halt: %v", err)
	}
	if err := s.card.StopCrypto(ctx); err != nil {
		Debugf("stop crypto: %v", err)
	}
}
