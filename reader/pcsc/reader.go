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

// Package pcsc drives a PC/SC contactless reader as a [wobridge.Card].
//
// PC/SC readers run activation and Crypto1 themselves, so the card
// primitives map onto connections and the pseudo-APDUs of PC/SC part 3.
// Cards left on the reader after Halt count as halted until they are
// removed, which keeps the wake-up path of the session meaningful.
package pcsc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ebfe/scard"
	"go.uber.org/zap"
)

// ErrNoReader means the PC/SC service lists no reader.
var ErrNoReader = errors.New("no PC/SC reader found")

// cardConn is the part of scard.Card the reader uses.
type cardConn interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, init scard.Disposition) error
	Disconnect(d scard.Disposition) error
}

// pcscContext is the part of scard.Context the reader uses.
type pcscContext interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Connect(reader string) (cardConn, error)
	Release() error
}

type scardContext struct {
	*scard.Context
}

func (c scardContext) Connect(reader string) (cardConn, error) {
	card, err := c.Context.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// Reader is a PC/SC reader. It is not safe for concurrent use.
type Reader struct {
	ctx    pcscContext
	card   cardConn
	log    *zap.Logger
	name   string
	uid    wobridge.UID
	halted bool // the card on the reader was halted and not removed since
}

var _ wobridge.Card = (*Reader)(nil)

// Open establishes a PC/SC context and uses the named reader, or the
// first listed reader when name is empty.
func Open(name string) (*Reader, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	r, err := newReader(scardContext{sctx}, name)
	if err != nil {
		_ = sctx.Release()
		return nil, err
	}
	return r, nil
}

func newReader(ctx pcscContext, name string) (*Reader, error) {
	if name == "" {
		readers, err := ctx.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, ErrNoReader
		}
		name = readers[0]
	}
	return &Reader{
		ctx:  ctx,
		name: name,
		log:  wobridge.Logger().Named("pcsc").With(zap.String("reader", name)),
	}, nil
}

// Name returns the reader name.
func (r *Reader) Name() string {
	return r.name
}

// Close drops the connection and releases the context.
func (r *Reader) Close() error {
	var errs []error
	if r.card != nil {
		errs = append(errs, r.card.Disconnect(scard.LeaveCard))
		r.card = nil
	}
	errs = append(errs, r.ctx.Release())
	return errors.Join(errs...)
}

func (r *Reader) present() (bool, error) {
	rs := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StateUnaware}}
	if err := r.ctx.GetStatusChange(rs, 0); err != nil {
		return false, err
	}
	return rs[0].EventState&scard.StatePresent != 0, nil
}

func (r *Reader) connect() error {
	if r.card != nil {
		return nil
	}
	card, err := r.ctx.Connect(r.name)
	if err != nil {
		return linkError(err)
	}
	r.card = card
	return nil
}

// IsNewCardPresent reports a card that arrived since the last Halt.
func (r *Reader) IsNewCardPresent(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	ok, err := r.present()
	if err != nil {
		wobridge.Debugf("pcsc: reader status: %v", err)
		return false
	}
	if !ok {
		r.halted = false
		return false
	}
	if r.halted {
		return false
	}
	if err := r.connect(); err != nil {
		wobridge.Debugf("pcsc: connect: %v", err)
		return false
	}
	return true
}

// ReadCardSerial reads the UID of the connected card.
func (r *Reader) ReadCardSerial(ctx context.Context) bool {
	if r.card == nil {
		return false
	}
	uid, err := r.transmit(ctx, "GET DATA", getUID())
	if err != nil {
		wobridge.Debugf("pcsc: get UID: %v", err)
		return false
	}
	r.uid = uid
	return true
}

// Wakeup resets the card, which brings a halted card back. PC/SC does not
// expose the ATQA, so the ATR is returned in its place.
func (r *Reader) Wakeup(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("wake-up: %w", err)
	}
	if err := r.card.Reconnect(scard.ShareShared, scard.ProtocolAny, scard.ResetCard); err != nil {
		r.drop()
		return nil, fmt.Errorf("wake-up: %w", linkError(err))
	}
	r.halted = false
	st, err := r.card.Status()
	if err != nil {
		return nil, fmt.Errorf("wake-up status: %w", linkError(err))
	}
	return st.Atr, nil
}

// Select checks that the connected card carries uid. An empty uid takes
// whatever card is connected.
func (r *Reader) Select(ctx context.Context, uid wobridge.UID) error {
	if r.card == nil {
		return fmt.Errorf("select %s: %w", uid, wobridge.StatusTimeout)
	}
	got, err := r.transmit(ctx, "GET DATA", getUID())
	if err != nil {
		return fmt.Errorf("select %s: %w", uid, err)
	}
	if len(uid) > 0 && !bytes.Equal(got, uid) {
		return fmt.Errorf("select %s: card %s answered: %w", uid, wobridge.UID(got), wobridge.StatusTimeout)
	}
	r.uid = got
	return nil
}

// UID returns the UID read by ReadCardSerial or Select.
func (r *Reader) UID() wobridge.UID {
	return append(wobridge.UID(nil), r.uid...)
}

// Authenticate loads key into the reader and authenticates block with it.
// The reader knows the UID, so uid is not sent.
func (r *Reader) Authenticate(
	ctx context.Context, slot wobridge.KeySlot, block uint8, key wobridge.Key, _ wobridge.UID,
) error {
	if r.card == nil {
		return fmt.Errorf("authenticate block %d: %w", block, wobridge.StatusTimeout)
	}
	if _, err := r.transmit(ctx, "LOAD KEY", loadKey(key)); err != nil {
		return fmt.Errorf("authenticate block %d: %w", block, err)
	}
	if _, err := r.transmit(ctx, "GENERAL AUTHENTICATE", generalAuthenticate(slot, block)); err != nil {
		return fmt.Errorf("authenticate block %d: %w", block, err)
	}
	return nil
}

// ReadBlock reads one block. The reader strips the CRC, so the last two
// bytes are zero.
func (r *Reader) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	if r.card == nil {
		return nil, fmt.Errorf("read block %d: %w", block, wobridge.StatusTimeout)
	}
	data, err := r.transmit(ctx, "READ BINARY", readBinary(block))
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if len(data) < wobridge.BlockSize {
		return nil, fmt.Errorf("read block %d: %d bytes: %w", block, len(data), wobridge.StatusNoRoom)
	}
	buf := make([]byte, wobridge.ReadBufferSize)
	copy(buf, data[:wobridge.BlockSize])
	return buf, nil
}

// WriteBlock writes one 16-byte block.
func (r *Reader) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if len(data) != wobridge.BlockSize {
		return fmt.Errorf("write block %d: %d bytes: %w", block, len(data), wobridge.StatusInvalid)
	}
	if r.card == nil {
		return fmt.Errorf("write block %d: %w", block, wobridge.StatusTimeout)
	}
	if _, err := r.transmit(ctx, "UPDATE BINARY", updateBinary(block, data)); err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

// Halt ends the connection. The card stays on the reader and counts as
// halted until it is removed or woken.
func (r *Reader) Halt(context.Context) error {
	if r.card == nil {
		return nil
	}
	err := r.card.Disconnect(scard.LeaveCard)
	r.card = nil
	r.halted = true
	if err != nil {
		return fmt.Errorf("disconnect: %w", linkError(err))
	}
	return nil
}

// StopCrypto is a no-op: the reader ends the Crypto1 session on
// disconnect.
func (*Reader) StopCrypto(context.Context) error {
	return nil
}

func (r *Reader) drop() {
	if r.card != nil {
		_ = r.card.Disconnect(scard.LeaveCard)
		r.card = nil
	}
}

// transmit sends apdu and returns the response data without the status
// word.
func (r *Reader) transmit(ctx context.Context, name string, apdu []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := r.card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, linkError(err))
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("%s: %w", name, ErrShortResponse)
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		r.log.Debug("APDU rejected",
			zap.String("command", name),
			zap.Binary("apdu", apdu[:min(len(apdu), 5)]),
			zap.String("sw", fmt.Sprintf("%02X%02X", sw1, sw2)))
		return nil, &APDUError{Command: name, SW1: sw1, SW2: sw2}
	}
	return resp[:len(resp)-2], nil
}
