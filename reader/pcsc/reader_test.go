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

package pcsc

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	testutil "github.com/ZaparooProject/go-wobridge/internal/testing"
	"github.com/ebfe/scard"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCard answers pseudo-APDUs from a virtual tag.
type fakeCard struct {
	tag      *testutil.VirtualTag
	key      []byte
	apdus    [][]byte
	failWith error
}

func ok(data ...byte) []byte {
	return append(data, 0x90, 0x00)
}

func (c *fakeCard) Transmit(apdu []byte) ([]byte, error) {
	c.apdus = append(c.apdus, append([]byte(nil), apdu...))
	if c.failWith != nil {
		return nil, c.failWith
	}
	if !c.tag.Present() {
		return nil, scard.ErrRemovedCard
	}
	switch apdu[1] {
	case insGetData:
		return ok(c.tag.UID()...), nil
	case insLoadKey:
		c.key = append([]byte(nil), apdu[5:11]...)
		return ok(), nil
	case insGeneralAuth:
		if err := c.tag.Authenticate(int(apdu[7]), apdu[8] == keyTypeB, c.key); err != nil {
			return []byte{0x63, 0x00}, nil
		}
		return ok(), nil
	case insReadBinary:
		data, err := c.tag.ReadBlock(int(apdu[3]))
		if err != nil {
			return []byte{0x69, 0x82}, nil
		}
		return ok(data...), nil
	case insUpdateBinary:
		if err := c.tag.WriteBlock(int(apdu[3]), apdu[5:]); err != nil {
			return []byte{0x63, 0x00}, nil
		}
		return ok(), nil
	default:
		return []byte{0x6A, 0x81}, nil
	}
}

func (c *fakeCard) Status() (*scard.CardStatus, error) {
	return &scard.CardStatus{Atr: []byte{0x3B, 0x8F, 0x80, 0x01}}, nil
}

func (c *fakeCard) Reconnect(scard.ShareMode, scard.Protocol, scard.Disposition) error {
	if !c.tag.Wakeup() || !c.tag.Select(nil) {
		return scard.ErrRemovedCard
	}
	return nil
}

func (c *fakeCard) Disconnect(scard.Disposition) error {
	c.tag.Halt()
	return nil
}

type fakeContext struct {
	tag      *testutil.VirtualTag
	card     *fakeCard
	readers  []string
	connects int
	released bool
}

func (f *fakeContext) ListReaders() ([]string, error) {
	return f.readers, nil
}

func (f *fakeContext) GetStatusChange(rs []scard.ReaderState, _ time.Duration) error {
	for i := range rs {
		rs[i].EventState = scard.StateEmpty
		if f.tag != nil && f.tag.Present() {
			rs[i].EventState = scard.StatePresent
		}
	}
	return nil
}

func (f *fakeContext) Connect(string) (cardConn, error) {
	f.connects++
	if f.tag == nil || !f.tag.Present() {
		return nil, scard.ErrNoSmartcard
	}
	// The reader activates the card; a halted card stays halted
	if f.tag.State() == testutil.StateIdle {
		f.tag.Request()
		f.tag.Select(nil)
	}
	f.card = &fakeCard{tag: f.tag}
	return f.card, nil
}

func (f *fakeContext) Release() error {
	f.released = true
	return nil
}

func newFakeReader(t *testing.T, tag *testutil.VirtualTag) (*Reader, *fakeContext) {
	t.Helper()
	fc := &fakeContext{tag: tag, readers: []string{"ACS ACR122U PICC Interface 00 00"}}
	r, err := newReader(fc, "")
	require.NoError(t, err)
	assert.Equal(t, "ACS ACR122U PICC Interface 00 00", r.Name())
	return r, fc
}

func TestNewReaderNoReaders(t *testing.T) {
	t.Parallel()

	_, err := newReader(&fakeContext{}, "")
	assert.ErrorIs(t, err, ErrNoReader)

	r, err := newReader(&fakeContext{}, "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", r.Name())
}

func TestReaderSessionWriteThenRead(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, fc := newFakeReader(t, tag)
	session := wobridge.NewSession(r, nil)
	ctx := context.Background()

	require.NoError(t, session.Write(ctx, []byte("42")))
	assert.Equal(t, "42              ", string(tag.Block(1)))

	// Still on the reader: the next read must take the wake-up path
	code, err := session.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42#####", code.String())
	assert.Equal(t, 2, fc.connects)
	assert.Equal(t, wobridge.UID(testutil.TestUID4), r.UID())
}

func TestReaderAPDUs(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, fc := newFakeReader(t, tag)

	_, err := wobridge.NewSession(r, nil).Read(context.Background())
	require.NoError(t, err)

	want := [][]byte{
		{0xFF, 0xCA, 0x00, 0x00, 0x00},
		{0xFF, 0x82, 0x00, 0x00, 0x06, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0xFF, 0x86, 0x00, 0x00, 0x05, 0x01, 0x00, 0x01, 0x60, 0x00},
		{0xFF, 0xB0, 0x00, 0x01, 0x10},
	}
	if diff := cmp.Diff(want, fc.card.apdus); diff != "" {
		t.Errorf("APDUs mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderNoCard(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.Remove()
	r, _ := newFakeReader(t, tag)

	_, err := wobridge.NewSession(r, nil).Read(context.Background())
	require.True(t, wobridge.IsNoCard(err))
	assert.Equal(t, wobridge.StatusTimeout, wobridge.StatusOf(err))
}

func TestReaderHaltedCardNotNew(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, _ := newFakeReader(t, tag)
	ctx := context.Background()

	require.True(t, r.IsNewCardPresent(ctx))
	require.NoError(t, r.Halt(ctx))
	assert.False(t, r.IsNewCardPresent(ctx))

	// Removal clears the halt
	tag.Remove()
	assert.False(t, r.IsNewCardPresent(ctx))
	tag.Place()
	assert.True(t, r.IsNewCardPresent(ctx))
}

func TestReaderWrongKey(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.SetSectorKey(0, false, []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5})
	r, _ := newFakeReader(t, tag)

	err := wobridge.NewSession(r, nil).Write(context.Background(), []byte("1234567"))
	require.ErrorIs(t, err, wobridge.ErrAuth)
	assert.Equal(t, wobridge.StatusMIFARENack, wobridge.StatusOf(err))

	var apduErr *APDUError
	require.ErrorAs(t, err, &apduErr)
	assert.Equal(t, "GENERAL AUTHENTICATE", apduErr.Command)
}

func TestReaderSelectOtherCard(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, _ := newFakeReader(t, tag)
	ctx := context.Background()

	require.True(t, r.IsNewCardPresent(ctx))
	err := r.Select(ctx, wobridge.UID(testutil.TestUID7))
	assert.Equal(t, wobridge.StatusTimeout, wobridge.StatusOf(err))
	require.NoError(t, r.Select(ctx, nil))
}

func TestReaderCardRemovedMidOperation(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, fc := newFakeReader(t, tag)
	ctx := context.Background()

	require.True(t, r.IsNewCardPresent(ctx))
	fc.card.failWith = scard.ErrRemovedCard
	_, err := r.ReadBlock(ctx, 1)
	require.ErrorIs(t, err, scard.ErrRemovedCard)
	assert.Equal(t, wobridge.StatusTimeout, wobridge.StatusOf(err))
}

func TestReaderClose(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	r, fc := newFakeReader(t, tag)
	require.True(t, r.IsNewCardPresent(context.Background()))
	require.NoError(t, r.Close())
	assert.True(t, fc.released)
	assert.Equal(t, testutil.StateHalt, tag.State())
}

func TestAPDUErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sw     [2]byte
		status wobridge.Status
	}{
		{name: "Auth_Failed", sw: [2]byte{0x63, 0x00}, status: wobridge.StatusMIFARENack},
		{name: "Security_Status", sw: [2]byte{0x69, 0x82}, status: wobridge.StatusMIFARENack},
		{name: "Not_Supported", sw: [2]byte{0x6A, 0x81}, status: wobridge.StatusInvalid},
		{name: "Wrong_Length", sw: [2]byte{0x6C, 0x10}, status: wobridge.StatusNoRoom},
		{name: "Other", sw: [2]byte{0x6F, 0x00}, status: wobridge.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := &APDUError{Command: "READ BINARY", SW1: tt.sw[0], SW2: tt.sw[1]}
			assert.Equal(t, tt.status, wobridge.StatusOf(err))
		})
	}
	assert.Equal(t, "READ BINARY: SW 6A 81", (&APDUError{Command: "READ BINARY", SW1: 0x6A, SW2: 0x81}).Error())
}
