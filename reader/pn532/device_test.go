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
	"testing"

	"github.com/ZaparooProject/go-wobridge"
	testutil "github.com/ZaparooProject/go-wobridge/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimDevice(t *testing.T, tag *testutil.VirtualTag) (*Device, *testutil.SimulatorTransport) {
	t.Helper()
	sim := testutil.NewVirtualPN532()
	if tag != nil {
		sim.SetTag(tag)
	}
	tr := testutil.NewSimulatorTransport(sim)
	dev := New(tr, nil)
	require.NoError(t, dev.Init(context.Background()))
	tr.ClearCommandLog()
	return dev, tr
}

func sentThru(tr *testutil.SimulatorTransport, picc byte) int {
	n := 0
	for _, e := range tr.CommandLog {
		if e.Cmd == cmdInCommunicateThru && len(e.Args) > 0 && e.Args[0] == picc {
			n++
		}
	}
	return n
}

func TestDeviceInit(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualPN532()
	tr := testutil.NewSimulatorTransport(sim)
	dev := New(tr, nil)

	require.NoError(t, dev.Init(context.Background()))
	assert.True(t, sim.State().SAMConfigured)
	assert.Equal(t, []byte{cmdSAMConfiguration, cmdGetFirmwareVersion, cmdRFConfiguration}, sim.Commands())

	fw, err := dev.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PN532 v1.6", fw.String())
}

func TestDeviceSessionReadBlank(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	dev, tr := newSimDevice(t, tag)

	code, err := wobridge.NewSession(dev, nil).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "#######", code.String())
	assert.Equal(t, testutil.StateHalt, tag.State())
	assert.False(t, tag.Authenticated())
	assert.Equal(t, 1, tr.CommandCount(cmdInSelect))
	assert.Equal(t, 1, tr.CommandCount(cmdInRelease))
	assert.Zero(t, sentThru(tr, piccWUPA))
	assert.Equal(t, wobridge.UID(testutil.TestUID4), dev.UID())
}

func TestDeviceWriteThenReadWakesHaltedCard(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(testutil.TestUID7)
	dev, tr := newSimDevice(t, tag)
	session := wobridge.NewSession(dev, nil)
	ctx := context.Background()

	require.NoError(t, session.Write(ctx, []byte("1234567")))
	assert.Equal(t, "1234567         ", string(tag.Block(1)))
	require.Equal(t, testutil.StateHalt, tag.State())

	code, err := session.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1234567", code.String())
	assert.Equal(t, 1, sentThru(tr, piccWUPA))
	assert.Equal(t, testutil.StateHalt, tag.State())

	regs := tr.Simulator().State().Registers
	assert.Equal(t, byte(0x00), regs[testutil.RegBitFraming])
	assert.Equal(t, byte(crcEnable), regs[testutil.RegTxMode])
	assert.Equal(t, byte(crcEnable), regs[testutil.RegRxMode])
}

func TestDeviceNoCard(t *testing.T) {
	t.Parallel()

	dev, tr := newSimDevice(t, nil)
	ctx := context.Background()

	assert.False(t, dev.IsNewCardPresent(ctx))
	assert.False(t, dev.ReadCardSerial(ctx))

	_, err := dev.Wakeup(ctx)
	var perr *PN532Error
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.IsTimeout())
	assert.Equal(t, wobridge.StatusTimeout, wobridge.StatusOf(err))

	_, err = wobridge.NewSession(dev, nil).Read(ctx)
	assert.True(t, wobridge.IsNoCard(err))

	// Nothing listed or authenticated, so quiescing sends nothing
	tr.ClearCommandLog()
	require.NoError(t, dev.Halt(ctx))
	require.NoError(t, dev.StopCrypto(ctx))
	assert.Empty(t, tr.CommandLog)
}

func TestDeviceWrongKey(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.SetSectorKey(0, false, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	dev, _ := newSimDevice(t, tag)

	_, err := wobridge.NewSession(dev, nil).Read(context.Background())
	require.ErrorIs(t, err, wobridge.ErrAuth)
	assert.Equal(t, wobridge.StatusMIFARENack, wobridge.StatusOf(err))

	var perr *PN532Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, byte(0x14), perr.Code)
	assert.Contains(t, err.Error(), "authentication error")
}

func TestDeviceStopCryptoClearsCrypto1(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	dev, tr := newSimDevice(t, tag)
	ctx := context.Background()

	require.True(t, dev.IsNewCardPresent(ctx))
	require.True(t, dev.ReadCardSerial(ctx))
	require.NoError(t, dev.Authenticate(ctx, wobridge.KeyA, 1, wobridge.DefaultKey, dev.UID()))
	require.True(t, tag.Authenticated())

	tr.ClearCommandLog()
	require.NoError(t, dev.StopCrypto(ctx))
	assert.False(t, tag.Authenticated())
	assert.Equal(t, 1, tr.CommandCount(cmdReadRegister))
	assert.Equal(t, 1, tr.CommandCount(cmdWriteRegister))
	require.Len(t, tr.CommandLog, 2)
	assert.Equal(t, []byte{0x63, 0x38}, tr.CommandLog[0].Args)
	require.Len(t, tr.CommandLog[1].Args, 3)
	assert.Equal(t, []byte{0x63, 0x38}, tr.CommandLog[1].Args[:2])
	assert.Zero(t, tr.CommandLog[1].Args[2]&bitMFCrypto1On)

	// Second call is a no-op
	require.NoError(t, dev.StopCrypto(ctx))
	assert.Equal(t, 1, tr.CommandCount(cmdReadRegister))
}

func TestDeviceBlockArguments(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	dev, _ := newSimDevice(t, tag)
	ctx := context.Background()

	err := dev.Authenticate(ctx, wobridge.KeyA, 1, wobridge.DefaultKey, wobridge.UID{0x01})
	assert.Equal(t, wobridge.StatusInvalid, wobridge.StatusOf(err))

	err = dev.WriteBlock(ctx, 1, []byte("short"))
	assert.Equal(t, wobridge.StatusInvalid, wobridge.StatusOf(err))
}

func TestDeviceReadBlockLayout(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.SetBlock(2, []byte("ABCDEFGHIJKLMNOP"))
	dev, _ := newSimDevice(t, tag)
	ctx := context.Background()

	require.True(t, dev.IsNewCardPresent(ctx))
	require.NoError(t, dev.Authenticate(ctx, wobridge.KeyA, 2, wobridge.DefaultKey, dev.UID()))

	buf, err := dev.ReadBlock(ctx, 2)
	require.NoError(t, err)
	require.Len(t, buf, wobridge.ReadBufferSize)
	assert.Equal(t, "ABCDEFGHIJKLMNOP", string(buf[:wobridge.BlockSize]))
	assert.Equal(t, []byte{0, 0}, buf[wobridge.BlockSize:])
}

// scriptedTransport answers every command with the same bytes.
type scriptedTransport struct {
	err  error
	resp []byte
}

func (s *scriptedTransport) SendCommand(context.Context, byte, []byte) ([]byte, error) {
	return s.resp, s.err
}

func (*scriptedTransport) Close() error { return nil }

func TestDeviceResponseErrors(t *testing.T) {
	t.Parallel()

	errLink := errors.New("link down")
	tests := []struct {
		name      string
		transport *scriptedTransport
		wantErr   error
		status    wobridge.Status
	}{
		{
			name:      "Error_Frame",
			transport: &scriptedTransport{resp: []byte{errorFrameTFI}},
			wantErr:   ErrErrorFrame,
			status:    wobridge.StatusInvalid,
		},
		{
			name:      "Wrong_Response_Code",
			transport: &scriptedTransport{resp: []byte{0x99, 0x00}},
			wantErr:   ErrUnexpectedResponse,
			status:    wobridge.StatusError,
		},
		{
			name:      "Transport_Failure",
			transport: &scriptedTransport{err: errLink},
			wantErr:   errLink,
			status:    wobridge.StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dev := New(tt.transport, nil)
			_, err := dev.FirmwareVersion(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.status, wobridge.StatusOf(err))
		})
	}
}

func TestRegBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr uint16
		hi   byte
		lo   byte
	}{
		{name: "CIU_Status2", addr: regCIUStatus2, hi: 0x63, lo: 0x38},
		{name: "BitFraming", addr: regBitFraming, hi: 0x63, lo: 0x3D},
		{name: "TxMode", addr: regTxMode, hi: 0x63, lo: 0x02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hi, lo := regBytes(tt.addr)
			assert.Equal(t, tt.hi, hi)
			assert.Equal(t, tt.lo, lo)
		})
	}
}
