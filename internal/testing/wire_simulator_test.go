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
	"context"
	"testing"

	"github.com/ZaparooProject/go-wobridge/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, tr *SimulatorTransport, cmd byte, args ...byte) []byte {
	t.Helper()
	resp, err := tr.SendCommand(context.Background(), cmd, args)
	require.NoError(t, err)
	require.NotEmpty(t, resp)
	return resp
}

func TestVirtualPN532FrameExchange(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	out, err := frame.BuildCommand(cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	_, err = sim.Write(out)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := sim.Read(buf)
	require.NoError(t, err)
	require.True(t, frame.IsAck(buf[:n]))

	f, _, err := frame.Parse(buf[len(frame.AckFrame):n])
	require.NoError(t, err)
	assert.Equal(t, byte(frame.PN532ToHost), f.TFI)
	assert.Equal(t, []byte{cmdGetFirmwareVersion + 1, 0x32, 0x01, 0x06, 0x07}, f.Data)
	assert.False(t, sim.HasPendingResponse())
}

func TestVirtualPN532WakePreambleIgnored(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	_, err := sim.Write([]byte{0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.False(t, sim.HasPendingResponse())

	tr := NewSimulatorTransport(sim)
	send(t, tr, cmdSAMConfiguration, 0x01, 0x14, 0x01)
	assert.True(t, sim.State().SAMConfigured)
}

func TestVirtualPN532NackResendsIntactFrame(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	sim.CorruptNextResponse()
	out, err := frame.BuildCommand(cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	_, err = sim.Write(out)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, _ := sim.Read(buf)
	_, _, err = frame.Parse(buf[len(frame.AckFrame):n])
	require.ErrorIs(t, err, frame.ErrChecksum)

	_, err = sim.Write(frame.NackFrame)
	require.NoError(t, err)
	n, _ = sim.Read(buf)
	f, _, err := frame.Parse(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, byte(cmdGetFirmwareVersion+1), f.Data[0])
}

func TestVirtualPN532UnknownCommand(t *testing.T) {
	t.Parallel()

	tr := NewSimulatorTransport(NewVirtualPN532())
	assert.Equal(t, []byte{frame.ErrorTFI}, send(t, tr, 0x7E))
}

func TestVirtualPN532ListAndSelect(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	tag := NewVirtualMIFARE1K(nil)
	sim.SetTag(tag)
	tr := NewSimulatorTransport(sim)

	resp := send(t, tr, cmdInListPassiveTarget, 0x01, 0x00)
	assert.Equal(t, []byte{cmdInListPassiveTarget + 1, 0x01, 0x01, 0x04, 0x00, 0x08, 0x04, 0xDE, 0xAD, 0xBE, 0xEF}, resp)
	assert.Equal(t, 1, sim.State().SelectedTarget)

	// Active cards are not listed again
	assert.Equal(t, []byte{cmdInListPassiveTarget + 1, 0x00}, send(t, tr, cmdInListPassiveTarget, 0x01, 0x00))

	assert.Equal(t, []byte{cmdInRelease + 1, 0x00}, send(t, tr, cmdInRelease, 0x00))
	assert.Zero(t, sim.State().SelectedTarget)

	assert.Equal(t, []byte{cmdInListPassiveTarget + 1, errInvalidParam}, send(t, tr, cmdInListPassiveTarget, 0x00, 0x00))
}

func TestVirtualPN532WakeupNeedsShortFrame(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	tag := NewVirtualMIFARE1K(nil)
	sim.SetTag(tag)
	tr := NewSimulatorTransport(sim)

	send(t, tr, cmdInListPassiveTarget, 0x01, 0x00)
	assert.Equal(t, []byte{cmdInCommunicateThru + 1, errTimeout}, send(t, tr, cmdInCommunicateThru, piccHLTA, 0x00))
	require.Equal(t, StateHalt, tag.State())

	// 8-bit framing: the card does not see WUPA
	assert.Equal(t, []byte{cmdInCommunicateThru + 1, errTimeout}, send(t, tr, cmdInCommunicateThru, piccWUPA))

	send(t, tr, cmdWriteRegister, 0x63, 0x3D, 0x07)
	assert.Equal(t, []byte{cmdInCommunicateThru + 1, 0x00, 0x04, 0x00}, send(t, tr, cmdInCommunicateThru, piccWUPA))
	assert.Equal(t, StateReady, tag.State())
}

func TestVirtualPN532Crypto1Register(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	tag := NewVirtualMIFARE1K(nil)
	sim.SetTag(tag)
	tr := NewSimulatorTransport(sim)

	send(t, tr, cmdInListPassiveTarget, 0x01, 0x00)
	auth := append([]byte{0x01, piccAuthKeyA, 0x01}, DefaultTagKey...)
	auth = append(auth, TestUID4...)
	assert.Equal(t, []byte{cmdInDataExchange + 1, 0x00}, send(t, tr, cmdInDataExchange, auth...))

	status := send(t, tr, cmdReadRegister, 0x63, 0x38)
	assert.Equal(t, byte(bitMFCrypto1On), status[1]&bitMFCrypto1On)

	send(t, tr, cmdWriteRegister, 0x63, 0x38, status[1]&^bitMFCrypto1On)
	assert.False(t, tag.Authenticated())

	resp := send(t, tr, cmdInDataExchange, 0x01, piccRead, 0x01)
	assert.Equal(t, []byte{cmdInDataExchange + 1, errMifareAuth}, resp)
}

func TestVirtualPN532DropNextACK(t *testing.T) {
	t.Parallel()

	sim := NewVirtualPN532()
	sim.DropNextACK()
	tr := NewSimulatorTransport(sim)

	_, err := tr.SendCommand(context.Background(), cmdGetFirmwareVersion, nil)
	require.Error(t, err)
	assert.Equal(t, 1, tr.CommandCount(cmdGetFirmwareVersion))
	assert.Equal(t, []byte{cmdGetFirmwareVersion}, sim.Commands())
}
