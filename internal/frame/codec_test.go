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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "Empty", data: []byte{}, want: 0},
		{name: "Single", data: []byte{0x42}, want: 0x42},
		{name: "Overflow", data: []byte{0xFF, 0x01}, want: 0x00},
		{name: "Command", data: []byte{0xD4, 0x02}, want: 0xD6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()

	// GetFirmwareVersion, from the PN532 user manual
	got, err := BuildCommand(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, got)

	_, err = BuildCommand(0x40, make([]byte, MaxDataLength))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := Build(PN532ToHost, []byte{0x4B, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)

	// Leading noise is skipped
	buf := append([]byte{0x55, 0x55}, raw...)
	f, n, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, byte(PN532ToHost), f.TFI)
	assert.Equal(t, byte(0x4B), f.Data[0])
	assert.False(t, f.IsError())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	good, err := Build(PN532ToHost, []byte{0x03, 0x32})
	require.NoError(t, err)

	badDCS := append([]byte(nil), good...)
	badDCS[len(badDCS)-2] ^= 0xFF

	badLCS := append([]byte(nil), good...)
	badLCS[4] = 0x00

	tests := []struct {
		wantErr error
		name    string
		buf     []byte
	}{
		{name: "No_Start", buf: []byte{0x01, 0x02, 0x03}, wantErr: ErrNoStart},
		{name: "Header_Only", buf: []byte{0x00, 0x00, 0xFF}, wantErr: ErrIncomplete},
		{name: "Truncated_Body", buf: good[:6], wantErr: ErrIncomplete},
		{name: "Bad_DCS", buf: badDCS, wantErr: ErrChecksum},
		{name: "Bad_LCS", buf: badLCS, wantErr: ErrLenChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tt.buf)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseErrorFrame(t *testing.T) {
	t.Parallel()

	f, _, err := Parse([]byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00})
	require.NoError(t, err)
	assert.True(t, f.IsError())
	assert.Empty(t, f.Data)
}

func TestAckNack(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAck(AckFrame))
	assert.False(t, IsAck(NackFrame))
	assert.True(t, IsNack(append(append([]byte(nil), NackFrame...), 0x00)))
}

func FuzzParse(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD5, 0x03, 0x28, 0x00})
	f.Add([]byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00})
	f.Add([]byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00})
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		fr, n, err := Parse(buf)
		if n < 0 || n > len(buf) {
			t.Fatalf("consumed %d of %d bytes", n, len(buf))
		}
		if err == nil && len(fr.Data)+1 > MaxDataLength+1 {
			t.Fatalf("data too long: %d", len(fr.Data))
		}
	})
}
