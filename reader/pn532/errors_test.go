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
	"errors"
	"fmt"
	"testing"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/stretchr/testify/assert"
)

func TestPN532ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code   byte
		status wobridge.Status
	}{
		{code: 0x01, status: wobridge.StatusTimeout},
		{code: 0x02, status: wobridge.StatusCRCWrong},
		{code: 0x03, status: wobridge.StatusError},
		{code: 0x05, status: wobridge.StatusMIFARENack},
		{code: 0x06, status: wobridge.StatusCollision},
		{code: 0x07, status: wobridge.StatusNoRoom},
		{code: 0x0D, status: wobridge.StatusInternal},
		{code: 0x14, status: wobridge.StatusMIFARENack},
		{code: 0x27, status: wobridge.StatusInvalid},
		{code: 0x2B, status: wobridge.StatusTimeout},
		{code: 0x3E, status: wobridge.StatusError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("0x%02X", tt.code), func(t *testing.T) {
			t.Parallel()
			err := fmt.Errorf("wrapped: %w", &PN532Error{Command: "InDataExchange", Code: tt.code})
			assert.Equal(t, tt.status, wobridge.StatusOf(err))
			assert.ErrorIs(t, err, tt.status)
		})
	}
}

func TestPN532ErrorMessage(t *testing.T) {
	t.Parallel()

	err := &PN532Error{Command: "InDataExchange", Code: 0x14}
	assert.Equal(t, "InDataExchange error 0x14 (authentication error)", err.Error())
	assert.Equal(t, "Foo error 0x3E (unknown error)", (&PN532Error{Command: "Foo", Code: 0x3E}).Error())
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	err := &TransportError{Op: "wait ACK", Port: "/dev/ttyUSB0", Err: ErrNoACK}
	assert.Equal(t, "wait ACK on /dev/ttyUSB0: PN532 did not acknowledge command", err.Error())
	assert.True(t, errors.Is(err, ErrNoACK))
	assert.Equal(t, "read: boom", (&TransportError{Op: "read", Err: errors.New("boom")}).Error())
}
