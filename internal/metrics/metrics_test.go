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

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionErr(kind error, partial bool) error {
	return &wobridge.SessionError{Kind: kind, Op: wobridge.OpWrite, Block: -1, Partial: partial}
}

func TestBridgeMetricsCommands(t *testing.T) {
	t.Parallel()

	m := NewBridgeMetrics(prometheus.NewRegistry())
	m.now = func() time.Time { return time.Unix(1700000000, 500000000) }

	m.BytesReceived(3)
	m.BytesReceived(11)
	m.PacketAssembled(protocol.NewPacket([]byte("R")))
	m.CommandDispatched(wobridge.Result{Tag: protocol.TagRead, Handled: true})
	m.CommandDispatched(wobridge.Result{Tag: protocol.TagWrite, Handled: true})
	m.CommandDispatched(wobridge.Result{Tag: 'X'})
	m.CommandDispatched(wobridge.Result{})

	assert.InDelta(t, 14, testutil.ToFloat64(m.Bytes), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Packets), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Commands.WithLabelValues("R")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Commands.WithLabelValues("W")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Commands.WithLabelValues("unknown")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Commands.WithLabelValues("empty")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CardOps.WithLabelValues("read", ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CardOps.WithLabelValues("write", ResultOK)), 0)
	assert.InDelta(t, 1700000000.5, testutil.ToFloat64(m.LastRead), 1e-3)
	assert.Equal(t, 2, testutil.CollectAndCount(m.CardOps))
}

func TestBridgeMetricsResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want string
	}{
		{name: "No_Card", err: sessionErr(wobridge.ErrNoCard, false), want: ResultNoCard},
		{name: "Auth", err: sessionErr(wobridge.ErrAuth, false), want: ResultFailed},
		{name: "Partial", err: sessionErr(wobridge.ErrWrite, true), want: ResultPartial},
		{name: "Invalid_Data", err: sessionErr(wobridge.ErrInvalidData, false), want: ResultRejected},
		{name: "Transmit", err: errors.New("transmit response: broken pipe"), want: ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewBridgeMetrics(prometheus.NewRegistry())
			m.CommandDispatched(wobridge.Result{Tag: protocol.TagWrite, Handled: true, Err: tt.err})
			assert.InDelta(t, 1, testutil.ToFloat64(m.CardOps.WithLabelValues("write", tt.want)), 0)
			assert.InDelta(t, 0, testutil.ToFloat64(m.LastRead), 0)
		})
	}
}

func TestFailedReadKeepsLastRead(t *testing.T) {
	t.Parallel()

	m := NewBridgeMetrics(prometheus.NewRegistry())
	m.CommandDispatched(wobridge.Result{
		Tag:     protocol.TagRead,
		Handled: true,
		Err:     &wobridge.SessionError{Kind: wobridge.ErrNoCard, Op: wobridge.OpRead, Block: -1},
	})
	assert.InDelta(t, 0, testutil.ToFloat64(m.LastRead), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CardOps.WithLabelValues("read", ResultNoCard)), 0)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m := NewBridgeMetrics(reg)
	m.PacketAssembled(protocol.NewPacket([]byte("R")))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "wobridge_packets_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
