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

// Package metrics exposes bridge activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Card operation results
const (
	ResultOK       = "ok"
	ResultNoCard   = "no_card"
	ResultRejected = "rejected" // bad data, card untouched
	ResultPartial  = "partial"
	ResultFailed   = "failed"
)

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BridgeMetrics counts loop events. It implements wobridge.Observer.
type BridgeMetrics struct {
	Packets  prometheus.Counter
	Bytes    prometheus.Counter
	Commands *prometheus.CounterVec // labels: tag
	CardOps  *prometheus.CounterVec // labels: op, result
	LastRead prometheus.Gauge       // unix seconds of the last successful read

	now func() time.Time
}

var _ wobridge.Observer = (*BridgeMetrics)(nil)

// NewBridgeMetrics registers the bridge metrics on reg.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		Packets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wobridge_packets_total",
			Help: "Packets assembled from the host link.",
		}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wobridge_bytes_received_total",
			Help: "Bytes read from the host link.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wobridge_commands_total",
			Help: "Dispatched packets by command tag.",
		}, []string{"tag"}),
		CardOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wobridge_card_ops_total",
			Help: "Card operations by kind and outcome.",
		}, []string{"op", "result"}),
		LastRead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wobridge_last_read_timestamp_seconds",
			Help: "Time of the last successful card read.",
		}),
		now: time.Now,
	}
	reg.MustRegister(m.Packets, m.Bytes, m.Commands, m.CardOps, m.LastRead)
	return m
}

// BytesReceived implements wobridge.Observer.
func (m *BridgeMetrics) BytesReceived(n int) {
	m.Bytes.Add(float64(n))
}

// PacketAssembled implements wobridge.Observer.
func (m *BridgeMetrics) PacketAssembled(protocol.Packet) {
	m.Packets.Inc()
}

// CommandDispatched implements wobridge.Observer.
func (m *BridgeMetrics) CommandDispatched(res wobridge.Result) {
	m.Commands.WithLabelValues(tagLabel(res)).Inc()
	if !res.Handled {
		return
	}

	op := wobridge.OpRead
	if res.Tag == protocol.TagWrite {
		op = wobridge.OpWrite
	}
	result := resultLabel(res.Err)
	m.CardOps.WithLabelValues(op, result).Inc()
	if op == wobridge.OpRead && result == ResultOK {
		m.LastRead.Set(float64(m.now().UnixNano()) / 1e9)
	}
}

func tagLabel(res wobridge.Result) string {
	switch {
	case res.Handled:
		return string(rune(res.Tag))
	case res.Tag == 0:
		return "empty"
	default:
		return "unknown"
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case wobridge.IsNoCard(err):
		return ResultNoCard
	case wobridge.IsPartialWrite(err):
		return ResultPartial
	case errors.Is(err, wobridge.ErrInvalidData), errors.Is(err, wobridge.ErrProtectedBlock):
		return ResultRejected
	default:
		return ResultFailed
	}
}
