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

// Package httpserver is the admin endpoint: health, readiness, Prometheus
// metrics and a JSON view of the bridge loop.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusSource is the loop being served. *wobridge.Bridge implements it.
type StatusSource interface {
	Running() bool
	Status() wobridge.BridgeStatus
}

// Server wraps the gin engine in an http.Server.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// New registers /healthz, /readyz, /status and, when metrics is non-nil,
// /metrics.
func New(cfg config.HTTPConfig, src StatusSource, metrics http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if src != nil && src.Running() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	r.GET("/status", func(c *gin.Context) {
		if src == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no bridge"})
			return
		}
		c.JSON(http.StatusOK, src.Status())
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown. It blocks and returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.log.Info("admin server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
