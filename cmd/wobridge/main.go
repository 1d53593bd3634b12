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

// Command wobridge runs the serial work order bridge: it reads framed
// commands from the host on a serial port and reads or writes the work
// order code on the card presented to the reader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/internal/config"
	"github.com/ZaparooProject/go-wobridge/internal/httpserver"
	"github.com/ZaparooProject/go-wobridge/internal/logging"
	"github.com/ZaparooProject/go-wobridge/internal/metrics"
	"github.com/ZaparooProject/go-wobridge/internal/syncutil"
	"github.com/ZaparooProject/go-wobridge/reader/pcsc"
	"github.com/ZaparooProject/go-wobridge/reader/pn532"
	"github.com/ZaparooProject/go-wobridge/transport/serial"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 5 * time.Second

// Package-level flag variables
var (
	flagConfig      string
	flagPrintConfig bool
	flagListPorts   bool
	flagDebug       bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Config file (default ./wobridge.yaml or /etc/wobridge/wobridge.yaml)")
	flag.BoolVar(&flagPrintConfig, "print-config", false, "Print the effective configuration and exit")
	flag.BoolVar(&flagListPorts, "list-ports", false, "List serial ports and exit")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

// reader is a card backend the bridge can drive and release.
type reader interface {
	wobridge.Card
	io.Closer
}

func printConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func listPorts(w io.Writer, ignore []string) error {
	ports, err := serial.ListPorts(ignore)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(w, p)
	}
	return nil
}

// openReader opens and initializes the configured card backend.
func openReader(ctx context.Context, cfg config.ReaderConfig, log *zap.Logger) (reader, error) {
	var t pn532.Transport
	switch cfg.Backend {
	case config.BackendPCSC:
		r, err := pcsc.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open PC/SC reader: %w", err)
		}
		log.Info("PC/SC reader ready", zap.String("reader", r.Name()))
		return r, nil
	case config.BackendPN532UART:
		u, err := pn532.OpenUART(cfg.Path, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		t = u
	case config.BackendPN532I2C:
		i, err := pn532.OpenI2C(cfg.Path, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		t = i
	default:
		return nil, fmt.Errorf("unsupported reader backend: %s", cfg.Backend)
	}

	return initPN532(ctx, t, cfg, log)
}

// initPN532 wraps t in a Device and initializes it. Init logs the
// firmware version.
func initPN532(ctx context.Context, t pn532.Transport, cfg config.ReaderConfig, log *zap.Logger) (*pn532.Device, error) {
	dev := pn532.New(t, &pn532.DeviceConfig{
		Logger:         log.Named("pn532").With(zap.String("path", cfg.Path)),
		PassiveRetries: byte(cfg.PassiveRetries),
	})
	if err := dev.Init(ctx); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to initialize PN532 on %s: %w", cfg.Path, err)
	}
	return dev, nil
}

func startAdmin(cfg config.HTTPConfig, bridge *wobridge.Bridge, metricsHandler http.Handler, log *zap.Logger) func() {
	if cfg.Addr == "" {
		return func() {}
	}
	gin.SetMode(gin.ReleaseMode)
	srv := httpserver.New(cfg, bridge, metricsHandler, log.Named("http"))
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("admin server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("admin server shutdown", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	card, err := openReader(ctx, cfg.Reader, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := card.Close(); err != nil {
			log.Warn("failed to close reader", zap.Error(err))
		}
	}()

	port, err := serial.Open(cfg.Serial.Port, cfg.SerialPort())
	if err != nil {
		return fmt.Errorf("failed to open host link: %w", err)
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Warn("failed to close host link", zap.Error(err))
		}
	}()
	log.Info("host link open", zap.String("port", port.Name()), zap.Int("baud", cfg.Serial.Baud))

	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	sessCfg.Logger = log.Named("session")

	loopCfg, err := cfg.Loop()
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	loopCfg.Logger = log.Named("bridge")
	loopCfg.Observer = metrics.NewBridgeMetrics(reg)

	bridge := wobridge.NewBridge(port, wobridge.NewSession(card, sessCfg), loopCfg)

	stopAdmin := startAdmin(cfg.HTTP, bridge, metrics.Handler(reg), log)
	defer stopAdmin()

	return bridge.Run(ctx)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if flagPrintConfig {
		if err := printConfig(os.Stdout, cfg); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if flagListPorts {
		if err := listPorts(os.Stdout, []string{cfg.Reader.Path}); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if flagDebug {
		cfg.Logging.Level = "debug"
		wobridge.SetDebugEnabled(true)
		syncutil.SetLockTimeout(10 * time.Second)
	}

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = closeLog() }()
	wobridge.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutting down")
			return 0
		}
		log.Error("bridge stopped", zap.Error(err))
		return 1
	}
	return 0
}
