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

// Package config loads the bridge configuration from a YAML file,
// WOBRIDGE_* environment variables and built-in defaults.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-wobridge"
	"github.com/ZaparooProject/go-wobridge/protocol"
	"github.com/ZaparooProject/go-wobridge/transport/serial"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes every environment override, e.g. WOBRIDGE_SERIAL_PORT.
const EnvPrefix = "WOBRIDGE"

// Reader backends
const (
	BackendPN532UART = "pn532-uart"
	BackendPN532I2C  = "pn532-i2c"
	BackendPCSC      = "pcsc"
)

// SerialConfig is the host link.
type SerialConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	Baud        int           `mapstructure:"baud" yaml:"baud"`
	ReadTimeout time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
}

// ProtocolConfig tunes packet assembly and dispatch.
type ProtocolConfig struct {
	BufferSize     int    `mapstructure:"bufferSize" yaml:"bufferSize"`
	Truncate       string `mapstructure:"truncate" yaml:"truncate"`
	UnknownCommand string `mapstructure:"unknownCommand" yaml:"unknownCommand"`
}

// ReaderConfig selects the card reader.
type ReaderConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Path is the serial port or I2C bus of a PN532, or the PC/SC reader
	// name. Empty picks the first PC/SC reader.
	Path           string        `mapstructure:"path" yaml:"path"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PassiveRetries int           `mapstructure:"passiveRetries" yaml:"passiveRetries"`
}

// CardConfig describes where the work order lives on the card.
type CardConfig struct {
	Key     string `mapstructure:"key" yaml:"key"` // 12 hex digits
	KeySlot string `mapstructure:"keySlot" yaml:"keySlot"`
	Block   int    `mapstructure:"block" yaml:"block"`
}

// BridgeConfig tunes the idle loop.
type BridgeConfig struct {
	PollRate    float64 `mapstructure:"pollRate" yaml:"pollRate"`
	Diagnostics bool    `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// LumberjackConfig configures log file rotation.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig selects level and output. An empty File.Filename logs to
// stderr only.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// HTTPConfig is the admin server. An empty Addr disables it.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// Config is the top-level configuration.
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Reader   ReaderConfig   `mapstructure:"reader" yaml:"reader"`
	Card     CardConfig     `mapstructure:"card" yaml:"card"`
	Bridge   BridgeConfig   `mapstructure:"bridge" yaml:"bridge"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// Load reads the file at path, applies WOBRIDGE_* environment overrides
// and fills defaults. With an empty path it looks for wobridge.yaml in the
// working directory and /etc/wobridge, and runs on defaults when none
// exists. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/wobridge")
		v.SetConfigName("wobridge")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyACM0")
	v.SetDefault("serial.baud", serial.DefaultBaudRate)
	v.SetDefault("serial.readTimeout", serial.DefaultReadTimeout.String())

	v.SetDefault("protocol.bufferSize", protocol.DefaultBufferSize)
	v.SetDefault("protocol.truncate", protocol.TruncateDrop.String())
	v.SetDefault("protocol.unknownCommand", wobridge.UnknownIgnore.String())

	v.SetDefault("reader.backend", BackendPN532UART)
	v.SetDefault("reader.path", "/dev/ttyUSB0")
	v.SetDefault("reader.timeout", "100ms")
	v.SetDefault("reader.passiveRetries", 1)

	v.SetDefault("card.key", "FFFFFFFFFFFF")
	v.SetDefault("card.keySlot", wobridge.KeyA.String())
	v.SetDefault("card.block", int(wobridge.WorkOrderBlock))

	v.SetDefault("bridge.pollRate", float64(wobridge.DefaultPollRate))
	v.SetDefault("bridge.diagnostics", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.addr", "")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
}

// Validate checks every field that can be wrong independently of the
// hardware.
func (c *Config) Validate() error {
	var errs []error
	if c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Protocol.BufferSize < 2 {
		errs = append(errs, fmt.Errorf("protocol.bufferSize must be at least 2, got %d", c.Protocol.BufferSize))
	}
	if _, err := protocol.ParseTruncatePolicy(c.Protocol.Truncate); err != nil {
		errs = append(errs, fmt.Errorf("protocol.truncate: %w", err))
	}
	if _, err := wobridge.ParseUnknownCommandPolicy(c.Protocol.UnknownCommand); err != nil {
		errs = append(errs, fmt.Errorf("protocol.unknownCommand: %w", err))
	}
	switch c.Reader.Backend {
	case BackendPN532UART, BackendPN532I2C:
		if c.Reader.Path == "" {
			errs = append(errs, fmt.Errorf("reader.path is required for %s", c.Reader.Backend))
		}
	case BackendPCSC:
	default:
		errs = append(errs, fmt.Errorf("unknown reader.backend %q", c.Reader.Backend))
	}
	if c.Reader.PassiveRetries < 0 || c.Reader.PassiveRetries > 0xFE {
		errs = append(errs, fmt.Errorf("reader.passiveRetries must be 0-254, got %d", c.Reader.PassiveRetries))
	}
	if _, err := c.Session(); err != nil {
		errs = append(errs, err)
	}
	if c.Bridge.PollRate < 0 {
		errs = append(errs, fmt.Errorf("bridge.pollRate must not be negative, got %g", c.Bridge.PollRate))
	}
	return errors.Join(errs...)
}

// Session converts the card section to a session configuration.
func (c *Config) Session() (*wobridge.SessionConfig, error) {
	cfg := wobridge.DefaultSessionConfig()

	raw, err := hex.DecodeString(c.Card.Key)
	if err != nil || len(raw) != wobridge.KeySize {
		return nil, fmt.Errorf("card.key must be %d hex digits", 2*wobridge.KeySize)
	}
	copy(cfg.Key[:], raw)

	switch strings.ToUpper(c.Card.KeySlot) {
	case "A":
		cfg.KeySlot = wobridge.KeyA
	case "B":
		cfg.KeySlot = wobridge.KeyB
	default:
		return nil, fmt.Errorf("card.keySlot must be A or B, got %q", c.Card.KeySlot)
	}

	if c.Card.Block <= 0 || c.Card.Block > 0xFF || c.Card.Block%wobridge.SectorBlocks == wobridge.SectorBlocks-1 {
		return nil, fmt.Errorf("card.block %d is not a writable data block", c.Card.Block)
	}
	cfg.Block = uint8(c.Card.Block)
	return cfg, nil
}

// Assembler converts the protocol section.
func (c *Config) Assembler() (*protocol.AssemblerConfig, error) {
	policy, err := protocol.ParseTruncatePolicy(c.Protocol.Truncate)
	if err != nil {
		return nil, err
	}
	cfg := protocol.DefaultAssemblerConfig()
	cfg.BufferSize = c.Protocol.BufferSize
	cfg.Truncate = policy
	return cfg, nil
}

// Dispatcher converts the dispatch settings.
func (c *Config) Dispatcher() (*wobridge.DispatcherConfig, error) {
	policy, err := wobridge.ParseUnknownCommandPolicy(c.Protocol.UnknownCommand)
	if err != nil {
		return nil, err
	}
	return &wobridge.DispatcherConfig{
		Unknown:     policy,
		Diagnostics: c.Bridge.Diagnostics,
	}, nil
}

// Loop builds the bridge configuration. Logger and Observer are left for
// the caller.
func (c *Config) Loop() (*wobridge.BridgeConfig, error) {
	asm, err := c.Assembler()
	if err != nil {
		return nil, err
	}
	disp, err := c.Dispatcher()
	if err != nil {
		return nil, err
	}
	return &wobridge.BridgeConfig{
		Assembler:  asm,
		Dispatcher: disp,
		PollRate:   rate.Limit(c.Bridge.PollRate),
	}, nil
}

// SerialPort converts the host link section.
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		BaudRate:    c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}
