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

// Package pn532 drives a PN532 NFC controller as a [wobridge.Card].
//
// The PN532 runs anticollision itself, so a card is activated with
// InListPassiveTarget. Wake-up requests and HLTA are sent raw with
// InCommunicateThru, and leaving the Crypto1 session clears MFCrypto1On in
// the CIU_Status2 register.
package pn532

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-wobridge"
	"go.uber.org/zap"
)

// FirmwareVersion is the answer to GetFirmwareVersion.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// DeviceConfig configures a Device.
type DeviceConfig struct {
	Logger *zap.Logger
	// PassiveRetries is MxRtyPassiveActivation: how often InListPassiveTarget
	// retries before reporting an empty field. 0xFF retries forever, which
	// would stall the idle loop.
	PassiveRetries byte
}

// DefaultDeviceConfig returns the configuration used by New(t, nil).
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		PassiveRetries: 0x01,
	}
}

// Device is a PN532 reader. It is not safe for concurrent use.
type Device struct {
	transport Transport
	log       *zap.Logger
	cfg       DeviceConfig
	uid       wobridge.UID
	target    byte // logical target number, 0 when nothing is listed
	crypto    bool // an authentication may have left Crypto1 running
}

var _ wobridge.Card = (*Device)(nil)

// New returns a Device on t. Call Init before use.
func New(t Transport, cfg *DeviceConfig) *Device {
	if cfg == nil {
		cfg = DefaultDeviceConfig()
	}
	return &Device{
		transport: t,
		cfg:       *cfg,
		log:       wobridge.Logger().Named("pn532"),
	}
}

func (d *Device) logger() *zap.Logger {
	if d.cfg.Logger != nil {
		return d.cfg.Logger
	}
	return d.log
}

// Init configures the SAM for normal mode, checks the firmware and limits
// passive activation retries.
func (d *Device) Init(ctx context.Context) error {
	if _, err := d.command(ctx, cmdSAMConfiguration, 0x01, 0x14, 0x01); err != nil {
		return fmt.Errorf("SAM configuration: %w", err)
	}
	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	// MaxRetries: ATR_REQ, PSL_REQ, passive activation
	if _, err := d.command(ctx, cmdRFConfiguration, 0x05, 0xFF, 0x01, d.cfg.PassiveRetries); err != nil {
		return fmt.Errorf("RF configuration: %w", err)
	}
	d.logger().Info("PN532 ready", zap.Stringer("firmware", fw))
	return nil
}

// FirmwareVersion queries the controller.
func (d *Device) FirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	resp, err := d.command(ctx, cmdGetFirmwareVersion)
	if err != nil {
		return FirmwareVersion{}, fmt.Errorf("get firmware version: %w", err)
	}
	if len(resp) < 4 {
		return FirmwareVersion{}, fmt.Errorf("%w: firmware version too short (%d bytes)", ErrUnexpectedResponse, len(resp))
	}
	return FirmwareVersion{IC: resp[0], Version: resp[1], Revision: resp[2], Support: resp[3]}, nil
}

// Close closes the transport.
func (d *Device) Close() error {
	return d.transport.Close()
}

// IsNewCardPresent lists one 106 kbps type A target. The PN532 only sends
// REQA, so halted cards stay silent.
func (d *Device) IsNewCardPresent(ctx context.Context) bool {
	found, err := d.listTarget(ctx, nil)
	if err != nil {
		wobridge.Debugf("pn532: list passive target: %v", err)
		return false
	}
	return found
}

// ReadCardSerial selects the target listed by IsNewCardPresent. The PN532
// has already run anticollision, so the UID is known.
func (d *Device) ReadCardSerial(ctx context.Context) bool {
	if d.target == 0 {
		return false
	}
	if _, err := d.statusCommand(ctx, cmdInSelect, d.target); err != nil {
		wobridge.Debugf("pn532: select target %d: %v", d.target, err)
		return false
	}
	return true
}

// Wakeup sends WUPA as a 7-bit short frame with CRC disabled and returns
// the ATQA.
func (d *Device) Wakeup(ctx context.Context) (atqa []byte, err error) {
	err = d.writeRegisters(ctx,
		register{regTxMode, 0x00},
		register{regRxMode, 0x00},
		register{regBitFraming, shortFrameBits},
	)
	if err != nil {
		return nil, fmt.Errorf("prepare short frame: %w", err)
	}
	defer func() {
		rerr := d.writeRegisters(context.WithoutCancel(ctx),
			register{regBitFraming, 0x00},
			register{regTxMode, crcEnable},
			register{regRxMode, crcEnable},
		)
		if rerr != nil && err == nil {
			atqa, err = nil, fmt.Errorf("restore framing: %w", rerr)
		}
	}()

	resp, err := d.statusCommand(ctx, cmdInCommunicateThru, piccWUPA)
	if err != nil {
		return nil, fmt.Errorf("WUPA: %w", err)
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("WUPA: %w: ATQA of %d bytes", ErrUnexpectedResponse, len(resp))
	}
	return resp[:2], nil
}

// Select activates the woken card with the given UID. The UID is passed as
// initiator data so only that card answers; an empty UID takes any card.
func (d *Device) Select(ctx context.Context, uid wobridge.UID) error {
	found, err := d.listTarget(ctx, uid)
	if err != nil {
		return fmt.Errorf("select %s: %w", uid, err)
	}
	if !found {
		return fmt.Errorf("select %s: %w", uid, wobridge.StatusTimeout)
	}
	return nil
}

// UID returns the UID of the last listed card.
func (d *Device) UID() wobridge.UID {
	return append(wobridge.UID(nil), d.uid...)
}

// Authenticate runs MIFARE authentication through InDataExchange. The
// PN532 expects the last four UID bytes for 7-byte UIDs.
func (d *Device) Authenticate(
	ctx context.Context, slot wobridge.KeySlot, block uint8, key wobridge.Key, uid wobridge.UID,
) error {
	if len(uid) < 4 {
		return fmt.Errorf("authenticate: UID of %d bytes: %w", len(uid), wobridge.StatusInvalid)
	}
	args := make([]byte, 0, 13)
	args = append(args, d.target, piccAuthKeyA+byte(slot), block)
	args = append(args, key[:]...)
	args = append(args, uid[len(uid)-4:]...)

	d.crypto = true
	if _, err := d.statusCommand(ctx, cmdInDataExchange, args...); err != nil {
		return fmt.Errorf("authenticate block %d: %w", block, err)
	}
	return nil
}

// ReadBlock reads one block. The PN532 checks and strips the CRC, so the
// last two bytes are zero.
func (d *Device) ReadBlock(ctx context.Context, block uint8) ([]byte, error) {
	resp, err := d.statusCommand(ctx, cmdInDataExchange, d.target, piccRead, block)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if len(resp) < wobridge.BlockSize {
		return nil, fmt.Errorf("read block %d: %d bytes: %w", block, len(resp), wobridge.StatusNoRoom)
	}
	buf := make([]byte, wobridge.ReadBufferSize)
	copy(buf, resp[:wobridge.BlockSize])
	return buf, nil
}

// WriteBlock writes one 16-byte block.
func (d *Device) WriteBlock(ctx context.Context, block uint8, data []byte) error {
	if len(data) != wobridge.BlockSize {
		return fmt.Errorf("write block %d: %d bytes: %w", block, len(data), wobridge.StatusInvalid)
	}
	args := make([]byte, 0, 3+wobridge.BlockSize)
	args = append(args, d.target, piccWrite, block)
	args = append(args, data...)
	if _, err := d.statusCommand(ctx, cmdInDataExchange, args...); err != nil {
		return fmt.Errorf("write block %d: %w", block, err)
	}
	return nil
}

// Halt sends HLTA and releases the target. A card never answers HLTA, so
// the PN532 timeout is the expected outcome.
func (d *Device) Halt(ctx context.Context) error {
	if d.target == 0 {
		return nil
	}
	_, err := d.statusCommand(ctx, cmdInCommunicateThru, piccHLTA, 0x00)
	var perr *PN532Error
	if err != nil && !(errors.As(err, &perr) && perr.IsTimeout()) {
		return fmt.Errorf("HLTA: %w", err)
	}
	if _, err := d.statusCommand(ctx, cmdInRelease, 0x00); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	d.target = 0
	return nil
}

// StopCrypto clears MFCrypto1On so the next command runs in clear.
func (d *Device) StopCrypto(ctx context.Context) error {
	if !d.crypto {
		return nil
	}
	hi, lo := regBytes(regCIUStatus2)
	resp, err := d.command(ctx, cmdReadRegister, hi, lo)
	if err != nil {
		return fmt.Errorf("read CIU_Status2: %w", err)
	}
	if len(resp) < 1 {
		return fmt.Errorf("read CIU_Status2: %w", ErrUnexpectedResponse)
	}
	if err := d.writeRegisters(ctx, register{regCIUStatus2, resp[0] &^ bitMFCrypto1On}); err != nil {
		return fmt.Errorf("clear MFCrypto1On: %w", err)
	}
	d.crypto = false
	return nil
}

// listTarget runs InListPassiveTarget for one type A target and records
// its logical number and UID.
func (d *Device) listTarget(ctx context.Context, uid wobridge.UID) (bool, error) {
	args := append([]byte{0x01, brTy106kTypeA}, uid...)
	resp, err := d.command(ctx, cmdInListPassiveTarget, args...)
	if err != nil {
		return false, err
	}
	if len(resp) == 0 || resp[0] == 0 {
		return false, nil
	}
	// NbTg, Tg, SENS_RES(2), SEL_RES, NFCIDLength, NFCID1
	if len(resp) < 6 || len(resp) < 6+int(resp[5]) {
		return false, fmt.Errorf("%w: target data of %d bytes", ErrUnexpectedResponse, len(resp))
	}
	d.target = resp[1]
	d.uid = append(wobridge.UID(nil), resp[6:6+int(resp[5])]...)
	return true, nil
}

type register struct {
	addr uint16
	val  byte
}

// regBytes splits a register address into the big-endian pair the
// register commands take.
func regBytes(addr uint16) (hi, lo byte) {
	return byte(addr >> 8), byte(addr & 0xFF)
}

func (d *Device) writeRegisters(ctx context.Context, regs ...register) error {
	args := make([]byte, 0, len(regs)*3)
	for _, r := range regs {
		hi, lo := regBytes(r.addr)
		args = append(args, hi, lo, r.val)
	}
	_, err := d.command(ctx, cmdWriteRegister, args...)
	return err
}

// command sends cmd and returns the response data after the response code.
func (d *Device) command(ctx context.Context, cmd byte, args ...byte) ([]byte, error) {
	resp, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, err
	}
	if len(resp) == 1 && resp[0] == errorFrameTFI {
		return nil, fmt.Errorf("%s: %w: %w", commandName(cmd), ErrErrorFrame, wobridge.StatusInvalid)
	}
	if len(resp) == 0 || resp[0] != cmd+1 {
		return nil, fmt.Errorf("%s: %w", commandName(cmd), ErrUnexpectedResponse)
	}
	return resp[1:], nil
}

// statusCommand is command for responses that start with a status byte.
func (d *Device) statusCommand(ctx context.Context, cmd byte, args ...byte) ([]byte, error) {
	resp, err := d.command(ctx, cmd, args...)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%s: %w: missing status", commandName(cmd), ErrUnexpectedResponse)
	}
	if code := resp[0] & statusMask; code != 0 {
		return nil, &PN532Error{Command: commandName(cmd), Code: code}
	}
	return resp[1:], nil
}
