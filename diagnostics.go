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

package wobridge

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Diagnostic levels
const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// markerReplacer keeps diagnostic text from ever looking like a packet.
var markerReplacer = strings.NewReplacer("<", "(", ">", ")")

// Diagnostics writes human-readable status lines to the host link. Lines
// are never framed, so a host that only parses packets skips them.
type Diagnostics struct {
	out     io.ByteWriter
	enabled bool
}

// NewDiagnostics returns a writer for out. When enabled is false every
// call is a no-op.
func NewDiagnostics(out io.ByteWriter, enabled bool) *Diagnostics {
	return &Diagnostics{out: out, enabled: enabled}
}

// FormatLine renders one diagnostic line: "[LEVEL] text\r\n".
func FormatLine(level, text string) []byte {
	return []byte("[" + level + "] " + markerReplacer.Replace(text) + "\r\n")
}

// Printf writes one line at level.
func (d *Diagnostics) Printf(level, format string, args ...any) error {
	if d == nil || !d.enabled {
		return nil
	}
	return writeBytes(d.out, FormatLine(level, fmt.Sprintf(format, args...)))
}

// Report describes a failed card operation.
func (d *Diagnostics) Report(err error) error {
	if err == nil {
		return nil
	}
	level, text := describe(err)
	return d.Printf(level, "%s", text)
}

func describe(err error) (level, text string) {
	var se *SessionError
	if !errors.As(err, &se) {
		return LevelError, err.Error()
	}

	switch {
	case errors.Is(se.Kind, ErrNoCard):
		return LevelInfo, se.Op + " requested but no working card present"
	case errors.Is(se.Kind, ErrSelect):
		return LevelInfo, se.Op + ": " + ErrSelect.Error()
	}

	var b strings.Builder
	b.WriteString(se.Op)
	b.WriteString(": ")
	b.WriteString(se.Kind.Error())
	if se.Block >= 0 {
		fmt.Fprintf(&b, " (block %d)", se.Block)
	}
	fmt.Fprintf(&b, ", status = %s", se.Status())
	if se.Partial {
		b.WriteString(", earlier blocks already written")
	}
	return LevelError, b.String()
}
