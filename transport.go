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
	"fmt"
	"io"
)

// Transport is the host serial link.
//
// Buffered must not block: it reports how many bytes ReadByte can return
// immediately. The idle loop only reads what is already buffered, so a
// quiet line never stalls the card quiesce at the end of an iteration.
type Transport interface {
	io.ByteReader
	io.ByteWriter
	Buffered() int
}

// writeBytes emits data one byte at a time, the unit the link accepts.
func writeBytes(w io.ByteWriter, data []byte) error {
	for i, b := range data {
		if err := w.WriteByte(b); err != nil {
			return fmt.Errorf("write byte %d of %d: %w", i+1, len(data), err)
		}
	}
	return nil
}
