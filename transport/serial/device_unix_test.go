//go:build unix

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

package serial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDevice(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkDevice("/dev/null"))

	regular := filepath.Join(t.TempDir(), "not-a-tty")
	require.NoError(t, os.WriteFile(regular, nil, 0o600))
	assert.ErrorIs(t, checkDevice(regular), ErrNotCharDevice)

	_, err := Open(regular, nil)
	assert.ErrorIs(t, err, ErrNotCharDevice)

	assert.Error(t, checkDevice(filepath.Join(t.TempDir(), "missing")))
}
