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
)

// Session errors. Each aborts the current card operation only.
var (
	// ErrNoCard is expected and frequent: nothing answered a request or a
	// wake-up.
	ErrNoCard = errors.New("no card present")

	// Card errors - the card was seen but an operation failed
	ErrWakeSelect   = errors.New("select after wake-up failed")
	ErrSelect       = errors.New("card select failed")
	ErrAuth         = errors.New("authentication failed")
	ErrRead         = errors.New("block read failed")
	ErrWrite        = errors.New("block write failed")
	ErrPartialWrite = errors.New("partial write: earlier blocks already written")

	// Data errors - rejected before touching the card
	ErrInvalidData    = errors.New("invalid block data")
	ErrProtectedBlock = errors.New("block is not writable")
)

// Session operations
const (
	OpRead  = "read"
	OpWrite = "write"
)

// SessionError describes a failed card operation.
type SessionError struct {
	Kind    error  // One of the session sentinel errors
	Err     error  // Underlying card primitive error, may be nil
	Op      string // OpRead or OpWrite
	ID      string // Session correlation id
	Block   int    // Block involved, -1 when not block specific
	Partial bool   // Earlier blocks of a multi-block write succeeded
}

func (e *SessionError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Block >= 0 {
		msg += fmt.Sprintf(" (block %d)", e.Block)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Partial {
		msg += " [" + ErrPartialWrite.Error() + "]"
	}
	return msg
}

func (e *SessionError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Partial {
		errs = append(errs, ErrPartialWrite)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Status returns the card status behind the failure.
func (e *SessionError) Status() Status {
	return StatusOf(e.Err)
}

// IsNoCard reports whether err means no card was on the reader.
func IsNoCard(err error) bool {
	return errors.Is(err, ErrNoCard)
}

// IsPartialWrite reports whether err left some blocks written.
func IsPartialWrite(err error) bool {
	return errors.Is(err, ErrPartialWrite)
}
