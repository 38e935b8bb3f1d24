// Copyright 2024 Rene Hartmann.
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

package duroerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindIsDoesNotMatchStringWrappedErrors(t *testing.T) {
	err := ErrKeyViolation.New()
	assert.True(t, ErrKeyViolation.Is(err))
	assert.False(t, ErrNotFound.Is(err))

	wrapped := errors.New("wrapping: " + err.Error())
	assert.False(t, ErrKeyViolation.Is(wrapped))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound.New()))
	assert.False(t, IsNotFound(ErrKeyViolation.New()))
	assert.False(t, IsNotFound(nil))
}

func TestNewConcurrencyDefaultsCauseAndTracksRetryable(t *testing.T) {
	err := NewConcurrency(true, nil)
	assert.True(t, IsConcurrency(err))
	assert.True(t, Retryable(err))

	err2 := NewConcurrency(false, errors.New("backend busy"))
	assert.True(t, IsConcurrency(err2))
	assert.False(t, Retryable(err2))
}

func TestRetryableFalseForUnrelatedErrors(t *testing.T) {
	assert.False(t, Retryable(ErrKeyViolation.New()))
	assert.False(t, Retryable(nil))
}

func TestRetryableSeesThroughWrapping(t *testing.T) {
	inner := NewConcurrency(true, nil)
	outer := wrapErr{inner}
	assert.True(t, Retryable(outer))
}

type wrapErr struct{ err error }

func (w wrapErr) Error() string { return w.err.Error() }
func (w wrapErr) Unwrap() error { return w.err }
