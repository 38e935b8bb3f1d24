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

// Package duroerr defines the error taxonomy surfaced at the core's
// boundary. Each taxonomy member is a named error kind in the
// style of gopkg.in/src-d/go-errors.v1, so callers can match on kind
// rather than on message text.
package duroerr

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	ErrNoRunningTx = goerrors.NewKind("no running transaction")
	ErrInvalidArgument = goerrors.NewKind("invalid argument: %s")
	ErrTypeMismatch = goerrors.NewKind("type mismatch: %s")
	ErrName = goerrors.NewKind("name not found: %s")
	ErrNotFound = goerrors.NewKind("not found")
	ErrKeyViolation = goerrors.NewKind("key violation")
	ErrElementExists = goerrors.NewKind("element already exists: %s")
	ErrPredicateViolation = goerrors.NewKind("predicate violation: %s")
	ErrTypeConstraintViolation = goerrors.NewKind("type constraint violation: %s")
	ErrAggregateUndefined = goerrors.NewKind("aggregate undefined")
	ErrOperatorNotFound = goerrors.NewKind("operator not found: %s")
	ErrConcurrency = goerrors.NewKind("concurrent update conflict")
	ErrNotSupported = goerrors.NewKind("not supported: %s")
	ErrInternal = goerrors.NewKind("internal error: %s")
	ErrDataCorrupted = goerrors.NewKind("data corrupted: %s")
	ErrSystem = goerrors.NewKind("system error: %s")
	ErrNoMemory = goerrors.NewKind("out of memory")
)

// concurrencyErr wraps an ErrConcurrency kind error with a retryable
// flag, since the core must distinguish transient backend conflicts
// from permanent ones.
type concurrencyErr struct {
	err       error
	retryable bool
}

func (e *concurrencyErr) Error() string { return e.err.Error() }

// Cause exposes the wrapped kind error so ErrConcurrency.Is matches
// through the wrapper.
func (e *concurrencyErr) Cause() error  { return e.err }
func (e *concurrencyErr) Unwrap() error { return e.err }

// NewConcurrency builds a CONCURRENCY error carrying a retryable flag.
func NewConcurrency(retryable bool, cause error) error {
	var kerr error
	if cause == nil {
		kerr = ErrConcurrency.New()
	} else {
		kerr = ErrConcurrency.Wrap(cause)
	}
	return &concurrencyErr{err: kerr, retryable: retryable}
}

// IsConcurrency reports whether err is a CONCURRENCY error, with or
// without the retryable wrapper.
func IsConcurrency(err error) bool {
	for err != nil {
		if c, ok := err.(*concurrencyErr); ok {
			err = c.err
			continue
		}
		return ErrConcurrency.Is(err)
	}
	return false
}

// Retryable reports whether err is a CONCURRENCY error the caller may
// safely retry.
func Retryable(err error) bool {
	for err != nil {
		if c, ok := err.(*concurrencyErr); ok {
			return c.retryable
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsNotFound reports whether err signals end-of-sequence / absent key
// (the NOT_FOUND control-flow sentinel), as distinct from an actual
// error.
func IsNotFound(err error) bool {
	return ErrNotFound.Is(err)
}
