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

// Package rdbtx defines the transaction contract required
// of a backend: begin, commit, rollback, with nestable subtransactions.
package rdbtx

import (
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// Tx is a backend transaction handle. Implementations are MemTx in this
// package (used with recmap/tree, which needs no real transaction
// machinery) and recmap/kvstore's Tx (wraps *bolt.Tx).
type Tx interface {
	ID() string
	Parent() Tx
	Commit() error
	Rollback() error
	// Retryable is set by the backend when a commit/operation failed
	// with a conflict the caller may retry.
	Retryable() bool
}

// Manager begins transactions and subtransactions for one backend.
type Manager interface {
	Begin(parent Tx) (Tx, error)
}

// baseTx is embedded by backend Tx implementations to provide the
// bookkeeping common to all of them: a parent pointer (nil at
// top-level), deferred resource cleanups run on commit, and a
// retryable flag the backend sets on conflict.
type baseTx struct {
	id        string
	parent    Tx
	retryable bool
	deferred  []func() error
}

func newBaseTx(parent Tx) baseTx {
	return baseTx{id: uuid.NewV4().String(), parent: parent}
}

func (b *baseTx) ID() string      { return b.id }
func (b *baseTx) Parent() Tx      { return b.parent }
func (b *baseTx) Retryable() bool { return b.retryable }
func (b *baseTx) setRetryable()   { b.retryable = true }

// Defer registers a resource to be closed on commit.
func (b *baseTx) Defer(f func() error) { b.deferred = append(b.deferred, f) }

func (b *baseTx) runDeferred(log *logrus.Entry) {
	for _, f := range b.deferred {
		if err := f(); err != nil && log != nil {
			log.WithError(err).Warn("deferred resource close failed")
		}
	}
}

// MemTx is the transaction handle used by the tree backend: a bookkeeping
// object with no underlying storage transaction, since the in-memory
// AVL tree needs no commit protocol of its own.
type MemTx struct {
	baseTx
	log       *logrus.Entry
	committed bool
}

var memLog = logrus.WithField("component", "rdbtx.mem")

func NewMemManager() Manager { return memManager{} }

type memManager struct{}

func (memManager) Begin(parent Tx) (Tx, error) {
	t := &MemTx{baseTx: newBaseTx(parent), log: memLog}
	t.log.WithField("tx", t.id).Debug("begin")
	return t, nil
}

func (t *MemTx) Commit() error {
	t.committed = true
	t.runDeferred(t.log)
	t.log.WithField("tx", t.id).Debug("commit")
	return nil
}

func (t *MemTx) Rollback() error {
	t.log.WithField("tx", t.id).Debug("rollback")
	return nil
}

// MarkRetryable is used by tree-backend callers (e.g. a future clustered
// variant) to surface a retryable conflict; unused by the stock AVL
// backend, which never conflicts with itself.
func (t *MemTx) MarkRetryable() { t.setRetryable() }
