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

package rdbtx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemManagerBeginAssignsFreshIDsAndNilParent(t *testing.T) {
	mgr := NewMemManager()
	tx1, err := mgr.Begin(nil)
	require.NoError(t, err)
	assert.Nil(t, tx1.Parent())
	assert.NotEmpty(t, tx1.ID())

	tx2, err := mgr.Begin(nil)
	require.NoError(t, err)
	assert.NotEqual(t, tx1.ID(), tx2.ID())
}

// TestMemManagerNestedSubtransaction exercises the nestable
// subtransaction scope: a child begun with a parent handle reports that
// parent back.
func TestMemManagerNestedSubtransaction(t *testing.T) {
	mgr := NewMemManager()
	parent, err := mgr.Begin(nil)
	require.NoError(t, err)

	child, err := mgr.Begin(parent)
	require.NoError(t, err)
	assert.Equal(t, parent, child.Parent())
}

func TestMemTxCommitRunsDeferredResources(t *testing.T) {
	mgr := NewMemManager()
	tx, err := mgr.Begin(nil)
	require.NoError(t, err)
	mt := tx.(*MemTx)

	ran := false
	mt.Defer(func() error {
			ran = true
			return nil
		})
	require.NoError(t, mt.Commit())
	assert.True(t, ran)
}

func TestMemTxMarkRetryable(t *testing.T) {
	mgr := NewMemManager()
	tx, err := mgr.Begin(nil)
	require.NoError(t, err)
	mt := tx.(*MemTx)

	assert.False(t, mt.Retryable())
	mt.MarkRetryable()
	assert.True(t, mt.Retryable())
}
