// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antelopeio/savanna-finality/thor"
)

func TestPendingVoteCache_BufferAndTake(t *testing.T) {
	c := NewPendingVoteCache(4)
	blockID := thor.Bytes32{1}

	require.Nil(t, c.Take(blockID))

	_, pub1 := testKeyPair(t, 1)
	_, pub2 := testKeyPair(t, 2)
	c.Buffer(blockID, 5, Vote{BlockNum: 5, FinalizerKey: pub1})
	c.Buffer(blockID, 5, Vote{BlockNum: 5, FinalizerKey: pub2})
	require.Equal(t, 1, c.Len())

	votes := c.Take(blockID)
	require.Len(t, votes, 2)
	require.Nil(t, c.Take(blockID), "Take must drain the buffered votes")
}

func TestPendingVoteCache_EvictsLowestBlockNumWhenFull(t *testing.T) {
	c := NewPendingVoteCache(2)
	_, pub := testKeyPair(t, 1)

	c.Buffer(thor.Bytes32{1}, 1, Vote{BlockNum: 1, FinalizerKey: pub})
	c.Buffer(thor.Bytes32{2}, 2, Vote{BlockNum: 2, FinalizerKey: pub})
	require.Equal(t, 2, c.Len())

	// A third, higher block number evicts the lowest-numbered entry.
	c.Buffer(thor.Bytes32{3}, 3, Vote{BlockNum: 3, FinalizerKey: pub})
	require.Equal(t, 2, c.Len())
	require.Nil(t, c.Take(thor.Bytes32{1}))
	require.NotNil(t, c.Take(thor.Bytes32{2}))
	require.NotNil(t, c.Take(thor.Bytes32{3}))
}
