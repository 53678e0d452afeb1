// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/thor"
)

func genesisHeader(t *testing.T) *block.Header {
	t.Helper()
	return block.NewHeader(thor.Bytes32{}, 0, 100, thor.Bytes32{1}, thor.Bytes32{2})
}

func childHeader(t *testing.T, parent *block.Header, n uint32, ts thor.BlockTimestamp, claim block.QCClaim) *block.Header {
	t.Helper()
	var content thor.Bytes32
	content[4] = byte(n)
	h := block.NewHeader(parent.ID(), n, ts, thor.Bytes32{byte(n)}, content)
	h.Finality = &block.FinalityExtension{QCClaim: claim}
	return h
}

func buildPolicy(t *testing.T, gen uint32, threshold uint64, seeds ...byte) *FinalizerPolicy {
	t.Helper()
	policy := &FinalizerPolicy{Generation: gen, Threshold: threshold}
	for _, s := range seeds {
		_, pub := testKeyPair(t, s)
		policy.Finalizers = append(policy.Finalizers, FinalizerAuthority{PublicKey: pub, Weight: 1})
	}
	return policy
}

func TestNewGenesisBlockState_SeedsOneLeafTree(t *testing.T) {
	header := genesisHeader(t)
	policy := buildPolicy(t, 1, 2, 1, 2)

	bs := NewGenesisBlockState(header, policy, nil)
	require.Equal(t, header.ID(), bs.ID())
	require.Equal(t, header.Timestamp, bs.Timestamp())
	require.Equal(t, uint32(0), bs.Core().CurrentBlockNum())
	require.Equal(t, 1, int(bs.validTree.Len()))
	require.False(t, bs.StrongDigest().IsZero())
	require.NotEqual(t, bs.StrongDigest(), bs.WeakDigest())
}

func TestNewBlockState_RejectsWrongParent(t *testing.T) {
	header := genesisHeader(t)
	policy := buildPolicy(t, 1, 2, 1, 2)
	genesis := NewGenesisBlockState(header, policy, nil)

	unrelatedParentID := thor.Bytes32{0xFF}
	bad := block.NewHeader(unrelatedParentID, 1, 110, thor.Bytes32{9}, thor.Bytes32{9})
	_, err := NewBlockState(genesis, bad, policy, nil)
	require.Error(t, err)
}

func TestNewBlockState_ExtendsFinalityCoreAndDigestChain(t *testing.T) {
	header := genesisHeader(t)
	policy := buildPolicy(t, 1, 2, 1, 2)
	genesis := NewGenesisBlockState(header, policy, nil)

	h1 := childHeader(t, header, 1, 110, block.QCClaim{})
	bs1, err := NewBlockState(genesis, h1, policy, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(1), bs1.Core().CurrentBlockNum())
	require.Equal(t, 2, bs1.validTree.Len())

	// Digest chaining: bs1's finality digest must depend on the genesis
	// digest, not just on h1's own content.
	aloneDigest := computeFinalityDigest(thor.Bytes32{}, h1)
	require.NotEqual(t, aloneDigest, bs1.StrongDigest())
}

func TestBlockState_AggregateVoteReachesQuorumAndExtractsClaim(t *testing.T) {
	header := genesisHeader(t)
	sk1, pub1 := testKeyPair(t, 1)
	sk2, pub2 := testKeyPair(t, 2)
	policy := &FinalizerPolicy{
		Generation: 1,
		Threshold:  2,
		Finalizers: []FinalizerAuthority{
			{PublicKey: pub1, Weight: 1},
			{PublicKey: pub2, Weight: 1},
		},
	}
	genesis := NewGenesisBlockState(header, policy, nil)

	digest := genesis.StrongDigest()
	v1 := Vote{BlockNum: 0, Strong: true, FinalizerKey: pub1, Sig: sk1.Sign(digest[:])}
	v2 := Vote{BlockNum: 0, Strong: true, FinalizerKey: pub2, Sig: sk2.Sign(digest[:])}

	require.Equal(t, VoteSuccess, genesis.AggregateVote(v1))
	require.False(t, genesis.IsQuorumMet())
	require.True(t, genesis.HasVoted(pub1))

	require.Equal(t, VoteSuccess, genesis.AggregateVote(v2))
	require.True(t, genesis.IsQuorumMet())

	claim, ok := genesis.ExtractQCClaim()
	require.True(t, ok)
	require.Equal(t, uint32(0), claim.BlockNum)
	require.True(t, claim.IsStrongQC)

	qc, ok := genesis.GetBestQC()
	require.True(t, ok)
	require.NoError(t, genesis.VerifyQC(qc))
}
