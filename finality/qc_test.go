// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antelopeio/savanna-finality/bls"
)

func twoVoterPolicy(t *testing.T, gen uint32, threshold uint64) (*FinalizerPolicy, []bls.PrivateKey) {
	t.Helper()
	sk1, pub1 := testKeyPair(t, 11)
	sk2, pub2 := testKeyPair(t, 12)
	policy := &FinalizerPolicy{
		Generation: gen,
		Finalizers: []FinalizerAuthority{
			{PublicKey: pub1, Weight: 1},
			{PublicKey: pub2, Weight: 1},
		},
		Threshold: threshold,
	}
	return policy, []bls.PrivateKey{sk1, sk2}
}

func TestAggregatingQC_StrongQuorumNoPending(t *testing.T) {
	digest := []byte("digest")
	policy, sks := twoVoterPolicy(t, 1, 2)
	qc := NewAggregatingQC(policy, nil)

	for i, sk := range sks {
		vote := Vote{BlockNum: 5, Strong: true, FinalizerKey: policy.Finalizers[i].PublicKey, Sig: sk.Sign(digest)}
		require.Equal(t, VoteSuccess, qc.AggregateVote(vote, digest))
	}
	require.True(t, qc.IsQuorumMet())

	best, ok := qc.GetBestQC(5)
	require.True(t, ok)
	require.Equal(t, uint32(5), best.BlockNum)
	require.Nil(t, best.PendingPolicySig)
	require.True(t, best.ActivePolicySig.IsStrong())
}

func TestAggregatingQC_UnknownKeyRejected(t *testing.T) {
	digest := []byte("digest")
	policy, _ := twoVoterPolicy(t, 1, 2)
	qc := NewAggregatingQC(policy, nil)

	strangerSK, strangerPub := testKeyPair(t, 99)
	vote := Vote{BlockNum: 1, Strong: true, FinalizerKey: strangerPub, Sig: strangerSK.Sign(digest)}
	require.Equal(t, VoteUnknownPublicKey, qc.AggregateVote(vote, digest))
}

func TestAggregatingQC_InvalidSignatureRejected(t *testing.T) {
	digest := []byte("digest")
	policy, sks := twoVoterPolicy(t, 1, 2)
	qc := NewAggregatingQC(policy, nil)

	badSig := sks[0].Sign([]byte("wrong digest"))
	vote := Vote{BlockNum: 1, Strong: true, FinalizerKey: policy.Finalizers[0].PublicKey, Sig: badSig}
	require.Equal(t, VoteInvalidSignature, qc.AggregateVote(vote, digest))
}

func TestAggregatingQC_DuplicateVoteRejected(t *testing.T) {
	digest := []byte("digest")
	policy, sks := twoVoterPolicy(t, 1, 2)
	qc := NewAggregatingQC(policy, nil)

	vote := Vote{BlockNum: 1, Strong: true, FinalizerKey: policy.Finalizers[0].PublicKey, Sig: sks[0].Sign(digest)}
	require.Equal(t, VoteSuccess, qc.AggregateVote(vote, digest))
	require.Equal(t, VoteDuplicate, qc.AggregateVote(vote, digest))
}

func TestAggregatingQC_VerifyQCRoundTrip(t *testing.T) {
	strongDigest := []byte("strong-digest")
	weakDigest := []byte("weak-digest")
	policy, sks := twoVoterPolicy(t, 1, 2)

	builder := NewAggregatingQC(policy, nil)
	for i, sk := range sks {
		vote := Vote{BlockNum: 9, Strong: true, FinalizerKey: policy.Finalizers[i].PublicKey, Sig: sk.Sign(strongDigest)}
		require.Equal(t, VoteSuccess, builder.AggregateVote(vote, strongDigest))
	}
	qcValue, ok := builder.GetBestQC(9)
	require.True(t, ok)

	verifier := NewAggregatingQC(policy, nil)
	require.NoError(t, verifier.VerifyQC(qcValue, strongDigest, weakDigest))
}

func TestAggregatingQC_VoteMetricsReportsLiveVsTotalAndWeight(t *testing.T) {
	digest := []byte("digest")
	policy, sks := twoVoterPolicy(t, 1, 3)
	qc := NewAggregatingQC(policy, nil)

	active, pending := qc.VoteMetrics()
	require.Nil(t, pending)
	require.Equal(t, 2, active.TotalFinalizers)
	require.Equal(t, 0, active.LiveFinalizers)
	require.Zero(t, active.StrongWeight)

	vote := Vote{BlockNum: 1, Strong: true, FinalizerKey: policy.Finalizers[0].PublicKey, Sig: sks[0].Sign(digest)}
	require.Equal(t, VoteSuccess, qc.AggregateVote(vote, digest))

	active, _ = qc.VoteMetrics()
	require.Equal(t, 1, active.LiveFinalizers)
	require.Equal(t, uint64(1), active.StrongWeight)
	require.False(t, qc.IsQuorumMet(), "threshold 3 with one weight-1 vote must not yet meet quorum")
}

func TestAggregatingQC_VerifyBasicRejectsWrongBitsetSize(t *testing.T) {
	policy, _ := twoVoterPolicy(t, 1, 2)
	qc := NewAggregatingQC(policy, nil)

	malformed := QC{BlockNum: 1, ActivePolicySig: QCSig{StrongVotes: newVotes(1).bitset}}
	require.Error(t, qc.VerifyBasic(malformed))
}
