// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/bls"
)

// Vote is an inbound vote_message: which block it targets, whether strong,
// the voter's key and signature.
type Vote struct {
	BlockNum     uint32
	Strong       bool
	FinalizerKey bls.PublicKey
	Sig          bls.Signature
}

// AggregatingQC is spec.md §4.3's aggregating_qc: a fixed-at-construction
// pair of an active-policy aggregator and an optional pending-policy
// aggregator, both attached to the same block.
type AggregatingQC struct {
	activePolicy    *FinalizerPolicy
	activePolicySig *AggregatingQCSig

	pendingPolicy    *FinalizerPolicy
	pendingPolicySig *AggregatingQCSig
}

// NewAggregatingQC builds the aggregator pair for a block given its active
// (required) and pending (optional) finalizer policies.
func NewAggregatingQC(active *FinalizerPolicy, pending *FinalizerPolicy) *AggregatingQC {
	qc := &AggregatingQC{
		activePolicy:    active,
		activePolicySig: NewAggregatingQCSig(len(active.Finalizers), active.Threshold, active.MaxWeakSumBeforeWeakFinal()),
	}
	if pending != nil {
		qc.pendingPolicy = pending
		qc.pendingPolicySig = NewAggregatingQCSig(len(pending.Finalizers), pending.Threshold, pending.MaxWeakSumBeforeWeakFinal())
	}
	return qc
}

// AggregateVote routes an inbound vote to the right aggregator(s) based on
// whether the voter appears in the active policy, the pending policy, or
// both, verifying the BLS signature exactly once (lazily), per spec.md §4.3.
func (qc *AggregatingQC) AggregateVote(vote Vote, digest []byte) VoteResult {
	verifiedSig := false
	verifySig := func() VoteResult {
		if verifiedSig {
			return VoteSuccess
		}
		if !vote.FinalizerKey.Verify(digest, vote.Sig) {
			logger.Warn("vote signature cannot be verified", "finalizerKey", vote.FinalizerKey.String())
			return VoteInvalidSignature
		}
		verifiedSig = true
		return VoteSuccess
	}

	addVote := func(policy *FinalizerPolicy, agg *AggregatingQCSig) VoteResult {
		idx := policy.IndexOf(vote.FinalizerKey)
		if idx < 0 {
			return VoteUnknownPublicKey
		}
		if agg.HasVotedStrength(vote.Strong, idx) {
			return VoteDuplicate
		}
		if r := verifySig(); r != VoteSuccess {
			return r
		}
		return agg.AddVote(vote.BlockNum, vote.Strong, idx, vote.Sig, policy.Finalizers[idx].Weight)
	}

	result := addVote(qc.activePolicy, qc.activePolicySig)
	if result != VoteSuccess && result != VoteUnknownPublicKey {
		return result
	}

	if qc.pendingPolicy != nil {
		pendingResult := addVote(qc.pendingPolicy, qc.pendingPolicySig)
		if pendingResult != VoteUnknownPublicKey {
			result = pendingResult
		}
	}

	if result != VoteUnknownPublicKey {
		return result
	}
	logger.Warn("finalizer key in vote is not in any finalizer policy", "finalizerKey", vote.FinalizerKey.String())
	return result
}

// HasVoted reports whether key has voted in the active or pending policy.
func (qc *AggregatingQC) HasVoted(key bls.PublicKey) bool {
	if idx := qc.activePolicy.IndexOf(key); idx >= 0 && qc.activePolicySig.HasVoted(idx) {
		return true
	}
	if qc.pendingPolicy != nil {
		if idx := qc.pendingPolicy.IndexOf(key); idx >= 0 && qc.pendingPolicySig.HasVoted(idx) {
			return true
		}
	}
	return false
}

// IsQuorumMet reports whether both the active aggregator (and the pending
// one, if any) have reached quorum.
func (qc *AggregatingQC) IsQuorumMet() bool {
	if !qc.activePolicySig.IsQuorumMet() {
		return false
	}
	return qc.pendingPolicySig == nil || qc.pendingPolicySig.IsQuorumMet()
}

// QC is an extracted quorum certificate attached as a block extension:
// {block_num, active_policy_sig, pending_policy_sig?}.
type QC struct {
	BlockNum         uint32
	ActivePolicySig  QCSig
	PendingPolicySig *QCSig
}

// GetBestQC returns the best available QC for this block, or false if the
// active aggregator, or the pending one when there is one, has no QC to
// offer (spec.md §4.3/§4.2).
func (qc *AggregatingQC) GetBestQC(blockNum uint32) (QC, bool) {
	activeBest, ok := qc.activePolicySig.GetBestQC()
	if !ok {
		return QC{}, false
	}
	if qc.pendingPolicySig != nil {
		pendingBest, ok := qc.pendingPolicySig.GetBestQC()
		if !ok {
			return QC{}, false
		}
		return QC{BlockNum: blockNum, ActivePolicySig: activeBest, PendingPolicySig: &pendingBest}, true
	}
	return QC{BlockNum: blockNum, ActivePolicySig: activeBest}, true
}

// SetReceivedQC records a QC received from the network on both aggregators.
func (qc *AggregatingQC) SetReceivedQC(received QC) error {
	if received.PendingPolicySig != nil && qc.pendingPolicySig == nil {
		return errors.Wrap(ErrInvalidQCClaim, "received qc carries a pending policy signature for a block with no pending policy")
	}
	if received.PendingPolicySig == nil && qc.pendingPolicySig != nil {
		return errors.Wrap(ErrInvalidQCClaim, "received qc is missing the pending policy signature required for this block")
	}
	qc.activePolicySig.SetReceivedQC(received.ActivePolicySig)
	if qc.pendingPolicySig != nil {
		qc.pendingPolicySig.SetReceivedQC(*received.PendingPolicySig)
	}
	return nil
}

// VerifyBasic checks structural shape: bitset sizes match policy sizes and
// the pending-signature presence matches whether a pending policy exists.
func (qc *AggregatingQC) VerifyBasic(received QC) error {
	if received.PendingPolicySig != nil && qc.pendingPolicy == nil {
		return errors.Wrap(ErrInvalidQCClaim, "qc contains pending policy signature for nonexistent pending finalizer policy")
	}
	if received.PendingPolicySig == nil && qc.pendingPolicy != nil {
		return errors.Wrap(ErrInvalidQCClaim, "qc does not contain pending policy signature for pending finalizer policy")
	}
	if err := verifyQCSigBasic(qc.activePolicy, received.ActivePolicySig); err != nil {
		return err
	}
	if qc.pendingPolicy != nil {
		if err := verifyQCSigBasic(qc.pendingPolicy, *received.PendingPolicySig); err != nil {
			return err
		}
	}
	return nil
}

func verifyQCSigBasic(policy *FinalizerPolicy, sig QCSig) error {
	if sig.StrongVotes == nil || sig.StrongVotes.Len() != uint(len(policy.Finalizers)) {
		return errors.Wrap(ErrInvalidQCClaim, "strong votes bitset size does not match finalizer policy size")
	}
	if sig.WeakVotes != nil && sig.WeakVotes.Len() != uint(len(policy.Finalizers)) {
		return errors.Wrap(ErrInvalidQCClaim, "weak votes bitset size does not match finalizer policy size")
	}

	var strongSum, weakSum uint64
	for i, f := range policy.Finalizers {
		if sig.StrongVotes.Test(uint(i)) {
			strongSum += f.Weight
		}
		if sig.WeakVotes != nil && sig.WeakVotes.Test(uint(i)) {
			weakSum += f.Weight
		}
	}

	if sig.IsStrong() {
		if strongSum < policy.Threshold {
			return errors.Wrap(ErrInvalidQCClaim, "strong qc does not meet threshold")
		}
	} else if strongSum+weakSum < policy.Threshold {
		return errors.Wrap(ErrInvalidQCClaim, "weak qc does not meet threshold")
	}
	return nil
}

// VerifySignatures aggregate-verifies the strong and (if present) weak
// signature sides against the policy's voters, using strongDigest and
// weakDigest respectively.
func (qc *AggregatingQC) VerifySignatures(received QC, strongDigest, weakDigest []byte) error {
	if err := verifyQCSigSignatures(qc.activePolicy, received.ActivePolicySig, strongDigest, weakDigest); err != nil {
		return err
	}
	if qc.pendingPolicy != nil {
		if err := verifyQCSigSignatures(qc.pendingPolicy, *received.PendingPolicySig, strongDigest, weakDigest); err != nil {
			return err
		}
	}
	return nil
}

func verifyQCSigSignatures(policy *FinalizerPolicy, sig QCSig, strongDigest, weakDigest []byte) error {
	var strongKeys []bls.PublicKey
	for i, f := range policy.Finalizers {
		if sig.StrongVotes.Test(uint(i)) {
			strongKeys = append(strongKeys, f.PublicKey)
		}
	}

	if sig.WeakVotes == nil {
		if len(strongKeys) > 0 && !bls.FastAggregateVerify(strongKeys, strongDigest, sig.Sig) {
			return errors.Wrap(ErrInvalidSignature, "qc signature validation failed")
		}
		return nil
	}

	var weakKeys []bls.PublicKey
	for i, f := range policy.Finalizers {
		if sig.WeakVotes.Test(uint(i)) {
			weakKeys = append(weakKeys, f.PublicKey)
		}
	}
	keys := append(append([]bls.PublicKey{}, strongKeys...), weakKeys...)
	digests := make([][]byte, 0, len(keys))
	for range strongKeys {
		digests = append(digests, strongDigest)
	}
	for range weakKeys {
		digests = append(digests, weakDigest)
	}
	if !bls.AggregateVerify(keys, digests, sig.Sig) {
		return errors.Wrap(ErrInvalidSignature, "qc signature validation failed")
	}
	return nil
}

// VerifyQC runs VerifyBasic then VerifySignatures, the full verify_qc of
// spec.md §4.3.
func (qc *AggregatingQC) VerifyQC(received QC, strongDigest, weakDigest []byte) error {
	if err := qc.VerifyBasic(received); err != nil {
		return err
	}
	return qc.VerifySignatures(received, strongDigest, weakDigest)
}

// Missing returns the finalizer authorities (active policy only, for
// simplicity) that have not yet voted in qc.
func (qc *AggregatingQC) Missing() []FinalizerAuthority {
	var missing []FinalizerAuthority
	for i, f := range qc.activePolicy.Finalizers {
		if !qc.activePolicySig.HasVoted(i) {
			missing = append(missing, f)
		}
	}
	return missing
}

// QCVoteMetrics is qc_vote_metrics_t: live vs total finalizer counts and the
// accumulated strong/weak vote weight for one policy side of an in-progress
// AggregatingQC.
type QCVoteMetrics struct {
	TotalFinalizers int
	LiveFinalizers  int
	StrongWeight    uint64
	WeakWeight      uint64
}

// VoteMetrics is open_qc_t::vote_metrics: a diagnostic view over qc's active
// (and, when present, pending) aggregator reporting how many of the
// configured finalizers have voted so far and the weight accumulated on
// each side, independent of whether quorum has been reached yet.
func (qc *AggregatingQC) VoteMetrics() (active QCVoteMetrics, pending *QCVoteMetrics) {
	active = QCVoteMetrics{
		TotalFinalizers: len(qc.activePolicy.Finalizers),
		LiveFinalizers:  len(qc.activePolicy.Finalizers) - len(qc.Missing()),
		StrongWeight:    qc.activePolicySig.StrongSum(),
		WeakWeight:      qc.activePolicySig.WeakSum(),
	}
	if qc.pendingPolicy == nil {
		return active, nil
	}

	missing := 0
	for i := range qc.pendingPolicy.Finalizers {
		if !qc.pendingPolicySig.HasVoted(i) {
			missing++
		}
	}
	p := QCVoteMetrics{
		TotalFinalizers: len(qc.pendingPolicy.Finalizers),
		LiveFinalizers:  len(qc.pendingPolicy.Finalizers) - missing,
		StrongWeight:    qc.pendingPolicySig.StrongSum(),
		WeakWeight:      qc.pendingPolicySig.WeakSum(),
	}
	return active, &p
}
