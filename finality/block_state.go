// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/bls"
	"github.com/antelopeio/savanna-finality/thor"
)

// BlockState is the finality bookkeeping attached to one block: its finality
// core, valid tree, and in-flight quorum-certificate aggregator. It is the
// concrete BlockStateView a running node hands to Finalizer.DecideVote, and
// the unit the chain package's fork database stores one of per block.
type BlockState struct {
	header *block.Header
	core   Core
	ref    block.Ref

	activePolicy  *FinalizerPolicy
	pendingPolicy *FinalizerPolicy
	qc            *AggregatingQC

	validTree      ValidTree
	finalityDigest thor.Bytes32
}

// ID returns the block's identity hash, satisfying BlockStateView.
func (bs *BlockState) ID() thor.Bytes32 { return bs.header.ID() }

// Timestamp returns the block's timestamp, satisfying BlockStateView.
func (bs *BlockState) Timestamp() thor.BlockTimestamp { return bs.header.Timestamp }

// Core returns the block's finality core, satisfying BlockStateView.
func (bs *BlockState) Core() Core { return bs.core }

// Header returns the underlying block header.
func (bs *BlockState) Header() *block.Header { return bs.header }

// ActivePolicy and PendingPolicy return the finalizer policies in force at
// this block, so callers verifying a QC carried on an earlier block can find
// the policy that was active then by walking the chain of BlockStates.
func (bs *BlockState) ActivePolicy() *FinalizerPolicy  { return bs.activePolicy }
func (bs *BlockState) PendingPolicy() *FinalizerPolicy { return bs.pendingPolicy }

// StrongDigest is the digest finalizers sign for a strong vote on this
// block: the finality digest computed when this BlockState was built.
func (bs *BlockState) StrongDigest() thor.Bytes32 { return bs.finalityDigest }

// WeakDigest is the digest finalizers sign for a weak vote on this block.
func (bs *BlockState) WeakDigest() thor.Bytes32 { return thor.WeakDigest(bs.finalityDigest) }

// computeFinalityDigest folds the parent's finality digest together with
// this block's content, per spec.md §6: every block's digest commits to its
// entire ancestry, so a finalizer's strong vote on block N transitively
// attests to every ancestor of N.
func computeFinalityDigest(parentDigest thor.Bytes32, header *block.Header) thor.Bytes32 {
	var numBuf [4]byte
	n := header.Number()
	numBuf[0] = byte(n >> 24)
	numBuf[1] = byte(n >> 16)
	numBuf[2] = byte(n >> 8)
	numBuf[3] = byte(n)
	return thor.Hash256(parentDigest[:], header.ActionMRoot[:], numBuf[:])
}

// NewGenesisBlockState builds the BlockState for a chain's genesis block: a
// genesis finality core, a one-leaf valid tree, and an aggregator pair
// against the genesis active (and optional pending) finalizer policy.
func NewGenesisBlockState(header *block.Header, activePolicy, pendingPolicy *FinalizerPolicy) *BlockState {
	core := CreateForGenesis(header.ID(), header.Timestamp)
	digest := computeFinalityDigest(thor.Bytes32{}, header)

	var pendingGen uint32
	if pendingPolicy != nil {
		pendingGen = pendingPolicy.Generation
	}
	ref := block.RefOf(header, activePolicy.Generation, pendingGen, digest)

	leaf := FinalityLeafNode{
		MajorVersion:   CurrentMajorVersion,
		MinorVersion:   CurrentMinorVersion,
		BlockNum:       header.Number(),
		Timestamp:      header.Timestamp,
		FinalityDigest: digest,
		ActionMRoot:    header.ActionMRoot,
	}
	tree := NewGenesisValidTree().Extend(leaf.Digest(), core.LastFinalBlockNum(), core.LastFinalBlockNum())

	return &BlockState{
		header:         header,
		core:           core,
		ref:            ref,
		activePolicy:   activePolicy,
		pendingPolicy:  pendingPolicy,
		qc:             NewAggregatingQC(activePolicy, pendingPolicy),
		validTree:      tree,
		finalityDigest: digest,
	}
}

// NewBlockState builds the BlockState for header extending parent, per
// spec.md §4.1/§4.4: advances the finality core, extends the valid tree with
// this block's leaf, and starts a fresh vote aggregator against the given
// (already-resolved) active and optional pending finalizer policies. Policy
// transitions proposed by header.Finality.NewFinalizerPolicyDiff are applied
// by the caller before construction; this package treats the resulting
// policies as opaque inputs (spec.md §1: policy/block production is out of
// scope).
func NewBlockState(parent *BlockState, header *block.Header, activePolicy, pendingPolicy *FinalizerPolicy) (*BlockState, error) {
	if header.ParentID() != parent.header.ID() {
		return nil, errors.New("finality: header does not extend parent block state")
	}

	digest := computeFinalityDigest(parent.finalityDigest, header)
	var pendingGen uint32
	if pendingPolicy != nil {
		pendingGen = pendingPolicy.Generation
	}
	ref := block.RefOf(header, activePolicy.Generation, pendingGen, digest)

	core, err := parent.core.Next(parent.ref, header.QCClaim())
	if err != nil {
		return nil, err
	}

	leaf := FinalityLeafNode{
		MajorVersion:    CurrentMajorVersion,
		MinorVersion:    CurrentMinorVersion,
		BlockNum:        header.Number(),
		Timestamp:       header.Timestamp,
		ParentTimestamp: parent.header.Timestamp,
		FinalityDigest:  digest,
		ActionMRoot:     header.ActionMRoot,
	}
	tree := parent.validTree.Extend(leaf.Digest(), core.LastFinalBlockNum(), parent.core.LastFinalBlockNum())

	return &BlockState{
		header:         header,
		core:           core,
		ref:            ref,
		activePolicy:   activePolicy,
		pendingPolicy:  pendingPolicy,
		qc:             NewAggregatingQC(activePolicy, pendingPolicy),
		validTree:      tree,
		finalityDigest: digest,
	}, nil
}

// AggregateVote routes vote to this block's active/pending aggregators,
// verifying against whichever digest the vote's strength requires.
func (bs *BlockState) AggregateVote(vote Vote) VoteResult {
	digest := bs.finalityDigest
	if !vote.Strong {
		weak := bs.WeakDigest()
		return bs.qc.AggregateVote(vote, weak[:])
	}
	return bs.qc.AggregateVote(vote, digest[:])
}

// HasVoted reports whether key has already voted on this block, in either
// the active or pending policy.
func (bs *BlockState) HasVoted(key bls.PublicKey) bool {
	return bs.qc.HasVoted(key)
}

// GetBestQC returns the best available QC for this block.
func (bs *BlockState) GetBestQC() (QC, bool) {
	return bs.qc.GetBestQC(bs.header.Number())
}

// SetReceivedQC records a QC received over the wire as a candidate for
// GetBestQC's comparison against locally aggregated votes.
func (bs *BlockState) SetReceivedQC(qc QC) error {
	return bs.qc.SetReceivedQC(qc)
}

// VerifyQC validates a received QC's structure, thresholds and signatures
// against this block's policies and digests.
func (bs *BlockState) VerifyQC(qc QC) error {
	return bs.qc.VerifyQC(qc, bs.finalityDigest[:], bs.WeakDigest().Bytes())
}

// IsQuorumMet reports whether this block's QC has reached quorum.
func (bs *BlockState) IsQuorumMet() bool {
	return bs.qc.IsQuorumMet()
}

// ExtractQCClaim derives the qc_claim carried by the best QC for this block,
// for inclusion in a descendant's header finality extension.
func (bs *BlockState) ExtractQCClaim() (block.QCClaim, bool) {
	qc, ok := bs.GetBestQC()
	if !ok {
		return block.QCClaim{}, false
	}
	return block.QCClaim{BlockNum: qc.BlockNum, IsStrongQC: qc.ActivePolicySig.IsStrong()}, true
}

// ValidTreeRoot returns the current Merkle root over the reversible window's
// finality leaves.
func (bs *BlockState) ValidTreeRoot() thor.Bytes32 {
	return bs.validTree.Root()
}

// FinalizerPolicies is the triple get_finalizer_policies(n) resolves,
// spec.md §4.6: the finality digest and active/pending finalizer policies in
// force at a given block number, used to verify a QC whose claimed block is
// no longer head.
type FinalizerPolicies struct {
	FinalityDigest thor.Bytes32
	ActivePolicy   *FinalizerPolicy
	PendingPolicy  *FinalizerPolicy
}

// PoliciesAt returns the finality digest and active/pending finalizer
// policies recorded in bs. Callers resolve n to a BlockState first (the fork
// database's chain.ForkDB.GetFinalizerPolicies does this by ancestor walk)
// since BlockState itself only knows the block number it was built for.
func (bs *BlockState) PoliciesAt() FinalizerPolicies {
	return FinalizerPolicies{
		FinalityDigest: bs.finalityDigest,
		ActivePolicy:   bs.activePolicy,
		PendingPolicy:  bs.pendingPolicy,
	}
}
