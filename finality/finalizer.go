// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"sync/atomic"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/bls"
	"github.com/antelopeio/savanna-finality/thor"
)

// FSI is finalizer_safety_information, spec.md §3: the durable state that
// keeps a finalizer from equivocating across restarts.
type FSI struct {
	LastVote              block.Ref
	LastVoteRangeStart    thor.BlockTimestamp
	Lock                  block.Ref
	OtherBranchLatestTime thor.BlockTimestamp
}

// UnsetFSI is the zero-value safety info seeded for a freshly activated key.
var UnsetFSI = FSI{}

// Equal reports field-wise equality, used by safety-file round-trip tests.
func (f FSI) Equal(o FSI) bool {
	return f.LastVote == o.LastVote && f.LastVoteRangeStart == o.LastVoteRangeStart &&
		f.Lock == o.Lock && f.OtherBranchLatestTime == o.OtherBranchLatestTime
}

// VoteDecision is finalizer::vote_decision.
type VoteDecision int

const (
	NoVote VoteDecision = iota
	StrongVote
	WeakVote
)

func (d VoteDecision) String() string {
	switch d {
	case StrongVote:
		return "strong_vote"
	case WeakVote:
		return "weak_vote"
	default:
		return "no_vote"
	}
}

// DecideVoteResult is finalizer::vote_result: the decision plus the three
// boolean predicates that produced it, preserved individually (rather than
// collapsed into the decision alone) so callers can assert on monotony,
// liveness and safety independently, per spec.md §8 seed tests 3 and 4.
type DecideVoteResult struct {
	Decision      VoteDecision
	MonotonyCheck bool
	LivenessCheck bool
	SafetyCheck   bool
}

// Finalizer is a single configured voting key plus its safety info, guarded
// externally by MyFinalizers' mutex (spec.md §4.5).
type Finalizer struct {
	PrivKey bls.PrivateKey
	FSI     FSI

	// HasVoted is sticky: once this finalizer has cast a vote, MaybeUpdateFSI
	// stops mutating its FSI from incoming QCs ("once we have voted, no
	// reason to continue evaluating incoming QCs" — finalizer.cpp:146). The
	// caller already holds MyFinalizers' mutex around every access, so a
	// relaxed atomic is enough; it only needs to be loadable/storable
	// without a race detector complaint.
	HasVoted atomic.Bool
}

// BlockStateView is the minimal surface of BlockState that DecideVote needs,
// kept as an interface so finality/core tests can drive it with fixtures
// without constructing a full BlockState.
type BlockStateView interface {
	ID() thor.Bytes32
	Timestamp() thor.BlockTimestamp
	Core() Core
}

// DecideVote applies the monotony, liveness and safety predicates of
// spec.md §4.4 against the finalizer's persisted FSI, deciding strong vote,
// weak vote, or no vote, and updates f.FSI in place when a vote results.
func (f *Finalizer) DecideVote(bsp BlockStateView) DecideVoteResult {
	var res DecideVoteResult

	res.MonotonyCheck = f.FSI.LastVote.Empty() || bsp.Timestamp() > f.FSI.LastVote.Timestamp
	if !res.MonotonyCheck {
		return res
	}

	core := bsp.Core()

	if !f.FSI.Lock.Empty() {
		res.LivenessCheck = core.LatestQCBlockTimestamp() > f.FSI.Lock.Timestamp
		if !res.LivenessCheck {
			res.LivenessCheck = core.LastFinalBlockTimestamp() >= f.FSI.Lock.Timestamp
		}
		if !res.LivenessCheck {
			res.SafetyCheck = core.Extends(f.FSI.Lock.ID)
		}
	} else {
		res.LivenessCheck = false
		res.SafetyCheck = false
	}

	canVote := res.LivenessCheck || res.SafetyCheck
	if !canVote {
		return res
	}

	pStart := core.LatestQCBlockTimestamp()
	pEnd := bsp.Timestamp()

	timeRangeDisjoint := f.FSI.LastVoteRangeStart >= pEnd || f.FSI.LastVote.Timestamp <= pStart
	votingStrong := timeRangeDisjoint
	if !votingStrong && !f.FSI.LastVote.Empty() {
		votingStrong = core.Extends(f.FSI.LastVote.ID)
	}

	f.FSI.LastVote = block.Ref{ID: bsp.ID(), Timestamp: bsp.Timestamp()}
	f.FSI.LastVoteRangeStart = pStart

	if latestRef, ok := core.GetBlockReference(core.LatestQCClaim().BlockNum); ok {
		if votingStrong && latestRef.Timestamp > f.FSI.Lock.Timestamp {
			f.FSI.Lock = latestRef
		}
	}

	if votingStrong {
		res.Decision = StrongVote
	} else {
		res.Decision = WeakVote
	}
	return res
}

// MaybeUpdateFSI advances f.FSI.Lock/LastVote when bsp's latest QC claim is
// newer than what this finalizer currently holds, without having voted on
// bsp itself — used when an externally received QC shows this finalizer
// voted strong on a branch this node hasn't caught up to, spec.md §4.5.
func (f *Finalizer) MaybeUpdateFSI(bsp BlockStateView) bool {
	if f.HasVoted.Load() {
		return false
	}
	core := bsp.Core()
	latestRef, ok := core.GetBlockReference(core.LatestQCClaim().BlockNum)
	if !ok {
		return false
	}
	if latestRef.Timestamp > f.FSI.Lock.Timestamp && bsp.Timestamp() > f.FSI.LastVote.Timestamp {
		f.FSI.Lock = latestRef
		f.FSI.LastVote = block.Ref{ID: bsp.ID(), Timestamp: bsp.Timestamp()}
		f.FSI.LastVoteRangeStart = core.LatestQCBlockTimestamp()
		return true
	}
	return false
}

// VoteMessage is the emitted vote, signed over strongDigest or
// WeakDigest(strongDigest) depending on the decision.
type VoteMessage struct {
	BlockID   thor.Bytes32
	Strong    bool
	PublicKey bls.PublicKey
	Sig       bls.Signature
}

// MaybeVote runs DecideVote and, if it produces a vote, signs the
// appropriate digest and returns the VoteMessage to gossip. Returns false
// when DecideVote yields NoVote.
func (f *Finalizer) MaybeVote(pubKey bls.PublicKey, bsp BlockStateView, strongDigest thor.Bytes32) (VoteMessage, bool) {
	result := f.DecideVote(bsp)
	switch result.Decision {
	case StrongVote:
		sig := f.PrivKey.Sign(strongDigest[:])
		f.HasVoted.Store(true)
		return VoteMessage{BlockID: bsp.ID(), Strong: true, PublicKey: pubKey, Sig: sig}, true
	case WeakVote:
		weak := thor.WeakDigest(strongDigest)
		sig := f.PrivKey.Sign(weak[:])
		f.HasVoted.Store(true)
		return VoteMessage{BlockID: bsp.ID(), Strong: false, PublicKey: pubKey, Sig: sig}, true
	default:
		return VoteMessage{}, false
	}
}
