// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/log"

	"github.com/antelopeio/savanna-finality/bls"
)

var logger = log.New("pkg", "finality")

// VoteResult is the outcome of AggregatingQCSig.AddVote.
type VoteResult int

const (
	VoteSuccess VoteResult = iota
	VoteDuplicate
	VoteUnknownPublicKey
	VoteInvalidSignature
	VoteUnknownBlock
	VoteMaxExceeded
)

// State is the aggregator's 5-state progression, spec.md §4.2.
type State int

const (
	StateUnrestricted State = iota
	StateRestricted
	StateWeakAchieved
	StateWeakFinal
	StateStrong
)

func (s State) String() string {
	switch s {
	case StateUnrestricted:
		return "unrestricted"
	case StateRestricted:
		return "restricted"
	case StateWeakAchieved:
		return "weak_achieved"
	case StateWeakFinal:
		return "weak_final"
	case StateStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// isQuorumMet reports whether s is one of the three quorum-satisfying states.
func isQuorumMet(s State) bool {
	return s == StateStrong || s == StateWeakAchieved || s == StateWeakFinal
}

// QCSig is an extracted quorum certificate signature: the bitset(s) of
// voters and the aggregate signature over the relevant digest(s).
type QCSig struct {
	StrongVotes *bitset.BitSet
	WeakVotes   *bitset.BitSet // nil when this qc_sig is pure-strong
	Sig         bls.Signature
}

// IsStrong reports whether this qc_sig carries only strong votes.
func (q QCSig) IsStrong() bool { return q.WeakVotes == nil }

// IsWeak reports whether this qc_sig carries any weak votes.
func (q QCSig) IsWeak() bool { return q.WeakVotes != nil }

// votes is the bitset + aggregate signature pair for one vote kind (strong or
// weak) within one AggregatingQCSig, mirroring open_qc_sig_t::votes_t. The
// per-bit atomic "processed" flags let AddVote short-circuit duplicates
// without acquiring the enclosing mutex.
type votes struct {
	bitset    *bitset.BitSet
	processed []atomic.Bool
	sig       bls.Signature
	hasSig    bool
}

func newVotes(numFinalizers int) votes {
	return votes{
		bitset:    bitset.New(uint(numFinalizers)),
		processed: make([]atomic.Bool, numFinalizers),
	}
}

func (v *votes) hasVoted(index int) bool {
	return v.processed[index].Load()
}

// addVote sets bit index and aggregates sig into the running signature;
// called only while the enclosing mutex is held. Returns VoteDuplicate if
// the bit was already set (can happen if a duplicate slipped in before the
// lock was acquired).
func (v *votes) addVote(index int, sig bls.Signature) VoteResult {
	if v.bitset.Test(uint(index)) {
		return VoteDuplicate
	}
	v.processed[index].Store(true)
	v.bitset.Set(uint(index))
	if !v.hasSig {
		v.sig = sig
		v.hasSig = true
	} else {
		agg, err := bls.Aggregate([]bls.Signature{v.sig, sig})
		if err != nil {
			logger.Error("failed to aggregate vote signature", "err", err)
			return VoteInvalidSignature
		}
		v.sig = agg
	}
	return VoteSuccess
}

// AggregatingQCSig accumulates BLS vote shares from one finalizer policy for
// one block into strong/weak bitsets and a 5-state progression, spec.md
// §4.2. All public methods are safe for concurrent use.
type AggregatingQCSig struct {
	quorum                    uint64
	maxWeakSumBeforeWeakFinal uint64

	mu          sync.Mutex
	strongVotes votes
	weakVotes   votes
	strongSum   uint64
	weakSum     uint64
	state       State
	receivedQC  *QCSig
}

// NewAggregatingQCSig constructs the aggregator for a finalizer policy of
// numFinalizers voters, the given weighted threshold, and the maximum weak
// weight the aggregator may hold before moving straight to weak_final.
func NewAggregatingQCSig(numFinalizers int, quorum, maxWeakSumBeforeWeakFinal uint64) *AggregatingQCSig {
	return &AggregatingQCSig{
		quorum:                    quorum,
		maxWeakSumBeforeWeakFinal: maxWeakSumBeforeWeakFinal,
		strongVotes:               newVotes(numFinalizers),
		weakVotes:                 newVotes(numFinalizers),
	}
}

// HasVoted reports whether index has cast either a strong or weak vote.
func (a *AggregatingQCSig) HasVoted(index int) bool {
	return a.strongVotes.hasVoted(index) || a.weakVotes.hasVoted(index)
}

// HasVotedStrength reports whether index has already cast a vote of exactly
// the given strength.
func (a *AggregatingQCSig) HasVotedStrength(strong bool, index int) bool {
	if strong {
		return a.strongVotes.hasVoted(index)
	}
	return a.weakVotes.hasVoted(index)
}

// addStrongVote is add_strong_vote: assumes the mutex is held.
func (a *AggregatingQCSig) addStrongVote(index int, sig bls.Signature, weight uint64) VoteResult {
	if r := a.strongVotes.addVote(index, sig); r != VoteSuccess {
		return r
	}
	a.strongSum += weight

	switch a.state {
	case StateUnrestricted, StateRestricted:
		if a.strongSum >= a.quorum {
			a.state = StateStrong
		} else if a.weakSum+a.strongSum >= a.quorum {
			if a.state == StateRestricted {
				a.state = StateWeakFinal
			} else {
				a.state = StateWeakAchieved
			}
		}
	case StateWeakAchieved:
		if a.strongSum >= a.quorum {
			a.state = StateStrong
		}
	case StateWeakFinal, StateStrong:
		// nothing to do
	}
	return VoteSuccess
}

// addWeakVote is add_weak_vote: assumes the mutex is held.
func (a *AggregatingQCSig) addWeakVote(index int, sig bls.Signature, weight uint64) VoteResult {
	if r := a.weakVotes.addVote(index, sig); r != VoteSuccess {
		return r
	}
	a.weakSum += weight

	switch a.state {
	case StateUnrestricted, StateRestricted:
		if a.weakSum+a.strongSum >= a.quorum {
			a.state = StateWeakAchieved
		}
		if a.weakSum > a.maxWeakSumBeforeWeakFinal {
			if a.state == StateWeakAchieved {
				a.state = StateWeakFinal
			} else if a.state == StateUnrestricted {
				a.state = StateRestricted
			}
		}
	case StateWeakAchieved:
		if a.weakSum >= a.maxWeakSumBeforeWeakFinal {
			a.state = StateWeakFinal
		}
	case StateWeakFinal, StateStrong:
		// nothing to do
	}
	return VoteSuccess
}

// AddVote applies one vote share for voter index, strong or weak, weighted
// by weight, per spec.md §4.2's add_vote. It first checks the per-bit atomic
// flag outside the mutex to short-circuit the common duplicate case.
func (a *AggregatingQCSig) AddVote(blockNum uint32, strong bool, index int, sig bls.Signature, weight uint64) VoteResult {
	target := &a.strongVotes
	if !strong {
		target = &a.weakVotes
	}
	if target.hasVoted(index) {
		return VoteDuplicate
	}

	a.mu.Lock()
	preState := a.state
	var result VoteResult
	if strong {
		result = a.addStrongVote(index, sig, weight)
	} else {
		result = a.addWeakVote(index, sig, weight)
	}
	postState := a.state
	quorumMet := isQuorumMet(postState)
	strongSum, weakSum := a.strongSum, a.weakSum
	a.mu.Unlock()

	logger.Debug("aggregating qc sig vote processed",
		"blockNum", blockNum, "strong", strong, "result", result,
		"preState", preState, "postState", postState, "quorumMet", quorumMet)
	votesProcessed.WithLabelValues(resultLabel(result), strengthLabel(strong)).Inc()
	if result == VoteSuccess {
		blockNumLabel := strconv.FormatUint(uint64(blockNum), 10)
		qcStrongWeight.WithLabelValues(blockNumLabel).Set(float64(strongSum))
		qcWeakWeight.WithLabelValues(blockNumLabel).Set(float64(weakSum))
	}
	return result
}

func resultLabel(r VoteResult) string {
	switch r {
	case VoteSuccess:
		return "success"
	case VoteDuplicate:
		return "duplicate"
	case VoteUnknownPublicKey:
		return "unknown_public_key"
	case VoteInvalidSignature:
		return "invalid_signature"
	case VoteUnknownBlock:
		return "unknown_block"
	case VoteMaxExceeded:
		return "max_exceeded"
	default:
		return "unknown"
	}
}

func strengthLabel(strong bool) string {
	if strong {
		return "strong"
	}
	return "weak"
}

// extractQCSigFromOpen is extract_qc_sig_from_open: valid only when
// isQuorumMet(a.state); assumes the mutex is held.
func (a *AggregatingQCSig) extractQCSigFromOpen() QCSig {
	if a.state == StateStrong {
		return QCSig{StrongVotes: a.strongVotes.bitset, Sig: a.strongVotes.sig}
	}
	sig := a.weakVotes.sig
	if a.strongVotes.hasSig {
		agg, err := bls.Aggregate([]bls.Signature{a.strongVotes.sig, a.weakVotes.sig})
		if err != nil {
			logger.Error("failed to aggregate strong+weak signatures for open qc", "err", err)
		}
		sig = agg
	}
	return QCSig{StrongVotes: a.strongVotes.bitset, WeakVotes: a.weakVotes.bitset, Sig: sig}
}

// GetBestQC returns the best available qc_sig, preferring a received QC over
// a locally aggregated one per the tie-break rules of spec.md §4.2.
func (a *AggregatingQCSig) GetBestQC() (QCSig, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	quorumMet := isQuorumMet(a.state)
	if !quorumMet {
		if a.receivedQC != nil {
			return *a.receivedQC, true
		}
		return QCSig{}, false
	}

	openQC := a.extractQCSigFromOpen()
	if a.receivedQC == nil {
		return openQC, true
	}

	useReceived := a.receivedQC.IsStrong() || (a.receivedQC.IsWeak() && openQC.IsWeak())
	if useReceived {
		return *a.receivedQC, true
	}
	return openQC, true
}

// SetReceivedQC records a QC received from the network as a candidate for
// GetBestQC's comparison.
func (a *AggregatingQCSig) SetReceivedQC(qc QCSig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receivedQC = &qc
}

// ReceivedQCIsStrong reports whether a received QC is set and is strong.
func (a *AggregatingQCSig) ReceivedQCIsStrong() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.receivedQC != nil && a.receivedQC.IsStrong()
}

// IsQuorumMet reports whether this aggregator currently has a valid QC.
func (a *AggregatingQCSig) IsQuorumMet() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return isQuorumMet(a.state)
}

// State returns the current aggregation state, for diagnostics and tests.
func (a *AggregatingQCSig) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StrongSum and WeakSum expose the accumulated weights, for diagnostics.
func (a *AggregatingQCSig) StrongSum() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strongSum
}

func (a *AggregatingQCSig) WeakSum() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weakSum
}
