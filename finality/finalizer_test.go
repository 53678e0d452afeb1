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

type fakeBSV struct {
	id   thor.Bytes32
	ts   thor.BlockTimestamp
	core Core
}

func (f fakeBSV) ID() thor.Bytes32            { return f.id }
func (f fakeBSV) Timestamp() thor.BlockTimestamp { return f.ts }
func (f fakeBSV) Core() Core                  { return f.core }

func buildTwoLinkCore(t *testing.T) Core {
	t.Helper()
	core := CreateForGenesis(thor.Bytes32{}, 0)
	var err error
	core, err = core.Next(refAt(0, 100), block.QCClaim{BlockNum: 0, IsStrongQC: true})
	require.NoError(t, err)
	core, err = core.Next(refAt(1, 200), block.QCClaim{BlockNum: 1, IsStrongQC: true})
	require.NoError(t, err)
	return core
}

// TestDecideVote_EmptyLockNeverVotes: a finalizer whose safety info has never
// been seeded with a lock (fresh key, SetDefaultSafetyInformation not yet
// applied) cannot vote, by construction of the liveness/safety predicates.
func TestDecideVote_EmptyLockNeverVotes(t *testing.T) {
	core := buildTwoLinkCore(t)
	f := &Finalizer{FSI: FSI{}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	res := f.DecideVote(bsp)
	require.Equal(t, NoVote, res.Decision)
	require.True(t, res.MonotonyCheck)
	require.False(t, res.LivenessCheck)
	require.False(t, res.SafetyCheck)
}

// TestDecideVote_MonotonyRejectsReplay: a block at or before the last voted
// timestamp is never voted on again, regardless of liveness/safety.
func TestDecideVote_MonotonyRejectsReplay(t *testing.T) {
	core := buildTwoLinkCore(t)
	f := &Finalizer{FSI: FSI{LastVote: block.Ref{ID: refAt(9, 1).ID, Timestamp: 300}}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	res := f.DecideVote(bsp)
	require.Equal(t, NoVote, res.Decision)
	require.False(t, res.MonotonyCheck)
}

// TestDecideVote_LivenessPathVotesStrong: a finalizer whose lock is seeded
// behind the core's latest QC timestamp votes strong on its very first
// decision, per the liveness predicate.
func TestDecideVote_LivenessPathVotesStrong(t *testing.T) {
	core := buildTwoLinkCore(t)
	lock := block.Ref{ID: refAt(0, 100).ID, Timestamp: 0}
	f := &Finalizer{FSI: FSI{Lock: lock}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	res := f.DecideVote(bsp)
	require.Equal(t, StrongVote, res.Decision)
	require.True(t, res.LivenessCheck)
	require.False(t, res.SafetyCheck)
	require.Equal(t, bsp.ID(), f.FSI.LastVote.ID)
	require.Equal(t, bsp.Timestamp(), f.FSI.LastVote.Timestamp)
}

// TestDecideVote_SafetyOnlyPathVotesWeak: liveness fails (the lock's
// timestamp is ahead of the core's latest QC), but the lock's block is still
// extended by the core. The finalizer's last-vote range [210, 250] overlaps
// this decision's range [200, 300] and the core does not extend the last
// vote's block — so the vote is weak, allowed only by the safety predicate.
func TestDecideVote_SafetyOnlyPathVotesWeak(t *testing.T) {
	core := buildTwoLinkCore(t)
	lock := block.Ref{ID: refAt(0, 100).ID, Timestamp: 250}
	unrelated := refAt(99, 1).ID
	f := &Finalizer{FSI: FSI{
		Lock:               lock,
		LastVote:           block.Ref{ID: unrelated, Timestamp: 250},
		LastVoteRangeStart: 210,
	}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	res := f.DecideVote(bsp)
	require.True(t, res.MonotonyCheck)
	require.False(t, res.LivenessCheck)
	require.True(t, res.SafetyCheck)
	require.Equal(t, WeakVote, res.Decision)

	// Lock must not move on a weak vote.
	require.Equal(t, lock, f.FSI.Lock)
	require.Equal(t, bsp.ID(), f.FSI.LastVote.ID)
}

func TestDecideVote_NotLiveNotSafeNoVote(t *testing.T) {
	core := buildTwoLinkCore(t)
	// Lock targets a block number outside the core's reversible window and
	// ahead of the latest QC timestamp: neither liveness nor safety holds.
	lock := block.Ref{ID: refAt(50, 1).ID, Timestamp: 9999}
	f := &Finalizer{FSI: FSI{Lock: lock}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	res := f.DecideVote(bsp)
	require.Equal(t, NoVote, res.Decision)
	require.False(t, res.LivenessCheck)
	require.False(t, res.SafetyCheck)
}

func TestMaybeVote_SignsStrongDigest(t *testing.T) {
	core := buildTwoLinkCore(t)
	sk, pub := testKeyPair(t, 42)
	lock := block.Ref{ID: refAt(0, 100).ID, Timestamp: 0}
	f := &Finalizer{PrivKey: sk, FSI: FSI{Lock: lock}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	var strongDigest thor.Bytes32
	strongDigest[0] = 0xAB
	msg, voted := f.MaybeVote(pub, bsp, strongDigest)
	require.True(t, voted)
	require.True(t, msg.Strong)
	require.Equal(t, bsp.ID(), msg.BlockID)
	require.True(t, pub.Verify(strongDigest[:], msg.Sig))
	require.True(t, f.HasVoted.Load(), "MaybeVote must set the sticky has_voted flag")
}

// TestMaybeUpdateFSI_SkippedOnceVoted: once a finalizer has cast its own
// vote, an incoming QC must no longer mutate its FSI, per finalizer.cpp:146
// ("once we have voted, no reason to continue evaluating incoming QCs").
func TestMaybeUpdateFSI_SkippedOnceVoted(t *testing.T) {
	core := buildTwoLinkCore(t)
	lock := block.Ref{ID: refAt(0, 100).ID, Timestamp: 0}
	f := &Finalizer{FSI: FSI{Lock: lock}}
	bsp := fakeBSV{id: refAt(2, 300).ID, ts: 300, core: core}

	f.HasVoted.Store(true)
	before := f.FSI
	require.False(t, f.MaybeUpdateFSI(bsp))
	require.True(t, f.FSI.Equal(before), "fsi must be untouched once has_voted is set")
}
