// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chain is the fork-database external collaborator of spec.md §6: it
// stores one finality.BlockState per accepted block, tracks the current head
// and the last irreversible block, and answers ancestry queries the finality
// core needs but does not itself maintain. Block production, validation and
// persistence to disk are out of scope (spec.md §1) — this is an in-memory
// reference implementation suitable for tests and for embedders that have
// not wired a storage-backed fork database.
package chain

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/finality"
	"github.com/antelopeio/savanna-finality/thor"
)

const ancestorCacheSize = 2048

var errNotFound = errors.New("chain: block state not found")

// AddResult is the outcome of ForkDB.Add, mirroring spec.md §6's
// {failure, duplicate, added, appended_to_head, fork_switch}.
type AddResult struct {
	Failure        error
	Duplicate      bool
	Added          bool
	AppendedToHead bool
	ForkSwitch     bool
}

// ForkDB is an in-memory fork database: every accepted block's BlockState,
// keyed by block ID, plus the head and root (last irreversible) pointers.
// Thread-safe.
type ForkDB struct {
	mu sync.RWMutex

	states map[thor.Bytes32]*finality.BlockState
	headID thor.Bytes32
	rootID thor.Bytes32

	ancestorCache *lru.Cache // (descendantID, num) -> thor.Bytes32
}

type ancestorKey struct {
	descendant thor.Bytes32
	num        uint32
}

// NewForkDB seeds the fork database with genesis, which becomes both the
// initial head and the initial root.
func NewForkDB(genesis *finality.BlockState) (*ForkDB, error) {
	cache, err := lru.New(ancestorCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "chain: failed to create ancestor cache")
	}
	id := genesis.ID()
	return &ForkDB{
		states:        map[thor.Bytes32]*finality.BlockState{id: genesis},
		headID:        id,
		rootID:        id,
		ancestorCache: cache,
	}, nil
}

// Head returns the current best block's state.
func (f *ForkDB) Head() *finality.BlockState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.states[f.headID]
}

// ForkDBRoot returns the last-irreversible block's state.
func (f *ForkDB) ForkDBRoot() *finality.BlockState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.states[f.rootID]
}

// SearchOnBranch walks back from headID to find the block state at number n,
// per spec.md §6. Returns false if n lies outside [root, headID]'s range or
// the chain is broken.
func (f *ForkDB) SearchOnBranch(headID thor.Bytes32, n uint32) (*finality.BlockState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	id, ok := f.ancestorIDLocked(headID, n)
	if !ok {
		return nil, false
	}
	bs, ok := f.states[id]
	return bs, ok
}

func (f *ForkDB) ancestorIDLocked(descendantID thor.Bytes32, n uint32) (thor.Bytes32, bool) {
	key := ancestorKey{descendant: descendantID, num: n}
	if cached, ok := f.ancestorCache.Get(key); ok {
		return cached.(thor.Bytes32), true
	}

	cur, ok := f.states[descendantID]
	if !ok {
		return thor.Bytes32{}, false
	}
	for cur.Header().Number() > n {
		parentID := cur.Header().ParentID()
		parent, ok := f.states[parentID]
		if !ok {
			return thor.Bytes32{}, false
		}
		cur = parent
	}
	if cur.Header().Number() != n {
		return thor.Bytes32{}, false
	}
	id := cur.ID()
	f.ancestorCache.Add(key, id)
	return id, true
}

// Add inserts bsp into the fork database, per spec.md §6. If bsp extends the
// current head it becomes the new head directly; if it extends a shorter
// branch that now outranks head (by block number — proposer-scheduling
// scoring is out of scope per spec.md §1), the head switches to it
// (fork_switch). ignoreDuplicate suppresses the Duplicate result for a block
// ID already present, reporting Added instead.
func (f *ForkDB) Add(bsp *finality.BlockState, ignoreDuplicate bool) AddResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := bsp.ID()
	if _, exists := f.states[id]; exists {
		if ignoreDuplicate {
			return AddResult{Added: true}
		}
		return AddResult{Duplicate: true}
	}

	parentID := bsp.Header().ParentID()
	if _, ok := f.states[parentID]; !ok {
		return AddResult{Failure: errors.New("chain: parent block state not found")}
	}

	f.states[id] = bsp

	head := f.states[f.headID]
	appendedToHead := parentID == f.headID
	forkSwitch := false
	if appendedToHead {
		f.headID = id
	} else if bsp.Header().Number() > head.Header().Number() {
		f.headID = id
		forkSwitch = true
	}

	return AddResult{Added: true, AppendedToHead: appendedToHead, ForkSwitch: forkSwitch}
}

// FetchBranch returns the ordered list of block states from lib (exclusive)
// to head (inclusive), oldest first, per spec.md §6.
func (f *ForkDB) FetchBranch(head, lib thor.Bytes32) ([]*finality.BlockState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	headState, ok := f.states[head]
	if !ok {
		return nil, errNotFound
	}
	libState, ok := f.states[lib]
	if !ok {
		return nil, errNotFound
	}
	if headState.Header().Number() < libState.Header().Number() {
		return nil, errors.New("chain: head is not a descendant of lib")
	}

	var branch []*finality.BlockState
	cur := headState
	for cur.ID() != lib {
		branch = append(branch, cur)
		parent, ok := f.states[cur.Header().ParentID()]
		if !ok {
			return nil, errNotFound
		}
		cur = parent
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, nil
}

// IsDescendantOf reports whether descendant's ancestry passes through
// ancestor, per spec.md §6.
func (f *ForkDB) IsDescendantOf(ancestor, descendant thor.Bytes32) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ancestorState, ok := f.states[ancestor]
	if !ok {
		return false, errNotFound
	}
	if _, ok := f.states[descendant]; !ok {
		return false, errNotFound
	}

	id, ok := f.ancestorIDLocked(descendant, ancestorState.Header().Number())
	if !ok {
		return false, nil
	}
	return id == ancestor, nil
}

// GetFinalizerPolicies is spec.md §4.6's get_finalizer_policies(n): resolves
// the finality digest and active/pending finalizer policies in force at
// block number n on the branch headed by headID, valid for any n the fork
// database still holds a block state for (last_final <= n <= head's number).
// Used when verifying a QC whose claimed block number has fallen behind
// head: the verifier walks back to the claimed block's own BlockState
// instead of using head's policies.
func (f *ForkDB) GetFinalizerPolicies(headID thor.Bytes32, n uint32) (finality.FinalizerPolicies, bool) {
	bs, ok := f.SearchOnBranch(headID, n)
	if !ok {
		return finality.FinalizerPolicies{}, false
	}
	return bs.PoliciesAt(), true
}

// Get returns the block state for id, if present.
func (f *ForkDB) Get(id thor.Bytes32) (*finality.BlockState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bs, ok := f.states[id]
	return bs, ok
}

// AdvanceRoot moves the last-irreversible pointer to id, pruning every
// branch that does not descend from it. Called by the driver after a strong
// QC advances finality.Core.LastFinalBlockNum, per spec.md §4.1.
func (f *ForkDB) AdvanceRoot(id thor.Bytes32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.states[id]; !ok {
		return errNotFound
	}
	newRootNum := f.states[id].Header().Number()

	kept := make(map[thor.Bytes32]*finality.BlockState, len(f.states))
	for blockID, bs := range f.states {
		if bs.Header().Number() < newRootNum {
			continue
		}
		ancestorID, ok := f.ancestorIDLocked(blockID, newRootNum)
		if !ok || ancestorID != id {
			continue
		}
		kept[blockID] = bs
	}
	f.states = kept
	f.rootID = id
	f.ancestorCache.Purge()
	return nil
}
