// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import "github.com/antelopeio/savanna-finality/thor"

// ValidTree is this module's valid_t: a sliding window of finality leaf
// digests, one per block in [last_final_block_num, current_block_num], whose
// Merkle root Root computes. Only that window is kept: leaves for blocks
// below last_final_block_num are dropped, and no Merkle accumulator over the
// whole chain since genesis is retained.
type ValidTree struct {
	leaves []thor.Bytes32 // window aligned with the owning block_state's core.refs
}

// NewGenesisValidTree returns the empty tree for the genesis block.
func NewGenesisValidTree() ValidTree {
	return ValidTree{}
}

// FinalityLeafNode is the record hashed into the tree for one block, per
// spec.md §6: {major_version, minor_version, block_num, timestamp,
// parent_timestamp, finality_digest, action_mroot}, in that field order.
type FinalityLeafNode struct {
	MajorVersion    uint32
	MinorVersion    uint32
	BlockNum        uint32
	Timestamp       thor.BlockTimestamp
	ParentTimestamp thor.BlockTimestamp
	FinalityDigest  thor.Bytes32
	ActionMRoot     thor.Bytes32
}

// CurrentMajorVersion and CurrentMinorVersion are this module's leaf-node version; both
// fields are part of the wire contract (spec.md §6) and must not change
// without a coordinated fork.
const (
	CurrentMajorVersion = 1
	CurrentMinorVersion = 0
)

// Digest hashes the leaf node fields in their fixed order.
func (l FinalityLeafNode) Digest() thor.Bytes32 {
	var buf [5*4 + 32*2]byte
	off := 0
	putU32 := func(v uint32) {
		buf[off] = byte(v >> 24)
		buf[off+1] = byte(v >> 16)
		buf[off+2] = byte(v >> 8)
		buf[off+3] = byte(v)
		off += 4
	}
	putU32(l.MajorVersion)
	putU32(l.MinorVersion)
	putU32(l.BlockNum)
	putU32(uint32(l.Timestamp))
	putU32(uint32(l.ParentTimestamp))
	copy(buf[off:off+32], l.FinalityDigest[:])
	off += 32
	copy(buf[off:off+32], l.ActionMRoot[:])
	return thor.Hash256(buf[:])
}

// Extend appends leaf to the tree, trims the window to stay aligned with
// [lastFinal, currentNum], and returns the new tree value (never mutates t).
func (t ValidTree) Extend(leaf thor.Bytes32, lastFinal uint32, windowStart uint32) ValidTree {
	next := make([]thor.Bytes32, 0, len(t.leaves)+1)
	// windowStart is the block_num corresponding to t.leaves[0]; drop leaves
	// that fell below the new last-final boundary.
	drop := 0
	if lastFinal > windowStart {
		drop = int(lastFinal - windowStart)
		if drop > len(t.leaves) {
			drop = len(t.leaves)
		}
	}
	next = append(next, t.leaves[drop:]...)
	next = append(next, leaf)
	return ValidTree{leaves: next}
}

// Root computes the Merkle root of the current window.
func (t ValidTree) Root() thor.Bytes32 {
	return merkleRoot(t.leaves)
}

// Len reports how many leaves are currently retained in the window.
func (t ValidTree) Len() int { return len(t.leaves) }
