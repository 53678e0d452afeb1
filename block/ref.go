// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package block

import "github.com/antelopeio/savanna-finality/thor"

// Ref is spec.md §3's block_ref: an immutable pair-plus identifying a block
// within the finality core's reversible window.
type Ref struct {
	ID                               thor.Bytes32
	Timestamp                        thor.BlockTimestamp
	FinalityDigest                   thor.Bytes32
	ActiveFinalizerPolicyGeneration  uint32
	PendingFinalizerPolicyGeneration uint32
}

// Num derives the block number from the low 32 bits of the ref's ID.
func (r Ref) Num() uint32 { return Number(r.ID) }

// Empty reports whether r is the unset block ref (zero value).
func (r Ref) Empty() bool {
	return r == Ref{}
}

// RefOf builds the ref for a header given its finality policy generations.
func RefOf(h *Header, activeGen, pendingGen uint32, finalityDigest thor.Bytes32) Ref {
	return Ref{
		ID:                               h.ID(),
		Timestamp:                        h.Timestamp,
		FinalityDigest:                   finalityDigest,
		ActiveFinalizerPolicyGeneration:  activeGen,
		PendingFinalizerPolicyGeneration: pendingGen,
	}
}
