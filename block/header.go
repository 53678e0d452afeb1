// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package block

import (
	"encoding/binary"

	"github.com/antelopeio/savanna-finality/thor"
)

// Number extracts the block number encoded in the low 4 bytes of a block ID.
func Number(blockID thor.Bytes32) uint32 {
	return binary.BigEndian.Uint32(blockID[:4])
}

// Header is the minimal per-block metadata the finality core needs: identity,
// lineage and timestamp, plus the optional finality and quorum-certificate
// extensions carried by Savanna-active blocks. Transaction execution, the
// action Merkle root's derivation, and proposer-scheduling fields are out of
// this module's scope (spec.md §1) and are not modeled here.
type Header struct {
	parentID thor.Bytes32
	id       thor.Bytes32

	Number_     uint32
	Timestamp   thor.BlockTimestamp
	ActionMRoot thor.Bytes32

	Finality *FinalityExtension
	QC       *QuorumCertificateExtension
}

// NewHeader builds a header with a derived ID: the low 4 bytes encode number,
// the remainder is the caller-supplied content digest.
func NewHeader(parentID thor.Bytes32, number uint32, timestamp thor.BlockTimestamp, actionMRoot thor.Bytes32, contentDigest thor.Bytes32) *Header {
	id := contentDigest
	binary.BigEndian.PutUint32(id[:4], number)
	return &Header{
		parentID:    parentID,
		id:          id,
		Number_:     number,
		Timestamp:   timestamp,
		ActionMRoot: actionMRoot,
	}
}

// ID returns this block's identity hash.
func (h *Header) ID() thor.Bytes32 { return h.id }

// ParentID returns the identity hash of this block's parent.
func (h *Header) ParentID() thor.Bytes32 { return h.parentID }

// Number returns the block number, equal to Number(h.ID()).
func (h *Header) Number() uint32 { return h.Number_ }

// QCClaim is a convenience accessor returning the zero claim when this block
// carries no finality extension (i.e. finality is not yet active).
func (h *Header) QCClaim() QCClaim {
	if h.Finality == nil {
		return QCClaim{}
	}
	return h.Finality.QCClaim
}

// FinalityExtension is the block-header finality extension of spec.md §6:
// the QC claim this block extends, plus optional finalizer/proposer policy
// transitions.
type FinalityExtension struct {
	QCClaim QCClaim

	NewFinalizerPolicyDiff *FinalizerPolicyDiff
	NewProposerPolicy      []byte
}

// QCClaim mirrors spec.md §3's qc_claim: {block_num, is_strong_qc}, totally
// ordered lexicographically.
type QCClaim struct {
	BlockNum   uint32
	IsStrongQC bool
}

// Less totally orders claims lexicographically by (BlockNum, IsStrongQC),
// treating strong as greater than weak at the same block number.
func (a QCClaim) Less(b QCClaim) bool {
	if a.BlockNum != b.BlockNum {
		return a.BlockNum < b.BlockNum
	}
	return !a.IsStrongQC && b.IsStrongQC
}

// Extends reports whether claim a is at least as strong a commitment as b:
// a ≥ b in the lexicographic order over (BlockNum, IsStrongQC).
func (a QCClaim) Extends(b QCClaim) bool {
	return !a.Less(b)
}

// Equal reports whether two claims target the same block number with the
// same strength.
func (a QCClaim) Equal(b QCClaim) bool {
	return a.BlockNum == b.BlockNum && a.IsStrongQC == b.IsStrongQC
}

// FinalizerPolicyDiff proposes a transition to a new finalizer policy; the
// concrete authority set is opaque to this package (owned by `finality`).
type FinalizerPolicyDiff struct {
	Generation uint32
	Payload    []byte
}

// QuorumCertificateExtension is the block extension carrying the best QC
// produced for an earlier block, per spec.md §6: qc_t = {block_num,
// active_policy_sig, pending_policy_sig?}.
type QuorumCertificateExtension struct {
	BlockNum         uint32
	ActivePolicySig  []byte
	PendingPolicySig []byte // nil when no pending policy was active
}
