// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/thor"
)

// QCLink is spec.md §3's qc_link: "block source carries a QC claim on block
// target, strong or weak", with the invariant target <= source.
type QCLink struct {
	SourceBlockNum uint32
	TargetBlockNum uint32
	IsLinkStrong   bool
}

// Claim returns the qc_claim this link represents.
func (l QCLink) Claim() block.QCClaim {
	return block.QCClaim{BlockNum: l.TargetBlockNum, IsStrongQC: l.IsLinkStrong}
}

// Core is the pure, value-typed finality_core of spec.md §3/§4.1: a 2-chain
// of qc_links plus the window of block_refs spanning the reversible range
// [last_final_block_num, current_block_num). Never mutated in place; Next
// always returns a new value.
type Core struct {
	links            []QCLink
	refs             []block.Ref
	genesisTimestamp thor.BlockTimestamp
}

// CreateForGenesis builds the core for a chain's genesis block: a single
// self-link {n, n, weak} and an empty ref window.
func CreateForGenesis(id thor.Bytes32, timestamp thor.BlockTimestamp) Core {
	n := block.Number(id)
	return Core{
		links: []QCLink{{
			SourceBlockNum: n,
			TargetBlockNum: n,
			IsLinkStrong:   false,
		}},
		genesisTimestamp: timestamp,
	}
}

// isGenesisCore reports whether this core still represents the genesis
// self-link (links has exactly one element whose source equals its target).
func (c Core) isGenesisCore() bool {
	return len(c.links) == 1 && c.links[0].SourceBlockNum == c.links[0].TargetBlockNum
}

// CurrentBlockNum is links.back().source_block_num.
func (c Core) CurrentBlockNum() uint32 {
	return c.links[len(c.links)-1].SourceBlockNum
}

// LastFinalBlockNum is links.front().target_block_num.
func (c Core) LastFinalBlockNum() uint32 {
	return c.links[0].TargetBlockNum
}

// LastFinalBlockTimestamp returns the timestamp of the last final block.
func (c Core) LastFinalBlockTimestamp() thor.BlockTimestamp {
	if c.isGenesisCore() {
		return c.genesisTimestamp
	}
	ref, _ := c.GetBlockReference(c.LastFinalBlockNum())
	return ref.Timestamp
}

// LatestQCClaim is the claim carried by the most recent link.
func (c Core) LatestQCClaim() block.QCClaim {
	last := c.links[len(c.links)-1]
	return block.QCClaim{BlockNum: last.TargetBlockNum, IsStrongQC: last.IsLinkStrong}
}

// LatestQCBlockTimestamp returns genesis_timestamp for a genesis core, else
// the timestamp of the block targeted by the latest QC claim.
func (c Core) LatestQCBlockTimestamp() thor.BlockTimestamp {
	if c.isGenesisCore() {
		return c.genesisTimestamp
	}
	last := c.links[len(c.links)-1]
	ref, _ := c.GetBlockReference(last.TargetBlockNum)
	return ref.Timestamp
}

// Extends reports whether id names a block in [last_final, current) that is
// actually recorded in this core's ref window.
func (c Core) Extends(id thor.Bytes32) bool {
	n := block.Number(id)
	if n >= c.LastFinalBlockNum() && n < c.CurrentBlockNum() {
		ref, ok := c.GetBlockReference(n)
		return ok && ref.ID == id
	}
	return false
}

// IsGenesisBlockNum reports whether n is the genesis block number, valid only
// for last_final_block_num() <= n <= current_block_num().
func (c Core) IsGenesisBlockNum(n uint32) bool {
	return c.links[0].SourceBlockNum == c.links[0].TargetBlockNum && c.links[0].SourceBlockNum == n
}

// GetBlockReference returns the ref for block number n, valid only for
// last_final_block_num() <= n < current_block_num().
func (c Core) GetBlockReference(n uint32) (block.Ref, bool) {
	if n < c.LastFinalBlockNum() || n >= c.CurrentBlockNum() {
		return block.Ref{}, false
	}
	idx := int(n - c.LastFinalBlockNum())
	if idx < 0 || idx >= len(c.refs) {
		return block.Ref{}, false
	}
	return c.refs[idx], true
}

// GetQCLinkFrom returns the link whose source_block_num equals n, valid only
// for links.front().source_block_num <= n <= current_block_num().
func (c Core) GetQCLinkFrom(n uint32) (QCLink, bool) {
	front := c.links[0].SourceBlockNum
	if n < front || n > c.CurrentBlockNum() {
		return QCLink{}, false
	}
	idx := int(n - front)
	if idx < 0 || idx >= len(c.links) {
		return QCLink{}, false
	}
	return c.links[idx], true
}

// GetReversibleBlocksMroot is the Merkle root over {block_num, timestamp,
// finality_digest, parent_timestamp} digests for refs[1:]; empty when there
// are fewer than two refs (the first ref has no parent to pair with).
func (c Core) GetReversibleBlocksMroot() thor.Bytes32 {
	if len(c.refs) <= 1 {
		return thor.Bytes32{}
	}
	leaves := make([]thor.Bytes32, 0, len(c.refs)-1)
	for i := 1; i < len(c.refs); i++ {
		leaves = append(leaves, refDigest(c.refs[i], c.refs[i-1].Timestamp))
	}
	return merkleRoot(leaves)
}

func refDigest(r block.Ref, parentTimestamp thor.BlockTimestamp) thor.Bytes32 {
	var buf [4 + 4 + 32 + 4]byte
	putUint32(buf[0:4], r.Num())
	putUint32(buf[4:8], uint32(r.Timestamp))
	copy(buf[8:40], r.FinalityDigest[:])
	putUint32(buf[40:44], uint32(parentTimestamp))
	return thor.Hash256(buf[:])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// newBlockNumbers implements get_new_block_numbers: derives the new
// last_final_block_num and new links-front source_block_num from the claim
// carried by the block extending current_block_num().
func newBlockNumbers(c Core, claim block.QCClaim) (newLastFinal, newLinksFrontSource uint32, err error) {
	if claim.BlockNum > c.CurrentBlockNum() {
		return 0, 0, errors.New("finality: precondition violated: claim.BlockNum exceeds current_block_num")
	}
	if claim.Less(c.LatestQCClaim()) {
		return 0, 0, errors.New("finality: precondition violated: claim regresses latest_qc_claim")
	}

	if !claim.IsStrongQC {
		return c.LastFinalBlockNum(), c.links[0].SourceBlockNum, nil
	}

	link, ok := c.GetQCLinkFrom(claim.BlockNum)
	if !ok {
		return 0, 0, errors.New("finality: precondition violated: no qc_link at claim.BlockNum")
	}
	return link.TargetBlockNum, link.SourceBlockNum, nil
}

// Next is the core's state-transition function, spec.md §4.1: given the
// block_ref of the block at current_block_num() and the QC claim carried by
// the block extending it, returns the new core for that extending block.
func (c Core) Next(currentBlock block.Ref, mostRecentAncestorClaim block.QCClaim) (Core, error) {
	if currentBlock.Num() != c.CurrentBlockNum() {
		return Core{}, errors.New("finality: precondition violated: current_block.Num() != current_block_num()")
	}
	if len(c.refs) > 0 {
		last := c.refs[len(c.refs)-1]
		if last.Num()+1 != currentBlock.Num() {
			return Core{}, errors.New("finality: precondition violated: current_block is not the successor of refs.back()")
		}
		if !(last.Timestamp < currentBlock.Timestamp) {
			return Core{}, errors.New("finality: precondition violated: current_block.Timestamp does not strictly increase")
		}
	}

	newLastFinal, newLinksFrontSource, err := newBlockNumbers(c, mostRecentAncestorClaim)
	if err != nil {
		return Core{}, err
	}
	if newLastFinal > c.LastFinalBlockNum() {
		blocksFinalized.Add(float64(newLastFinal - c.LastFinalBlockNum()))
	}

	// next.links = links[newLinksFrontSource - links.front().source ..] ++ {current+1, claim.BlockNum, claim.IsStrongQC}
	linkStart := int(newLinksFrontSource - c.links[0].SourceBlockNum)
	newLinks := make([]QCLink, 0, len(c.links)-linkStart+1)
	newLinks = append(newLinks, c.links[linkStart:]...)
	newLinks = append(newLinks, QCLink{
		SourceBlockNum: c.CurrentBlockNum() + 1,
		TargetBlockNum: mostRecentAncestorClaim.BlockNum,
		IsLinkStrong:   mostRecentAncestorClaim.IsStrongQC,
	})

	// next.refs = refs[newLastFinal - last_final ..] ++ currentBlock
	refStart := int(newLastFinal - c.LastFinalBlockNum())
	newRefs := make([]block.Ref, 0, len(c.refs)-refStart+1)
	newRefs = append(newRefs, c.refs[refStart:]...)
	newRefs = append(newRefs, currentBlock)

	return Core{
		links:            newLinks,
		refs:             newRefs,
		genesisTimestamp: c.genesisTimestamp,
	}, nil
}

// Links exposes the link sequence for tests and diagnostics; callers must not
// mutate the returned slice.
func (c Core) Links() []QCLink { return c.links }

// Refs exposes the ref window for tests and diagnostics; callers must not
// mutate the returned slice.
func (c Core) Refs() []block.Ref { return c.refs }
