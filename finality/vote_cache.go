// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"github.com/antelopeio/savanna-finality/cache"
	"github.com/antelopeio/savanna-finality/thor"
)

// PendingVoteCache buffers votes that arrive for a block this node has not
// yet added to its fork database — gossip is not guaranteed to deliver a
// block before the votes cast on it. Entries are keyed by the voted-for
// block's ID and prioritized by block number, mirroring bft.Engine's
// justifier cache: a bounded PrioCache evicts the lowest-numbered
// not-yet-resolved block first rather than growing without limit while a
// peer's block delivery lags behind its vote gossip.
type PendingVoteCache struct {
	c *cache.PrioCache
}

// NewPendingVoteCache creates a cache holding buffered votes for at most
// limit distinct not-yet-seen blocks.
func NewPendingVoteCache(limit int) *PendingVoteCache {
	return &PendingVoteCache{c: cache.NewPrioCache(limit)}
}

// Buffer records vote, cast on the block identified by blockID/blockNum, to
// be replayed once that block's BlockState is constructed.
func (p *PendingVoteCache) Buffer(blockID thor.Bytes32, blockNum uint32, vote Vote) {
	var votes []Vote
	if existing, _, ok := p.c.Get(blockID); ok {
		votes = existing.([]Vote)
	}
	votes = append(votes, vote)
	p.c.Set(blockID, votes, float64(blockNum))
}

// Take removes and returns every vote buffered for blockID, or nil if none
// are pending.
func (p *PendingVoteCache) Take(blockID thor.Bytes32) []Vote {
	entry := p.c.Remove(blockID)
	if entry == nil {
		return nil
	}
	return entry.Value.([]Vote)
}

// Len reports how many distinct blocks currently have buffered votes.
func (p *PendingVoteCache) Len() int {
	return p.c.Len()
}
