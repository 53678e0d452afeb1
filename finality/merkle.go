// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import "github.com/antelopeio/savanna-finality/thor"

// merkleRoot computes a binary Merkle root over leaves, duplicating the last
// node on an odd level the way calculate_merkle does in the original
// implementation. A single leaf is its own root; zero leaves yield the zero
// digest.
func merkleRoot(leaves []thor.Bytes32) thor.Bytes32 {
	if len(leaves) == 0 {
		return thor.Bytes32{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([]thor.Bytes32, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, thor.Hash256(level[i][:], level[i+1][:]))
			} else {
				next = append(next, thor.Hash256(level[i][:], level[i][:]))
			}
		}
		level = next
	}
	return level[0]
}
