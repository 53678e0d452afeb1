// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package thor

import "crypto/sha256"

// weakDigestSuffix is appended to a strong digest to derive the digest a finalizer
// signs when casting a weak vote, so that strong and weak signatures over the same
// block can never be confused with one another.
var weakDigestSuffix = []byte("WEAK")

// Hash256 is the digest function used across the finality core.
func Hash256(data ...[]byte) Bytes32 {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var b Bytes32
	h.Sum(b[:0])
	return b
}

// WeakDigest derives the digest that a finalizer signs for a weak vote from the
// strong digest of the same block.
func WeakDigest(strongDigest Bytes32) Bytes32 {
	return Hash256(strongDigest[:], weakDigestSuffix)
}
