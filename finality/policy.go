// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import "github.com/antelopeio/savanna-finality/bls"

// FinalizerAuthority is one voter's entry within a FinalizerPolicy: its
// public key and voting weight.
type FinalizerAuthority struct {
	PublicKey bls.PublicKey
	Weight    uint64
}

// FinalizerPolicy is the weighted voter set and threshold active (or
// pending) for a range of block numbers, per the GLOSSARY's "Active/Pending
// finalizer policy".
type FinalizerPolicy struct {
	Generation uint32
	Finalizers []FinalizerAuthority
	Threshold  uint64
}

// IndexOf returns the position of key within Finalizers, or -1 if absent.
func (p *FinalizerPolicy) IndexOf(key bls.PublicKey) int {
	for i, f := range p.Finalizers {
		if f.PublicKey.String() == key.String() {
			return i
		}
	}
	return -1
}

// TotalWeight sums every voter's weight.
func (p *FinalizerPolicy) TotalWeight() uint64 {
	var sum uint64
	for _, f := range p.Finalizers {
		sum += f.Weight
	}
	return sum
}

// MaxWeakSumBeforeWeakFinal is the largest weak weight an aggregator may hold
// while still able to reach strong: total weight minus the strong quorum
// threshold, mirroring finalizer_policy::max_weak_sum_before_weak_final().
func (p *FinalizerPolicy) MaxWeakSumBeforeWeakFinal() uint64 {
	total := p.TotalWeight()
	if total <= p.Threshold {
		return 0
	}
	return total - p.Threshold
}
