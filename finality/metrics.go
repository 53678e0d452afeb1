// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package finality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finality_votes_processed_total",
		Help: "Votes accepted by aggregating_qc_sig, partitioned by result and strength.",
	}, []string{"result", "strength"})

	blocksFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finality_blocks_finalized_total",
		Help: "Blocks whose last_final_block_num advanced past them.",
	})

	qcStrongWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finality_qc_strong_weight",
		Help: "Summed weight of strong votes collected for the open qc of a block.",
	}, []string{"block_num"})

	qcWeakWeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finality_qc_weak_weight",
		Help: "Summed weight of weak votes collected for the open qc of a block.",
	}, []string{"block_num"})

	safetyFileSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finality_safety_file_saves_total",
		Help: "Safety file save attempts, partitioned by outcome.",
	}, []string{"outcome"})
)
