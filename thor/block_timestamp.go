// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package thor

// BlockTimestamp is a monotonically increasing, slot-quantized clock used throughout
// the finality core. It plays the role of block_timestamp_type in the original
// implementation: a count of slots since a fixed epoch, not a wall-clock time.
type BlockTimestamp uint32

// ZeroTimestamp is the "unset" sentinel used by genesis block refs and fresh safety
// info, equivalent to a default-constructed block_timestamp_type.
const ZeroTimestamp BlockTimestamp = 0

// After reports whether t is strictly later than o.
func (t BlockTimestamp) After(o BlockTimestamp) bool { return t > o }

// Before reports whether t is strictly earlier than o.
func (t BlockTimestamp) Before(o BlockTimestamp) bool { return t < o }
