// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package thor

import (
	"encoding/hex"
	"fmt"
)

// Bytes32 32-byte array, mainly used for block ID and digests.
type Bytes32 [32]byte

// Bytes returns the slice of b[:].
func (b Bytes32) Bytes() []byte { return b[:] }

// String implements stringer.
func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

// IsZero returns whether is all zero.
func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

// BytesToBytes32 convert bytes slice into Bytes32.
func BytesToBytes32(b []byte) (v Bytes32) {
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(v[32-len(b):], b)
	return
}

// ParseBytes32 parses a hex string (with or without 0x prefix) into Bytes32.
func ParseBytes32(s string) (Bytes32, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var b Bytes32
	n, err := hex.Decode(b[:], []byte(s))
	if err != nil {
		return Bytes32{}, err
	}
	if n != 32 {
		return Bytes32{}, fmt.Errorf("invalid length of hex string for bytes32: %d", n)
	}
	return b, nil
}

// MarshalJSON implements json.Marshaler.
func (b Bytes32) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes32) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid bytes32 json literal")
	}
	v, err := ParseBytes32(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
