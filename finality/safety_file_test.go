// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/bls"
	"github.com/antelopeio/savanna-finality/thor"
)

func testKeyPair(t *testing.T, seed byte) (bls.PrivateKey, bls.PublicKey) {
	t.Helper()
	ikm := make([]byte, 32)
	for i := range ikm {
		ikm[i] = seed
	}
	sk, err := bls.GenPrivateKey(ikm)
	require.NoError(t, err)
	return sk, sk.PublicKey()
}

func sampleFSI(n uint32) FSI {
	id := thor.Bytes32{}
	id[0], id[1], id[2], id[3] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
	return FSI{
		LastVote:              block.Ref{ID: id, Timestamp: thor.BlockTimestamp(n)},
		LastVoteRangeStart:    thor.BlockTimestamp(n - 1),
		Lock:                  block.Ref{ID: id, Timestamp: thor.BlockTimestamp(n)},
		OtherBranchLatestTime: thor.BlockTimestamp(n + 1),
	}
}

func TestSafetyFileV1_RoundTrip(t *testing.T) {
	_, pub1 := testKeyPair(t, 1)
	_, pub2 := testKeyPair(t, 2)
	_, pub3 := testKeyPair(t, 3)

	active := []fsiEntry{
		{PubKey: pub1, FSI: sampleFSI(10)},
		{PubKey: pub2, FSI: sampleFSI(20)},
	}
	inactive := []fsiEntry{
		{PubKey: pub3, FSI: sampleFSI(5)},
	}

	data := EncodeSafetyFileV1(active, inactive)
	entries, err := DecodeSafetyFileV1(data)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byKey := make(map[string]FSI)
	for _, e := range entries {
		byKey[e.PubKey.String()] = e.FSI
	}
	require.True(t, byKey[pub1.String()].Equal(sampleFSI(10)))
	require.True(t, byKey[pub2.String()].Equal(sampleFSI(20)))
	require.True(t, byKey[pub3.String()].Equal(sampleFSI(5)))
}

func TestSafetyFileV1_InactivePrecedesActive(t *testing.T) {
	_, pub1 := testKeyPair(t, 1)
	_, pub2 := testKeyPair(t, 2)

	active := []fsiEntry{{PubKey: pub1, FSI: sampleFSI(1)}}
	inactive := []fsiEntry{{PubKey: pub2, FSI: sampleFSI(2)}}

	data := EncodeSafetyFileV1(active, inactive)
	entries, err := DecodeSafetyFileV1(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, pub2.String(), entries[0].PubKey.String())
	require.Equal(t, pub1.String(), entries[1].PubKey.String())
}

func TestSafetyFileV1_BadMagicRejected(t *testing.T) {
	_, pub1 := testKeyPair(t, 1)
	data := EncodeSafetyFileV1([]fsiEntry{{PubKey: pub1, FSI: sampleFSI(1)}}, nil)
	data[0] ^= 0xff

	_, err := DecodeSafetyFileV1(data)
	require.Error(t, err)
	require.True(t, IsSafetyFileCorrupt(err))
}

func TestSafetyFileV1_CorruptCrcRejected(t *testing.T) {
	_, pub1 := testKeyPair(t, 1)
	data := EncodeSafetyFileV1([]fsiEntry{{PubKey: pub1, FSI: sampleFSI(1)}}, nil)
	data[len(data)-1] ^= 0xff

	_, err := DecodeSafetyFileV1(data)
	require.Error(t, err)
	require.True(t, IsSafetyFileCorrupt(err))
}

func TestSafetyFileV0_RoundTrip(t *testing.T) {
	_, pub1 := testKeyPair(t, 1)
	_, pub2 := testKeyPair(t, 2)

	active := []fsiEntry{{PubKey: pub1, FSI: sampleFSI(1)}}
	inactive := []fsiEntry{{PubKey: pub2, FSI: sampleFSI(2)}}

	data := EncodeSafetyFileV0(active, inactive)
	entries, err := DecodeSafetyFileV0(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, pub1.String(), entries[0].PubKey.String())
	require.Equal(t, pub2.String(), entries[1].PubKey.String())

	// A v0 file must not parse as v1 (no magic), so loaders can dispatch by
	// trying v1 first and falling back to v0.
	_, err = DecodeSafetyFileV1(data)
	require.Error(t, err)
}
