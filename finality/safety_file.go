// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/block"
	"github.com/antelopeio/savanna-finality/bls"
	"github.com/antelopeio/savanna-finality/thor"
)

// safetyFileMagic is finalizer_safety_information::magic, the wire-contract
// sentinel at the head of every v1+ safety file (spec.md §6).
const safetyFileMagic uint64 = 0x5AFE11115AFE1111

// Safety file format versions, spec.md §4.5.
const (
	SafetyFileVersion0       = 0
	SafetyFileVersion1       = 1
	CurrentSafetyFileVersion = SafetyFileVersion1
)

// fsiEntry is one {pub_key, fsi} record in either file layout.
type fsiEntry struct {
	PubKey bls.PublicKey
	FSI    FSI
}

func encodeRef(w *bytes.Buffer, r block.Ref) {
	w.Write(r.ID[:])
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], uint32(r.Timestamp))
	w.Write(ts[:])
	w.Write(r.FinalityDigest[:])
	var gens [8]byte
	binary.BigEndian.PutUint32(gens[0:4], r.ActiveFinalizerPolicyGeneration)
	binary.BigEndian.PutUint32(gens[4:8], r.PendingFinalizerPolicyGeneration)
	w.Write(gens[:])
}

func decodeRef(r io.Reader) (block.Ref, error) {
	var ref block.Ref
	var buf [32 + 4 + 32 + 8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ref, err
	}
	copy(ref.ID[:], buf[0:32])
	ref.Timestamp = thor.BlockTimestamp(binary.BigEndian.Uint32(buf[32:36]))
	copy(ref.FinalityDigest[:], buf[36:68])
	ref.ActiveFinalizerPolicyGeneration = binary.BigEndian.Uint32(buf[68:72])
	ref.PendingFinalizerPolicyGeneration = binary.BigEndian.Uint32(buf[72:76])
	return ref, nil
}

func encodeFSI(w *bytes.Buffer, fsi FSI) {
	encodeRef(w, fsi.LastVote)
	var rangeStart [4]byte
	binary.BigEndian.PutUint32(rangeStart[:], uint32(fsi.LastVoteRangeStart))
	w.Write(rangeStart[:])
	encodeRef(w, fsi.Lock)
	var otherBranch [4]byte
	binary.BigEndian.PutUint32(otherBranch[:], uint32(fsi.OtherBranchLatestTime))
	w.Write(otherBranch[:])
}

func decodeFSI(r io.Reader) (FSI, error) {
	var fsi FSI
	var err error
	if fsi.LastVote, err = decodeRef(r); err != nil {
		return fsi, err
	}
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return fsi, err
	}
	fsi.LastVoteRangeStart = thor.BlockTimestamp(binary.BigEndian.Uint32(buf[:]))
	if fsi.Lock, err = decodeRef(r); err != nil {
		return fsi, err
	}
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return fsi, err
	}
	fsi.OtherBranchLatestTime = thor.BlockTimestamp(binary.BigEndian.Uint32(buf[:]))
	return fsi, nil
}

func encodeEntry(w *bytes.Buffer, e fsiEntry) {
	keyBytes := e.PubKey.Bytes()
	var klen [4]byte
	binary.BigEndian.PutUint32(klen[:], uint32(len(keyBytes)))
	w.Write(klen[:])
	w.Write(keyBytes)
	encodeFSI(w, e.FSI)
}

func decodeEntry(r io.Reader) (fsiEntry, error) {
	var e fsiEntry
	var klen [4]byte
	if _, err := io.ReadFull(r, klen[:]); err != nil {
		return e, err
	}
	keyBytes := make([]byte, binary.BigEndian.Uint32(klen[:]))
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return e, err
	}
	pubKey, err := bls.ParsePublicKey(keyBytes)
	if err != nil {
		return e, errors.Wrap(ErrSafetyFileCorrupt, err.Error())
	}
	e.PubKey = pubKey
	if e.FSI, err = decodeFSI(r); err != nil {
		return e, err
	}
	return e, nil
}

// EncodeSafetyFileV0 writes the legacy layout: raw concatenation of
// {pub_key, fsi} entries with inactive entries trailing active ones, no
// header, no checksum.
func EncodeSafetyFileV0(active, inactive []fsiEntry) []byte {
	var buf bytes.Buffer
	for _, e := range active {
		encodeEntry(&buf, e)
	}
	for _, e := range inactive {
		encodeEntry(&buf, e)
	}
	return buf.Bytes()
}

// DecodeSafetyFileV0 reads the legacy layout until EOF; the caller is
// responsible for knowing which entries are active vs inactive (v0 carries
// no distinguishing marker, so callers load the whole set and apply
// set_keys' active/inactive split afterwards).
func DecodeSafetyFileV0(data []byte) ([]fsiEntry, error) {
	var entries []fsiEntry
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, errors.Wrap(ErrSafetyFileCorrupt, err.Error())
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeSafetyFileV1 writes the current layout: magic, count, inactive
// entries then active entries, trailing CRC32 over everything after the
// magic. Inactive-before-active matches spec.md §6's v1 wire contract.
func EncodeSafetyFileV1(active, inactive []fsiEntry) []byte {
	var body bytes.Buffer
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(active)+len(inactive)))
	body.Write(count[:])
	for _, e := range inactive {
		encodeEntry(&body, e)
	}
	for _, e := range active {
		encodeEntry(&body, e)
	}

	var out bytes.Buffer
	var magic [8]byte
	binary.BigEndian.PutUint64(magic[:], safetyFileMagic)
	out.Write(magic[:])
	out.Write(body.Bytes())

	crc := crc32.ChecksumIEEE(body.Bytes())
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	out.Write(crcBuf[:])
	return out.Bytes()
}

// DecodeSafetyFileV1 parses the current layout, verifying the magic and
// CRC32 trailer. Returns ErrSafetyFileCorrupt (never auto-deletes the file)
// on any structural violation.
func DecodeSafetyFileV1(data []byte) ([]fsiEntry, error) {
	if len(data) < 8+8+4 {
		return nil, errors.Wrap(ErrSafetyFileCorrupt, "safety file truncated")
	}
	magic := binary.BigEndian.Uint64(data[0:8])
	if magic != safetyFileMagic {
		return nil, errors.Wrap(ErrSafetyFileCorrupt, "bad magic number in safety file")
	}

	body := data[8 : len(data)-4]
	wantCRC := binary.BigEndian.Uint32(data[len(data)-4:])
	gotCRC := crc32.ChecksumIEEE(body)
	if wantCRC != gotCRC {
		return nil, errors.Wrap(ErrSafetyFileCorrupt, "crc32 mismatch in safety file")
	}

	r := bytes.NewReader(body)
	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, errors.Wrap(ErrSafetyFileCorrupt, err.Error())
	}
	count := binary.BigEndian.Uint64(countBuf[:])

	entries := make([]fsiEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, errors.Wrap(ErrSafetyFileCorrupt, err.Error())
		}
		entries = append(entries, e)
	}
	return entries, nil
}
