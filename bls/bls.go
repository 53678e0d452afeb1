// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bls wraps github.com/supranational/blst with the minimal surface the
// finality core needs: private keys that sign digests, public keys that verify
// them, and an aggregate signature type that lets a quorum certificate carry one
// signature instead of one per voter. The scheme is MinPk (public keys live in
// G1, signatures in G2), matching the convention used by the EOSIO/Antelope
// Savanna finalizer implementation this package's callers are modeled on.
package bls

import (
	"encoding/hex"

	"github.com/pkg/errors"
	blst "github.com/supranational/blst/bindings/go"
)

// dst is the domain separation tag finalizer signatures are bound to. Changing
// it invalidates every previously issued vote signature, so it is fixed here
// rather than configurable.
var dst = []byte("SAVANNA_FINALITY_BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_")

const (
	// PublicKeySize is the length of a compressed G1 public key.
	PublicKeySize = 48
	// SignatureSize is the length of a compressed G2 signature.
	SignatureSize = 96
	// PrivateKeySize is the length of a serialized scalar secret key.
	PrivateKeySize = 32
)

// PrivateKey is a BLS12-381 secret key used by a finalizer to sign vote digests.
type PrivateKey struct {
	sk *blst.SecretKey
}

// PublicKey is a compressed G1 point identifying a finalizer.
type PublicKey struct {
	raw [PublicKeySize]byte
	pk  *blst.P1Affine
}

// Signature is a compressed G2 point, either an individual vote signature or an
// aggregate of several.
type Signature struct {
	raw [SignatureSize]byte
	sig *blst.P2Affine
}

// GenPrivateKey derives a secret key from ikm, which must be at least 32 bytes
// of high-entropy key material.
func GenPrivateKey(ikm []byte) (PrivateKey, error) {
	if len(ikm) < 32 {
		return PrivateKey{}, errors.New("bls: ikm must be at least 32 bytes")
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return PrivateKey{}, errors.New("bls: key generation failed")
	}
	return PrivateKey{sk: sk}, nil
}

// ParsePrivateKey deserializes a secret key previously produced by Bytes.
func ParsePrivateKey(b []byte) (PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return PrivateKey{}, errors.Errorf("bls: invalid private key length %d", len(b))
	}
	sk := new(blst.SecretKey).Deserialize(b)
	if sk == nil {
		return PrivateKey{}, errors.New("bls: invalid private key encoding")
	}
	return PrivateKey{sk: sk}, nil
}

// Bytes serializes the secret key.
func (k PrivateKey) Bytes() []byte {
	if k.sk == nil {
		return nil
	}
	return k.sk.Serialize()
}

// PublicKey derives the public key corresponding to k.
func (k PrivateKey) PublicKey() PublicKey {
	pk := new(blst.P1Affine).From(k.sk)
	var pub PublicKey
	pub.pk = pk
	copy(pub.raw[:], pk.Compress())
	return pub
}

// Sign produces a signature over digest.
func (k PrivateKey) Sign(digest []byte) Signature {
	s := new(blst.P2Affine).Sign(k.sk, digest, dst)
	var sig Signature
	sig.sig = s
	copy(sig.raw[:], s.Compress())
	return sig
}

// ParsePublicKey decompresses a public key previously produced by Bytes.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, errors.Errorf("bls: invalid public key length %d", len(b))
	}
	pk := new(blst.P1Affine).Uncompress(b)
	if pk == nil || !pk.KeyValidate() {
		return PublicKey{}, errors.New("bls: invalid public key encoding")
	}
	var pub PublicKey
	pub.pk = pk
	copy(pub.raw[:], b)
	return pub, nil
}

// Bytes returns the compressed encoding of the public key.
func (p PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, p.raw[:])
	return b
}

// String renders the public key as a hex string, used as a map key and for
// logging.
func (p PublicKey) String() string {
	return "0x" + hex.EncodeToString(p.raw[:])
}

// Verify checks that sig is p's signature over digest.
func (p PublicKey) Verify(digest []byte, sig Signature) bool {
	if p.pk == nil || sig.sig == nil {
		return false
	}
	return sig.sig.Verify(false, p.pk, false, digest, dst)
}

// ParseSignature decompresses a signature previously produced by Bytes.
func ParseSignature(b []byte) (Signature, error) {
	if len(b) != SignatureSize {
		return Signature{}, errors.Errorf("bls: invalid signature length %d", len(b))
	}
	s := new(blst.P2Affine).Uncompress(b)
	if s == nil {
		return Signature{}, errors.New("bls: invalid signature encoding")
	}
	var sig Signature
	sig.sig = s
	copy(sig.raw[:], b)
	return sig, nil
}

// Bytes returns the compressed encoding of the signature.
func (s Signature) Bytes() []byte {
	b := make([]byte, SignatureSize)
	copy(b, s.raw[:])
	return b
}

// IsZero reports whether s is the unset signature.
func (s Signature) IsZero() bool {
	return s.sig == nil
}

// Aggregate combines sigs into a single aggregate signature, used to fold one
// more vote into a running quorum certificate signature. Signatures over
// different digests (strong and weak votes) may be combined; such an
// aggregate is checked with AggregateVerify.
func Aggregate(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, errors.New("bls: no signatures to aggregate")
	}
	agg := new(blst.P2Aggregate)
	points := make([]*blst.P2Affine, len(sigs))
	for i, s := range sigs {
		if s.sig == nil {
			return Signature{}, errors.New("bls: cannot aggregate unset signature")
		}
		points[i] = s.sig
	}
	if !agg.Aggregate(points, true) {
		return Signature{}, errors.New("bls: signature aggregation failed")
	}
	affine := agg.ToAffine()
	var sig Signature
	sig.sig = affine
	copy(sig.raw[:], affine.Compress())
	return sig, nil
}

// AggregateVerify verifies an aggregate signature where each key in keys signed
// the corresponding digest in digests.
func AggregateVerify(keys []PublicKey, digests [][]byte, sig Signature) bool {
	n := len(keys)
	if n == 0 || n != len(digests) || sig.sig == nil {
		return false
	}
	pks := make([]*blst.P1Affine, n)
	msgs := make([]blst.Message, n)
	for i := range keys {
		if keys[i].pk == nil {
			return false
		}
		pks[i] = keys[i].pk
		msgs[i] = digests[i]
	}
	return sig.sig.AggregateVerify(false, pks, false, msgs, dst)
}

// FastAggregateVerify verifies an aggregate signature where every key in keys
// signed the same digest, as used to check a quorum certificate's strong
// signature against the set of strong voters.
func FastAggregateVerify(keys []PublicKey, digest []byte, sig Signature) bool {
	n := len(keys)
	if n == 0 || sig.sig == nil {
		return false
	}
	pks := make([]*blst.P1Affine, n)
	for i := range keys {
		if keys[i].pk == nil {
			return false
		}
		pks[i] = keys[i].pk
	}
	return sig.sig.FastAggregateVerify(true, pks, digest, dst)
}
