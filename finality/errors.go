// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import "github.com/pkg/errors"

// Sentinel errors for the kinds named in spec.md §7. These are kinds, not a
// closed set of exact values: wrapping with errors.Wrap/Wrapf is expected and
// callers should test with the Is* helpers below rather than ==.
var (
	// ErrInvalidQCClaim covers bitset-size mismatches, insufficient weight,
	// and a missing pending-policy signature where one is required.
	ErrInvalidQCClaim = errors.New("finality: invalid qc claim")

	// ErrInvalidSignature is returned when aggregate-verify fails.
	ErrInvalidSignature = errors.New("finality: invalid signature")

	// ErrDuplicateVote is non-fatal and never logged above debug level.
	ErrDuplicateVote = errors.New("finality: duplicate vote")

	// ErrUnknownPublicKey means the voting key isn't in any relevant policy.
	ErrUnknownPublicKey = errors.New("finality: unknown public key")

	// ErrSafetyFileIO is fatal to voting on the current block only: the vote
	// is dropped, the node continues as a non-voting replica.
	ErrSafetyFileIO = errors.New("finality: safety file i/o failure")

	// ErrSafetyFileCorrupt means a bad magic, bad CRC, or truncated file was
	// found at startup; the file must be preserved, never auto-deleted.
	ErrSafetyFileCorrupt = errors.New("finality: safety file corrupt")
)

// IsDuplicateVote reports whether err (possibly wrapped) is ErrDuplicateVote.
func IsDuplicateVote(err error) bool { return errors.Is(err, ErrDuplicateVote) }

// IsUnknownPublicKey reports whether err (possibly wrapped) is ErrUnknownPublicKey.
func IsUnknownPublicKey(err error) bool { return errors.Is(err, ErrUnknownPublicKey) }

// IsInvalidQCClaim reports whether err (possibly wrapped) is ErrInvalidQCClaim.
func IsInvalidQCClaim(err error) bool { return errors.Is(err, ErrInvalidQCClaim) }

// IsInvalidSignature reports whether err (possibly wrapped) is ErrInvalidSignature.
func IsInvalidSignature(err error) bool { return errors.Is(err, ErrInvalidSignature) }

// IsSafetyFileIO reports whether err (possibly wrapped) is ErrSafetyFileIO.
func IsSafetyFileIO(err error) bool { return errors.Is(err, ErrSafetyFileIO) }

// IsSafetyFileCorrupt reports whether err (possibly wrapped) is ErrSafetyFileCorrupt.
func IsSafetyFileCorrupt(err error) bool { return errors.Is(err, ErrSafetyFileCorrupt) }
