// Copyright (c) 2022 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>
package finality

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/antelopeio/savanna-finality/bls"
)

// KeyPair is a locally configured finalizer's public/private key pair, as
// supplied to SetKeys at startup.
type KeyPair struct {
	PublicKey  bls.PublicKey
	PrivateKey bls.PrivateKey
}

// MyFinalizers is my_finalizers_t: the set of finalizer keys this node votes
// with, plus every inactive finalizer's stashed safety info, persisted to a
// single safety file so restarts can never equivocate. All methods are
// mutex-guarded.
type MyFinalizers struct {
	mu sync.Mutex

	finalizers map[string]*Finalizer // active key -> finalizer, keyed by PublicKey.String()
	inactive   map[string]fsiEntry   // keys not currently configured, preserved for future reactivation

	defaultFSI FSI

	persistFile     string
	inactiveWritten bool
	inactiveBytes   []fsiEntry
}

// NewMyFinalizers constructs an empty set backed by persistFile.
func NewMyFinalizers(persistFile string) *MyFinalizers {
	return &MyFinalizers{
		finalizers:  make(map[string]*Finalizer),
		inactive:    make(map[string]fsiEntry),
		persistFile: persistFile,
		defaultFSI:  UnsetFSI,
	}
}

// SetKeys is my_finalizers_t::set_keys: called once at startup. Loads any
// persisted safety info, assigns each configured key its prior FSI (falling
// back to the default), and stashes whatever safety info is left over as
// inactive for a future SetKeys call that reactivates those keys.
func (m *MyFinalizers) SetKeys(keys []KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.finalizers) != 0 {
		return errors.New("set_keys must be called exactly once before any finalizer is active")
	}

	loaded, err := m.loadSafetyInfoLocked()
	if err != nil {
		return err
	}

	m.finalizers = make(map[string]*Finalizer, len(keys))
	for _, kp := range keys {
		keyStr := kp.PublicKey.String()
		fsi := m.defaultFSI
		if entry, ok := loaded[keyStr]; ok {
			fsi = entry.FSI
		}
		m.finalizers[keyStr] = &Finalizer{PrivKey: kp.PrivateKey, FSI: fsi}
		delete(loaded, keyStr)
	}

	m.inactive = loaded
	m.inactiveWritten = false
	m.inactiveBytes = nil
	return nil
}

// SetDefaultSafetyInformation is my_finalizers_t::set_default_safety_information:
// seeds every not-yet-voted finalizer (empty LastVote and Lock) with fsi, and
// caches fsi as the default applied to keys activated by a future SetKeys.
func (m *MyFinalizers) SetDefaultSafetyInformation(fsi FSI) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaultFSI = fsi
	for _, f := range m.finalizers {
		if f.FSI.LastVote.Empty() && f.FSI.Lock.Empty() {
			f.FSI = fsi
		}
	}
}

// ActivePublicKeys returns the public keys currently configured to vote.
func (m *MyFinalizers) ActivePublicKeys() []bls.PublicKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]bls.PublicKey, 0, len(m.finalizers))
	for _, f := range m.finalizers {
		keys = append(keys, f.PrivKey.PublicKey())
	}
	return keys
}

// MaybeVote runs DecideVote for every configured finalizer against bsp and
// collects the signed messages any of them produce. Matching
// my_finalizers_t::maybe_vote, the safety file is saved first — while the
// mutex is still held — and only handed to processVote once that save
// succeeds: "if (save_finalizer_safety_info()) { g.unlock(); for (vote)
// process_vote(vote); }". A save failure drops the votes instead of
// releasing them to the network.
func (m *MyFinalizers) MaybeVote(bsp BlockStateView, strongDigest [32]byte, processVote func(VoteMessage)) error {
	m.mu.Lock()

	strongDigestArr := strongDigest
	changed := false
	var messages []VoteMessage
	for _, f := range m.finalizers {
		pubKey := f.PrivKey.PublicKey()
		before := f.FSI
		msg, voted := f.MaybeVote(pubKey, bsp, strongDigestArr)
		if !voted {
			continue
		}
		if !f.FSI.Equal(before) {
			changed = true
		}
		messages = append(messages, msg)
	}

	if changed {
		if err := m.saveSafetyInfoLocked(); err != nil {
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Unlock()
	for _, msg := range messages {
		processVote(msg)
	}
	return nil
}

// MaybeUpdateFSI is my_finalizers_t::maybe_update_fsi: advances each
// configured finalizer's lock/last-vote from a QC's active+pending bitsets
// when it shows that finalizer voted strong on a branch this node is
// catching up to. Persists once if anything changed.
func (m *MyFinalizers) MaybeUpdateFSI(bsp BlockStateView, hasVotedStrong func(pubKey bls.PublicKey) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, f := range m.finalizers {
		pubKey := f.PrivKey.PublicKey()
		if !hasVotedStrong(pubKey) {
			continue
		}
		if f.MaybeUpdateFSI(bsp) {
			changed = true
		}
	}

	if changed {
		return m.saveSafetyInfoLocked()
	}
	return nil
}

// activeEntries/inactiveEntries snapshot the current maps into the codec's
// entry slices; assumes the mutex is held.
func (m *MyFinalizers) activeEntriesLocked() []fsiEntry {
	entries := make([]fsiEntry, 0, len(m.finalizers))
	for _, f := range m.finalizers {
		entries = append(entries, fsiEntry{PubKey: f.PrivKey.PublicKey(), FSI: f.FSI})
	}
	return entries
}

func (m *MyFinalizers) inactiveEntriesLocked() []fsiEntry {
	entries := make([]fsiEntry, 0, len(m.inactive))
	for _, entry := range m.inactive {
		entries = append(entries, entry)
	}
	return entries
}

// saveSafetyInfoLocked is my_finalizers_t::save_finalizer_safety_info:
// writes the current v1 file, snapshotting the inactive entries only on the
// first save after SetKeys, since that set does not change until the next
// SetKeys call. Every save re-encodes all entries and recomputes the CRC32.
func (m *MyFinalizers) saveSafetyInfoLocked() error {
	if m.persistFile == "" {
		return nil
	}

	active := m.activeEntriesLocked()
	if !m.inactiveWritten {
		m.inactiveBytes = m.inactiveEntriesLocked()
		m.inactiveWritten = true
	}

	data := EncodeSafetyFileV1(active, m.inactiveBytes)
	if err := os.WriteFile(m.persistFile, data, 0o600); err != nil {
		safetyFileSaves.WithLabelValues("error").Inc()
		return errors.Wrap(ErrSafetyFileIO, err.Error())
	}
	safetyFileSaves.WithLabelValues("success").Inc()
	return nil
}

// loadSafetyInfoLocked is my_finalizers_t::load_finalizer_safety_info:
// returns an empty map if the file doesn't exist, dispatching to the v1
// decoder first and falling back to the legacy v0 layout so a file written
// by an older build still loads cleanly.
func (m *MyFinalizers) loadSafetyInfoLocked() (map[string]fsiEntry, error) {
	data, err := os.ReadFile(m.persistFile)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]fsiEntry), nil
	}
	if err != nil {
		return nil, errors.Wrap(ErrSafetyFileIO, err.Error())
	}

	if entries, decErr := DecodeSafetyFileV1(data); decErr == nil {
		res := make(map[string]fsiEntry, len(entries))
		for _, e := range entries {
			res[e.PubKey.String()] = e
		}
		return res, nil
	}

	flat, err := DecodeSafetyFileV0(data)
	if err != nil {
		return nil, err
	}
	res := make(map[string]fsiEntry, len(flat))
	for _, e := range flat {
		res[e.PubKey.String()] = e
	}
	return res, nil
}
