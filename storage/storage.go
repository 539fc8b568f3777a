// Package storage implements the single persistent key/value entry named
// in §6: the 32-byte encrypted-advertising key material, stored under key
// BTIF_STORAGE_KEY_ENCR_DATA. Grounded on the teacher's cache/cache.go
// gattCache (stat-then-read-or-empty, marshal-whole-file, RWMutex), here
// specialized to one fixed key instead of a map of profiles.
package storage

import (
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// BTIFStorageKeyEncrData is the key §6 names for the encrypted-advertising
// key material entry.
const BTIFStorageKeyEncrData = "BTIF_STORAGE_KEY_ENCR_DATA"

// EncrData is the 32-byte key(16) || iv(16) value stored under
// BTIFStorageKeyEncrData.
type EncrData struct {
	Key [16]byte
	IV  [16]byte
}

type record struct {
	Values map[string][]byte `json:"values"`
}

// Store is a single-file-backed key/value store for the adapter profile's
// persistent entries.
type Store struct {
	filename string
	mu       sync.RWMutex
}

// New builds a Store backed by filename. The file is created on first
// write; it is not required to exist yet.
func New(filename string) *Store {
	return &Store{filename: filename}
}

// PutEncrData writes the encrypted-advertising key material.
func (s *Store) PutEncrData(d EncrData) error {
	var raw [32]byte
	copy(raw[:16], d.Key[:])
	copy(raw[16:], d.IV[:])
	return s.put(BTIFStorageKeyEncrData, raw[:])
}

// GetEncrData reads the encrypted-advertising key material. It returns
// ErrNotFound if no value has ever been stored under this key (§7
// "missing or malformed key material when encrypted data is present" is
// fatal at the caller, not here).
func (s *Store) GetEncrData() (EncrData, error) {
	raw, err := s.get(BTIFStorageKeyEncrData)
	if err != nil {
		return EncrData{}, err
	}
	if len(raw) != 32 {
		return EncrData{}, errors.Errorf("storage: %s has %d bytes, want 32", BTIFStorageKeyEncrData, len(raw))
	}
	var d EncrData
	copy(d.Key[:], raw[:16])
	copy(d.IV[:], raw[16:])
	return d, nil
}

// ErrNotFound is returned by GetEncrData when the key has never been
// written.
var ErrNotFound = errors.New("storage: key not found")

func (s *Store) put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLocked()
	if err != nil {
		return err
	}
	rec.Values[key] = append([]byte(nil), value...)
	return s.storeLocked(rec)
}

func (s *Store) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	v, ok := rec.Values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Clear removes the backing file entirely, matching gattCache.Clear.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filename); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "storage: clear")
	}
	return nil
}

func (s *Store) loadLocked() (record, error) {
	if _, err := os.Stat(s.filename); os.IsNotExist(err) {
		return record{Values: map[string][]byte{}}, nil
	}

	in, err := ioutil.ReadFile(s.filename)
	if err != nil {
		return record{}, errors.Wrap(err, "storage: read")
	}

	var rec record
	if err := jsoniter.Unmarshal(in, &rec); err != nil {
		return record{}, errors.Wrap(err, "storage: unmarshal")
	}
	if rec.Values == nil {
		rec.Values = map[string][]byte{}
	}
	return rec, nil
}

func (s *Store) storeLocked(rec record) error {
	out, err := jsoniter.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "storage: marshal")
	}
	return errors.Wrap(ioutil.WriteFile(s.filename, out, 0644), "storage: write")
}
