package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStorePutGetEncrData(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "storage.json"))

	want := EncrData{}
	for i := range want.Key {
		want.Key[i] = byte(i)
	}
	for i := range want.IV {
		want.IV[i] = byte(0x10 + i)
	}

	if err := s.PutEncrData(want); err != nil {
		t.Fatalf("PutEncrData: %v", err)
	}

	got, err := s.GetEncrData()
	if err != nil {
		t.Fatalf("GetEncrData: %v", err)
	}
	if got != want {
		t.Fatalf("GetEncrData = %+v, want %+v", got, want)
	}
}

func TestStoreGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "storage.json"))

	if _, err := s.GetEncrData(); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.json")

	want := EncrData{Key: [16]byte{1, 2, 3}, IV: [16]byte{4, 5, 6}}
	if err := New(path).PutEncrData(want); err != nil {
		t.Fatalf("PutEncrData: %v", err)
	}

	got, err := New(path).GetEncrData()
	if err != nil {
		t.Fatalf("GetEncrData on fresh Store: %v", err)
	}
	if got != want {
		t.Fatalf("GetEncrData = %+v, want %+v", got, want)
	}
}

func TestStoreClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.json")
	s := New(path)

	if err := s.PutEncrData(EncrData{}); err != nil {
		t.Fatalf("PutEncrData: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still exists after Clear: %v", err)
	}

	// Clear on an already-absent file is not an error.
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
}
