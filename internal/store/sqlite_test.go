package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSQLite_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestSQLiteBlob_PutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Put("k", []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("k", []byte("v2")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	v, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(v) != "v2" {
		t.Fatalf("expected v2, got %q", v)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

// TestSQLiteBlob_SurvivesReopen is the durability contract: a snapshot
// written before shutdown is readable after reopening the file.
func TestSQLiteBlob_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.db")

	s1, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.Put("mutation_queue_v2", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	v, ok, err := s2.Get("mutation_queue_v2")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(v) != `[{"id":"a"}]` {
		t.Fatalf("value changed across reopen: %q", v)
	}
}
