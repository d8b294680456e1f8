package schemaarchive

import (
	"errors"
	"os"
	"testing"
)

func TestArchive_PutGetRoundTrip(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	schema := []byte(`{"name":"example","version":"1.0"}`)
	id, err := a.Put(schema)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !id.Defined() {
		t.Fatalf("expected defined CID")
	}
	if !a.Has(id) {
		t.Fatalf("Has: expected true")
	}

	got, err := a.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(schema) {
		t.Fatalf("bytes mismatch")
	}
}

func TestArchive_PutIdempotent(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	schema := []byte(`{"name":"example"}`)
	first, err := a.Put(schema)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := a.Put(schema)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if !first.Equals(second) {
		t.Fatalf("idempotent Put returned different CIDs")
	}
}

func TestArchive_GetMissing(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := CIDFor([]byte("never stored"))
	if err != nil {
		t.Fatalf("CIDFor: %v", err)
	}
	if a.Has(id) {
		t.Fatalf("Has: expected false")
	}
	if _, err := a.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestArchive_CorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	schema := []byte(`{"name":"example"}`)
	id, err := a.Put(schema)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := a.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := a.Get(id); !errors.Is(err, ErrImmutable) {
		t.Fatalf("tampered object: got %v, want ErrImmutable", err)
	}
}

func TestCIDFor_Deterministic(t *testing.T) {
	a, err := CIDFor([]byte("abc"))
	if err != nil {
		t.Fatalf("CIDFor: %v", err)
	}
	b, err := CIDFor([]byte("abc"))
	if err != nil {
		t.Fatalf("CIDFor: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("CIDFor is not deterministic")
	}
	c, err := CIDFor([]byte("abd"))
	if err != nil {
		t.Fatalf("CIDFor: %v", err)
	}
	if a.Equals(c) {
		t.Fatalf("different bytes produced the same CID")
	}
}
