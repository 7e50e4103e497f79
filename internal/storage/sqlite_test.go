package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations out of order: %v", versions)
		}
	}
}

func TestSaveAndListDocuments(t *testing.T) {
	s := openTestStore(t)

	docs := []Document{
		{ID: "doc-1", Filename: "guide.pdf", SizeBytes: 2048, ChunkCount: 4,
			UploadedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "doc-2", Filename: "faq.txt", SizeBytes: 512, ChunkCount: 1,
			UploadedAt: time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)},
	}
	for _, d := range docs {
		if err := s.SaveDocument(d); err != nil {
			t.Fatalf("SaveDocument(%s): %v", d.ID, err)
		}
	}

	got, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "doc-2" || got[1].ID != "doc-1" {
		t.Errorf("order = [%s, %s], want [doc-2, doc-1]", got[0].ID, got[1].ID)
	}
	if got[1].Filename != "guide.pdf" || got[1].SizeBytes != 2048 || got[1].ChunkCount != 4 {
		t.Errorf("doc-1 round trip = %+v", got[1])
	}
}

func TestSaveDocument_DefaultsUploadedAt(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDocument(Document{ID: "doc-1", Filename: "a.txt"}); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(got) != 1 || got[0].UploadedAt.IsZero() {
		t.Errorf("uploaded_at not defaulted: %+v", got)
	}
}

func TestDeleteAllDocuments(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SaveDocument(Document{ID: id, Filename: id + ".txt"}); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
	}

	n, err := s.DeleteAllDocuments()
	if err != nil {
		t.Fatalf("DeleteAllDocuments: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	got, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("documents remain after delete: %v", got)
	}
}
