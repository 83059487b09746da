package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bni_1_nidm.ttl")
	dst := filepath.Join(dir, "bni_1_phenotype.ttl")

	content := []byte("@prefix nidm: <http://purl.org/nidash/nidm#> .\n")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.ttl")

	if err := CopyFileVerified(filepath.Join(dir, "nonexistent"), dst); err == nil {
		t.Fatal("expected error for missing source")
	}
	if IsFile(dst) {
		t.Fatal("destination should not be created for missing source")
	}
}

func TestBackupWritesBakSibling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "participants.tsv")
	if err := os.WriteFile(path, []byte("participant_id\tsex\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	backup, err := Backup(path)
	if err != nil {
		t.Fatal(err)
	}
	if backup != path+".bak" {
		t.Fatalf("unexpected backup path %q", backup)
	}
	got, err := os.ReadFile(backup)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "participant_id\tsex\n" {
		t.Fatalf("backup content mismatch: %q", got)
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "summary.txt")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: got %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, found %d entries", len(entries))
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ttl")
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatal(err)
	}
	if IsFile(path) {
		t.Fatal("expected file removed")
	}
	if !IsDir(dir) || IsDir(path) {
		t.Fatal("IsDir mismatch")
	}
}
