package rpc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadUploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	uploads, err := ReadUploads([]string{path})
	if err != nil {
		t.Fatalf("ReadUploads: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	u := uploads[0]
	if u.Name != "notes.txt" || string(u.Data) != "hello" {
		t.Errorf("unexpected upload %+v", u)
	}
	if !strings.HasPrefix(u.Type, "text/plain") {
		t.Errorf("expected text/plain, got %q", u.Type)
	}
}

func TestReadUploadsMissingFileAborts(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(ok, []byte("a"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadUploads([]string{ok, filepath.Join(dir, "missing.bin")}); err == nil {
		t.Fatal("expected error for missing attachment")
	}
}

func TestContentTypeSniffsUnknownExtension(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := ContentType("blob.qqq", png); got != "image/png" {
		t.Errorf("expected image/png, got %q", got)
	}
}
