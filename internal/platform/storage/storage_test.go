package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDiskStore_SaveAndOpen(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	path, err := store.Save(context.Background(), "referral.pdf", strings.NewReader("fax body"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if path == "" {
		t.Fatal("expected a storage path")
	}

	rc, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fax body" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestDiskStore_SaveSanitizesPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	path, err := store.Save(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("expected path under %s, got %s", dir, path)
	}
	if strings.Contains(path, "..") {
		t.Errorf("expected sanitized path, got %s", path)
	}
}

func TestDiskStore_RequiresFileName(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	_, err = store.Save(context.Background(), "", strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestDiskStore_OpenMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	_, err = store.Open(context.Background(), "/nonexistent/file")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestMemStore_RoundTrip(t *testing.T) {
	store := NewMemStore()

	path, err := store.Save(context.Background(), "note.txt", strings.NewReader("dictation"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rc, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "dictation" {
		t.Errorf("unexpected content: %q", data)
	}

	if err := store.Delete(context.Background(), path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Open(context.Background(), path); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound after delete, got %v", err)
	}
}
