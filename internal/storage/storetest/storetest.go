// Package storetest holds behaviour tests shared by storage.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/menta2k/image-thumbnailer/internal/storage"
)

// RunStoreTests exercises store, open and delete on s.
func RunStoreTests(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	name := "example.com/125x125/0123456789abcdef.jpg"
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

	t.Run("open missing", func(t *testing.T) {
		_, err := s.Open(ctx, "example.com/125x125/missing.jpg")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("store and open", func(t *testing.T) {
		err := s.Store(ctx, name, data,
			storage.WithContentType("image/jpeg"),
			storage.WithCacheControl("public, max-age=60"))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}

		f, err := s.Open(ctx, name)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer f.Close()

		got, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(got) != string(data) {
			t.Errorf("Expected %q, got %q", data, got)
		}
		if f.Size != int64(len(data)) {
			t.Errorf("Expected size %d, got %d", len(data), f.Size)
		}
		if f.ContentType != "image/jpeg" {
			t.Errorf("Expected content type image/jpeg, got %q", f.ContentType)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		replacement := append(append([]byte{}, data...), 0x01)
		if err := s.Store(ctx, name, replacement); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		f, err := s.Open(ctx, name)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer f.Close()
		if f.Size != int64(len(replacement)) {
			t.Errorf("Expected size %d, got %d", len(replacement), f.Size)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, name); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Open(ctx, name); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})
}
