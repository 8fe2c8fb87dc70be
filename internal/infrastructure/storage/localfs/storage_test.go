package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func TestUploadOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "http://localhost:8080/uploads/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	stored, err := store.Upload(ctx, "analyses/u1/a1_leaf.png", "image/png", strings.NewReader("png-bytes"), 9)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if stored.URL != "http://localhost:8080/uploads/analyses/u1/a1_leaf.png" || stored.Key != "analyses/u1/a1_leaf.png" {
		t.Fatalf("unexpected stored image: %+v", stored)
	}
	if _, err := os.Stat(filepath.Join(dir, "analyses", "u1", "a1_leaf.png")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, err := store.Open(ctx, stored.Key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, stored.Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, stored.Key); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := store.Open(ctx, stored.Key); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../outside.png", "/etc/passwd", ".."} {
		if _, err := store.Upload(context.Background(), key, "image/png", strings.NewReader("x"), 1); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected invalid input, got %v", key, err)
		}
	}
}
