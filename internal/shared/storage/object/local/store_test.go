package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"coach-backend/internal/shared/storage/object"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir(), "http://localhost:8080/static/")
	ctx := context.Background()

	key, size, mime, err := store.Save(ctx, "guest:abc", "notes.txt", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != 11 {
		t.Fatalf("expected size 11, got %d", size)
	}
	if !strings.HasPrefix(mime, "text/plain") {
		t.Fatalf("unexpected mime %q", mime)
	}
	if strings.Contains(key, "guest:abc") {
		t.Fatalf("raw user id leaked into key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello world" {
		t.Fatalf("unexpected content %q", data)
	}

	url, err := store.URL(ctx, key)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "http://localhost:8080/static/"+key {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestOpenMissingWrapsNotFound(t *testing.T) {
	store := New(t.TempDir(), "")
	_, err := store.Open(context.Background(), "nope/missing.pdf")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	store := New(t.TempDir(), "")
	ctx := context.Background()
	if _, err := store.Open(ctx, "../secret"); err == nil {
		t.Fatalf("expected traversal key to be rejected on Open")
	}
	if _, err := store.SaveWithKey(ctx, "/abs/path", "audio/mpeg", strings.NewReader("x")); err == nil {
		t.Fatalf("expected absolute key to be rejected on SaveWithKey")
	}
}
