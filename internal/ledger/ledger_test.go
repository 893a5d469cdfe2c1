package ledger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/civicpulse/civicpulse/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testutil.OpenTestDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSubmitIfNewCreatesThenDeduplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := []byte("%PDF-1.4\nA")

	first, err := store.SubmitIfNew(ctx, "wichita", "https://x/a.pdf", content)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Status != StatusCreated {
		t.Errorf("first status = %s, want %s", first.Status, StatusCreated)
	}
	if first.DocumentID == "" {
		t.Error("first submit returned empty document ID")
	}
	if first.BytesSize != 10 {
		t.Errorf("bytes size = %d, want 10", first.BytesSize)
	}

	// Same bytes from a different source and URL collapse to the
	// original record.
	second, err := store.SubmitIfNew(ctx, "topeka", "https://x/b.pdf", content)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Status != StatusDuplicate {
		t.Errorf("second status = %s, want %s", second.Status, StatusDuplicate)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("duplicate document ID = %s, want %s", second.DocumentID, first.DocumentID)
	}
	if second.ContentHash != first.ContentHash {
		t.Errorf("duplicate content hash = %s, want %s", second.ContentHash, first.ContentHash)
	}
	if second.BytesSize != first.BytesSize {
		t.Errorf("duplicate bytes size = %d, want %d", second.BytesSize, first.BytesSize)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}
}

func TestSubmitIfNewDistinctContentSameURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.SubmitIfNew(ctx, "wichita", "https://x/a.pdf", []byte("%PDF-1.4\nA"))
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}
	b, err := store.SubmitIfNew(ctx, "wichita", "https://x/a.pdf", []byte("%PDF-1.4\nB"))
	if err != nil {
		t.Fatalf("submit B: %v", err)
	}

	if a.Status != StatusCreated || b.Status != StatusCreated {
		t.Errorf("statuses = %s, %s, want both %s", a.Status, b.Status, StatusCreated)
	}
	if a.DocumentID == b.DocumentID {
		t.Error("distinct content produced the same document ID")
	}
	if a.ContentHash == b.ContentHash {
		t.Error("distinct content produced the same content hash")
	}
}

func TestSubmitIfNewHashDeterminism(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := []byte("agenda bytes")
	first, err := store.SubmitIfNew(ctx, "s1", "https://a.example/x.pdf", content)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := store.SubmitIfNew(ctx, "s2", "https://b.example/y.pdf", content)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.ContentHash != second.ContentHash {
		t.Errorf("hash differs across sources: %s vs %s", first.ContentHash, second.ContentHash)
	}
	if len(first.ContentHash) != 64 {
		t.Errorf("content hash length = %d, want 64 hex chars", len(first.ContentHash))
	}
}

func TestSubmitIfNewEmptyContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res, err := store.SubmitIfNew(ctx, "wichita", "https://x/empty.pdf", nil)
	if err != nil {
		t.Fatalf("submit empty: %v", err)
	}
	if res.Status != StatusCreated {
		t.Errorf("status = %s, want %s", res.Status, StatusCreated)
	}
	if res.BytesSize != 0 {
		t.Errorf("bytes size = %d, want 0", res.BytesSize)
	}
}

func TestSubmitIfNewRequiresSourceID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SubmitIfNew(context.Background(), "", "https://x/a.pdf", []byte("x"))
	if err == nil {
		t.Fatal("expected error for empty sourceID")
	}
}

func TestSubmitIfNewDuplicateKeepsOriginalURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := []byte("same bytes")
	first, err := store.SubmitIfNew(ctx, "wichita", "https://x/a.pdf", content)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := store.SubmitIfNew(ctx, "wichita", "https://x/b.pdf", content); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	doc, err := store.GetByHash(ctx, first.ContentHash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if doc == nil {
		t.Fatal("document not found by hash")
	}
	if doc.FileURL != "https://x/a.pdf" {
		t.Errorf("file url = %s, want the creating submission's URL", doc.FileURL)
	}
	if doc.ID != first.DocumentID {
		t.Errorf("document id = %s, want %s", doc.ID, first.DocumentID)
	}
}

func TestExistsByURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.ExistsByURL(ctx, "https://x/a.pdf")
	if err != nil {
		t.Fatalf("exists (empty store): %v", err)
	}
	if exists {
		t.Error("URL reported present in empty store")
	}

	if _, err := store.SubmitIfNew(ctx, "wichita", "https://x/a.pdf", []byte("bytes")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	exists, err = store.ExistsByURL(ctx, "https://x/a.pdf")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Error("ingested URL not reported present")
	}

	// A duplicate submission does not record its URL; only the
	// creating submission's URL is known to the ledger.
	if _, err := store.SubmitIfNew(ctx, "wichita", "https://x/b.pdf", []byte("bytes")); err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	exists, err = store.ExistsByURL(ctx, "https://x/b.pdf")
	if err != nil {
		t.Fatalf("exists (duplicate url): %v", err)
	}
	if exists {
		t.Error("duplicate submission's URL should not be recorded")
	}
}

func TestSubmitIfNewSchemaMissing(t *testing.T) {
	store, err := NewStore(testutil.OpenBareDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, err = store.SubmitIfNew(context.Background(), "wichita", "https://x/a.pdf", []byte("x"))
	if !errors.Is(err, ErrSchemaMissing) {
		t.Errorf("error = %v, want ErrSchemaMissing", err)
	}
}

func TestSubmitIfNewConcurrentSameContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte("minutes "), 64)

	const writers = 8
	results := make([]SubmitResult, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.SubmitIfNew(ctx, "wichita", "https://x/race.pdf", content)
		}(i)
	}
	wg.Wait()

	created := 0
	var winnerID string
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if results[i].Status == StatusCreated {
			created++
			winnerID = results[i].DocumentID
		}
	}
	if created != 1 {
		t.Fatalf("created count = %d, want exactly 1", created)
	}
	for i := 0; i < writers; i++ {
		if results[i].DocumentID != winnerID {
			t.Errorf("writer %d reported ID %s, want winner %s", i, results[i].DocumentID, winnerID)
		}
	}
}

func TestCountBySource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	submissions := []struct {
		source  string
		content string
	}{
		{"wichita", "doc one"},
		{"wichita", "doc two"},
		{"topeka", "doc three"},
	}
	for _, s := range submissions {
		if _, err := store.SubmitIfNew(ctx, s.source, "https://x/"+s.content, []byte(s.content)); err != nil {
			t.Fatalf("submit %q: %v", s.content, err)
		}
	}

	counts, err := store.CountBySource(ctx)
	if err != nil {
		t.Fatalf("count by source: %v", err)
	}
	if counts["wichita"] != 2 {
		t.Errorf("wichita count = %d, want 2", counts["wichita"])
	}
	if counts["topeka"] != 1 {
		t.Errorf("topeka count = %d, want 1", counts["topeka"])
	}
}
