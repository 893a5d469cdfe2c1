// Package ledger implements the content-addressed document store:
// at most one row per unique byte sequence, regardless of how many
// URLs or sources submit it.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// urlCacheSize bounds the positive-hit cache behind ExistsByURL.
const urlCacheSize = 4096

// Store wraps a sql.DB with ledger semantics. Concurrency safety is
// delegated to SQLite's uniqueness constraint, not in-process locks,
// so multiple processes may share one database file.
type Store struct {
	db   *sql.DB
	urls *lru.Cache[string, struct{}]
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("ledger: db is nil")
	}
	urls, err := lru.New[string, struct{}](urlCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: create url cache: %w", err)
	}
	return &Store{db: db, urls: urls}, nil
}

// SubmitIfNew persists content under a fresh document ID unless the
// same bytes were stored before. The insert is attempted first and a
// uniqueness violation on content_hash is the duplicate signal; a
// check-then-insert would race under concurrent writers. On duplicate
// the existing document's ID is looked up and reported.
func (s *Store) SubmitIfNew(ctx context.Context, sourceID, fileURL string, content []byte) (SubmitResult, error) {
	if sourceID == "" {
		return SubmitResult{}, errors.New("ledger: sourceID is required")
	}

	contentHash := hashContent(content)
	documentID := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339)
	bytesSize := int64(len(content))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, file_url, content_hash, bytes_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, documentID, sourceID, fileURL, contentHash, bytesSize, createdAt)
	if err == nil {
		s.urls.Add(fileURL, struct{}{})
		return SubmitResult{
			Status:      StatusCreated,
			DocumentID:  documentID,
			ContentHash: contentHash,
			BytesSize:   bytesSize,
		}, nil
	}

	if !isUniqueViolation(err) {
		return SubmitResult{}, classify("insert document", err)
	}

	// Duplicate content: another submission (possibly a concurrent
	// one that won the race) already holds this hash. Re-query to
	// find the winner's ID.
	var existingID string
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM documents WHERE content_hash = ? LIMIT 1
	`, contentHash)
	if err := row.Scan(&existingID); err != nil {
		return SubmitResult{}, classify("lookup duplicate", err)
	}

	return SubmitResult{
		Status:      StatusDuplicate,
		DocumentID:  existingID,
		ContentHash: contentHash,
		BytesSize:   bytesSize,
	}, nil
}

// ExistsByURL reports whether a URL was already ingested. Fast
// pre-check so callers can skip a network fetch; never a substitute
// for content dedupe, since the same URL can later serve new bytes.
func (s *Store) ExistsByURL(ctx context.Context, fileURL string) (bool, error) {
	if _, ok := s.urls.Get(fileURL); ok {
		return true, nil
	}

	var one int
	row := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM documents WHERE file_url = ? LIMIT 1
	`, fileURL)
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify("query url", err)
	}

	s.urls.Add(fileURL, struct{}{})
	return true, nil
}

// GetByHash returns the document holding the given content hash, or
// nil if no such document exists.
func (s *Store) GetByHash(ctx context.Context, contentHash string) (*Document, error) {
	var d Document
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, file_url, content_hash, bytes_size, created_at
		FROM documents
		WHERE content_hash = ?
	`, contentHash)
	err := row.Scan(&d.ID, &d.SourceID, &d.FileURL, &d.ContentHash, &d.BytesSize, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query hash", err)
	}
	return &d, nil
}

// Count returns the total number of documents in the ledger.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, classify("count documents", err)
	}
	return n, nil
}

// CountBySource returns per-source document counts.
func (s *Store) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, COUNT(*) FROM documents GROUP BY source_id
	`)
	if err != nil {
		return nil, classify("count by source", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, classify("scan source count", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate source counts", err)
	}
	return counts, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// isUniqueViolation reports whether err is SQLite's uniqueness
// constraint failure, the signal that this content already exists.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// classify maps a raw database error onto the ledger error taxonomy.
func classify(op string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %s: %v", ErrSchemaMissing, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
