package ledger

import (
	"context"
	"strings"
	"time"
)

// DocumentFilters holds the optional filters for listing documents.
type DocumentFilters struct {
	SourceID    string    // Exact source match
	URLContains string    // Substring match on file_url
	Since       time.Time // Ingested at or after
	Until       time.Time // Ingested at or before
	Limit       int       // Max rows (default 100)
}

const defaultListLimit = 100

// ListDocuments returns documents matching the filters, most recently
// ingested first.
func (s *Store) ListDocuments(ctx context.Context, filters DocumentFilters) ([]Document, error) {
	query := `
		SELECT id, source_id, file_url, content_hash, bytes_size, created_at
		FROM documents
	`

	var conditions []string
	var args []interface{}

	if filters.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, filters.SourceID)
	}
	if filters.URLContains != "" {
		conditions = append(conditions, "file_url LIKE ?")
		args = append(args, "%"+filters.URLContains+"%")
	}
	// created_at is RFC 3339 in UTC, so string comparison orders
	// correctly.
	if !filters.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filters.Since.UTC().Format(time.RFC3339))
	}
	if !filters.Until.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filters.Until.UTC().Format(time.RFC3339))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id"

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SourceID, &d.FileURL, &d.ContentHash, &d.BytesSize, &d.CreatedAt); err != nil {
			return nil, classify("scan document", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate documents", err)
	}

	return docs, nil
}
