package ledger

import "errors"

// Status reports how a submission was applied.
type Status string

const (
	// StatusCreated means a new document row was persisted.
	StatusCreated Status = "created"
	// StatusDuplicate means the content hash already existed; the
	// original document's ID is reported. Duplicate is a successful
	// outcome, not an error.
	StatusDuplicate Status = "duplicate"
)

var (
	// ErrStorageUnavailable means the underlying store could not be
	// opened, written, or read. Not retried internally; the caller
	// decides retry policy.
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")

	// ErrSchemaMissing means the documents table is absent, i.e. the
	// database was never initialized. Surfaced immediately.
	ErrSchemaMissing = errors.New("ledger: schema missing")
)

// Document is the canonical record for one unique byte sequence.
// FileURL records only the URL of the submission that created the row;
// later duplicate submissions from other URLs do not update it.
type Document struct {
	ID          string
	SourceID    string
	FileURL     string
	ContentHash string
	BytesSize   int64
	CreatedAt   string
}

// SubmitResult reports the outcome of SubmitIfNew. ContentHash and
// BytesSize are identical whether created or duplicate; DocumentID
// reflects the original record on duplicate.
type SubmitResult struct {
	Status      Status `json:"status"`
	DocumentID  string `json:"document_id"`
	ContentHash string `json:"content_hash"`
	BytesSize   int64  `json:"bytes_size"`
}
