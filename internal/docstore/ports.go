// Package docstore abstracts attachment file storage. Expense records
// keep references to stored files, never the bytes themselves.
package docstore

import "context"

// StoredFile identifies an uploaded attachment.
type StoredFile struct {
	ID   string
	Name string
	URL  string
}

// Store saves attachment bytes and returns a durable reference.
type Store interface {
	Store(ctx context.Context, data []byte, filename, mimeType, folder string) (StoredFile, error)
	Delete(ctx context.Context, fileID string) error
}
