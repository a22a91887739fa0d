// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileRecord is the durable result of a successful upload. A given ObjectKey
// is finalized into a FileRecord at most once; the objectKey uniqueness
// constraint in the database is the idempotency primitive finalize relies on.
type FileRecord struct {
	// ID is the server-assigned identifier.
	ID string
	// OwnerID is the user who uploaded the file.
	OwnerID string
	// FolderID is the optional parent folder. Empty means root.
	FolderID string
	// Name is the sanitized display name of the file.
	Name string
	// MimeType is the declared content type.
	MimeType string
	// Size is the actual stored size in bytes, confirmed against the object
	// store at finalization, not the size the client declared.
	Size int64
	// ObjectKey is the object-storage path of the blob.
	ObjectKey string
	// ETag is the integrity token the store returned for the final object.
	ETag string

	CreatedAt time.Time
}
