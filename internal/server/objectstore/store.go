// Package objectstore abstracts the object-storage backend behind the
// pre-signable primitives the upload protocol needs. The S3 implementation
// talks to any S3-compatible store; the in-memory implementation backs tests
// and local runs.
package objectstore

import (
	"context"
	"time"
)

// PresignedRequest is a time-boxed authorization for one specific store
// operation, usable by a client that holds no store credentials.
type PresignedRequest struct {
	URL       string
	Method    string
	Header    map[string][]string
	ExpiresAt time.Time
}

// ObjectInfo describes an object's existence and identity.
type ObjectInfo struct {
	Exists bool
	Size   int64
	ETag   string
}

// CompletedPart references one uploaded part during multipart assembly.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// Store is the object-storage surface consumed by the upload services.
type Store interface {
	// PresignPut authorizes a single PUT of at most maxSize bytes to key.
	PresignPut(ctx context.Context, key, contentType string, maxSize int64, ttl time.Duration) (*PresignedRequest, error)
	// PresignGet authorizes a single GET of key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*PresignedRequest, error)
	// Head reports whether key exists and, if so, its size and ETag.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// CreateMultipart opens a store-side multipart upload and returns its id.
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	// PresignUploadPart authorizes uploading one part of the multipart upload.
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (*PresignedRequest, error)
	// CompleteMultipart assembles the uploaded parts into the final object
	// and returns its ETag.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error)
	// AbortMultipart discards a multipart upload and its parts.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
