package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a multipart upload session.
type SessionStatus string

const (
	// SessionInitiated is the initial state; chunk URLs may only be issued
	// and parts only recorded while the session is here.
	SessionInitiated SessionStatus = "initiated"
	// SessionCompleting means a completion call has claimed the session and
	// store-side assembly is in flight. A session stays here when assembly
	// fails, so a retry with the same verified part set can proceed.
	SessionCompleting SessionStatus = "completing"
	// SessionCompleted means assembly succeeded and a FileRecord exists.
	SessionCompleted SessionStatus = "completed"
	// SessionAborted means the client aborted or the TTL elapsed.
	SessionAborted SessionStatus = "aborted"
)

// CanTransitionTo reports whether the status change is legal. Transitions
// are enforced again at the database with conditional updates; this is the
// in-process check services use before touching the store.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionInitiated:
		return next == SessionCompleting || next == SessionAborted
	case SessionCompleting:
		return next == SessionCompleted || next == SessionAborted
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInitiated, SessionCompleting, SessionCompleted, SessionAborted:
		return true
	}
	return false
}

// UploadPart is one client-reported chunk: its 1-based position and the ETag
// the store returned for it. The server never observes chunk bytes; parts
// arrive only through the completion call.
type UploadPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// UploadSession tracks one in-flight multipart upload. Sessions live in the
// shared database so chunk-URL requests and the completion request may land
// on different server instances.
type UploadSession struct {
	ID      string
	OwnerID string
	// ObjectKey is derived from owner, filename and session id at initiation
	// and never supplied by the client.
	ObjectKey string
	// StoreUploadID is the object store's multipart upload handle.
	StoreUploadID string

	DeclaredSize     int64
	DeclaredMimeType string
	FolderID         string
	ChunkSize        int64

	Status SessionStatus
	// Parts is the verified part list, recorded when a completion call
	// claims the session.
	Parts []UploadPart

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session TTL has elapsed at the given instant.
// Expiry is checked lazily on every use; background cleanup only reclaims
// store-side state.
func (s *UploadSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ExpectedPartCount derives how many chunks a file of DeclaredSize splits
// into at ChunkSize, the last chunk possibly undersized.
func (s *UploadSession) ExpectedPartCount() int {
	if s.ChunkSize <= 0 {
		return 0
	}
	return int((s.DeclaredSize + s.ChunkSize - 1) / s.ChunkSize)
}

func (s *UploadSession) String() string {
	return fmt.Sprintf("session %s (%s, %s)", s.ID, s.ObjectKey, s.Status)
}
