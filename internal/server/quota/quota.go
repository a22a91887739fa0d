// Package quota enforces per-user storage limits. The guard is consulted
// before an upload authorization is issued and again at finalization against
// the actual stored size, closing the race between check and commit.
package quota

import "context"

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed        bool
	RequestedBytes int64
	RemainingBytes int64
}

// Guard answers quota checks and records committed usage.
type Guard interface {
	// CheckUploadAllowed reports whether userID may store sizeBytes more.
	CheckUploadAllowed(ctx context.Context, userID string, sizeBytes int64) (Decision, error)
	// CommitUsage charges sizeBytes to userID, keyed by objectKey. Commits
	// are idempotent: repeating the call for the same objectKey never
	// double-charges.
	CommitUsage(ctx context.Context, userID string, sizeBytes int64, objectKey string) error
}
