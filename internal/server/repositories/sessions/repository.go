package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/server/models"
)

// Repository persists multipart upload sessions in shared storage so any
// server instance can serve any step of the protocol.
type Repository interface {
	// Create stores a new session in the initiated state.
	Create(ctx context.Context, session *models.UploadSession) error
	// Get returns the session or common.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*models.UploadSession, error)
	// Claim atomically moves an initiated session to completing and records
	// the verified part list. claimed=false means the session was not in
	// the initiated state (a concurrent caller got there first, or it was
	// closed); the caller must re-read to find out which.
	Claim(ctx context.Context, id string, parts []models.UploadPart) (bool, error)
	// Transition performs the conditional status update from -> to.
	// moved=false means the session was not in the expected state.
	Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error)
	// SelectExpired returns open sessions (initiated or completing) whose
	// expiry is at or before now, capped at limit.
	SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.UploadSession, error)
}
