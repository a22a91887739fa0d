package files

import (
	"context"

	"github.com/dmitrijs2005/filedrop/internal/server/models"
)

// Repository persists finalized file metadata.
type Repository interface {
	// InsertIfAbsent inserts the record unless one already exists for its
	// object key. It returns created=false together with the existing
	// record on conflict; that is the success path for idempotent finalize,
	// never an error.
	InsertIfAbsent(ctx context.Context, record *models.FileRecord) (bool, *models.FileRecord, error)
	// GetByID returns the record or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)
	// GetByObjectKey returns the record or common.ErrorNotFound.
	GetByObjectKey(ctx context.Context, objectKey string) (*models.FileRecord, error)
}
