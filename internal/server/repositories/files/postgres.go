// Package files persists finalized file metadata records.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filedrop/internal/common"
	"github.com/dmitrijs2005/filedrop/internal/dbx"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, owner_id, folder_id, name, mime_type, size, object_key, etag, created_at`

// InsertIfAbsent attempts the insert guarded by the unique index on
// object_key. ON CONFLICT DO NOTHING makes the duplicate case observable as
// "no row returned", after which the existing record is read back.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, record *models.FileRecord) (bool, *models.FileRecord, error) {
	query := `
		INSERT INTO files (id, owner_id, folder_id, name, mime_type, size, object_key, etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (object_key) DO NOTHING
		RETURNING ` + fileColumns

	inserted := &models.FileRecord{}
	err := scanFile(r.db.QueryRowContext(ctx, query,
		record.ID, record.OwnerID, record.FolderID, record.Name,
		record.MimeType, record.Size, record.ObjectKey, record.ETag), inserted)
	if err == nil {
		return true, inserted, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, nil, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.GetByObjectKey(ctx, record.ObjectKey)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// GetByID returns the record for id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1`
	result := &models.FileRecord{}
	if err := scanFile(r.db.QueryRowContext(ctx, query, id), result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return result, nil
}

// GetByObjectKey returns the record for objectKey or common.ErrorNotFound.
func (r *PostgresRepository) GetByObjectKey(ctx context.Context, objectKey string) (*models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE object_key=$1`
	result := &models.FileRecord{}
	if err := scanFile(r.db.QueryRowContext(ctx, query, objectKey), result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return result, nil
}

func scanFile(row *sql.Row, f *models.FileRecord) error {
	return row.Scan(&f.ID, &f.OwnerID, &f.FolderID, &f.Name, &f.MimeType, &f.Size, &f.ObjectKey, &f.ETag, &f.CreatedAt)
}
