// Package sessions persists multipart upload sessions. All status changes go
// through conditional updates so two racing completion attempts can never
// both observe the initiated state and both proceed.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
	"github.com/dmitrijs2005/filedrop/internal/dbx"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
)

// PostgresRepository implements session storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, owner_id, object_key, store_upload_id, declared_size, mime_type, folder_id, chunk_size, status, parts, created_at, expires_at`

// Create stores a new session row.
func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) error {
	parts, err := json.Marshal(s.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}
	if parts == nil || s.Parts == nil {
		parts = []byte("[]")
	}
	query := `
		INSERT INTO upload_sessions
			(id, owner_id, object_key, store_upload_id, declared_size, mime_type, folder_id, chunk_size, status, parts, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.ObjectKey, s.StoreUploadID, s.DeclaredSize,
		s.DeclaredMimeType, s.FolderID, s.ChunkSize, string(s.Status), parts, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the session or common.ErrSessionNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE id=$1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return s, nil
}

// Claim moves an initiated session to completing and records the part list
// in the same statement, so the claim and the parts are one atomic step.
func (r *PostgresRepository) Claim(ctx context.Context, id string, parts []models.UploadPart) (bool, error) {
	encoded, err := json.Marshal(parts)
	if err != nil {
		return false, fmt.Errorf("marshal parts: %w", err)
	}
	query := `UPDATE upload_sessions SET status=$2, parts=$3 WHERE id=$1 AND status=$4`
	res, err := r.db.ExecContext(ctx, query, id, string(models.SessionCompleting), encoded, string(models.SessionInitiated))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// Transition performs the conditional status change from -> to.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	query := `UPDATE upload_sessions SET status=$2 WHERE id=$1 AND status=$3`
	res, err := r.db.ExecContext(ctx, query, id, string(to), string(from))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// SelectExpired returns open sessions whose TTL elapsed, for the cleanup loop.
func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions
		WHERE status IN ($1, $2) AND expires_at <= $3
		ORDER BY expires_at LIMIT $4`
	rows, err := r.db.QueryContext(ctx, query,
		string(models.SessionInitiated), string(models.SessionCompleting), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionInto(row rowScanner) (*models.UploadSession, error) {
	s := &models.UploadSession{}
	var status string
	var parts []byte
	err := row.Scan(&s.ID, &s.OwnerID, &s.ObjectKey, &s.StoreUploadID, &s.DeclaredSize,
		&s.DeclaredMimeType, &s.FolderID, &s.ChunkSize, &status, &parts, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &s.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal parts: %w", err)
		}
	}
	return s, nil
}

func scanSession(row *sql.Row) (*models.UploadSession, error) {
	return scanSessionInto(row)
}

func scanSessionRows(rows *sql.Rows) (*models.UploadSession, error) {
	return scanSessionInto(rows)
}
