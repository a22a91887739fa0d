package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filedrop/internal/dbx"
)

// PostgresGuard implements Guard over a dbx.DBTX (*sql.DB or *sql.Tx).
// Binding it to a transaction lets finalize commit usage and the file record
// atomically.
type PostgresGuard struct {
	db dbx.DBTX
	// defaultLimitBytes applies to users with no user_quotas row.
	defaultLimitBytes int64
}

// NewPostgresGuard constructs a guard bound to the given DBTX.
func NewPostgresGuard(db dbx.DBTX, defaultLimitBytes int64) *PostgresGuard {
	return &PostgresGuard{db: db, defaultLimitBytes: defaultLimitBytes}
}

// CheckUploadAllowed compares used+requested against the user's limit. Users
// without an explicit quota row fall back to the configured default limit.
func (g *PostgresGuard) CheckUploadAllowed(ctx context.Context, userID string, sizeBytes int64) (Decision, error) {
	limit := g.defaultLimitBytes
	var used int64

	query := `SELECT limit_bytes, used_bytes FROM user_quotas WHERE user_id=$1`
	err := g.db.QueryRowContext(ctx, query, userID).Scan(&limit, &used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Decision{}, fmt.Errorf("failed to select quota: %w", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:        sizeBytes <= remaining,
		RequestedBytes: sizeBytes,
		RemainingBytes: remaining,
	}, nil
}

// CommitUsage inserts a ledger row for objectKey and, only when that insert
// actually happened, bumps the user's used counter. A conflicting ledger row
// means the key was charged before, so the call becomes a no-op.
func (g *PostgresGuard) CommitUsage(ctx context.Context, userID string, sizeBytes int64, objectKey string) error {
	ledger := `INSERT INTO usage_ledger (object_key, user_id, size) VALUES ($1, $2, $3)
		ON CONFLICT (object_key) DO NOTHING`
	res, err := g.db.ExecContext(ctx, ledger, objectKey, userID, sizeBytes)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		// Already charged for this key.
		return nil
	}

	counter := `INSERT INTO user_quotas (user_id, limit_bytes, used_bytes) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET used_bytes = user_quotas.used_bytes + EXCLUDED.used_bytes`
	if _, err := g.db.ExecContext(ctx, counter, userID, g.defaultLimitBytes, sizeBytes); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
