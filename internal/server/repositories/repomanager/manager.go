package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filedrop/internal/dbx"
	"github.com/dmitrijs2005/filedrop/internal/server/quota"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to an arbitrary DBTX, so a
// service can use the same repository code inside and outside a transaction.
type RepositoryManager interface {
	Files(db dbx.DBTX) files.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Quota(db dbx.DBTX) quota.Guard
	RunMigrations(ctx context.Context, db *sql.DB) error
}
