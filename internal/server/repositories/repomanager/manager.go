package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Moments(db dbx.DBTX) moments.Repository
}
