package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/momentkeeper/internal/dbx"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/moments"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory repositories for
// every DBTX. Services pass a nil *sql.DB with it; dbx.RunInTx then calls
// through without a transaction.
type MemoryRepositoryManager struct {
	users   *users.MemoryRepository
	moments *moments.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:   users.NewMemoryRepository(),
		moments: moments.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.users
}

func (m *MemoryRepositoryManager) Moments(dbx.DBTX) moments.Repository {
	return m.moments
}
