package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/configs"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/generations"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/orgstats"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/tokens"
)

// InMemoryRepositoryManager serves every repository from one memory.Store.
// Pair it with dbx.NopRunner.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func NewInMemoryRepositoryManager(store *memory.Store) *InMemoryRepositoryManager {
	if store == nil {
		store = memory.NewStore()
	}
	return &InMemoryRepositoryManager{store: store}
}

// Store exposes the backing store, mainly for tests.
func (m *InMemoryRepositoryManager) Store() *memory.Store { return m.store }

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *InMemoryRepositoryManager) Events(dbx.DBTX) events.Repository { return m.store.Events() }

func (m *InMemoryRepositoryManager) Configs(dbx.DBTX) configs.Repository { return m.store.Configs() }

func (m *InMemoryRepositoryManager) Generations(dbx.DBTX) generations.Repository {
	return m.store.Generations()
}

func (m *InMemoryRepositoryManager) Tokens(dbx.DBTX) tokens.Repository { return m.store.Tokens() }

func (m *InMemoryRepositoryManager) OrgStats(dbx.DBTX) orgstats.Repository {
	return m.store.OrgStats()
}
