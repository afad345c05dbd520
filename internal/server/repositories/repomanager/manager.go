// Package repomanager vends repositories for the configured storage backend.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/configs"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/generations"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/orgstats"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/tokens"
)

// RepositoryManager builds repositories bound to a handle from dbx.Runner.
// In-memory implementations ignore the handle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Events(db dbx.DBTX) events.Repository
	Configs(db dbx.DBTX) configs.Repository
	Generations(db dbx.DBTX) generations.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	OrgStats(db dbx.DBTX) orgstats.Repository
}
