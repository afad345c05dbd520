// Package services contains server-side business logic: template configs,
// batch generation with encrypted storage, verification and organisation
// statistics. Services are transport-agnostic; the REST layer maps their
// errors to status codes.
package services

import (
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/repomanager"
)

// Caller identifies who is invoking a management operation.
type Caller struct {
	UserID       string
	Organisation string
}

// Deps are shared by every service.
type Deps struct {
	Runner      dbx.Runner
	RepoManager repomanager.RepositoryManager
	Logger      logging.Logger
}

func (d Deps) logger(module string) logging.Logger {
	if d.Logger == nil {
		return logging.Discard().With("module", module)
	}
	return d.Logger.With("module", module)
}
