package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/changes"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/conflicts"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/devices"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/versions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Devices(db dbx.DBTX) devices.Repository
	Changes(db dbx.DBTX) changes.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	Versions(db dbx.DBTX) versions.Repository
}
