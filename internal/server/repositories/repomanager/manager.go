// Package repomanager vends catalog repositories bound to a connection or a
// transaction, and owns that connection's lifecycle.
package repomanager

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/batches"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/files"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/instances"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/pendinguploads"
)

type RepositoryManager interface {
	// Conn returns the non-transactional handle to pass to the factories.
	Conn() dbx.DBTX
	// WithTx runs fn in one transaction; fn's handle must be passed to the
	// factories for their calls to be part of it.
	WithTx(ctx context.Context, fn dbx.TxFunc) error
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	Files(db dbx.DBTX) files.Repository
	Instances(db dbx.DBTX) instances.Repository
	PendingUploads(db dbx.DBTX) pendinguploads.Repository
	Batches(db dbx.DBTX) batches.Repository
}

// MemoryDSN selects the in-memory catalog.
const MemoryDSN = "memory://"

// New opens the catalog described by dsn: MemoryDSN for the in-memory
// implementation, a PostgreSQL connection string otherwise.
func New(dsn string) (RepositoryManager, error) {
	if strings.HasPrefix(dsn, MemoryDSN) {
		return NewInMemoryRepositoryManager(), nil
	}
	return OpenPostgres(dsn)
}
