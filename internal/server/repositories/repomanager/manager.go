package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chefbook/internal/dbx"
	"github.com/dmitrijs2005/chefbook/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/chefbook/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
