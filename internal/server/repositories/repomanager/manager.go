// Package repomanager hands out repositories bound to either the pool or an
// open transaction, and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/refkeeper/internal/dbx"
	"github.com/dmitrijs2005/refkeeper/internal/server/repositories/referralcodes"
	"github.com/dmitrijs2005/refkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/refkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	ReferralCodes(db dbx.DBTX) referralcodes.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
