// Package users declares and implements the identity store: user rows and
// the self-referential referrer relationship.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

// Repository is the identity store contract. Lookups return
// common.ErrorNotFound when nothing matches; Create returns
// common.ErrorConflict when username or email is already taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ListReferrals returns every user whose referrer is referrerID.
	ListReferrals(ctx context.Context, referrerID string) ([]models.User, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
