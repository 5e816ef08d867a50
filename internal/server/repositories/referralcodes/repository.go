// Package referralcodes stores referral codes, at most one per user.
package referralcodes

import (
	"context"

	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

// Repository persists referral codes. Finders return common.ErrorNotFound
// when no row matches and never filter on expiration; deciding whether a
// code is still usable is the caller's job. Create returns
// common.ErrorConflict when the code or the owner already has a row.
type Repository interface {
	Create(ctx context.Context, code *models.ReferralCode) error
	FindByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
	FindByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	FindByOwnerEmail(ctx context.Context, email string) (*models.ReferralCode, error)

	// DeleteByUser removes the user's code and returns it, or
	// common.ErrorNotFound when the user had none.
	DeleteByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
}
