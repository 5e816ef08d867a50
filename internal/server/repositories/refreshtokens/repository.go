// Package refreshtokens stores the opaque refresh tokens handed out at login.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID, token string, expires time.Time) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete consumes the token. It returns common.ErrorNotFound when the
	// token was already gone, so two concurrent rotations cannot both win.
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
}
