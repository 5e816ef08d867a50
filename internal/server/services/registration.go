package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/dbx"
	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/auth"
	"github.com/dmitrijs2005/refkeeper/internal/server/config"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
	"github.com/dmitrijs2005/refkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// RegisterInput is a validated registration request. Email and
// ReferralCode are optional.
type RegisterInput struct {
	Username     string
	Password     string
	Email        string
	ReferralCode string
}

// RegistrationService creates accounts and attaches the referrer named by
// an optional referral code.
type RegistrationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codes       *ReferralCodeService
	log         logging.Logger
	bcryptCost  int

	hashPassword func(password string, cost int) (string, error)
	newID        func() string
}

func NewRegistrationService(db *sql.DB, m repomanager.RepositoryManager, codes *ReferralCodeService,
	cfg *config.Config, log logging.Logger) *RegistrationService {
	return &RegistrationService{
		db:           db,
		repomanager:  m,
		codes:        codes,
		log:          log,
		bcryptCost:   cfg.BcryptCost,
		hashPassword: auth.HashPassword,
		newID:        uuid.NewString,
	}
}

// Register creates the user in one transaction. A supplied referral code
// must resolve to an active code or the whole registration fails with a
// *common.ValidationError. A taken username or email yields
// common.ErrorConflict, including when a concurrent registration wins the race.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := s.hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		taken, err := repo.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("username %q: %w", in.Username, common.ErrorConflict)
		}

		if in.Email != "" {
			taken, err = repo.ExistsByEmail(ctx, in.Email)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("email %q: %w", in.Email, common.ErrorConflict)
			}
		}

		user := &models.User{
			ID:           s.newID(),
			UserName:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
		}

		if in.ReferralCode != "" {
			referrer, err := s.codes.ResolveActiveTx(ctx, tx, in.ReferralCode)
			if err != nil {
				return referralCodeError(err)
			}
			user.ReferrerID = &referrer.ID
		}

		created, err = repo.Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created.ReferrerID != nil {
		s.log.Info(ctx, "user registered", "user_id", created.ID, "referrer_id", *created.ReferrerID)
	} else {
		s.log.Info(ctx, "user registered", "user_id", created.ID)
	}
	return created, nil
}

func referralCodeError(err error) error {
	switch {
	case errors.Is(err, common.ErrCodeExpired):
		return common.NewValidationError(common.ReasonCodeExpired, "referral code has expired", err)
	case errors.Is(err, common.ErrCodeNotFound):
		return common.NewValidationError(common.ReasonCodeNotFound, "referral code does not exist", err)
	default:
		return err
	}
}

// ListReferrals returns the users referred by userID. It returns
// common.ErrorNotFound when userID does not exist.
func (s *RegistrationService) ListReferrals(ctx context.Context, userID string) ([]models.User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", userID, common.ErrorNotFound)
	}
	// uuid.Parse also takes urn:uuid: and braced forms the database rejects
	userID = id.String()

	var out []models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if _, err := repo.GetByID(ctx, userID); err != nil {
			return err
		}
		var err error
		out, err = repo.ListReferrals(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
