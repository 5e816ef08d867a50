// Package services holds the server's business logic on top of the
// repositories: referral code lifecycle, registration and authentication.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/dbx"
	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/archive"
	"github.com/dmitrijs2005/refkeeper/internal/server/config"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
	"github.com/dmitrijs2005/refkeeper/internal/server/repositories/repomanager"
)

// maxIssueAttempts bounds how often Issue restarts after a unique violation.
const maxIssueAttempts = 3

// ReferralCodeService issues, retires and resolves referral codes. Each user
// holds at most one code; issuing a new one replaces the old one.
type ReferralCodeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	archiver    archive.Archiver
	log         logging.Logger
	validity    time.Duration

	now     func() time.Time
	newCode func() (string, error)
}

func NewReferralCodeService(db *sql.DB, m repomanager.RepositoryManager, a archive.Archiver,
	cfg *config.Config, log logging.Logger) *ReferralCodeService {
	return &ReferralCodeService{
		db:          db,
		repomanager: m,
		archiver:    a,
		log:         log,
		validity:    cfg.ReferralCodeValidity,
		now:         time.Now,
		newCode:     common.NewReferralCode,
	}
}

// Issue gives the user a fresh code valid for the configured window,
// retiring the current one if any.
func (s *ReferralCodeService) Issue(ctx context.Context, userID string) (*models.ReferralCode, error) {
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code, replaced, err := s.issueOnce(ctx, userID)
		if err == nil {
			if replaced != nil {
				s.archive(ctx, replaced, archive.ReasonReplaced)
			}
			s.log.Info(ctx, "referral code issued", "user_id", userID, "expires", code.ExpirationDate)
			return code, nil
		}
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		s.log.Warn(ctx, "referral code collision", "user_id", userID, "attempt", attempt)
	}
	return nil, fmt.Errorf("issue referral code after %d attempts: %w", maxIssueAttempts, common.ErrorConflict)
}

func (s *ReferralCodeService) issueOnce(ctx context.Context, userID string) (code, replaced *models.ReferralCode, err error) {
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.ReferralCodes(tx)

		old, err := repo.DeleteByUser(ctx, userID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("retire current code: %w", err)
		}

		value, err := s.newCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		c := &models.ReferralCode{
			UserID:         userID,
			Code:           value,
			ExpirationDate: s.now().Add(s.validity),
		}
		if err := repo.Create(ctx, c); err != nil {
			return err
		}

		code, replaced = c, old
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return code, replaced, nil
}

// Fetch returns the user's code, expired or not.
func (s *ReferralCodeService) Fetch(ctx context.Context, userID string) (*models.ReferralCode, error) {
	return s.repomanager.ReferralCodes(s.db).FindByUser(ctx, userID)
}

// Retire deletes the user's code. It returns common.ErrorNotFound when the
// user has none.
func (s *ReferralCodeService) Retire(ctx context.Context, userID string) error {
	var retired *models.ReferralCode
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		retired, err = s.repomanager.ReferralCodes(tx).DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.archive(ctx, retired, archive.ReasonRetired)
	s.log.Info(ctx, "referral code retired", "user_id", userID)
	return nil
}

// ResolveActive returns the owner of code if the code exists and has not
// expired yet.
func (s *ReferralCodeService) ResolveActive(ctx context.Context, code string) (*models.User, error) {
	var owner *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		owner, err = s.ResolveActiveTx(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// ResolveActiveTx is ResolveActive inside the caller's transaction.
// A missing code yields an error matching both common.ErrorNotFound and
// common.ErrCodeNotFound; an expired one yields common.ErrCodeExpired.
func (s *ReferralCodeService) ResolveActiveTx(ctx context.Context, tx dbx.DBTX, code string) (*models.User, error) {
	if len(code) > common.MaxReferralCodeLength {
		return nil, fmt.Errorf("%w: %w", common.ErrorNotFound, common.ErrCodeNotFound)
	}

	rc, err := s.repomanager.ReferralCodes(tx).FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %w", common.ErrorNotFound, common.ErrCodeNotFound)
		}
		return nil, err
	}

	if !rc.ActiveAt(s.now()) {
		return nil, common.ErrCodeExpired
	}

	owner, err := s.repomanager.Users(tx).GetByID(ctx, rc.UserID)
	if err != nil {
		return nil, fmt.Errorf("code owner: %w", err)
	}
	return owner, nil
}

// ResolveByOwnerEmail returns the active code of the user with the given
// email. Expired codes are reported as common.ErrCodeExpired, which also
// matches common.ErrorNotFound.
func (s *ReferralCodeService) ResolveByOwnerEmail(ctx context.Context, email string) (*models.ReferralCode, error) {
	rc, err := s.repomanager.ReferralCodes(s.db).FindByOwnerEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !rc.ActiveAt(s.now()) {
		return nil, common.ErrCodeExpired
	}
	return rc, nil
}

func (s *ReferralCodeService) archive(ctx context.Context, rc *models.ReferralCode, reason string) {
	rec := archive.Record{
		UserID:         rc.UserID,
		Code:           rc.Code,
		ExpirationDate: rc.ExpirationDate,
		RetiredAt:      s.now(),
		Reason:         reason,
	}
	if err := s.archiver.Archive(ctx, rec); err != nil {
		s.log.Error(ctx, "archive referral code", "user_id", rc.UserID, "reason", reason, "err", err)
	}
}
