package referralcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/dbx"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX, so the same
// instance type works on a pool or inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	query := `
		INSERT INTO referral_codes (user_id, code, expiration_date)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, code.UserID, code.Code, code.ExpirationDate).Scan(&code.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("referral code: %w", common.ErrorConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	query := `
		SELECT user_id, code, expiration_date, created_at
		FROM referral_codes
		WHERE user_id = $1
	`
	return r.findOne(ctx, query, userID)
}

// FindByCode locks the row for the rest of the surrounding transaction so
// the owner cannot retire it while a registration is attaching to it.
func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	query := `
		SELECT user_id, code, expiration_date, created_at
		FROM referral_codes
		WHERE code = $1
		FOR SHARE
	`
	return r.findOne(ctx, query, code)
}

func (r *PostgresRepository) FindByOwnerEmail(ctx context.Context, email string) (*models.ReferralCode, error) {
	query := `
		SELECT rc.user_id, rc.code, rc.expiration_date, rc.created_at
		FROM referral_codes rc
		JOIN users u ON u.id = rc.user_id
		WHERE u.email = $1
	`
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	query := `
		DELETE FROM referral_codes
		WHERE user_id = $1
		RETURNING user_id, code, expiration_date, created_at
	`
	return r.findOne(ctx, query, userID)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.ReferralCode, error) {
	c := &models.ReferralCode{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&c.UserID, &c.Code, &c.ExpirationDate, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}
