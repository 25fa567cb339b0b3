package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/avolkhov/storefront-checkout/domain"
)

const couponColumns = `id, code, discount_percentage, expiration_date, is_active, user_id, created_at, updated_at`

// GetActiveCouponForUser returns the user's active coupon with the latest
// expiration date. Expiry itself is decided by the caller; the row comes
// back exactly as stored.
func (r *Repository) GetActiveCouponForUser(ctx context.Context, userID int64) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + `
	          FROM coupons
	          WHERE user_id = $1 AND is_active = true
	          ORDER BY expiration_date DESC
	          LIMIT 1`

	return r.scanCoupon(r.db.QueryRowContext(ctx, query, userID))
}

func (r *Repository) GetCouponByCode(ctx context.Context, code string, userID int64) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + `
	          FROM coupons
	          WHERE code = $1 AND user_id = $2 AND is_active = true`

	return r.scanCoupon(r.db.QueryRowContext(ctx, query, code, userID))
}

func (r *Repository) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	query := `INSERT INTO coupons (id, code, discount_percentage, expiration_date, is_active, user_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.Code,
		c.DiscountPercentage,
		c.ExpirationDate,
		c.IsActive,
		c.UserID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCouponCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// DeactivateCoupon marks the coupon inactive. Deactivating an already
// inactive or missing coupon is a no-op, not an error.
func (r *Repository) DeactivateCoupon(ctx context.Context, code string, userID int64) error {
	query := `UPDATE coupons SET is_active = false, updated_at = NOW()
	          WHERE code = $1 AND user_id = $2`

	if _, err := r.db.ExecContext(ctx, query, code, userID); err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	return nil
}

func (r *Repository) scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.DiscountPercentage,
		&c.ExpirationDate,
		&c.IsActive,
		&c.UserID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon row: %w", err)
	}
	return &c, nil
}
